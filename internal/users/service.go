package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound indicates that the requested user does not exist.
var ErrNotFound = errors.New("users: not found")

// Store abstracts persistence so the service can be tested with a stub.
type Store interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, id, name string, isActive bool) (User, error)
}

// Service wraps user administration rules.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

// CreateUser registers a new account with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, email, name, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" {
		return User{}, errors.New("users: email required")
	}
	if len(password) < 8 {
		return User{}, errors.New("users: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, email, name, string(hash))
}

// UpdateUser changes the display name or active flag. Deactivation takes
// effect on the next authorization check because principal resolution always
// consults the user record.
func (s *Service) UpdateUser(ctx context.Context, id, name string, isActive bool) (User, error) {
	if id == "" {
		return User{}, errors.New("users: user id required")
	}
	return s.store.UpdateUser(ctx, id, strings.TrimSpace(name), isActive)
}

var _ Store = (*Repository)(nil)
