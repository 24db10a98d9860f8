package users

import (
	"context"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

type memoryStore struct {
	users  map[string]User
	hashes map[string]string
	nextID int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]User), hashes: make(map[string]string)}
}

func (m *memoryStore) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryStore) GetUser(ctx context.Context, id string) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryStore) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	m.nextID++
	u := User{ID: strconv.Itoa(m.nextID), Email: email, Name: name, IsActive: true}
	m.users[u.ID] = u
	m.hashes[u.ID] = passwordHash
	return u, nil
}

func (m *memoryStore) UpdateUser(ctx context.Context, id, name string, isActive bool) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	u.Name = name
	u.IsActive = isActive
	m.users[id] = u
	return u, nil
}

func TestCreateUserNormalizesEmail(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store)

	u, err := svc.CreateUser(context.Background(), "  Alice@Example.COM ", "Alice", "hunter2secure")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("email = %q", u.Email)
	}
	hash := store.hashes[u.ID]
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2secure")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	svc := NewService(newMemoryStore())
	if _, err := svc.CreateUser(context.Background(), "bob@example.com", "Bob", "short"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestUpdateUserDeactivation(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store)

	u, err := svc.CreateUser(context.Background(), "carol@example.com", "Carol", "longenough")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := svc.UpdateUser(context.Background(), u.ID, "Carol B", false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IsActive {
		t.Fatal("expected deactivated user")
	}

	if _, err := svc.UpdateUser(context.Background(), "", "x", true); err == nil {
		t.Fatal("expected error for missing id")
	}
}
