package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("roles: not found")

// Store abstracts persistence so the service can be tested with a stub.
type Store interface {
	ListRoles(ctx context.Context, domain string) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	ListAppRoles(ctx context.Context, application string) ([]AppRole, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, resourceType, action, description string) (Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID string) error
	DetachPermission(ctx context.Context, roleID, permissionID string) error
	AssignRole(ctx context.Context, userID, roleID, assignedBy string, expiresAt *time.Time) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	ListAssignments(ctx context.Context, userID string) ([]Assignment, error)
}

// Service orchestrates role catalog operations.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListRoles returns domain-scoped roles.
func (s *Service) ListRoles(ctx context.Context, domain string) ([]Role, error) {
	return s.store.ListRoles(ctx, strings.TrimSpace(domain))
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// CreateRole inserts a new domain-scoped role.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	role.Domain = strings.TrimSpace(role.Domain)
	if role.Name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	if role.Domain == "" {
		return Role{}, errors.New("roles: role domain required")
	}
	if role.DisplayName == "" {
		role.DisplayName = role.Name
	}
	return s.store.CreateRole(ctx, role)
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, role Role) (Role, error) {
	if role.ID == "" {
		return Role{}, errors.New("roles: role id required")
	}
	return s.store.UpdateRole(ctx, role)
}

// ListAppRoles returns legacy application-scoped roles.
func (s *Service) ListAppRoles(ctx context.Context, application string) ([]AppRole, error) {
	return s.store.ListAppRoles(ctx, strings.TrimSpace(application))
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// EnsurePermission upserts a permission by its natural key.
func (s *Service) EnsurePermission(ctx context.Context, resourceType, action, description string) (Permission, error) {
	resourceType = strings.TrimSpace(resourceType)
	action = strings.TrimSpace(action)
	if resourceType == "" || action == "" {
		return Permission{}, errors.New("roles: permission requires resource type and action")
	}
	return s.store.EnsurePermission(ctx, resourceType, action, strings.TrimSpace(description))
}

// AttachPermission links a permission to a role.
func (s *Service) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	if roleID == "" || permissionID == "" {
		return errors.New("roles: role and permission ids required")
	}
	return s.store.AttachPermission(ctx, roleID, permissionID)
}

// DetachPermission deactivates a role-permission link.
func (s *Service) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	return s.store.DetachPermission(ctx, roleID, permissionID)
}

// AssignRole assigns a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, assignedBy string, expiresAt *time.Time) error {
	if userID == "" || roleID == "" {
		return errors.New("roles: user and role ids required")
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return fmt.Errorf("roles: expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}
	return s.store.AssignRole(ctx, userID, roleID, assignedBy, expiresAt)
}

// RevokeRole deactivates a user-role assignment. The change is visible to the
// very next authorization check because principal context is rebuilt from
// source per request.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID string) error {
	return s.store.RevokeRole(ctx, userID, roleID)
}

// ListAssignments returns all assignment rows for a user.
func (s *Service) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	return s.store.ListAssignments(ctx, userID)
}

var _ Store = (*Repository)(nil)
