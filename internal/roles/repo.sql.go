package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns domain-scoped roles, optionally filtered by domain.
func (r *Repository) ListRoles(ctx context.Context, domain string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, display_name, domain, level, metadata, is_active, created_at, updated_at
		FROM roles
		WHERE ($1 = '' OR domain = $1)
		ORDER BY name`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, display_name, domain, level, metadata, is_active, created_at, updated_at
		FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new domain-scoped role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	metadata, err := json.Marshal(role.Metadata)
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode metadata: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (id, name, display_name, domain, level, metadata, is_active, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, TRUE, NOW(), NOW())
		RETURNING id, name, display_name, domain, level, metadata, is_active, created_at, updated_at`,
		role.Name, role.DisplayName, role.Domain, role.Level, metadata)
	return scanRole(row)
}

// UpdateRole updates mutable role fields.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	metadata, err := json.Marshal(role.Metadata)
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode metadata: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET display_name = $2, level = $3, metadata = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, display_name, domain, level, metadata, is_active, created_at, updated_at`,
		role.ID, role.DisplayName, role.Level, metadata, role.IsActive)
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return updated, nil
}

// ListAppRoles returns legacy application-scoped roles.
func (r *Repository) ListAppRoles(ctx context.Context, application string) ([]AppRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, display_name, application, level, metadata, is_active, created_at
		FROM app_roles
		WHERE ($1 = '' OR application = $1)
		ORDER BY name`, application)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []AppRole
	for rows.Next() {
		var (
			role AppRole
			meta []byte
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Application, &role.Level, &meta, &role.IsActive, &role.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &role.Metadata); err != nil {
				return nil, fmt.Errorf("roles: decode app role metadata: %w", err)
			}
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissions returns the permission catalog ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, resource_type, action, description
		FROM permissions
		ORDER BY resource_type, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.ResourceType, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsurePermission upserts a permission on its natural key.
func (r *Repository) EnsurePermission(ctx context.Context, resourceType, action, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (id, resource_type, action, description)
		VALUES (gen_random_uuid(), $1, $2, $3)
		ON CONFLICT (resource_type, action)
		DO UPDATE SET description = EXCLUDED.description
		RETURNING id, resource_type, action, description`,
		resourceType, action, description).
		Scan(&p.ID, &p.ResourceType, &p.Action, &p.Description)
	return p, err
}

// AttachPermission links a permission to a role, reactivating a previously
// deactivated link if one exists.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (role_id, permission_id)
		DO UPDATE SET is_active = TRUE`, roleID, permissionID)
	return err
}

// DetachPermission deactivates a role-permission link. Links are never hard
// deleted once referenced by audit history.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE role_permissions SET is_active = FALSE
		WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignRole assigns a role to a user, optionally with an expiry.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID, assignedBy string, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at, expires_at, is_active)
		VALUES ($1, $2, NULLIF($3, ''), NOW(), $4, TRUE)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET assigned_by = NULLIF($3, ''), assigned_at = NOW(), expires_at = $4, is_active = TRUE`,
		userID, roleID, assignedBy, expiresAt)
	return err
}

// RevokeRole deactivates a user-role assignment. The row is kept for audit
// history.
func (r *Repository) RevokeRole(ctx context.Context, userID, roleID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles SET is_active = FALSE
		WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAssignments returns every assignment row for a user, newest first.
func (r *Repository) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, role_id, COALESCE(assigned_by, ''), assigned_at, expires_at, is_active
		FROM user_roles
		WHERE user_id = $1
		ORDER BY assigned_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt, &a.IsActive); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ExpireAssignments deactivates assignment rows whose expiry has passed.
// Expired rows are already excluded from every grant computation; the sweep
// just keeps the table tidy for admin views.
func (r *Repository) ExpireAssignments(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles SET is_active = FALSE
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role Role
		meta []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Domain, &role.Level, &meta, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &role.Metadata); err != nil {
			return Role{}, fmt.Errorf("roles: decode metadata: %w", err)
		}
	}
	return role, nil
}
