package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore provides PostgreSQL backed reads for principal context, the
// permission catalog, and direct grants, plus the audit log insert. All
// queries are read-only except InsertAuditEvent; the pool is safe for
// unbounded concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store over the shared pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Ping reports whether the relational store answers.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UserActive implements PrincipalStore.
func (s *PGStore) UserActive(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT is_active FROM users WHERE id = $1`, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return active, nil
}

// ActiveDomainRoles implements PrincipalStore over the domain-scoped catalog.
func (s *PGStore) ActiveDomainRoles(ctx context.Context, userID string) ([]RoleContext, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.name, r.metadata
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		  AND ur.is_active
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		  AND r.is_active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoleContexts(rows)
}

// ActiveLegacyRoles implements PrincipalStore over the legacy
// application-scoped catalog kept alive for the migration window.
func (s *PGStore) ActiveLegacyRoles(ctx context.Context, userID string) ([]RoleContext, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ar.name, ar.metadata
		FROM user_app_roles uar
		JOIN app_roles ar ON ar.id = uar.app_role_id
		WHERE uar.user_id = $1
		  AND uar.is_active
		  AND (uar.expires_at IS NULL OR uar.expires_at > NOW())
		  AND ar.is_active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoleContexts(rows)
}

// ActiveDepartments implements PrincipalStore.
func (s *PGStore) ActiveDepartments(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.name
		FROM user_departments ud
		JOIN departments d ON d.id = ud.department_id
		WHERE ud.user_id = $1 AND d.is_active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RoleSetHasPermission implements RBACStore. Both catalogs are consulted so a
// granting role from either schema is sufficient.
func (s *PGStore) RoleSetHasPermission(ctx context.Context, roleNames []string, resourceType, action string) (bool, error) {
	var granted bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM role_permissions rp
			JOIN roles r ON r.id = rp.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE rp.is_active AND r.is_active
			  AND r.name = ANY($1)
			  AND p.resource_type = $2 AND p.action = $3
			UNION ALL
			SELECT 1
			FROM app_role_permissions arp
			JOIN app_roles ar ON ar.id = arp.app_role_id
			JOIN permissions p ON p.id = arp.permission_id
			WHERE arp.is_active AND ar.is_active
			  AND ar.name = ANY($1)
			  AND p.resource_type = $2 AND p.action = $3
		)`, roleNames, resourceType, action).Scan(&granted)
	if err != nil {
		return false, err
	}
	return granted, nil
}

// GrantsFor implements GrantStore.
func (s *PGStore) GrantsFor(ctx context.Context, userID, resourceType, resourceID string) ([]ResourceGrant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, resource_type, resource_id, actions, conditions, expires_at, is_active
		FROM resource_grants
		WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`,
		userID, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []ResourceGrant
	for rows.Next() {
		var (
			g          ResourceGrant
			conditions []byte
			expiresAt  *time.Time
		)
		if err := rows.Scan(&g.UserID, &g.ResourceType, &g.ResourceID, &g.Actions, &conditions, &expiresAt, &g.IsActive); err != nil {
			return nil, err
		}
		g.ExpiresAt = expiresAt
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &g.Conditions); err != nil {
				return nil, fmt.Errorf("authz: decode grant conditions: %w", err)
			}
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// InsertAuditEvent implements AuditWriter. The table is append-only; records
// are never updated or deleted.
func (s *PGStore) InsertAuditEvent(ctx context.Context, event Event) error {
	requestMeta, err := json.Marshal(event.RequestMeta)
	if err != nil {
		return fmt.Errorf("authz: encode request meta: %w", err)
	}
	responseMeta, err := json.Marshal(event.ResponseMeta)
	if err != nil {
		return fmt.Errorf("authz: encode response meta: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO authz_audit_log
			(id, event_type, occurred_at, user_id, resource_type, resource_id,
			 action, decision, reason, engine, request_meta, response_meta,
			 session_id, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''))`,
		event.ID, event.EventType, event.OccurredAt, event.UserID,
		event.ResourceType, event.ResourceID, event.Action,
		string(event.Decision), event.Reason, string(event.Engine),
		requestMeta, responseMeta,
		event.SessionID, event.IP, event.UserAgent)
	return err
}

func scanRoleContexts(rows pgx.Rows) ([]RoleContext, error) {
	var contexts []RoleContext
	for rows.Next() {
		var (
			rc   RoleContext
			meta []byte
		)
		if err := rows.Scan(&rc.Name, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rc.Metadata); err != nil {
				return nil, fmt.Errorf("authz: decode role metadata: %w", err)
			}
		}
		contexts = append(contexts, rc)
	}
	return contexts, rows.Err()
}

var (
	_ PrincipalStore = (*PGStore)(nil)
	_ RBACStore      = (*PGStore)(nil)
	_ GrantStore     = (*PGStore)(nil)
	_ AuditWriter    = (*PGStore)(nil)
)
