package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

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

// Issue inserts a grant, merging into an existing row for the same
// (user, resource type, resource id) so the triple stays unique.
func (r *Repository) Issue(ctx context.Context, grant Grant) (Grant, error) {
	conditions, err := json.Marshal(grant.Conditions)
	if err != nil {
		return Grant{}, fmt.Errorf("grants: encode conditions: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO resource_grants
			(id, user_id, resource_type, resource_id, actions, conditions,
			 granted_by, granted_at, expires_at, is_active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NULLIF($6, ''), NOW(), $7, TRUE)
		ON CONFLICT (user_id, resource_type, resource_id) DO UPDATE SET
			actions = ARRAY(SELECT DISTINCT unnest(resource_grants.actions || EXCLUDED.actions) ORDER BY 1),
			conditions = resource_grants.conditions || EXCLUDED.conditions,
			granted_by = EXCLUDED.granted_by,
			granted_at = NOW(),
			expires_at = EXCLUDED.expires_at,
			is_active = TRUE
		RETURNING id, user_id, resource_type, resource_id, actions, conditions,
			COALESCE(granted_by, ''), granted_at, expires_at, is_active`,
		grant.UserID, grant.ResourceType, grant.ResourceID, grant.Actions,
		conditions, grant.GrantedBy, grant.ExpiresAt)
	return scanGrant(row)
}

// Revoke deactivates a grant. Rows are kept for audit history.
func (r *Repository) Revoke(ctx context.Context, userID, resourceType, resourceID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE resource_grants SET is_active = FALSE
		WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`,
		userID, resourceType, resourceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns every grant row held by a user, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, resource_type, resource_id, actions, conditions,
			COALESCE(granted_by, ''), granted_at, expires_at, is_active
		FROM resource_grants
		WHERE user_id = $1
		ORDER BY granted_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanGrant(row scannable) (Grant, error) {
	var (
		g          Grant
		conditions []byte
		expiresAt  *time.Time
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.ResourceType, &g.ResourceID, &g.Actions, &conditions, &g.GrantedBy, &g.GrantedAt, &expiresAt, &g.IsActive); err != nil {
		return Grant{}, err
	}
	g.ExpiresAt = expiresAt
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &g.Conditions); err != nil {
			return Grant{}, fmt.Errorf("grants: decode conditions: %w", err)
		}
	}
	return g, nil
}
