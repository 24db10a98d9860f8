package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed reads over authz_audit_log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `
	id, event_type, occurred_at, user_id, resource_type, resource_id,
	action, decision, reason, engine, request_meta, response_meta,
	COALESCE(session_id, ''), COALESCE(ip, ''), COALESCE(user_agent, '')`

const timelineFilter = `
	($1::timestamptz IS NULL OR occurred_at >= $1)
	AND ($2::timestamptz IS NULL OR occurred_at <= $2)
	AND ($3 = '' OR user_id = $3)
	AND ($4 = '' OR decision = $4)
	AND ($5 = '' OR engine = $5)`

// TimelineWindow returns one page of entries, newest first. limit rows are
// requested; callers ask for one extra row to detect a next page.
func (r *Repository) TimelineWindow(ctx context.Context, f TimelineFilters, offset, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM authz_audit_log
		WHERE `+timelineFilter+`
		ORDER BY occurred_at DESC
		OFFSET $6 LIMIT $7`,
		nullTime(f.From), nullTime(f.To), f.UserID, f.Decision, f.Engine, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// TimelineAll returns every matching entry without paging, for export.
func (r *Repository) TimelineAll(ctx context.Context, f TimelineFilters) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM authz_audit_log
		WHERE `+timelineFilter+`
		ORDER BY occurred_at DESC`,
		nullTime(f.From), nullTime(f.To), f.UserID, f.Decision, f.Engine)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e            Entry
			requestMeta  []byte
			responseMeta []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.OccurredAt, &e.UserID,
			&e.ResourceType, &e.ResourceID, &e.Action, &e.Decision, &e.Reason,
			&e.Engine, &requestMeta, &responseMeta, &e.SessionID, &e.IP, &e.UserAgent); err != nil {
			return nil, err
		}
		if len(requestMeta) > 0 {
			if err := json.Unmarshal(requestMeta, &e.RequestMeta); err != nil {
				return nil, fmt.Errorf("audit: decode request meta: %w", err)
			}
		}
		if len(responseMeta) > 0 {
			if err := json.Unmarshal(responseMeta, &e.ResponseMeta); err != nil {
				return nil, fmt.Errorf("audit: decode response meta: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
