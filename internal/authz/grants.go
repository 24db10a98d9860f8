package authz

import (
	"context"
	"fmt"
	"time"
)

// GrantStore loads direct resource grants.
type GrantStore interface {
	// GrantsFor returns every stored grant row for the exact
	// (user, resourceType, resourceID) triple, valid or not. The evaluator
	// applies the validity rule so that expiry is judged against one "now".
	GrantsFor(ctx context.Context, userID, resourceType, resourceID string) ([]ResourceGrant, error)
}

// GrantEvaluator answers "has a grant been issued directly to this principal
// for this exact resource instance and action".
type GrantEvaluator struct {
	store GrantStore
}

// NewGrantEvaluator constructs a GrantEvaluator.
func NewGrantEvaluator(store GrantStore) *GrantEvaluator {
	return &GrantEvaluator{store: store}
}

// Evaluate merges the valid grant rows for the triple and tests action
// membership. Grant conditions are carried on the returned grant but not
// evaluated here.
// TODO: evaluate grant conditions (time-of-day, delegation constraints) once
// the condition vocabulary is settled with the workflow team.
func (e *GrantEvaluator) Evaluate(ctx context.Context, userID, resourceType, resourceID, action string, now time.Time) (bool, *ResourceGrant, error) {
	if userID == "" || resourceType == "" || resourceID == "" || action == "" {
		return false, nil, nil
	}
	rows, err := e.store.GrantsFor(ctx, userID, resourceType, resourceID)
	if err != nil {
		return false, nil, fmt.Errorf("authz: grant lookup %s/%s for %s: %w", resourceType, resourceID, userID, err)
	}
	merged := mergeGrants(rows, now)
	if merged == nil {
		return false, nil, nil
	}
	return merged.Allows(action), merged, nil
}

// mergeGrants unions the action sets and conditions of all rows valid at now.
// Returns nil when no row is valid.
func mergeGrants(rows []ResourceGrant, now time.Time) *ResourceGrant {
	var merged *ResourceGrant
	noExpiry := false
	for i := range rows {
		row := &rows[i]
		if !row.ValidAt(now) {
			continue
		}
		if merged == nil {
			merged = &ResourceGrant{
				UserID:       row.UserID,
				ResourceType: row.ResourceType,
				ResourceID:   row.ResourceID,
				ExpiresAt:    row.ExpiresAt,
				IsActive:     true,
			}
			noExpiry = row.ExpiresAt == nil
		} else if row.ExpiresAt == nil {
			noExpiry = true
		} else if !noExpiry && row.ExpiresAt.After(*merged.ExpiresAt) {
			// Keep the furthest expiry so the merged grant stays valid as
			// long as any contributing row is.
			merged.ExpiresAt = row.ExpiresAt
		}
		merged.Actions = append(merged.Actions, row.Actions...)
		for k, v := range row.Conditions {
			if merged.Conditions == nil {
				merged.Conditions = make(map[string]any)
			}
			merged.Conditions[k] = v
		}
	}
	if merged != nil {
		if noExpiry {
			merged.ExpiresAt = nil
		}
		merged.Actions = dedupeSorted(merged.Actions)
	}
	return merged
}
