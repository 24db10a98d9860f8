package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates that the requested grant does not exist.
var ErrNotFound = errors.New("grants: not found")

// Store abstracts persistence so the service can be tested with a stub.
type Store interface {
	Issue(ctx context.Context, grant Grant) (Grant, error)
	Revoke(ctx context.Context, userID, resourceType, resourceID string) error
	ListForUser(ctx context.Context, userID string) ([]Grant, error)
}

// Service orchestrates direct resource grant administration.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Issue validates and persists a grant. The allowed-actions set must be
// non-empty; duplicates are collapsed.
func (s *Service) Issue(ctx context.Context, grant Grant) (Grant, error) {
	grant.UserID = strings.TrimSpace(grant.UserID)
	grant.ResourceType = strings.TrimSpace(grant.ResourceType)
	grant.ResourceID = strings.TrimSpace(grant.ResourceID)
	if grant.UserID == "" || grant.ResourceType == "" || grant.ResourceID == "" {
		return Grant{}, errors.New("grants: user, resource type, and resource id required")
	}
	actions := dedupe(grant.Actions)
	if len(actions) == 0 {
		return Grant{}, errors.New("grants: at least one action required")
	}
	grant.Actions = actions
	if grant.ExpiresAt != nil && !grant.ExpiresAt.After(time.Now()) {
		return Grant{}, fmt.Errorf("grants: expiry %s is in the past", grant.ExpiresAt.Format(time.RFC3339))
	}
	return s.store.Issue(ctx, grant)
}

// Revoke deactivates a grant. The revocation takes effect on the very next
// authorization check.
func (s *Service) Revoke(ctx context.Context, userID, resourceType, resourceID string) error {
	return s.store.Revoke(ctx, userID, resourceType, resourceID)
}

// ListForUser returns the grant rows held by a user.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Grant, error) {
	return s.store.ListForUser(ctx, userID)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

var _ Store = (*Repository)(nil)
