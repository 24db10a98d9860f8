package authz

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// PrincipalStore loads the membership data a principal context is built from.
// Role resolution keeps two independent read paths while the legacy
// application-scoped catalog and the domain-scoped catalog coexist; both feed
// the same normalized attribute bag.
type PrincipalStore interface {
	// UserActive reports whether the user exists and is active.
	UserActive(ctx context.Context, userID string) (bool, error)
	// ActiveDomainRoles returns currently valid domain-scoped role
	// assignments: active links whose expiry is unset or in the future.
	ActiveDomainRoles(ctx context.Context, userID string) ([]RoleContext, error)
	// ActiveLegacyRoles returns currently valid legacy application-scoped
	// role assignments under the same validity rule.
	ActiveLegacyRoles(ctx context.Context, userID string) ([]RoleContext, error)
	// ActiveDepartments returns the names of active departments the user
	// belongs to.
	ActiveDepartments(ctx context.Context, userID string) ([]string, error)
}

// ContextBuilder assembles the per-request principal attribute bag.
type ContextBuilder struct {
	store PrincipalStore
}

// NewContextBuilder constructs a ContextBuilder.
func NewContextBuilder(store PrincipalStore) *ContextBuilder {
	return &ContextBuilder{store: store}
}

// Build resolves userID into a fresh Principal. Caller-supplied custom
// attributes are merged in, but never overwrite the reserved keys. Returns
// ErrPrincipalNotFound when the user does not resolve to an active record.
func (b *ContextBuilder) Build(ctx context.Context, userID string, custom map[string]any) (*Principal, error) {
	if userID == "" {
		return nil, ErrPrincipalNotFound
	}
	active, err := b.store.UserActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz: resolve user %s: %w", userID, err)
	}
	if !active {
		return nil, ErrPrincipalNotFound
	}

	var (
		domainRoles []RoleContext
		legacyRoles []RoleContext
		departments []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		domainRoles, err = b.store.ActiveDomainRoles(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		legacyRoles, err = b.store.ActiveLegacyRoles(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		departments, err = b.store.ActiveDepartments(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("authz: load principal context for %s: %w", userID, err)
	}

	roles := make([]string, 0, len(domainRoles)+len(legacyRoles)+1)
	queues := make([]string, 0, 4)
	for _, rc := range append(domainRoles, legacyRoles...) {
		roles = append(roles, rc.Name)
		queues = append(queues, queueTags(rc.Metadata)...)
	}
	roles = append(roles, BaseRole)

	p := &Principal{
		ID:          userID,
		Roles:       dedupeSorted(roles),
		Departments: dedupeSorted(departments),
		Queues:      dedupeSorted(queues),
		Custom:      make(map[string]any, len(custom)),
	}
	for k, v := range custom {
		if k == AttrRoles || k == AttrDepartments || k == AttrQueues {
			continue
		}
		p.Custom[k] = v
	}
	return p, nil
}

// queueTags extracts work-item queue names from role metadata. Both the
// singular "queue" tag and the plural "queues" list are honored.
func queueTags(meta map[string]any) []string {
	if len(meta) == 0 {
		return nil
	}
	var tags []string
	if q, ok := meta["queue"].(string); ok && q != "" {
		tags = append(tags, q)
	}
	switch qs := meta["queues"].(type) {
	case []string:
		tags = append(tags, qs...)
	case []any:
		for _, v := range qs {
			if s, ok := v.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
	}
	return tags
}
