package authz

import (
	"context"
	"fmt"
)

// RBACStore answers permission-catalog membership queries.
type RBACStore interface {
	// RoleSetHasPermission reports whether any of the named roles carries an
	// active link to the permission (resourceType, action). Inactive links
	// and inactive roles never grant.
	RoleSetHasPermission(ctx context.Context, roleNames []string, resourceType, action string) (bool, error)
}

// RoleEvaluator answers "does this principal's role set grant
// resourceType:action". RBAC is purely additive: any granting role is
// sufficient and there is no ordering between roles.
type RoleEvaluator struct {
	store RBACStore
}

// NewRoleEvaluator constructs a RoleEvaluator.
func NewRoleEvaluator(store RBACStore) *RoleEvaluator {
	return &RoleEvaluator{store: store}
}

// Evaluate performs the set-membership test for the principal's roles.
func (e *RoleEvaluator) Evaluate(ctx context.Context, principal *Principal, resourceType, action string) (bool, error) {
	if principal == nil || len(principal.Roles) == 0 {
		return false, nil
	}
	if resourceType == "" || action == "" {
		return false, nil
	}
	ok, err := e.store.RoleSetHasPermission(ctx, principal.Roles, resourceType, action)
	if err != nil {
		return false, fmt.Errorf("authz: rbac lookup %s:%s: %w", resourceType, action, err)
	}
	return ok, nil
}
