// Package authz implements the authorization decision engine for the
// case-management platform: principal context building, role and direct-grant
// evaluation, the remote policy adapter, and decision auditing.
package authz

import (
	"errors"
	"sort"
	"time"
)

// EngineType identifies which evaluation strategy rendered a decision.
type EngineType string

const (
	// EngineLocal evaluates RBAC and direct resource grants from Postgres.
	EngineLocal EngineType = "LOCAL"
	// EngineRemote delegates to the external policy decision point.
	EngineRemote EngineType = "REMOTE"
)

// Outcome is the recorded decision value. Errors never surface as a third
// access level: they are mapped to DENY before anything leaves the service.
type Outcome string

const (
	DecisionAllow Outcome = "ALLOW"
	DecisionDeny  Outcome = "DENY"
)

// BaseRole is the synthetic role every resolved principal carries.
const BaseRole = "authenticated-user"

// Reserved attribute keys that caller-supplied attributes may never overwrite.
const (
	AttrRoles       = "roles"
	AttrDepartments = "departments"
	AttrQueues      = "queues"
)

// Decision reasons. Reason text is stable so that identical checks produce
// identical responses.
const (
	ReasonRoleGrant     = "granted by role permission"
	ReasonResourceGrant = "granted by direct resource grant"
	ReasonBothGrants    = "granted by role permission and direct resource grant"
	ReasonNoGrant       = "no role permission or resource grant matches"
	ReasonRemoteAllow   = "allowed by policy decision point"
	ReasonRemoteDeny    = "denied by policy decision point"
	ReasonPrincipal     = "principal not found or inactive"
	ReasonBadRequest    = "malformed authorization request"
	ReasonEngineFault   = "authorization engine error"
)

// ErrPrincipalNotFound indicates the subject does not resolve to an active
// user record. Callers must treat it as a denial, not a retryable fault.
var ErrPrincipalNotFound = errors.New("authz: principal not found")

// Principal is the immutable attribute bag built per request. Role and
// department membership is volatile, so a Principal is never reused across
// checks.
type Principal struct {
	ID          string
	Roles       []string
	Departments []string
	Queues      []string
	Custom      map[string]any
}

// HasRole reports membership in the deduplicated role set.
func (p *Principal) HasRole(name string) bool {
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Attributes flattens the bag into the map shape sent to the policy decision
// point. Reserved keys always come from the resolved context.
func (p *Principal) Attributes() map[string]any {
	attrs := make(map[string]any, len(p.Custom)+3)
	for k, v := range p.Custom {
		attrs[k] = v
	}
	attrs[AttrRoles] = p.Roles
	attrs[AttrDepartments] = p.Departments
	attrs[AttrQueues] = p.Queues
	return attrs
}

// PrincipalRef identifies the subject of a check request.
type PrincipalRef struct {
	ID         string         `json:"id" validate:"required"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ResourceRef identifies the object of a check request.
type ResourceRef struct {
	Kind       string         `json:"kind" validate:"required"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// CheckRequest is the single request shape every authorization check resolves
// to, whether callers arrive with the full form or only bare identifiers.
type CheckRequest struct {
	Principal PrincipalRef `json:"principal"`
	Resource  ResourceRef  `json:"resource"`
	Action    string       `json:"action" validate:"required"`
}

// PermissionKey returns the catalog key for the requested capability.
func (r CheckRequest) PermissionKey() string {
	return r.Resource.Kind + ":" + r.Action
}

// Decision is the caller-visible outcome of a check. ValidationResult is
// populated only when an engine or adapter fault forced the denial; ordinary
// allow/deny outcomes leave it empty.
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Message          string `json:"message"`
	ValidationResult string `json:"validationResult,omitempty"`
}

// RoleContext is one resolved role of a principal, with the metadata the
// builder mines for queue tags.
type RoleContext struct {
	Name     string
	Metadata map[string]any
}

// ResourceGrant is a direct grant issued to one user for one resource
// instance. Multiple stored rows for the same (user, resource type, resource
// id) are merged into a single grant before evaluation.
type ResourceGrant struct {
	UserID       string
	ResourceType string
	ResourceID   string
	Actions      []string
	Conditions   map[string]any
	ExpiresAt    *time.Time
	IsActive     bool
}

// Allows reports whether the merged action set contains action.
func (g *ResourceGrant) Allows(action string) bool {
	if g == nil {
		return false
	}
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// ValidAt applies the shared validity rule: active and not expired.
func (g *ResourceGrant) ValidAt(now time.Time) bool {
	if g == nil || !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// dedupeSorted returns the sorted unique values of in, dropping empties.
func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
