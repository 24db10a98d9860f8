package authz

import (
	"context"
	"time"
)

// Verdict is an engine's internal answer before the orchestrator shapes the
// caller-visible Decision.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Engine is the pluggable evaluation strategy. Exactly one implementation is
// bound per process instance, chosen from configuration at startup.
type Engine interface {
	// Name identifies the strategy for audit records and introspection.
	Name() EngineType
	// Evaluate renders a verdict for the request given the resolved
	// principal. An error means the engine could not decide; the
	// orchestrator converts it into a denial.
	Evaluate(ctx context.Context, req CheckRequest, principal *Principal) (Verdict, error)
	// Ping probes the engine's backing dependency for the health surface.
	Ping(ctx context.Context) error
}

// LocalEngine combines role-based and direct-resource-grant evaluation. The
// decision is the logical OR of the two sources.
type LocalEngine struct {
	roles  *RoleEvaluator
	grants *GrantEvaluator
	pinger func(ctx context.Context) error
	now    func() time.Time
}

// NewLocalEngine constructs a LocalEngine. pinger probes the relational
// store for health reporting and may be nil.
func NewLocalEngine(roles *RoleEvaluator, grants *GrantEvaluator, pinger func(ctx context.Context) error) *LocalEngine {
	return &LocalEngine{
		roles:  roles,
		grants: grants,
		pinger: pinger,
		now:    time.Now,
	}
}

// Name implements Engine.
func (e *LocalEngine) Name() EngineType { return EngineLocal }

// Evaluate implements Engine. Either an RBAC grant or a direct resource grant
// is sufficient; the reason distinguishes which source granted.
func (e *LocalEngine) Evaluate(ctx context.Context, req CheckRequest, principal *Principal) (Verdict, error) {
	byRole, err := e.roles.Evaluate(ctx, principal, req.Resource.Kind, req.Action)
	if err != nil {
		return Verdict{}, err
	}
	byGrant, _, err := e.grants.Evaluate(ctx, principal.ID, req.Resource.Kind, req.Resource.ID, req.Action, e.now())
	if err != nil {
		return Verdict{}, err
	}

	switch {
	case byRole && byGrant:
		return Verdict{Allowed: true, Reason: ReasonBothGrants}, nil
	case byRole:
		return Verdict{Allowed: true, Reason: ReasonRoleGrant}, nil
	case byGrant:
		return Verdict{Allowed: true, Reason: ReasonResourceGrant}, nil
	default:
		return Verdict{Allowed: false, Reason: ReasonNoGrant}, nil
	}
}

// Ping implements Engine.
func (e *LocalEngine) Ping(ctx context.Context) error {
	if e.pinger == nil {
		return nil
	}
	return e.pinger(ctx)
}
