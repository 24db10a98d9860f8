package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DecisionObserver receives every rendered decision for metrics.
type DecisionObserver interface {
	ObserveDecision(engine string, allowed bool)
}

// Service is the decision orchestrator and the single entry point consumed by
// callers. It holds exactly one evaluation strategy, enforces fail-secure
// error handling, and records every decision.
type Service struct {
	engine     Engine
	principals *ContextBuilder
	recorder   Recorder
	logger     *slog.Logger
	observer   DecisionObserver
	now        func() time.Time

	health singleflight.Group
}

// NewService constructs the orchestrator. observer may be nil.
func NewService(engine Engine, principals *ContextBuilder, recorder Recorder, logger *slog.Logger, observer DecisionObserver) *Service {
	return &Service{
		engine:     engine,
		principals: principals,
		recorder:   recorder,
		logger:     logger,
		observer:   observer,
		now:        time.Now,
	}
}

// RequestContext carries forensic correlation data for the audit record. All
// fields are optional.
type RequestContext struct {
	SessionID string
	IP        string
	UserAgent string
}

// CheckAuthorization answers "may principal P perform action A on resource R".
// Every internal fault is converted into a denial at this boundary; the only
// outcomes are allow and deny.
func (s *Service) CheckAuthorization(ctx context.Context, req CheckRequest, rc RequestContext) (decision Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			if s.logger != nil {
				s.logger.Error("authorization check panicked", slog.Any("panic", rec))
			}
			decision = s.finish(ctx, req, rc, Decision{
				Allowed:          false,
				Message:          ReasonEngineFault,
				ValidationResult: fmt.Sprintf("internal fault: %v", rec),
			})
		}
	}()

	if req.Action == "" || req.Resource.Kind == "" || req.Principal.ID == "" {
		return s.finish(ctx, req, rc, Decision{Allowed: false, Message: ReasonBadRequest})
	}

	principal, err := s.principals.Build(ctx, req.Principal.ID, req.Principal.Attributes)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return s.finish(ctx, req, rc, Decision{Allowed: false, Message: ReasonPrincipal})
		}
		if s.logger != nil {
			s.logger.Error("build principal context", slog.String("user_id", req.Principal.ID), slog.Any("error", err))
		}
		return s.finish(ctx, req, rc, Decision{
			Allowed:          false,
			Message:          ReasonEngineFault,
			ValidationResult: err.Error(),
		})
	}

	verdict, err := s.engine.Evaluate(ctx, req, principal)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("engine check failed",
				slog.String("engine", string(s.engine.Name())),
				slog.String("user_id", req.Principal.ID),
				slog.String("permission", req.PermissionKey()),
				slog.Any("error", err))
		}
		return s.finish(ctx, req, rc, Decision{
			Allowed:          false,
			Message:          ReasonEngineFault,
			ValidationResult: err.Error(),
		})
	}

	return s.finish(ctx, req, rc, Decision{Allowed: verdict.Allowed, Message: verdict.Reason})
}

// CheckUserPermission is the convenience operation for callers holding only
// bare identifiers. It resolves to the same request shape internally.
func (s *Service) CheckUserPermission(ctx context.Context, userID, resourceType, resourceID, action string, rc RequestContext) Decision {
	return s.CheckAuthorization(ctx, CheckRequest{
		Principal: PrincipalRef{ID: userID},
		Resource:  ResourceRef{Kind: resourceType, ID: resourceID},
		Action:    action,
	}, rc)
}

// finish records the decision and updates metrics before returning it.
// Recording is fire and forget: the recorder never alters the decision.
func (s *Service) finish(ctx context.Context, req CheckRequest, rc RequestContext, d Decision) Decision {
	outcome := DecisionDeny
	if d.Allowed {
		outcome = DecisionAllow
	}
	if s.observer != nil {
		s.observer.ObserveDecision(string(s.engine.Name()), d.Allowed)
	}
	if s.recorder != nil {
		event := Event{
			EventType:    EventTypeCheck,
			OccurredAt:   s.now().UTC(),
			UserID:       req.Principal.ID,
			ResourceType: req.Resource.Kind,
			ResourceID:   req.Resource.ID,
			Action:       req.Action,
			Decision:     outcome,
			Reason:       d.Message,
			Engine:       s.engine.Name(),
			SessionID:    rc.SessionID,
			IP:           rc.IP,
			UserAgent:    rc.UserAgent,
		}
		if len(req.Principal.Attributes) > 0 || len(req.Resource.Attributes) > 0 {
			event.RequestMeta = map[string]any{}
			if len(req.Principal.Attributes) > 0 {
				event.RequestMeta["principal_attributes"] = req.Principal.Attributes
			}
			if len(req.Resource.Attributes) > 0 {
				event.RequestMeta["resource_attributes"] = req.Resource.Attributes
			}
		}
		if d.ValidationResult != "" {
			event.ResponseMeta = map[string]any{"validation_result": d.ValidationResult}
		}
		s.recorder.Record(ctx, event)
	}
	return d
}

// HealthStatus reports which strategy is active and whether its dependency
// currently answers. Consumed by operational dashboards, never by the
// decision path.
type HealthStatus struct {
	Engine       EngineType `json:"engine"`
	DependencyOK bool       `json:"dependency_ok"`
	Detail       string     `json:"detail,omitempty"`
}

// Health probes the active engine's dependency. Concurrent probes are
// collapsed so dashboards cannot stampede the database or the decision point.
func (s *Service) Health(ctx context.Context) HealthStatus {
	v, _, _ := s.health.Do("ping", func() (any, error) {
		status := HealthStatus{Engine: s.engine.Name(), DependencyOK: true}
		if err := s.engine.Ping(ctx); err != nil {
			status.DependencyOK = false
			status.Detail = err.Error()
		}
		return status, nil
	})
	return v.(HealthStatus)
}
