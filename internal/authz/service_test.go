package authz

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubEngine struct {
	verdict Verdict
	err     error
	panics  bool
	pingErr error
	calls   int
}

func (e *stubEngine) Name() EngineType { return EngineLocal }

func (e *stubEngine) Evaluate(ctx context.Context, req CheckRequest, principal *Principal) (Verdict, error) {
	e.calls++
	if e.panics {
		panic("boom")
	}
	return e.verdict, e.err
}

func (e *stubEngine) Ping(ctx context.Context) error { return e.pingErr }

type captureRecorder struct {
	events []Event
}

func (r *captureRecorder) Record(ctx context.Context, event Event) {
	r.events = append(r.events, event)
}

func newTestService(engine Engine, store PrincipalStore, rec Recorder) *Service {
	s := NewService(engine, NewContextBuilder(store), rec, nil, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestCheckAuthorizationAllow(t *testing.T) {
	rec := &captureRecorder{}
	s := newTestService(
		&stubEngine{verdict: Verdict{Allowed: true, Reason: ReasonRoleGrant}},
		&stubPrincipalStore{active: true},
		rec,
	)

	d := s.CheckAuthorization(context.Background(), checkReq(), RequestContext{SessionID: "s1"})
	if !d.Allowed || d.Message != ReasonRoleGrant || d.ValidationResult != "" {
		t.Fatalf("decision = %+v", d)
	}
	if len(rec.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Decision != DecisionAllow || ev.UserID != "alice" || ev.SessionID != "s1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestCheckAuthorizationMalformed(t *testing.T) {
	engine := &stubEngine{verdict: Verdict{Allowed: true, Reason: ReasonRoleGrant}}
	rec := &captureRecorder{}
	s := newTestService(engine, &stubPrincipalStore{active: true}, rec)

	req := checkReq()
	req.Action = ""
	d := s.CheckAuthorization(context.Background(), req, RequestContext{})
	if d.Allowed || d.Message != ReasonBadRequest {
		t.Fatalf("decision = %+v", d)
	}
	if engine.calls != 0 {
		t.Fatal("engine consulted for malformed request")
	}
	if len(rec.events) != 1 || rec.events[0].Decision != DecisionDeny {
		t.Fatal("malformed request denial must still be audited")
	}
}

func TestCheckAuthorizationPrincipalNotFound(t *testing.T) {
	rec := &captureRecorder{}
	s := newTestService(
		&stubEngine{verdict: Verdict{Allowed: true, Reason: ReasonRoleGrant}},
		&stubPrincipalStore{active: false},
		rec,
	)

	d := s.CheckAuthorization(context.Background(), checkReq(), RequestContext{})
	if d.Allowed || d.Message != ReasonPrincipal {
		t.Fatalf("decision = %+v", d)
	}
	if d.ValidationResult != "" {
		t.Fatal("a missing principal is a denial, not an engine fault")
	}
}

func TestCheckAuthorizationEngineFault(t *testing.T) {
	rec := &captureRecorder{}
	s := newTestService(
		&stubEngine{err: errors.New("authz: call pdp: connection refused")},
		&stubPrincipalStore{active: true},
		rec,
	)

	d := s.CheckAuthorization(context.Background(), checkReq(), RequestContext{})
	if d.Allowed || d.Message != ReasonEngineFault {
		t.Fatalf("decision = %+v", d)
	}
	if d.ValidationResult == "" {
		t.Fatal("engine faults must carry a diagnostic")
	}
	if len(rec.events) != 1 || rec.events[0].ResponseMeta["validation_result"] == nil {
		t.Fatal("diagnostic missing from audit record")
	}
}

func TestCheckAuthorizationPanicRecovered(t *testing.T) {
	rec := &captureRecorder{}
	s := newTestService(&stubEngine{panics: true}, &stubPrincipalStore{active: true}, rec)

	d := s.CheckAuthorization(context.Background(), checkReq(), RequestContext{})
	if d.Allowed || d.Message != ReasonEngineFault {
		t.Fatalf("decision = %+v", d)
	}
	if len(rec.events) != 1 || rec.events[0].Decision != DecisionDeny {
		t.Fatal("recovered panic must still be audited as a denial")
	}
}

func TestCheckAuthorizationIdempotent(t *testing.T) {
	s := newTestService(
		&stubEngine{verdict: Verdict{Allowed: false, Reason: ReasonNoGrant}},
		&stubPrincipalStore{active: true},
		&captureRecorder{},
	)

	first := s.CheckAuthorization(context.Background(), checkReq(), RequestContext{})
	second := s.CheckAuthorization(context.Background(), checkReq(), RequestContext{})
	if first != second {
		t.Fatalf("decisions diverged: %+v vs %+v", first, second)
	}
}

func TestCheckAuthorizationAuditFailureDoesNotAlterDecision(t *testing.T) {
	done := make(chan struct{})
	failures := 0
	rec := NewSyncRecorder(failingWriter{}, nil, func() {
		failures++
		close(done)
	})
	s := newTestService(
		&stubEngine{verdict: Verdict{Allowed: true, Reason: ReasonRoleGrant}},
		&stubPrincipalStore{active: true},
		rec,
	)

	d := s.CheckAuthorization(context.Background(), checkReq(), RequestContext{})
	if !d.Allowed {
		t.Fatal("audit failure must not flip the decision")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit failure callback never fired")
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
}

type failingWriter struct{}

func (failingWriter) InsertAuditEvent(ctx context.Context, event Event) error {
	return errors.New("audit: table missing")
}

func TestCheckUserPermission(t *testing.T) {
	rec := &captureRecorder{}
	s := newTestService(
		&stubEngine{verdict: Verdict{Allowed: true, Reason: ReasonResourceGrant}},
		&stubPrincipalStore{active: true},
		rec,
	)

	d := s.CheckUserPermission(context.Background(), "alice", "case", "42", "read", RequestContext{})
	if !d.Allowed {
		t.Fatalf("decision = %+v", d)
	}
	ev := rec.events[0]
	if ev.ResourceType != "case" || ev.ResourceID != "42" || ev.Action != "read" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestHealthReportsEngineAndDependency(t *testing.T) {
	s := newTestService(&stubEngine{}, &stubPrincipalStore{active: true}, nil)
	status := s.Health(context.Background())
	if status.Engine != EngineLocal || !status.DependencyOK {
		t.Fatalf("status = %+v", status)
	}

	down := newTestService(&stubEngine{pingErr: errors.New("dial tcp: refused")}, &stubPrincipalStore{active: true}, nil)
	status = down.Health(context.Background())
	if status.DependencyOK || status.Detail == "" {
		t.Fatalf("status = %+v", status)
	}
}
