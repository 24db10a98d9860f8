package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casedesk/casedesk/internal/shared"
)

func guardedEndpoint(s *Service) http.Handler {
	mw := Middleware{Service: s}
	return mw.Require("case", "read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func sessionRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	sess := &shared.Session{}
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestRequireWithoutSessionUser(t *testing.T) {
	s := newTestService(&stubEngine{verdict: Verdict{Allowed: true}}, &stubPrincipalStore{active: true}, nil)
	rr := httptest.NewRecorder()
	guardedEndpoint(s).ServeHTTP(rr, sessionRequest(""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRequireDenied(t *testing.T) {
	s := newTestService(
		&stubEngine{verdict: Verdict{Allowed: false, Reason: ReasonNoGrant}},
		&stubPrincipalStore{active: true},
		&captureRecorder{},
	)
	rr := httptest.NewRecorder()
	guardedEndpoint(s).ServeHTTP(rr, sessionRequest("alice"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRequireAllowed(t *testing.T) {
	s := newTestService(
		&stubEngine{verdict: Verdict{Allowed: true, Reason: ReasonRoleGrant}},
		&stubPrincipalStore{active: true},
		&captureRecorder{},
	)
	rr := httptest.NewRecorder()
	guardedEndpoint(s).ServeHTTP(rr, sessionRequest("alice"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
