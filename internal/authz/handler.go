package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casedesk/casedesk/internal/platform/httpx"
	"github.com/casedesk/casedesk/internal/shared"
)

// Handler exposes the check and introspection endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches the authorization endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/check/simple", h.checkSimple)
	r.Get("/health", h.health)
}

type simpleCheckRequest struct {
	UserID       string `json:"user_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Action       string `json:"action"`
}

// check accepts the full request shape. Shape violations still produce a
// decision, not a transport error: the orchestrator denies malformed requests
// with a reason, and that denial is what gets returned and audited.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	decision := h.service.CheckAuthorization(r.Context(), req, requestContext(r))
	httpx.JSON(w, http.StatusOK, decision)
}

// checkSimple serves callers that only hold bare identifiers.
func (h *Handler) checkSimple(w http.ResponseWriter, r *http.Request) {
	var req simpleCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	decision := h.service.CheckUserPermission(r.Context(), req.UserID, req.ResourceType, req.ResourceID, req.Action, requestContext(r))
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := h.service.Health(r.Context())
	code := http.StatusOK
	if !status.DependencyOK {
		code = http.StatusServiceUnavailable
	}
	httpx.JSON(w, code, status)
}

// requestContext collects forensic correlation data for the audit record.
func requestContext(r *http.Request) RequestContext {
	rc := RequestContext{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		rc.SessionID = sess.ID
	}
	return rc
}
