package grants

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/casedesk/casedesk/internal/authz"
	"github.com/casedesk/casedesk/internal/platform/httpx"
	"github.com/casedesk/casedesk/internal/shared"
)

// Handler manages the grant administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("grant", "read"))
		r.Get("/users/{userID}", h.listForUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("grant", "manage"))
		r.Post("/", h.issue)
		r.Delete("/users/{userID}/{resourceType}/{resourceID}", h.revoke)
	})
}

type issueRequest struct {
	UserID       string         `json:"user_id" validate:"required"`
	ResourceType string         `json:"resource_type" validate:"required"`
	ResourceID   string         `json:"resource_id" validate:"required"`
	Actions      []string       `json:"actions" validate:"required,min=1"`
	Conditions   map[string]any `json:"conditions"`
	ExpiresAt    *time.Time     `json:"expires_at"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	grantedBy := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		grantedBy = sess.User()
	}
	grant, err := h.service.Issue(r.Context(), Grant{
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Actions:      req.Actions,
		Conditions:   req.Conditions,
		GrantedBy:    grantedBy,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		h.respondError(w, "issue grant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	err := h.service.Revoke(r.Context(),
		chi.URLParam(r, "userID"),
		chi.URLParam(r, "resourceType"),
		chi.URLParam(r, "resourceID"))
	if err != nil {
		h.respondError(w, "revoke grant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.ListForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, "list grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) respondError(w http.ResponseWriter, verb string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	h.logger.Error(fmt.Sprintf("%s failed", verb), slog.Any("error", err))
	httpx.RespondError(w, err)
}
