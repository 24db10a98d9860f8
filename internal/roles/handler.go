package roles

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

// Handler manages the role catalog endpoints.
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

// MountRoutes registers role catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("role", "read"))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
		r.Get("/legacy", h.listAppRoles)
		r.Get("/permissions", h.listPermissions)
		r.Get("/assignments/{userID}", h.listAssignments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("role", "manage"))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Post("/permissions", h.ensurePermission)
		r.Post("/{id}/permissions/{permissionID}", h.attachPermission)
		r.Delete("/{id}/permissions/{permissionID}", h.detachPermission)
		r.Post("/assignments", h.assignRole)
		r.Delete("/assignments/{userID}/{roleID}", h.revokeRole)
	})
}

type createRoleRequest struct {
	Name        string         `json:"name" validate:"required"`
	DisplayName string         `json:"display_name"`
	Domain      string         `json:"domain" validate:"required"`
	Level       string         `json:"level"`
	Metadata    map[string]any `json:"metadata"`
}

type updateRoleRequest struct {
	DisplayName string         `json:"display_name"`
	Level       string         `json:"level"`
	Metadata    map[string]any `json:"metadata"`
	IsActive    *bool          `json:"is_active"`
}

type ensurePermissionRequest struct {
	ResourceType string `json:"resource_type" validate:"required"`
	Action       string `json:"action" validate:"required"`
	Description  string `json:"description"`
}

type assignRoleRequest struct {
	UserID    string     `json:"user_id" validate:"required"`
	RoleID    string     `json:"role_id" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) listAppRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListAppRoles(r.Context(), r.URL.Query().Get("application"))
	if err != nil {
		h.respondError(w, "list app roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Domain:      req.Domain,
		Level:       req.Level,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	current, err := h.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	if req.DisplayName != "" {
		current.DisplayName = req.DisplayName
	}
	if req.Level != "" {
		current.Level = req.Level
	}
	if req.Metadata != nil {
		current.Metadata = req.Metadata
	}
	if req.IsActive != nil {
		current.IsActive = *req.IsActive
	}
	role, err := h.service.UpdateRole(r.Context(), current)
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	var req ensurePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), req.ResourceType, req.Action, req.Description)
	if err != nil {
		h.respondError(w, "ensure permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) attachPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AttachPermission(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "permissionID")); err != nil {
		h.respondError(w, "attach permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DetachPermission(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "permissionID")); err != nil {
		h.respondError(w, "detach permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	assignedBy := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		assignedBy = sess.User()
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, req.RoleID, assignedBy, req.ExpiresAt); err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RevokeRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.ListAssignments(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, "list assignments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignments)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, verb string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	h.logger.Error(fmt.Sprintf("%s failed", verb), slog.Any("error", err))
	httpx.RespondError(w, err)
}
