package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/casedesk/casedesk/internal/audit"
	"github.com/casedesk/casedesk/internal/auth"
	"github.com/casedesk/casedesk/internal/authz"
	"github.com/casedesk/casedesk/internal/grants"
	"github.com/casedesk/casedesk/internal/observability"
	"github.com/casedesk/casedesk/internal/roles"
	"github.com/casedesk/casedesk/internal/shared"
	"github.com/casedesk/casedesk/internal/users"
	"github.com/casedesk/casedesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics

	AuthHandler   *auth.Handler
	AuthzHandler  *authz.Handler
	RolesHandler  *roles.Handler
	GrantsHandler *grants.Handler
	UsersHandler  *users.Handler
	AuditHandler  *audit.Handler
	JobsHandler   *jobs.Handler
}

// NewRouter constructs the chi.Router with casedesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/authz", params.AuthzHandler.MountRoutes)
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.GrantsHandler != nil {
			r.Route("/grants", params.GrantsHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
