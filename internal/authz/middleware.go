package authz

import (
	"log/slog"
	"net/http"

	"github.com/casedesk/casedesk/internal/shared"
)

// Middleware guards HTTP handlers with authorization checks against the
// configured engine.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the session user may perform action on the resource type.
// Denials, including engine faults, map to 403: the decision engine never
// yields anything but allow or deny.
func (m Middleware) Require(resourceType, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			rc := RequestContext{SessionID: sess.ID, IP: r.RemoteAddr, UserAgent: r.UserAgent()}
			decision := m.Service.CheckUserPermission(r.Context(), sess.User(), resourceType, "", action, rc)
			if !decision.Allowed {
				if m.Logger != nil {
					m.Logger.Warn("request denied",
						slog.String("user_id", sess.User()),
						slog.String("permission", resourceType+":"+action),
						slog.String("reason", decision.Message))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
