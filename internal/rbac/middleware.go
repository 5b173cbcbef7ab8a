package rbac

import (
	"log/slog"
	"net/http"

	"github.com/hilite-app/hilite/internal/observability"
	"github.com/hilite-app/hilite/internal/platform/httpx"
	"github.com/hilite-app/hilite/internal/shared"
)

// Middleware gates HTTP handlers on the authorization engine's decision.
type Middleware struct {
	Engine  *Engine
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Authorize consults the engine with the principal's role set and the
// request path. Unauthenticated callers get 401, authenticated but
// unpermitted callers get 403. The role set of an unauthenticated or
// role-less caller is empty and therefore always denied.
func (m Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		var roles []string
		if principal != nil {
			roles = principal.Roles
		}
		allowed := m.Engine.HasPermission(r.Context(), r.URL.Path, roles)
		m.Metrics.RecordAuthzDecision(allowed)
		if allowed {
			next.ServeHTTP(w, r)
			return
		}
		if principal == nil {
			httpx.RespondError(w, r, shared.ErrAuthRequired)
			return
		}
		if m.Logger != nil {
			m.Logger.Info("access denied",
				slog.String("subject", principal.Subject),
				slog.String("path", r.URL.Path))
		}
		httpx.RespondError(w, r, shared.ErrAccessDenied)
	})
}

// RequireRole admits only principals holding the named role. Used for the
// admin surface, which is gated on ROLE_ADMIN rather than stored rules.
func (m Middleware) RequireRole(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, r, shared.ErrAuthRequired)
				return
			}
			if !principal.HasRole(name) {
				httpx.RespondError(w, r, shared.ErrAccessDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
