package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hilite-app/hilite/internal/accounts"
	"github.com/hilite-app/hilite/internal/auth"
	"github.com/hilite-app/hilite/internal/observability"
	"github.com/hilite-app/hilite/internal/rbac"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	AccountsHandler *accounts.Handler
	RBACHandler     *rbac.Handler
	AuthPipeline    auth.Pipeline
	RBACMiddleware  rbac.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router. Public routes sit at the root, the
// authenticated API lives under /api with path-based authorization, and the
// admin surface under /api/admin additionally requires ROLE_ADMIN.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.AuthHandler.MountRoutes(r)

	r.Route("/api", func(r chi.Router) {
		r.Use(params.AuthPipeline.Middleware)

		// Admin routes are gated on the admin role alone, so a fresh
		// deployment can manage permission rules before any exist.
		r.Route("/admin", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireRole(rbac.DefaultRoleAdmin))
			params.RBACHandler.MountRoutes(r)
			params.AccountsHandler.MountAdminRoutes(r)
		})

		// Everything else under /api is authorized against the dynamic
		// permission rules.
		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.Authorize)
			params.AccountsHandler.MountMemberRoutes(r)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
