package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/assets"
	"github.com/atlas-ops/atlas-ops/internal/auth"
	"github.com/atlas-ops/atlas-ops/internal/observability"
	"github.com/atlas-ops/atlas-ops/internal/onboarding"
	"github.com/atlas-ops/atlas-ops/internal/users"
	"github.com/atlas-ops/atlas-ops/internal/vendors"
	"github.com/atlas-ops/atlas-ops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthMiddleware    *auth.Middleware
	AccessMiddleware  access.Middleware
	AuthHandler       *auth.Handler
	UsersHandler      *users.Handler
	AssetsHandler     *assets.Handler
	VendorsHandler    *vendors.Handler
	OnboardingHandler *onboarding.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Atlas defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		// Token verification runs for every API request; a valid bearer
		// token attaches the principal, everything else passes through
		// anonymous and fails at the guards.
		if params.AuthMiddleware != nil {
			api.Use(params.AuthMiddleware.Principal)
		}

		if params.AuthHandler != nil && params.AuthMiddleware != nil {
			api.Route("/auth", func(ar chi.Router) {
				params.AuthHandler.MountRoutes(ar,
					params.AuthMiddleware.RequireAuth,
					params.AccessMiddleware.RequireRole(access.RoleAdmin))
			})
		}

		api.Group(func(protected chi.Router) {
			if params.AuthMiddleware != nil {
				protected.Use(params.AuthMiddleware.RequireAuth)
			}
			if params.UsersHandler != nil {
				protected.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.AssetsHandler != nil {
				protected.Route("/assets", params.AssetsHandler.MountRoutes)
			}
			if params.VendorsHandler != nil {
				protected.Route("/vendors", params.VendorsHandler.MountRoutes)
			}
			if params.OnboardingHandler != nil {
				protected.Route("/onboarding", params.OnboardingHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				protected.Route("/jobs", func(jr chi.Router) {
					jr.Use(params.AccessMiddleware.RequireRole(access.RoleAdmin))
					params.JobHandler.MountRoutes(jr)
				})
			}
		})
	})

	return r
}
