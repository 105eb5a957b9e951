package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/jeton/internal/audit"
	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/catalog"
	"github.com/alecgard/jeton/internal/dispatch"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/metrics"
	"github.com/alecgard/jeton/internal/provider"
	"github.com/alecgard/jeton/internal/ratelimit"
	"github.com/alecgard/jeton/internal/user"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Dispatcher     *dispatch.Dispatcher
	Ledger         *ledger.Ledger
	Usage          audit.Reader
	Catalog        *catalog.Catalog
	Availability   Availability
	Providers      *provider.Switcher
	Users          *user.Service
	Auth           *auth.Service
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics // optional
	AdminKeyHash   string
	AllowedOrigins []string
	// HealthCheck pings the storage backend. Nil reports healthy.
	HealthCheck func(ctx context.Context) error
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(slogRequestLogger)

	// Handlers.
	ai := newAIHandler(deps.Dispatcher)
	points := newPointsHandler(deps.Ledger)
	usage := newUsageHandler(deps.Usage)
	functions := newFunctionsHandler(deps.Catalog, deps.Availability)
	providers := newProviderHandler(deps.Providers)
	users := newUsersHandler(deps.Users, deps.Ledger)

	var rlMetrics ratelimit.MetricsRecorder
	if deps.Metrics != nil {
		rlMetrics = deps.Metrics
		r.Handle("/metrics", deps.Metrics.PrometheusHandler())
	}

	r.Get("/health", healthHandler(deps.HealthCheck))
	r.Get("/.well-known/jeton.json", WellKnownHandler)

	r.Route("/api/v1", func(api chi.Router) {
		// Public (unauthenticated) routes.
		api.Get("/functions", functions.ListFunctions)
		api.Get("/functions/points", functions.GetPoints)
		api.Get("/functions/categories", functions.GetCategories)
		api.Get("/provider", providers.GetProvider)

		// User routes (API key + rate limiting).
		api.Group(func(ur chi.Router) {
			ur.Use(auth.UserAuthMiddleware(deps.Auth))
			ur.Use(ratelimit.Middleware(deps.Limiter, rlMetrics))

			ur.Get("/me", users.GetSelf)
			ur.Post("/ai/movie-clip/plan", ai.PlanMovieClip)
			ur.Post("/ai/{function}", ai.Invoke)
			ur.Get("/points", points.GetBalance)
			ur.Get("/transactions", points.ListTransactions)
			ur.Get("/transactions/totals", points.GetTotals)
			ur.Get("/usage", usage.ListUsage)
			ur.Get("/usage/stats", usage.GetStats)
		})

		// Admin routes (require admin key).
		api.Route("/admin", func(ar chi.Router) {
			ar.Use(auth.AdminAuthMiddleware(deps.Auth, deps.AdminKeyHash))

			ar.Post("/users", users.CreateUser)
			ar.Get("/users", users.ListUsers)
			ar.Get("/users/{id}", users.GetUser)
			ar.Post("/users/{id}/credit", users.Credit)
			ar.Post("/provider", providers.SwitchProvider)
			if deps.Metrics != nil {
				ar.Get("/metrics", deps.Metrics.Handler())
			}
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "degraded",
					"database": "unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
	}
}
