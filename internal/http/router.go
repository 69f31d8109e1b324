package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docqa/internal/handlers"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Query    *handlers.QueryHandler
	Admin    *handlers.AdminHandler
	Sessions *handlers.SessionHandler
	Health   *handlers.HealthHandler
	Limiter  *RateLimiter
	Logger   *slog.Logger
}

// NewRouter creates the HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORS)
	r.Use(Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/query", func(r chi.Router) {
			if deps.Limiter != nil {
				r.Use(deps.Limiter.Middleware)
			}
			r.Post("/global", deps.Query.Global)
			r.Post("/selection", deps.Query.Selection)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reindex", deps.Admin.Reindex)
			r.Get("/reindex/status", deps.Admin.ReindexStatus)
		})

		if deps.Sessions != nil {
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/{sessionID}", deps.Sessions.Get)
				r.Delete("/{sessionID}", deps.Sessions.Delete)
			})
		}
	})

	r.Get("/api/health", deps.Health.Check)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
