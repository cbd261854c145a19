package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"planbase/internal/middleware"
)

// RouterConfig carries the middleware settings the router needs.
type RouterConfig struct {
	Validator          *middleware.TokenValidator
	RateLimit          middleware.RateLimitConfig
	CORSAllowedOrigins []string
}

// NewRouter assembles the HTTP surface: health check public, everything
// under /v1 authenticated and rate limited.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiter(cfg.RateLimit))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Validator))

		r.Route("/data/{table}", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Patch("/{id}", h.UpdateRecord)
			r.Delete("/{id}", h.DeleteRecord)
		})

		r.Get("/audit", h.ListAuditLog)

		r.Route("/tasks/{id}/dependencies", func(r chi.Router) {
			r.Post("/", h.AddTaskDependency)
			r.Delete("/{depID}", h.RemoveTaskDependency)
		})
	})

	return r
}
