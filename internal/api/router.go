// Package api assembles the HTTP surface of the agent core.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pipewise/pipewise/agent-core/internal/api/handlers"
	"github.com/pipewise/pipewise/agent-core/internal/api/middleware"
	"github.com/pipewise/pipewise/agent-core/internal/config"
	"github.com/pipewise/pipewise/agent-core/internal/metrics"
)

// NewRouter wires middleware and routes around the handlers.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(middleware.NewAPIKeyAuth(config.AdminAPIKeys()).Middleware)

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Ingress: authenticated by signature/token inside the handlers,
	// acknowledged immediately, classified asynchronously.
	r.Route("/ingress", func(r chi.Router) {
		r.Post("/webhook/{orgID}", h.IngestWebhook)
		r.Post("/email/{orgID}", h.IngestEmail)
		r.Post("/worker/{orgID}", h.IngestWorkerEvent)
		r.Post("/db-change/{orgID}", h.IngestDBChange)
	})

	// Admin API.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", h.Stats)

		r.Route("/orgs", func(r chi.Router) {
			r.Post("/", h.CreateOrg)
			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/", h.GetOrg)
				r.Put("/settings", h.UpdateOrgSettings)
				r.Get("/stats", h.OrgStats)
				r.Get("/events", h.ListEvents)
				r.Get("/activity", h.ListActivity)

				r.Route("/decisions", func(r chi.Router) {
					r.Get("/", h.ListDecisions)
					r.Get("/pending", h.ListPending)
					r.Route("/{decisionID}", func(r chi.Router) {
						r.Get("/", h.GetDecision)
						r.Post("/confirm", h.ConfirmDecision)
						r.Post("/reject", h.RejectDecision)
					})
				})
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "pipewise-agent-core",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "pipewise-agent-core",
		})
	}
}
