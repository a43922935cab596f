/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for a local dashboard

ROUTE GROUPS:
  /api/identities/*     Point history queries and manual readings
  /api/summary          Totals across identities
  /api/runs/*           Run control and live events
  /api/progress/*       Daily search progress
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. Runs drive real browser profiles, so the
  listener should stay on localhost.

SEE ALSO:
  - handlers.go: Handler implementations
  - events.go: Websocket stream
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Identity routes
		r.Route("/identities", func(r chi.Router) {
			r.Get("/", h.ListIdentities)
			r.Get("/{id}/stats", h.GetStats)
			r.Get("/{id}/series", h.GetSeries)
			r.Get("/{id}/daily", h.GetDailySeries)
			r.Post("/{id}/points", h.RecordPoints)
		})

		r.Get("/summary", h.GetSummary)

		// Run routes
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.GetRun)
			r.Post("/", h.StartRun)
			r.Delete("/", h.StopRun)
			r.Get("/events", h.RunEvents)
			r.Delete("/{id}", h.StopWorker)
		})

		// Progress routes
		r.Route("/progress", func(r chi.Router) {
			r.Get("/", h.GetProgress)
			r.Post("/reset", h.ResetProgress)
		})
	})

	return r
}
