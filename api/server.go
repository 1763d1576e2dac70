/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the survey frontend

ROUTE GROUPS:
  /api/users/*        Accounts, balances, history
  /api/events/*       Award event ingestion
  /api/rewards/*      Catalog browsing
  /api/redemptions/*  Redemption lifecycle
  /api/admin/*        Catalog administration
  /metrics            Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. Identity arrives as trusted X-User-ID /
  X-User-Role headers from the upstream survey platform.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID", "X-User-Role"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateAccount)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/redemptions", h.ListUserRedemptions)
		})

		// Award event routes
		r.Route("/events", func(r chi.Router) {
			r.Post("/survey-completed", h.SurveyCompleted)
			r.Post("/profile-completed", h.ProfileCompleted)
		})

		// Reward routes
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.ListRewards)
			r.Get("/{id}", h.GetReward)
			r.Get("/{id}/availability", h.GetAvailability)
		})

		// Redemption routes
		r.Route("/redemptions", func(r chi.Router) {
			r.Post("/", h.CreateRedemption)
			r.Get("/", h.ListQueue)
			r.Post("/{id}/decide", h.Decide)
			r.Post("/{id}/delivered", h.MarkDelivered)
			r.Post("/{id}/cancel", h.Cancel)
		})

		// Admin catalog routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rewards", h.CreateReward)
			r.Put("/rewards/{id}", h.UpdateReward)
		})
	})

	// Prometheus metrics
	r.Handle("/metrics", MetricsHandler())

	return r
}
