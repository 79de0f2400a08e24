package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/matcenter/internal/auth"
	"github.com/BradenHooton/matcenter/internal/handlers"
	"github.com/BradenHooton/matcenter/internal/metrics"
	"github.com/BradenHooton/matcenter/internal/middleware"
)

// Handlers groups everything RegisterRoutes mounts
type Handlers struct {
	Auth       *handlers.AuthHandler
	Tasks      *handlers.TaskHandler
	Security   *handlers.SecurityHandler
	Flashcards *handlers.FlashcardHandler
	Health     *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	authorizer auth.SessionAuthorizer,
	loginLimit middleware.RateLimitConfig,
) {
	router.Get("/health", h.Health.Health)
	router.Handle("/metrics", metrics.Handler())

	// Public routes - no session required
	router.With(middleware.RateLimitByIP(loginLimit)).Post("/auth/login", h.Auth.Login)
	router.Post("/auth/logout", h.Auth.Logout)
	router.Get("/auth/status", h.Auth.Status)
	router.Post("/security/reset", h.Security.Reset)

	router.Route("/flashcards", func(r chi.Router) {
		r.Get("/topics", h.Flashcards.Topics)
		r.Post("/sessions", h.Flashcards.Start)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.Flashcards.Current)
			r.Delete("/", h.Flashcards.Finish)
			r.Post("/reveal", h.Flashcards.Reveal)
			r.Post("/remember", h.Flashcards.Remember)
			r.Post("/forget", h.Flashcards.Forget)
		})
	})

	// Protected routes - valid session required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(authorizer))

		r.Get("/tasks", h.Tasks.List)
		r.Post("/tasks/refresh", h.Tasks.Refresh)
		r.Get("/security/stats", h.Security.Stats)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(authorizer))
			r.Put("/tasks/{number}/status", h.Tasks.ChangeStatus)
			r.Put("/tasks/{number}/hint", h.Tasks.SetHint)
		})
	})
}
