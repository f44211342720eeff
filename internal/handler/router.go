package handler

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterConfig carries the router's external settings.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter builds the HTTP router with all routes configured.
func NewRouter(h *Handler, db Pinger, cfg RouterConfig, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))             // structured access log
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", HealthCheck(db))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthCheck(db))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(Authenticate(h.auth)).Get("/me", h.Me)
		})

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.ListCourses)
			r.Get("/{id}", h.GetCourse)

			r.Group(func(r chi.Router) {
				r.Use(Authenticate(h.auth), RequireAdmin)
				r.Post("/", h.CreateCourse)
				r.Put("/{id}", h.UpdateCourse)
				r.Delete("/{id}", h.DeleteCourse)
			})
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Use(Authenticate(h.auth))
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Delete("/{id}", h.CancelReservation)
		})
	})

	return r
}
