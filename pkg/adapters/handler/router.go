package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/soft-duck/shorty/pkg/config"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, service ports.LinkService, clock domain.Clock, logger *slog.Logger) http.Handler {
	h := NewHTTPHandler(service, cfg, clock, logger)
	mw := NewMiddleware(cfg)
	authHandler := NewAuthHandler(cfg, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	// Public Routes
	r.Get("/healthz", h.Health)
	r.Get("/config", h.Config)
	r.Get("/auth/google/login", authHandler.Login)
	r.Get("/auth/google/callback", authHandler.Callback)
	r.Get("/auth/logout", authHandler.Logout)

	// Protected Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.AuthMiddleware)
		r.Get("/links", h.List)
		r.Get("/links/{id}", h.Show)
		r.Delete("/links/{id}", h.Delete)
		r.Post("/clean", h.Clean)
	})

	// Link creation and resolution take the remainder of the path.
	r.Post("/custom", h.CreateCustom)
	r.Post("/*", h.CreateFromPath)
	r.Get("/*", h.Redirect)

	return r
}
