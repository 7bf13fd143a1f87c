// Package core provides the API chassis for the automata platform.
// It creates a chi router that serves the admin trigger endpoint, the Resend
// status webhook, and the health check. Cross-cutting concerns -- panic
// recovery, request correlation, logging, and error envelopes -- are enforced
// here before requests reach domain handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"automata/internal/config"
)

// RouteRegistrar mounts a group of domain handler routes onto the router.
// Registrars are populated by the application entry point, which avoids
// import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the automata API, allowing for
// injection during testing and distinct configuration per environment.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are checked by GET /health. Optional.
	HealthProbes []HealthProbe

	// Registrars mount domain routes under the router root.
	Registrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares the router.
// The caller mounts routes via MountRoutes after construction; the split
// lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router. Used by
// http.ListenAndServe locally and by the Lambda adapter in production.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the health check, and
// all domain registrars.
//
// Middleware order matters: Recoverer is outermost so it catches panics from
// everything below, RequestID runs before the logger so every log line
// carries the correlation ID.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)

	for _, registrar := range s.Registrars {
		registrar(s.router)
	}
}
