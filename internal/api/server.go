// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dashtam/dashtam/internal/auth"
	"github.com/dashtam/dashtam/internal/platform/config"
	"github.com/dashtam/dashtam/internal/platform/constants"
	"github.com/dashtam/dashtam/internal/platform/middleware"
	"github.com/dashtam/dashtam/internal/session"
	"github.com/dashtam/dashtam/internal/sse"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles registration, login, tokens, and password flows.
	Auth *auth.Handler

	// Session handles session inspection and revocation.
	Session *session.Handler

	// Events handles the server-sent event stream.
	Events *sse.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(
	context context.Context,
	cfg *config.Config,
	log *slog.Logger,
	verifier middleware.TokenVerifier,
	sessions middleware.SessionChecker,
	h Handlers,
) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.Authenticate(verifier, sessions))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated health probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	// Domain-specific route groups mounted under versioned prefix.
	r.Route("/api/v1", func(api chi.Router) {

		// Request-scoped work gets the global deadline.
		api.Group(func(timed chi.Router) {
			timed.Use(chimw.Timeout(constants.GlobalRequestTimeout))

			timed.Mount("/auth", h.Auth.Routes())
			timed.Post("/password-reset-tokens", h.Auth.RequestReset)
			timed.Post("/password-resets", h.Auth.ConfirmReset)

			// Sessions are the login resource: creating one is the
			// credential exchange, everything else requires auth.
			timed.Route("/sessions", func(sessions chi.Router) {
				sessions.Post("/", h.Auth.Login)

				sessions.Group(func(authed chi.Router) {
					authed.Use(middleware.RequireAuth)
					authed.Delete("/current", h.Auth.Logout)
					authed.Get("/", h.Session.List)
					authed.Delete("/", h.Session.RevokeAll)
					authed.Get("/{id}", h.Session.Get)
					authed.Delete("/{id}", h.Session.Revoke)
				})
			})

			timed.Group(func(admin chi.Router) {
				admin.Use(middleware.RequireAuth)
				admin.Use(middleware.RequireRole(constants.RoleAdmin))
				admin.Mount("/admin/tokens", h.Auth.AdminRoutes())
			})
		})

		// The SSE stream outlives the global request deadline.
		api.Group(func(stream chi.Router) {
			stream.Use(middleware.RequireAuth)
			stream.Mount("/events", h.Events.Routes())
		})
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
