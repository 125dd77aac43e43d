// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/auth"
	"github.com/dashtam/dashtam/internal/platform/config"
	"github.com/dashtam/dashtam/internal/session"
	"github.com/dashtam/dashtam/internal/sse"
)

// routeSurface walks the router and returns every registered
// "METHOD /pattern" pair, with mount trailing slashes trimmed.
func routeSurface(t *testing.T, router chi.Router) map[string]bool {
	t.Helper()

	routes := make(map[string]bool)
	err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if len(route) > 1 {
			route = strings.TrimSuffix(route, "/")
		}
		routes[method+" "+route] = true
		return nil
	})
	require.NoError(t, err)
	return routes
}

/*
TestNewServer_RouteSurface pins the public endpoint layout. Sessions are
a top-level resource: POST creates one (login), DELETE /current destroys
the caller's own (logout), and the password-reset pair lives beside them
rather than under /auth.
*/
func TestNewServer_RouteSurface(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}
	server := NewServer(context.Background(), &config.Config{ServerPort: "8080"}, slog.Default(), nil, nil, Handlers{
		Liveness:  noop,
		Readiness: noop,
		Auth:      auth.NewHandler(nil),
		Session:   session.NewHandler(nil),
		Events:    sse.NewHandler(nil),
	})

	routes := routeSurface(t, server.router)

	expected := []string{
		"GET /health",
		"GET /ready",

		"POST /api/v1/sessions",
		"DELETE /api/v1/sessions/current",
		"GET /api/v1/sessions",
		"DELETE /api/v1/sessions",
		"GET /api/v1/sessions/{id}",
		"DELETE /api/v1/sessions/{id}",

		"POST /api/v1/password-reset-tokens",
		"POST /api/v1/password-resets",

		"POST /api/v1/auth/register",
		"POST /api/v1/auth/verify-email",
		"POST /api/v1/auth/refresh",
		"POST /api/v1/auth/password/change",

		"POST /api/v1/admin/tokens/rotate-global",
		"POST /api/v1/admin/tokens/rotate-user/{id}",

		"GET /api/v1/events",
	}
	for _, route := range expected {
		assert.True(t, routes[route], "missing route %s", route)
	}

	// The old layout must be gone.
	retired := []string{
		"POST /api/v1/auth/sessions",
		"DELETE /api/v1/auth/sessions/current",
		"POST /api/v1/auth/sessions/refresh",
		"POST /api/v1/auth/password/reset-request",
		"POST /api/v1/auth/password/reset-confirm",
	}
	for _, route := range retired {
		assert.False(t, routes[route], "retired route %s still registered", route)
	}
}
