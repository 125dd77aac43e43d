// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

// Package middleware provides the HTTP middleware chain for the Dashtam API server.
//
// # Architecture
//
// Middleware intercepts incoming HTTP requests to apply global policies
// before they reach the domain handlers. This includes cross-cutting concerns
// like Logging, AuthN/AuthZ, Rate Limiting, and CORS.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dashtam/dashtam/internal/platform/apperr"
	"github.com/dashtam/dashtam/internal/platform/ctxutil"
	"github.com/dashtam/dashtam/internal/platform/respond"
	"github.com/dashtam/dashtam/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from [sec.TokenService],
// allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyToken(tokenStr string) (*sec.AuthClaims, error)
}

// SessionChecker verifies that the session a token is bound to is still live.
//
// A JWT is only half of the credential: logout and remote revocation kill the
// server-side session immediately, and every authenticated request re-checks
// that binding here so revoked sessions cannot ride out the token's TTL.
// CheckBinding returns nil for a live session and an [*apperr.AppError] with
// code SESSION_NOT_FOUND or SESSION_REVOKED otherwise.
type SessionChecker interface {
	CheckBinding(ctx context.Context, userID, sessionID string) error
}

// Authenticate extracts and verifies the JWT from the Authorization header.
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous.
//  3. If present, parse and verify the JWT via [TokenVerifier].
//  4. If the claims carry a session_id, confirm the session is still active.
//  5. Inject [*sec.AuthClaims] into the request context for downstream use.
//
// Tokens without a session_id claim predate session binding and are accepted
// on signature and expiry alone.
//
// # Parameters
//   - verifier: The TokenVerifier instance.
//   - sessions: The session-binding checker; nil disables the binding check.
//
// # Returns
//   - An [http.Handler] middleware.
func Authenticate(verifier TokenVerifier, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get("Authorization")

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if authHeader == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
				return
			}

			// ── 3. Token Verification ─────────────────────────────────────────
			tokenStr := parts[1]
			claims, err := verifier.VerifyToken(tokenStr)
			if err != nil {
				respond.Error(writer, request, unauthorizedFor(err))
				return
			}

			// ── 4. Session Binding ────────────────────────────────────────────
			if sessions != nil && claims.SessionID != "" {
				if err := sessions.CheckBinding(request.Context(), claims.UserID(), claims.SessionID); err != nil {
					respond.Error(writer, request, err)
					return
				}
			}

			// ── 5. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithAuthUser(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// unauthorizedFor maps a token verification failure onto a specialized 401.
func unauthorizedFor(err error) *apperr.AppError {
	switch {
	case errors.Is(err, sec.ErrTokenExpired):
		return apperr.Unauthorized("Token has expired").WithCode("TOKEN_EXPIRED")
	case errors.Is(err, sec.ErrTokenInvalidSignature):
		return apperr.Unauthorized("Invalid token signature").WithCode("TOKEN_INVALID")
	default:
		return apperr.Unauthorized("Invalid or malformed token").WithCode("TOKEN_INVALID")
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
//
// # Flow
//  1. Check if [*sec.AuthClaims] exists in context.
//  2. If missing, abort with HTTP 401 Unauthorized.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetAuthUser(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests if the authenticated user doesn't carry the required role.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically implies
// [RequireAuth] so you don't need to mount both.
//
// # Flow
//  1. Check if [*sec.AuthClaims] exists in context (implies AuthN).
//  2. Check the claims' role list for the target role.
//  3. If missing, abort with HTTP 403 Forbidden.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetAuthUser(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			if !claims.HasRole(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
