// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Security: JWT issuers and bearer-token configuration.
  - Cache Taxonomy: Hierarchical, colon-delimited Redis key prefixes.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "dashtam-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	// The SSE endpoint opts out of this via http.ResponseController.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	// Long-lived SSE streams are exempted from this middleware.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute

	// PasswordResetMaxRequests is the number of reset requests allowed per rolling window.
	PasswordResetMaxRequests = 3

	// PasswordResetWindow is the rolling window for password-reset rate limiting.
	PasswordResetWindow = 60 * time.Minute
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in JWTs.
	AuthIssuer = "dashtam.app"

	// BearerPrefix is the literal prefix of the Authorization header,
	// trailing space included.
	BearerPrefix = "Bearer "

	// DefaultRoleUser is the role granted to every authenticated user.
	DefaultRoleUser = "user"

	// RoleAdmin gates the token-rotation admin endpoints.
	RoleAdmin = "admin"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderLastEventID   = "Last-Event-ID"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Cache Taxonomy (Redis Key Prefixes)

// All keys are hierarchical, colon-delimited, and carry the deployment-wide
// prefix so several environments can share one Redis instance.
const (
	// CacheKeyPrefix is the deployment-wide literal prepended to every key.
	CacheKeyPrefix = "dashtam"

	// RedisPrefixSession stores a serialized session: dashtam:session:<uuid>.
	RedisPrefixSession = CacheKeyPrefix + ":session:"

	// RedisPrefixUserSessions opens the per-user session index key:
	// dashtam:user:<uuid>:sessions.
	RedisPrefixUserSessions = CacheKeyPrefix + ":user:"

	// RedisSuffixUserSessions completes the per-user session index key.
	RedisSuffixUserSessions = ":sessions"

	// RedisPrefixResetRate counts password-reset requests per email for rate limiting.
	RedisPrefixResetRate = CacheKeyPrefix + ":reset_rate:"
)

// # SSE Pub/Sub Channels

const (
	// SSEChannelUserPrefix is the per-user live channel: sse:user:<uuid>.
	SSEChannelUserPrefix = "sse:user:"

	// SSEChannelBroadcast is the system-wide channel.
	SSEChannelBroadcast = "sse:broadcast"

	// SSEStreamUserPrefix is the per-user bounded replay stream: sse:stream:user:<uuid>.
	SSEStreamUserPrefix = "sse:stream:user:"
)

// # Database Schemas

const (
	SchemaAuth  = "auth"
	SchemaAudit = "audit"
)
