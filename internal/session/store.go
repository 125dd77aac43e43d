// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package session

import (
	"context"
	"time"
)

// # Storage Contracts

// Repository is the persistence contract for sessions. PostgreSQL is the
// source of truth; the cache is synchronized after every write.
type Repository interface {
	// Save upserts the session record.
	Save(ctx context.Context, session *SessionData) error

	// FindByID returns the session or apperr.NotFound.
	FindByID(ctx context.Context, sessionID string) (*SessionData, error)

	// FindByUserID lists a user's sessions, newest first. With
	// activeOnly, revoked and expired sessions are filtered out.
	FindByUserID(ctx context.Context, userID string, activeOnly bool) ([]*SessionData, error)

	// FindByRefreshTokenID resolves the session bound to a refresh token.
	FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (*SessionData, error)

	// CountActiveSessions counts non-revoked, non-expired sessions.
	CountActiveSessions(ctx context.Context, userID string) (int, error)

	// GetOldestActiveSession returns the FIFO eviction candidate, or
	// apperr.NotFound when the user has no active session.
	GetOldestActiveSession(ctx context.Context, userID string) (*SessionData, error)

	// RevokeAllForUser bulk-revokes a user's active sessions and returns
	// the affected count. exceptSessionID may be empty.
	RevokeAllForUser(ctx context.Context, userID, reason, exceptSessionID string) (int, error)

	// Delete removes a single session record.
	Delete(ctx context.Context, sessionID string) error

	// DeleteAllForUser removes every session record of a user.
	DeleteAllForUser(ctx context.Context, userID string) error

	// CleanupExpiredSessions deletes sessions expired before the cutoff
	// and returns the affected count.
	CleanupExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// Cache is the write-through contract over [SessionData].
//
// # Fail-Open
//
// Every method returns its error to the caller, but callers (the
// [Service]) always degrade to the repository: a cache failure is logged
// as a warning and never reaches the HTTP layer.
type Cache interface {
	// Get returns the cached session or (nil, nil) on a miss.
	Get(ctx context.Context, sessionID string) (*SessionData, error)

	// Set stores the session. ttl <= 0 selects expires_at − now,
	// falling back to [CacheFallbackTTL].
	Set(ctx context.Context, session *SessionData, ttl time.Duration) error

	// Delete evicts the session key.
	Delete(ctx context.Context, sessionID string) error

	// DeleteAllForUser evicts every cached session of the user plus the
	// per-user index.
	DeleteAllForUser(ctx context.Context, userID string) error

	// Exists reports key presence without deserializing.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// GetUserSessionIDs returns the per-user session index.
	GetUserSessionIDs(ctx context.Context, userID string) ([]string, error)

	// AddUserSession / RemoveUserSession maintain the per-user index.
	AddUserSession(ctx context.Context, userID, sessionID string) error
	RemoveUserSession(ctx context.Context, userID, sessionID string) error

	// UpdateLastActivity refreshes the cached session's activity fields.
	UpdateLastActivity(ctx context.Context, sessionID, ip string) error
}

// UserDirectory is the slice of the auth domain the session engine needs:
// tier caps for eviction. MaxSessionsFor returns 0 for unlimited tiers
// and apperr.NotFound for unknown users.
type UserDirectory interface {
	MaxSessionsFor(ctx context.Context, userID string) (int, error)
}
