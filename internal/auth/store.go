// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth

import (
	"context"
	"time"
)

// # Repository Contracts

// UserRepository is the persistence contract for user accounts.
type UserRepository interface {
	// Create persists a new account. Duplicate emails surface as
	// apperr.Conflict.
	Create(ctx context.Context, user *User) error

	// FindByEmail resolves a normalized email or returns apperr.NotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID resolves a user ID or returns apperr.NotFound.
	FindByID(ctx context.Context, userID string) (*User, error)

	// Update persists mutable account state (lockout counters, flags).
	Update(ctx context.Context, user *User) error

	// UpdatePassword replaces only the password hash.
	UpdatePassword(ctx context.Context, userID, newHash string) error

	// MarkVerified flips is_verified.
	MarkVerified(ctx context.Context, userID string) error

	// UpdateMinTokenVersion advances the per-user rotation floor and
	// returns the previous value. The new version must not decrease.
	UpdateMinTokenVersion(ctx context.Context, userID string, newVersion int) (previous int, err error)
}

// RefreshTokenRepository is the persistence contract for refresh tokens.
type RefreshTokenRepository interface {
	// Create persists a new token record.
	Create(ctx context.Context, token *RefreshTokenData) error

	// FindByDigest resolves a token by its deterministic SHA-256
	// digest. Expired and revoked records are still returned so the
	// workflow can name the precise failure. Returns apperr.NotFound
	// for unknown digests.
	FindByDigest(ctx context.Context, digest string) (*RefreshTokenData, error)

	// Rotate atomically deletes the old record and inserts its
	// successor inside one transaction.
	Rotate(ctx context.Context, oldTokenID string, next *RefreshTokenData) error

	// RevokeAllForUser stamps revoked_at on the user's live tokens.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)

	// RevokeAllForSession stamps revoked_at on the session's live tokens.
	RevokeAllForSession(ctx context.Context, sessionID string) (int, error)

	// DeleteExpired reclaims storage from tokens expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// OneShotTokenRepository stores email verification or password reset
// tokens; one instance per kind, distinguished by table.
type OneShotTokenRepository interface {
	// Create persists a freshly generated token.
	Create(ctx context.Context, token *OneShotToken) error

	// FindByToken resolves the literal token string or returns
	// apperr.NotFound. Expired and used tokens are still returned so
	// the workflow can report the precise failure reason.
	FindByToken(ctx context.Context, token string) (*OneShotToken, error)

	// MarkUsed stamps used_at, consuming the token.
	MarkUsed(ctx context.Context, tokenID string) error
}

// SecurityConfigRepository stores the rotation singleton.
type SecurityConfigRepository interface {
	// Get returns the singleton row, creating the default on first read.
	Get(ctx context.Context) (*SecurityConfig, error)

	// UpdateGlobalVersion advances the global floor under a row lock so
	// concurrent rotations serialize. The version must not decrease.
	UpdateGlobalVersion(ctx context.Context, newVersion int, reason string) (*SecurityConfig, error)
}

// ResetRateLimiter enforces the rolling password-reset request cap.
type ResetRateLimiter interface {
	// Allow consumes one request slot for the email and reports whether
	// the caller is still under the rolling-window cap.
	Allow(ctx context.Context, email string) (bool, error)
}
