// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth

import "time"

// # Refresh Tokens

// RefreshTokenData is the at-rest record of one opaque refresh token.
//
// The plain token exists once, in the response that issued it. At rest
// it leaves two derived forms: the deterministic SHA-256 digest, which
// carries a unique index so lookup is exact whatever the table size,
// and the salted bcrypt hash, which the workflow verifies after the
// digest locates the row. Rotation deletes this record and inserts its
// successor inside one transaction, so a replayed predecessor fails
// lookup.
type RefreshTokenData struct {
	ID          string
	UserID      string
	TokenDigest string
	TokenHash   string
	SessionID   string

	ExpiresAt time.Time
	RevokedAt *time.Time

	// TokenVersion is the issuing user's min_token_version at issuance.
	TokenVersion int
	// GlobalVersionAtIssuance is the global_min_token_version at
	// issuance; the grace-window check reads it.
	GlobalVersionAtIssuance int

	CreatedAt time.Time
}

// IsExpired reports whether the record's TTL has lapsed.
func (t *RefreshTokenData) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsRevoked reports whether the record was explicitly revoked.
func (t *RefreshTokenData) IsRevoked() bool {
	return t.RevokedAt != nil
}

// # One-Shot Tokens

// OneShotToken is the shared shape of email verification and password
// reset tokens: a 64-char hex string stored plain (already unguessable),
// single-use, with a short TTL.
type OneShotToken struct {
	ID     string
	UserID string
	Token  string

	ExpiresAt time.Time
	UsedAt    *time.Time

	// Request attribution, recorded for reset tokens.
	RequestIP        string
	RequestUserAgent string

	CreatedAt time.Time
}

// IsExpired reports whether the token's TTL has lapsed.
func (t *OneShotToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsed reports whether the token was already consumed.
func (t *OneShotToken) IsUsed() bool {
	return t.UsedAt != nil
}

// Prefix returns the loggable head of the token.
func (t *OneShotToken) Prefix() string {
	if len(t.Token) < TokenPrefixLen {
		return t.Token
	}
	return t.Token[:TokenPrefixLen]
}

// # Security Config

// SecurityConfig is the process-wide singleton governing global token
// rotation. The version is monotonically non-decreasing.
type SecurityConfig struct {
	GlobalMinTokenVersion int
	LastRotationAt        time.Time
	GracePeriodSeconds    int
	Reason                string
	UpdatedAt             time.Time
}

// IsWithinGracePeriod reports whether now still falls inside the window
// opened by the last rotation.
func (c *SecurityConfig) IsWithinGracePeriod(now time.Time) bool {
	if c.LastRotationAt.IsZero() {
		return false
	}
	deadline := c.LastRotationAt.Add(time.Duration(c.GracePeriodSeconds) * time.Second)
	return !now.After(deadline)
}
