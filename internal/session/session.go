// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package session implements the server-side session engine.

One SessionData record exists per authenticated device. Sessions are
created at login with device and location enrichment, capped per user by
subscription tier with FIFO eviction, cached write-through in Redis, and
revoked individually, in bulk, or as a side effect of password changes.

Architecture:

  - SessionData: The entity; immutable once revoked.
  - Repository: PostgreSQL source of truth.
  - Cache: Redis write-through; authoritative for reads only, every
    failure degrades to the repository.
  - Service: Workflow orchestration plus the JWT-to-session binding
    check that blocks post-logout token reuse.
*/
package session

import (
	"time"

	"github.com/dashtam/dashtam/pkg/useragent"
)

// # Policy Constants

const (
	// DefaultSessionTTL is applied when login does not specify an expiry.
	DefaultSessionTTL = 30 * 24 * time.Hour

	// CacheFallbackTTL is used when a session's expiry is unusable
	// (already past or absent) at cache-write time.
	CacheFallbackTTL = 30 * 24 * time.Hour
)

// Revocation reasons (closed set; appears in events and audit records).
const (
	ReasonUserLogout           = "user_logout"
	ReasonUserRevoked          = "user_revoked"
	ReasonSessionLimitExceeded = "session_limit_exceeded"
	ReasonPasswordReset        = "password_reset"
	ReasonPasswordChanged      = "password_changed"
	ReasonAdminAction          = "admin_action"
)

// # Entity

// SessionData is one authenticated session on one device.
//
// # Invariants
//
//   - ExpiresAt > CreatedAt.
//   - Once IsRevoked is set the record is immutable except for reads.
//   - A user's active sessions never exceed their tier cap (enforced by
//     FIFO eviction in [Service.Create]).
type SessionData struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// Device enrichment, parsed once at creation.
	DeviceInfo useragent.Info `json:"device_info"`
	UserAgent  string         `json:"user_agent"`

	// Network attribution.
	IPAddress     string `json:"ip_address"`
	LastIPAddress string `json:"last_ip_address"`
	Location      string `json:"location"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`

	IsRevoked     bool       `json:"is_revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`

	IsTrusted bool `json:"is_trusted"`

	// RefreshTokenID links the at-most-one active refresh token bound
	// to this session. Rotation replaces it.
	RefreshTokenID string `json:"refresh_token_id,omitempty"`

	SuspiciousActivityCount int `json:"suspicious_activity_count"`
}

// IsExpired reports whether the session's TTL has lapsed.
func (s *SessionData) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsActive reports whether the session is neither revoked nor expired.
func (s *SessionData) IsActive() bool {
	return !s.IsRevoked && !s.IsExpired()
}

// Revoke marks the session terminated. It is a no-op on an already
// revoked session so the first revocation's reason is preserved.
func (s *SessionData) Revoke(reason string) {
	if s.IsRevoked {
		return
	}
	now := time.Now()
	s.IsRevoked = true
	s.RevokedAt = &now
	s.RevokedReason = reason
}

// Touch records request activity on the session.
func (s *SessionData) Touch(ip string) {
	s.LastActivityAt = time.Now()
	if ip != "" {
		s.LastIPAddress = ip
	}
}
