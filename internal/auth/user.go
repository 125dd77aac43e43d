// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package auth implements the identity and access management core.

It owns user accounts, credential verification with lockout, JWT and
refresh-token issuance with two-level version rotation, one-shot email
verification and password reset tokens, and the workflows that tie them
together. Every workflow publishes ATTEMPTED before its business logic
and exactly one of SUCCEEDED or FAILED after it.

Architecture:

  - Entities: User, RefreshTokenData, one-shot tokens, SecurityConfig.
  - Repositories: pgx-backed persistence plus a Redis reset rate limiter.
  - Service: Workflow orchestration returning tagged [apperr.AppError]
    failures drawn from closed per-workflow sets.
  - Handler: Thin HTTP delivery over the service.
*/
package auth

import (
	"strings"
	"time"
)

// # Session Tiers

// SessionTier maps a subscription level to a concurrent-session cap.
type SessionTier string

const (
	TierBasic     SessionTier = "basic"
	TierPremium   SessionTier = "premium"
	TierUnlimited SessionTier = "unlimited"
)

// MaxSessions returns the tier's cap; 0 means unlimited.
func (tier SessionTier) MaxSessions() int {
	switch tier {
	case TierBasic:
		return 3
	case TierPremium:
		return 10
	case TierUnlimited:
		return 0
	default:
		// Unknown tiers get the most restrictive cap.
		return 3
	}
}

// IsValid reports membership in the closed tier set.
func (tier SessionTier) IsValid() bool {
	return tier == TierBasic || tier == TierPremium || tier == TierUnlimited
}

// # User Entity

// User is the identity anchor. Accounts are soft-deleted only.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`

	IsVerified bool `json:"is_verified"`
	IsActive   bool `json:"is_active"`

	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`

	SessionTier SessionTier `json:"session_tier"`

	// MinTokenVersion advances monotonically; refresh tokens issued
	// below it are rejected (subject to the global grace window).
	MinTokenVersion int `json:"-"`

	Roles []string `json:"roles"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// NormalizeEmail lowercases and trims an address for unique storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsLocked reports whether a lockout window is still in force.
func (user *User) IsLocked() bool {
	return user.LockedUntil != nil && user.LockedUntil.After(time.Now())
}

// IncrementFailedLogin advances the failure counter, engaging the
// lockout once the threshold is reached. The counter never decreases
// here; only [User.ResetFailedLogin] zeroes it.
func (user *User) IncrementFailedLogin() {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= MaxFailedLoginAttempts {
		lockedUntil := time.Now().Add(LockoutDuration)
		user.LockedUntil = &lockedUntil
	}
}

// ResetFailedLogin clears the failure counter and any lockout.
func (user *User) ResetFailedLogin() {
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
}

// HasRole reports whether the user carries the given role.
func (user *User) HasRole(role string) bool {
	for _, r := range user.Roles {
		if r == role {
			return true
		}
	}
	return false
}
