// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth

import "time"

// # Token Policy

const (
	// VerificationTokenTTL bounds email verification links.
	VerificationTokenTTL = 24 * time.Hour

	// ResetTokenTTL bounds password reset links.
	ResetTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL applies when configuration does not override it.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultAccessTokenTTL applies when configuration does not override it.
	DefaultAccessTokenTTL = 15 * time.Minute

	// TokenPrefixLen is how much of a one-shot token may appear in
	// events, logs, and audit records.
	TokenPrefixLen = 8
)

// # Lockout Policy

const (
	// MaxFailedLoginAttempts triggers a temporary lockout.
	MaxFailedLoginAttempts = 5

	// LockoutDuration is how long a locked account stays locked.
	LockoutDuration = 30 * time.Minute
)

// # Password Policy

const (
	PasswordMinLen = 8
	PasswordMaxLen = 128
)

// # Rotation Policy

const (
	// DefaultGracePeriodSeconds is the window after a global rotation in
	// which previous-generation refresh tokens remain acceptable.
	DefaultGracePeriodSeconds = 24 * 60 * 60
)

// # JSON Field Identifiers

const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldNewPassword     = "new_password"
	FieldCurrentPassword = "current_password"
	FieldToken           = "token"
	FieldRefreshToken    = "refresh_token"
	FieldReason          = "reason"
)
