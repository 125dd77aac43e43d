// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package event implements the in-process domain event system.

It carries three pieces: the immutable event types themselves, a central
registry that declares what every event requires (logging, audit, email,
session side effects), and an in-memory bus that fans events out to
subscribed handlers concurrently and fail-open.

Architecture:

  - Events: Immutable past-tense facts with UUIDv7 identifiers.
  - Registry: The authoritative table binding events to handler classes
    and audit actions. Compliance tests enumerate it and fail on drift.
  - Bus: Typed publish/subscribe keyed on the exact runtime type.
  - Handlers: Logging, Audit, Email, and Session revocation sinks.

Workflow events come in ordered phases: ATTEMPTED is published before the
business logic runs, then exactly one of SUCCEEDED or FAILED after it.
*/
package event

import (
	"time"

	"github.com/dashtam/dashtam/pkg/uuidv7"
)

// # Event Contract

// Event is the behavior shared by every domain event.
type Event interface {
	// EventID returns the UUIDv7 identifier assigned at creation.
	EventID() string
	// OccurredAt returns the UTC creation timestamp.
	OccurredAt() time.Time
}

// BaseEvent provides the identity fields of every domain event.
//
// The ID is a UUIDv7 so events sort chronologically, which the SSE replay
// path depends on.
type BaseEvent struct {
	ID string    `json:"event_id"`
	At time.Time `json:"occurred_at"`
}

// NewBase allocates the identity fields for a fresh event.
func NewBase() BaseEvent {
	return BaseEvent{ID: uuidv7.New(), At: time.Now().UTC()}
}

// EventID implements [Event].
func (b BaseEvent) EventID() string { return b.ID }

// OccurredAt implements [Event].
func (b BaseEvent) OccurredAt() time.Time { return b.At }

// # Registration Workflow

type UserRegistrationAttempted struct {
	BaseEvent
	Email string `json:"email"`
}

// UserRegistered carries the verification token so the email handler can
// dispatch the confirmation link. The token never appears in logs or audit.
type UserRegistered struct {
	BaseEvent
	UserID            string `json:"user_id"`
	Email             string `json:"email"`
	VerificationToken string `json:"-"`
}

type UserRegistrationFailed struct {
	BaseEvent
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// # Login Workflow

type UserLoginAttempted struct {
	BaseEvent
	Email string `json:"email"`
}

type UserLoginSucceeded struct {
	BaseEvent
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
}

type UserLoginFailed struct {
	BaseEvent
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// # Logout Workflow

type UserLogoutAttempted struct {
	BaseEvent
	UserID string `json:"user_id"`
}

type UserLogoutSucceeded struct {
	BaseEvent
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

type UserLogoutFailed struct {
	BaseEvent
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// # Token Refresh Workflow

type TokenRefreshAttempted struct {
	BaseEvent
}

type TokenRefreshSucceeded struct {
	BaseEvent
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

type TokenRefreshFailed struct {
	BaseEvent
	Reason string `json:"reason"`
}

// TokenRejectedDueToRotation records a refresh token denied by the
// two-level version check. RejectionReason is "global_rotation" or
// "user_rotation".
type TokenRejectedDueToRotation struct {
	BaseEvent
	UserID          string `json:"user_id"`
	TokenVersion    int    `json:"token_version"`
	RequiredVersion int    `json:"required_version"`
	RejectionReason string `json:"rejection_reason"`
}

// # Email Verification Workflow

type EmailVerificationAttempted struct {
	BaseEvent
	TokenPrefix string `json:"token_prefix"`
}

type EmailVerified struct {
	BaseEvent
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type EmailVerificationFailed struct {
	BaseEvent
	Reason string `json:"reason"`
}

// # Password Reset Request Workflow

type PasswordResetRequestAttempted struct {
	BaseEvent
	Email string `json:"email"`
}

// PasswordResetRequested carries the full reset token for the email
// handler only; logs and audit records use TokenPrefix (first 8 chars).
type PasswordResetRequested struct {
	BaseEvent
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	TokenPrefix string `json:"token_prefix"`
	ResetToken  string `json:"-"`
}

type PasswordResetRequestFailed struct {
	BaseEvent
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// # Password Reset Confirm Workflow

type PasswordResetConfirmAttempted struct {
	BaseEvent
	TokenPrefix string `json:"token_prefix"`
}

type PasswordResetCompleted struct {
	BaseEvent
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type PasswordResetConfirmFailed struct {
	BaseEvent
	Reason string `json:"reason"`
}

// # Password Change Workflow

type PasswordChangeAttempted struct {
	BaseEvent
	UserID string `json:"user_id"`
}

type PasswordChanged struct {
	BaseEvent
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type PasswordChangeFailed struct {
	BaseEvent
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// # Token Rotation Workflows (admin)

type GlobalTokenRotationAttempted struct {
	BaseEvent
	InitiatedBy string `json:"initiated_by"`
}

type GlobalTokenRotationCompleted struct {
	BaseEvent
	InitiatedBy        string `json:"initiated_by"`
	PreviousVersion    int    `json:"previous_version"`
	NewVersion         int    `json:"new_version"`
	GracePeriodSeconds int    `json:"grace_period_seconds"`
	Reason             string `json:"reason"`
}

type GlobalTokenRotationFailed struct {
	BaseEvent
	InitiatedBy string `json:"initiated_by"`
	Reason      string `json:"reason"`
}

type UserTokenRotationAttempted struct {
	BaseEvent
	TargetUserID string `json:"target_user_id"`
	InitiatedBy  string `json:"initiated_by"`
}

type UserTokenRotationCompleted struct {
	BaseEvent
	TargetUserID    string `json:"target_user_id"`
	InitiatedBy     string `json:"initiated_by"`
	PreviousVersion int    `json:"previous_version"`
	NewVersion      int    `json:"new_version"`
}

type UserTokenRotationFailed struct {
	BaseEvent
	TargetUserID string `json:"target_user_id"`
	Reason       string `json:"reason"`
}

// # Session Lifecycle

type SessionCreated struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Device    string `json:"device"`
	Location  string `json:"location"`
}

// SessionEvicted records a FIFO eviction under the user's tier cap.
type SessionEvicted struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
}

type SessionRevocationAttempted struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type SessionRevoked struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
}

type SessionRevocationFailed struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
}

type AllSessionsRevocationAttempted struct {
	BaseEvent
	UserID string `json:"user_id"`
}

type AllSessionsRevoked struct {
	BaseEvent
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
	Reason string `json:"reason"`
}

// # Data Sync (provider aggregation)

type AccountsSyncCompleted struct {
	BaseEvent
	UserID       string `json:"user_id"`
	ProviderID   string `json:"provider_id"`
	AccountCount int    `json:"account_count"`
}

type TransactionsSyncCompleted struct {
	BaseEvent
	UserID           string `json:"user_id"`
	ProviderID       string `json:"provider_id"`
	TransactionCount int    `json:"transaction_count"`
}

type HoldingsSyncCompleted struct {
	BaseEvent
	UserID       string `json:"user_id"`
	ProviderID   string `json:"provider_id"`
	HoldingCount int    `json:"holding_count"`
}

// # Provider Connectivity

type ProviderConnected struct {
	BaseEvent
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	ProviderID   string `json:"provider_id"`
	ProviderName string `json:"provider_name"`
}

type ProviderTokenRefreshed struct {
	BaseEvent
	UserID     string `json:"user_id"`
	ProviderID string `json:"provider_id"`
}

// # Rate Limiting

// RateLimitExceeded records a denied request. Identifier is "user:<uuid>"
// or "" for anonymous traffic.
type RateLimitExceeded struct {
	BaseEvent
	Endpoint      string `json:"endpoint"`
	Identifier    string `json:"identifier"`
	Rule          string `json:"rule"`
	Limit         int    `json:"limit"`
	WindowSeconds int    `json:"window_seconds"`
}

// # Authorization

type AccessDenied struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Resource string `json:"resource"`
	Reason   string `json:"reason"`
}
