// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event

import (
	"fmt"
	"reflect"
)

// # Taxonomy

// Category groups events by the subsystem that produces them.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryProvider       Category = "provider"
	CategoryDataSync       Category = "data_sync"
	CategorySession        Category = "session"
	CategoryRateLimit      Category = "rate_limit"
	CategoryAdmin          Category = "admin"
)

// Phase marks where in its workflow an event sits.
type Phase string

const (
	PhaseAttempted   Phase = "ATTEMPTED"
	PhaseSucceeded   Phase = "SUCCEEDED"
	PhaseFailed      Phase = "FAILED"
	PhaseAllowed     Phase = "ALLOWED"
	PhaseDenied      Phase = "DENIED"
	PhaseOperational Phase = "OPERATIONAL"
)

// AuditAction is the stable machine-readable identifier written into
// audit records. Values are append-only; renaming one breaks the audit
// trail's continuity.
type AuditAction string

const (
	ActionUserRegistered         AuditAction = "user_registered"
	ActionUserLoginSuccess       AuditAction = "user_login_success"
	ActionUserLoginFailure       AuditAction = "user_login_failure"
	ActionUserLogout             AuditAction = "user_logout"
	ActionTokenRefresh           AuditAction = "token_refresh"
	ActionTokenRotationRejected  AuditAction = "token_rotation_rejected"
	ActionEmailVerified          AuditAction = "email_verified"
	ActionPasswordResetRequested AuditAction = "password_reset_requested"
	ActionPasswordResetCompleted AuditAction = "password_reset_completed"
	ActionPasswordChanged        AuditAction = "password_changed"
	ActionGlobalTokenRotation    AuditAction = "global_token_rotation"
	ActionUserTokenRotation      AuditAction = "user_token_rotation"
	ActionSessionCreated         AuditAction = "session_created"
	ActionSessionEvicted         AuditAction = "session_evicted"
	ActionSessionRevoked         AuditAction = "session_revoked"
	ActionAllSessionsRevoked     AuditAction = "all_sessions_revoked"
	ActionProviderConnected      AuditAction = "provider_connected"
	ActionRateLimitExceeded      AuditAction = "rate_limit_exceeded"
	ActionAccessDenied           AuditAction = "access_denied"
)

// knownAuditActions is the closed set compliance checks validate against.
var knownAuditActions = map[AuditAction]bool{
	ActionUserRegistered:         true,
	ActionUserLoginSuccess:       true,
	ActionUserLoginFailure:       true,
	ActionUserLogout:             true,
	ActionTokenRefresh:           true,
	ActionTokenRotationRejected:  true,
	ActionEmailVerified:          true,
	ActionPasswordResetRequested: true,
	ActionPasswordResetCompleted: true,
	ActionPasswordChanged:        true,
	ActionGlobalTokenRotation:    true,
	ActionUserTokenRotation:      true,
	ActionSessionCreated:         true,
	ActionSessionEvicted:         true,
	ActionSessionRevoked:         true,
	ActionAllSessionsRevoked:     true,
	ActionProviderConnected:      true,
	ActionRateLimitExceeded:      true,
	ActionAccessDenied:           true,
}

// IsKnownAuditAction reports whether action belongs to the closed set.
func IsKnownAuditAction(action AuditAction) bool {
	return knownAuditActions[action]
}

// # Registry

// Entry declares one domain event: its identity, its classification,
// and which handler classes must process it.
type Entry struct {
	// Type is the exact runtime type the bus routes on.
	Type reflect.Type
	// Category classifies the producing subsystem.
	Category Category
	// Workflow names the business flow the event belongs to.
	Workflow string
	// Phase is the event's position within the workflow.
	Phase Phase

	RequiresLogging bool
	RequiresAudit   bool
	RequiresEmail   bool
	RequiresSession bool

	// AuditAction is mandatory when RequiresAudit is set.
	AuditAction AuditAction
}

// Name returns the event's type name, used in logs and compliance output.
func (e Entry) Name() string { return e.Type.Name() }

// typeOf is a shorthand for building the registry table.
func typeOf(event Event) reflect.Type { return reflect.TypeOf(event) }

// Registry is the authoritative declaration of every domain event.
//
// Logging and audit default to required; email and session side effects
// are opted into per event. Handler bindings are generated from this
// table at startup (see [BindHandlers]) and compliance tests enumerate
// it, so an event that exists in code but not here is unreachable by
// design.
var Registry = []Entry{
	// Registration
	{Type: typeOf(UserRegistrationAttempted{}), Category: CategoryAuthentication, Workflow: "user_registration", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(UserRegistered{}), Category: CategoryAuthentication, Workflow: "user_registration", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, RequiresEmail: true, AuditAction: ActionUserRegistered},
	{Type: typeOf(UserRegistrationFailed{}), Category: CategoryAuthentication, Workflow: "user_registration", Phase: PhaseFailed, RequiresLogging: true},

	// Login
	{Type: typeOf(UserLoginAttempted{}), Category: CategoryAuthentication, Workflow: "user_login", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(UserLoginSucceeded{}), Category: CategoryAuthentication, Workflow: "user_login", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionUserLoginSuccess},
	{Type: typeOf(UserLoginFailed{}), Category: CategoryAuthentication, Workflow: "user_login", Phase: PhaseFailed, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionUserLoginFailure},

	// Logout
	{Type: typeOf(UserLogoutAttempted{}), Category: CategoryAuthentication, Workflow: "user_logout", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(UserLogoutSucceeded{}), Category: CategoryAuthentication, Workflow: "user_logout", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionUserLogout},
	{Type: typeOf(UserLogoutFailed{}), Category: CategoryAuthentication, Workflow: "user_logout", Phase: PhaseFailed, RequiresLogging: true},

	// Token refresh
	{Type: typeOf(TokenRefreshAttempted{}), Category: CategoryAuthentication, Workflow: "token_refresh", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(TokenRefreshSucceeded{}), Category: CategoryAuthentication, Workflow: "token_refresh", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionTokenRefresh},
	{Type: typeOf(TokenRefreshFailed{}), Category: CategoryAuthentication, Workflow: "token_refresh", Phase: PhaseFailed, RequiresLogging: true},
	{Type: typeOf(TokenRejectedDueToRotation{}), Category: CategoryAuthentication, Workflow: "token_refresh", Phase: PhaseDenied, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionTokenRotationRejected},

	// Email verification
	{Type: typeOf(EmailVerificationAttempted{}), Category: CategoryAuthentication, Workflow: "email_verification", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(EmailVerified{}), Category: CategoryAuthentication, Workflow: "email_verification", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionEmailVerified},
	{Type: typeOf(EmailVerificationFailed{}), Category: CategoryAuthentication, Workflow: "email_verification", Phase: PhaseFailed, RequiresLogging: true},

	// Password reset request
	{Type: typeOf(PasswordResetRequestAttempted{}), Category: CategoryAuthentication, Workflow: "password_reset_request", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(PasswordResetRequested{}), Category: CategoryAuthentication, Workflow: "password_reset_request", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, RequiresEmail: true, AuditAction: ActionPasswordResetRequested},
	{Type: typeOf(PasswordResetRequestFailed{}), Category: CategoryAuthentication, Workflow: "password_reset_request", Phase: PhaseFailed, RequiresLogging: true},

	// Password reset confirm
	{Type: typeOf(PasswordResetConfirmAttempted{}), Category: CategoryAuthentication, Workflow: "password_reset_confirm", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(PasswordResetCompleted{}), Category: CategoryAuthentication, Workflow: "password_reset_confirm", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, RequiresEmail: true, RequiresSession: true, AuditAction: ActionPasswordResetCompleted},
	{Type: typeOf(PasswordResetConfirmFailed{}), Category: CategoryAuthentication, Workflow: "password_reset_confirm", Phase: PhaseFailed, RequiresLogging: true},

	// Password change
	{Type: typeOf(PasswordChangeAttempted{}), Category: CategoryAuthentication, Workflow: "password_change", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(PasswordChanged{}), Category: CategoryAuthentication, Workflow: "password_change", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, RequiresEmail: true, RequiresSession: true, AuditAction: ActionPasswordChanged},
	{Type: typeOf(PasswordChangeFailed{}), Category: CategoryAuthentication, Workflow: "password_change", Phase: PhaseFailed, RequiresLogging: true},

	// Admin token rotation
	{Type: typeOf(GlobalTokenRotationAttempted{}), Category: CategoryAdmin, Workflow: "token_rotation_global", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(GlobalTokenRotationCompleted{}), Category: CategoryAdmin, Workflow: "token_rotation_global", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionGlobalTokenRotation},
	{Type: typeOf(GlobalTokenRotationFailed{}), Category: CategoryAdmin, Workflow: "token_rotation_global", Phase: PhaseFailed, RequiresLogging: true},
	{Type: typeOf(UserTokenRotationAttempted{}), Category: CategoryAdmin, Workflow: "token_rotation_user", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(UserTokenRotationCompleted{}), Category: CategoryAdmin, Workflow: "token_rotation_user", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionUserTokenRotation},
	{Type: typeOf(UserTokenRotationFailed{}), Category: CategoryAdmin, Workflow: "token_rotation_user", Phase: PhaseFailed, RequiresLogging: true},

	// Session lifecycle
	{Type: typeOf(SessionCreated{}), Category: CategorySession, Workflow: "session_lifecycle", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionSessionCreated},
	{Type: typeOf(SessionEvicted{}), Category: CategorySession, Workflow: "session_lifecycle", Phase: PhaseOperational, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionSessionEvicted},
	{Type: typeOf(SessionRevocationAttempted{}), Category: CategorySession, Workflow: "session_revocation", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(SessionRevoked{}), Category: CategorySession, Workflow: "session_revocation", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionSessionRevoked},
	{Type: typeOf(SessionRevocationFailed{}), Category: CategorySession, Workflow: "session_revocation", Phase: PhaseFailed, RequiresLogging: true},
	{Type: typeOf(AllSessionsRevocationAttempted{}), Category: CategorySession, Workflow: "session_revocation_all", Phase: PhaseAttempted, RequiresLogging: true},
	{Type: typeOf(AllSessionsRevoked{}), Category: CategorySession, Workflow: "session_revocation_all", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionAllSessionsRevoked},

	// Data sync
	{Type: typeOf(AccountsSyncCompleted{}), Category: CategoryDataSync, Workflow: "accounts_sync", Phase: PhaseSucceeded, RequiresLogging: true},
	{Type: typeOf(TransactionsSyncCompleted{}), Category: CategoryDataSync, Workflow: "transactions_sync", Phase: PhaseSucceeded, RequiresLogging: true},
	{Type: typeOf(HoldingsSyncCompleted{}), Category: CategoryDataSync, Workflow: "holdings_sync", Phase: PhaseSucceeded, RequiresLogging: true},

	// Provider connectivity
	{Type: typeOf(ProviderConnected{}), Category: CategoryProvider, Workflow: "provider_connect", Phase: PhaseSucceeded, RequiresLogging: true, RequiresAudit: true, RequiresEmail: true, AuditAction: ActionProviderConnected},
	{Type: typeOf(ProviderTokenRefreshed{}), Category: CategoryProvider, Workflow: "provider_token_refresh", Phase: PhaseOperational, RequiresLogging: true},

	// Rate limiting
	{Type: typeOf(RateLimitExceeded{}), Category: CategoryRateLimit, Workflow: "rate_limit", Phase: PhaseDenied, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionRateLimitExceeded},

	// Authorization
	{Type: typeOf(AccessDenied{}), Category: CategoryAuthorization, Workflow: "authorization", Phase: PhaseDenied, RequiresLogging: true, RequiresAudit: true, AuditAction: ActionAccessDenied},
}

// # Lookup

// registryIndex keys entries by runtime type for O(1) lookup.
var registryIndex = func() map[reflect.Type]Entry {
	index := make(map[reflect.Type]Entry, len(Registry))
	for _, entry := range Registry {
		if _, dup := index[entry.Type]; dup {
			panic(fmt.Sprintf("event: duplicate registry entry for %s", entry.Name()))
		}
		index[entry.Type] = entry
	}
	return index
}()

// Lookup returns the registry entry for the event's exact runtime type.
func Lookup(e Event) (Entry, bool) {
	entry, ok := registryIndex[reflect.TypeOf(e)]
	return entry, ok
}

// # Statistics

// Stats summarizes the registry. It is the single source for
// documentation and for the compliance test surface.
type Stats struct {
	Total           int
	ByCategory      map[Category]int
	ByPhase         map[Phase]int
	RequiresLogging int
	RequiresAudit   int
	RequiresEmail   int
	RequiresSession int
}

// ComputeStats tallies the registry table.
func ComputeStats() Stats {
	stats := Stats{
		ByCategory: make(map[Category]int),
		ByPhase:    make(map[Phase]int),
	}

	for _, entry := range Registry {
		stats.Total++
		stats.ByCategory[entry.Category]++
		stats.ByPhase[entry.Phase]++

		if entry.RequiresLogging {
			stats.RequiresLogging++
		}
		if entry.RequiresAudit {
			stats.RequiresAudit++
		}
		if entry.RequiresEmail {
			stats.RequiresEmail++
		}
		if entry.RequiresSession {
			stats.RequiresSession++
		}
	}

	return stats
}
