// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/dashtam/dashtam/internal/event"
	"github.com/dashtam/dashtam/internal/platform/apperr"
	"github.com/dashtam/dashtam/internal/platform/constants"
	"github.com/dashtam/dashtam/internal/platform/sec"
	"github.com/dashtam/dashtam/internal/session"
	"github.com/dashtam/dashtam/pkg/uuidv7"
)

// # Workflow Failure Reasons
//
// Closed per-workflow sets. Reasons feed events and audit records; the
// external response often collapses several of them into one code so
// account existence cannot be probed.
const (
	ReasonDuplicateEmail      = "duplicate_email"
	ReasonUserNotFound        = "user_not_found"
	ReasonEmailNotVerified    = "email_not_verified"
	ReasonAccountLocked       = "account_locked"
	ReasonAccountInactive     = "account_inactive"
	ReasonInvalidPassword     = "invalid_password"
	ReasonTokenNotFound       = "token_not_found"
	ReasonTokenExpired        = "token_expired"
	ReasonTokenAlreadyUsed    = "token_already_used"
	ReasonTokenUserMismatch   = "token_user_mismatch"
	ReasonTokenAlreadyRevoked = "token_already_revoked"
	ReasonTokenInvalid        = "token_invalid"
	ReasonTokenRevoked        = "token_revoked"
	ReasonVersionRejected     = "token_version_rejected"
	ReasonRateLimited         = "rate_limited"
)

// Rejection causes recorded by TokenRejectedDueToRotation.
const (
	RejectionGlobalRotation = "global_rotation"
	RejectionUserRotation   = "user_rotation"
)

// # External Error Codes
const (
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeAccountDisabled      = "ACCOUNT_DISABLED"
	CodeTokenInvalid         = "TOKEN_INVALID"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeTokenRevoked         = "TOKEN_REVOKED"
	CodeTokenUsed            = "TOKEN_USED"
	CodeTokenVersionRejected = "TOKEN_VERSION_REJECTED"
)

// # Collaborator Contracts

// SessionManager is the slice of the session service the auth workflows
// need. Defined here so tests can substitute a fake.
type SessionManager interface {
	Create(ctx context.Context, input session.CreateInput) (*session.SessionData, error)
	Revoke(ctx context.Context, userID, sessionID, reason string) error
	RebindRefreshToken(ctx context.Context, sessionID, refreshTokenID string) error
}

// AccessTokenIssuer mints signed access tokens. Implemented by
// [sec.TokenService].
type AccessTokenIssuer interface {
	GenerateAccessToken(userID, email string, roles []string, sessionID string, tokenVersion int, timeToLive time.Duration) (string, error)
}

// # Service

// Service orchestrates the authentication workflows.
//
// Every workflow publishes its ATTEMPTED event before touching storage
// and exactly one of SUCCEEDED or FAILED afterwards. Workflows that are
// enumeration-sensitive (register, login, password reset request,
// logout) collapse their external responses while the event stream
// keeps the true reason.
type Service struct {
	users              UserRepository
	refreshTokens      RefreshTokenRepository
	verificationTokens OneShotTokenRepository
	resetTokens        OneShotTokenRepository
	securityConfig     SecurityConfigRepository
	resetLimiter       ResetRateLimiter
	sessions           SessionManager
	tokens             AccessTokenIssuer
	bus                event.Publisher
	logger             *slog.Logger

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// Deps bundles the service's collaborators.
type Deps struct {
	Users              UserRepository
	RefreshTokens      RefreshTokenRepository
	VerificationTokens OneShotTokenRepository
	ResetTokens        OneShotTokenRepository
	SecurityConfig     SecurityConfigRepository
	ResetLimiter       ResetRateLimiter
	Sessions           SessionManager
	Tokens             AccessTokenIssuer
	Bus                event.Publisher
	Logger             *slog.Logger

	// Zero values select the package defaults.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// NewService constructs the auth service.
func NewService(deps Deps) *Service {
	if deps.AccessTokenTTL <= 0 {
		deps.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if deps.RefreshTokenTTL <= 0 {
		deps.RefreshTokenTTL = DefaultRefreshTokenTTL
	}

	return &Service{
		users:              deps.Users,
		refreshTokens:      deps.RefreshTokens,
		verificationTokens: deps.VerificationTokens,
		resetTokens:        deps.ResetTokens,
		securityConfig:     deps.SecurityConfig,
		resetLimiter:       deps.ResetLimiter,
		sessions:           deps.Sessions,
		tokens:             deps.Tokens,
		bus:                deps.Bus,
		logger:             deps.Logger,
		accessTokenTTL:     deps.AccessTokenTTL,
		refreshTokenTTL:    deps.RefreshTokenTTL,
	}
}

// RequestMeta carries the caller's network attribution into events and
// audit records.
type RequestMeta struct {
	IP        string
	UserAgent string
}

func (meta RequestMeta) option() event.PublishOption {
	return event.WithMetadata(meta.IP, meta.UserAgent)
}

// TokenPair is the issuance result shared by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	SessionID    string `json:"session_id"`
}

// # Registration

/*
Register creates an unverified account and dispatches the verification email.

Description: Returns nil even when the email is already registered; the
duplicate is recorded only in the event stream so registration cannot be
used to probe for accounts. New accounts start on the basic tier with
the "user" role, active but unverified.

Parameters:
  - ctx: context.Context
  - email: Raw address; normalized before storage
  - password: Plain password, already policy-checked by the handler
  - meta: Request attribution

Returns:
  - error: Hashing or storage failures only; never the duplicate
*/
func (service *Service) Register(ctx context.Context, email, password string, meta RequestMeta) error {
	email = NormalizeEmail(email)
	service.bus.Publish(ctx, event.UserRegistrationAttempted{
		BaseEvent: event.NewBase(),
		Email:     email,
	}, meta.option())

	if err := ValidatePassword(password); err != nil {
		service.publishRegistrationFailed(ctx, email, ReasonInvalidPassword, meta)
		return err
	}

	hash, err := sec.HashPassword(password)
	if err != nil {
		return err
	}

	user := &User{
		ID:           uuidv7.New(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		SessionTier:  TierBasic,
		Roles:        []string{constants.DefaultRoleUser},
	}

	if err := service.users.Create(ctx, user); err != nil {
		if ae := apperr.As(err); ae != nil && ae.Code == "CONFLICT" {
			// Collapse: the caller sees the same success as a fresh signup.
			service.publishRegistrationFailed(ctx, email, ReasonDuplicateEmail, meta)
			return nil
		}
		return err
	}

	verificationToken, err := service.issueOneShot(ctx, service.verificationTokens, user.ID, VerificationTokenTTL, meta)
	if err != nil {
		return err
	}

	service.bus.Publish(ctx, event.UserRegistered{
		BaseEvent:         event.NewBase(),
		UserID:            user.ID,
		Email:             user.Email,
		VerificationToken: verificationToken.Token,
	}, meta.option())

	return nil
}

func (service *Service) publishRegistrationFailed(ctx context.Context, email, reason string, meta RequestMeta) {
	service.bus.Publish(ctx, event.UserRegistrationFailed{
		BaseEvent: event.NewBase(),
		Email:     email,
		Reason:    reason,
	}, meta.option())
}

// # Login

/*
Login verifies credentials and issues a session with a token pair.

Description: The credential guards run in a fixed order (account exists,
email verified, not locked, account active, password matches) and the
first three failures collapse to one 401 INVALID_CREDENTIALS response.
A disabled account is 403 ACCOUNT_DISABLED: at that point the caller
has proven the credentials, so the distinct code leaks nothing new.
Session creation enforces the tier cap with FIFO eviction.

Returns:
  - *TokenPair: Access JWT plus opaque refresh token
  - error: Tagged [apperr.AppError] failures
*/
func (service *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (*TokenPair, error) {
	email = NormalizeEmail(email)
	service.bus.Publish(ctx, event.UserLoginAttempted{
		BaseEvent: event.NewBase(),
		Email:     email,
	}, meta.option())

	user, err := service.authenticate(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}

	pair, err := service.issueTokenPair(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	service.bus.Publish(ctx, event.UserLoginSucceeded{
		BaseEvent: event.NewBase(),
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: pair.SessionID,
	}, meta.option())

	return pair, nil
}

// authenticate runs the credential guards and maintains the lockout counter.
func (service *Service) authenticate(ctx context.Context, email, password string, meta RequestMeta) (*User, error) {
	fail := func(reason string, appError *apperr.AppError) (*User, error) {
		service.bus.Publish(ctx, event.UserLoginFailed{
			BaseEvent: event.NewBase(),
			Email:     email,
			Reason:    reason,
		}, meta.option())
		return nil, appError.WithReason(reason)
	}

	invalidCredentials := func(reason string) (*User, error) {
		return fail(reason, apperr.Unauthorized("Invalid email or password").WithCode(CodeInvalidCredentials))
	}

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.As(err) != nil {
			return invalidCredentials(ReasonUserNotFound)
		}
		return nil, err
	}

	if !user.IsVerified {
		return invalidCredentials(ReasonEmailNotVerified)
	}

	if user.IsLocked() {
		return invalidCredentials(ReasonAccountLocked)
	}

	if !user.IsActive {
		return fail(ReasonAccountInactive, apperr.Forbidden("Account is disabled").WithCode(CodeAccountDisabled))
	}

	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		user.IncrementFailedLogin()
		if err := service.users.Update(ctx, user); err != nil {
			service.logger.Warn("auth_lockout_update_failed", slog.String("error", err.Error()))
		}
		return invalidCredentials(ReasonInvalidPassword)
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		user.ResetFailedLogin()
		if err := service.users.Update(ctx, user); err != nil {
			service.logger.Warn("auth_lockout_reset_failed", slog.String("error", err.Error()))
		}
	}

	return user, nil
}

/*
issueTokenPair creates the session, refresh token, and access JWT.

Description: The refresh-token ID is generated before the session so the
session row can carry the binding from birth; the refresh record then
points back at the session. The access JWT embeds the session ID and the
user's current token version.
*/
func (service *Service) issueTokenPair(ctx context.Context, user *User, meta RequestMeta) (*TokenPair, error) {
	plain, hash, err := sec.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshTokenID := uuidv7.New()

	securityConfig, err := service.securityConfig.Get(ctx)
	if err != nil {
		return nil, err
	}

	sessionData, err := service.sessions.Create(ctx, session.CreateInput{
		UserID:         user.ID,
		IPAddress:      meta.IP,
		UserAgent:      meta.UserAgent,
		RefreshTokenID: refreshTokenID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &RefreshTokenData{
		ID:                      refreshTokenID,
		UserID:                  user.ID,
		TokenDigest:             sec.TokenDigest(plain),
		TokenHash:               hash,
		SessionID:               sessionData.ID,
		ExpiresAt:               now.Add(service.refreshTokenTTL),
		TokenVersion:            user.MinTokenVersion,
		GlobalVersionAtIssuance: securityConfig.GlobalMinTokenVersion,
		CreatedAt:               now,
	}
	if err := service.refreshTokens.Create(ctx, record); err != nil {
		return nil, err
	}

	accessToken, err := service.tokens.GenerateAccessToken(
		user.ID, user.Email, user.Roles, sessionData.ID, user.MinTokenVersion, service.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: plain,
		TokenType:    "bearer",
		ExpiresIn:    int(service.accessTokenTTL.Seconds()),
		SessionID:    sessionData.ID,
	}, nil
}

// # Logout

/*
Logout revokes the presented refresh token's session.

Description: Always returns nil. A token that is unknown, foreign, or
already revoked yields the same 204 as a live one; the true outcome is
recorded in the event stream. On success the session and every refresh
token bound to it are revoked, so the surviving access JWT dies at the
session-binding check rather than at its natural expiry.

Parameters:
  - ctx: context.Context
  - userID: The bearer of the access token performing the logout
  - refreshToken: Plain refresh token from the request body
  - meta: Request attribution
*/
func (service *Service) Logout(ctx context.Context, userID, refreshToken string, meta RequestMeta) error {
	service.bus.Publish(ctx, event.UserLogoutAttempted{
		BaseEvent: event.NewBase(),
		UserID:    userID,
	}, meta.option())

	failed := func(reason string) {
		service.bus.Publish(ctx, event.UserLogoutFailed{
			BaseEvent: event.NewBase(),
			UserID:    userID,
			Reason:    reason,
		}, meta.option())
	}

	record, err := service.refreshTokens.FindByDigest(ctx, sec.TokenDigest(refreshToken))
	if err != nil || !sec.VerifyOpaqueToken(refreshToken, record.TokenHash) {
		failed(ReasonTokenNotFound)
		return nil
	}

	if record.UserID != userID {
		failed(ReasonTokenUserMismatch)
		return nil
	}

	if record.IsRevoked() {
		failed(ReasonTokenAlreadyRevoked)
		return nil
	}

	if _, err := service.refreshTokens.RevokeAllForSession(ctx, record.SessionID); err != nil {
		service.logger.Warn("auth_logout_token_revoke_failed", slog.String("error", err.Error()))
	}

	if err := service.sessions.Revoke(ctx, userID, record.SessionID, session.ReasonUserLogout); err != nil {
		service.logger.Warn("auth_logout_session_revoke_failed", slog.String("error", err.Error()))
	}

	service.bus.Publish(ctx, event.UserLogoutSucceeded{
		BaseEvent: event.NewBase(),
		UserID:    userID,
		SessionID: record.SessionID,
	}, meta.option())

	return nil
}

// # Token Refresh

/*
Refresh rotates a refresh token and mints a fresh access JWT.

Description: The presented token resolves through its deterministic
digest, must verify against the stored bcrypt hash, belong to an active
account, and satisfy the two-level version check:
its version must reach max(global_min_token_version, user
min_token_version), unless the global grace window is open AND the
token was issued no more than one global generation back. Rotation is
delete-then-insert in one transaction, so a replayed predecessor loses
the race and fails as token_invalid. The new token keeps the session.

Returns:
  - *TokenPair: Fresh access JWT plus successor refresh token
  - error: 401 with one of the TOKEN_* codes, or storage failures
*/
func (service *Service) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*TokenPair, error) {
	service.bus.Publish(ctx, event.TokenRefreshAttempted{
		BaseEvent: event.NewBase(),
	}, meta.option())

	fail := func(reason string, appError *apperr.AppError) (*TokenPair, error) {
		service.bus.Publish(ctx, event.TokenRefreshFailed{
			BaseEvent: event.NewBase(),
			Reason:    reason,
		}, meta.option())
		return nil, appError.WithReason(reason)
	}

	record, err := service.refreshTokens.FindByDigest(ctx, sec.TokenDigest(refreshToken))
	if err != nil {
		if apperr.As(err) != nil {
			return fail(ReasonTokenInvalid, apperr.Unauthorized("Invalid refresh token").WithCode(CodeTokenInvalid))
		}
		return nil, err
	}
	if !sec.VerifyOpaqueToken(refreshToken, record.TokenHash) {
		return fail(ReasonTokenInvalid, apperr.Unauthorized("Invalid refresh token").WithCode(CodeTokenInvalid))
	}

	if record.IsExpired() {
		return fail(ReasonTokenExpired, apperr.Unauthorized("Refresh token expired").WithCode(CodeTokenExpired))
	}
	if record.IsRevoked() {
		return fail(ReasonTokenRevoked, apperr.Unauthorized("Refresh token revoked").WithCode(CodeTokenRevoked))
	}

	user, err := service.users.FindByID(ctx, record.UserID)
	if err != nil {
		if apperr.As(err) != nil {
			return fail(ReasonUserNotFound, apperr.Unauthorized("Invalid refresh token").WithCode(CodeTokenInvalid))
		}
		return nil, err
	}
	if !user.IsActive {
		return fail(ReasonAccountInactive, apperr.Forbidden("Account is disabled").WithCode(CodeAccountDisabled))
	}

	securityConfig, err := service.securityConfig.Get(ctx)
	if err != nil {
		return nil, err
	}

	if rejected, cause := versionRejection(record, user, securityConfig, time.Now()); rejected {
		service.bus.Publish(ctx, event.TokenRejectedDueToRotation{
			BaseEvent:       event.NewBase(),
			UserID:          user.ID,
			TokenVersion:    record.TokenVersion,
			RequiredVersion: requiredVersion(user, securityConfig),
			RejectionReason: cause,
		}, meta.option())
		return fail(ReasonVersionRejected,
			apperr.Unauthorized("Refresh token superseded by rotation").WithCode(CodeTokenVersionRejected))
	}

	plain, hash, err := sec.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	next := &RefreshTokenData{
		ID:                      uuidv7.New(),
		UserID:                  user.ID,
		TokenDigest:             sec.TokenDigest(plain),
		TokenHash:               hash,
		SessionID:               record.SessionID,
		ExpiresAt:               now.Add(service.refreshTokenTTL),
		TokenVersion:            user.MinTokenVersion,
		GlobalVersionAtIssuance: securityConfig.GlobalMinTokenVersion,
		CreatedAt:               now,
	}

	if err := service.refreshTokens.Rotate(ctx, record.ID, next); err != nil {
		if apperr.As(err) != nil {
			// A concurrent refresh consumed the token first.
			return fail(ReasonTokenInvalid, apperr.Unauthorized("Invalid refresh token").WithCode(CodeTokenInvalid))
		}
		return nil, err
	}

	if err := service.sessions.RebindRefreshToken(ctx, record.SessionID, next.ID); err != nil {
		service.logger.Warn("auth_refresh_rebind_failed", slog.String("error", err.Error()))
	}

	accessToken, err := service.tokens.GenerateAccessToken(
		user.ID, user.Email, user.Roles, record.SessionID, user.MinTokenVersion, service.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	service.bus.Publish(ctx, event.TokenRefreshSucceeded{
		BaseEvent: event.NewBase(),
		UserID:    user.ID,
		SessionID: record.SessionID,
	}, meta.option())

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: plain,
		TokenType:    "bearer",
		ExpiresIn:    int(service.accessTokenTTL.Seconds()),
		SessionID:    record.SessionID,
	}, nil
}

// requiredVersion is the floor a refresh token must reach.
func requiredVersion(user *User, config *SecurityConfig) int {
	if user.MinTokenVersion > config.GlobalMinTokenVersion {
		return user.MinTokenVersion
	}
	return config.GlobalMinTokenVersion
}

/*
versionRejection applies the two-level rotation check.

Description: A token below the required floor is normally rejected. The
grace window rescues it only when the window is still open AND the token
was issued no more than one global generation back; per-user rotations
never grant grace, so a targeted revocation bites immediately.

Returns:
  - bool: Whether the token is rejected
  - string: RejectionGlobalRotation or RejectionUserRotation
*/
func versionRejection(record *RefreshTokenData, user *User, config *SecurityConfig, now time.Time) (bool, string) {
	required := requiredVersion(user, config)
	if record.TokenVersion >= required {
		return false, ""
	}

	if record.TokenVersion < user.MinTokenVersion {
		return true, RejectionUserRotation
	}

	if config.IsWithinGracePeriod(now) && record.GlobalVersionAtIssuance >= required-1 {
		return false, ""
	}

	return true, RejectionGlobalRotation
}

// # Email Verification

/*
VerifyEmail consumes a verification token and marks the account verified.

Returns:
  - error: 400 with TOKEN_INVALID, TOKEN_EXPIRED, or TOKEN_USED
*/
func (service *Service) VerifyEmail(ctx context.Context, token string, meta RequestMeta) error {
	service.bus.Publish(ctx, event.EmailVerificationAttempted{
		BaseEvent:   event.NewBase(),
		TokenPrefix: prefixOf(token),
	}, meta.option())

	fail := func(reason string, appError *apperr.AppError) error {
		service.bus.Publish(ctx, event.EmailVerificationFailed{
			BaseEvent: event.NewBase(),
			Reason:    reason,
		}, meta.option())
		return appError.WithReason(reason)
	}

	record, err := service.verificationTokens.FindByToken(ctx, token)
	if err != nil {
		if apperr.As(err) != nil {
			return fail(ReasonTokenNotFound, apperr.ValidationError("Invalid verification token").WithCode(CodeTokenInvalid))
		}
		return err
	}

	if record.IsExpired() {
		return fail(ReasonTokenExpired, apperr.ValidationError("Verification token expired").WithCode(CodeTokenExpired))
	}
	if record.IsUsed() {
		return fail(ReasonTokenAlreadyUsed, apperr.ValidationError("Verification token already used").WithCode(CodeTokenUsed))
	}

	user, err := service.users.FindByID(ctx, record.UserID)
	if err != nil {
		if apperr.As(err) != nil {
			return fail(ReasonUserNotFound, apperr.ValidationError("Invalid verification token").WithCode(CodeTokenInvalid))
		}
		return err
	}

	if err := service.users.MarkVerified(ctx, user.ID); err != nil {
		return err
	}
	if err := service.verificationTokens.MarkUsed(ctx, record.ID); err != nil {
		return err
	}

	service.bus.Publish(ctx, event.EmailVerified{
		BaseEvent: event.NewBase(),
		UserID:    user.ID,
		Email:     user.Email,
	}, meta.option())

	return nil
}

// # Password Reset

/*
RequestPasswordReset initiates the reset flow for an email address.

Description: Always returns nil so the endpoint cannot confirm account
existence. A rolling per-email rate limit caps token generation; hitting
it emits RateLimitExceeded but still responds with the generic 202.
The reset token carries the requester's IP and user agent for the
audit trail.
*/
func (service *Service) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) error {
	email = NormalizeEmail(email)
	service.bus.Publish(ctx, event.PasswordResetRequestAttempted{
		BaseEvent: event.NewBase(),
		Email:     email,
	}, meta.option())

	failed := func(reason string) {
		service.bus.Publish(ctx, event.PasswordResetRequestFailed{
			BaseEvent: event.NewBase(),
			Email:     email,
			Reason:    reason,
		}, meta.option())
	}

	allowed, err := service.resetLimiter.Allow(ctx, email)
	if err != nil {
		// Fail open: an unavailable limiter must not block account recovery.
		service.logger.Warn("auth_reset_rate_limiter_degraded", slog.String("error", err.Error()))
		allowed = true
	}
	if !allowed {
		service.bus.Publish(ctx, event.RateLimitExceeded{
			BaseEvent:     event.NewBase(),
			Endpoint:      "/api/v1/password-reset-tokens",
			Identifier:    email,
			Rule:          "password_reset_per_email",
			Limit:         constants.PasswordResetMaxRequests,
			WindowSeconds: int(constants.PasswordResetWindow.Seconds()),
		}, meta.option())
		failed(ReasonRateLimited)
		return nil
	}

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.As(err) != nil {
			failed(ReasonUserNotFound)
			return nil
		}
		return err
	}

	resetToken, err := service.issueOneShot(ctx, service.resetTokens, user.ID, ResetTokenTTL, meta)
	if err != nil {
		return err
	}

	service.bus.Publish(ctx, event.PasswordResetRequested{
		BaseEvent:   event.NewBase(),
		UserID:      user.ID,
		Email:       user.Email,
		TokenPrefix: resetToken.Prefix(),
		ResetToken:  resetToken.Token,
	}, meta.option())

	return nil
}

/*
ConfirmPasswordReset consumes a reset token and replaces the password.

Description: On success every refresh token of the user is revoked and
the PasswordResetCompleted event drives session revocation through the
session event handler, so all devices are signed out.

Returns:
  - error: 400 with TOKEN_INVALID/TOKEN_EXPIRED/TOKEN_USED, or a
    VALIDATION_ERROR on a weak replacement password
*/
func (service *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	service.bus.Publish(ctx, event.PasswordResetConfirmAttempted{
		BaseEvent:   event.NewBase(),
		TokenPrefix: prefixOf(token),
	}, meta.option())

	fail := func(reason string, appError *apperr.AppError) error {
		service.bus.Publish(ctx, event.PasswordResetConfirmFailed{
			BaseEvent: event.NewBase(),
			Reason:    reason,
		}, meta.option())
		return appError.WithReason(reason)
	}

	record, err := service.resetTokens.FindByToken(ctx, token)
	if err != nil {
		if apperr.As(err) != nil {
			return fail(ReasonTokenNotFound, apperr.ValidationError("Invalid reset token").WithCode(CodeTokenInvalid))
		}
		return err
	}

	if record.IsExpired() {
		return fail(ReasonTokenExpired, apperr.ValidationError("Reset token expired").WithCode(CodeTokenExpired))
	}
	if record.IsUsed() {
		return fail(ReasonTokenAlreadyUsed, apperr.ValidationError("Reset token already used").WithCode(CodeTokenUsed))
	}

	if err := ValidatePassword(newPassword); err != nil {
		return fail(ReasonInvalidPassword, apperr.As(err))
	}

	user, err := service.users.FindByID(ctx, record.UserID)
	if err != nil {
		if apperr.As(err) != nil {
			return fail(ReasonUserNotFound, apperr.ValidationError("Invalid reset token").WithCode(CodeTokenInvalid))
		}
		return err
	}

	hash, err := sec.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := service.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := service.resetTokens.MarkUsed(ctx, record.ID); err != nil {
		return err
	}

	if _, err := service.refreshTokens.RevokeAllForUser(ctx, user.ID); err != nil {
		service.logger.Warn("auth_reset_token_revoke_failed", slog.String("error", err.Error()))
	}

	// The session event handler revokes every session on this event.
	service.bus.Publish(ctx, event.PasswordResetCompleted{
		BaseEvent: event.NewBase(),
		UserID:    user.ID,
		Email:     user.Email,
	}, meta.option())

	return nil
}

// # Password Change

/*
ChangePassword replaces an authenticated user's password.

Description: Requires the current password; on success every refresh
token is revoked and the PasswordChanged event signs out all sessions,
including the one that made the request.

Returns:
  - error: 401 INVALID_CREDENTIALS on a wrong current password, or a
    VALIDATION_ERROR on a weak replacement
*/
func (service *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta RequestMeta) error {
	service.bus.Publish(ctx, event.PasswordChangeAttempted{
		BaseEvent: event.NewBase(),
		UserID:    userID,
	}, meta.option())

	fail := func(reason string, appError *apperr.AppError) error {
		service.bus.Publish(ctx, event.PasswordChangeFailed{
			BaseEvent: event.NewBase(),
			UserID:    userID,
			Reason:    reason,
		}, meta.option())
		return appError.WithReason(reason)
	}

	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return fail(ReasonInvalidPassword,
			apperr.Unauthorized("Current password is incorrect").WithCode(CodeInvalidCredentials))
	}

	if err := ValidatePassword(newPassword); err != nil {
		return fail(ReasonInvalidPassword, apperr.As(err))
	}

	hash, err := sec.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := service.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	if _, err := service.refreshTokens.RevokeAllForUser(ctx, user.ID); err != nil {
		service.logger.Warn("auth_change_token_revoke_failed", slog.String("error", err.Error()))
	}

	service.bus.Publish(ctx, event.PasswordChanged{
		BaseEvent: event.NewBase(),
		UserID:    user.ID,
		Email:     user.Email,
	}, meta.option())

	return nil
}

// # Token Rotation (admin)

/*
RotateGlobalTokenVersion advances the global refresh-token floor by one.

Description: Serialized on the singleton row, so concurrent rotations
cannot skip or regress versions. The grace window restarts from this
rotation.

Returns:
  - *SecurityConfig: The post-rotation state
  - error: Storage failures
*/
func (service *Service) RotateGlobalTokenVersion(ctx context.Context, initiatedBy, reason string, meta RequestMeta) (*SecurityConfig, error) {
	service.bus.Publish(ctx, event.GlobalTokenRotationAttempted{
		BaseEvent:   event.NewBase(),
		InitiatedBy: initiatedBy,
	}, meta.option())

	fail := func(reason string, err error) (*SecurityConfig, error) {
		service.bus.Publish(ctx, event.GlobalTokenRotationFailed{
			BaseEvent:   event.NewBase(),
			InitiatedBy: initiatedBy,
			Reason:      reason,
		}, meta.option())
		return nil, err
	}

	current, err := service.securityConfig.Get(ctx)
	if err != nil {
		return fail("config_read_failed", err)
	}

	updated, err := service.securityConfig.UpdateGlobalVersion(ctx, current.GlobalMinTokenVersion+1, reason)
	if err != nil {
		return fail("config_update_failed", err)
	}

	service.bus.Publish(ctx, event.GlobalTokenRotationCompleted{
		BaseEvent:          event.NewBase(),
		InitiatedBy:        initiatedBy,
		PreviousVersion:    current.GlobalMinTokenVersion,
		NewVersion:         updated.GlobalMinTokenVersion,
		GracePeriodSeconds: updated.GracePeriodSeconds,
		Reason:             reason,
	}, meta.option())

	return updated, nil
}

/*
RotateUserTokenVersion advances one user's refresh-token floor by one.

Description: Per-user rotations grant no grace window: every refresh
token the user holds dies on its next use.

Returns:
  - int: Previous version
  - int: New version
  - error: apperr.NotFound for unknown users
*/
func (service *Service) RotateUserTokenVersion(ctx context.Context, targetUserID, initiatedBy string, meta RequestMeta) (int, int, error) {
	service.bus.Publish(ctx, event.UserTokenRotationAttempted{
		BaseEvent:    event.NewBase(),
		TargetUserID: targetUserID,
		InitiatedBy:  initiatedBy,
	}, meta.option())

	fail := func(reason string, err error) (int, int, error) {
		service.bus.Publish(ctx, event.UserTokenRotationFailed{
			BaseEvent:    event.NewBase(),
			TargetUserID: targetUserID,
			Reason:       reason,
		}, meta.option())
		return 0, 0, err
	}

	user, err := service.users.FindByID(ctx, targetUserID)
	if err != nil {
		if apperr.As(err) != nil {
			return fail(ReasonUserNotFound, err)
		}
		return fail("user_read_failed", err)
	}

	previous, err := service.users.UpdateMinTokenVersion(ctx, user.ID, user.MinTokenVersion+1)
	if err != nil {
		return fail("version_update_failed", err)
	}

	newVersion := previous + 1
	service.bus.Publish(ctx, event.UserTokenRotationCompleted{
		BaseEvent:       event.NewBase(),
		TargetUserID:    targetUserID,
		InitiatedBy:     initiatedBy,
		PreviousVersion: previous,
		NewVersion:      newVersion,
	}, meta.option())

	return previous, newVersion, nil
}

// # Helpers

// issueOneShot generates and persists a hex one-shot token.
func (service *Service) issueOneShot(ctx context.Context, repo OneShotTokenRepository, userID string, ttl time.Duration, meta RequestMeta) (*OneShotToken, error) {
	tokenValue, err := sec.GenerateHexToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	token := &OneShotToken{
		ID:               uuidv7.New(),
		UserID:           userID,
		Token:            tokenValue,
		ExpiresAt:        now.Add(ttl),
		RequestIP:        meta.IP,
		RequestUserAgent: meta.UserAgent,
		CreatedAt:        now,
	}
	if err := repo.Create(ctx, token); err != nil {
		return nil, err
	}

	return token, nil
}

// ValidatePassword applies the length policy.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLen {
		return apperr.ValidationError("Password is too short",
			apperr.FieldError{Field: FieldPassword, Message: "must be at least 8 characters"})
	}
	if len(password) > PasswordMaxLen {
		return apperr.ValidationError("Password is too long",
			apperr.FieldError{Field: FieldPassword, Message: "must be at most 128 characters"})
	}
	return nil
}

// prefixOf returns the loggable head of a raw token string.
func prefixOf(token string) string {
	if len(token) < TokenPrefixLen {
		return token
	}
	return token[:TokenPrefixLen]
}

// # Session Directory

// Directory adapts the user repository to [session.UserDirectory],
// breaking the construction cycle between the two services.
type Directory struct {
	users UserRepository
}

// NewDirectory creates the session-tier directory.
func NewDirectory(users UserRepository) *Directory {
	return &Directory{users: users}
}

// MaxSessionsFor returns the concurrent-session cap of the user's tier.
func (directory *Directory) MaxSessionsFor(ctx context.Context, userID string) (int, error) {
	user, err := directory.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.SessionTier.MaxSessions(), nil
}

var _ session.UserDirectory = (*Directory)(nil)
var _ event.SessionRevoker = (*session.Service)(nil)
