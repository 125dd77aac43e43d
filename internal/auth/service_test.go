// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/auth"
	"github.com/dashtam/dashtam/internal/event"
	"github.com/dashtam/dashtam/internal/platform/apperr"
	"github.com/dashtam/dashtam/internal/platform/sec"
	"github.com/dashtam/dashtam/internal/session"
	"github.com/dashtam/dashtam/pkg/uuidv7"
)

const testPassword = "correct-horse-battery"

// Hashed once; bcrypt cost 12 is too slow to pay per test.
var testPasswordHash = func() string {
	hash, err := sec.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return hash
}()

// # Fakes

type capturingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (bus *capturingBus) Publish(ctx context.Context, e event.Event, opts ...event.PublishOption) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.events = append(bus.events, e)
}

// eventsOf returns every captured event of the given concrete type, in
// publish order.
func eventsOf[T event.Event](bus *capturingBus) []T {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	var matched []T
	for _, e := range bus.events {
		if typed, ok := e.(T); ok {
			matched = append(matched, typed)
		}
	}
	return matched
}

type fakeUserRepo struct {
	byID map[string]*auth.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*auth.User)}
}

func (repo *fakeUserRepo) add(user *auth.User) {
	clone := *user
	repo.byID[user.ID] = &clone
}

func (repo *fakeUserRepo) Create(ctx context.Context, user *auth.User) error {
	for _, existing := range repo.byID {
		if existing.Email == user.Email && existing.DeletedAt == nil {
			return apperr.Conflict("Email already registered")
		}
	}
	repo.add(user)
	return nil
}

func (repo *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	for _, user := range repo.byID {
		if user.Email == email && user.DeletedAt == nil {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (repo *fakeUserRepo) FindByID(ctx context.Context, userID string) (*auth.User, error) {
	user, ok := repo.byID[userID]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	clone := *user
	return &clone, nil
}

func (repo *fakeUserRepo) Update(ctx context.Context, user *auth.User) error {
	if _, ok := repo.byID[user.ID]; !ok {
		return apperr.NotFound("User")
	}
	repo.add(user)
	return nil
}

func (repo *fakeUserRepo) UpdatePassword(ctx context.Context, userID, newHash string) error {
	user, ok := repo.byID[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.PasswordHash = newHash
	return nil
}

func (repo *fakeUserRepo) MarkVerified(ctx context.Context, userID string) error {
	user, ok := repo.byID[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.IsVerified = true
	return nil
}

func (repo *fakeUserRepo) UpdateMinTokenVersion(ctx context.Context, userID string, newVersion int) (int, error) {
	user, ok := repo.byID[userID]
	if !ok {
		return 0, apperr.NotFound("User")
	}
	previous := user.MinTokenVersion
	if newVersion > previous {
		user.MinTokenVersion = newVersion
	}
	return previous, nil
}

type fakeRefreshRepo struct {
	byID map[string]*auth.RefreshTokenData
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{byID: make(map[string]*auth.RefreshTokenData)}
}

func (repo *fakeRefreshRepo) Create(ctx context.Context, token *auth.RefreshTokenData) error {
	clone := *token
	repo.byID[token.ID] = &clone
	return nil
}

func (repo *fakeRefreshRepo) FindByDigest(ctx context.Context, digest string) (*auth.RefreshTokenData, error) {
	for _, token := range repo.byID {
		if token.TokenDigest == digest {
			clone := *token
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Refresh token")
}

func (repo *fakeRefreshRepo) Rotate(ctx context.Context, oldTokenID string, next *auth.RefreshTokenData) error {
	if _, ok := repo.byID[oldTokenID]; !ok {
		return apperr.NotFound("Refresh token")
	}
	delete(repo.byID, oldTokenID)
	clone := *next
	repo.byID[next.ID] = &clone
	return nil
}

func (repo *fakeRefreshRepo) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	return repo.revokeWhere(func(t *auth.RefreshTokenData) bool { return t.UserID == userID }), nil
}

func (repo *fakeRefreshRepo) RevokeAllForSession(ctx context.Context, sessionID string) (int, error) {
	return repo.revokeWhere(func(t *auth.RefreshTokenData) bool { return t.SessionID == sessionID }), nil
}

func (repo *fakeRefreshRepo) revokeWhere(match func(*auth.RefreshTokenData) bool) int {
	now := time.Now()
	revoked := 0
	for _, token := range repo.byID {
		if token.RevokedAt == nil && match(token) {
			token.RevokedAt = &now
			revoked++
		}
	}
	return revoked
}

func (repo *fakeRefreshRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	deleted := 0
	for id, token := range repo.byID {
		if token.ExpiresAt.Before(before) {
			delete(repo.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeOneShotRepo struct {
	byID map[string]*auth.OneShotToken
}

func newFakeOneShotRepo() *fakeOneShotRepo {
	return &fakeOneShotRepo{byID: make(map[string]*auth.OneShotToken)}
}

func (repo *fakeOneShotRepo) Create(ctx context.Context, token *auth.OneShotToken) error {
	clone := *token
	repo.byID[token.ID] = &clone
	return nil
}

func (repo *fakeOneShotRepo) FindByToken(ctx context.Context, token string) (*auth.OneShotToken, error) {
	for _, record := range repo.byID {
		if record.Token == token {
			clone := *record
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Token")
}

func (repo *fakeOneShotRepo) MarkUsed(ctx context.Context, tokenID string) error {
	record, ok := repo.byID[tokenID]
	if !ok {
		return apperr.NotFound("Token")
	}
	if record.UsedAt != nil {
		return apperr.Conflict("Token already used")
	}
	now := time.Now()
	record.UsedAt = &now
	return nil
}

type fakeSecurityRepo struct {
	config auth.SecurityConfig
}

func (repo *fakeSecurityRepo) Get(ctx context.Context) (*auth.SecurityConfig, error) {
	clone := repo.config
	return &clone, nil
}

func (repo *fakeSecurityRepo) UpdateGlobalVersion(ctx context.Context, newVersion int, reason string) (*auth.SecurityConfig, error) {
	if newVersion > repo.config.GlobalMinTokenVersion {
		repo.config.GlobalMinTokenVersion = newVersion
		repo.config.LastRotationAt = time.Now()
		repo.config.Reason = reason
	}
	clone := repo.config
	return &clone, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (limiter *fakeLimiter) Allow(ctx context.Context, email string) (bool, error) {
	return limiter.allowed, limiter.err
}

type revocation struct {
	userID    string
	sessionID string
	reason    string
}

type fakeSessions struct {
	created []session.CreateInput
	revoked []revocation
	rebound map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rebound: make(map[string]string)}
}

func (sessions *fakeSessions) Create(ctx context.Context, input session.CreateInput) (*session.SessionData, error) {
	sessions.created = append(sessions.created, input)
	return &session.SessionData{
		ID:             uuidv7.New(),
		UserID:         input.UserID,
		RefreshTokenID: input.RefreshTokenID,
	}, nil
}

func (sessions *fakeSessions) Revoke(ctx context.Context, userID, sessionID, reason string) error {
	sessions.revoked = append(sessions.revoked, revocation{userID, sessionID, reason})
	return nil
}

func (sessions *fakeSessions) RebindRefreshToken(ctx context.Context, sessionID, refreshTokenID string) error {
	sessions.rebound[sessionID] = refreshTokenID
	return nil
}

// # Fixture

type fixture struct {
	users         *fakeUserRepo
	refreshTokens *fakeRefreshRepo
	verifications *fakeOneShotRepo
	resets        *fakeOneShotRepo
	security      *fakeSecurityRepo
	limiter       *fakeLimiter
	sessions      *fakeSessions
	bus           *capturingBus
	service       *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := sec.NewTokenService("0123456789abcdef0123456789abcdef", "api.dashtam.test")
	require.NoError(t, err)

	f := &fixture{
		users:         newFakeUserRepo(),
		refreshTokens: newFakeRefreshRepo(),
		verifications: newFakeOneShotRepo(),
		resets:        newFakeOneShotRepo(),
		security:      &fakeSecurityRepo{config: auth.SecurityConfig{GracePeriodSeconds: auth.DefaultGracePeriodSeconds}},
		limiter:       &fakeLimiter{allowed: true},
		sessions:      newFakeSessions(),
		bus:           &capturingBus{},
	}
	f.service = auth.NewService(auth.Deps{
		Users:              f.users,
		RefreshTokens:      f.refreshTokens,
		VerificationTokens: f.verifications,
		ResetTokens:        f.resets,
		SecurityConfig:     f.security,
		ResetLimiter:       f.limiter,
		Sessions:           f.sessions,
		Tokens:             tokens,
		Bus:                f.bus,
		Logger:             slog.Default(),
	})
	return f
}

func (f *fixture) seedUser(mutate func(*auth.User)) *auth.User {
	user := &auth.User{
		ID:           uuidv7.New(),
		Email:        "user@example.com",
		PasswordHash: testPasswordHash,
		IsVerified:   true,
		IsActive:     true,
		SessionTier:  auth.TierBasic,
		Roles:        []string{"user"},
	}
	if mutate != nil {
		mutate(user)
	}
	f.users.add(user)
	return user
}

var meta = auth.RequestMeta{IP: "203.0.113.9", UserAgent: "test-agent/1.0"}

// # Registration

/*
TestService_Register covers the happy path, the duplicate-email collapse,
and the password policy gate.
*/
func TestService_Register(t *testing.T) {
	t.Run("creates_unverified_account_with_verification_token", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.service.Register(context.Background(), "New.User@Example.com ", testPassword, meta))

		user, err := f.users.FindByEmail(context.Background(), "new.user@example.com")
		require.NoError(t, err)
		assert.False(t, user.IsVerified)
		assert.True(t, user.IsActive)
		assert.Equal(t, auth.TierBasic, user.SessionTier)
		assert.Equal(t, []string{"user"}, user.Roles)
		assert.NotEqual(t, testPassword, user.PasswordHash)

		registered := eventsOf[event.UserRegistered](f.bus)
		require.Len(t, registered, 1)
		assert.Len(t, registered[0].VerificationToken, 64)
		assert.Len(t, f.verifications.byID, 1)
	})

	t.Run("duplicate_email_collapses_to_success", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser(nil)

		require.NoError(t, f.service.Register(context.Background(), "user@example.com", testPassword, meta))

		failed := eventsOf[event.UserRegistrationFailed](f.bus)
		require.Len(t, failed, 1)
		assert.Equal(t, auth.ReasonDuplicateEmail, failed[0].Reason)

		// No verification token leaks for the existing account.
		assert.Empty(t, f.verifications.byID)
		assert.Empty(t, eventsOf[event.UserRegistered](f.bus))
	})

	t.Run("short_password_is_rejected", func(t *testing.T) {
		f := newFixture(t)

		err := f.service.Register(context.Background(), "new@example.com", "short", meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, "VALIDATION_ERROR", appError.Code)
		assert.Empty(t, f.users.byID)
	})
}

// # Login

/*
TestService_Login_GuardCollapse verifies that the account-probing guards
collapse to one external 401 while the event stream keeps the true
reason, and that a disabled account gets its distinct 403.
*/
func TestService_Login_GuardCollapse(t *testing.T) {
	locked := time.Now().Add(10 * time.Minute)

	tests := []struct {
		name       string
		seed       func(f *fixture)
		email      string
		wantStatus int
		wantCode   string
		wantReason string
	}{
		{
			name:       "unknown_email",
			seed:       func(f *fixture) {},
			email:      "nobody@example.com",
			wantStatus: 401,
			wantCode:   auth.CodeInvalidCredentials,
			wantReason: auth.ReasonUserNotFound,
		},
		{
			name: "unverified_email",
			seed: func(f *fixture) {
				f.seedUser(func(u *auth.User) { u.IsVerified = false })
			},
			email:      "user@example.com",
			wantStatus: 401,
			wantCode:   auth.CodeInvalidCredentials,
			wantReason: auth.ReasonEmailNotVerified,
		},
		{
			name: "locked_account",
			seed: func(f *fixture) {
				f.seedUser(func(u *auth.User) { u.LockedUntil = &locked })
			},
			email:      "user@example.com",
			wantStatus: 401,
			wantCode:   auth.CodeInvalidCredentials,
			wantReason: auth.ReasonAccountLocked,
		},
		{
			name: "disabled_account",
			seed: func(f *fixture) {
				f.seedUser(func(u *auth.User) { u.IsActive = false })
			},
			email:      "user@example.com",
			wantStatus: 403,
			wantCode:   auth.CodeAccountDisabled,
			wantReason: auth.ReasonAccountInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.seed(f)

			pair, err := f.service.Login(context.Background(), tt.email, testPassword, meta)
			require.Nil(t, pair)

			appError := apperr.As(err)
			require.NotNil(t, appError)
			assert.Equal(t, tt.wantStatus, appError.HTTPStatus)
			assert.Equal(t, tt.wantCode, appError.Code)
			assert.Equal(t, tt.wantReason, appError.Reason)

			failed := eventsOf[event.UserLoginFailed](f.bus)
			require.Len(t, failed, 1)
			assert.Equal(t, tt.wantReason, failed[0].Reason)
		})
	}
}

/*
TestService_Login_WrongPasswordLockout drives the failure counter to the
threshold and checks the lockout persists.
*/
func TestService_Login_WrongPasswordLockout(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedUser(nil)

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		_, err := f.service.Login(context.Background(), seeded.Email, "wrong-password", meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, auth.ReasonInvalidPassword, appError.Reason)
	}

	stored, err := f.users.FindByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsLocked())

	// Even the correct password is refused while the lockout holds.
	_, err = f.service.Login(context.Background(), seeded.Email, testPassword, meta)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, auth.ReasonAccountLocked, appError.Reason)
}

/*
TestService_Login_IssuesPair checks the issued pair: session binding,
hashed-at-rest refresh token, and access JWT claims.
*/
func TestService_Login_IssuesPair(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedUser(nil)

	pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
	require.NoError(t, err)

	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int((15 * time.Minute).Seconds()), pair.ExpiresIn)
	assert.NotEmpty(t, pair.SessionID)

	// The session was created with the refresh-token binding from birth.
	require.Len(t, f.sessions.created, 1)
	require.Len(t, f.refreshTokens.byID, 1)
	for _, record := range f.refreshTokens.byID {
		assert.Equal(t, f.sessions.created[0].RefreshTokenID, record.ID)
		assert.Equal(t, pair.SessionID, record.SessionID)
		assert.NotEqual(t, pair.RefreshToken, record.TokenHash)
	}

	tokens, err := sec.NewTokenService("0123456789abcdef0123456789abcdef", "api.dashtam.test")
	require.NoError(t, err)
	claims, err := tokens.VerifyToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, claims.UserID())
	assert.Equal(t, pair.SessionID, claims.SessionID)
	assert.Equal(t, []string{"user"}, claims.Roles)

	succeeded := eventsOf[event.UserLoginSucceeded](f.bus)
	require.Len(t, succeeded, 1)
	assert.Equal(t, pair.SessionID, succeeded[0].SessionID)
}

// # Refresh

/*
TestService_Refresh_RotatesOnce verifies rotation consumes the
predecessor: the new token works, the replayed old one does not.
*/
func TestService_Refresh_RotatesOnce(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedUser(nil)

	pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
	require.NoError(t, err)

	next, err := f.service.Refresh(context.Background(), pair.RefreshToken, meta)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, next.SessionID)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The session follows the rotation to the successor token.
	require.Len(t, f.refreshTokens.byID, 1)
	for id := range f.refreshTokens.byID {
		assert.Equal(t, id, f.sessions.rebound[pair.SessionID])
	}

	// Replaying the consumed predecessor fails closed.
	replayed, err := f.service.Refresh(context.Background(), pair.RefreshToken, meta)
	require.Nil(t, replayed)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, auth.CodeTokenInvalid, appError.Code)
	assert.Equal(t, auth.ReasonTokenInvalid, appError.Reason)
}

/*
TestService_Refresh_VersionRejected checks that a per-user rotation kills
outstanding refresh tokens immediately, grace window or not.
*/
func TestService_Refresh_VersionRejected(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedUser(nil)

	pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
	require.NoError(t, err)

	previous, newVersion, err := f.service.RotateUserTokenVersion(context.Background(), seeded.ID, "admin-1", meta)
	require.NoError(t, err)
	assert.Equal(t, 0, previous)
	assert.Equal(t, 1, newVersion)

	refreshed, err := f.service.Refresh(context.Background(), pair.RefreshToken, meta)
	require.Nil(t, refreshed)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, auth.CodeTokenVersionRejected, appError.Code)

	rejections := eventsOf[event.TokenRejectedDueToRotation](f.bus)
	require.Len(t, rejections, 1)
	assert.Equal(t, auth.RejectionUserRotation, rejections[0].RejectionReason)
	assert.Equal(t, 0, rejections[0].TokenVersion)
	assert.Equal(t, 1, rejections[0].RequiredVersion)
}

/*
TestService_Refresh_GlobalRotationGrace verifies the grace window keeps
one-generation-old tokens alive after a global rotation.
*/
func TestService_Refresh_GlobalRotationGrace(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedUser(nil)

	pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
	require.NoError(t, err)

	updated, err := f.service.RotateGlobalTokenVersion(context.Background(), "admin-1", "credential hygiene", meta)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.GlobalMinTokenVersion)

	// One generation back, window open: the refresh still succeeds.
	refreshed, err := f.service.Refresh(context.Background(), pair.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotNil(t, refreshed)
}

/*
TestService_Refresh_DigestLookup verifies the presented token resolves
through its deterministic digest: a valid token keeps refreshing no
matter how many other live tokens exist, and the at-rest record never
carries the plain form.
*/
func TestService_Refresh_DigestLookup(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedUser(nil)

	pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
	require.NoError(t, err)

	for _, record := range f.refreshTokens.byID {
		assert.Equal(t, sec.TokenDigest(pair.RefreshToken), record.TokenDigest)
		assert.NotEqual(t, pair.RefreshToken, record.TokenDigest)
	}

	// Crowd the table with live tokens belonging to other users.
	now := time.Now()
	for i := 0; i < 600; i++ {
		other := uuidv7.New()
		require.NoError(t, f.refreshTokens.Create(context.Background(), &auth.RefreshTokenData{
			ID:          uuidv7.New(),
			UserID:      other,
			TokenDigest: sec.TokenDigest(other),
			TokenHash:   "$2a$12$unverifiable",
			SessionID:   uuidv7.New(),
			ExpiresAt:   now.Add(time.Hour),
			CreatedAt:   now,
		}))
	}

	refreshed, err := f.service.Refresh(context.Background(), pair.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotNil(t, refreshed)
}

/*
TestService_Refresh_StoredTokenStates checks that expired and revoked
records, now reachable through the exact lookup, surface their precise
rejection codes.
*/
func TestService_Refresh_StoredTokenStates(t *testing.T) {
	seedRecord := func(t *testing.T, f *fixture, userID string, mutate func(*auth.RefreshTokenData)) string {
		t.Helper()
		plain, hash, err := sec.GenerateOpaqueToken()
		require.NoError(t, err)

		now := time.Now()
		record := &auth.RefreshTokenData{
			ID:          uuidv7.New(),
			UserID:      userID,
			TokenDigest: sec.TokenDigest(plain),
			TokenHash:   hash,
			SessionID:   uuidv7.New(),
			ExpiresAt:   now.Add(time.Hour),
			CreatedAt:   now,
		}
		mutate(record)
		require.NoError(t, f.refreshTokens.Create(context.Background(), record))
		return plain
	}

	t.Run("expired_token", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)
		plain := seedRecord(t, f, seeded.ID, func(r *auth.RefreshTokenData) {
			r.ExpiresAt = time.Now().Add(-time.Minute)
		})

		_, err := f.service.Refresh(context.Background(), plain, meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, auth.CodeTokenExpired, appError.Code)
	})

	t.Run("revoked_token", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)
		revokedAt := time.Now().Add(-time.Minute)
		plain := seedRecord(t, f, seeded.ID, func(r *auth.RefreshTokenData) {
			r.RevokedAt = &revokedAt
		})

		_, err := f.service.Refresh(context.Background(), plain, meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, auth.CodeTokenRevoked, appError.Code)
	})
}

// # Logout

/*
TestService_Logout verifies the generic-success contract and the
session-wide revocation on a genuine logout.
*/
func TestService_Logout(t *testing.T) {
	t.Run("unknown_token_still_succeeds", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)

		require.NoError(t, f.service.Logout(context.Background(), seeded.ID, "no-such-token", meta))

		failed := eventsOf[event.UserLogoutFailed](f.bus)
		require.Len(t, failed, 1)
		assert.Equal(t, auth.ReasonTokenNotFound, failed[0].Reason)
		assert.Empty(t, f.sessions.revoked)
	})

	t.Run("foreign_token_still_succeeds", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)
		pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
		require.NoError(t, err)

		require.NoError(t, f.service.Logout(context.Background(), "some-other-user", pair.RefreshToken, meta))

		failed := eventsOf[event.UserLogoutFailed](f.bus)
		require.Len(t, failed, 1)
		assert.Equal(t, auth.ReasonTokenUserMismatch, failed[0].Reason)
		assert.Empty(t, f.sessions.revoked)
	})

	t.Run("revokes_session_and_bound_tokens", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)
		pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
		require.NoError(t, err)

		require.NoError(t, f.service.Logout(context.Background(), seeded.ID, pair.RefreshToken, meta))

		require.Len(t, f.sessions.revoked, 1)
		assert.Equal(t, revocation{seeded.ID, pair.SessionID, session.ReasonUserLogout}, f.sessions.revoked[0])

		for _, record := range f.refreshTokens.byID {
			assert.NotNil(t, record.RevokedAt)
		}
		assert.Len(t, eventsOf[event.UserLogoutSucceeded](f.bus), 1)
	})
}

// # Email Verification

/*
TestService_VerifyEmail covers consumption, expiry, and single use.
*/
func TestService_VerifyEmail(t *testing.T) {
	t.Run("marks_account_verified", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.Register(context.Background(), "new@example.com", testPassword, meta))
		registered := eventsOf[event.UserRegistered](f.bus)
		require.Len(t, registered, 1)

		require.NoError(t, f.service.VerifyEmail(context.Background(), registered[0].VerificationToken, meta))

		user, err := f.users.FindByEmail(context.Background(), "new@example.com")
		require.NoError(t, err)
		assert.True(t, user.IsVerified)

		// Second consumption fails: the token is single-use.
		err = f.service.VerifyEmail(context.Background(), registered[0].VerificationToken, meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, auth.CodeTokenUsed, appError.Code)
	})

	t.Run("unknown_token", func(t *testing.T) {
		f := newFixture(t)

		err := f.service.VerifyEmail(context.Background(), "deadbeef", meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, auth.CodeTokenInvalid, appError.Code)
		assert.Equal(t, 400, appError.HTTPStatus)
	})
}

// # Password Reset

/*
TestService_RequestPasswordReset verifies the enumeration-proof response,
the per-email rate limit, and the fail-open limiter.
*/
func TestService_RequestPasswordReset(t *testing.T) {
	t.Run("unknown_email_returns_generic_success", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.service.RequestPasswordReset(context.Background(), "nobody@example.com", meta))

		failed := eventsOf[event.PasswordResetRequestFailed](f.bus)
		require.Len(t, failed, 1)
		assert.Equal(t, auth.ReasonUserNotFound, failed[0].Reason)
		assert.Empty(t, f.resets.byID)
	})

	t.Run("issues_token_with_attribution", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)

		require.NoError(t, f.service.RequestPasswordReset(context.Background(), seeded.Email, meta))

		require.Len(t, f.resets.byID, 1)
		for _, token := range f.resets.byID {
			assert.Equal(t, meta.IP, token.RequestIP)
			assert.Equal(t, meta.UserAgent, token.RequestUserAgent)
		}

		requested := eventsOf[event.PasswordResetRequested](f.bus)
		require.Len(t, requested, 1)
		assert.Len(t, requested[0].TokenPrefix, auth.TokenPrefixLen)
	})

	t.Run("rate_limited_collapses_to_success", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser(nil)
		f.limiter.allowed = false

		require.NoError(t, f.service.RequestPasswordReset(context.Background(), "user@example.com", meta))

		assert.Empty(t, f.resets.byID)
		exceeded := eventsOf[event.RateLimitExceeded](f.bus)
		require.Len(t, exceeded, 1)
		assert.Equal(t, "password_reset_per_email", exceeded[0].Rule)
	})

	t.Run("limiter_outage_fails_open", func(t *testing.T) {
		f := newFixture(t)
		f.seedUser(nil)
		f.limiter.allowed = false
		f.limiter.err = assert.AnError

		require.NoError(t, f.service.RequestPasswordReset(context.Background(), "user@example.com", meta))
		assert.Len(t, f.resets.byID, 1)
	})
}

/*
TestService_ConfirmPasswordReset covers the completing half: password
replacement, token consumption, and the all-devices sign-out.
*/
func TestService_ConfirmPasswordReset(t *testing.T) {
	t.Run("replaces_password_and_revokes_tokens", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)
		pair, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
		require.NoError(t, err)
		require.NoError(t, f.service.RequestPasswordReset(context.Background(), seeded.Email, meta))

		requested := eventsOf[event.PasswordResetRequested](f.bus)
		require.Len(t, requested, 1)

		require.NoError(t, f.service.ConfirmPasswordReset(context.Background(), requested[0].ResetToken, "a-brand-new-password", meta))

		stored, err := f.users.FindByID(context.Background(), seeded.ID)
		require.NoError(t, err)
		assert.NotEqual(t, testPasswordHash, stored.PasswordHash)

		for _, record := range f.refreshTokens.byID {
			assert.NotNil(t, record.RevokedAt)
		}
		assert.Len(t, eventsOf[event.PasswordResetCompleted](f.bus), 1)

		// The old refresh token is dead along with the session.
		replayed, err := f.service.Refresh(context.Background(), pair.RefreshToken, meta)
		require.Nil(t, replayed)
		require.NotNil(t, apperr.As(err))
	})

	t.Run("expired_token", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)

		expired := &auth.OneShotToken{
			ID:        uuidv7.New(),
			UserID:    seeded.ID,
			Token:     "expired-token-value",
			ExpiresAt: time.Now().Add(-time.Minute),
			CreatedAt: time.Now().Add(-time.Hour),
		}
		require.NoError(t, f.resets.Create(context.Background(), expired))

		err := f.service.ConfirmPasswordReset(context.Background(), expired.Token, "a-brand-new-password", meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, auth.CodeTokenExpired, appError.Code)
	})
}

// # Password Change

/*
TestService_ChangePassword verifies the current-password gate and the
all-devices sign-out on success.
*/
func TestService_ChangePassword(t *testing.T) {
	t.Run("wrong_current_password", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)

		err := f.service.ChangePassword(context.Background(), seeded.ID, "wrong-password", "a-brand-new-password", meta)
		appError := apperr.As(err)
		require.NotNil(t, appError)
		assert.Equal(t, auth.CodeInvalidCredentials, appError.Code)
		assert.Equal(t, 401, appError.HTTPStatus)
	})

	t.Run("replaces_password_and_revokes_tokens", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedUser(nil)
		_, err := f.service.Login(context.Background(), seeded.Email, testPassword, meta)
		require.NoError(t, err)

		require.NoError(t, f.service.ChangePassword(context.Background(), seeded.ID, testPassword, "a-brand-new-password", meta))

		for _, record := range f.refreshTokens.byID {
			assert.NotNil(t, record.RevokedAt)
		}
		assert.Len(t, eventsOf[event.PasswordChanged](f.bus), 1)
	})
}

// # Rotation (admin)

/*
TestService_RotateGlobalTokenVersion pins the serialized version advance
and the restarted grace window.
*/
func TestService_RotateGlobalTokenVersion(t *testing.T) {
	f := newFixture(t)

	updated, err := f.service.RotateGlobalTokenVersion(context.Background(), "admin-1", "suspected leak", meta)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.GlobalMinTokenVersion)
	assert.Equal(t, "suspected leak", updated.Reason)
	assert.True(t, updated.IsWithinGracePeriod(time.Now()))

	completed := eventsOf[event.GlobalTokenRotationCompleted](f.bus)
	require.Len(t, completed, 1)
	assert.Equal(t, 0, completed[0].PreviousVersion)
	assert.Equal(t, 1, completed[0].NewVersion)
}
