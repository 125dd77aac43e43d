// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dashtam/dashtam/internal/event"
	"github.com/dashtam/dashtam/internal/platform/apperr"
	"github.com/dashtam/dashtam/internal/platform/geoip"
	"github.com/dashtam/dashtam/internal/platform/sec"
	"github.com/dashtam/dashtam/pkg/useragent"
	"github.com/dashtam/dashtam/pkg/uuid"
)

// Service orchestrates the session lifecycle.
//
// # Cache Policy
//
// Write ordering is repository → cache → event publish. Reads go cache
// first with repository fallback. Every cache failure is logged as a
// warning and degraded; no cache error ever reaches a caller.
type Service struct {
	repository Repository
	cache      Cache
	users      UserDirectory
	geo        geoip.Resolver
	bus        event.Publisher
	logger     *slog.Logger
}

// NewService constructs the session service.
func NewService(
	repository Repository,
	cache Cache,
	users UserDirectory,
	geo geoip.Resolver,
	bus event.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		repository: repository,
		cache:      cache,
		users:      users,
		geo:        geo,
		bus:        bus,
		logger:     logger,
	}
}

// # Creation

// CreateInput describes a login's session request.
type CreateInput struct {
	UserID         string
	IPAddress      string
	UserAgent      string
	ExpiresAt      time.Time // zero selects now + DefaultSessionTTL
	RefreshTokenID string
}

/*
Create establishes a new session for the user, enforcing the tier cap.

Description: Enriches device info from the user agent and location from
the IP (both tolerate empty input). When the user's active-session count
has reached the tier cap, the oldest active session is revoked first
(reason session_limit_exceeded) and a SessionEvicted event precedes the
SessionCreated event.

Parameters:
  - ctx: context.Context
  - input: CreateInput

Returns:
  - *SessionData: The created session
  - error: apperr.NotFound for unknown users, or storage failures
*/
func (service *Service) Create(ctx context.Context, input CreateInput) (*SessionData, error) {
	maxSessions, err := service.users.MaxSessionsFor(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	deviceInfo := useragent.Parse(input.UserAgent)
	location := service.geo.Locate(ctx, input.IPAddress)

	// Tier cap enforcement, FIFO. maxSessions == 0 means unlimited.
	if maxSessions > 0 {
		activeCount, err := service.repository.CountActiveSessions(ctx, input.UserID)
		if err != nil {
			return nil, err
		}

		if activeCount >= maxSessions {
			if err := service.evictOldest(ctx, input); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now()
	expiresAt := input.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultSessionTTL)
	}

	session := &SessionData{
		ID:             uuid.New(),
		UserID:         input.UserID,
		DeviceInfo:     deviceInfo,
		UserAgent:      input.UserAgent,
		IPAddress:      input.IPAddress,
		LastIPAddress:  input.IPAddress,
		Location:       location,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
		RefreshTokenID: input.RefreshTokenID,
	}

	if err := service.repository.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("session_service_create_failed: %w", err)
	}

	service.cacheSet(ctx, session)

	service.bus.Publish(ctx, event.SessionCreated{
		BaseEvent: event.NewBase(),
		SessionID: session.ID,
		UserID:    session.UserID,
		Device:    deviceInfo.Describe(),
		Location:  location,
	}, event.WithMetadata(input.IPAddress, input.UserAgent))

	return session, nil
}

// evictOldest revokes the user's oldest active session to make room.
func (service *Service) evictOldest(ctx context.Context, input CreateInput) error {
	oldest, err := service.repository.GetOldestActiveSession(ctx, input.UserID)
	if err != nil {
		// The count can race a concurrent revocation; no candidate means
		// room appeared and creation may proceed.
		if apperr.IsAppError(err) {
			return nil
		}
		return err
	}

	oldest.Revoke(ReasonSessionLimitExceeded)
	if err := service.repository.Save(ctx, oldest); err != nil {
		return fmt.Errorf("session_service_evict_failed: %w", err)
	}

	service.cacheEvict(ctx, oldest)

	service.bus.Publish(ctx, event.SessionEvicted{
		BaseEvent: event.NewBase(),
		SessionID: oldest.ID,
		UserID:    oldest.UserID,
		Reason:    ReasonSessionLimitExceeded,
	}, event.WithMetadata(input.IPAddress, input.UserAgent))

	return nil
}

// # Queries

// List returns the user's sessions, newest first.
func (service *Service) List(ctx context.Context, userID string, activeOnly bool) ([]*SessionData, error) {
	return service.repository.FindByUserID(ctx, userID, activeOnly)
}

// Get returns one session after an ownership check.
func (service *Service) Get(ctx context.Context, userID, sessionID string) (*SessionData, error) {
	session, err := service.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.UserID != userID {
		// Ownership failures read as absence to prevent probing.
		return nil, apperr.NotFound("Session")
	}

	return session, nil
}

// # Revocation

/*
Revoke terminates a single session.

Description: Publishes SessionRevocationAttempted, then either
SessionRevoked or SessionRevocationFailed with the true reason
(session_not_found, not_session_owner, session_already_revoked).

Returns:
  - error: apperr variants mirroring the failure event's reason
*/
func (service *Service) Revoke(ctx context.Context, userID, sessionID, reason string) error {
	service.bus.Publish(ctx, event.SessionRevocationAttempted{
		BaseEvent: event.NewBase(),
		SessionID: sessionID,
		UserID:    userID,
	})

	session, err := service.load(ctx, sessionID)
	if err != nil {
		service.publishRevocationFailed(ctx, sessionID, userID, "session_not_found")
		return apperr.NotFound("Session")
	}

	if session.UserID != userID {
		service.publishRevocationFailed(ctx, sessionID, userID, "not_session_owner")
		return apperr.NotFound("Session")
	}

	if session.IsRevoked {
		service.publishRevocationFailed(ctx, sessionID, userID, "session_already_revoked")
		return apperr.Conflict("Session is already revoked")
	}

	session.Revoke(reason)
	if err := service.repository.Save(ctx, session); err != nil {
		return fmt.Errorf("session_service_revoke_failed: %w", err)
	}

	service.cacheEvict(ctx, session)

	service.bus.Publish(ctx, event.SessionRevoked{
		BaseEvent: event.NewBase(),
		SessionID: session.ID,
		UserID:    session.UserID,
		Reason:    reason,
	})

	return nil
}

func (service *Service) publishRevocationFailed(ctx context.Context, sessionID, userID, reason string) {
	service.bus.Publish(ctx, event.SessionRevocationFailed{
		BaseEvent: event.NewBase(),
		SessionID: sessionID,
		UserID:    userID,
		Reason:    reason,
	})
}

/*
RevokeAllExcept bulk-revokes the user's active sessions, optionally
sparing the current one.

Description: The repository performs one bulk update; the cache is
cleared for the user and, when a spared session survives, it is
re-fetched and re-cached so the next binding check stays warm.

Returns:
  - int: Number of sessions revoked
  - error: Storage failures
*/
func (service *Service) RevokeAllExcept(ctx context.Context, userID, reason, exceptSessionID string) (int, error) {
	service.bus.Publish(ctx, event.AllSessionsRevocationAttempted{
		BaseEvent: event.NewBase(),
		UserID:    userID,
	})

	count, err := service.repository.RevokeAllForUser(ctx, userID, reason, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("session_service_revoke_all_failed: %w", err)
	}

	if err := service.cache.DeleteAllForUser(ctx, userID); err != nil {
		service.logger.Warn("session_cache_degraded",
			slog.String("operation", "delete_all"),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	if exceptSessionID != "" {
		if spared, err := service.repository.FindByID(ctx, exceptSessionID); err == nil && spared.IsActive() {
			service.cacheSet(ctx, spared)
		}
	}

	service.bus.Publish(ctx, event.AllSessionsRevoked{
		BaseEvent: event.NewBase(),
		UserID:    userID,
		Count:     count,
		Reason:    reason,
	})

	return count, nil
}

// RevokeAllForUser implements [event.SessionRevoker] for the session
// side-effect handler (password change and reset-confirm).
func (service *Service) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	return service.RevokeAllExcept(ctx, userID, reason, "")
}

// # Activity

// Touch records request activity: repository upsert, then a best-effort
// in-place cache refresh.
func (service *Service) Touch(ctx context.Context, sessionID, ip string) error {
	session, err := service.load(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Touch(ip)
	if err := service.repository.Save(ctx, session); err != nil {
		return fmt.Errorf("session_service_touch_failed: %w", err)
	}

	if err := service.cache.UpdateLastActivity(ctx, sessionID, ip); err != nil {
		service.logger.Warn("session_cache_degraded",
			slog.String("operation", "update_last_activity"),
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}

	return nil
}

// RebindRefreshToken points the session at the refresh token that
// replaced its predecessor during rotation.
func (service *Service) RebindRefreshToken(ctx context.Context, sessionID, refreshTokenID string) error {
	session, err := service.load(ctx, sessionID)
	if err != nil {
		return err
	}

	session.RefreshTokenID = refreshTokenID
	if err := service.repository.Save(ctx, session); err != nil {
		return fmt.Errorf("session_service_rebind_failed: %w", err)
	}

	service.cacheSet(ctx, session)
	return nil
}

// # JWT Binding

/*
CheckBinding verifies that a token's session is still live.

Description: This is the check that blocks post-logout reuse of access
tokens. Cache first, repository on miss; a live session loaded from the
repository is re-cached.

Returns:
  - error: 401 SESSION_NOT_FOUND, 401 SESSION_REVOKED, or nil
*/
func (service *Service) CheckBinding(ctx context.Context, userID, sessionID string) error {
	session, err := service.load(ctx, sessionID)
	if err != nil {
		return apperr.Unauthorized("Session not found").WithCode("SESSION_NOT_FOUND")
	}

	if session.UserID != userID {
		return apperr.Unauthorized("Session not found").WithCode("SESSION_NOT_FOUND")
	}

	if session.IsRevoked || session.IsExpired() {
		return apperr.Unauthorized("Session has been revoked").WithCode("SESSION_REVOKED")
	}

	return nil
}

// CurrentFromClaims resolves the session bound to verified JWT claims.
// Legacy tokens without a session_id claim return (nil, nil).
func (service *Service) CurrentFromClaims(ctx context.Context, claims *sec.AuthClaims) (*SessionData, error) {
	if claims.SessionID == "" {
		return nil, nil
	}

	if err := service.CheckBinding(ctx, claims.UserID(), claims.SessionID); err != nil {
		return nil, err
	}

	return service.load(ctx, claims.SessionID)
}

// # Internal Helpers

// load reads cache-first with repository fallback. A session loaded from
// the repository is re-cached only while it is still active, so a
// revoked record cannot be resurrected with a fresh TTL.
func (service *Service) load(ctx context.Context, sessionID string) (*SessionData, error) {
	cached, err := service.cache.Get(ctx, sessionID)
	if err != nil {
		service.logger.Warn("session_cache_degraded",
			slog.String("operation", "get"),
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}
	if cached != nil {
		return cached, nil
	}

	session, err := service.repository.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsActive() {
		service.cacheSet(ctx, session)
	}

	return session, nil
}

// cacheSet writes through to the cache, degrading on failure.
func (service *Service) cacheSet(ctx context.Context, session *SessionData) {
	if err := service.cache.Set(ctx, session, 0); err != nil {
		service.logger.Warn("session_cache_degraded",
			slog.String("operation", "set"),
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}
}

// cacheEvict removes the session key and its index entry, degrading on failure.
func (service *Service) cacheEvict(ctx context.Context, session *SessionData) {
	if err := service.cache.Delete(ctx, session.ID); err != nil {
		service.logger.Warn("session_cache_degraded",
			slog.String("operation", "delete"),
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}
	if err := service.cache.RemoveUserSession(ctx, session.UserID, session.ID); err != nil {
		service.logger.Warn("session_cache_degraded",
			slog.String("operation", "index_remove"),
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}
}
