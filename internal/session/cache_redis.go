// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dashtam/dashtam/internal/platform/constants"
)

// RedisCache implements [Cache] over go-redis.
//
// # Key Layout
//
//	dashtam:session:<uuid>         serialized SessionData, TTL = expires_at − now
//	dashtam:user:<uuid>:sessions   SET of the user's session IDs
//
// The index set carries the fallback TTL and is refreshed on every
// membership change.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates the Redis session cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func sessionKey(sessionID string) string {
	return constants.RedisPrefixSession + sessionID
}

func userIndexKey(userID string) string {
	return constants.RedisPrefixUserSessions + userID + constants.RedisSuffixUserSessions
}

/*
Get retrieves the cached session.

Description: A cache miss is not an error; it returns (nil, nil) so the
caller can fall through to the repository without branching on sentinel
errors.

Returns:
  - *SessionData: The cached session, or nil on miss
  - error: Connectivity or deserialization failures
*/
func (cache *RedisCache) Get(ctx context.Context, sessionID string) (*SessionData, error) {
	raw, err := cache.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_session_cache_get_failed: %w", err)
	}

	session := &SessionData{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, fmt.Errorf("redis_session_cache_decode_failed: %w", err)
	}

	return session, nil
}

/*
Set stores the session and maintains the per-user index.

Description: ttl <= 0 selects expires_at − now; a session already past
its expiry gets [CacheFallbackTTL] so a stale record cannot live forever.

Parameters:
  - ctx: context.Context
  - session: *SessionData
  - ttl: time.Duration (<= 0 to derive from the session)

Returns:
  - error: Serialization or write failures
*/
func (cache *RedisCache) Set(ctx context.Context, session *SessionData, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Until(session.ExpiresAt)
		if ttl <= 0 {
			ttl = CacheFallbackTTL
		}
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis_session_cache_encode_failed: %w", err)
	}

	pipe := cache.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), raw, ttl)
	pipe.SAdd(ctx, userIndexKey(session.UserID), session.ID)
	pipe.Expire(ctx, userIndexKey(session.UserID), CacheFallbackTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis_session_cache_set_failed: %w", err)
	}

	return nil
}

// Delete evicts the session key. The caller removes the index entry
// separately because it needs the user ID.
func (cache *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := cache.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis_session_cache_delete_failed: %w", err)
	}
	return nil
}

/*
DeleteAllForUser evicts every cached session of the user.

Description: Reads the index set, deletes each session key plus the
index itself in one pipeline.
*/
func (cache *RedisCache) DeleteAllForUser(ctx context.Context, userID string) error {
	sessionIDs, err := cache.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis_session_cache_index_read_failed: %w", err)
	}

	pipe := cache.client.TxPipeline()
	for _, sessionID := range sessionIDs {
		pipe.Del(ctx, sessionKey(sessionID))
	}
	pipe.Del(ctx, userIndexKey(userID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis_session_cache_delete_all_failed: %w", err)
	}

	return nil
}

// Exists reports key presence without deserializing.
func (cache *RedisCache) Exists(ctx context.Context, sessionID string) (bool, error) {
	count, err := cache.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis_session_cache_exists_failed: %w", err)
	}
	return count > 0, nil
}

// GetUserSessionIDs returns the per-user index members.
func (cache *RedisCache) GetUserSessionIDs(ctx context.Context, userID string) ([]string, error) {
	sessionIDs, err := cache.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_session_cache_index_read_failed: %w", err)
	}
	return sessionIDs, nil
}

// AddUserSession adds the session to the per-user index.
func (cache *RedisCache) AddUserSession(ctx context.Context, userID, sessionID string) error {
	pipe := cache.client.TxPipeline()
	pipe.SAdd(ctx, userIndexKey(userID), sessionID)
	pipe.Expire(ctx, userIndexKey(userID), CacheFallbackTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis_session_cache_index_add_failed: %w", err)
	}
	return nil
}

// RemoveUserSession removes the session from the per-user index.
func (cache *RedisCache) RemoveUserSession(ctx context.Context, userID, sessionID string) error {
	if err := cache.client.SRem(ctx, userIndexKey(userID), sessionID).Err(); err != nil {
		return fmt.Errorf("redis_session_cache_index_remove_failed: %w", err)
	}
	return nil
}

/*
UpdateLastActivity refreshes the cached session's activity fields in place.

Description: Read-modify-write on the session key, preserving the key's
remaining TTL. A miss is a no-op; the repository holds the truth.
*/
func (cache *RedisCache) UpdateLastActivity(ctx context.Context, sessionID, ip string) error {
	key := sessionKey(sessionID)

	raw, err := cache.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis_session_cache_activity_read_failed: %w", err)
	}

	session := &SessionData{}
	if err := json.Unmarshal(raw, session); err != nil {
		return fmt.Errorf("redis_session_cache_decode_failed: %w", err)
	}

	session.Touch(ip)

	updated, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis_session_cache_encode_failed: %w", err)
	}

	if err := cache.client.Set(ctx, key, updated, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("redis_session_cache_activity_write_failed: %w", err)
	}

	return nil
}
