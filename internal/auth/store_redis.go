// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dashtam/dashtam/internal/platform/constants"
)

// RedisResetRateLimiter implements [ResetRateLimiter] with a per-email
// counter and a rolling-window expiry.
type RedisResetRateLimiter struct {
	client *redis.Client
}

// NewRedisResetRateLimiter creates the Redis-backed reset rate limiter.
func NewRedisResetRateLimiter(client *redis.Client) *RedisResetRateLimiter {
	return &RedisResetRateLimiter{client: client}
}

/*
Allow consumes one reset-request slot for the email.

Description: INCR with a first-hit EXPIRE gives a fixed window that
resets PasswordResetWindow after the first request. The email is keyed
by SHA-256 digest so addresses never appear in Redis.

Parameters:
  - ctx: context.Context
  - email: Raw address; normalized and digested internally

Returns:
  - bool: Whether the caller is still under PasswordResetMaxRequests
  - error: Redis connectivity failures
*/
func (limiter *RedisResetRateLimiter) Allow(ctx context.Context, email string) (bool, error) {
	digest := sha256.Sum256([]byte(NormalizeEmail(email)))
	key := constants.RedisPrefixResetRate + hex.EncodeToString(digest[:])

	count, err := limiter.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis_reset_rate_incr_failed: %w", err)
	}

	if count == 1 {
		if err := limiter.client.Expire(ctx, key, constants.PasswordResetWindow).Err(); err != nil {
			return false, fmt.Errorf("redis_reset_rate_expire_failed: %w", err)
		}
	}

	return count <= constants.PasswordResetMaxRequests, nil
}
