// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package auth_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/auth"
	"github.com/dashtam/dashtam/internal/platform/constants"
)

/*
TestRedisResetRateLimiter covers the rolling window: requests up to the
cap pass, the next is denied, and the window expiry readmits the email.
The key is an email digest, so addresses never appear in Redis.
*/
func TestRedisResetRateLimiter(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := auth.NewRedisResetRateLimiter(client)
	ctx := context.Background()

	for i := int64(0); i < constants.PasswordResetMaxRequests; i++ {
		allowed, err := limiter.Allow(ctx, "user@example.com")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be under the cap", i+1)
	}

	allowed, err := limiter.Allow(ctx, "user@example.com")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Case and whitespace variants share the same window.
	allowed, err = limiter.Allow(ctx, "  User@Example.COM ")
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different address has its own window.
	allowed, err = limiter.Allow(ctx, "other@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	// The raw address never appears in a key.
	for _, key := range server.Keys() {
		assert.NotContains(t, key, "example.com")
	}

	// Window expiry readmits the email.
	server.FastForward(constants.PasswordResetWindow)
	allowed, err = limiter.Allow(ctx, "user@example.com")
	require.NoError(t, err)
	assert.True(t, allowed)
}
