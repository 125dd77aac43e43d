// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sec_test

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/platform/sec"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "api.dashtam.test"
)

// # Password Hashing

/*
TestPasswordHashing verifies the bcrypt round-trip, salt uniqueness, and
the no-panic contract on malformed hashes.
*/
func TestPasswordHashing(t *testing.T) {
	hash, err := sec.HashPassword("correct-horse-battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))

	assert.True(t, sec.CheckPasswordHash("correct-horse-battery", hash))
	assert.False(t, sec.CheckPasswordHash("wrong-password", hash))

	// Each hash draws its own salt.
	second, err := sec.HashPassword("correct-horse-battery")
	require.NoError(t, err)
	assert.NotEqual(t, hash, second)

	assert.False(t, sec.CheckPasswordHash("anything", "not-a-bcrypt-hash"))
	assert.False(t, sec.CheckPasswordHash("anything", ""))
}

// # Opaque Tokens

/*
TestGenerateOpaqueToken verifies the plain/hash pair: the plain form is
43 chars of URL-safe base64, only its own hash verifies it, and the hash
never equals the plain form.
*/
func TestGenerateOpaqueToken(t *testing.T) {
	plain, hash, err := sec.GenerateOpaqueToken()
	require.NoError(t, err)

	assert.Len(t, plain, 43)
	assert.NotEqual(t, plain, hash)
	assert.True(t, sec.VerifyOpaqueToken(plain, hash))
	assert.False(t, sec.VerifyOpaqueToken(plain+"x", hash))

	otherPlain, otherHash, err := sec.GenerateOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, plain, otherPlain)
	assert.False(t, sec.VerifyOpaqueToken(plain, otherHash))
}

/*
TestGenerateHexToken pins the 64-char lowercase hex shape.
*/
func TestGenerateHexToken(t *testing.T) {
	token, err := sec.GenerateHexToken()
	require.NoError(t, err)

	assert.Len(t, token, 64)
	_, err = hex.DecodeString(token)
	assert.NoError(t, err)
	assert.Equal(t, strings.ToLower(token), token)

	second, err := sec.GenerateHexToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, second)
}

/*
TestTokenDigest pins the deterministic lookup form: stable for the same
token, 64-char hex, and never the plain token itself.
*/
func TestTokenDigest(t *testing.T) {
	digest := sec.TokenDigest("some-opaque-token")

	assert.Equal(t, digest, sec.TokenDigest("some-opaque-token"))
	assert.Len(t, digest, 64)
	_, err := hex.DecodeString(digest)
	assert.NoError(t, err)

	assert.NotEqual(t, digest, sec.TokenDigest("some-other-token"))
	assert.NotEqual(t, "some-opaque-token", digest)
}

// # JWT

func newTokenService(t *testing.T) *sec.TokenService {
	t.Helper()
	service, err := sec.NewTokenService(testSecret, testIssuer)
	require.NoError(t, err)
	return service
}

/*
TestTokenService_RoundTrip verifies the claims survive generation and
verification intact.
*/
func TestTokenService_RoundTrip(t *testing.T) {
	service := newTokenService(t)

	token, err := service.GenerateAccessToken(
		"user-1", "user@example.com", []string{"user", "admin"}, "session-1", 3, time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, []string{"user", "admin"}, claims.Roles)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, 3, claims.TokenVersion)
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("superuser"))
	assert.NotEmpty(t, claims.ID) // jti is unique per issuance
}

/*
TestTokenService_EmptyRolesDefault pins the ["user"] fallback.
*/
func TestTokenService_EmptyRolesDefault(t *testing.T) {
	service := newTokenService(t)

	token, err := service.GenerateAccessToken("user-1", "user@example.com", nil, "", 0, time.Minute)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, claims.Roles)
	assert.Empty(t, claims.SessionID)
}

/*
TestTokenService_VerificationFailures walks the closed error set:
expiry (beyond the skew leeway), a foreign signing key, a foreign
issuer, and malformed input.
*/
func TestTokenService_VerificationFailures(t *testing.T) {
	service := newTokenService(t)

	t.Run("expired_beyond_leeway", func(t *testing.T) {
		token, err := service.GenerateAccessToken(
			"user-1", "user@example.com", nil, "", 0, -(sec.ClockSkewLeeway + time.Minute))
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		assert.ErrorIs(t, err, sec.ErrTokenExpired)
	})

	t.Run("expired_within_leeway_passes", func(t *testing.T) {
		token, err := service.GenerateAccessToken(
			"user-1", "user@example.com", nil, "", 0, -(sec.ClockSkewLeeway / 2))
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		assert.NoError(t, err)
	})

	t.Run("foreign_signing_key", func(t *testing.T) {
		foreign, err := sec.NewTokenService("ffffffffffffffffffffffffffffffff", testIssuer)
		require.NoError(t, err)
		token, err := foreign.GenerateAccessToken("user-1", "user@example.com", nil, "", 0, time.Minute)
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		assert.ErrorIs(t, err, sec.ErrTokenInvalidSignature)
	})

	t.Run("foreign_issuer", func(t *testing.T) {
		foreign, err := sec.NewTokenService(testSecret, "evil.example.com")
		require.NoError(t, err)
		token, err := foreign.GenerateAccessToken("user-1", "user@example.com", nil, "", 0, time.Minute)
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		assert.ErrorIs(t, err, sec.ErrTokenMalformed)
	})

	t.Run("malformed_token", func(t *testing.T) {
		_, err := service.VerifyToken("not.a.jwt")
		assert.ErrorIs(t, err, sec.ErrTokenMalformed)
	})
}

/*
TestNewTokenService_WeakSecret rejects secrets under 32 bytes.
*/
func TestNewTokenService_WeakSecret(t *testing.T) {
	_, err := sec.NewTokenService("too-short", testIssuer)
	assert.Error(t, err)
}

// # Credential Cipher

/*
TestCredentialCipher verifies the AEAD round-trip, nonce freshness, and
tamper rejection.
*/
func TestCredentialCipher(t *testing.T) {
	key := strings.Repeat("ab", 32) // 32 bytes hex-encoded
	cipher, err := sec.NewCredentialCipher(key)
	require.NoError(t, err)

	sealed, err := cipher.Seal("provider-access-token")
	require.NoError(t, err)

	opened, err := cipher.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "provider-access-token", opened)

	// Fresh nonce per call: the same plaintext seals differently.
	second, err := cipher.Seal("provider-access-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, second)

	t.Run("tampered_ciphertext", func(t *testing.T) {
		// Flip a full-weight character mid-string; the final character's low
		// bits are base64 padding and would be ignored on decode.
		tampered := []byte(sealed)
		if tampered[10] == 'A' {
			tampered[10] = 'B'
		} else {
			tampered[10] = 'A'
		}
		_, err := cipher.Open(string(tampered))
		assert.ErrorIs(t, err, sec.ErrCiphertextInvalid)
	})

	t.Run("foreign_key", func(t *testing.T) {
		other, err := sec.NewCredentialCipher(strings.Repeat("cd", 32))
		require.NoError(t, err)
		_, err = other.Open(sealed)
		assert.ErrorIs(t, err, sec.ErrCiphertextInvalid)
	})

	t.Run("bad_keys", func(t *testing.T) {
		_, err := sec.NewCredentialCipher("not-hex")
		assert.Error(t, err)
		_, err = sec.NewCredentialCipher("abcd") // too short
		assert.Error(t, err)
	})
}
