// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// # Hashing Parameters

const (
	// HashCost is the bcrypt cost factor for passwords and opaque tokens.
	// Cost 12 keeps verification in the hundreds of milliseconds, which is
	// deliberate: it bounds offline brute-force throughput.
	HashCost = 12

	// OpaqueTokenBytes is the entropy of an opaque refresh token.
	OpaqueTokenBytes = 32

	// HexTokenBytes is the entropy of a hex one-shot token (verification, reset).
	HexTokenBytes = 32
)

// # Password Hashing

// HashPassword hashes a plain-text password using the bcrypt algorithm.
func HashPassword(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), HashCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version.
// It is constant-time and returns false on a malformed hash; it never panics.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// # Opaque Tokens

/*
GenerateOpaqueToken creates a refresh-token pair.

Description: The plain form is 32 random bytes encoded as URL-safe base64
without padding (43 chars); only the bcrypt hash is ever persisted.

Returns:
  - string: Plain token handed to the client
  - string: bcrypt hash for at-rest storage
  - error: Entropy or hashing failures
*/
func GenerateOpaqueToken() (string, string, error) {

	// Draw the raw entropy from the OS source
	raw := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("sec: failed to generate opaque token: %w", err)
	}

	plain := base64.RawURLEncoding.EncodeToString(raw)

	// Hash the plain form with the same cost as passwords
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), HashCost)
	if err != nil {
		return "", "", fmt.Errorf("sec: failed to hash opaque token: %w", err)
	}

	return plain, string(hash), nil
}

// VerifyOpaqueToken compares a presented plain token against its stored hash.
// Constant-time; false on malformed hash.
func VerifyOpaqueToken(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// TokenDigest returns the hex SHA-256 of a plain opaque token. Unlike
// the salted bcrypt hash, the digest is deterministic, so it can carry
// a unique index for exact lookup; the bcrypt hash stays the stored
// verifier.
func TokenDigest(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// # Hex Tokens

// GenerateHexToken creates a 64-character lowercase hex token from 32 random
// bytes. Hex tokens are unguessable and therefore stored in plain form.
func GenerateHexToken() (string, error) {
	raw := make([]byte, HexTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sec: failed to generate hex token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
