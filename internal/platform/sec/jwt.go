// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing, AEAD)
// from the domain logic. It acts as an Infrastructure service injected into
// the Application layer via small interfaces.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dashtam/dashtam/pkg/uuidv7"
)

// # Validation Errors

// Closed set of token validation failures. Callers discriminate with
// [errors.Is]; no other error leaves [TokenService.VerifyToken].
var (
	ErrTokenExpired          = errors.New("sec: token expired")
	ErrTokenInvalidSignature = errors.New("sec: invalid token signature")
	ErrTokenMalformed        = errors.New("sec: malformed token")
)

// ClockSkewLeeway tolerates clock drift between the issuer and validators.
const ClockSkewLeeway = 60 * time.Second

// # Claims

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// Embedding the session ID and token version directly inside the JWT lets
// the middleware bind the token to a live server-side session and reject
// post-logout reuse WITHOUT a user-table read on every request.
type AuthClaims struct {
	jwt.RegisteredClaims

	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	SessionID    string   `json:"session_id,omitempty"`
	TokenVersion int      `json:"token_version"`
}

// UserID returns the subject claim, which carries the user's UUID.
func (c *AuthClaims) UserID() string { return c.Subject }

// HasRole reports whether the claims carry the given role.
func (c *AuthClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// # Token Service

// TokenService handles generation and verification of JWT tokens using HS256.
//
// The signing secret is process-wide and fixed per environment.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a new TokenService from the shared signing secret.
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("sec: JWT secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenService{secret: []byte(secret), issuer: issuer}, nil
}

/*
GenerateAccessToken creates a new signed JWT access token.

Parameters:
  - userID: Subject of the token (user UUID).
  - email: The user's email address.
  - roles: Role list; empty defaults to ["user"].
  - sessionID: Server-side session the token is bound to.
  - tokenVersion: The issuing user's current min_token_version.
  - timeToLive: Duration before the token expires.

Returns:
  - string: Signed compact JWT
  - error: Signing failures
*/
func (service *TokenService) GenerateAccessToken(userID, email string, roles []string, sessionID string, tokenVersion int, timeToLive time.Duration) (string, error) {
	if len(roles) == 0 {
		roles = []string{"user"}
	}

	currentTime := time.Now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			ID:        uuidv7.New(), // jti: unique per issuance
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		Email:        email,
		Roles:        roles,
		SessionID:    sessionID,
		TokenVersion: tokenVersion,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

/*
VerifyToken checks the signature and temporal validity of a JWT string.

Description: Failures map onto the closed set {ErrTokenExpired,
ErrTokenInvalidSignature, ErrTokenMalformed}. Clock skew of up to 60s
is tolerated on exp/iat.

Returns:
  - *AuthClaims: Parsed claims on success
  - error: One of the sentinel validation errors
*/
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
			}
			return service.secret, nil
		},
		jwt.WithLeeway(ClockSkewLeeway),
		jwt.WithIssuer(service.issuer),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalidSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
