// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sec

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// # Provider Credential Encryption

// ErrCiphertextInvalid is returned when a sealed value cannot be opened
// (truncated, tampered with, or encrypted under a different key).
var ErrCiphertextInvalid = errors.New("sec: invalid ciphertext")

// CredentialCipher seals and opens provider access credentials at rest
// using XChaCha20-Poly1305. Each Seal call draws a fresh random nonce,
// so identical plaintexts produce distinct ciphertexts.
type CredentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher creates a cipher from a 32-byte hex-encoded key.
func NewCredentialCipher(hexKey string) (*CredentialCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("sec: credential key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sec: credential key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to initialize AEAD: %w", err)
	}

	return &CredentialCipher{aead: aead}, nil
}

// Seal encrypts a plaintext credential and returns nonce||ciphertext as
// URL-safe base64.
func (c *CredentialCipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("sec: failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by [CredentialCipher.Seal].
func (c *CredentialCipher) Open(encoded string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrCiphertextInvalid
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	return string(plaintext), nil
}
