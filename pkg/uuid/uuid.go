// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

// Package uuid wraps google/uuid to generate random UUIDv4 values.
//
// # Usage
//
// UUIDv4 is the ID type for sessions, where creation-time ordering is
// tracked by an explicit created_at column and an unpredictable identifier
// is preferable. Users, events, and token records use the time-ordered
// pkg/uuidv7 instead.
package uuid

import "github.com/google/uuid"

// New generates a new random UUIDv4 string.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether the value parses as a UUID of any version.
func IsValid(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
