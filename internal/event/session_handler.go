// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event

import (
	"context"
	"fmt"
	"reflect"
)

// SessionRevoker is the slice of the session service this handler needs.
// The concrete implementation is injected by the composition root, which
// keeps the dependency arrow pointing from the session package into this
// one and not back.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)
}

// SessionHandler performs session side effects for SUCCEEDED events that
// declare requires_session: a password change or reset-confirm signs the
// user out everywhere.
type SessionHandler struct {
	revoker SessionRevoker
}

// NewSessionHandler creates the session-revocation sink.
func NewSessionHandler(revoker SessionRevoker) *SessionHandler {
	return &SessionHandler{revoker: revoker}
}

// Supports reports whether the handler acts on the event type.
func (handler *SessionHandler) Supports(eventType reflect.Type) bool {
	zero, ok := reflect.New(eventType).Elem().Interface().(Event)
	if !ok {
		return false
	}
	_, mapped := revocationFor(zero)
	return mapped
}

// Handle revokes every session of the affected user.
func (handler *SessionHandler) Handle(ctx context.Context, e Event, _ Publication) error {
	entry, ok := Lookup(e)
	if !ok || !entry.RequiresSession {
		return fmt.Errorf("event_session_unregistered_type: %T", e)
	}

	revocation, ok := revocationFor(e)
	if !ok {
		return fmt.Errorf("event_session_unmapped_type: %T", e)
	}

	if _, err := handler.revoker.RevokeAllForUser(ctx, revocation.userID, revocation.reason); err != nil {
		return fmt.Errorf("event_session_revoke_all_failed: %w", err)
	}

	return nil
}

type sessionRevocation struct {
	userID string
	reason string
}

// revocationFor maps session-affecting events to their revocation reason.
func revocationFor(e Event) (sessionRevocation, bool) {
	switch ev := e.(type) {
	case PasswordResetCompleted:
		return sessionRevocation{userID: ev.UserID, reason: "password_reset"}, true
	case PasswordChanged:
		return sessionRevocation{userID: ev.UserID, reason: "password_changed"}, true
	default:
		return sessionRevocation{}, false
	}
}
