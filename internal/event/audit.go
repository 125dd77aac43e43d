// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/dashtam/dashtam/pkg/uuidv7"
)

// AuditHandler writes one append-only audit record per audited event.
//
// # PCI-DSS 10.2.7
//
// Records are enriched with the publisher's request metadata (IP address,
// user agent) when supplied. The handler writes through the Querier
// attached to the publish call when present, so audit rows created inside
// a test-scoped transaction stay inside it; otherwise it uses its own pool.
type AuditHandler struct {
	db Querier
}

// NewAuditHandler creates the audit sink over its default database handle.
func NewAuditHandler(db Querier) *AuditHandler {
	return &AuditHandler{db: db}
}

// auditTarget names what an audited event acted on.
type auditTarget struct {
	userID       string
	resourceType string
	resourceID   string
}

// Supports reports whether the handler has a resource mapping for the type.
func (handler *AuditHandler) Supports(eventType reflect.Type) bool {
	zero, ok := reflect.New(eventType).Elem().Interface().(Event)
	if !ok {
		return false
	}
	_, mapped := describeTarget(zero)
	return mapped
}

/*
Handle persists the audit record for an audited event.

Description: The row carries the registry's audit action, the acting
user, the touched resource, request attribution when available, and the
full event payload as JSONB context.

Returns:
  - error: Unmapped event types or insert failures
*/
func (handler *AuditHandler) Handle(ctx context.Context, e Event, pub Publication) error {
	entry, ok := Lookup(e)
	if !ok || !entry.RequiresAudit {
		return fmt.Errorf("event_audit_unregistered_type: %T", e)
	}

	target, ok := describeTarget(e)
	if !ok {
		return fmt.Errorf("event_audit_unmapped_type: %T", e)
	}

	contextPayload, err := json.Marshal(map[string]any{
		"event_id":    e.EventID(),
		"occurred_at": e.OccurredAt().Format(time.RFC3339Nano),
		"event":       payloadFields(e),
	})
	if err != nil {
		return fmt.Errorf("event_audit_context_marshal_failed: %w", err)
	}

	var ipAddress, userAgent *string
	if pub.Metadata != nil {
		ipAddress = &pub.Metadata.IPAddress
		userAgent = &pub.Metadata.UserAgent
	}

	db := handler.db
	if pub.DB != nil {
		db = pub.DB
	}

	const query = `
		INSERT INTO audit.audit_log (
			id, action, user_id, resource_type, resource_id, ip_address, user_agent, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = db.Exec(ctx, query,
		uuidv7.New(),
		string(entry.AuditAction),
		nullable(target.userID),
		target.resourceType,
		nullable(target.resourceID),
		ipAddress,
		userAgent,
		contextPayload,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("event_audit_insert_failed: %w", err)
	}

	return nil
}

// nullable maps "" onto SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// describeTarget maps each audited event onto its actor and resource.
// An event missing here while carrying RequiresAudit fails the registry
// compliance tests.
func describeTarget(e Event) (auditTarget, bool) {
	switch ev := e.(type) {
	case UserRegistered:
		return auditTarget{userID: ev.UserID, resourceType: "user", resourceID: ev.UserID}, true
	case UserLoginSucceeded:
		return auditTarget{userID: ev.UserID, resourceType: "session", resourceID: ev.SessionID}, true
	case UserLoginFailed:
		return auditTarget{resourceType: "user"}, true
	case UserLogoutSucceeded:
		return auditTarget{userID: ev.UserID, resourceType: "session", resourceID: ev.SessionID}, true
	case TokenRefreshSucceeded:
		return auditTarget{userID: ev.UserID, resourceType: "refresh_token", resourceID: ev.SessionID}, true
	case TokenRejectedDueToRotation:
		return auditTarget{userID: ev.UserID, resourceType: "refresh_token"}, true
	case EmailVerified:
		return auditTarget{userID: ev.UserID, resourceType: "user", resourceID: ev.UserID}, true
	case PasswordResetRequested:
		return auditTarget{userID: ev.UserID, resourceType: "password_reset_token", resourceID: ev.TokenPrefix}, true
	case PasswordResetCompleted:
		return auditTarget{userID: ev.UserID, resourceType: "user", resourceID: ev.UserID}, true
	case PasswordChanged:
		return auditTarget{userID: ev.UserID, resourceType: "user", resourceID: ev.UserID}, true
	case GlobalTokenRotationCompleted:
		return auditTarget{userID: ev.InitiatedBy, resourceType: "security_config"}, true
	case UserTokenRotationCompleted:
		return auditTarget{userID: ev.InitiatedBy, resourceType: "user", resourceID: ev.TargetUserID}, true
	case SessionCreated:
		return auditTarget{userID: ev.UserID, resourceType: "session", resourceID: ev.SessionID}, true
	case SessionEvicted:
		return auditTarget{userID: ev.UserID, resourceType: "session", resourceID: ev.SessionID}, true
	case SessionRevoked:
		return auditTarget{userID: ev.UserID, resourceType: "session", resourceID: ev.SessionID}, true
	case AllSessionsRevoked:
		return auditTarget{userID: ev.UserID, resourceType: "session"}, true
	case ProviderConnected:
		return auditTarget{userID: ev.UserID, resourceType: "provider", resourceID: ev.ProviderID}, true
	case RateLimitExceeded:
		return auditTarget{userID: userFromIdentifier(ev.Identifier), resourceType: "endpoint", resourceID: ev.Endpoint}, true
	case AccessDenied:
		return auditTarget{userID: ev.UserID, resourceType: "resource", resourceID: ev.Resource}, true
	default:
		return auditTarget{}, false
	}
}

// userFromIdentifier strips the "user:" prefix of a rate-limit identifier.
func userFromIdentifier(identifier string) string {
	const prefix = "user:"
	if len(identifier) > len(prefix) && identifier[:len(prefix)] == prefix {
		return identifier[len(prefix):]
	}
	return ""
}
