// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sse

import (
	"reflect"

	"github.com/dashtam/dashtam/internal/event"
)

// mapping converts one domain event type into its SSE form. The convert
// function is pure: it reads the event and produces the target user and
// payload without side effects.
type mapping struct {
	Type     string
	Category Category
	convert  func(e event.Event) (userID string, data map[string]any, ok bool)
}

// registry is the closed table of domain events that reach clients.
// Domain events absent from this table never leave the server.
var registry = map[reflect.Type]mapping{

	reflect.TypeOf(event.AccountsSyncCompleted{}): {
		Type:     "sync.accounts.completed",
		Category: CategoryDataSync,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.AccountsSyncCompleted)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"provider_id":   ev.ProviderID,
				"account_count": ev.AccountCount,
			}, true
		},
	},

	reflect.TypeOf(event.TransactionsSyncCompleted{}): {
		Type:     "sync.transactions.completed",
		Category: CategoryDataSync,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.TransactionsSyncCompleted)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"provider_id":       ev.ProviderID,
				"transaction_count": ev.TransactionCount,
			}, true
		},
	},

	reflect.TypeOf(event.HoldingsSyncCompleted{}): {
		Type:     "sync.holdings.completed",
		Category: CategoryDataSync,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.HoldingsSyncCompleted)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"provider_id":   ev.ProviderID,
				"holding_count": ev.HoldingCount,
			}, true
		},
	},

	reflect.TypeOf(event.ProviderConnected{}): {
		Type:     "provider.connected",
		Category: CategoryProvider,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.ProviderConnected)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"provider_id":   ev.ProviderID,
				"provider_name": ev.ProviderName,
			}, true
		},
	},

	reflect.TypeOf(event.ProviderTokenRefreshed{}): {
		Type:     "provider.token.refreshed",
		Category: CategoryProvider,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.ProviderTokenRefreshed)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"provider_id": ev.ProviderID,
			}, true
		},
	},

	reflect.TypeOf(event.SessionRevoked{}): {
		Type:     "security.session.revoked",
		Category: CategorySecurity,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.SessionRevoked)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"session_id": ev.SessionID,
				"reason":     ev.Reason,
			}, true
		},
	},

	reflect.TypeOf(event.SessionEvicted{}): {
		Type:     "security.session.evicted",
		Category: CategorySecurity,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.SessionEvicted)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"session_id": ev.SessionID,
				"reason":     ev.Reason,
			}, true
		},
	},

	reflect.TypeOf(event.AllSessionsRevoked{}): {
		Type:     "security.sessions.revoked_all",
		Category: CategorySecurity,
		convert: func(e event.Event) (string, map[string]any, bool) {
			ev, ok := e.(event.AllSessionsRevoked)
			if !ok {
				return "", nil, false
			}
			return ev.UserID, map[string]any{
				"count":  ev.Count,
				"reason": ev.Reason,
			}, true
		},
	},
}

/*
Map converts a domain event into its SSE form.

Description: Unmapped domain events return ok=false and are dropped by
the caller; the registry is the single gate deciding what clients see.

Returns:
  - Event: The converted event, carrying the domain event's ID and time
  - bool: Whether the domain event is mapped
*/
func Map(e event.Event) (Event, bool) {
	entry, ok := registry[reflect.TypeOf(e)]
	if !ok {
		return Event{}, false
	}

	userID, data, ok := entry.convert(e)
	if !ok {
		return Event{}, false
	}

	return Event{
		ID:         e.EventID(),
		Type:       entry.Type,
		Category:   entry.Category,
		UserID:     userID,
		Data:       data,
		OccurredAt: e.OccurredAt(),
	}, true
}

// MappedTypes lists the domain event types the registry covers, for the
// composition root to subscribe the fan-out handler to.
func MappedTypes() []reflect.Type {
	types := make([]reflect.Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	return types
}
