// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sse_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/event"
	"github.com/dashtam/dashtam/internal/sse"
)

/*
TestEvent_Encode pins the SSE wire format: id, event, and data lines
with a JSON payload, terminated by the message-delimiting blank line.
*/
func TestEvent_Encode(t *testing.T) {
	e := sse.Event{
		ID:         "evt-1",
		Type:       "sync.accounts.completed",
		Category:   sse.CategoryDataSync,
		UserID:     "user-1",
		Data:       map[string]any{"account_count": 4},
		OccurredAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}

	wire, err := e.Encode()
	require.NoError(t, err)

	lines := strings.Split(wire, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "id: evt-1", lines[0])
	assert.Equal(t, "event: sync.accounts.completed", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "data: "))
	assert.Empty(t, lines[3])
	assert.Empty(t, lines[4])

	var decoded sse.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, e.Category, decoded.Category)
}

/*
TestValidateCategories verifies the closed set and the fail-loud
contract on typos.
*/
func TestValidateCategories(t *testing.T) {
	assert.NoError(t, sse.ValidateCategories(nil))
	assert.NoError(t, sse.ValidateCategories([]string{"data_sync", "security", "provider", "ai", "import", "portfolio"}))

	err := sse.ValidateCategories([]string{"data_sync", "datasync"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datasync")
}

/*
TestEvent_MatchesFilter pins the empty-filter-passes-all semantics.
*/
func TestEvent_MatchesFilter(t *testing.T) {
	e := sse.Event{Category: sse.CategorySecurity}

	assert.True(t, e.MatchesFilter(nil))
	assert.True(t, e.MatchesFilter([]string{"security"}))
	assert.True(t, e.MatchesFilter([]string{"data_sync", "security"}))
	assert.False(t, e.MatchesFilter([]string{"data_sync"}))
}

/*
TestMap verifies the registry conversion: mapped events carry the domain
event's identity, unmapped events are dropped.
*/
func TestMap(t *testing.T) {
	t.Run("session_revoked", func(t *testing.T) {
		domain := event.SessionRevoked{
			BaseEvent: event.NewBase(),
			SessionID: "session-1",
			UserID:    "user-1",
			Reason:    "user_logout",
		}

		mapped, ok := sse.Map(domain)
		require.True(t, ok)
		assert.Equal(t, domain.EventID(), mapped.ID)
		assert.Equal(t, domain.OccurredAt(), mapped.OccurredAt)
		assert.Equal(t, "security.session.revoked", mapped.Type)
		assert.Equal(t, sse.CategorySecurity, mapped.Category)
		assert.Equal(t, "user-1", mapped.UserID)
		assert.Equal(t, "session-1", mapped.Data["session_id"])
		assert.Equal(t, "user_logout", mapped.Data["reason"])
	})

	t.Run("accounts_sync_completed", func(t *testing.T) {
		domain := event.AccountsSyncCompleted{
			BaseEvent:    event.NewBase(),
			UserID:       "user-1",
			ProviderID:   "provider-1",
			AccountCount: 4,
		}

		mapped, ok := sse.Map(domain)
		require.True(t, ok)
		assert.Equal(t, "sync.accounts.completed", mapped.Type)
		assert.Equal(t, sse.CategoryDataSync, mapped.Category)
		assert.Equal(t, 4, mapped.Data["account_count"])
	})

	t.Run("unmapped_events_never_leave_the_server", func(t *testing.T) {
		_, ok := sse.Map(event.UserLoginSucceeded{BaseEvent: event.NewBase()})
		assert.False(t, ok)

		_, ok = sse.Map(event.PasswordResetRequested{BaseEvent: event.NewBase()})
		assert.False(t, ok)
	})
}

/*
TestMappedTypes checks the composition-root subscription list agrees
with the registry.
*/
func TestMappedTypes(t *testing.T) {
	types := sse.MappedTypes()
	assert.Len(t, types, 8)

	for _, mappedType := range types {
		assert.Equal(t, "event", mappedType.PkgPath()[strings.LastIndex(mappedType.PkgPath(), "/")+1:])
	}
}
