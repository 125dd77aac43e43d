// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/event"
)

/*
TestRegistry_Compliance walks every registry entry and verifies that each
required handler class actually supports the event, and that audited
events carry a known audit action.
*/
func TestRegistry_Compliance(t *testing.T) {
	logging := event.NewLoggingHandler(slog.Default())
	audit := event.NewAuditHandler(nil)
	emailHandler := event.NewEmailHandler(nil, "https://dashtam.app")
	sessionHandler := event.NewSessionHandler(nil)

	for _, entry := range event.Registry {
		entry := entry
		t.Run(entry.Name(), func(t *testing.T) {
			if entry.RequiresLogging {
				assert.True(t, logging.Supports(entry.Type), "logging handler must support %s", entry.Name())
			}
			if entry.RequiresAudit {
				assert.True(t, audit.Supports(entry.Type), "audit handler must support %s", entry.Name())
				require.NotEmpty(t, entry.AuditAction, "audited event %s must declare an action", entry.Name())
				assert.True(t, event.IsKnownAuditAction(entry.AuditAction),
					"audit action %q must belong to the closed set", entry.AuditAction)
			}
			if entry.RequiresEmail {
				assert.True(t, emailHandler.Supports(entry.Type), "email handler must support %s", entry.Name())
			}
			if entry.RequiresSession {
				assert.True(t, sessionHandler.Supports(entry.Type), "session handler must support %s", entry.Name())
			}
		})
	}
}

/*
TestRegistry_EntryShape pins the structural invariants of the table: no
duplicate types, a category and workflow on every entry, and logging
required everywhere.
*/
func TestRegistry_EntryShape(t *testing.T) {
	seen := make(map[string]bool)

	for _, entry := range event.Registry {
		assert.False(t, seen[entry.Name()], "duplicate registry entry for %s", entry.Name())
		seen[entry.Name()] = true

		assert.NotEmpty(t, entry.Category, "%s must have a category", entry.Name())
		assert.NotEmpty(t, entry.Workflow, "%s must have a workflow", entry.Name())
		assert.NotEmpty(t, entry.Phase, "%s must have a phase", entry.Name())
		assert.True(t, entry.RequiresLogging, "%s must require logging", entry.Name())

		if !entry.RequiresAudit {
			assert.Empty(t, entry.AuditAction, "%s declares an action without requiring audit", entry.Name())
		}
	}
}

/*
TestRegistry_Lookup checks exact-type lookup semantics: a registered
value resolves, an unregistered type does not.
*/
func TestRegistry_Lookup(t *testing.T) {
	entry, ok := event.Lookup(event.UserLoginSucceeded{})
	require.True(t, ok)
	assert.Equal(t, "UserLoginSucceeded", entry.Name())
	assert.Equal(t, event.ActionUserLoginSuccess, entry.AuditAction)

	type unregistered struct{ event.BaseEvent }
	_, ok = event.Lookup(unregistered{})
	assert.False(t, ok)
}

/*
TestComputeStats verifies the tallies agree with the table itself.
*/
func TestComputeStats(t *testing.T) {
	stats := event.ComputeStats()

	assert.Equal(t, len(event.Registry), stats.Total)
	assert.Equal(t, stats.Total, stats.RequiresLogging)
	assert.Greater(t, stats.RequiresAudit, 0)
	assert.Greater(t, stats.RequiresEmail, 0)
	assert.Greater(t, stats.RequiresSession, 0)

	byCategory := 0
	for _, count := range stats.ByCategory {
		byCategory += count
	}
	assert.Equal(t, stats.Total, byCategory)
}
