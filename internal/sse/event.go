// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package sse implements server-sent event fan-out.

Domain events selected by the package registry are converted into
client-facing SSE events, published through Redis pub/sub for live
delivery, and optionally retained in a bounded per-user Redis stream so
reconnecting clients can replay what they missed.

Architecture:

  - Event: The client-facing shape with wire encoding.
  - Registry: Pure domain-event → SSE-event conversion table.
  - Publisher: Redis pub/sub fan-out plus optional stream retention.
  - Subscriber: Live subscription with category filtering and replay.
  - Handler: The GET /events streaming endpoint.

Every Redis failure on the publish path is fail-open: SSE delivery is
best-effort and never blocks the workflow that emitted the event.
*/
package sse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// # Categories

// Category groups SSE event types for client-side filtering.
type Category string

// Closed category set. Clients may filter on any member; several are
// reserved for product areas that do not emit events yet.
const (
	CategoryDataSync  Category = "data_sync"
	CategoryProvider  Category = "provider"
	CategoryAI        Category = "ai"
	CategoryImport    Category = "import"
	CategoryPortfolio Category = "portfolio"
	CategorySecurity  Category = "security"
)

var validCategories = map[Category]bool{
	CategoryDataSync:  true,
	CategoryProvider:  true,
	CategoryAI:        true,
	CategoryImport:    true,
	CategoryPortfolio: true,
	CategorySecurity:  true,
}

// IsValidCategory reports membership in the closed category set.
func IsValidCategory(category string) bool {
	return validCategories[Category(category)]
}

// ValidateCategories rejects the whole filter when any member is unknown,
// so a typo fails loudly instead of silently muting a category.
func ValidateCategories(categories []string) error {
	for _, category := range categories {
		if !IsValidCategory(category) {
			return fmt.Errorf("sse: unknown category %q", category)
		}
	}
	return nil
}

// # Event

// Event is the client-facing server-sent event.
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"event_type"`
	Category   Category       `json:"category"`
	UserID     string         `json:"user_id,omitempty"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

/*
Encode renders the event in SSE wire form.

Description: Emits id:, event:, and data: lines terminated by the blank
line that delimits SSE messages. The data payload is a single JSON
object, so embedded newlines cannot occur.

Returns:
  - string: The wire-format message
  - error: JSON marshalling failures
*/
func (e Event) Encode() (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("sse_event_encode_failed: %w", err)
	}

	var builder strings.Builder
	builder.WriteString("id: ")
	builder.WriteString(e.ID)
	builder.WriteString("\nevent: ")
	builder.WriteString(e.Type)
	builder.WriteString("\ndata: ")
	builder.Write(payload)
	builder.WriteString("\n\n")

	return builder.String(), nil
}

// MatchesFilter reports whether the event passes the category filter.
// An empty filter passes everything.
func (e Event) MatchesFilter(categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, category := range categories {
		if Category(category) == e.Category {
			return true
		}
	}
	return false
}
