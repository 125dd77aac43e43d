// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
)

// LoggingHandler emits one structured log line per subscribed event.
//
// # Secret Hygiene
//
// Log fields are derived from the event's JSON form. Sensitive fields
// (verification and reset tokens) are tagged `json:"-"` on the event
// structs themselves, so they can never reach a log line through this
// handler.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates the structured-log event sink.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Supports reports whether the handler can process the event type.
// Any registered type is loggable.
func (handler *LoggingHandler) Supports(eventType reflect.Type) bool {
	_, ok := registryIndex[eventType]
	return ok
}

/*
Handle logs the event at a phase-appropriate level.

Description: ATTEMPTED/SUCCEEDED/ALLOWED/OPERATIONAL log at INFO;
FAILED/DENIED log at WARNING. Fields are event_id, occurred_at
(ISO-8601 UTC), workflow, phase, category, plus the event's own
JSON-visible payload.

Returns:
  - error: Unregistered event types only
*/
func (handler *LoggingHandler) Handle(ctx context.Context, e Event, _ Publication) error {
	entry, ok := Lookup(e)
	if !ok {
		return fmt.Errorf("event_logging_unregistered_type: %T", e)
	}

	level := slog.LevelInfo
	if entry.Phase == PhaseFailed || entry.Phase == PhaseDenied {
		level = slog.LevelWarn
	}

	attrs := []any{
		slog.String("event_id", e.EventID()),
		slog.String("occurred_at", e.OccurredAt().Format("2006-01-02T15:04:05.000Z07:00")),
		slog.String("workflow", entry.Workflow),
		slog.String("phase", string(entry.Phase)),
		slog.String("category", string(entry.Category)),
	}

	for key, value := range payloadFields(e) {
		attrs = append(attrs, slog.Any(key, value))
	}

	handler.logger.Log(ctx, level, "domain_event_"+entry.Name(), attrs...)
	return nil
}

// payloadFields extracts the event's JSON-visible fields, minus the
// identity pair already logged explicitly.
func payloadFields(e Event) map[string]any {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil
	}

	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	delete(fields, "event_id")
	delete(fields, "occurred_at")
	return fields
}
