// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sse

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dashtam/dashtam/internal/platform/apperr"
	"github.com/dashtam/dashtam/internal/platform/constants"
	requestutil "github.com/dashtam/dashtam/internal/platform/request"
	"github.com/dashtam/dashtam/internal/platform/respond"
)

const (
	// HeartbeatInterval paces the keep-alive comments on an idle stream.
	HeartbeatInterval = 15 * time.Second

	// RetryHintMillis is the reconnect delay suggested to clients.
	RetryHintMillis = 3000
)

// Handler implements the SSE streaming endpoint.
type Handler struct {
	subscriber *Subscriber
}

// NewHandler constructs a new [Handler].
func NewHandler(subscriber *Subscriber) *Handler {
	return &Handler{subscriber: subscriber}
}

// Routes returns the events sub-router. The caller mounts it behind
// authentication with session binding, so a revoked session cannot hold
// a stream open past its next reconnect.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", handler.stream)
	return router
}

/*
Stream opens the server-sent event stream for the caller.

GET /api/v1/events?categories=data_sync,provider

Description: Emits the retry hint first, then replays retained events
newer than the Last-Event-ID header (when retention holds them), then
streams live events. A comment heartbeat keeps intermediaries from
closing the idle connection. The category filter rejects unknown
categories with a 400 rather than silently ignoring them.

Response:
  - 200: text/event-stream until the client disconnects
  - 400: Unknown category in the filter
  - 401: Authentication required
*/
func (handler *Handler) stream(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	categories := parseCategories(request.URL.Query().Get("categories"))
	if err := ValidateCategories(categories); err != nil {
		respond.Error(writer, request, apperr.ValidationError("Unknown event category",
			apperr.FieldError{Field: "categories", Message: err.Error()}))
		return
	}

	flusher, ok := writer.(http.Flusher)
	if !ok {
		respond.Error(writer, request, apperr.Internal(fmt.Errorf("sse: response writer does not support flushing")))
		return
	}

	ctx := request.Context()

	// Subscribe before writing headers so a Redis failure can still
	// produce a regular error response.
	events, err := handler.subscriber.Subscribe(ctx, claims.UserID(), categories)
	if err != nil {
		respond.Error(writer, request, apperr.ServiceUnavailable("Event stream unavailable"))
		return
	}

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.Header().Set("X-Accel-Buffering", "no")
	writer.WriteHeader(http.StatusOK)

	// The stream outlives the server's write timeout.
	controller := http.NewResponseController(writer)
	_ = controller.SetWriteDeadline(time.Time{})

	fmt.Fprintf(writer, "retry: %d\n\n", RetryHintMillis)
	flusher.Flush()

	lastEventID := request.Header.Get(constants.HeaderLastEventID)
	if missed, err := handler.subscriber.MissedEvents(ctx, claims.UserID(), lastEventID, categories); err == nil {
		for _, e := range missed {
			handler.write(writer, flusher, e)
		}
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(writer, ": heartbeat\n\n")
			flusher.Flush()

		case e, ok := <-events:
			if !ok {
				return
			}
			handler.write(writer, flusher, e)
		}
	}
}

// write emits one encoded event and flushes it to the client.
func (handler *Handler) write(writer http.ResponseWriter, flusher http.Flusher, e Event) {
	wire, err := e.Encode()
	if err != nil {
		return
	}
	fmt.Fprint(writer, wire)
	flusher.Flush()
}

// parseCategories splits a comma-separated filter into its members.
func parseCategories(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	categories := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			categories = append(categories, trimmed)
		}
	}
	return categories
}
