// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sse

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dashtam/dashtam/internal/event"
	"github.com/dashtam/dashtam/internal/platform/constants"
)

// # Retention Parameters

const (
	// StreamMaxLen caps the per-user replay stream (approximate trim).
	StreamMaxLen = 1000

	// StreamTTL expires an idle user's replay stream.
	StreamTTL = 24 * time.Hour
)

// # Publisher

// Publisher fans SSE events out through Redis.
//
// Live delivery uses pub/sub; when retention is enabled each user-scoped
// event is also appended to a capped Redis stream so reconnecting
// clients can replay missed events. Every Redis failure is logged as a
// warning and swallowed: SSE is best-effort delivery.
type Publisher struct {
	client    *redis.Client
	retention bool
	logger    *slog.Logger
}

// NewPublisher constructs the SSE publisher.
func NewPublisher(client *redis.Client, retention bool, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, retention: retention, logger: logger}
}

/*
Publish delivers one SSE event.

Description: User-scoped events go to sse:user:<uuid>; events without a
user go to the broadcast channel. With retention on, user-scoped events
are also XAdd-ed to sse:stream:user:<uuid> with an approximate MAXLEN
cap, and the stream TTL is refreshed on every append.

Parameters:
  - ctx: context.Context
  - e: The event to deliver
*/
func (publisher *Publisher) Publish(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		publisher.degraded("sse_publish_encode_failed", e, err)
		return
	}

	channel := constants.SSEChannelBroadcast
	if e.UserID != "" {
		channel = constants.SSEChannelUserPrefix + e.UserID
	}

	if err := publisher.client.Publish(ctx, channel, payload).Err(); err != nil {
		publisher.degraded("sse_publish_failed", e, err)
	}

	if !publisher.retention || e.UserID == "" {
		return
	}

	streamKey := constants.SSEStreamUserPrefix + e.UserID
	err = publisher.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: map[string]any{"event": string(payload)},
	}).Err()
	if err != nil {
		publisher.degraded("sse_retention_failed", e, err)
		return
	}

	if err := publisher.client.Expire(ctx, streamKey, StreamTTL).Err(); err != nil {
		publisher.degraded("sse_retention_expire_failed", e, err)
	}
}

func (publisher *Publisher) degraded(message string, e Event, err error) {
	publisher.logger.Warn(message,
		slog.String("event_id", e.ID),
		slog.String("event_type", e.Type),
		slog.String("error", err.Error()),
	)
}

// # Bus Handler

// FanoutHandler bridges the domain event bus to the SSE publisher.
type FanoutHandler struct {
	publisher *Publisher
}

// NewFanoutHandler constructs the bus-side SSE handler.
func NewFanoutHandler(publisher *Publisher) *FanoutHandler {
	return &FanoutHandler{publisher: publisher}
}

// Handle converts a mapped domain event and publishes it. Unmapped
// events are silently dropped.
func (handler *FanoutHandler) Handle(ctx context.Context, e event.Event, _ event.Publication) error {
	sseEvent, ok := Map(e)
	if !ok {
		return nil
	}

	handler.publisher.Publish(ctx, sseEvent)
	return nil
}

// EventSubscriber is the slice of the event bus the fan-out needs.
type EventSubscriber interface {
	Subscribe(eventType reflect.Type, name string, handler event.HandlerFunc)
}

// BindFanout subscribes the handler to every registry-mapped domain
// event type. Called once from the composition root.
func BindFanout(bus EventSubscriber, handler *FanoutHandler) {
	for _, eventType := range MappedTypes() {
		bus.Subscribe(eventType, "sse", handler.Handle)
	}
}
