// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dashtam/dashtam/internal/platform/constants"
	"github.com/dashtam/dashtam/pkg/uuid"
)

// subscriptionBuffer bounds the per-connection delivery channel. A
// client that cannot keep up drops events rather than stalling the
// pump goroutine.
const subscriptionBuffer = 64

// Subscriber delivers live SSE events and replays retained ones.
type Subscriber struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSubscriber constructs the SSE subscriber.
func NewSubscriber(client *redis.Client, logger *slog.Logger) *Subscriber {
	return &Subscriber{client: client, logger: logger}
}

/*
Subscribe opens a live event channel for one user.

Description: Listens on the user's channel and the broadcast channel,
decodes each message, applies the category filter, and forwards matches.
The returned channel closes when ctx is cancelled. An unknown category
in the filter is a deterministic error before any subscription happens.

Parameters:
  - ctx: Governs the subscription lifetime
  - userID: The target user
  - categories: Optional category filter; empty passes everything

Returns:
  - <-chan Event: Closed on ctx cancellation
  - error: Invalid filter or Redis subscription failures
*/
func (subscriber *Subscriber) Subscribe(ctx context.Context, userID string, categories []string) (<-chan Event, error) {
	if err := ValidateCategories(categories); err != nil {
		return nil, err
	}

	pubsub := subscriber.client.Subscribe(ctx,
		constants.SSEChannelUserPrefix+userID,
		constants.SSEChannelBroadcast,
	)

	// Force the subscription onto the wire before returning, so events
	// published after this call cannot be lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("sse_subscribe_failed: %w", err)
	}

	events := make(chan Event, subscriptionBuffer)

	go func() {
		defer close(events)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return

			case message, ok := <-messages:
				if !ok {
					return
				}

				var e Event
				if err := json.Unmarshal([]byte(message.Payload), &e); err != nil {
					subscriber.logger.Warn("sse_message_decode_failed",
						slog.String("channel", message.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}

				if !e.MatchesFilter(categories) {
					continue
				}

				select {
				case events <- e:
				default:
					// Slow client: drop rather than stall the pump.
					subscriber.logger.Warn("sse_client_backpressure_drop",
						slog.String("event_id", e.ID),
						slog.String("user_id", userID),
					)
				}
			}
		}
	}()

	return events, nil
}

/*
MissedEvents replays retained events newer than lastEventID.

Description: Scans the user's replay stream oldest-first and skips
entries until lastEventID is seen, then returns everything after it in
order. Event IDs are UUIDv7, so when lastEventID is a well-formed ID
that is absent from the stream the chronological ordering still holds:
only events with a strictly greater ID return. An ID that aged out of
the window is older than everything retained, so the whole window comes
back, which errs on the side of duplicate delivery over loss. A
malformed ID cannot be ordered at all and also replays the whole
window. Results honor the category filter.

Parameters:
  - ctx: context.Context
  - userID: The target user
  - lastEventID: The client's Last-Event-ID header; "" replays nothing
  - categories: Optional category filter

Returns:
  - []Event: Strictly ordered, possibly empty
  - error: Invalid filter or Redis failures
*/
func (subscriber *Subscriber) MissedEvents(ctx context.Context, userID, lastEventID string, categories []string) ([]Event, error) {
	if lastEventID == "" {
		return nil, nil
	}
	if err := ValidateCategories(categories); err != nil {
		return nil, err
	}

	entries, err := subscriber.client.XRange(ctx, constants.SSEStreamUserPrefix+userID, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("sse_replay_read_failed: %w", err)
	}

	decoded := make([]Event, 0, len(entries))
	found := false
	for _, entry := range entries {
		payload, ok := entry.Values["event"].(string)
		if !ok {
			continue
		}

		var e Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			subscriber.logger.Warn("sse_replay_decode_failed", slog.String("error", err.Error()))
			continue
		}

		if e.ID == lastEventID {
			found = true
		}
		decoded = append(decoded, e)
	}

	var missed []Event
	if found {
		include := false
		for _, e := range decoded {
			if !include {
				if e.ID == lastEventID {
					include = true
				}
				continue
			}
			if e.MatchesFilter(categories) {
				missed = append(missed, e)
			}
		}
		return missed, nil
	}

	// Not retained. A well-formed ID still orders against the window
	// (UUIDv7 lexical order is chronological order), so only genuinely
	// newer events return; a malformed one cannot be ordered and gets
	// the whole window.
	orderable := uuid.IsValid(lastEventID)
	for _, e := range decoded {
		if orderable && e.ID <= lastEventID {
			continue
		}
		if e.MatchesFilter(categories) {
			missed = append(missed, e)
		}
	}

	return missed, nil
}
