// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package sse_test

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/event"
	"github.com/dashtam/dashtam/internal/platform/constants"
	"github.com/dashtam/dashtam/internal/sse"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testEvent(id, userID string, category sse.Category) sse.Event {
	return sse.Event{
		ID:         id,
		Type:       "security.session.revoked",
		Category:   category,
		UserID:     userID,
		Data:       map[string]any{"session_id": "session-1"},
		OccurredAt: time.Now().UTC(),
	}
}

func receive(t *testing.T, events <-chan sse.Event) sse.Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "event channel closed early")
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return sse.Event{}
	}
}

// # Live Delivery

/*
TestLiveDelivery publishes through the Publisher and receives through a
Subscriber on the same Redis, covering user-scoped and broadcast
channels.
*/
func TestLiveDelivery(t *testing.T) {
	client := newRedisClient(t)
	publisher := sse.NewPublisher(client, false, slog.Default())
	subscriber := sse.NewSubscriber(client, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := subscriber.Subscribe(ctx, "user-1", nil)
	require.NoError(t, err)

	publisher.Publish(context.Background(), testEvent("evt-1", "user-1", sse.CategorySecurity))
	got := receive(t, events)
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, "user-1", got.UserID)

	// Broadcast events reach every subscriber.
	publisher.Publish(context.Background(), testEvent("evt-2", "", sse.CategorySecurity))
	got = receive(t, events)
	assert.Equal(t, "evt-2", got.ID)

	// Another user's channel stays silent here.
	publisher.Publish(context.Background(), testEvent("evt-3", "user-2", sse.CategorySecurity))
	publisher.Publish(context.Background(), testEvent("evt-4", "user-1", sse.CategorySecurity))
	got = receive(t, events)
	assert.Equal(t, "evt-4", got.ID)
}

/*
TestLiveDelivery_CategoryFilter verifies filtered subscriptions only see
matching categories.
*/
func TestLiveDelivery_CategoryFilter(t *testing.T) {
	client := newRedisClient(t)
	publisher := sse.NewPublisher(client, false, slog.Default())
	subscriber := sse.NewSubscriber(client, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := subscriber.Subscribe(ctx, "user-1", []string{"security"})
	require.NoError(t, err)

	publisher.Publish(context.Background(), testEvent("evt-1", "user-1", sse.CategoryDataSync))
	publisher.Publish(context.Background(), testEvent("evt-2", "user-1", sse.CategorySecurity))

	got := receive(t, events)
	assert.Equal(t, "evt-2", got.ID)
}

/*
TestSubscribe_InvalidFilter fails before anything reaches Redis.
*/
func TestSubscribe_InvalidFilter(t *testing.T) {
	subscriber := sse.NewSubscriber(newRedisClient(t), slog.Default())

	_, err := subscriber.Subscribe(context.Background(), "user-1", []string{"no-such-category"})
	assert.Error(t, err)
}

/*
TestSubscribe_ClosesOnCancel verifies the channel closes when the
connection context ends.
*/
func TestSubscribe_ClosesOnCancel(t *testing.T) {
	subscriber := sse.NewSubscriber(newRedisClient(t), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	events, err := subscriber.Subscribe(ctx, "user-1", nil)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("channel did not close after cancellation")
	}
}

// # Replay

// retain publishes numbered user-1 security events through a
// retention-enabled publisher and returns their IDs in order.
func retain(t *testing.T, client *redis.Client, count int) []string {
	t.Helper()
	publisher := sse.NewPublisher(client, true, slog.Default())

	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("evt-%d", i+1)
		publisher.Publish(context.Background(), testEvent(ids[i], "user-1", sse.CategorySecurity))
	}
	return ids
}

/*
TestMissedEvents covers the replay semantics: skip-until-last, the
chronological cut for well-formed unretained IDs, the
duplicate-over-loss fallback for unorderable IDs, and the no-header
no-op.
*/
func TestMissedEvents(t *testing.T) {
	t.Run("replays_everything_after_last_seen", func(t *testing.T) {
		client := newRedisClient(t)
		ids := retain(t, client, 4)
		subscriber := sse.NewSubscriber(client, slog.Default())

		missed, err := subscriber.MissedEvents(context.Background(), "user-1", ids[1], nil)
		require.NoError(t, err)
		require.Len(t, missed, 2)
		assert.Equal(t, ids[2], missed[0].ID)
		assert.Equal(t, ids[3], missed[1].ID)
	})

	t.Run("unknown_last_id_replays_whole_window", func(t *testing.T) {
		client := newRedisClient(t)
		ids := retain(t, client, 3)
		subscriber := sse.NewSubscriber(client, slog.Default())

		missed, err := subscriber.MissedEvents(context.Background(), "user-1", "trimmed-away", nil)
		require.NoError(t, err)
		require.Len(t, missed, 3)
		assert.Equal(t, ids[0], missed[0].ID)
	})

	t.Run("unretained_uuid_id_returns_only_newer_events", func(t *testing.T) {
		client := newRedisClient(t)
		publisher := sse.NewPublisher(client, true, slog.Default())
		older := "018f4a70-0000-7000-8000-000000000001"
		newer := "018f4a70-0000-7000-8000-000000000005"
		publisher.Publish(context.Background(), testEvent(older, "user-1", sse.CategorySecurity))
		publisher.Publish(context.Background(), testEvent(newer, "user-1", sse.CategorySecurity))
		subscriber := sse.NewSubscriber(client, slog.Default())

		// Well-formed, never retained, between the two stored IDs: only
		// the genuinely newer event comes back.
		missed, err := subscriber.MissedEvents(context.Background(), "user-1",
			"018f4a70-0000-7000-8000-000000000003", nil)
		require.NoError(t, err)
		require.Len(t, missed, 1)
		assert.Equal(t, newer, missed[0].ID)

		// An ID older than the whole window replays everything.
		missed, err = subscriber.MissedEvents(context.Background(), "user-1",
			"018f4a70-0000-7000-8000-000000000000", nil)
		require.NoError(t, err)
		assert.Len(t, missed, 2)
	})

	t.Run("caught_up_client_gets_nothing", func(t *testing.T) {
		client := newRedisClient(t)
		ids := retain(t, client, 3)
		subscriber := sse.NewSubscriber(client, slog.Default())

		missed, err := subscriber.MissedEvents(context.Background(), "user-1", ids[2], nil)
		require.NoError(t, err)
		assert.Empty(t, missed)
	})

	t.Run("no_header_replays_nothing", func(t *testing.T) {
		client := newRedisClient(t)
		retain(t, client, 3)
		subscriber := sse.NewSubscriber(client, slog.Default())

		missed, err := subscriber.MissedEvents(context.Background(), "user-1", "", nil)
		require.NoError(t, err)
		assert.Nil(t, missed)
	})

	t.Run("honors_category_filter", func(t *testing.T) {
		client := newRedisClient(t)
		publisher := sse.NewPublisher(client, true, slog.Default())
		publisher.Publish(context.Background(), testEvent("evt-1", "user-1", sse.CategorySecurity))
		publisher.Publish(context.Background(), testEvent("evt-2", "user-1", sse.CategoryDataSync))
		publisher.Publish(context.Background(), testEvent("evt-3", "user-1", sse.CategorySecurity))
		subscriber := sse.NewSubscriber(client, slog.Default())

		missed, err := subscriber.MissedEvents(context.Background(), "user-1", "evt-1", []string{"security"})
		require.NoError(t, err)
		require.Len(t, missed, 1)
		assert.Equal(t, "evt-3", missed[0].ID)
	})
}

/*
TestPublisher_Retention checks the replay stream carries a TTL and only
user-scoped events are retained.
*/
func TestPublisher_Retention(t *testing.T) {
	client := newRedisClient(t)
	publisher := sse.NewPublisher(client, true, slog.Default())

	publisher.Publish(context.Background(), testEvent("evt-1", "user-1", sse.CategorySecurity))
	publisher.Publish(context.Background(), testEvent("evt-2", "", sse.CategorySecurity)) // broadcast: no retention

	streamKey := constants.SSEStreamUserPrefix + "user-1"
	length, err := client.XLen(context.Background(), streamKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	ttl, err := client.TTL(context.Background(), streamKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// Broadcast events never touch a user stream.
	keys, err := client.Keys(context.Background(), constants.SSEStreamUserPrefix+"*").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{streamKey}, keys)
}

// # Bus Bridge

// stubBus records fan-out subscriptions.
type stubBus struct {
	subscribed map[reflect.Type]string
}

func (bus *stubBus) Subscribe(eventType reflect.Type, name string, handler event.HandlerFunc) {
	bus.subscribed[eventType] = name
}

/*
TestBindFanout verifies the composition-root wiring subscribes the
fan-out handler to every mapped domain event type.
*/
func TestBindFanout(t *testing.T) {
	handler := sse.NewFanoutHandler(sse.NewPublisher(newRedisClient(t), false, slog.Default()))
	bus := &stubBus{subscribed: make(map[reflect.Type]string)}

	sse.BindFanout(bus, handler)

	assert.Len(t, bus.subscribed, 8)
	assert.Contains(t, bus.subscribed, reflect.TypeOf(event.SessionRevoked{}))
	assert.Contains(t, bus.subscribed, reflect.TypeOf(event.AccountsSyncCompleted{}))
	for _, name := range bus.subscribed {
		assert.Equal(t, "sse", name)
	}
}
