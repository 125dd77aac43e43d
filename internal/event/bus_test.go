// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event_test

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashtam/dashtam/internal/event"
)

// eventType shortens the reflect plumbing in subscriptions.
func eventType(e event.Event) reflect.Type { return reflect.TypeOf(e) }

/*
TestBus_ExactTypeRouting verifies that a handler only sees the exact
type it subscribed to.
*/
func TestBus_ExactTypeRouting(t *testing.T) {
	bus := event.NewInMemoryBus(slog.Default())

	var loginCount, logoutCount atomic.Int32
	bus.Subscribe(eventType(event.UserLoginSucceeded{}), "test", func(ctx context.Context, e event.Event, pub event.Publication) error {
		loginCount.Add(1)
		return nil
	})
	bus.Subscribe(eventType(event.UserLogoutSucceeded{}), "test", func(ctx context.Context, e event.Event, pub event.Publication) error {
		logoutCount.Add(1)
		return nil
	})

	bus.Publish(context.Background(), event.UserLoginSucceeded{BaseEvent: event.NewBase()})
	bus.Publish(context.Background(), event.UserLoginSucceeded{BaseEvent: event.NewBase()})

	assert.Equal(t, int32(2), loginCount.Load())
	assert.Equal(t, int32(0), logoutCount.Load())
}

/*
TestBus_ZeroSubscribersIsNoOp checks that publishing an unsubscribed
type returns silently.
*/
func TestBus_ZeroSubscribersIsNoOp(t *testing.T) {
	bus := event.NewInMemoryBus(slog.Default())

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), event.TokenRefreshAttempted{BaseEvent: event.NewBase()})
	})
}

/*
TestBus_FailOpenIsolation verifies that a panicking handler and an
erroring handler never prevent their siblings from running, and that
Publish itself never propagates the failure.
*/
func TestBus_FailOpenIsolation(t *testing.T) {
	bus := event.NewInMemoryBus(slog.Default())
	eType := eventType(event.UserRegistered{})

	var healthyRuns atomic.Int32
	bus.Subscribe(eType, "panicking", func(ctx context.Context, e event.Event, pub event.Publication) error {
		panic("handler blew up")
	})
	bus.Subscribe(eType, "erroring", func(ctx context.Context, e event.Event, pub event.Publication) error {
		return errors.New("handler failed")
	})
	bus.Subscribe(eType, "healthy", func(ctx context.Context, e event.Event, pub event.Publication) error {
		healthyRuns.Add(1)
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), event.UserRegistered{BaseEvent: event.NewBase()})
	})
	assert.Equal(t, int32(1), healthyRuns.Load())
}

/*
TestBus_PublishWaitsForHandlers checks that Publish blocks until every
handler has finished.
*/
func TestBus_PublishWaitsForHandlers(t *testing.T) {
	bus := event.NewInMemoryBus(slog.Default())
	eType := eventType(event.EmailVerified{})

	var mu sync.Mutex
	finished := 0
	for i := 0; i < 5; i++ {
		bus.Subscribe(eType, "counter", func(ctx context.Context, e event.Event, pub event.Publication) error {
			mu.Lock()
			finished++
			mu.Unlock()
			return nil
		})
	}

	bus.Publish(context.Background(), event.EmailVerified{BaseEvent: event.NewBase()})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, finished)
}

/*
TestBus_HandlerContextSurvivesCancellation verifies that handlers run
detached from the publisher's cancellation.
*/
func TestBus_HandlerContextSurvivesCancellation(t *testing.T) {
	bus := event.NewInMemoryBus(slog.Default())
	eType := eventType(event.SessionRevoked{})

	var sawLiveContext atomic.Bool
	bus.Subscribe(eType, "probe", func(ctx context.Context, e event.Event, pub event.Publication) error {
		sawLiveContext.Store(ctx.Err() == nil)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before publish

	bus.Publish(ctx, event.SessionRevoked{BaseEvent: event.NewBase()})
	assert.True(t, sawLiveContext.Load())
}

/*
TestBus_PublicationOptions checks that publish options reach handlers.
*/
func TestBus_PublicationOptions(t *testing.T) {
	bus := event.NewInMemoryBus(slog.Default())
	eType := eventType(event.UserLoginFailed{})

	var captured event.Publication
	bus.Subscribe(eType, "capture", func(ctx context.Context, e event.Event, pub event.Publication) error {
		captured = pub
		return nil
	})

	bus.Publish(context.Background(),
		event.UserLoginFailed{BaseEvent: event.NewBase(), Email: "a@b.c", Reason: "invalid_password"},
		event.WithMetadata("203.0.113.9", "test-agent/1.0"),
	)

	require.NotNil(t, captured.Metadata)
	assert.Equal(t, "203.0.113.9", captured.Metadata.IPAddress)
	assert.Equal(t, "test-agent/1.0", captured.Metadata.UserAgent)
	assert.Nil(t, captured.DB)
}
