// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

package event

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// handlerTimeout bounds each handler invocation so one slow sink cannot
// cause head-of-line blocking on the bus.
const handlerTimeout = 10 * time.Second

// # Per-Publish Context

// Querier is the slice of pgx both a pool and a transaction satisfy.
// The audit handler reuses a publish-supplied Querier so test-scoped
// transactions observe their own audit rows.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Metadata carries request attribution for audit enrichment.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Publication is the optional per-publish context handlers receive.
// Handlers must tolerate the zero value: no DB handle, no metadata.
type Publication struct {
	DB       Querier
	Metadata *Metadata
}

// PublishOption mutates the [Publication] attached to one publish call.
type PublishOption func(*Publication)

// WithDB attaches a request-scoped database handle for the audit handler.
func WithDB(db Querier) PublishOption {
	return func(p *Publication) { p.DB = db }
}

// WithMetadata attaches request attribution ({ip, user-agent}).
func WithMetadata(ipAddress, userAgent string) PublishOption {
	return func(p *Publication) {
		p.Metadata = &Metadata{IPAddress: ipAddress, UserAgent: userAgent}
	}
}

// # Bus Contract

// HandlerFunc processes one event. Returned errors are logged by the bus
// and never propagate to the publisher.
type HandlerFunc func(ctx context.Context, e Event, pub Publication) error

// Publisher is the narrow interface workflow services depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event, opts ...PublishOption)
}

// # In-Memory Bus

// subscription pairs a handler with a stable name for failure logs.
type subscription struct {
	name    string
	handler HandlerFunc
}

// InMemoryBus is the single-process event bus.
//
// # Semantics
//
//   - Routing is by exact runtime type; no interface or embedding match.
//   - Handlers for one event run concurrently with no mutual ordering.
//   - Fail-open: a panicking or erroring handler produces one warning
//     log (event_id, handler, error) and affects nothing else.
//   - Publish returns only after every handler has finished.
//   - Zero subscribers for a type is a silent no-op.
type InMemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[reflect.Type][]subscription
	logger        *slog.Logger
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus(logger *slog.Logger) *InMemoryBus {
	return &InMemoryBus{
		subscriptions: make(map[reflect.Type][]subscription),
		logger:        logger,
	}
}

// Subscribe registers a named handler for the exact event type.
// All subscriptions happen at startup, before the first publish.
func (bus *InMemoryBus) Subscribe(eventType reflect.Type, name string, handler HandlerFunc) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subscriptions[eventType] = append(bus.subscriptions[eventType], subscription{name: name, handler: handler})
}

/*
Publish fans the event out to every subscribed handler concurrently.

Description: Handlers run detached from the request's cancellation (they
must outlive the caller) but under their own bounded deadline. Publish
blocks until all handlers return; failures are logged and swallowed.

Parameters:
  - ctx: context.Context (values survive into handlers; cancellation does not)
  - e: Event
  - opts: optional per-publish DB handle and request metadata
*/
func (bus *InMemoryBus) Publish(ctx context.Context, e Event, opts ...PublishOption) {
	bus.mu.RLock()
	subs := bus.subscriptions[reflect.TypeOf(e)]
	bus.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	publication := Publication{}
	for _, opt := range opts {
		opt(&publication)
	}

	// Handlers ignore request cancellation but keep context values
	// (request-scoped logger, request ID) for correlation.
	detached := context.WithoutCancel(ctx)

	var waitGroup sync.WaitGroup
	for _, sub := range subs {
		waitGroup.Add(1)

		go func(sub subscription) {
			defer waitGroup.Done()

			handlerCtx, cancel := context.WithTimeout(detached, handlerTimeout)
			defer cancel()

			defer func() {
				if panicked := recover(); panicked != nil {
					bus.logger.Warn("event_handler_panicked",
						slog.String("event_id", e.EventID()),
						slog.String("event_type", reflect.TypeOf(e).Name()),
						slog.String("handler", sub.name),
						slog.Any("error", panicked),
					)
				}
			}()

			if err := sub.handler(handlerCtx, e, publication); err != nil {
				bus.logger.Warn("event_handler_failed",
					slog.String("event_id", e.EventID()),
					slog.String("event_type", reflect.TypeOf(e).Name()),
					slog.String("handler", sub.name),
					slog.Any("error", err),
				)
			}
		}(sub)
	}

	waitGroup.Wait()
}
