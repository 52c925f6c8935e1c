// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package eventbus implements the process-wide domain-event dispatcher.
//
// Mutating operations collect domain events, commit their storage changes,
// then hand the batch to Publish. The bus resolves handlers through a typed
// registry (a map from event kind to handler list) built once at startup and
// frozen before the first publish; dispatch is a plain lookup plus
// iteration. Handlers run sequentially and synchronously: the first handler
// error aborts the batch and is returned to the publisher, which owns the
// decision of what to do with a failed subscriber.
package eventbus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/metrics"
)

// Kind identifies the concrete type of a domain event. The set of kinds is
// closed; each event variant declares its own.
type Kind string

const (
	KindMissionCreated    Kind = "mission.created"
	KindMissionUpdated    Kind = "mission.updated"
	KindChatMessagePosted Kind = "chat.message_posted"
)

// Event is an ephemeral notification raised after a committed mutation.
// Events are never persisted and carry just enough data for subscribers
// to act.
type Event interface {
	Kind() Kind
}

// HandlerFunc processes a single event. Handlers must treat the event as
// read-only and honor ctx cancellation on any blocking work.
type HandlerFunc func(ctx context.Context, event Event) error

// Bus routes published events to the handlers registered for their kind.
// The registry is mutable only between New and Freeze; after Freeze it is
// read-only and safe for concurrent Publish calls.
type Bus struct {
	handlers map[Kind][]HandlerFunc
	frozen   atomic.Bool
}

// New returns an empty bus. Register handlers with Subscribe, then call
// Freeze before serving traffic.
func New() *Bus {
	return &Bus{handlers: make(map[Kind][]HandlerFunc)}
}

// Subscribe registers a handler for the given event kind. Panics if called
// after Freeze; the registry is fixed at process start by design.
func (b *Bus) Subscribe(kind Kind, handler HandlerFunc) {
	if b.frozen.Load() {
		panic("eventbus: Subscribe called after Freeze")
	}
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Freeze marks the registry read-only. Publish before Freeze is an error so
// that no event can be raced past a half-built registry during startup.
func (b *Bus) Freeze() {
	b.frozen.Store(true)
}

// Publish dispatches each event in order to every handler registered for
// its kind. Handlers for a single event run sequentially in registration
// order, and the batch order given by the caller is preserved. The first
// handler error aborts the remainder of the batch and is returned.
//
// Events with no registered handlers are skipped silently; publishing is
// fire-and-forget with respect to unknown kinds.
func (b *Bus) Publish(ctx context.Context, events ...Event) error {
	if !b.frozen.Load() {
		return fmt.Errorf("eventbus: Publish before Freeze")
	}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, handler := range b.handlers[event.Kind()] {
			if err := handler(ctx, event); err != nil {
				logging.Ctx(ctx).Error().
					Err(err).
					Str("event_kind", string(event.Kind())).
					Msg("event handler failed, aborting publish")
				return fmt.Errorf("eventbus: handler for %s: %w", event.Kind(), err)
			}
		}
		metrics.EventsDispatched.WithLabelValues(string(event.Kind())).Inc()
	}
	return nil
}
