// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/missionhq/missionboard/internal/metrics"
)

func TestBus_PublishBeforeFreezeFails(t *testing.T) {
	bus := New()
	err := bus.Publish(context.Background(), MissionCreated{MissionID: uuid.New()})
	if err == nil {
		t.Fatal("Publish before Freeze should fail")
	}
}

func TestBus_SubscribeAfterFreezePanics(t *testing.T) {
	bus := New()
	bus.Freeze()

	defer func() {
		if recover() == nil {
			t.Error("Subscribe after Freeze should panic")
		}
	}()
	bus.Subscribe(KindMissionCreated, func(ctx context.Context, e Event) error { return nil })
}

func TestBus_DispatchOrder(t *testing.T) {
	bus := New()

	var order []string
	bus.Subscribe(KindMissionCreated, func(ctx context.Context, e Event) error {
		order = append(order, "created-1")
		return nil
	})
	bus.Subscribe(KindMissionCreated, func(ctx context.Context, e Event) error {
		order = append(order, "created-2")
		return nil
	})
	bus.Subscribe(KindMissionUpdated, func(ctx context.Context, e Event) error {
		order = append(order, "updated")
		return nil
	})
	bus.Freeze()

	err := bus.Publish(context.Background(),
		MissionCreated{MissionID: uuid.New()},
		MissionUpdated{MissionID: uuid.New()},
	)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := []string{"created-1", "created-2", "updated"}
	if len(order) != len(want) {
		t.Fatalf("dispatched %d handler calls, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_HandlerErrorAbortsBatch(t *testing.T) {
	bus := New()
	handlerErr := errors.New("boom")

	var secondHandlerRan, secondEventRan bool
	bus.Subscribe(KindMissionCreated, func(ctx context.Context, e Event) error {
		return handlerErr
	})
	bus.Subscribe(KindMissionCreated, func(ctx context.Context, e Event) error {
		secondHandlerRan = true
		return nil
	})
	bus.Subscribe(KindMissionUpdated, func(ctx context.Context, e Event) error {
		secondEventRan = true
		return nil
	})
	bus.Freeze()

	err := bus.Publish(context.Background(),
		MissionCreated{MissionID: uuid.New()},
		MissionUpdated{MissionID: uuid.New()},
	)
	if !errors.Is(err, handlerErr) {
		t.Fatalf("Publish error = %v, want wrapped %v", err, handlerErr)
	}
	if secondHandlerRan {
		t.Error("later handler for the failed event should not run")
	}
	if secondEventRan {
		t.Error("later events in the batch should not dispatch after a failure")
	}
}

func TestBus_UnknownKindIsSkipped(t *testing.T) {
	bus := New()
	bus.Freeze()

	// No handlers registered at all; publishing must still succeed.
	err := bus.Publish(context.Background(), ChatMessagePosted{MissionID: uuid.New()})
	if err != nil {
		t.Errorf("Publish with no handlers failed: %v", err)
	}
}

func TestBus_DispatchCountsEventsNotHandlers(t *testing.T) {
	bus := New()
	bus.Subscribe(KindMissionUpdated, func(ctx context.Context, e Event) error { return nil })
	bus.Subscribe(KindMissionUpdated, func(ctx context.Context, e Event) error { return nil })
	bus.Freeze()

	counter := metrics.EventsDispatched.WithLabelValues(string(KindMissionUpdated))
	before := testutil.ToFloat64(counter)

	if err := bus.Publish(context.Background(), MissionUpdated{MissionID: uuid.New()}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// One event through two handlers counts once.
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("dispatched counter advanced by %v, want 1", got)
	}
}

func TestBus_CanceledContextStopsDispatch(t *testing.T) {
	bus := New()

	var calls int
	bus.Subscribe(KindMissionCreated, func(ctx context.Context, e Event) error {
		calls++
		return nil
	})
	bus.Freeze()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Publish(ctx, MissionCreated{MissionID: uuid.New()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("handler ran %d times on canceled context, want 0", calls)
	}
}
