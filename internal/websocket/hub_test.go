// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package websocket

import (
	"context"
	"testing"
	"time"
)

func newTestClient(id string) *Client {
	return &Client{id: id, username: id, send: make(chan Message, 8), done: make(chan struct{})}
}

func detached(c *Client) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// startHub runs the hub loop and stops it on test cleanup.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// register pushes the client through the lifecycle channel and waits until
// the hub has absorbed it.
func register(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	hub.Register <- client
	waitFor(t, func() bool { return hub.ClientCount() > 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case msg := <-client.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s received nothing", client.id)
		return Message{}
	}
}

func expectSilence(t *testing.T, client *Client) {
	t.Helper()
	select {
	case msg := <-client.send:
		t.Fatalf("client %s unexpectedly received %+v", client.id, msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_GroupBroadcastIsolation(t *testing.T) {
	hub := startHub(t)

	alpha := newTestClient("alpha")
	beta := newTestClient("beta")
	gamma := newTestClient("gamma")
	for _, c := range []*Client{alpha, beta, gamma} {
		hub.Register <- c
	}
	waitFor(t, func() bool { return hub.ClientCount() == 3 })

	hub.Join("mission_a", alpha.id)
	hub.Join("mission_a", beta.id)
	hub.Join("mission_b", gamma.id)

	hub.SendToGroup("mission_a", "message.new", "hello")

	for _, c := range []*Client{alpha, beta} {
		msg := receive(t, c)
		if msg.Event != "message.new" || msg.Data != "hello" {
			t.Errorf("client %s got %+v, want the broadcast", c.id, msg)
		}
	}
	// The other group's member hears nothing.
	expectSilence(t, gamma)
}

func TestHub_JoinUnknownConnIsIgnored(t *testing.T) {
	hub := startHub(t)

	if hub.Join("mission_a", "never-registered") {
		t.Error("Join with an unknown connection should report failure")
	}
	if hub.GroupSize("mission_a") != 0 {
		t.Error("joining with an unknown connection must not create membership")
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub := startHub(t)

	client := newTestClient("alpha")
	register(t, hub, client)
	hub.Join("mission_a", client.id)
	hub.Leave("mission_a", client.id)

	if hub.GroupSize("mission_a") != 0 {
		t.Fatalf("group size = %d after leave, want 0", hub.GroupSize("mission_a"))
	}

	hub.SendToGroup("mission_a", "message.new", "text")
	expectSilence(t, client)

	// Leaving again is harmless.
	hub.Leave("mission_a", client.id)
}

func TestHub_UnregisterRemovesFromGroups(t *testing.T) {
	hub := startHub(t)

	client := newTestClient("alpha")
	register(t, hub, client)
	hub.Join("mission_a", client.id)

	hub.Unregister <- client
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	if hub.GroupSize("mission_a") != 0 {
		t.Error("unregister must drop group membership")
	}
	// The teardown signal fires so the write pump unwinds.
	if !detached(client) {
		t.Error("client should be detached after unregister")
	}
}

func TestHub_UnregisterUnknownClientIsIgnored(t *testing.T) {
	hub := startHub(t)

	known := newTestClient("alpha")
	register(t, hub, known)

	// A client the hub never saw: removal must not panic or close anything.
	hub.Unregister <- newTestClient("stranger")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
}

func TestHub_StalledClientIsDropped(t *testing.T) {
	hub := startHub(t)

	stalled := &Client{id: "stalled", send: make(chan Message), done: make(chan struct{})} // no buffer, never read
	healthy := newTestClient("healthy")
	hub.Register <- stalled
	hub.Register <- healthy
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.Join("mission_a", stalled.id)
	hub.Join("mission_a", healthy.id)

	hub.SendToGroup("mission_a", "message.new", "first")
	if msg := receive(t, healthy); msg.Data != "first" {
		t.Errorf("healthy client got %+v", msg)
	}
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	// Subsequent broadcasts reach the surviving member only.
	hub.SendToGroup("mission_a", "message.new", "second")
	if msg := receive(t, healthy); msg.Data != "second" {
		t.Errorf("healthy client got %+v", msg)
	}

	// The dropped client's read path may still be handling a command; a late
	// frame is discarded without panicking on a closed channel.
	if !detached(stalled) {
		t.Fatal("stalled client should be detached")
	}
	stalled.enqueue(Message{Event: EventPong})
	expectSilence(t, stalled)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	client := newTestClient("alpha")
	hub.Register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if !detached(client) {
		t.Error("client should be detached on shutdown")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients = %d after shutdown, want 0", hub.ClientCount())
	}
}
