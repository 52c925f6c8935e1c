// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package websocket provides the live transport for mission chat: a hub
// owning per-mission broadcast groups and a client per connection. The hub
// implements chat.GroupManager; the session manager never touches
// connections directly.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/metrics"
)

// Message is one frame delivered to a client.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Frame event names besides the chat broadcast events.
const (
	EventError = "error"
	EventPong  = "pong"
	EventAck   = "ack"
)

type groupMessage struct {
	groupID string
	msg     Message
}

// Hub maintains the set of active clients and their group memberships and
// fans broadcast messages out to group members.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	// groups maps group ID to the member connection IDs.
	groups map[string]map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	broadcast  chan groupMessage
}

// NewHub creates a hub. Run it under a supervisor via Serve.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan groupMessage, 256),
	}
}

// Serve implements suture.Service. Client lifecycle events take priority
// over broadcasts so membership is consistent before messages fan out; on
// cancellation all clients are closed and the context error is returned so
// the supervisor can restart the hub cleanly.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Lifecycle first, non-blocking.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case gm := <-h.broadcast:
			h.deliver(gm)
		}
	}
}

// String names the service in supervisor logs.
func (h *Hub) String() string { return "chat-hub" }

// Join adds the connection to the group. Part of chat.GroupManager. Reports
// false when the connection has not finished registering, so callers can
// fail the command instead of acking a membership that was never recorded.
func (h *Hub) Join(groupID, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[connID]
	if !ok {
		return false
	}
	members, ok := h.groups[groupID]
	if !ok {
		members = make(map[string]*Client)
		h.groups[groupID] = members
	}
	members[connID] = client
	return true
}

// Leave removes the connection from the group. Idempotent.
func (h *Hub) Leave(groupID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[groupID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, groupID)
	}
}

// SendToGroup queues a broadcast to every member of the group. Non-blocking:
// when the broadcast channel is saturated the message is dropped and
// counted rather than stalling the caller.
func (h *Hub) SendToGroup(groupID, event string, payload interface{}) {
	select {
	case h.broadcast <- groupMessage{groupID: groupID, msg: Message{Event: event, Data: payload}}:
	default:
		metrics.BroadcastDrops.Inc()
		logging.Warn().Str("group", groupID).Str("event", event).Msg("broadcast channel full, dropping message")
	}
}

// GroupSize returns the number of connections in a group.
func (h *Hub) GroupSize(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Inc()
	logging.Info().Int("total_clients", total).Str("conn_id", client.id).Msg("websocket client connected")
}

// removeClient drops the client from the hub and from every group it
// joined; the transport owns membership teardown on disconnect.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	for groupID, members := range h.groups {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.groups, groupID)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.detach()
	metrics.ConnectedClients.Dec()
	logging.Info().Int("total_clients", total).Str("conn_id", client.id).Msg("websocket client disconnected")
}

// deliver fans a message out to the group's members in connection-id order
// so delivery order is reproducible. Clients with a full send buffer are
// dropped from the hub; a reader that slow is effectively gone.
func (h *Hub) deliver(gm groupMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.groups[gm.groupID]
	if len(members) == 0 {
		return
	}

	ordered := make([]*Client, 0, len(members))
	for _, client := range members {
		ordered = append(ordered, client)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	var stalled []*Client
	for _, client := range ordered {
		select {
		case client.send <- gm.msg:
		default:
			stalled = append(stalled, client)
		}
	}

	for _, client := range stalled {
		metrics.BroadcastDrops.Inc()
		delete(h.clients, client.id)
		for groupID, group := range h.groups {
			delete(group, client.id)
			if len(group) == 0 {
				delete(h.groups, groupID)
			}
		}
		client.detach()
		metrics.ConnectedClients.Dec()
		logging.Warn().Str("conn_id", client.id).Msg("dropping stalled websocket client")
	}
}

// shutdown closes all clients during graceful teardown.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for id, client := range h.clients {
		client.detach()
		delete(h.clients, id)
	}
	h.groups = make(map[string]map[string]*Client)
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "chat-hub").
		Str("reason", reason).
		Int("clients_closed", count).
		Msg("chat hub stopped")
}
