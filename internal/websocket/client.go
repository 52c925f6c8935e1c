// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/missionhq/missionboard/internal/chat"
	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/missions"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 * 1024
	commandTimeout = 10 * time.Second
)

// Client is the middleman between one websocket connection and the hub.
// It implements chat.Conn.
type Client struct {
	id       string
	username string

	hub     *Hub
	manager *chat.Manager
	conn    *websocket.Conn
	send    chan Message

	// done is closed exactly once when the client is torn down, from either
	// side. The write pump exits on it and enqueue discards late frames, so
	// the send channel itself is never closed while the read pump runs.
	done      chan struct{}
	closeOnce sync.Once

	// cancel aborts in-flight command handling when the connection drops.
	cancel context.CancelFunc
	ctx    context.Context
}

// detach signals teardown to the client's pumps. Safe to call concurrently
// from the hub and the read pump; only the first call has effect.
func (c *Client) detach() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ID implements chat.Conn.
func (c *Client) ID() string { return c.id }

// Username implements chat.Conn.
func (c *Client) Username() string { return c.username }

// command is one inbound frame from the client.
type command struct {
	Action    string `json:"action"` // join, leave, send, delete, ping
	MissionID string `json:"mission_id,omitempty"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients authenticate with a bearer token, not cookies, so
	// cross-origin upgrades carry no ambient credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated HTTP request to a websocket connection
// and registers the client with the hub. username is the principal already
// authenticated by the HTTP layer.
func ServeWS(hub *Hub, manager *chat.Manager, w http.ResponseWriter, r *http.Request, username string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:       uuid.New().String(),
		username: username,
		hub:      hub,
		manager:  manager,
		conn:     conn,
		send:     make(chan Message, 64),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	hub.Register <- client
	go client.writePump()
	go client.readPump()
}

// readPump reads commands from the connection and dispatches them to the
// session manager until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.detach()
		c.manager.OnDisconnect(c)
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("conn_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		c.handle(cmd)
	}
}

// handle executes one command with a bounded deadline.
func (c *Client) handle(cmd command) {
	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	switch cmd.Action {
	case "ping":
		c.enqueue(Message{Event: EventPong})
		return

	case "join":
		missionID, ok := c.parseMissionID(cmd.MissionID)
		if !ok {
			return
		}
		if err := c.manager.JoinGroup(ctx, c, missionID); err != nil {
			c.fail(err)
			return
		}
		c.enqueue(Message{Event: EventAck, Data: map[string]string{"action": "join", "mission_id": cmd.MissionID}})

	case "leave":
		missionID, ok := c.parseMissionID(cmd.MissionID)
		if !ok {
			return
		}
		c.manager.LeaveGroup(c, missionID)
		c.enqueue(Message{Event: EventAck, Data: map[string]string{"action": "leave", "mission_id": cmd.MissionID}})

	case "send":
		missionID, ok := c.parseMissionID(cmd.MissionID)
		if !ok {
			return
		}
		if _, err := c.manager.SendMessage(ctx, c, missionID, cmd.Text); err != nil {
			c.fail(err)
		}

	case "delete":
		missionID, ok := c.parseMissionID(cmd.MissionID)
		if !ok {
			return
		}
		messageID, err := uuid.Parse(cmd.MessageID)
		if err != nil {
			c.enqueue(errorFrame("validation_error", "invalid message id"))
			return
		}
		if err := c.manager.DeleteMessage(ctx, c, missionID, messageID); err != nil {
			c.fail(err)
		}

	default:
		c.enqueue(errorFrame("validation_error", "unknown action"))
	}
}

func (c *Client) parseMissionID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		c.enqueue(errorFrame("validation_error", "invalid mission id"))
		return uuid.Nil, false
	}
	return id, true
}

// fail translates a taxonomy error into an error frame. Internal faults are
// surfaced opaquely.
func (c *Client) fail(err error) {
	switch {
	case errors.Is(err, missions.ErrValidation):
		c.enqueue(errorFrame("validation_error", err.Error()))
	case errors.Is(err, missions.ErrForbidden):
		c.enqueue(errorFrame("forbidden", err.Error()))
	case errors.Is(err, missions.ErrNotFound):
		c.enqueue(errorFrame("not_found", err.Error()))
	case errors.Is(err, chat.ErrIdentity):
		c.enqueue(errorFrame("unauthorized", "unable to resolve user, please log in again"))
	case errors.Is(err, chat.ErrRateLimited):
		c.enqueue(errorFrame("rate_limited", "too many messages, slow down"))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Connection is going away; nothing useful to report.
	default:
		logging.Error().Err(err).Str("conn_id", c.id).Msg("unexpected error handling chat command")
		c.enqueue(errorFrame("internal_error", "unexpected error occurred"))
	}
}

func errorFrame(code, message string) Message {
	return Message{Event: EventError, Data: map[string]string{"code": code, "message": message}}
}

// enqueue queues a frame for the write pump, dropping it if the buffer is
// full or the client is already detached.
func (c *Client) enqueue(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
	}
}

// writePump pumps messages from the hub to the websocket connection and
// keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
