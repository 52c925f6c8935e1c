// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package chat implements the real-time messaging session manager.
//
// The manager owns everything stateful about live connections: identity
// resolution through a short-TTL lock-striped cache, broadcast-group
// membership keyed by mission, message validation and persistence, deletion
// authorization, and teardown cleanup. It talks to the transport only
// through the GroupManager port; the websocket package provides the
// concrete hub.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/missionhq/missionboard/internal/eventbus"
	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/metrics"
	"github.com/missionhq/missionboard/internal/missions"
	"github.com/missionhq/missionboard/internal/models"
	"github.com/missionhq/missionboard/internal/policy"
	"github.com/missionhq/missionboard/internal/store"
)

// Broadcast event names delivered to group members.
const (
	EventNewMessage     = "message.new"
	EventMessageDeleted = "message.deleted"
)

// MaxMessageLength is the maximum chat message length after trimming.
const MaxMessageLength = 2000

// groupPrefix derives broadcast group IDs from mission IDs.
const groupPrefix = "mission_"

// ErrIdentity indicates the connection's user could not be resolved. The
// caller should treat it as an authentication failure, not a generic fault.
var ErrIdentity = errors.New("chat: unable to resolve connection identity")

// ErrRateLimited indicates the connection exceeded its message budget.
var ErrRateLimited = errors.New("chat: message rate limit exceeded")

// Conn is the transport-side handle for one live connection.
type Conn interface {
	// ID uniquely identifies the connection for the process lifetime.
	ID() string

	// Username is the authenticated principal bound to the connection.
	Username() string
}

// GroupManager is the broadcast channel abstraction produced for the
// transport layer. Group membership is dropped by the transport on
// connection teardown.
type GroupManager interface {
	// Join reports false when the connection is not registered with the
	// transport, so a join racing registration fails instead of acking.
	Join(groupID, connID string) bool
	Leave(groupID, connID string)
	SendToGroup(groupID, event string, payload interface{})
}

// UserLookup resolves the external user identity on cache misses.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// Config tunes the session manager's transient state.
type Config struct {
	// IdentityTTL bounds how long a resolved identity is served from cache.
	// Default: 5 minutes.
	IdentityTTL time.Duration

	// SweepInterval is the cadence of the background cache sweep.
	// Default: 5 minutes.
	SweepInterval time.Duration

	// MessagesPerSecond and MessageBurst bound per-connection send rates.
	MessagesPerSecond float64
	MessageBurst      int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		IdentityTTL:       5 * time.Minute,
		SweepInterval:     5 * time.Minute,
		MessagesPerSecond: 5,
		MessageBurst:      10,
	}
}

// Manager is the session manager. One instance owns all group membership
// and identity-cache state for the process.
type Manager struct {
	users    UserLookup
	missions *missions.Service
	chat     store.ChatStore
	bus      *eventbus.Bus
	groups   GroupManager
	cache    *IdentityCache
	cfg      Config

	// breaker guards the external user lookup so a failing identity
	// backend sheds load instead of stalling every join.
	breaker *gobreaker.CircuitBreaker[*models.User]

	// limiters holds one token bucket per live connection.
	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter

	now func() time.Time
}

// NewManager wires the session manager. The sweeper for its cache is
// obtained from Sweeper() and must be run under the caller's supervisor.
func NewManager(users UserLookup, missionSvc *missions.Service, chatStore store.ChatStore,
	bus *eventbus.Bus, groups GroupManager, cfg Config) *Manager {

	if cfg.IdentityTTL <= 0 {
		cfg.IdentityTTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 5
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 10
	}

	breaker := gobreaker.NewCircuitBreaker[*models.User](gobreaker.Settings{
		Name:    "user-lookup",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Manager{
		users:    users,
		missions: missionSvc,
		chat:     chatStore,
		bus:      bus,
		groups:   groups,
		cache:    NewIdentityCache(cfg.IdentityTTL),
		cfg:      cfg,
		breaker:  breaker,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// Sweeper returns the background eviction service for this manager's cache.
func (m *Manager) Sweeper() *Sweeper {
	return NewSweeper(m.cache, m.cfg.SweepInterval)
}

// GroupName derives the broadcast group ID for a mission.
func GroupName(missionID uuid.UUID) string {
	return groupPrefix + missionID.String()
}

// ResolveIdentity returns the user bound to the connection. Within the TTL
// the cached value is served without re-querying; on a miss the external
// lookup runs behind the circuit breaker and the result is cached.
func (m *Manager) ResolveIdentity(ctx context.Context, conn Conn) (*models.User, error) {
	if user, ok := m.cache.Get(conn.ID()); ok {
		return user, nil
	}

	username := conn.Username()
	if username == "" {
		return nil, ErrIdentity
	}

	user, err := m.breaker.Execute(func() (*models.User, error) {
		return m.users.GetByUsername(ctx, username)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	m.cache.Put(conn.ID(), user)
	return user, nil
}

// JoinGroup subscribes the connection to a mission's broadcast group after
// verifying the mission exists and the user has access.
func (m *Manager) JoinGroup(ctx context.Context, conn Conn, missionID uuid.UUID) error {
	mission, user, err := m.authorize(ctx, conn, missionID)
	if err != nil {
		return err
	}

	if !m.groups.Join(GroupName(mission.ID), conn.ID()) {
		return fmt.Errorf("connection %s not registered with transport", conn.ID())
	}
	logging.Ctx(ctx).Info().
		Str("user_id", user.ID.String()).
		Str("mission_id", mission.ID.String()).
		Str("conn_id", conn.ID()).
		Msg("connection joined mission group")
	return nil
}

// LeaveGroup removes the connection from the mission's group. Idempotent;
// leaving a group the connection never joined is not an error.
func (m *Manager) LeaveGroup(conn Conn, missionID uuid.UUID) {
	m.groups.Leave(GroupName(missionID), conn.ID())
	logging.Debug().
		Str("conn_id", conn.ID()).
		Str("mission_id", missionID.String()).
		Msg("connection left mission group")
}

// SendMessage validates, persists and broadcasts a chat message, then
// publishes the chat-activity event.
func (m *Manager) SendMessage(ctx context.Context, conn Conn, missionID uuid.UUID, text string) (*models.ChatMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", missions.ErrValidation)
	}
	if len([]rune(trimmed)) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message is too long (maximum %d characters)", missions.ErrValidation, MaxMessageLength)
	}

	if !m.limiter(conn.ID()).Allow() {
		return nil, ErrRateLimited
	}

	mission, user, err := m.authorize(ctx, conn, missionID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	message := &models.ChatMessage{
		ID:        uuid.New(),
		MissionID: mission.ID,
		AuthorID:  user.ID,
		Text:      trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.chat.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// Abandon the fan-out if the sender is already gone.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.groups.SendToGroup(GroupName(mission.ID), EventNewMessage, message)
	metrics.ChatMessagesSent.Inc()

	err = m.bus.Publish(ctx, eventbus.ChatMessagePosted{
		MissionID:  mission.ID,
		OccurredAt: message.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("publish chat activity: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("mission_id", mission.ID.String()).
		Str("user_id", user.ID.String()).
		Msg("message sent to mission")
	return message, nil
}

// DeleteMessage deletes a chat message and broadcasts a deletion notice
// carrying the message id only. Allowed for the message author and the
// mission creator.
func (m *Manager) DeleteMessage(ctx context.Context, conn Conn, missionID, messageID uuid.UUID) error {
	mission, user, err := m.authorize(ctx, conn, missionID)
	if err != nil {
		return err
	}

	message, err := m.chat.GetByID(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: message", missions.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if message.MissionID != mission.ID {
		return fmt.Errorf("%w: message", missions.ErrNotFound)
	}

	if !policy.CanDeleteMessage(message, mission, user) {
		return fmt.Errorf("%w: you are not allowed to delete this message", missions.ErrForbidden)
	}

	if err := m.chat.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	m.groups.SendToGroup(GroupName(mission.ID), EventMessageDeleted, map[string]string{
		"message_id": messageID.String(),
	})
	metrics.ChatMessagesDeleted.Inc()

	logging.Ctx(ctx).Info().
		Str("message_id", messageID.String()).
		Str("mission_id", mission.ID.String()).
		Str("user_id", user.ID.String()).
		Msg("message deleted from mission")
	return nil
}

// OnDisconnect evicts the connection's transient state immediately. Group
// membership is dropped by the transport on teardown.
func (m *Manager) OnDisconnect(conn Conn) {
	m.cache.Evict(conn.ID())

	m.limitMu.Lock()
	delete(m.limiters, conn.ID())
	m.limitMu.Unlock()
}

// authorize resolves the connection's user and checks mission access.
func (m *Manager) authorize(ctx context.Context, conn Conn, missionID uuid.UUID) (*models.Mission, *models.User, error) {
	user, err := m.ResolveIdentity(ctx, conn)
	if err != nil {
		return nil, nil, err
	}

	mission, err := m.missions.GetByID(ctx, missionID)
	if err != nil {
		return nil, nil, err
	}

	if !policy.CanAccess(mission, user) {
		return nil, nil, fmt.Errorf("%w: you are not authorized to access this mission", missions.ErrForbidden)
	}
	return mission, user, nil
}

// limiter returns the connection's token bucket, creating it on first use.
func (m *Manager) limiter(connID string) *rate.Limiter {
	m.limitMu.Lock()
	defer m.limitMu.Unlock()
	l, ok := m.limiters[connID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(m.cfg.MessagesPerSecond), m.cfg.MessageBurst)
		m.limiters[connID] = l
	}
	return l
}
