// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package store defines the persistence ports consumed by the services and
// their embedded SQLite implementation. Services depend on the interfaces
// only; tests substitute in-memory fakes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned on unique-constraint violations (duplicate
// username, duplicate (mission, user) last-visit pair).
var ErrConflict = errors.New("store: conflict")

// UserStore looks up and creates user accounts.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// MissionQuery is the filter/pagination contract of the mission listing.
type MissionQuery struct {
	// UserID selects missions where the user is owner, creator or member.
	UserID uuid.UUID

	Offset int
	Limit  int

	// Tag, when non-empty, restricts to missions carrying the tag.
	Tag string

	// Completed filters on the completion flag.
	Completed bool
}

// MissionStore persists missions.
type MissionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	Create(ctx context.Context, mission *models.Mission) error
	Update(ctx context.Context, mission *models.Mission) error
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns the page selected by q and, independently computed, the
	// total count of the filtered set before pagination. Ordering: missions
	// with a deadline before those without, deadline ascending, then
	// creation time descending.
	List(ctx context.Context, q MissionQuery) ([]*models.Mission, int, error)

	// SetLastChatActivity records the most recent chat activity timestamp.
	SetLastChatActivity(ctx context.Context, missionID uuid.UUID, at time.Time) error
}

// ChatStore persists chat messages.
type ChatStore interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	ListByMission(ctx context.Context, missionID uuid.UUID, offset, limit int) ([]*models.ChatMessage, error)
	Update(ctx context.Context, message *models.ChatMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LastVisitStore persists the per-(mission, user) last-visit roster.
type LastVisitStore interface {
	Get(ctx context.Context, missionID, userID uuid.UUID) (*models.LastVisit, error)

	// Upsert inserts the row or, if the (mission, user) pair exists,
	// replaces its timestamp.
	Upsert(ctx context.Context, visit *models.LastVisit) error

	// DeleteMany removes every row for missionID whose user is not in keep.
	// Returns the number of rows removed.
	DeleteMany(ctx context.Context, missionID uuid.UUID, keep []uuid.UUID) (int, error)

	ListByMission(ctx context.Context, missionID uuid.UUID) ([]*models.LastVisit, error)

	// ListForMissions returns the user's last-visit timestamps for the given
	// missions. Missions with no row are absent from the map.
	ListForMissions(ctx context.Context, missionIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]time.Time, error)
}
