// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a single message in a mission's discussion channel.
// Messages are owned by their mission and deleted with it.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	MissionID uuid.UUID `json:"mission_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
