// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package models

import (
	"time"

	"github.com/google/uuid"
)

// LastVisit records when a user last viewed a mission. Exactly one row
// exists per (mission, user) pair currently in the mission's access set;
// the reconciler prunes rows for departed members and seeds rows for new
// ones.
type LastVisit struct {
	ID          uuid.UUID `json:"id"`
	MissionID   uuid.UUID `json:"mission_id"`
	UserID      uuid.UUID `json:"user_id"`
	LastVisitAt time.Time `json:"last_visit_at"`
}
