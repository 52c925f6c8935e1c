// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// MissionCreated is raised after a mission row is committed. MemberIDs is
// the mission's full access set at creation time.
type MissionCreated struct {
	MissionID uuid.UUID
	MemberIDs []uuid.UUID
}

// Kind implements Event.
func (MissionCreated) Kind() Kind { return KindMissionCreated }

// MissionUpdated is raised after a mission update is committed. MemberIDs
// is the access set after the update; subscribers reconcile against it.
type MissionUpdated struct {
	MissionID uuid.UUID
	MemberIDs []uuid.UUID
}

// Kind implements Event.
func (MissionUpdated) Kind() Kind { return KindMissionUpdated }

// ChatMessagePosted is raised after a chat message is persisted. OccurredAt
// is the message creation time and becomes the mission's last-chat-activity
// timestamp.
type ChatMessagePosted struct {
	MissionID  uuid.UUID
	OccurredAt time.Time
}

// Kind implements Event.
func (ChatMessagePosted) Kind() Kind { return KindChatMessagePosted }
