// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package policy holds the mission access-control rule. The rule is a pure
// function over in-memory entities: no I/O, no side effects. Every
// mission-scoped operation (detail view, last-visit update, chat group join,
// message deletion) consults it.
package policy

import "github.com/missionhq/missionboard/internal/models"

// CanAccess reports whether user may view or act on mission: true iff the
// user is the mission's owner, its creator, or in the related-users set.
func CanAccess(mission *models.Mission, user *models.User) bool {
	if mission == nil || user == nil {
		return false
	}
	if mission.OwnerID != nil && *mission.OwnerID == user.ID {
		return true
	}
	if mission.CreatorID == user.ID {
		return true
	}
	for _, id := range mission.RelatedUserIDs {
		if id == user.ID {
			return true
		}
	}
	return false
}

// CanDeleteMessage reports whether user may delete message within mission:
// the message author and the mission creator may, the designated owner may
// not (the owner is an assignee, not a moderator).
func CanDeleteMessage(message *models.ChatMessage, mission *models.Mission, user *models.User) bool {
	if message == nil || mission == nil || user == nil {
		return false
	}
	return message.AuthorID == user.ID || mission.CreatorID == user.ID
}
