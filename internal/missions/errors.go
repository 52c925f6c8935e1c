// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package missions

import "errors"

// Error taxonomy shared by the mission and chat services. Forbidden and
// not-found stay distinct here even where an outer surface reports them
// uniformly.
var (
	// ErrValidation indicates bad input shape (blank title, oversized
	// message). Reported synchronously, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden indicates the actor is not authorized for the operation
	// (not a mission member, not the message author or mission creator).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the mission or message does not exist.
	ErrNotFound = errors.New("not found")
)
