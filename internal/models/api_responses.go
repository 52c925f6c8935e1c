// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package models

import "time"

// APIResponse is the envelope for all HTTP API responses.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError represents an error response with structured error details.
//
// Codes: VALIDATION_ERROR, UNAUTHORIZED, FORBIDDEN, NOT_FOUND, INTERNAL_ERROR.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MissionPage is the payload of the mission listing endpoint. TotalCount
// reflects the filtered set before pagination, not the page length.
type MissionPage struct {
	Items      []*Mission            `json:"items"`
	TotalCount int                   `json:"total_count"`
	LastVisits map[string]*time.Time `json:"last_visits,omitempty"`
}

// MissionDetail is the payload of the mission detail endpoint: the mission
// plus a page of its chat history, newest first.
type MissionDetail struct {
	Mission *Mission       `json:"mission"`
	Chat    []*ChatMessage `json:"chat"`
}
