// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package api

import (
	"errors"
	"net/http"

	"github.com/missionhq/missionboard/internal/missions"
	"github.com/missionhq/missionboard/internal/store"
)

// Error codes returned in the API error envelope.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"
)

// respondDomainError translates a domain error into the matching HTTP
// status and error envelope. Unrecognized errors become an opaque 500.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, missions.ErrValidation):
		respondError(w, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
	case errors.Is(err, missions.ErrForbidden):
		respondError(w, http.StatusForbidden, CodeForbidden, "you do not have access to this mission", nil)
	case errors.Is(err, missions.ErrNotFound), errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, "resource not found", nil)
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, CodeConflict, "resource already exists", nil)
	default:
		respondError(w, http.StatusInternalServerError, CodeInternalError, "an unexpected error occurred", err)
	}
}
