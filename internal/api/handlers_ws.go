// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package api

import (
	"net/http"

	"github.com/missionhq/missionboard/internal/auth"
	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/websocket"
)

// WebSocket upgrades the request to a chat websocket connection. The
// request has already passed JWT authentication, so the principal comes
// from the context claims.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required", nil)
		return
	}

	logging.Debug().Str("username", sanitizeLogValue(claims.Username)).Msg("websocket connect")
	websocket.ServeWS(h.hub, h.chatManager, w, r, claims.Username)
}
