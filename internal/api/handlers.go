// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/auth"
	"github.com/missionhq/missionboard/internal/chat"
	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/missions"
	"github.com/missionhq/missionboard/internal/models"
	"github.com/missionhq/missionboard/internal/store"
	"github.com/missionhq/missionboard/internal/websocket"
)

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	users       store.UserStore
	missions    *missions.Service
	chatManager *chat.Manager
	hub         *websocket.Hub
	jwtManager  *auth.JWTManager
}

// NewHandler creates the HTTP handler set.
func NewHandler(users store.UserStore, missionSvc *missions.Service, chatManager *chat.Manager,
	hub *websocket.Hub, jwtManager *auth.JWTManager) *Handler {
	return &Handler{
		users:       users,
		missions:    missionSvc,
		chatManager: chatManager,
		hub:         hub,
		jwtManager:  jwtManager,
	}
}

// Health reports liveness plus a couple of cheap runtime facts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"connected_clients": h.hub.ClientCount(),
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type registerRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}

// Login verifies credentials and issues a JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		// Same response as a wrong password so usernames cannot be probed.
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid username or password", nil)
		return
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		logging.Warn().Str("username", sanitizeLogValue(req.Username)).Msg("failed login attempt")
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid username or password", nil)
		return
	}

	token, err := h.jwtManager.GenerateToken(user.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to issue token", err)
		return
	}

	respondData(w, http.StatusOK, tokenResponse{
		Token:    token,
		Username: user.Username,
		UserID:   user.ID.String(),
	})
}

// Register creates a new user account and issues a JWT.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
		PasswordHash: hash,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondError(w, http.StatusConflict, CodeConflict, "username is already taken", nil)
			return
		}
		respondDomainError(w, err)
		return
	}

	token, err := h.jwtManager.GenerateToken(user.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternalError, "failed to issue token", err)
		return
	}

	logging.Info().Str("username", sanitizeLogValue(user.Username)).Msg("user registered")
	respondData(w, http.StatusCreated, tokenResponse{
		Token:    token,
		Username: user.Username,
		UserID:   user.ID.String(),
	})
}

// currentUser resolves the authenticated user from the request context.
// Returns nil after writing the error response when resolution fails.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) *models.User {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required", nil)
		return nil
	}

	user, err := h.users.GetByUsername(r.Context(), claims.Username)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "account no longer exists", nil)
		return nil
	}
	if err != nil {
		respondDomainError(w, err)
		return nil
	}
	return user
}
