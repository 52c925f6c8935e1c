// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/missions"
	"github.com/missionhq/missionboard/internal/store"
)

type missionCreateRequest struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Description    string     `json:"description" validate:"max=4000"`
	Deadline       *time.Time `json:"deadline"`
	OwnerID        *string    `json:"owner_id" validate:"omitempty,uuid"`
	RelatedUserIDs []string   `json:"related_user_ids" validate:"omitempty,dive,uuid"`
	Tags           []string   `json:"tags" validate:"omitempty,dive,max=64"`
	Files          []string   `json:"files" validate:"omitempty,dive,max=512"`
}

type missionUpdateRequest struct {
	Title          *string    `json:"title" validate:"omitempty,max=200"`
	Description    *string    `json:"description" validate:"omitempty,max=4000"`
	Deadline       *time.Time `json:"deadline"`
	Completed      *bool      `json:"completed"`
	OwnerID        *string    `json:"owner_id" validate:"omitempty,uuid"`
	RelatedUserIDs []string   `json:"related_user_ids" validate:"omitempty,dive,uuid"`
	Tags           []string   `json:"tags" validate:"omitempty,dive,max=64"`
	Files          []string   `json:"files" validate:"omitempty,dive,max=512"`
}

// ListMissions returns the caller's missions with pagination, an optional
// tag filter and the completion filter. Each mission is annotated with the
// caller's last visit time.
func (h *Handler) ListMissions(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	page, err := h.missions.List(r.Context(), user, store.MissionQuery{
		Offset:    getIntParam(r, "offset", 0),
		Limit:     getIntParam(r, "limit", 10),
		Tag:       r.URL.Query().Get("tag"),
		Completed: getBoolParam(r, "completed", false),
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondData(w, http.StatusOK, page)
}

// CreateMission creates a mission with the caller as creator.
func (h *Handler) CreateMission(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req missionCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	input := missions.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Tags:        req.Tags,
		Files:       req.Files,
	}
	var ok bool
	if input.OwnerID, ok = parseOptionalID(w, req.OwnerID); !ok {
		return
	}
	if input.RelatedUserIDs, ok = parseIDList(w, req.RelatedUserIDs); !ok {
		return
	}

	mission, err := h.missions.Create(r.Context(), input, user)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondData(w, http.StatusCreated, mission)
}

// GetMission returns a mission with its most recent chat page and records
// the caller's visit.
func (h *Handler) GetMission(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	missionID, ok := missionIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.missions.Detail(r.Context(), missionID, user,
		getIntParam(r, "chat_offset", 0), getIntParam(r, "chat_limit", 50))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondData(w, http.StatusOK, detail)
}

// UpdateMission applies a partial update. Only the mission's creator may
// update it.
func (h *Handler) UpdateMission(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	missionID, ok := missionIDParam(w, r)
	if !ok {
		return
	}

	var req missionUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, &req) {
		return
	}

	input := missions.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Completed:   req.Completed,
		Tags:        req.Tags,
		Files:       req.Files,
	}
	if input.OwnerID, ok = parseOptionalID(w, req.OwnerID); !ok {
		return
	}
	if input.RelatedUserIDs, ok = parseIDList(w, req.RelatedUserIDs); !ok {
		return
	}

	mission, err := h.missions.Update(r.Context(), missionID, input, user)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondData(w, http.StatusOK, mission)
}

// DeleteMission removes a mission. Only the mission's creator may delete it.
func (h *Handler) DeleteMission(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	missionID, ok := missionIDParam(w, r)
	if !ok {
		return
	}

	if err := h.missions.Delete(r.Context(), missionID, user); err != nil {
		respondDomainError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]string{"deleted": missionID.String()})
}

func missionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "missionID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidationError, "invalid mission id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalID(w http.ResponseWriter, raw *string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidationError, "invalid owner id", nil)
		return nil, false
	}
	return &id, true
}

func parseIDList(w http.ResponseWriter, raw []string) ([]uuid.UUID, bool) {
	if raw == nil {
		return nil, true
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeValidationError, "invalid related user id", nil)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
