// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package missions implements the mission service: CRUD over the mission
// store with domain-event emission. Events are published only after the
// triggering mutation is durably persisted, and before the calling request
// responds, so subscribers never observe uncommitted state and callers can
// rely on reconciliation having run.
package missions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/eventbus"
	"github.com/missionhq/missionboard/internal/lastvisit"
	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/models"
	"github.com/missionhq/missionboard/internal/policy"
	"github.com/missionhq/missionboard/internal/store"
)

// Service coordinates mission mutations, listing and detail reads.
type Service struct {
	missions store.MissionStore
	chat     store.ChatStore
	visits   *lastvisit.Service
	bus      *eventbus.Bus

	now func() time.Time
}

// NewService wires the mission service.
func NewService(missions store.MissionStore, chat store.ChatStore, visits *lastvisit.Service, bus *eventbus.Bus) *Service {
	return &Service{
		missions: missions,
		chat:     chat,
		visits:   visits,
		bus:      bus,
		now:      time.Now,
	}
}

// Register subscribes the chat-activity handler on the bus. Call during
// startup, before the bus is frozen.
func (s *Service) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.KindChatMessagePosted, s.handleChatActivity)
}

// CreateInput carries the fields of a new mission.
type CreateInput struct {
	Title          string
	Description    string
	Deadline       *time.Time
	OwnerID        *uuid.UUID
	RelatedUserIDs []uuid.UUID
	Tags           []string
	Files          []string
}

// UpdateInput is a patch: nil fields keep the mission's current values.
type UpdateInput struct {
	Title          *string
	Description    *string
	Deadline       *time.Time
	Completed      *bool
	OwnerID        *uuid.UUID
	RelatedUserIDs []uuid.UUID
	Tags           []string
	Files          []string
}

// GetByID loads a mission.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	mission, err := s.missions.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return mission, nil
}

// Create validates and persists a new mission, then publishes the
// mission-created event carrying the full member set.
func (s *Service) Create(ctx context.Context, input CreateInput, creator *models.User) (*models.Mission, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: mission title cannot be empty", ErrValidation)
	}

	now := s.now().UTC()
	mission := &models.Mission{
		ID:             uuid.New(),
		Title:          input.Title,
		Description:    input.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
		Deadline:       input.Deadline,
		OwnerID:        input.OwnerID,
		CreatorID:      creator.ID,
		RelatedUserIDs: models.NewMemberSet(input.RelatedUserIDs...).IDs(),
		Tags:           input.Tags,
		Files:          input.Files,
	}

	if err := s.missions.Create(ctx, mission); err != nil {
		return nil, fmt.Errorf("create mission: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("mission_id", mission.ID.String()).
		Str("creator_id", creator.ID.String()).
		Msg("mission created")

	err := s.bus.Publish(ctx, eventbus.MissionCreated{
		MissionID: mission.ID,
		MemberIDs: mission.Members().IDs(),
	})
	if err != nil {
		return nil, fmt.Errorf("publish mission created: %w", err)
	}
	return mission, nil
}

// Update applies a patch to a mission. Only the creator may update; nil
// patch fields keep the current values. Publishes the mission-updated event
// with the recomputed member set.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput, actor *models.User) (*models.Mission, error) {
	mission, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mission.CreatorID != actor.ID {
		return nil, ErrForbidden
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, fmt.Errorf("%w: mission title cannot be empty", ErrValidation)
		}
		mission.Title = *input.Title
	}
	if input.Description != nil {
		mission.Description = *input.Description
	}
	if input.Deadline != nil {
		mission.Deadline = input.Deadline
	}
	if input.Completed != nil {
		mission.Completed = *input.Completed
	}
	if input.OwnerID != nil {
		mission.OwnerID = input.OwnerID
	}
	if input.RelatedUserIDs != nil {
		mission.RelatedUserIDs = models.NewMemberSet(input.RelatedUserIDs...).IDs()
	}
	if input.Tags != nil {
		mission.Tags = input.Tags
	}
	if input.Files != nil {
		mission.Files = input.Files
	}
	mission.UpdatedAt = s.now().UTC()

	if err := s.missions.Update(ctx, mission); err != nil {
		return nil, fmt.Errorf("update mission: %w", err)
	}

	err = s.bus.Publish(ctx, eventbus.MissionUpdated{
		MissionID: mission.ID,
		MemberIDs: mission.Members().IDs(),
	})
	if err != nil {
		return nil, fmt.Errorf("publish mission updated: %w", err)
	}
	return mission, nil
}

// Delete removes a mission. Only the creator may delete; chat messages and
// last-visit rows cascade in the store.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor *models.User) error {
	mission, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if mission.CreatorID != actor.ID {
		return ErrForbidden
	}
	if err := s.missions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete mission: %w", err)
	}
	logging.Ctx(ctx).Info().Str("mission_id", id.String()).Msg("mission deleted")
	return nil
}

// List returns the user's missions per the listing contract plus the user's
// last-visit timestamps for the page.
func (s *Service) List(ctx context.Context, user *models.User, q store.MissionQuery) (*models.MissionPage, error) {
	q.UserID = user.ID
	page, total, err := s.missions.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(page))
	for _, m := range page {
		ids = append(ids, m.ID)
	}
	visited, err := s.visits.ForMissions(ctx, ids, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list missions: last visits: %w", err)
	}

	lastVisits := make(map[string]*time.Time, len(page))
	for _, m := range page {
		if at, ok := visited[m.ID]; ok {
			t := at
			lastVisits[m.ID.String()] = &t
		} else {
			lastVisits[m.ID.String()] = nil
		}
	}

	return &models.MissionPage{Items: page, TotalCount: total, LastVisits: lastVisits}, nil
}

// Detail returns a mission with a page of its chat history and marks the
// user's visit. Access is required; the visit row exists for any member
// because reconciliation runs synchronously with mission mutations.
func (s *Service) Detail(ctx context.Context, id uuid.UUID, user *models.User, offset, limit int) (*models.MissionDetail, error) {
	mission, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanAccess(mission, user) {
		return nil, ErrForbidden
	}

	if _, err := s.visits.MarkVisited(ctx, id, user.ID); err != nil {
		if errors.Is(err, lastvisit.ErrNoVisit) {
			return nil, fmt.Errorf("%w: last visit", ErrNotFound)
		}
		return nil, err
	}

	chat, err := s.chat.ListByMission(ctx, id, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("mission detail: chat page: %w", err)
	}
	return &models.MissionDetail{Mission: mission, Chat: chat}, nil
}

// handleChatActivity records the mission's most recent chat activity.
func (s *Service) handleChatActivity(ctx context.Context, event eventbus.Event) error {
	evt, ok := event.(eventbus.ChatMessagePosted)
	if !ok {
		return fmt.Errorf("missions: unexpected event %T for kind %s", event, event.Kind())
	}
	if err := s.missions.SetLastChatActivity(ctx, evt.MissionID, evt.OccurredAt); err != nil {
		return fmt.Errorf("set last chat activity: %w", err)
	}
	return nil
}
