// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package lastvisit maintains the per-(mission, user) last-visit roster.
//
// The roster is eventually consistent with mission membership: a subscriber
// on the mission-created and mission-updated events prunes rows for departed
// members and seeds rows for new ones, so the roster for a mission always
// converges to exactly the mission's current access set. New members start
// at the reconciliation time rather than "never visited" so unread-indicator
// math has a defined baseline.
package lastvisit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/eventbus"
	"github.com/missionhq/missionboard/internal/logging"
	"github.com/missionhq/missionboard/internal/models"
	"github.com/missionhq/missionboard/internal/store"
)

// ErrNoVisit is returned by MarkVisited when no row exists for the pair.
// Mission creation and update reconcile synchronously before their response
// returns, so a member hitting this indicates a genuine fault, not a race.
var ErrNoVisit = errors.New("lastvisit: no visit recorded for this mission and user")

// Service exposes last-visit reads and writes and the reconciling event
// handlers.
type Service struct {
	visits store.LastVisitStore

	// now is injectable for tests.
	now func() time.Time
}

// NewService creates the last-visit service over the given store.
func NewService(visits store.LastVisitStore) *Service {
	return &Service{visits: visits, now: time.Now}
}

// Register subscribes the reconciling handlers on the bus. Call during
// startup, before the bus is frozen.
func (s *Service) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.KindMissionCreated, s.handleMissionCreated)
	bus.Subscribe(eventbus.KindMissionUpdated, s.handleMissionUpdated)
}

// Get returns the user's last-visit timestamp for the mission, or nil when
// the pair was never reconciled.
func (s *Service) Get(ctx context.Context, missionID, userID uuid.UUID) (*time.Time, error) {
	visit, err := s.visits.Get(ctx, missionID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last visit: %w", err)
	}
	at := visit.LastVisitAt
	return &at, nil
}

// MarkVisited sets the existing row's timestamp to now. It never creates a
// row: visiting a mission you are not reconciled into is an error, since
// reconciliation has always run for members by the time they can visit.
func (s *Service) MarkVisited(ctx context.Context, missionID, userID uuid.UUID) (*models.LastVisit, error) {
	visit, err := s.visits.Get(ctx, missionID, userID)
	if errors.Is(err, store.ErrNotFound) {
		logging.Ctx(ctx).Warn().
			Str("mission_id", missionID.String()).
			Str("user_id", userID.String()).
			Msg("no existing last visit to update")
		return nil, ErrNoVisit
	}
	if err != nil {
		return nil, fmt.Errorf("mark visited: %w", err)
	}

	visit.LastVisitAt = s.now().UTC()
	if err := s.visits.Upsert(ctx, visit); err != nil {
		return nil, fmt.Errorf("mark visited: %w", err)
	}
	return visit, nil
}

// ForMissions returns the user's last-visit timestamps for the given
// missions, keyed by mission id. Missions with no row are absent.
func (s *Service) ForMissions(ctx context.Context, missionIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	return s.visits.ListForMissions(ctx, missionIDs, userID)
}

func (s *Service) handleMissionCreated(ctx context.Context, event eventbus.Event) error {
	evt, ok := event.(eventbus.MissionCreated)
	if !ok {
		return fmt.Errorf("lastvisit: unexpected event %T for kind %s", event, event.Kind())
	}
	return s.reconcile(ctx, evt.MissionID, evt.MemberIDs)
}

func (s *Service) handleMissionUpdated(ctx context.Context, event eventbus.Event) error {
	evt, ok := event.(eventbus.MissionUpdated)
	if !ok {
		return fmt.Errorf("lastvisit: unexpected event %T for kind %s", event, event.Kind())
	}
	return s.reconcile(ctx, evt.MissionID, evt.MemberIDs)
}

// reconcile converges the mission's roster to exactly memberIDs: rows for
// users outside the set are pruned, members without a row are seeded at the
// current time. Replaying the same member set is a no-op.
func (s *Service) reconcile(ctx context.Context, missionID uuid.UUID, memberIDs []uuid.UUID) error {
	pruned, err := s.visits.DeleteMany(ctx, missionID, memberIDs)
	if err != nil {
		return fmt.Errorf("reconcile %s: prune: %w", missionID, err)
	}

	existing, err := s.visits.ListByMission(ctx, missionID)
	if err != nil {
		return fmt.Errorf("reconcile %s: list: %w", missionID, err)
	}
	seen := make(map[uuid.UUID]struct{}, len(existing))
	for _, visit := range existing {
		seen[visit.UserID] = struct{}{}
	}

	now := s.now().UTC()
	seeded := 0
	for _, userID := range memberIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		visit := &models.LastVisit{
			ID:          uuid.New(),
			MissionID:   missionID,
			UserID:      userID,
			LastVisitAt: now,
		}
		if err := s.visits.Upsert(ctx, visit); err != nil {
			return fmt.Errorf("reconcile %s: seed %s: %w", missionID, userID, err)
		}
		seeded++
	}

	if pruned > 0 || seeded > 0 {
		logging.Ctx(ctx).Debug().
			Str("mission_id", missionID.String()).
			Int("pruned", pruned).
			Int("seeded", seeded).
			Msg("last-visit roster reconciled")
	}
	return nil
}
