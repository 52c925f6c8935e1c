// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package missions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/eventbus"
	"github.com/missionhq/missionboard/internal/lastvisit"
	"github.com/missionhq/missionboard/internal/models"
	"github.com/missionhq/missionboard/internal/store"
)

type memMissionStore struct {
	missions     map[uuid.UUID]*models.Mission
	order        []uuid.UUID
	lastActivity map[uuid.UUID]time.Time
}

func newMemMissionStore() *memMissionStore {
	return &memMissionStore{
		missions:     make(map[uuid.UUID]*models.Mission),
		lastActivity: make(map[uuid.UUID]time.Time),
	}
}

func (s *memMissionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Mission, error) {
	mission, ok := s.missions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *mission
	return &clone, nil
}

func (s *memMissionStore) Create(_ context.Context, mission *models.Mission) error {
	clone := *mission
	s.missions[mission.ID] = &clone
	s.order = append(s.order, mission.ID)
	return nil
}

func (s *memMissionStore) Update(_ context.Context, mission *models.Mission) error {
	if _, ok := s.missions[mission.ID]; !ok {
		return store.ErrNotFound
	}
	clone := *mission
	s.missions[mission.ID] = &clone
	return nil
}

func (s *memMissionStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.missions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.missions, id)
	return nil
}

func (s *memMissionStore) List(_ context.Context, _ store.MissionQuery) ([]*models.Mission, int, error) {
	out := make([]*models.Mission, 0, len(s.order))
	for _, id := range s.order {
		if mission, ok := s.missions[id]; ok {
			clone := *mission
			out = append(out, &clone)
		}
	}
	return out, len(out), nil
}

func (s *memMissionStore) SetLastChatActivity(_ context.Context, missionID uuid.UUID, at time.Time) error {
	if _, ok := s.missions[missionID]; !ok {
		return store.ErrNotFound
	}
	s.lastActivity[missionID] = at
	return nil
}

type memChatStore struct {
	messages []*models.ChatMessage
}

func (s *memChatStore) Create(_ context.Context, message *models.ChatMessage) error {
	clone := *message
	s.messages = append(s.messages, &clone)
	return nil
}

func (s *memChatStore) GetByID(_ context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	for _, message := range s.messages {
		if message.ID == id {
			clone := *message
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memChatStore) ListByMission(_ context.Context, missionID uuid.UUID, _, _ int) ([]*models.ChatMessage, error) {
	var out []*models.ChatMessage
	for _, message := range s.messages {
		if message.MissionID == missionID {
			clone := *message
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memChatStore) Update(_ context.Context, _ *models.ChatMessage) error { return nil }

func (s *memChatStore) Delete(_ context.Context, id uuid.UUID) error {
	for i, message := range s.messages {
		if message.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

type memVisitStore struct {
	rows map[string]*models.LastVisit
}

func newMemVisitStore() *memVisitStore {
	return &memVisitStore{rows: make(map[string]*models.LastVisit)}
}

func visitKey(missionID, userID uuid.UUID) string {
	return missionID.String() + "/" + userID.String()
}

func (s *memVisitStore) Get(_ context.Context, missionID, userID uuid.UUID) (*models.LastVisit, error) {
	row, ok := s.rows[visitKey(missionID, userID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *memVisitStore) Upsert(_ context.Context, visit *models.LastVisit) error {
	clone := *visit
	s.rows[visitKey(visit.MissionID, visit.UserID)] = &clone
	return nil
}

func (s *memVisitStore) DeleteMany(_ context.Context, missionID uuid.UUID, keep []uuid.UUID) (int, error) {
	kept := make(map[uuid.UUID]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	deleted := 0
	for key, row := range s.rows {
		if row.MissionID == missionID && !kept[row.UserID] {
			delete(s.rows, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memVisitStore) ListByMission(_ context.Context, missionID uuid.UUID) ([]*models.LastVisit, error) {
	var out []*models.LastVisit
	for _, row := range s.rows {
		if row.MissionID == missionID {
			clone := *row
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memVisitStore) ListForMissions(_ context.Context, missionIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	out := make(map[uuid.UUID]time.Time)
	for _, id := range missionIDs {
		if row, ok := s.rows[visitKey(id, userID)]; ok {
			out[id] = row.LastVisitAt
		}
	}
	return out, nil
}

type serviceEnv struct {
	svc      *Service
	missions *memMissionStore
	chat     *memChatStore
	visits   *memVisitStore
	creator  *models.User
	member   *models.User
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	missionStore := newMemMissionStore()
	chatStore := &memChatStore{}
	visitStore := newMemVisitStore()

	bus := eventbus.New()
	visits := lastvisit.NewService(visitStore)
	visits.Register(bus)
	svc := NewService(missionStore, chatStore, visits, bus)
	svc.Register(bus)
	bus.Freeze()

	return &serviceEnv{
		svc:      svc,
		missions: missionStore,
		chat:     chatStore,
		visits:   visitStore,
		creator:  &models.User{ID: uuid.New(), Username: "creator"},
		member:   &models.User{ID: uuid.New(), Username: "member"},
	}
}

func TestCreate_RequiresTitle(t *testing.T) {
	env := newServiceEnv(t)

	for _, title := range []string{"", "   ", "\n\t"} {
		_, err := env.svc.Create(context.Background(), CreateInput{Title: title}, env.creator)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Create(title=%q) = %v, want ErrValidation", title, err)
		}
	}
	if len(env.missions.missions) != 0 {
		t.Error("rejected creates must not persist")
	}
}

func TestCreate_DeduplicatesRelatedUsers(t *testing.T) {
	env := newServiceEnv(t)
	dup := uuid.New()

	mission, err := env.svc.Create(context.Background(), CreateInput{
		Title:          "patrol",
		RelatedUserIDs: []uuid.UUID{dup, env.member.ID, dup},
	}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if len(mission.RelatedUserIDs) != 2 {
		t.Fatalf("related users = %v, want duplicates collapsed to 2", mission.RelatedUserIDs)
	}
	if mission.RelatedUserIDs[0] != dup || mission.RelatedUserIDs[1] != env.member.ID {
		t.Errorf("related users = %v, want first-seen order [%s %s]", mission.RelatedUserIDs, dup, env.member.ID)
	}
}

func TestCreate_SeedsMemberVisits(t *testing.T) {
	env := newServiceEnv(t)
	owner := uuid.New()

	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return created }

	mission, err := env.svc.Create(context.Background(), CreateInput{
		Title:          "patrol",
		OwnerID:        &owner,
		RelatedUserIDs: []uuid.UUID{env.member.ID},
	}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// All three member roles end up with a visit row.
	for _, userID := range []uuid.UUID{env.creator.ID, owner, env.member.ID} {
		if _, ok := env.visits.rows[visitKey(mission.ID, userID)]; !ok {
			t.Errorf("member %s has no visit row after create", userID)
		}
	}
	if len(env.visits.rows) != 3 {
		t.Errorf("visit rows = %d, want 3", len(env.visits.rows))
	}
}

func TestUpdate_CreatorOnly(t *testing.T) {
	env := newServiceEnv(t)
	owner := env.member.ID

	mission, err := env.svc.Create(context.Background(), CreateInput{Title: "patrol", OwnerID: &owner}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Even the owner may not update; only the creator can.
	title := "renamed"
	_, err = env.svc.Update(context.Background(), mission.ID, UpdateInput{Title: &title}, env.member)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Update by owner = %v, want ErrForbidden", err)
	}

	updated, err := env.svc.Update(context.Background(), mission.ID, UpdateInput{Title: &title}, env.creator)
	if err != nil {
		t.Fatalf("Update by creator failed: %v", err)
	}
	if updated.Title != "renamed" {
		t.Errorf("title = %q, want %q", updated.Title, "renamed")
	}
}

func TestUpdate_PatchSemantics(t *testing.T) {
	env := newServiceEnv(t)
	deadline := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	mission, err := env.svc.Create(context.Background(), CreateInput{
		Title:          "patrol",
		Description:    "north ridge",
		Deadline:       &deadline,
		RelatedUserIDs: []uuid.UUID{env.member.ID},
		Tags:           []string{"recon"},
	}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Nil fields keep current values.
	completed := true
	updated, err := env.svc.Update(context.Background(), mission.ID, UpdateInput{Completed: &completed}, env.creator)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "patrol" || updated.Description != "north ridge" {
		t.Errorf("unpatched fields changed: title=%q description=%q", updated.Title, updated.Description)
	}
	if !updated.Completed {
		t.Error("patched completed flag was not applied")
	}
	if len(updated.RelatedUserIDs) != 1 {
		t.Errorf("related users = %v, want untouched", updated.RelatedUserIDs)
	}

	// An explicit empty slice clears the related set.
	updated, err = env.svc.Update(context.Background(), mission.ID, UpdateInput{RelatedUserIDs: []uuid.UUID{}}, env.creator)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(updated.RelatedUserIDs) != 0 {
		t.Errorf("related users = %v, want cleared", updated.RelatedUserIDs)
	}
}

func TestUpdate_RejectsEmptyTitle(t *testing.T) {
	env := newServiceEnv(t)

	mission, err := env.svc.Create(context.Background(), CreateInput{Title: "patrol"}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	empty := "   "
	_, err = env.svc.Update(context.Background(), mission.ID, UpdateInput{Title: &empty}, env.creator)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Update with blank title = %v, want ErrValidation", err)
	}
}

func TestUpdate_ReconcilesVisitRoster(t *testing.T) {
	env := newServiceEnv(t)
	departing := uuid.New()

	mission, err := env.svc.Create(context.Background(), CreateInput{
		Title:          "patrol",
		RelatedUserIDs: []uuid.UUID{departing},
	}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok := env.visits.rows[visitKey(mission.ID, departing)]; !ok {
		t.Fatal("departing member should be seeded on create")
	}

	_, err = env.svc.Update(context.Background(), mission.ID, UpdateInput{
		RelatedUserIDs: []uuid.UUID{env.member.ID},
	}, env.creator)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, ok := env.visits.rows[visitKey(mission.ID, departing)]; ok {
		t.Error("departed member's visit row should be pruned")
	}
	if _, ok := env.visits.rows[visitKey(mission.ID, env.member.ID)]; !ok {
		t.Error("joining member should be seeded")
	}
	if _, ok := env.visits.rows[visitKey(mission.ID, env.creator.ID)]; !ok {
		t.Error("creator's visit row should survive reconciliation")
	}
}

func TestDelete_CreatorOnly(t *testing.T) {
	env := newServiceEnv(t)

	mission, err := env.svc.Create(context.Background(), CreateInput{
		Title:          "patrol",
		RelatedUserIDs: []uuid.UUID{env.member.ID},
	}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := env.svc.Delete(context.Background(), mission.ID, env.member); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Delete by member = %v, want ErrForbidden", err)
	}
	if err := env.svc.Delete(context.Background(), mission.ID, env.creator); err != nil {
		t.Fatalf("Delete by creator failed: %v", err)
	}
	if err := env.svc.Delete(context.Background(), mission.ID, env.creator); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestList_EnrichesLastVisits(t *testing.T) {
	env := newServiceEnv(t)

	visited, err := env.svc.Create(context.Background(), CreateInput{Title: "first"}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	unvisited, err := env.svc.Create(context.Background(), CreateInput{Title: "second"}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Only the first mission has a visit row for this user.
	delete(env.visits.rows, visitKey(unvisited.ID, env.creator.ID))

	page, err := env.svc.List(context.Background(), env.creator, store.MissionQuery{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if page.TotalCount != 2 || len(page.Items) != 2 {
		t.Fatalf("page = %d items / total %d, want 2 / 2", len(page.Items), page.TotalCount)
	}
	if page.LastVisits[visited.ID.String()] == nil {
		t.Error("visited mission should carry a timestamp")
	}
	if got, ok := page.LastVisits[unvisited.ID.String()]; !ok || got != nil {
		t.Errorf("unvisited mission entry = (%v, %v), want explicit nil", got, ok)
	}
}

func TestDetail_MarksVisitAndReturnsChat(t *testing.T) {
	env := newServiceEnv(t)

	mission, err := env.svc.Create(context.Background(), CreateInput{
		Title:          "patrol",
		RelatedUserIDs: []uuid.UUID{env.member.ID},
	}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	message := &models.ChatMessage{ID: uuid.New(), MissionID: mission.ID, AuthorID: env.member.ID, Text: "checking in"}
	if err := env.chat.Create(context.Background(), message); err != nil {
		t.Fatalf("seed message failed: %v", err)
	}

	seeded := env.visits.rows[visitKey(mission.ID, env.member.ID)]
	if seeded == nil {
		t.Fatal("member should have a seeded visit row")
	}
	seededAt := seeded.LastVisitAt

	detail, err := env.svc.Detail(context.Background(), mission.ID, env.member, 0, 50)
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if detail.Mission.ID != mission.ID {
		t.Errorf("detail mission = %s, want %s", detail.Mission.ID, mission.ID)
	}
	if len(detail.Chat) != 1 || detail.Chat[0].ID != message.ID {
		t.Errorf("detail chat = %v, want the seeded message", detail.Chat)
	}

	row := env.visits.rows[visitKey(mission.ID, env.member.ID)]
	if row == nil {
		t.Fatal("visit row disappeared")
	}
	if row.LastVisitAt.Before(seededAt) {
		t.Errorf("visit timestamp %v moved backwards from %v", row.LastVisitAt, seededAt)
	}
	if row.ID != seeded.ID {
		t.Error("marking a visit must update the existing row, not replace it")
	}
}

func TestDetail_OutsiderForbidden(t *testing.T) {
	env := newServiceEnv(t)

	mission, err := env.svc.Create(context.Background(), CreateInput{Title: "patrol"}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	outsider := &models.User{ID: uuid.New(), Username: "outsider"}
	_, err = env.svc.Detail(context.Background(), mission.ID, outsider, 0, 50)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Detail by outsider = %v, want ErrForbidden", err)
	}
}

func TestDetail_MissingVisitRowIsNotFound(t *testing.T) {
	env := newServiceEnv(t)

	// Mission inserted behind the service's back: no reconciliation ran, so
	// the creator has no visit row and the update-only visit mark fails.
	mission := &models.Mission{ID: uuid.New(), Title: "ghost", CreatorID: env.creator.ID}
	if err := env.missions.Create(context.Background(), mission); err != nil {
		t.Fatalf("seed mission failed: %v", err)
	}

	_, err := env.svc.Detail(context.Background(), mission.ID, env.creator, 0, 50)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Detail without visit row = %v, want ErrNotFound", err)
	}
}

func TestChatActivityEventUpdatesMission(t *testing.T) {
	env := newServiceEnv(t)

	mission, err := env.svc.Create(context.Background(), CreateInput{Title: "patrol"}, env.creator)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	at := time.Date(2025, 7, 4, 16, 30, 0, 0, time.UTC)
	err = env.svc.bus.Publish(context.Background(), eventbus.ChatMessagePosted{
		MissionID:  mission.ID,
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := env.missions.lastActivity[mission.ID]; !got.Equal(at) {
		t.Errorf("last chat activity = %v, want %v", got, at)
	}
}
