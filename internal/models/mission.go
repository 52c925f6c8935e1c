// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

// Package models defines the core entities shared across Missionboard:
// missions, chat messages, last-visit rows, users and the API envelope.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Mission is a trackable work item with an access-controlled membership set
// and an attached chat channel.
type Mission struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Completed   bool       `json:"completed"`

	// OwnerID is the single designated assignee, if any.
	OwnerID *uuid.UUID `json:"owner_id,omitempty"`

	// CreatorID is always part of the mission's access set.
	CreatorID uuid.UUID `json:"creator_id"`

	// RelatedUserIDs is the membership roster beyond creator and owner.
	// Maintained without duplicates via MemberSet.
	RelatedUserIDs []uuid.UUID `json:"related_user_ids"`

	Tags  []string `json:"tags"`
	Files []string `json:"files"`

	// LastChatMessageAt tracks the most recent chat activity on the mission.
	LastChatMessageAt *time.Time `json:"last_chat_message_at,omitempty"`
}

// Members returns the mission's full access set: creator, owner (when set)
// and every related user, deduplicated. The creator is always present.
func (m *Mission) Members() *MemberSet {
	set := NewMemberSet()
	set.Add(m.CreatorID)
	if m.OwnerID != nil && *m.OwnerID != uuid.Nil {
		set.Add(*m.OwnerID)
	}
	for _, id := range m.RelatedUserIDs {
		set.Add(id)
	}
	return set
}

// MemberSet is an insertion-ordered set of user IDs. Membership mutations go
// through Add/Remove so the ID list and the index never diverge, and the
// list is never iterated while being mutated.
type MemberSet struct {
	ids   []uuid.UUID
	index map[uuid.UUID]struct{}
}

// NewMemberSet returns an empty member set.
func NewMemberSet(ids ...uuid.UUID) *MemberSet {
	s := &MemberSet{index: make(map[uuid.UUID]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id into the set. Duplicate adds are no-ops.
func (s *MemberSet) Add(id uuid.UUID) {
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// Remove deletes id from the set. Removing an absent id is a no-op.
func (s *MemberSet) Remove(id uuid.UUID) {
	if _, ok := s.index[id]; !ok {
		return
	}
	delete(s.index, id)
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

// Contains reports whether id is in the set.
func (s *MemberSet) Contains(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of members.
func (s *MemberSet) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the member IDs in insertion order.
func (s *MemberSet) IDs() []uuid.UUID {
	out := make([]uuid.UUID, len(s.ids))
	copy(out, s.ids)
	return out
}
