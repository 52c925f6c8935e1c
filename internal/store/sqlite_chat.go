// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/models"
)

type sqliteChat struct {
	db *sql.DB
}

func (s *sqliteChat) Create(ctx context.Context, msg *models.ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, mission_id, author_id, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.MissionID.String(), msg.AuthorID.String(), msg.Text,
		msg.CreatedAt.UTC().Format(timeFormat), msg.UpdatedAt.UTC().Format(timeFormat))
	return mapError(err)
}

func (s *sqliteChat) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mission_id, author_id, text, created_at, updated_at
		FROM chat_messages WHERE id = ?`, id.String())
	return scanChatMessage(row)
}

// ListByMission returns a page of the mission's messages, newest first.
func (s *sqliteChat) ListByMission(ctx context.Context, missionID uuid.UUID, offset, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mission_id, author_id, text, created_at, updated_at
		FROM chat_messages WHERE mission_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		missionID.String(), limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, mapError(rows.Err())
}

func (s *sqliteChat) Update(ctx context.Context, msg *models.ChatMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_messages SET text = ?, updated_at = ? WHERE id = ?`,
		msg.Text, msg.UpdatedAt.UTC().Format(timeFormat), msg.ID.String())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (s *sqliteChat) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = ?`, id.String())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func scanChatMessage(row scannable) (*models.ChatMessage, error) {
	var (
		msg                     models.ChatMessage
		id, missionID, authorID string
		createdAt, updatedAt    string
	)
	if err := row.Scan(&id, &missionID, &authorID, &msg.Text, &createdAt, &updatedAt); err != nil {
		return nil, mapError(err)
	}

	var err error
	if msg.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if msg.MissionID, err = uuid.Parse(missionID); err != nil {
		return nil, err
	}
	if msg.AuthorID, err = uuid.Parse(authorID); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if msg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}
