// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/models"
)

type sqliteUsers struct {
	db *sql.DB
}

func (s *sqliteUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, password_hash, created_at FROM users WHERE id = ?`,
		id.String())
	return scanUser(row)
}

func (s *sqliteUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, password_hash, created_at FROM users WHERE username = ?`,
		username)
	return scanUser(row)
}

func (s *sqliteUsers) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.DisplayName, user.PasswordHash,
		user.CreatedAt.UTC().Format(timeFormat))
	return mapError(err)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u           models.User
		id, created string
	)
	if err := row.Scan(&id, &u.Username, &u.DisplayName, &u.PasswordHash, &created); err != nil {
		return nil, mapError(err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	u.ID = parsedID
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &u, nil
}
