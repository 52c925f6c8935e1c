// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Pure-Go SQLite driver, registers as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/missionhq/missionboard/internal/logging"
)

// timeFormat is the canonical timestamp encoding in the database. All
// timestamps are stored in UTC.
const timeFormat = time.RFC3339Nano

// SQLite is the embedded relational store. It owns the single *sql.DB and
// exposes the per-entity ports through typed accessors.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path and
// bootstraps the schema. Use ":memory:" for throwaway test databases.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc/sqlite serializes writes internally; a single writer
	// connection avoids SQLITE_BUSY churn under concurrent mutations.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Users returns the user port.
func (s *SQLite) Users() UserStore { return &sqliteUsers{db: s.db} }

// Missions returns the mission port.
func (s *SQLite) Missions() MissionStore { return &sqliteMissions{db: s.db} }

// Chat returns the chat-message port.
func (s *SQLite) Chat() ChatStore { return &sqliteChat{db: s.db} }

// LastVisits returns the last-visit port.
func (s *SQLite) LastVisits() LastVisitStore { return &sqliteLastVisits{db: s.db} }

// migrate bootstraps the schema. Statements are idempotent; there is no
// versioned migration history for an embedded single-file database.
func (s *SQLite) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			display_name  TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS missions (
			id                   TEXT PRIMARY KEY,
			title                TEXT NOT NULL,
			description          TEXT NOT NULL DEFAULT '',
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL,
			deadline             TEXT,
			completed            INTEGER NOT NULL DEFAULT 0,
			owner_id             TEXT,
			creator_id           TEXT NOT NULL,
			related_user_ids     TEXT NOT NULL DEFAULT '[]',
			tags                 TEXT NOT NULL DEFAULT '[]',
			files                TEXT NOT NULL DEFAULT '[]',
			last_chat_message_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_missions_creator ON missions(creator_id)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			mission_id TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			author_id  TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_mission_created ON chat_messages(mission_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS last_visits (
			id            TEXT PRIMARY KEY,
			mission_id    TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			user_id       TEXT NOT NULL,
			last_visit_at TEXT NOT NULL,
			UNIQUE(mission_id, user_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// mapError translates driver errors into the store taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	// modernc/sqlite surfaces constraint violations as textual errors with
	// the SQLITE_CONSTRAINT family in the message.
	if strings.Contains(err.Error(), "constraint") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// nullTime encodes an optional timestamp.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

// parseTime decodes a required timestamp column.
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// parseNullTime decodes an optional timestamp column.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeFormat, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
