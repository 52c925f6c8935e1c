// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/models"
)

type sqliteLastVisits struct {
	db *sql.DB
}

func (s *sqliteLastVisits) Get(ctx context.Context, missionID, userID uuid.UUID) (*models.LastVisit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mission_id, user_id, last_visit_at
		FROM last_visits WHERE mission_id = ? AND user_id = ?`,
		missionID.String(), userID.String())
	return scanLastVisit(row)
}

func (s *sqliteLastVisits) Upsert(ctx context.Context, visit *models.LastVisit) error {
	if visit.ID == uuid.Nil {
		visit.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_visits (id, mission_id, user_id, last_visit_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(mission_id, user_id) DO UPDATE SET last_visit_at = excluded.last_visit_at`,
		visit.ID.String(), visit.MissionID.String(), visit.UserID.String(),
		visit.LastVisitAt.UTC().Format(timeFormat))
	return mapError(err)
}

// DeleteMany removes rows for the mission whose user is not in keep. With an
// empty keep set, every row for the mission is removed.
func (s *sqliteLastVisits) DeleteMany(ctx context.Context, missionID uuid.UUID, keep []uuid.UUID) (int, error) {
	query := `DELETE FROM last_visits WHERE mission_id = ?`
	args := []interface{}{missionID.String()}
	if len(keep) > 0 {
		placeholders := strings.Repeat("?, ", len(keep))
		query += ` AND user_id NOT IN (` + placeholders[:len(placeholders)-2] + `)`
		for _, id := range keep {
			args = append(args, id.String())
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteLastVisits) ListByMission(ctx context.Context, missionID uuid.UUID) ([]*models.LastVisit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mission_id, user_id, last_visit_at
		FROM last_visits WHERE mission_id = ?`, missionID.String())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var visits []*models.LastVisit
	for rows.Next() {
		v, err := scanLastVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, mapError(rows.Err())
}

func (s *sqliteLastVisits) ListForMissions(ctx context.Context, missionIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	out := make(map[uuid.UUID]time.Time, len(missionIDs))
	if len(missionIDs) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?, ", len(missionIDs))
	args := make([]interface{}, 0, len(missionIDs)+1)
	for _, id := range missionIDs {
		args = append(args, id.String())
	}
	args = append(args, userID.String())

	rows, err := s.db.QueryContext(ctx, `
		SELECT mission_id, last_visit_at FROM last_visits
		WHERE mission_id IN (`+placeholders[:len(placeholders)-2]+`) AND user_id = ?`, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var missionID, visitedAt string
		if err := rows.Scan(&missionID, &visitedAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(missionID)
		if err != nil {
			return nil, err
		}
		at, err := parseTime(visitedAt)
		if err != nil {
			return nil, err
		}
		out[id] = at
	}
	return out, mapError(rows.Err())
}

func scanLastVisit(row scannable) (*models.LastVisit, error) {
	var (
		v                     models.LastVisit
		id, missionID, userID string
		visitedAt             string
	)
	if err := row.Scan(&id, &missionID, &userID, &visitedAt); err != nil {
		return nil, mapError(err)
	}

	var err error
	if v.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if v.MissionID, err = uuid.Parse(missionID); err != nil {
		return nil, err
	}
	if v.UserID, err = uuid.Parse(userID); err != nil {
		return nil, err
	}
	if v.LastVisitAt, err = parseTime(visitedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

var _ LastVisitStore = (*sqliteLastVisits)(nil)
