// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/missionhq/missionboard/internal/models"
)

type sqliteMissions struct {
	db *sql.DB
}

const missionColumns = `id, title, description, created_at, updated_at, deadline,
	completed, owner_id, creator_id, related_user_ids, tags, files, last_chat_message_at`

func (s *sqliteMissions) GetByID(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id = ?`, id.String())
	return scanMission(row)
}

func (s *sqliteMissions) Create(ctx context.Context, m *models.Mission) error {
	related, tags, files, err := encodeMissionLists(m)
	if err != nil {
		return err
	}

	var ownerID sql.NullString
	if m.OwnerID != nil && *m.OwnerID != uuid.Nil {
		ownerID = sql.NullString{String: m.OwnerID.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO missions (`+missionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.Title, m.Description,
		m.CreatedAt.UTC().Format(timeFormat), m.UpdatedAt.UTC().Format(timeFormat),
		nullTime(m.Deadline), boolToInt(m.Completed), ownerID, m.CreatorID.String(),
		related, tags, files, nullTime(m.LastChatMessageAt))
	return mapError(err)
}

func (s *sqliteMissions) Update(ctx context.Context, m *models.Mission) error {
	related, tags, files, err := encodeMissionLists(m)
	if err != nil {
		return err
	}

	var ownerID sql.NullString
	if m.OwnerID != nil && *m.OwnerID != uuid.Nil {
		ownerID = sql.NullString{String: m.OwnerID.String(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE missions
		SET title = ?, description = ?, updated_at = ?, deadline = ?, completed = ?,
		    owner_id = ?, related_user_ids = ?, tags = ?, files = ?, last_chat_message_at = ?
		WHERE id = ?`,
		m.Title, m.Description, m.UpdatedAt.UTC().Format(timeFormat),
		nullTime(m.Deadline), boolToInt(m.Completed), ownerID,
		related, tags, files, nullTime(m.LastChatMessageAt), m.ID.String())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

func (s *sqliteMissions) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM missions WHERE id = ?`, id.String())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// List implements the listing contract: access filter over owner, creator
// and the related-user JSON array, completed and optional tag filters,
// deadline-nulls-last ordering with creation-time tiebreak, and a total
// count computed independently of the page.
func (s *sqliteMissions) List(ctx context.Context, q MissionQuery) ([]*models.Mission, int, error) {
	where := `
		(owner_id = :uid OR creator_id = :uid
		 OR EXISTS (SELECT 1 FROM json_each(missions.related_user_ids) WHERE json_each.value = :uid))
		AND completed = :completed`
	args := []interface{}{
		sql.Named("uid", q.UserID.String()),
		sql.Named("completed", boolToInt(q.Completed)),
	}
	if q.Tag != "" {
		where += ` AND EXISTS (SELECT 1 FROM json_each(missions.tags) WHERE json_each.value = :tag)`
		args = append(args, sql.Named("tag", q.Tag))
	}

	var total int
	countArgs := append([]interface{}{}, args...)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM missions WHERE `+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, sql.Named("limit", limit), sql.Named("offset", q.Offset))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+missionColumns+` FROM missions
		WHERE `+where+`
		ORDER BY (deadline IS NULL) ASC, deadline ASC, created_at DESC
		LIMIT :limit OFFSET :offset`, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var missions []*models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, 0, err
		}
		missions = append(missions, m)
	}
	return missions, total, mapError(rows.Err())
}

func (s *sqliteMissions) SetLastChatActivity(ctx context.Context, missionID uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE missions SET last_chat_message_at = ? WHERE id = ?`,
		at.UTC().Format(timeFormat), missionID.String())
	if err != nil {
		return mapError(err)
	}
	return requireAffected(res)
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMission(row scannable) (*models.Mission, error) {
	var (
		m                    models.Mission
		id, creatorID        string
		createdAt, updatedAt string
		deadline, lastChat   sql.NullString
		ownerID              sql.NullString
		completed            int
		related, tags, files string
	)
	err := row.Scan(&id, &m.Title, &m.Description, &createdAt, &updatedAt, &deadline,
		&completed, &ownerID, &creatorID, &related, &tags, &files, &lastChat)
	if err != nil {
		return nil, mapError(err)
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if m.CreatorID, err = uuid.Parse(creatorID); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		owner, err := uuid.Parse(ownerID.String)
		if err != nil {
			return nil, err
		}
		m.OwnerID = &owner
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if m.Deadline, err = parseNullTime(deadline); err != nil {
		return nil, err
	}
	if m.LastChatMessageAt, err = parseNullTime(lastChat); err != nil {
		return nil, err
	}
	m.Completed = completed != 0

	var relatedIDs []string
	if err := json.Unmarshal([]byte(related), &relatedIDs); err != nil {
		return nil, fmt.Errorf("decode related_user_ids: %w", err)
	}
	m.RelatedUserIDs = make([]uuid.UUID, 0, len(relatedIDs))
	for _, rid := range relatedIDs {
		parsed, err := uuid.Parse(rid)
		if err != nil {
			return nil, fmt.Errorf("decode related_user_ids: %w", err)
		}
		m.RelatedUserIDs = append(m.RelatedUserIDs, parsed)
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &m.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	return &m, nil
}

func encodeMissionLists(m *models.Mission) (related, tags, files string, err error) {
	relatedIDs := make([]string, 0, len(m.RelatedUserIDs))
	for _, id := range m.RelatedUserIDs {
		relatedIDs = append(relatedIDs, id.String())
	}
	relatedJSON, err := json.Marshal(relatedIDs)
	if err != nil {
		return "", "", "", err
	}
	tagList := m.Tags
	if tagList == nil {
		tagList = []string{}
	}
	tagsJSON, err := json.Marshal(tagList)
	if err != nil {
		return "", "", "", err
	}
	fileList := m.Files
	if fileList == nil {
		fileList = []string{}
	}
	filesJSON, err := json.Marshal(fileList)
	if err != nil {
		return "", "", "", err
	}
	return string(relatedJSON), string(tagsJSON), string(filesJSON), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireAffected maps a zero-row UPDATE/DELETE to ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
