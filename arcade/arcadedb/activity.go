// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tempora.dev/tempora/arcade/activity"
	"tempora.dev/tempora/arcade/rulesets"
)

// activityDB implements activity.DB.
type activityDB struct {
	db *arcadeDB
}

func (db *activityDB) Events() activity.Events           { return &activityEventsTable{db.db} }
func (db *activityDB) RankHistory() activity.RankHistory { return &rankHistoryTable{db.db} }

type activityEventsTable struct {
	db *arcadeDB
}

func (t *activityEventsTable) Insert(ctx context.Context, event *activity.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO activity_events (user_id, type, details, created_at)
		VALUES (?, ?, ?, ?)`,
		event.UserID, string(event.Type), string(event.Details), event.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	event.ID = id
	return nil
}

func (t *activityEventsTable) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*activity.Event, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT id, user_id, type, details, created_at FROM activity_events
		WHERE user_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`),
		userID, limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*activity.Event
	for rows.Next() {
		var (
			event     activity.Event
			eventType string
			details   string
		)
		if err := rows.Scan(&event.ID, &event.UserID, &eventType, &details,
			&event.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		event.Type = activity.EventType(eventType)
		if details != "" {
			event.Details = json.RawMessage(details)
		}
		list = append(list, &event)
	}
	return list, Error.Wrap(rows.Err())
}

type rankHistoryTable struct {
	db *arcadeDB
}

func (t *rankHistoryTable) Record(ctx context.Context, userID int64, ruleset rulesets.ID, date time.Time, rank int64) error {
	day := date.UTC().Truncate(24 * time.Hour)
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO rank_history (user_id, ruleset, date, rank) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, ruleset, date) DO UPDATE SET rank = EXCLUDED.rank`),
		userID, int(ruleset), day, rank)
	return Error.Wrap(err)
}

func (t *rankHistoryTable) Recent(ctx context.Context, userID int64, ruleset rulesets.ID, days int) ([]int64, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT rank FROM (
			SELECT date, rank FROM rank_history
			WHERE user_id = ? AND ruleset = ?
			ORDER BY date DESC LIMIT ?
		) newest ORDER BY date`),
		userID, int(ruleset), days)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var ranks []int64
	for rows.Next() {
		var rank int64
		if err := rows.Scan(&rank); err != nil {
			return nil, Error.Wrap(err)
		}
		ranks = append(ranks, rank)
	}
	return ranks, Error.Wrap(rows.Err())
}

func (t *rankHistoryTable) BestRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error) {
	var rank int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT rank FROM rank_tops WHERE user_id = ? AND ruleset = ?`),
		userID, int(ruleset)).Scan(&rank)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rank, Error.Wrap(err)
}

func (t *rankHistoryTable) UpdateBestRank(ctx context.Context, userID int64, ruleset rulesets.ID, rank int64) error {
	if rank <= 0 {
		return nil
	}
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO rank_tops (user_id, ruleset, rank) VALUES (?, ?, ?)
		ON CONFLICT (user_id, ruleset) DO UPDATE SET rank = EXCLUDED.rank
		WHERE rank_tops.rank > EXCLUDED.rank`),
		userID, int(ruleset), rank)
	return Error.Wrap(err)
}
