// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"time"

	"tempora.dev/tempora/arcade/medals"
)

// achievementsDB implements medals.UserAchievements.
type achievementsDB struct {
	db *arcadeDB
}

func (db *achievementsDB) Insert(ctx context.Context, achievement *medals.UserAchievement) error {
	if achievement.UnlockedAt.IsZero() {
		achievement.UnlockedAt = time.Now().UTC()
	}
	_, err := db.db.ExecContext(ctx, db.db.Rebind(`
		INSERT INTO user_achievements (user_id, medal, unlocked_at) VALUES (?, ?, ?)`),
		achievement.UserID, achievement.Medal, achievement.UnlockedAt)
	return Error.Wrap(err)
}

func (db *achievementsDB) Has(ctx context.Context, userID int64, medal string) (bool, error) {
	var has bool
	err := db.db.QueryRowContext(ctx, db.db.Rebind(`
		SELECT EXISTS (
			SELECT 1 FROM user_achievements WHERE user_id = ? AND medal = ?
		)`), userID, medal).Scan(&has)
	return has, Error.Wrap(err)
}

func (db *achievementsDB) ListByUser(ctx context.Context, userID int64) ([]*medals.UserAchievement, error) {
	rows, err := db.db.QueryContext(ctx, db.db.Rebind(`
		SELECT user_id, medal, unlocked_at FROM user_achievements
		WHERE user_id = ? ORDER BY unlocked_at DESC, medal`), userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*medals.UserAchievement
	for rows.Next() {
		var achievement medals.UserAchievement
		if err := rows.Scan(&achievement.UserID, &achievement.Medal,
			&achievement.UnlockedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &achievement)
	}
	return list, Error.Wrap(rows.Err())
}
