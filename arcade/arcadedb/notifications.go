// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"encoding/json"
	"time"

	"tempora.dev/tempora/arcade/notifications"
)

// notificationsDB implements notifications.DB.
type notificationsDB struct {
	db *arcadeDB
}

func (db *notificationsDB) Insert(ctx context.Context, notification *notifications.Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	id, err := db.db.execInsertID(ctx, `
		INSERT INTO notifications (user_id, source_id, name, details, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		notification.UserID, notification.SourceID, string(notification.Name),
		string(notification.Details), notification.IsRead, notification.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	notification.ID = id
	return nil
}

func (db *notificationsDB) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*notifications.Notification, error) {
	query := `SELECT id, user_id, source_id, name, details, is_read, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := db.db.QueryContext(ctx, db.db.Rebind(query), userID, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*notifications.Notification
	for rows.Next() {
		var (
			notification notifications.Notification
			name         string
			details      string
		)
		if err := rows.Scan(&notification.ID, &notification.UserID, &notification.SourceID,
			&name, &details, &notification.IsRead, &notification.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		notification.Name = notifications.Name(name)
		if details != "" {
			notification.Details = json.RawMessage(details)
		}
		list = append(list, &notification)
	}
	return list, Error.Wrap(rows.Err())
}

func (db *notificationsDB) MarkRead(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := db.db.inQuery(
		`UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND id IN (?)`,
		userID, ids)
	if err != nil {
		return Error.Wrap(err)
	}
	_, err = db.db.ExecContext(ctx, query, args...)
	return Error.Wrap(err)
}

func (db *notificationsDB) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := db.db.QueryRowContext(ctx, db.db.Rebind(
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND NOT is_read`),
		userID).Scan(&count)
	return count, Error.Wrap(err)
}
