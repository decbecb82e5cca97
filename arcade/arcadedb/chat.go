// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"tempora.dev/tempora/arcade/chat"
)

// chatDB implements chat.DB.
type chatDB struct {
	db *arcadeDB
}

func (db *chatDB) Channels() chat.Channels { return &channelsTable{db.db} }
func (db *chatDB) Messages() chat.Messages { return &messagesTable{db.db} }
func (db *chatDB) Silences() chat.Silences { return &silencesTable{db.db} }

type channelsTable struct {
	db *arcadeDB
}

const channelColumns = `id, name, description, type, icon, moderated, created_at`

func scanChannel(row interface{ Scan(...any) error }) (*chat.Channel, error) {
	var channel chat.Channel
	var channelType string
	err := row.Scan(&channel.ID, &channel.Name, &channel.Description, &channelType,
		&channel.Icon, &channel.Moderated, &channel.CreatedAt)
	if err != nil {
		return nil, err
	}
	channel.Type = chat.ChannelType(channelType)
	return &channel, nil
}

func (t *channelsTable) Insert(ctx context.Context, channel *chat.Channel) error {
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO chat_channels (name, description, type, icon, moderated, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		channel.Name, channel.Description, string(channel.Type), channel.Icon,
		channel.Moderated, channel.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	channel.ID = id
	return nil
}

func (t *channelsTable) Get(ctx context.Context, id int64) (*chat.Channel, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+channelColumns+` FROM chat_channels WHERE id = ?`), id)
	channel, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound.New("channel %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return channel, nil
}

func (t *channelsTable) GetByName(ctx context.Context, name string) (*chat.Channel, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+channelColumns+` FROM chat_channels WHERE name = ?`), name)
	channel, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound.New("channel %q", name)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return channel, nil
}

func (t *channelsTable) ListByIDs(ctx context.Context, ids []int64) ([]*chat.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := t.db.inQuery(
		`SELECT `+channelColumns+` FROM chat_channels WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return t.list(ctx, query, args...)
}

func (t *channelsTable) ListPublic(ctx context.Context) ([]*chat.Channel, error) {
	return t.list(ctx, t.db.Rebind(
		`SELECT `+channelColumns+` FROM chat_channels WHERE type = ? ORDER BY id`),
		string(chat.TypePublic))
}

func (t *channelsTable) list(ctx context.Context, query string, args ...any) ([]*chat.Channel, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*chat.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, channel)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *channelsTable) Delete(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM chat_channels WHERE id = ?`), id)
	return Error.Wrap(err)
}

type messagesTable struct {
	db *arcadeDB
}

func (t *messagesTable) InsertBatch(ctx context.Context, messages []*chat.Message) error {
	if len(messages) == 0 {
		return nil
	}
	// Ids come from the Redis counter, so a replayed batch after a crash
	// may contain rows already flushed. Conflicts are skipped.
	for _, message := range messages {
		var clientUUID sql.NullString
		if message.ClientUUID != nil {
			clientUUID = sql.NullString{String: message.ClientUUID.String(), Valid: true}
		}
		_, err := t.db.ExecContext(ctx, t.db.Rebind(`
			INSERT INTO chat_messages (id, channel_id, sender_id, content, type, client_uuid, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`),
			message.ID, message.ChannelID, message.SenderID, message.Content,
			string(message.Type), clientUUID, message.CreatedAt)
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func (t *messagesTable) MaxID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := t.db.QueryRowContext(ctx, `SELECT MAX(id) FROM chat_messages`).Scan(&max)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return max.Int64, nil
}

func (t *messagesTable) ListBefore(ctx context.Context, channelID, before int64, limit int) ([]*chat.Message, error) {
	query := `
		SELECT id, channel_id, sender_id, content, type, client_uuid, created_at
		FROM chat_messages WHERE channel_id = ?`
	args := []any{channelID}
	if before > 0 {
		query += ` AND id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := t.db.QueryContext(ctx, t.db.Rebind(query), args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*chat.Message
	for rows.Next() {
		var (
			message     chat.Message
			messageType string
			clientUUID  sql.NullString
		)
		if err := rows.Scan(&message.ID, &message.ChannelID, &message.SenderID,
			&message.Content, &messageType, &clientUUID, &message.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		message.Type = chat.MessageType(messageType)
		if clientUUID.Valid {
			parsed, err := uuid.Parse(clientUUID.String)
			if err == nil {
				message.ClientUUID = &parsed
			}
		}
		list = append(list, &message)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *messagesTable) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT EXISTS (SELECT 1 FROM chat_messages WHERE id = ?)`), id).Scan(&exists)
	return exists, Error.Wrap(err)
}

type silencesTable struct {
	db *arcadeDB
}

func (t *silencesTable) Insert(ctx context.Context, silence *chat.Silence) error {
	if silence.CreatedAt.IsZero() {
		silence.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO chat_silences (user_id, channel_id, reason, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		silence.UserID, silence.ChannelID, silence.Reason,
		nullTime(silence.ExpiresAt), silence.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	silence.ID = id
	return nil
}

func (t *silencesTable) ActiveFor(ctx context.Context, userID, channelID int64, at time.Time) (*chat.Silence, error) {
	var (
		silence   chat.Silence
		expiresAt sql.NullTime
	)
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT id, user_id, channel_id, reason, expires_at, created_at
		FROM chat_silences
		WHERE user_id = ? AND channel_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY id DESC LIMIT 1`),
		userID, channelID, at).Scan(&silence.ID, &silence.UserID, &silence.ChannelID,
		&silence.Reason, &expiresAt, &silence.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound.New("no silence")
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	silence.ExpiresAt = timePtr(expiresAt)
	return &silence, nil
}

func (t *silencesTable) ListSince(ctx context.Context, sinceID int64, limit int) ([]*chat.Silence, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT id, user_id, channel_id, reason, expires_at, created_at
		FROM chat_silences WHERE id > ?
		ORDER BY id LIMIT ?`), sinceID, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*chat.Silence
	for rows.Next() {
		var (
			silence   chat.Silence
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&silence.ID, &silence.UserID, &silence.ChannelID,
			&silence.Reason, &expiresAt, &silence.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		silence.ExpiresAt = timePtr(expiresAt)
		list = append(list, &silence)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *silencesTable) Delete(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM chat_silences WHERE id = ?`), id)
	return Error.Wrap(err)
}
