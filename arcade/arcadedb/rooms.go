// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/rulesets"
)

// roomsDB implements rooms.DB.
type roomsDB struct {
	db *arcadeDB
}

func (db *roomsDB) Rooms() rooms.Rooms                   { return &roomsTable{db.db} }
func (db *roomsDB) Playlists() rooms.Playlists           { return &playlistsTable{db.db} }
func (db *roomsDB) Participants() rooms.Participants     { return &participantsTable{db.db} }
func (db *roomsDB) BestScores() rooms.BestScores         { return &roomBestScoresTable{db.db} }
func (db *roomsDB) Attempts() rooms.Attempts             { return &roomAttemptsTable{db.db} }
func (db *roomsDB) Events() rooms.Events                 { return &roomEventsTable{db.db} }
func (db *roomsDB) DailyChallenge() rooms.DailyChallenge { return &dailyChallengeTable{db.db} }

type roomsTable struct {
	db *arcadeDB
}

const roomColumns = `id, name, host_id, category, type, queue_mode, status, password,
	channel_id, participant_count, max_participants, starts_at, ends_at, created_at`

func scanRoom(row interface{ Scan(...any) error }) (*rooms.Room, error) {
	var (
		room      rooms.Room
		category  string
		matchType string
		queueMode string
		status    string
		endsAt    sql.NullTime
	)
	err := row.Scan(&room.ID, &room.Name, &room.HostID, &category, &matchType,
		&queueMode, &status, &room.Password, &room.ChannelID, &room.ParticipantCount,
		&room.MaxParticipants, &room.StartsAt, &endsAt, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	room.Category = rooms.Category(category)
	room.Type = rooms.MatchType(matchType)
	room.QueueMode = rooms.QueueMode(queueMode)
	room.Status = rooms.Status(status)
	room.EndsAt = timePtr(endsAt)
	return &room, nil
}

func (t *roomsTable) Insert(ctx context.Context, room *rooms.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO rooms (name, host_id, category, type, queue_mode, status, password,
			channel_id, participant_count, max_participants, starts_at, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.Name, room.HostID, string(room.Category), string(room.Type),
		string(room.QueueMode), string(room.Status), room.Password, room.ChannelID,
		room.ParticipantCount, room.MaxParticipants, room.StartsAt,
		nullTime(room.EndsAt), room.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	room.ID = id
	return nil
}

func (t *roomsTable) Get(ctx context.Context, id int64) (*rooms.Room, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+roomColumns+` FROM rooms WHERE id = ?`), id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rooms.ErrNotFound.New("room %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return room, nil
}

func (t *roomsTable) Update(ctx context.Context, room *rooms.Room) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE rooms SET
			name = ?, host_id = ?, queue_mode = ?, status = ?, password = ?,
			channel_id = ?, participant_count = ?, max_participants = ?,
			starts_at = ?, ends_at = ?
		WHERE id = ?`),
		room.Name, room.HostID, string(room.QueueMode), string(room.Status),
		room.Password, room.ChannelID, room.ParticipantCount, room.MaxParticipants,
		room.StartsAt, nullTime(room.EndsAt), room.ID)
	return Error.Wrap(err)
}

func (t *roomsTable) ListActive(ctx context.Context, category rooms.Category, limit int) ([]*rooms.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE (ends_at IS NULL OR ends_at > ?)`
	args := []any{time.Now().UTC()}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := t.db.QueryContext(ctx, t.db.Rebind(query), args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*rooms.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, room)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *roomsTable) ActiveDailyChallenge(ctx context.Context, at time.Time) (*rooms.Room, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT `+roomColumns+` FROM rooms
		WHERE category = ? AND starts_at <= ? AND (ends_at IS NULL OR ends_at > ?)
		ORDER BY id DESC LIMIT 1`),
		string(rooms.CategoryDailyChallenge), at, at)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rooms.ErrNotFound.New("no active daily challenge")
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return room, nil
}

type playlistsTable struct {
	db *arcadeDB
}

const playlistColumns = `id, room_id, owner_id, beatmap_id, ruleset, required_mods,
	allowed_mods, play_order, expired, played_at`

func scanPlaylistItem(row interface{ Scan(...any) error }) (*rooms.PlaylistItem, error) {
	var (
		item     rooms.PlaylistItem
		ruleset  int
		required string
		allowed  string
		playedAt sql.NullTime
	)
	err := row.Scan(&item.ID, &item.RoomID, &item.OwnerID, &item.BeatmapID, &ruleset,
		&required, &allowed, &item.PlayOrder, &item.Expired, &playedAt)
	if err != nil {
		return nil, err
	}
	item.Ruleset = rulesets.ID(ruleset)
	if err := decodeJSON(required, &item.RequiredMods); err != nil {
		return nil, err
	}
	if err := decodeJSON(allowed, &item.AllowedMods); err != nil {
		return nil, err
	}
	item.PlayedAt = timePtr(playedAt)
	return &item, nil
}

func (t *playlistsTable) Insert(ctx context.Context, item *rooms.PlaylistItem) error {
	required, err := encodeJSON(item.RequiredMods)
	if err != nil {
		return err
	}
	allowed, err := encodeJSON(item.AllowedMods)
	if err != nil {
		return err
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO playlist_items (room_id, owner_id, beatmap_id, ruleset,
			required_mods, allowed_mods, play_order, expired, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.RoomID, item.OwnerID, item.BeatmapID, int(item.Ruleset),
		required, allowed, item.PlayOrder, item.Expired, nullTime(item.PlayedAt))
	if err != nil {
		return Error.Wrap(err)
	}
	item.ID = id
	return nil
}

func (t *playlistsTable) Get(ctx context.Context, id int64) (*rooms.PlaylistItem, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+playlistColumns+` FROM playlist_items WHERE id = ?`), id)
	item, err := scanPlaylistItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rooms.ErrNotFound.New("playlist item %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return item, nil
}

func (t *playlistsTable) ListByRoom(ctx context.Context, roomID int64) ([]*rooms.PlaylistItem, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(
		`SELECT `+playlistColumns+` FROM playlist_items WHERE room_id = ? ORDER BY play_order, id`),
		roomID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*rooms.PlaylistItem
	for rows.Next() {
		item, err := scanPlaylistItem(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, item)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *playlistsTable) MarkExpired(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE playlist_items SET expired = TRUE, played_at = ? WHERE id = ?`),
		time.Now().UTC(), id)
	return Error.Wrap(err)
}

type participantsTable struct {
	db *arcadeDB
}

func (t *participantsTable) Upsert(ctx context.Context, roomID, userID int64, at time.Time) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO room_participants (room_id, user_id, joined_at, left_at)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT (room_id, user_id) DO UPDATE SET left_at = NULL`),
		roomID, userID, at)
	return Error.Wrap(err)
}

func (t *participantsTable) MarkLeft(ctx context.Context, roomID, userID int64, at time.Time) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE room_participants SET left_at = ? WHERE room_id = ? AND user_id = ?`),
		at, roomID, userID)
	return Error.Wrap(err)
}

func (t *participantsTable) Active(ctx context.Context, roomID int64) ([]*rooms.Participant, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT room_id, user_id, joined_at, left_at FROM room_participants
		WHERE room_id = ? AND left_at IS NULL
		ORDER BY joined_at, user_id`), roomID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*rooms.Participant
	for rows.Next() {
		var participant rooms.Participant
		var leftAt sql.NullTime
		if err := rows.Scan(&participant.RoomID, &participant.UserID,
			&participant.JoinedAt, &leftAt); err != nil {
			return nil, Error.Wrap(err)
		}
		participant.LeftAt = timePtr(leftAt)
		list = append(list, &participant)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *participantsTable) CountActive(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT COUNT(*) FROM room_participants WHERE room_id = ? AND left_at IS NULL`),
		roomID).Scan(&count)
	return count, Error.Wrap(err)
}

type roomBestScoresTable struct {
	db *arcadeDB
}

func (t *roomBestScoresTable) Get(ctx context.Context, roomID, itemID, userID int64) (*rooms.BestScore, error) {
	var best rooms.BestScore
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT room_id, playlist_item_id, user_id, score_id, total_score, accuracy, pp, passed, updated_at
		FROM room_best_scores
		WHERE room_id = ? AND playlist_item_id = ? AND user_id = ?`),
		roomID, itemID, userID).Scan(&best.RoomID, &best.PlaylistItemID, &best.UserID,
		&best.ScoreID, &best.TotalScore, &best.Accuracy, &best.PP, &best.Passed,
		&best.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rooms.ErrNotFound.New("best %d/%d/%d", roomID, itemID, userID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &best, nil
}

func (t *roomBestScoresTable) Upsert(ctx context.Context, best *rooms.BestScore) error {
	if best.UpdatedAt.IsZero() {
		best.UpdatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO room_best_scores (room_id, playlist_item_id, user_id, score_id,
			total_score, accuracy, pp, passed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id, playlist_item_id, user_id) DO UPDATE SET
			score_id = EXCLUDED.score_id,
			total_score = EXCLUDED.total_score,
			accuracy = EXCLUDED.accuracy,
			pp = EXCLUDED.pp,
			passed = EXCLUDED.passed,
			updated_at = EXCLUDED.updated_at`),
		best.RoomID, best.PlaylistItemID, best.UserID, best.ScoreID,
		best.TotalScore, best.Accuracy, best.PP, best.Passed, best.UpdatedAt)
	return Error.Wrap(err)
}

func (t *roomBestScoresTable) AggregateByUser(ctx context.Context, roomID int64) ([]*rooms.AggregateScore, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT b.user_id, SUM(b.total_score), AVG(b.accuracy), COUNT(*),
			COALESCE(a.count, 0)
		FROM room_best_scores b
		LEFT JOIN room_attempts a ON a.room_id = b.room_id AND a.user_id = b.user_id
		WHERE b.room_id = ?
		GROUP BY b.user_id, a.count
		ORDER BY SUM(b.total_score) DESC, b.user_id`), roomID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*rooms.AggregateScore
	for rows.Next() {
		var agg rooms.AggregateScore
		if err := rows.Scan(&agg.UserID, &agg.TotalScore, &agg.Accuracy,
			&agg.Completed, &agg.Attempts); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &agg)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *roomBestScoresTable) TopForItem(ctx context.Context, roomID, itemID int64, limit int) ([]*rooms.BestScore, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT room_id, playlist_item_id, user_id, score_id, total_score, accuracy, pp, passed, updated_at
		FROM room_best_scores
		WHERE room_id = ? AND playlist_item_id = ?
		ORDER BY total_score DESC, score_id LIMIT ?`),
		roomID, itemID, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*rooms.BestScore
	for rows.Next() {
		var best rooms.BestScore
		if err := rows.Scan(&best.RoomID, &best.PlaylistItemID, &best.UserID,
			&best.ScoreID, &best.TotalScore, &best.Accuracy, &best.PP, &best.Passed,
			&best.UpdatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &best)
	}
	return list, Error.Wrap(rows.Err())
}

type roomAttemptsTable struct {
	db *arcadeDB
}

func (t *roomAttemptsTable) Increment(ctx context.Context, roomID, userID int64) (int64, error) {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO room_attempts (room_id, user_id, count) VALUES (?, ?, 1)
		ON CONFLICT (room_id, user_id) DO UPDATE SET count = room_attempts.count + 1`),
		roomID, userID)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return t.Get(ctx, roomID, userID)
}

func (t *roomAttemptsTable) Get(ctx context.Context, roomID, userID int64) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT count FROM room_attempts WHERE room_id = ? AND user_id = ?`),
		roomID, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, Error.Wrap(err)
}

type roomEventsTable struct {
	db *arcadeDB
}

func (t *roomEventsTable) Insert(ctx context.Context, event *rooms.MultiplayerEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO room_events (room_id, user_id, type, at) VALUES (?, ?, ?, ?)`,
		event.RoomID, event.UserID, string(event.Type), event.At)
	if err != nil {
		return Error.Wrap(err)
	}
	event.ID = id
	return nil
}

func (t *roomEventsTable) ListByRoom(ctx context.Context, roomID int64, limit int) ([]*rooms.MultiplayerEvent, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT id, room_id, user_id, type, at FROM room_events
		WHERE room_id = ? ORDER BY id LIMIT ?`), roomID, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*rooms.MultiplayerEvent
	for rows.Next() {
		var event rooms.MultiplayerEvent
		var eventType string
		if err := rows.Scan(&event.ID, &event.RoomID, &event.UserID, &eventType,
			&event.At); err != nil {
			return nil, Error.Wrap(err)
		}
		event.Type = rooms.EventType(eventType)
		list = append(list, &event)
	}
	return list, Error.Wrap(rows.Err())
}

type dailyChallengeTable struct {
	db *arcadeDB
}

func (t *dailyChallengeTable) Get(ctx context.Context, userID int64) (*rooms.DailyChallengeStats, error) {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO daily_challenge_stats (user_id) VALUES (?)
		ON CONFLICT (user_id) DO NOTHING`), userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var stats rooms.DailyChallengeStats
	var lastPlayed sql.NullTime
	err = t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT user_id, daily_streak_current, daily_streak_best,
			weekly_streak_current, weekly_streak_best, play_count, last_played_on
		FROM daily_challenge_stats WHERE user_id = ?`),
		userID).Scan(&stats.UserID, &stats.DailyStreakCurrent, &stats.DailyStreakBest,
		&stats.WeeklyStreakCurrent, &stats.WeeklyStreakBest, &stats.PlayCount, &lastPlayed)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if lastPlayed.Valid {
		stats.LastPlayedOn = lastPlayed.Time.UTC()
	}
	return &stats, nil
}

func (t *dailyChallengeTable) Update(ctx context.Context, stats *rooms.DailyChallengeStats) error {
	var lastPlayed sql.NullTime
	if !stats.LastPlayedOn.IsZero() {
		lastPlayed = sql.NullTime{Time: stats.LastPlayedOn, Valid: true}
	}
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO daily_challenge_stats (user_id, daily_streak_current, daily_streak_best,
			weekly_streak_current, weekly_streak_best, play_count, last_played_on)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			daily_streak_current = EXCLUDED.daily_streak_current,
			daily_streak_best = EXCLUDED.daily_streak_best,
			weekly_streak_current = EXCLUDED.weekly_streak_current,
			weekly_streak_best = EXCLUDED.weekly_streak_best,
			play_count = EXCLUDED.play_count,
			last_played_on = EXCLUDED.last_played_on`),
		stats.UserID, stats.DailyStreakCurrent, stats.DailyStreakBest,
		stats.WeeklyStreakCurrent, stats.WeeklyStreakBest, stats.PlayCount, lastPlayed)
	return Error.Wrap(err)
}
