// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
)

// scoresDB implements scores.DB.
type scoresDB struct {
	db *arcadeDB
}

func (db *scoresDB) Scores() scores.Scores        { return &scoresTable{db.db} }
func (db *scoresDB) Tokens() scores.Tokens        { return &scoreTokensTable{db.db} }
func (db *scoresDB) Bests() scores.BestScores     { return &bestScoresTable{db.db} }
func (db *scoresDB) PPBests() scores.PPBestScores { return &ppBestScoresTable{db.db} }
func (db *scoresDB) Playcounts() scores.Playcounts { return &playcountsTable{db.db} }

type scoresTable struct {
	db *arcadeDB
}

const scoreColumns = `id, user_id, beatmap_id, ruleset, mods, total_score, accuracy,
	max_combo, rank, passed, perfect, statistics, maximum_statistics, pp,
	pinned_order, replay_filename, build_id, ended_at, created_at`

func scanScore(row interface{ Scan(...any) error }) (*scores.Score, error) {
	var (
		score    scores.Score
		ruleset  int
		mods     string
		rank     string
		stats    string
		maxStats string
		pp       sql.NullFloat64
	)
	err := row.Scan(&score.ID, &score.UserID, &score.BeatmapID, &ruleset, &mods,
		&score.TotalScore, &score.Accuracy, &score.MaxCombo, &rank, &score.Passed,
		&score.Perfect, &stats, &maxStats, &pp, &score.PinnedOrder,
		&score.ReplayFilename, &score.BuildID, &score.EndedAt, &score.CreatedAt)
	if err != nil {
		return nil, err
	}
	score.Ruleset = rulesets.ID(ruleset)
	score.Rank = rulesets.Grade(rank)
	if err := decodeJSON(mods, &score.Mods); err != nil {
		return nil, err
	}
	if err := decodeJSON(stats, &score.Statistics); err != nil {
		return nil, err
	}
	if err := decodeJSON(maxStats, &score.MaximumStatistics); err != nil {
		return nil, err
	}
	score.PP = floatPtr(pp)
	return &score, nil
}

func (t *scoresTable) Insert(ctx context.Context, score *scores.Score) error {
	mods, err := encodeJSON(score.Mods)
	if err != nil {
		return err
	}
	stats, err := encodeJSON(score.Statistics)
	if err != nil {
		return err
	}
	maxStats, err := encodeJSON(score.MaximumStatistics)
	if err != nil {
		return err
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO scores (user_id, beatmap_id, ruleset, mods, total_score, accuracy,
			max_combo, rank, passed, perfect, statistics, maximum_statistics, pp,
			pinned_order, replay_filename, build_id, ended_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		score.UserID, score.BeatmapID, int(score.Ruleset), mods, score.TotalScore,
		score.Accuracy, score.MaxCombo, string(score.Rank), score.Passed, score.Perfect,
		stats, maxStats, nullFloat(score.PP), score.PinnedOrder,
		score.ReplayFilename, score.BuildID, score.EndedAt, score.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	score.ID = id
	return nil
}

func (t *scoresTable) Get(ctx context.Context, id int64) (*scores.Score, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+scoreColumns+` FROM scores WHERE id = ?`), id)
	score, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scores.ErrNotFound.New("score %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return score, nil
}

func (t *scoresTable) SetPP(ctx context.Context, id int64, pp float64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE scores SET pp = ? WHERE id = ?`), pp, id)
	return Error.Wrap(err)
}

func (t *scoresTable) SetReplayFilename(ctx context.Context, id int64, filename string) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE scores SET replay_filename = ? WHERE id = ?`), filename, id)
	return Error.Wrap(err)
}

func (t *scoresTable) Delete(ctx context.Context, id int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM scores WHERE id = ?`), id)
	return Error.Wrap(err)
}

func (t *scoresTable) ListByIDs(ctx context.Context, ids []int64) ([]*scores.Score, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := t.db.inQuery(`SELECT `+scoreColumns+` FROM scores WHERE id IN (?)`, ids)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return t.list(ctx, query, args...)
}

func (t *scoresTable) list(ctx context.Context, query string, args ...any) ([]*scores.Score, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*scores.Score
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, score)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *scoresTable) ListRecent(ctx context.Context, userID int64, ruleset rulesets.ID, includeFailed bool, limit, offset int) ([]*scores.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM scores WHERE user_id = ? AND ruleset = ?`
	if !includeFailed {
		query += ` AND passed`
	}
	query += ` ORDER BY ended_at DESC, id DESC LIMIT ? OFFSET ?`
	return t.list(ctx, t.db.Rebind(query), userID, int(ruleset), limit, offset)
}

func (t *scoresTable) ListForUserBeatmap(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) ([]*scores.Score, error) {
	return t.list(ctx, t.db.Rebind(`
		SELECT `+scoreColumns+` FROM scores
		WHERE user_id = ? AND beatmap_id = ? AND ruleset = ? AND passed
		ORDER BY total_score DESC, id`),
		userID, beatmapID, int(ruleset))
}

func (t *scoresTable) ListPinned(ctx context.Context, userID int64, ruleset rulesets.ID) ([]*scores.Score, error) {
	return t.list(ctx, t.db.Rebind(`
		SELECT `+scoreColumns+` FROM scores
		WHERE user_id = ? AND ruleset = ? AND pinned_order > 0
		ORDER BY pinned_order`),
		userID, int(ruleset))
}

func (t *scoresTable) SetPinOrder(ctx context.Context, id int64, order int) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE scores SET pinned_order = ? WHERE id = ?`), order, id)
	return Error.Wrap(err)
}

func (t *scoresTable) CountByUser(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT COUNT(*) FROM scores WHERE user_id = ? AND ruleset = ?`),
		userID, int(ruleset)).Scan(&count)
	return count, Error.Wrap(err)
}

type scoreTokensTable struct {
	db *arcadeDB
}

func (t *scoreTokensTable) Insert(ctx context.Context, token *scores.Token) error {
	now := time.Now().UTC()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = token.CreatedAt
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO score_tokens (user_id, beatmap_id, ruleset, room_id, playlist_item_id,
			score_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.UserID, token.BeatmapID, int(token.Ruleset), token.RoomID,
		token.PlaylistItemID, nullInt64(token.ScoreID), token.CreatedAt, token.UpdatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	token.ID = id
	return nil
}

func (t *scoreTokensTable) Get(ctx context.Context, id int64) (*scores.Token, error) {
	var (
		token   scores.Token
		ruleset int
		scoreID sql.NullInt64
	)
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT id, user_id, beatmap_id, ruleset, room_id, playlist_item_id,
			score_id, created_at, updated_at
		FROM score_tokens WHERE id = ?`),
		id).Scan(&token.ID, &token.UserID, &token.BeatmapID, &ruleset, &token.RoomID,
		&token.PlaylistItemID, &scoreID, &token.CreatedAt, &token.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scores.ErrNotFound.New("token %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	token.Ruleset = rulesets.ID(ruleset)
	token.ScoreID = int64Ptr(scoreID)
	return &token, nil
}

func (t *scoreTokensTable) SetScore(ctx context.Context, id, scoreID int64) error {
	res, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE score_tokens SET score_id = ?, updated_at = ?
		WHERE id = ? AND score_id IS NULL`),
		scoreID, time.Now().UTC(), id)
	if err != nil {
		return Error.Wrap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return scores.ErrNotFound.New("token %d already redeemed or missing", id)
	}
	return nil
}

func (t *scoreTokensTable) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM score_tokens WHERE score_id IS NULL AND created_at < ?`), cutoff)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	deleted, err := res.RowsAffected()
	return deleted, Error.Wrap(err)
}

type bestScoresTable struct {
	db *arcadeDB
}

const bestColumns = `user_id, beatmap_id, ruleset, score_id, total_score, pp,
	accuracy, max_combo, rank, mods, ended_at`

func scanBest(row interface{ Scan(...any) error }) (*scores.BestScore, error) {
	var (
		best    scores.BestScore
		ruleset int
		rank    string
		mods    string
	)
	err := row.Scan(&best.UserID, &best.BeatmapID, &ruleset, &best.ScoreID,
		&best.TotalScore, &best.PP, &best.Accuracy, &best.MaxCombo, &rank, &mods,
		&best.EndedAt)
	if err != nil {
		return nil, err
	}
	best.Ruleset = rulesets.ID(ruleset)
	best.Rank = rulesets.Grade(rank)
	if err := decodeJSON(mods, &best.Mods); err != nil {
		return nil, err
	}
	return &best, nil
}

func (t *bestScoresTable) Get(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) (*scores.BestScore, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT `+bestColumns+` FROM best_scores
		WHERE user_id = ? AND beatmap_id = ? AND ruleset = ?`),
		userID, beatmapID, int(ruleset))
	best, err := scanBest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scores.ErrNotFound.New("best %d/%d/%d", userID, beatmapID, int(ruleset))
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return best, nil
}

func (t *bestScoresTable) Upsert(ctx context.Context, best *scores.BestScore) error {
	mods, err := encodeJSON(best.Mods)
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO best_scores (user_id, beatmap_id, ruleset, score_id, total_score,
			pp, accuracy, max_combo, rank, mods, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, beatmap_id, ruleset) DO UPDATE SET
			score_id = EXCLUDED.score_id,
			total_score = EXCLUDED.total_score,
			pp = EXCLUDED.pp,
			accuracy = EXCLUDED.accuracy,
			max_combo = EXCLUDED.max_combo,
			rank = EXCLUDED.rank,
			mods = EXCLUDED.mods,
			ended_at = EXCLUDED.ended_at`),
		best.UserID, best.BeatmapID, int(best.Ruleset), best.ScoreID, best.TotalScore,
		best.PP, best.Accuracy, best.MaxCombo, string(best.Rank), mods, best.EndedAt)
	return Error.Wrap(err)
}

func (t *bestScoresTable) Delete(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		DELETE FROM best_scores WHERE user_id = ? AND beatmap_id = ? AND ruleset = ?`),
		userID, beatmapID, int(ruleset))
	return Error.Wrap(err)
}

func (t *bestScoresTable) DeleteByScore(ctx context.Context, scoreID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM best_scores WHERE score_id = ?`), scoreID)
	return Error.Wrap(err)
}

func (t *bestScoresTable) list(ctx context.Context, query string, args ...any) ([]*scores.BestScore, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*scores.BestScore
	for rows.Next() {
		best, err := scanBest(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, best)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *bestScoresTable) Top(ctx context.Context, beatmapID int64, ruleset rulesets.ID, limit int) ([]*scores.BestScore, error) {
	return t.list(ctx, t.db.Rebind(`
		SELECT `+bestColumns+` FROM best_scores
		WHERE beatmap_id = ? AND ruleset = ?
		ORDER BY total_score DESC, score_id LIMIT ?`),
		beatmapID, int(ruleset), limit)
}

func (t *bestScoresTable) TopByCountry(ctx context.Context, beatmapID int64, ruleset rulesets.ID, country string, limit int) ([]*scores.BestScore, error) {
	return t.list(ctx, t.db.Rebind(`
		SELECT `+prefixColumns(bestColumns, "b")+` FROM best_scores b
		JOIN users u ON u.id = b.user_id
		WHERE b.beatmap_id = ? AND b.ruleset = ? AND u.country = ?
		ORDER BY b.total_score DESC, b.score_id LIMIT ?`),
		beatmapID, int(ruleset), country, limit)
}

func (t *bestScoresTable) ListByUser(ctx context.Context, userID int64, ruleset rulesets.ID, limit int) ([]*scores.BestScore, error) {
	return t.list(ctx, t.db.Rebind(`
		SELECT `+bestColumns+` FROM best_scores
		WHERE user_id = ? AND ruleset = ?
		ORDER BY total_score DESC, score_id LIMIT ?`),
		userID, int(ruleset), limit)
}

func (t *bestScoresTable) TopByUsers(ctx context.Context, beatmapID int64, ruleset rulesets.ID, userIDs []int64, limit int) ([]*scores.BestScore, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query, args, err := t.db.inQuery(`
		SELECT `+bestColumns+` FROM best_scores
		WHERE beatmap_id = ? AND ruleset = ? AND user_id IN (?)
		ORDER BY total_score DESC, score_id LIMIT ?`,
		beatmapID, int(ruleset), userIDs, limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return t.list(ctx, query, args...)
}

func (t *bestScoresTable) Position(ctx context.Context, best *scores.BestScore) (int64, error) {
	var ahead int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT COUNT(*) FROM best_scores
		WHERE beatmap_id = ? AND ruleset = ?
			AND (total_score > ? OR (total_score = ? AND score_id < ?))`),
		best.BeatmapID, int(best.Ruleset), best.TotalScore, best.TotalScore,
		best.ScoreID).Scan(&ahead)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return ahead + 1, nil
}

type ppBestScoresTable struct {
	db *arcadeDB
}

func (t *ppBestScoresTable) Upsert(ctx context.Context, best *scores.PPBest) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO pp_best_scores (user_id, ruleset, score_id, beatmap_id, pp, accuracy)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, ruleset, score_id) DO UPDATE SET
			beatmap_id = EXCLUDED.beatmap_id,
			pp = EXCLUDED.pp,
			accuracy = EXCLUDED.accuracy`),
		best.UserID, int(best.Ruleset), best.ScoreID, best.BeatmapID, best.PP, best.Accuracy)
	return Error.Wrap(err)
}

func (t *ppBestScoresTable) DeleteByScore(ctx context.Context, scoreID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM pp_best_scores WHERE score_id = ?`), scoreID)
	return Error.Wrap(err)
}

func (t *ppBestScoresTable) ListByUser(ctx context.Context, userID int64, ruleset rulesets.ID, limit int) ([]*scores.PPBest, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT user_id, ruleset, score_id, beatmap_id, pp, accuracy
		FROM pp_best_scores
		WHERE user_id = ? AND ruleset = ?
		ORDER BY pp DESC, score_id LIMIT ?`),
		userID, int(ruleset), limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*scores.PPBest
	for rows.Next() {
		var best scores.PPBest
		var rowRuleset int
		if err := rows.Scan(&best.UserID, &rowRuleset, &best.ScoreID, &best.BeatmapID,
			&best.PP, &best.Accuracy); err != nil {
			return nil, Error.Wrap(err)
		}
		best.Ruleset = rulesets.ID(rowRuleset)
		list = append(list, &best)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *ppBestScoresTable) Trim(ctx context.Context, userID int64, ruleset rulesets.ID, keep int) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		DELETE FROM pp_best_scores
		WHERE user_id = ? AND ruleset = ? AND score_id NOT IN (
			SELECT score_id FROM pp_best_scores
			WHERE user_id = ? AND ruleset = ?
			ORDER BY pp DESC, score_id LIMIT ?
		)`),
		userID, int(ruleset), userID, int(ruleset), keep)
	return Error.Wrap(err)
}

type playcountsTable struct {
	db *arcadeDB
}

func (t *playcountsTable) Increment(ctx context.Context, userID, beatmapID int64) (int64, error) {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO playcounts (user_id, beatmap_id, count) VALUES (?, ?, 1)
		ON CONFLICT (user_id, beatmap_id) DO UPDATE SET count = playcounts.count + 1`),
		userID, beatmapID)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return t.Get(ctx, userID, beatmapID)
}

func (t *playcountsTable) Get(ctx context.Context, userID, beatmapID int64) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT count FROM playcounts WHERE user_id = ? AND beatmap_id = ?`),
		userID, beatmapID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, Error.Wrap(err)
}
