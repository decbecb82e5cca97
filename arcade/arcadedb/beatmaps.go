// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/rulesets"
)

// beatmapsDB implements beatmaps.DB.
type beatmapsDB struct {
	db *arcadeDB
}

func (db *beatmapsDB) Beatmaps() beatmaps.Beatmaps       { return &beatmapsTable{db.db} }
func (db *beatmapsDB) Beatmapsets() beatmaps.Beatmapsets { return &beatmapsetsTable{db.db} }
func (db *beatmapsDB) Favourites() beatmaps.Favourites   { return &favouritesTable{db.db} }
func (db *beatmapsDB) Ratings() beatmaps.Ratings         { return &ratingsTable{db.db} }

type beatmapsTable struct {
	db *arcadeDB
}

const beatmapColumns = `id, beatmapset_id, checksum, version, ruleset, status,
	total_length, hit_length, bpm, cs, ar, od, hp, star_rating, max_combo,
	count_circles, count_sliders, count_spinners, playcount, passcount,
	last_updated, synced_at`

func scanBeatmap(row interface{ Scan(...any) error }) (*beatmaps.Beatmap, error) {
	var (
		beatmap beatmaps.Beatmap
		ruleset int
		status  int
	)
	err := row.Scan(&beatmap.ID, &beatmap.BeatmapsetID, &beatmap.Checksum, &beatmap.Version,
		&ruleset, &status, &beatmap.TotalLength, &beatmap.HitLength, &beatmap.BPM,
		&beatmap.CS, &beatmap.AR, &beatmap.OD, &beatmap.HP, &beatmap.StarRating,
		&beatmap.MaxCombo, &beatmap.CountCircles, &beatmap.CountSliders,
		&beatmap.CountSpinners, &beatmap.Playcount, &beatmap.Passcount,
		&beatmap.LastUpdated, &beatmap.SyncedAt)
	if err != nil {
		return nil, err
	}
	beatmap.Ruleset = rulesets.ID(ruleset)
	beatmap.Status = beatmaps.Status(status)
	return &beatmap, nil
}

func (t *beatmapsTable) Get(ctx context.Context, id int64) (*beatmaps.Beatmap, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+beatmapColumns+` FROM beatmaps WHERE id = ?`), id)
	beatmap, err := scanBeatmap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, beatmaps.ErrNotFound.New("beatmap %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return beatmap, nil
}

func (t *beatmapsTable) GetByChecksum(ctx context.Context, checksum string) (*beatmaps.Beatmap, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+beatmapColumns+` FROM beatmaps WHERE checksum = ?`), checksum)
	beatmap, err := scanBeatmap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, beatmaps.ErrNotFound.New("checksum %s", checksum)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return beatmap, nil
}

func (t *beatmapsTable) Upsert(ctx context.Context, beatmap *beatmaps.Beatmap) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO beatmaps (id, beatmapset_id, checksum, version, ruleset, status,
			total_length, hit_length, bpm, cs, ar, od, hp, star_rating, max_combo,
			count_circles, count_sliders, count_spinners, playcount, passcount,
			last_updated, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			beatmapset_id = EXCLUDED.beatmapset_id,
			checksum = EXCLUDED.checksum,
			version = EXCLUDED.version,
			ruleset = EXCLUDED.ruleset,
			status = EXCLUDED.status,
			total_length = EXCLUDED.total_length,
			hit_length = EXCLUDED.hit_length,
			bpm = EXCLUDED.bpm,
			cs = EXCLUDED.cs,
			ar = EXCLUDED.ar,
			od = EXCLUDED.od,
			hp = EXCLUDED.hp,
			star_rating = EXCLUDED.star_rating,
			max_combo = EXCLUDED.max_combo,
			count_circles = EXCLUDED.count_circles,
			count_sliders = EXCLUDED.count_sliders,
			count_spinners = EXCLUDED.count_spinners,
			last_updated = EXCLUDED.last_updated,
			synced_at = EXCLUDED.synced_at`),
		beatmap.ID, beatmap.BeatmapsetID, beatmap.Checksum, beatmap.Version,
		int(beatmap.Ruleset), int(beatmap.Status), beatmap.TotalLength, beatmap.HitLength,
		beatmap.BPM, beatmap.CS, beatmap.AR, beatmap.OD, beatmap.HP, beatmap.StarRating,
		beatmap.MaxCombo, beatmap.CountCircles, beatmap.CountSliders, beatmap.CountSpinners,
		beatmap.Playcount, beatmap.Passcount, beatmap.LastUpdated, beatmap.SyncedAt)
	return Error.Wrap(err)
}

func (t *beatmapsTable) ListByBeatmapset(ctx context.Context, beatmapsetID int64) ([]*beatmaps.Beatmap, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(
		`SELECT `+beatmapColumns+` FROM beatmaps WHERE beatmapset_id = ? ORDER BY star_rating, id`),
		beatmapsetID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*beatmaps.Beatmap
	for rows.Next() {
		beatmap, err := scanBeatmap(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, beatmap)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *beatmapsTable) IncrementPlaycount(ctx context.Context, id int64, passed bool) error {
	pass := 0
	if passed {
		pass = 1
	}
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE beatmaps SET playcount = playcount + 1, passcount = passcount + ? WHERE id = ?`),
		pass, id)
	return Error.Wrap(err)
}

type beatmapsetsTable struct {
	db *arcadeDB
}

const beatmapsetColumns = `id, title, title_unicode, artist, artist_unicode,
	creator, creator_id, source, tags, status, video, storyboard, nsfw,
	genre_id, language_id, play_count, favourite_count,
	submitted_at, ranked_at, last_updated, synced_at`

func (t *beatmapsetsTable) Get(ctx context.Context, id int64) (*beatmaps.Beatmapset, error) {
	var (
		set      beatmaps.Beatmapset
		status   int
		rankedAt sql.NullTime
	)
	err := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+beatmapsetColumns+` FROM beatmapsets WHERE id = ?`),
		id).Scan(&set.ID, &set.Title, &set.TitleUnicode, &set.Artist, &set.ArtistUnicode,
		&set.Creator, &set.CreatorID, &set.Source, &set.Tags, &status, &set.Video,
		&set.Storyboard, &set.NSFW, &set.GenreID, &set.LanguageID, &set.PlayCount,
		&set.FavouriteCount, &set.SubmittedAt, &rankedAt, &set.LastUpdated, &set.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, beatmaps.ErrNotFound.New("beatmapset %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	set.Status = beatmaps.Status(status)
	set.RankedAt = timePtr(rankedAt)
	return &set, nil
}

func (t *beatmapsetsTable) Upsert(ctx context.Context, set *beatmaps.Beatmapset) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO beatmapsets (id, title, title_unicode, artist, artist_unicode,
			creator, creator_id, source, tags, status, video, storyboard, nsfw,
			genre_id, language_id, play_count, favourite_count,
			submitted_at, ranked_at, last_updated, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			title_unicode = EXCLUDED.title_unicode,
			artist = EXCLUDED.artist,
			artist_unicode = EXCLUDED.artist_unicode,
			creator = EXCLUDED.creator,
			creator_id = EXCLUDED.creator_id,
			source = EXCLUDED.source,
			tags = EXCLUDED.tags,
			status = EXCLUDED.status,
			video = EXCLUDED.video,
			storyboard = EXCLUDED.storyboard,
			nsfw = EXCLUDED.nsfw,
			genre_id = EXCLUDED.genre_id,
			language_id = EXCLUDED.language_id,
			play_count = EXCLUDED.play_count,
			submitted_at = EXCLUDED.submitted_at,
			ranked_at = EXCLUDED.ranked_at,
			last_updated = EXCLUDED.last_updated,
			synced_at = EXCLUDED.synced_at`),
		set.ID, set.Title, set.TitleUnicode, set.Artist, set.ArtistUnicode,
		set.Creator, set.CreatorID, set.Source, set.Tags, int(set.Status),
		set.Video, set.Storyboard, set.NSFW, set.GenreID, set.LanguageID,
		set.PlayCount, set.FavouriteCount,
		set.SubmittedAt, nullTime(set.RankedAt), set.LastUpdated, set.SyncedAt)
	return Error.Wrap(err)
}

func (t *beatmapsetsTable) ListSyncedBefore(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT id FROM beatmapsets
		WHERE synced_at < ? AND status NOT IN (?, ?, ?)
		ORDER BY synced_at LIMIT ?`),
		cutoff, int(beatmaps.StatusRanked), int(beatmaps.StatusApproved),
		int(beatmaps.StatusLoved), limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, Error.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, Error.Wrap(rows.Err())
}

func (t *beatmapsetsTable) SetFavouriteCount(ctx context.Context, id int64, count int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE beatmapsets SET favourite_count = ? WHERE id = ?`), count, id)
	return Error.Wrap(err)
}

type favouritesTable struct {
	db *arcadeDB
}

func (t *favouritesTable) Add(ctx context.Context, userID, beatmapsetID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO favourites (user_id, beatmapset_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, beatmapset_id) DO NOTHING`),
		userID, beatmapsetID, time.Now().UTC())
	return Error.Wrap(err)
}

func (t *favouritesTable) Remove(ctx context.Context, userID, beatmapsetID int64) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM favourites WHERE user_id = ? AND beatmapset_id = ?`),
		userID, beatmapsetID)
	return Error.Wrap(err)
}

func (t *favouritesTable) Has(ctx context.Context, userID, beatmapsetID int64) (bool, error) {
	var has bool
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT EXISTS (
			SELECT 1 FROM favourites WHERE user_id = ? AND beatmapset_id = ?
		)`), userID, beatmapsetID).Scan(&has)
	return has, Error.Wrap(err)
}

func (t *favouritesTable) Count(ctx context.Context, beatmapsetID int64) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT COUNT(*) FROM favourites WHERE beatmapset_id = ?`),
		beatmapsetID).Scan(&count)
	return count, Error.Wrap(err)
}

func (t *favouritesTable) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]int64, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT beatmapset_id FROM favourites WHERE user_id = ?
		ORDER BY created_at DESC, beatmapset_id DESC LIMIT ? OFFSET ?`),
		userID, limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, Error.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, Error.Wrap(rows.Err())
}

type ratingsTable struct {
	db *arcadeDB
}

func (t *ratingsTable) Upsert(ctx context.Context, rating *beatmaps.Rating) error {
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO ratings (user_id, beatmapset_id, score, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, beatmapset_id) DO UPDATE SET
			score = EXCLUDED.score,
			created_at = EXCLUDED.created_at`),
		rating.UserID, rating.BeatmapsetID, rating.Score, rating.CreatedAt)
	return Error.Wrap(err)
}

func (t *ratingsTable) Summary(ctx context.Context, beatmapsetID int64) (average float64, count int64, err error) {
	var avg sql.NullFloat64
	err = t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT AVG(CAST(score AS DOUBLE PRECISION)), COUNT(*) FROM ratings WHERE beatmapset_id = ?`),
		beatmapsetID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, Error.Wrap(err)
	}
	return avg.Float64, count, nil
}
