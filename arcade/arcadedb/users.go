// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
)

// usersDB implements users.DB.
type usersDB struct {
	db *arcadeDB
}

func (db *usersDB) Users() users.Users                 { return &usersTable{db.db} }
func (db *usersDB) Statistics() users.Statistics       { return &statisticsTable{db.db} }
func (db *usersDB) Relationships() users.Relationships { return &relationshipsTable{db.db} }
func (db *usersDB) Teams() users.Teams                 { return &teamsTable{db.db} }

type usersTable struct {
	db *arcadeDB
}

const userColumns = `id, username, email, password_digest, country, privileges,
	created_at, last_visit_at, is_supporter, play_mode, profile_color, profile_hue,
	cover_url, page_raw, page_html, previous_usernames, silenced_until, donor_until, team_id`

func scanUser(row interface{ Scan(...any) error }) (*users.User, error) {
	var (
		user          users.User
		privileges    uint32
		playMode      int
		profileColor  sql.NullString
		profileHue    sql.NullInt64
		previous      string
		silencedUntil sql.NullTime
		donorUntil    sql.NullTime
		teamID        sql.NullInt64
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordDigest,
		&user.Country, &privileges, &user.CreatedAt, &user.LastVisitAt,
		&user.IsSupporter, &playMode, &profileColor, &profileHue,
		&user.CoverURL, &user.PageRaw, &user.PageHTML, &previous,
		&silencedUntil, &donorUntil, &teamID)
	if err != nil {
		return nil, err
	}
	user.Privileges = users.Privileges(privileges)
	user.PlayMode = rulesets.ID(playMode)
	user.ProfileColor = stringPtr(profileColor)
	if profileHue.Valid {
		hue := int(profileHue.Int64)
		user.ProfileHue = &hue
	}
	if err := decodeJSON(previous, &user.PreviousUsernames); err != nil {
		return nil, err
	}
	user.SilencedUntil = timePtr(silencedUntil)
	user.DonorUntil = timePtr(donorUntil)
	user.TeamID = int64Ptr(teamID)
	return &user, nil
}

func (t *usersTable) getWhere(ctx context.Context, clause string, args ...any) (*users.User, error) {
	row := t.db.QueryRowContext(ctx,
		t.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+clause), args...)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound.New("%s", fmt.Sprint(args...))
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return user, nil
}

func (t *usersTable) Get(ctx context.Context, id int64) (*users.User, error) {
	return t.getWhere(ctx, `id = ?`, id)
}

func (t *usersTable) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return t.getWhere(ctx, `username = ?`, username)
}

func (t *usersTable) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return t.getWhere(ctx, `email = ?`, email)
}

func (t *usersTable) GetByUsernameOrEmail(ctx context.Context, identifier string) (*users.User, error) {
	return t.getWhere(ctx, `username = ? OR email = ?`, identifier, identifier)
}

func (t *usersTable) Insert(ctx context.Context, user *users.User) error {
	previous, err := encodeJSON(user.PreviousUsernames)
	if err != nil {
		return err
	}
	var profileHue sql.NullInt64
	if user.ProfileHue != nil {
		profileHue = sql.NullInt64{Int64: int64(*user.ProfileHue), Valid: true}
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO users (username, email, password_digest, country, privileges,
			created_at, last_visit_at, is_supporter, play_mode, profile_color, profile_hue,
			cover_url, page_raw, page_html, previous_usernames, silenced_until, donor_until, team_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordDigest, user.Country, uint32(user.Privileges),
		user.CreatedAt, user.LastVisitAt, user.IsSupporter, int(user.PlayMode),
		nullString(user.ProfileColor), profileHue,
		user.CoverURL, user.PageRaw, user.PageHTML, previous,
		nullTime(user.SilencedUntil), nullTime(user.DonorUntil), nullInt64(user.TeamID))
	if err != nil {
		return Error.Wrap(err)
	}
	user.ID = id
	return nil
}

func (t *usersTable) Update(ctx context.Context, id int64, request users.UpdateUserRequest) error {
	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if request.Username != nil {
		set("username", *request.Username)
	}
	if request.Email != nil {
		set("email", *request.Email)
	}
	if request.PasswordDigest != nil {
		set("password_digest", request.PasswordDigest)
	}
	if request.Country != nil {
		set("country", *request.Country)
	}
	if request.Privileges != nil {
		set("privileges", uint32(*request.Privileges))
	}
	if request.IsSupporter != nil {
		set("is_supporter", *request.IsSupporter)
	}
	if request.PlayMode != nil {
		set("play_mode", int(*request.PlayMode))
	}
	if request.ProfileColor != nil {
		set("profile_color", nullString(*request.ProfileColor))
	}
	if request.ProfileHue != nil {
		var hue sql.NullInt64
		if *request.ProfileHue != nil {
			hue = sql.NullInt64{Int64: int64(**request.ProfileHue), Valid: true}
		}
		set("profile_hue", hue)
	}
	if request.CoverURL != nil {
		set("cover_url", *request.CoverURL)
	}
	if request.PageRaw != nil {
		set("page_raw", *request.PageRaw)
	}
	if request.PageHTML != nil {
		set("page_html", *request.PageHTML)
	}
	if request.PreviousUsernames != nil {
		previous, err := encodeJSON(*request.PreviousUsernames)
		if err != nil {
			return err
		}
		set("previous_usernames", previous)
	}
	if request.SilencedUntil != nil {
		set("silenced_until", nullTime(*request.SilencedUntil))
	}
	if request.DonorUntil != nil {
		set("donor_until", nullTime(*request.DonorUntil))
	}
	if request.TeamID != nil {
		set("team_id", nullInt64(*request.TeamID))
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := t.db.ExecContext(ctx,
		t.db.Rebind(`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	return Error.Wrap(err)
}

func (t *usersTable) UpdateLastVisit(ctx context.Context, id int64, at time.Time) error {
	_, err := t.db.ExecContext(ctx,
		t.db.Rebind(`UPDATE users SET last_visit_at = ? WHERE id = ?`), at, id)
	return Error.Wrap(err)
}

func (t *usersTable) Count(ctx context.Context) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, Error.Wrap(err)
}

func (t *usersTable) ListByIDs(ctx context.Context, ids []int64) ([]*users.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := t.db.inQuery(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*users.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, user)
	}
	return list, Error.Wrap(rows.Err())
}

type statisticsTable struct {
	db *arcadeDB
}

const statsColumns = `user_id, ruleset, total_score, ranked_score, pp, hit_accuracy,
	play_count, play_time, total_hits, max_combo, count_xh, count_x, count_sh, count_s, count_a,
	level, level_progress, global_rank, country_rank, replays_watched, is_ranked`

func scanStatistics(row interface{ Scan(...any) error }) (*users.UserStatistics, error) {
	var stats users.UserStatistics
	var ruleset int
	err := row.Scan(&stats.UserID, &ruleset, &stats.TotalScore, &stats.RankedScore,
		&stats.PP, &stats.HitAccuracy, &stats.PlayCount, &stats.PlayTime, &stats.TotalHits,
		&stats.MaxCombo, &stats.CountXH, &stats.CountX, &stats.CountSH, &stats.CountS,
		&stats.CountA, &stats.Level, &stats.LevelProgress, &stats.GlobalRank,
		&stats.CountryRank, &stats.ReplaysWatched, &stats.IsRanked)
	if err != nil {
		return nil, err
	}
	stats.Ruleset = rulesets.ID(ruleset)
	return &stats, nil
}

func (t *statisticsTable) Get(ctx context.Context, userID int64, ruleset rulesets.ID) (*users.UserStatistics, error) {
	row := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT `+statsColumns+` FROM user_statistics WHERE user_id = ? AND ruleset = ?`),
		userID, int(ruleset))
	stats, err := scanStatistics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound.New("statistics %d/%d", userID, int(ruleset))
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return stats, nil
}

func (t *statisticsTable) GetAll(ctx context.Context, userID int64) ([]*users.UserStatistics, error) {
	return t.list(ctx, `SELECT `+statsColumns+` FROM user_statistics WHERE user_id = ? ORDER BY ruleset`, userID)
}

func (t *statisticsTable) list(ctx context.Context, query string, args ...any) ([]*users.UserStatistics, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(query), args...)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*users.UserStatistics
	for rows.Next() {
		stats, err := scanStatistics(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, stats)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *statisticsTable) Insert(ctx context.Context, userID int64, ruleset rulesets.ID) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO user_statistics (user_id, ruleset, level) VALUES (?, ?, 1)
		ON CONFLICT (user_id, ruleset) DO NOTHING`),
		userID, int(ruleset))
	return Error.Wrap(err)
}

func (t *statisticsTable) Update(ctx context.Context, stats *users.UserStatistics) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE user_statistics SET
			total_score = ?, ranked_score = ?, pp = ?, hit_accuracy = ?,
			play_count = ?, play_time = ?, total_hits = ?, max_combo = ?,
			count_xh = ?, count_x = ?, count_sh = ?, count_s = ?, count_a = ?,
			level = ?, level_progress = ?, global_rank = ?, country_rank = ?,
			replays_watched = ?, is_ranked = ?
		WHERE user_id = ? AND ruleset = ?`),
		stats.TotalScore, stats.RankedScore, stats.PP, stats.HitAccuracy,
		stats.PlayCount, stats.PlayTime, stats.TotalHits, stats.MaxCombo,
		stats.CountXH, stats.CountX, stats.CountSH, stats.CountS, stats.CountA,
		stats.Level, stats.LevelProgress, stats.GlobalRank, stats.CountryRank,
		stats.ReplaysWatched, stats.IsRanked,
		stats.UserID, int(stats.Ruleset))
	return Error.Wrap(err)
}

func (t *statisticsTable) GlobalRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error) {
	stats, err := t.Get(ctx, userID, ruleset)
	if err != nil {
		if users.ErrNotFound.Has(err) {
			return 0, nil
		}
		return 0, err
	}
	if !stats.IsRanked || stats.PP <= 0 {
		return 0, nil
	}
	var ahead int64
	err = t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT COUNT(*) FROM user_statistics
		WHERE ruleset = ? AND is_ranked AND (pp > ? OR (pp = ? AND user_id < ?))`),
		int(ruleset), stats.PP, stats.PP, userID).Scan(&ahead)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return ahead + 1, nil
}

func (t *statisticsTable) CountryRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error) {
	stats, err := t.Get(ctx, userID, ruleset)
	if err != nil {
		if users.ErrNotFound.Has(err) {
			return 0, nil
		}
		return 0, err
	}
	if !stats.IsRanked || stats.PP <= 0 {
		return 0, nil
	}
	var ahead int64
	err = t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT COUNT(*) FROM user_statistics s
		JOIN users u ON u.id = s.user_id
		WHERE s.ruleset = ? AND s.is_ranked
			AND u.country = (SELECT country FROM users WHERE id = ?)
			AND (s.pp > ? OR (s.pp = ? AND s.user_id < ?))`),
		int(ruleset), userID, stats.PP, stats.PP, userID).Scan(&ahead)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return ahead + 1, nil
}

func (t *statisticsTable) TopByPP(ctx context.Context, ruleset rulesets.ID, limit, offset int) ([]*users.UserStatistics, error) {
	return t.list(ctx, `
		SELECT `+statsColumns+` FROM user_statistics
		WHERE ruleset = ? AND is_ranked
		ORDER BY pp DESC, user_id LIMIT ? OFFSET ?`,
		int(ruleset), limit, offset)
}

func (t *statisticsTable) TopByRankedScore(ctx context.Context, ruleset rulesets.ID, limit, offset int) ([]*users.UserStatistics, error) {
	return t.list(ctx, `
		SELECT `+statsColumns+` FROM user_statistics
		WHERE ruleset = ? AND is_ranked
		ORDER BY ranked_score DESC, user_id LIMIT ? OFFSET ?`,
		int(ruleset), limit, offset)
}

func (t *statisticsTable) CountRanked(ctx context.Context, ruleset rulesets.ID) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT COUNT(*) FROM user_statistics WHERE ruleset = ? AND is_ranked`),
		int(ruleset)).Scan(&count)
	return count, Error.Wrap(err)
}

func (t *statisticsTable) TopByPPInCountry(ctx context.Context, ruleset rulesets.ID, country string, limit, offset int) ([]*users.UserStatistics, error) {
	return t.list(ctx, `
		SELECT `+prefixColumns(statsColumns, "s")+` FROM user_statistics s
		JOIN users u ON u.id = s.user_id
		WHERE s.ruleset = ? AND s.is_ranked AND u.country = ?
		ORDER BY s.pp DESC, s.user_id LIMIT ? OFFSET ?`,
		int(ruleset), country, limit, offset)
}

func (t *statisticsTable) TopByRankedScoreInCountry(ctx context.Context, ruleset rulesets.ID, country string, limit, offset int) ([]*users.UserStatistics, error) {
	return t.list(ctx, `
		SELECT `+prefixColumns(statsColumns, "s")+` FROM user_statistics s
		JOIN users u ON u.id = s.user_id
		WHERE s.ruleset = ? AND s.is_ranked AND u.country = ?
		ORDER BY s.ranked_score DESC, s.user_id LIMIT ? OFFSET ?`,
		int(ruleset), country, limit, offset)
}

func (t *statisticsTable) CountRankedInCountry(ctx context.Context, ruleset rulesets.ID, country string) (int64, error) {
	var count int64
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT COUNT(*) FROM user_statistics s
		JOIN users u ON u.id = s.user_id
		WHERE s.ruleset = ? AND s.is_ranked AND u.country = ?`),
		int(ruleset), country).Scan(&count)
	return count, Error.Wrap(err)
}

func (t *statisticsTable) AggregateByCountry(ctx context.Context, ruleset rulesets.ID, byScore bool, limit, offset int) ([]*users.CountryAggregate, error) {
	order := "SUM(s.pp) DESC"
	if byScore {
		order = "SUM(s.ranked_score) DESC"
	}
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT u.country, COUNT(*), SUM(s.play_count), SUM(s.ranked_score), SUM(s.pp)
		FROM user_statistics s
		JOIN users u ON u.id = s.user_id
		WHERE s.ruleset = ? AND s.is_ranked
		GROUP BY u.country
		ORDER BY `+order+`, u.country LIMIT ? OFFSET ?`),
		int(ruleset), limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*users.CountryAggregate
	for rows.Next() {
		var agg users.CountryAggregate
		if err := rows.Scan(&agg.Country, &agg.ActiveUsers, &agg.PlayCount, &agg.RankedScore, &agg.Performance); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &agg)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *statisticsTable) AggregateByTeam(ctx context.Context, ruleset rulesets.ID, byScore bool, limit, offset int) ([]*users.TeamAggregate, error) {
	order := "SUM(s.pp) DESC"
	if byScore {
		order = "SUM(s.ranked_score) DESC"
	}
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT u.team_id, COUNT(*), SUM(s.play_count), SUM(s.ranked_score), SUM(s.pp)
		FROM user_statistics s
		JOIN users u ON u.id = s.user_id
		WHERE s.ruleset = ? AND s.is_ranked AND u.team_id IS NOT NULL
		GROUP BY u.team_id
		ORDER BY `+order+`, u.team_id LIMIT ? OFFSET ?`),
		int(ruleset), limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*users.TeamAggregate
	for rows.Next() {
		var agg users.TeamAggregate
		if err := rows.Scan(&agg.TeamID, &agg.Members, &agg.PlayCount, &agg.RankedScore, &agg.Performance); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &agg)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *statisticsTable) IncrementReplaysWatched(ctx context.Context, userID int64, ruleset rulesets.ID) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		UPDATE user_statistics SET replays_watched = replays_watched + 1
		WHERE user_id = ? AND ruleset = ?`),
		userID, int(ruleset))
	return Error.Wrap(err)
}

// prefixColumns qualifies a comma separated column list with a table
// alias for joined queries.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

type relationshipsTable struct {
	db *arcadeDB
}

func (t *relationshipsTable) Upsert(ctx context.Context, userID, targetID int64, kind users.RelationKind) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO relationships (user_id, target_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, target_id) DO UPDATE SET kind = EXCLUDED.kind`),
		userID, targetID, string(kind), time.Now().UTC())
	return Error.Wrap(err)
}

func (t *relationshipsTable) Delete(ctx context.Context, userID, targetID int64, kind users.RelationKind) error {
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`DELETE FROM relationships WHERE user_id = ? AND target_id = ? AND kind = ?`),
		userID, targetID, string(kind))
	return Error.Wrap(err)
}

func (t *relationshipsTable) Get(ctx context.Context, userID, targetID int64) (*users.Relationship, error) {
	var rel users.Relationship
	var kind string
	err := t.db.QueryRowContext(ctx, t.db.Rebind(`
		SELECT user_id, target_id, kind, created_at FROM relationships
		WHERE user_id = ? AND target_id = ?`),
		userID, targetID).Scan(&rel.UserID, &rel.TargetID, &kind, &rel.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound.New("relationship %d->%d", userID, targetID)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	rel.Kind = users.RelationKind(kind)
	if rel.Kind == users.RelationFriend {
		back, err := t.Get(ctx, targetID, userID)
		if err == nil && back.Kind == users.RelationFriend {
			rel.Mutual = true
		}
	}
	return &rel, nil
}

func (t *relationshipsTable) List(ctx context.Context, userID int64, kind users.RelationKind) ([]*users.Relationship, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT r.user_id, r.target_id, r.kind, r.created_at,
			EXISTS (
				SELECT 1 FROM relationships b
				WHERE b.user_id = r.target_id AND b.target_id = r.user_id AND b.kind = r.kind
			)
		FROM relationships r
		WHERE r.user_id = ? AND r.kind = ?
		ORDER BY r.created_at, r.target_id`),
		userID, string(kind))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*users.Relationship
	for rows.Next() {
		var rel users.Relationship
		var rowKind string
		var mutual bool
		if err := rows.Scan(&rel.UserID, &rel.TargetID, &rowKind, &rel.CreatedAt, &mutual); err != nil {
			return nil, Error.Wrap(err)
		}
		rel.Kind = users.RelationKind(rowKind)
		rel.Mutual = rel.Kind == users.RelationFriend && mutual
		list = append(list, &rel)
	}
	return list, Error.Wrap(rows.Err())
}

func (t *relationshipsTable) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(`
		SELECT target_id FROM relationships WHERE user_id = ? AND kind = ? ORDER BY target_id`),
		userID, string(users.RelationFriend))
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

type teamsTable struct {
	db *arcadeDB
}

func (t *teamsTable) Get(ctx context.Context, id int64) (*users.Team, error) {
	var team users.Team
	err := t.db.QueryRowContext(ctx, t.db.Rebind(
		`SELECT id, name, short_name, leader_id, created_at FROM teams WHERE id = ?`),
		id).Scan(&team.ID, &team.Name, &team.ShortName, &team.LeaderID, &team.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound.New("team %d", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &team, nil
}

func (t *teamsTable) Insert(ctx context.Context, team *users.Team) (*users.Team, error) {
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}
	id, err := t.db.execInsertID(ctx, `
		INSERT INTO teams (name, short_name, leader_id, created_at) VALUES (?, ?, ?, ?)`,
		team.Name, team.ShortName, team.LeaderID, team.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	team.ID = id
	return team, nil
}

func (t *teamsTable) MemberIDs(ctx context.Context, teamID int64) ([]int64, error) {
	rows, err := t.db.QueryContext(ctx, t.db.Rebind(
		`SELECT id FROM users WHERE team_id = ? ORDER BY id`), teamID)
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

func (t *teamsTable) SetMembership(ctx context.Context, userID int64, teamID int64) error {
	var value sql.NullInt64
	if teamID != 0 {
		value = sql.NullInt64{Int64: teamID, Valid: true}
	}
	_, err := t.db.ExecContext(ctx, t.db.Rebind(
		`UPDATE users SET team_id = ? WHERE id = ?`), value, userID)
	return Error.Wrap(err)
}

func (t *teamsTable) List(ctx context.Context) ([]*users.Team, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, name, short_name, leader_id, created_at FROM teams ORDER BY id`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	var list []*users.Team
	for rows.Next() {
		var team users.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.ShortName, &team.LeaderID, &team.CreatedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &team)
	}
	return list, Error.Wrap(rows.Err())
}
