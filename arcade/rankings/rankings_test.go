// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rankings_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/rankings"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/internal/testcontext"
	"tempora.dev/tempora/storage/redis"
	"tempora.dev/tempora/storage/redis/redisserver"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, page := range []int{1, 2, 17, 4096} {
		cursor := rankings.Cursor{Page: page}
		decoded, err := rankings.DecodeCursor(cursor.Encode())
		require.NoError(t, err)
		require.Equal(t, cursor, decoded)
	}

	// empty means first page
	decoded, err := rankings.DecodeCursor("")
	require.NoError(t, err)
	require.Equal(t, 1, decoded.Page)

	_, err = rankings.DecodeCursor("!!!not-base64!!!")
	require.True(t, rankings.ErrValidation.Has(err))

	_, err = rankings.DecodeCursor(rankings.Cursor{Page: -3}.Encode())
	require.True(t, rankings.ErrValidation.Has(err))
}

// statistics fixture

type memUserDB struct {
	users map[int64]*users.User
	stats []*users.UserStatistics
	teams map[int64]*users.Team
}

func (db *memUserDB) Users() users.Users                 { return (*memUsers)(db) }
func (db *memUserDB) Statistics() users.Statistics       { return (*memStatistics)(db) }
func (db *memUserDB) Relationships() users.Relationships { return nil }
func (db *memUserDB) Teams() users.Teams                 { return (*memTeams)(db) }

type memUsers memUserDB

func (m *memUsers) Get(ctx context.Context, id int64) (*users.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, users.ErrNotFound.New("user %d", id)
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return nil, users.ErrNotFound.New("unsupported")
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return nil, users.ErrNotFound.New("unsupported")
}

func (m *memUsers) GetByUsernameOrEmail(ctx context.Context, identifier string) (*users.User, error) {
	return nil, users.ErrNotFound.New("unsupported")
}

func (m *memUsers) Insert(ctx context.Context, user *users.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) Update(ctx context.Context, id int64, request users.UpdateUserRequest) error {
	return nil
}

func (m *memUsers) UpdateLastVisit(ctx context.Context, id int64, at time.Time) error { return nil }

func (m *memUsers) Count(ctx context.Context) (int64, error) { return int64(len(m.users)), nil }

func (m *memUsers) ListByIDs(ctx context.Context, ids []int64) ([]*users.User, error) {
	var out []*users.User
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

type memStatistics memUserDB

func (m *memStatistics) ranked(ruleset rulesets.ID, country string) []*users.UserStatistics {
	var out []*users.UserStatistics
	for _, row := range m.stats {
		if row.Ruleset != ruleset || !row.IsRanked {
			continue
		}
		if country != "" && m.users[row.UserID].Country != country {
			continue
		}
		out = append(out, row)
	}
	return out
}

func page(rows []*users.UserStatistics, limit, offset int) []*users.UserStatistics {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func (m *memStatistics) Get(ctx context.Context, userID int64, ruleset rulesets.ID) (*users.UserStatistics, error) {
	for _, row := range m.stats {
		if row.UserID == userID && row.Ruleset == ruleset {
			return row, nil
		}
	}
	return nil, users.ErrNotFound.New("statistics")
}

func (m *memStatistics) GetAll(ctx context.Context, userID int64) ([]*users.UserStatistics, error) {
	var out []*users.UserStatistics
	for _, row := range m.stats {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStatistics) Insert(ctx context.Context, userID int64, ruleset rulesets.ID) error {
	m.stats = append(m.stats, &users.UserStatistics{UserID: userID, Ruleset: ruleset})
	return nil
}

func (m *memStatistics) Update(ctx context.Context, stats *users.UserStatistics) error { return nil }

func (m *memStatistics) GlobalRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error) {
	return 0, nil
}

func (m *memStatistics) CountryRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error) {
	return 0, nil
}

func (m *memStatistics) TopByPP(ctx context.Context, ruleset rulesets.ID, limit, offset int) ([]*users.UserStatistics, error) {
	rows := m.ranked(ruleset, "")
	sort.Slice(rows, func(i, j int) bool { return rows[i].PP > rows[j].PP })
	return page(rows, limit, offset), nil
}

func (m *memStatistics) TopByRankedScore(ctx context.Context, ruleset rulesets.ID, limit, offset int) ([]*users.UserStatistics, error) {
	rows := m.ranked(ruleset, "")
	sort.Slice(rows, func(i, j int) bool { return rows[i].RankedScore > rows[j].RankedScore })
	return page(rows, limit, offset), nil
}

func (m *memStatistics) CountRanked(ctx context.Context, ruleset rulesets.ID) (int64, error) {
	return int64(len(m.ranked(ruleset, ""))), nil
}

func (m *memStatistics) TopByPPInCountry(ctx context.Context, ruleset rulesets.ID, country string, limit, offset int) ([]*users.UserStatistics, error) {
	rows := m.ranked(ruleset, country)
	sort.Slice(rows, func(i, j int) bool { return rows[i].PP > rows[j].PP })
	return page(rows, limit, offset), nil
}

func (m *memStatistics) TopByRankedScoreInCountry(ctx context.Context, ruleset rulesets.ID, country string, limit, offset int) ([]*users.UserStatistics, error) {
	rows := m.ranked(ruleset, country)
	sort.Slice(rows, func(i, j int) bool { return rows[i].RankedScore > rows[j].RankedScore })
	return page(rows, limit, offset), nil
}

func (m *memStatistics) CountRankedInCountry(ctx context.Context, ruleset rulesets.ID, country string) (int64, error) {
	return int64(len(m.ranked(ruleset, country))), nil
}

func (m *memStatistics) AggregateByCountry(ctx context.Context, ruleset rulesets.ID, byScore bool, limit, offset int) ([]*users.CountryAggregate, error) {
	byCountry := map[string]*users.CountryAggregate{}
	for _, row := range m.ranked(ruleset, "") {
		code := m.users[row.UserID].Country
		agg := byCountry[code]
		if agg == nil {
			agg = &users.CountryAggregate{Country: code}
			byCountry[code] = agg
		}
		agg.ActiveUsers++
		agg.PlayCount += row.PlayCount
		agg.RankedScore += row.RankedScore
		agg.Performance += row.PP
	}
	var out []*users.CountryAggregate
	for _, agg := range byCountry {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if byScore {
			return out[i].RankedScore > out[j].RankedScore
		}
		return out[i].Performance > out[j].Performance
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStatistics) AggregateByTeam(ctx context.Context, ruleset rulesets.ID, byScore bool, limit, offset int) ([]*users.TeamAggregate, error) {
	byTeam := map[int64]*users.TeamAggregate{}
	for _, row := range m.ranked(ruleset, "") {
		user := m.users[row.UserID]
		if user.TeamID == nil {
			continue
		}
		agg := byTeam[*user.TeamID]
		if agg == nil {
			agg = &users.TeamAggregate{TeamID: *user.TeamID}
			byTeam[*user.TeamID] = agg
		}
		agg.Members++
		agg.PlayCount += row.PlayCount
		agg.RankedScore += row.RankedScore
		agg.Performance += row.PP
	}
	var out []*users.TeamAggregate
	for _, agg := range byTeam {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if byScore {
			return out[i].RankedScore > out[j].RankedScore
		}
		return out[i].Performance > out[j].Performance
	})
	return out, nil
}

func (m *memStatistics) IncrementReplaysWatched(ctx context.Context, userID int64, ruleset rulesets.ID) error {
	return nil
}

type memTeams memUserDB

func (m *memTeams) Get(ctx context.Context, id int64) (*users.Team, error) {
	if team, ok := m.teams[id]; ok {
		return team, nil
	}
	return nil, users.ErrNotFound.New("team %d", id)
}

func (m *memTeams) Insert(ctx context.Context, team *users.Team) (*users.Team, error) {
	m.teams[team.ID] = team
	return team, nil
}

func (m *memTeams) MemberIDs(ctx context.Context, teamID int64) ([]int64, error) { return nil, nil }

func (m *memTeams) SetMembership(ctx context.Context, userID int64, teamID int64) error { return nil }

func (m *memTeams) List(ctx context.Context) ([]*users.Team, error) { return nil, nil }

func teamID(id int64) *int64 { return &id }

func fixture() *memUserDB {
	db := &memUserDB{
		users: map[int64]*users.User{
			1: {ID: 1, Username: "alpha", Country: "JP", TeamID: teamID(7)},
			2: {ID: 2, Username: "bravo", Country: "DE", TeamID: teamID(7)},
			3: {ID: 3, Username: "carol", Country: "JP"},
			4: {ID: 4, Username: "dave", Country: "DE", TeamID: teamID(8)},
		},
		teams: map[int64]*users.Team{
			7: {ID: 7, Name: "Night Shift", ShortName: "NS"},
			8: {ID: 8, Name: "Daybreak", ShortName: "DB"},
		},
	}
	db.stats = []*users.UserStatistics{
		{UserID: 1, Ruleset: rulesets.Osu, PP: 900, RankedScore: 100, PlayCount: 10, IsRanked: true},
		{UserID: 2, Ruleset: rulesets.Osu, PP: 700, RankedScore: 400, PlayCount: 20, IsRanked: true},
		{UserID: 3, Ruleset: rulesets.Osu, PP: 500, RankedScore: 300, PlayCount: 30, IsRanked: true},
		{UserID: 4, Ruleset: rulesets.Osu, PP: 300, RankedScore: 200, PlayCount: 40, IsRanked: false},
	}
	return db
}

func newTestService(t *testing.T, ctx *testcontext.Context, db *memUserDB, pageSize int) *rankings.Service {
	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	t.Cleanup(cleanup)

	client, err := redis.NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return rankings.NewService(zaptest.NewLogger(t), db, client, rankings.Config{
		PageSize: pageSize,
		CacheTTL: time.Minute,
	})
}

func TestUserRankingPages(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := fixture()
	service := newTestService(t, ctx, db, 2)

	page1, err := service.Users(ctx, rulesets.Osu, rankings.SortPerformance, "", 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), page1.Total)
	require.Len(t, page1.Entries, 2)
	require.Equal(t, "alpha", page1.Entries[0].Username)
	require.Equal(t, int64(1), page1.Entries[0].Position)
	require.NotEmpty(t, page1.Cursor)

	cursor, err := rankings.DecodeCursor(page1.Cursor)
	require.NoError(t, err)
	page2, err := service.Users(ctx, rulesets.Osu, rankings.SortPerformance, "", cursor.Page)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 1)
	require.Equal(t, "carol", page2.Entries[0].Username)
	require.Equal(t, int64(3), page2.Entries[0].Position)
	require.Empty(t, page2.Cursor)

	// score sort reorders
	byScore, err := service.Users(ctx, rulesets.Osu, rankings.SortScore, "", 1)
	require.NoError(t, err)
	require.Equal(t, "bravo", byScore.Entries[0].Username)

	// country narrows, unranked row stays out
	jp, err := service.Users(ctx, rulesets.Osu, rankings.SortPerformance, "JP", 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), jp.Total)
	require.Equal(t, "alpha", jp.Entries[0].Username)

	_, err = service.Users(ctx, rulesets.Osu, "tastiness", "", 1)
	require.True(t, rankings.ErrValidation.Has(err))
}

func TestUserRankingCacheHit(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := fixture()
	service := newTestService(t, ctx, db, 10)

	before, err := service.Users(ctx, rulesets.Osu, rankings.SortPerformance, "", 1)
	require.NoError(t, err)

	// store mutations do not show through a warm cache
	db.stats[0].PP = 1
	after, err := service.Users(ctx, rulesets.Osu, rankings.SortPerformance, "", 1)
	require.NoError(t, err)
	require.Equal(t, before.Entries[0].Username, after.Entries[0].Username)
	require.Equal(t, before.Entries[0].Stats.PP, after.Entries[0].Stats.PP)
}

func TestCountryAndTeamRankings(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := fixture()
	service := newTestService(t, ctx, db, 10)

	countries, err := service.Countries(ctx, rulesets.Osu, rankings.SortPerformance, 1)
	require.NoError(t, err)
	require.Len(t, countries, 2)
	require.Equal(t, "JP", countries[0].Country)
	require.Equal(t, int64(2), countries[0].ActiveUsers)
	require.Equal(t, float64(1400), countries[0].Performance)

	// user 4 is unranked, so team 8 has no standing
	teams, err := service.Teams(ctx, rulesets.Osu, rankings.SortScore, 1)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.Equal(t, "Night Shift", teams[0].Name)
	require.Equal(t, int64(500), teams[0].RankedScore)
}

func TestRefreshWarmsFirstPage(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := fixture()
	service := newTestService(t, ctx, db, 10)

	require.NoError(t, service.Refresh(ctx))

	// refresh already cached the page; a later store change is invisible
	db.stats[0].PP = 1
	page, err := service.Users(ctx, rulesets.Osu, rankings.SortPerformance, "", 1)
	require.NoError(t, err)
	require.Equal(t, "alpha", page.Entries[0].Username)
	require.Equal(t, float64(900), page.Entries[0].Stats.PP)
}
