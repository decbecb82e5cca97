// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package arcadedb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/arcade"
	"tempora.dev/tempora/arcade/arcadedb/testdb"
	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/internal/testcontext"
)

func newUser(ctx *testcontext.Context, t *testing.T, db arcade.DB, username string) *users.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	user := &users.User{
		Username:       username,
		Email:          username + "@example.com",
		PasswordDigest: []byte("digest"),
		Country:        "DE",
		Privileges:     users.PrivilegeNormal,
		CreatedAt:      now,
		LastVisitAt:    now,
	}
	require.NoError(t, db.Users().Users().Insert(ctx, user))
	return user
}

func TestUsers(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		user := newUser(ctx, t, db, "alice")
		require.NotZero(t, user.ID)

		got, err := db.Users().Users().Get(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", got.Username)
		require.Equal(t, "DE", got.Country)
		require.Nil(t, got.TeamID)

		_, err = db.Users().Users().Get(ctx, 9999)
		require.True(t, users.ErrNotFound.Has(err))

		byName, err := db.Users().Users().GetByUsernameOrEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, user.ID, byName.ID)

		newName := "alicia"
		previous := []string{"alice"}
		require.NoError(t, db.Users().Users().Update(ctx, user.ID, users.UpdateUserRequest{
			Username:          &newName,
			PreviousUsernames: &previous,
		}))

		got, err = db.Users().Users().Get(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "alicia", got.Username)
		require.Equal(t, []string{"alice"}, got.PreviousUsernames)

		hue := 120
		huePtr := &hue
		require.NoError(t, db.Users().Users().Update(ctx, user.ID, users.UpdateUserRequest{
			ProfileHue: &huePtr,
		}))
		got, err = db.Users().Users().Get(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ProfileHue)
		require.Equal(t, 120, *got.ProfileHue)

		var noHue *int
		require.NoError(t, db.Users().Users().Update(ctx, user.ID, users.UpdateUserRequest{
			ProfileHue: &noHue,
		}))
		got, err = db.Users().Users().Get(ctx, user.ID)
		require.NoError(t, err)
		require.Nil(t, got.ProfileHue)

		count, err := db.Users().Users().Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})
}

func TestStatisticsRanks(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		stats := db.Users().Statistics()

		first := newUser(ctx, t, db, "first")
		second := newUser(ctx, t, db, "second")

		for _, user := range []*users.User{first, second} {
			for _, ruleset := range rulesets.All() {
				require.NoError(t, stats.Insert(ctx, user.ID, ruleset))
			}
			rows, err := stats.GetAll(ctx, user.ID)
			require.NoError(t, err)
			require.Len(t, rows, len(rulesets.All()))
		}

		// inserting again must not duplicate rows
		require.NoError(t, stats.Insert(ctx, first.ID, rulesets.Osu))
		rows, err := stats.GetAll(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, rows, len(rulesets.All()))

		update := func(userID int64, pp float64) {
			row, err := stats.Get(ctx, userID, rulesets.Osu)
			require.NoError(t, err)
			row.PP = pp
			row.RankedScore = int64(pp * 1000)
			row.IsRanked = true
			require.NoError(t, stats.Update(ctx, row))
		}
		update(first.ID, 500)
		update(second.ID, 900)

		rank, err := stats.GlobalRank(ctx, second.ID, rulesets.Osu)
		require.NoError(t, err)
		require.Equal(t, int64(1), rank)

		rank, err = stats.GlobalRank(ctx, first.ID, rulesets.Osu)
		require.NoError(t, err)
		require.Equal(t, int64(2), rank)

		rank, err = stats.CountryRank(ctx, first.ID, rulesets.Osu)
		require.NoError(t, err)
		require.Equal(t, int64(2), rank)

		top, err := stats.TopByPP(ctx, rulesets.Osu, 10, 0)
		require.NoError(t, err)
		require.Len(t, top, 2)
		require.Equal(t, second.ID, top[0].UserID)

		aggregates, err := stats.AggregateByCountry(ctx, rulesets.Osu, false, 10, 0)
		require.NoError(t, err)
		require.Len(t, aggregates, 1)
		require.Equal(t, "DE", aggregates[0].Country)
		require.Equal(t, int64(2), aggregates[0].ActiveUsers)
		require.Equal(t, float64(1400), aggregates[0].Performance)
	})
}

func TestRelationshipsMutual(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		relationships := db.Users().Relationships()

		alice := newUser(ctx, t, db, "alice")
		bob := newUser(ctx, t, db, "bob")

		require.NoError(t, relationships.Upsert(ctx, alice.ID, bob.ID, users.RelationFriend))

		rel, err := relationships.Get(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		require.False(t, rel.Mutual)

		require.NoError(t, relationships.Upsert(ctx, bob.ID, alice.ID, users.RelationFriend))

		rel, err = relationships.Get(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		require.True(t, rel.Mutual)

		// switching kind replaces the edge
		require.NoError(t, relationships.Upsert(ctx, alice.ID, bob.ID, users.RelationBlock))
		friends, err := relationships.FriendIDs(ctx, alice.ID)
		require.NoError(t, err)
		require.Empty(t, friends)

		blocks, err := relationships.List(ctx, alice.ID, users.RelationBlock)
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		require.Equal(t, bob.ID, blocks[0].TargetID)
	})
}

func TestScoreTokenSingleShot(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		tokens := db.Scores().Tokens()

		token := &scores.Token{UserID: 1, BeatmapID: 7, Ruleset: rulesets.Osu}
		require.NoError(t, tokens.Insert(ctx, token))
		require.NotZero(t, token.ID)

		got, err := tokens.Get(ctx, token.ID)
		require.NoError(t, err)
		require.False(t, got.Redeemed())

		require.NoError(t, tokens.SetScore(ctx, token.ID, 42))

		// a second redemption must fail
		err = tokens.SetScore(ctx, token.ID, 43)
		require.Error(t, err)

		got, err = tokens.Get(ctx, token.ID)
		require.NoError(t, err)
		require.True(t, got.Redeemed())
		require.Equal(t, int64(42), *got.ScoreID)
	})
}

func TestBestScoreTies(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		bests := db.Scores().Bests()
		now := time.Now().UTC().Truncate(time.Second)

		for i, userID := range []int64{1, 2, 3} {
			require.NoError(t, bests.Upsert(ctx, &scores.BestScore{
				UserID:    userID,
				BeatmapID: 7,
				Ruleset:   rulesets.Osu,
				ScoreID:   int64(10 + i),
				// users 1 and 2 tie, user 3 trails
				TotalScore: []int64{1000, 1000, 500}[i],
				Rank:       rulesets.GradeS,
				EndedAt:    now,
			}))
		}

		top, err := bests.Top(ctx, 7, rulesets.Osu, 10)
		require.NoError(t, err)
		require.Len(t, top, 3)
		// the tie resolves to the earlier score id
		require.Equal(t, int64(10), top[0].ScoreID)
		require.Equal(t, int64(11), top[1].ScoreID)

		position, err := bests.Position(ctx, top[1])
		require.NoError(t, err)
		require.Equal(t, int64(2), position)

		position, err = bests.Position(ctx, top[2])
		require.NoError(t, err)
		require.Equal(t, int64(3), position)
	})
}

func TestPPBestTrim(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		ppBests := db.Scores().PPBests()

		for i := 1; i <= 5; i++ {
			require.NoError(t, ppBests.Upsert(ctx, &scores.PPBest{
				UserID:    1,
				Ruleset:   rulesets.Osu,
				ScoreID:   int64(i),
				BeatmapID: int64(100 + i),
				PP:        float64(i * 10),
			}))
		}

		require.NoError(t, ppBests.Trim(ctx, 1, rulesets.Osu, 3))

		list, err := ppBests.ListByUser(ctx, 1, rulesets.Osu, 10)
		require.NoError(t, err)
		require.Len(t, list, 3)
		require.Equal(t, float64(50), list[0].PP)
		require.Equal(t, float64(30), list[2].PP)
	})
}

func TestChatMessages(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		channel := &chat.Channel{Name: "#general", Type: chat.TypePublic}
		require.NoError(t, db.Chat().Channels().Insert(ctx, channel))
		require.NotZero(t, channel.ID)

		_, err := db.Chat().Channels().GetByName(ctx, "#missing")
		require.True(t, chat.ErrNotFound.Has(err))

		now := time.Now().UTC().Truncate(time.Second)
		batch := []*chat.Message{
			{ID: 1, ChannelID: channel.ID, SenderID: 1, Content: "one", Type: chat.MessagePlain, CreatedAt: now},
			{ID: 2, ChannelID: channel.ID, SenderID: 2, Content: "two", Type: chat.MessagePlain, CreatedAt: now},
		}
		require.NoError(t, db.Chat().Messages().InsertBatch(ctx, batch))

		// replaying a flushed batch skips existing ids
		require.NoError(t, db.Chat().Messages().InsertBatch(ctx, batch))

		max, err := db.Chat().Messages().MaxID(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), max)

		list, err := db.Chat().Messages().ListBefore(ctx, channel.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, int64(2), list[0].ID)

		list, err = db.Chat().Messages().ListBefore(ctx, channel.ID, 2, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, int64(1), list[0].ID)
	})
}

func TestSilences(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		silences := db.Chat().Silences()
		now := time.Now().UTC()

		expired := now.Add(-time.Hour)
		require.NoError(t, silences.Insert(ctx, &chat.Silence{
			UserID: 1, ChannelID: 5, Reason: "spam", ExpiresAt: &expired,
		}))

		_, err := silences.ActiveFor(ctx, 1, 5, now)
		require.True(t, chat.ErrNotFound.Has(err))

		future := now.Add(time.Hour)
		require.NoError(t, silences.Insert(ctx, &chat.Silence{
			UserID: 1, ChannelID: 5, Reason: "spam again", ExpiresAt: &future,
		}))

		active, err := silences.ActiveFor(ctx, 1, 5, now)
		require.NoError(t, err)
		require.Equal(t, "spam again", active.Reason)

		since, err := silences.ListSince(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, since, 2)

		require.NoError(t, silences.Delete(ctx, active.ID))
		_, err = silences.ActiveFor(ctx, 1, 5, now)
		require.True(t, chat.ErrNotFound.Has(err))
	})
}

func TestRankHistory(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		history := db.Activity().RankHistory()
		day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

		require.NoError(t, history.Record(ctx, 1, rulesets.Osu, day, 120))
		// same day replaces, later time of day included
		require.NoError(t, history.Record(ctx, 1, rulesets.Osu, day.Add(5*time.Hour), 100))
		require.NoError(t, history.Record(ctx, 1, rulesets.Osu, day.AddDate(0, 0, 1), 90))

		ranks, err := history.Recent(ctx, 1, rulesets.Osu, 90)
		require.NoError(t, err)
		require.Equal(t, []int64{100, 90}, ranks)

		require.NoError(t, history.UpdateBestRank(ctx, 1, rulesets.Osu, 100))
		require.NoError(t, history.UpdateBestRank(ctx, 1, rulesets.Osu, 90))
		// a worse rank never raises the mark
		require.NoError(t, history.UpdateBestRank(ctx, 1, rulesets.Osu, 300))

		best, err := history.BestRank(ctx, 1, rulesets.Osu)
		require.NoError(t, err)
		require.Equal(t, int64(90), best)
	})
}

func TestDailyChallengeStats(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		challenge := db.Rooms().DailyChallenge()

		// a fresh account gets a zero row
		stats, err := challenge.Get(ctx, 1)
		require.NoError(t, err)
		require.Zero(t, stats.DailyStreakCurrent)
		require.True(t, stats.LastPlayedOn.IsZero())

		stats.DailyStreakCurrent = 3
		stats.DailyStreakBest = 3
		stats.PlayCount = 3
		stats.LastPlayedOn = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
		require.NoError(t, challenge.Update(ctx, stats))

		stats, err = challenge.Get(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, 3, stats.DailyStreakCurrent)
		require.Equal(t, int64(3), stats.PlayCount)
		require.False(t, stats.LastPlayedOn.IsZero())
	})
}
