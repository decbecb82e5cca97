// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade"
	"tempora.dev/tempora/arcade/arcadedb/testdb"
	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/medals"
	"tempora.dev/tempora/arcade/performance"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/internal/testcontext"
	"tempora.dev/tempora/storage/redis"
	"tempora.dev/tempora/storage/redis/redisserver"
)

// rawSource serves canned ".osu" bodies; the mirror paths that would
// reach upstream for metadata are never taken because every test seeds
// the beatmap rows directly.
type rawSource struct {
	raw map[int64][]byte
}

func (s *rawSource) Beatmapset(ctx context.Context, id int64) (*beatmaps.Beatmapset, error) {
	return nil, beatmaps.ErrNotFound.New("beatmapset %d", id)
}

func (s *rawSource) BeatmapsetForBeatmap(ctx context.Context, beatmapID int64) (*beatmaps.Beatmapset, error) {
	return nil, beatmaps.ErrNotFound.New("beatmap %d", beatmapID)
}

func (s *rawSource) BeatmapsetForChecksum(ctx context.Context, checksum string) (*beatmaps.Beatmapset, error) {
	return nil, beatmaps.ErrNotFound.New("checksum %s", checksum)
}

func (s *rawSource) Search(ctx context.Context, query, cursor string) (*beatmaps.SearchResult, error) {
	return &beatmaps.SearchResult{}, nil
}

func (s *rawSource) RawBeatmap(ctx context.Context, beatmapID int64) ([]byte, error) {
	raw, ok := s.raw[beatmapID]
	if !ok {
		return nil, beatmaps.ErrNotFound.New("raw %d", beatmapID)
	}
	return raw, nil
}

// cleanOsu is a tiny well-formed difficulty the analyzer has no
// objections to.
const cleanOsu = `osu file format v14

[Difficulty]
CircleSize:4

[HitObjects]
100,100,1000,1
200,200,2000,1
300,100,3500,1
`

// stackedOsu puts two circles on the same millisecond outside mania,
// which the analyzer flags.
const stackedOsu = `osu file format v14

[Difficulty]
CircleSize:4

[HitObjects]
100,100,1000,1
100,100,1000,1
200,200,2500,1
`

func newPipeline(ctx *testcontext.Context, t *testing.T, db arcade.DB, source beatmaps.Source) *scores.Service {
	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	t.Cleanup(cleanup)

	client, err := redis.NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	log := zaptest.NewLogger(t)

	beatmapSvc, err := beatmaps.NewService(log, db.Beatmaps(), client, client, source, beatmaps.Config{
		CacheTTL: time.Minute,
		RawTTL:   time.Hour,
		Analyzer: beatmaps.AnalyzerConfig{
			MaxLength:        24 * time.Hour,
			MaxObjects:       500000,
			MaxObjectsTaiko:  30000,
			DensityPer1s:     200,
			DensityPer10s:    500,
			MaxSliderRepeats: 5000,
		},
	})
	require.NoError(t, err)

	perf := performance.NewService(log, nil, client, performance.Config{FallbackEnabled: true})
	medalSvc := medals.NewService(log, db.Achievements())
	events := eventhub.NewHub(log)
	ucache := users.NewCache(log, client, time.Minute)

	service, err := scores.NewService(log, db.Scores(), db.Users(), ucache, beatmapSvc, perf, medalSvc, events, client, nil, scores.Config{
		PreloadRaw:     false,
		PPBestKeep:     100,
		LeaderboardTop: 50,
		ScoresCacheTTL: time.Minute,
		RecentCacheTTL: time.Minute,
		SyncProcessing: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Close() })
	return service
}

func seedPlayer(ctx *testcontext.Context, t *testing.T, db arcade.DB, username, country string) *users.User {
	user := &users.User{
		Username:    username,
		Email:       username + "@example.test",
		Country:     country,
		CreatedAt:   time.Now().UTC(),
		LastVisitAt: time.Now().UTC(),
	}
	require.NoError(t, db.Users().Users().Insert(ctx, user))
	require.NoError(t, db.Users().Statistics().Insert(ctx, user.ID, rulesets.Osu))
	return user
}

func seedDifficulty(ctx *testcontext.Context, t *testing.T, db arcade.DB, id int64, checksum string, stars float64) *beatmaps.Beatmap {
	require.NoError(t, db.Beatmaps().Beatmapsets().Upsert(ctx, &beatmaps.Beatmapset{
		ID:          id,
		Title:       "seeded",
		Artist:      "seeded",
		Creator:     "seeder",
		Status:      beatmaps.StatusRanked,
		LastUpdated: time.Now().UTC(),
	}))
	beatmap := &beatmaps.Beatmap{
		ID:           id,
		BeatmapsetID: id,
		Checksum:     checksum,
		Version:      "Normal",
		Ruleset:      rulesets.Osu,
		Status:       beatmaps.StatusRanked,
		TotalLength:  60,
		HitLength:    55,
		CS:           4,
		StarRating:   stars,
		LastUpdated:  time.Now().UTC(),
		SyncedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.Beatmaps().Beatmaps().Upsert(ctx, beatmap))
	return beatmap
}

func passedPlay(total int64) *scores.SubmissionInfo {
	return &scores.SubmissionInfo{
		Rank:       rulesets.GradeS,
		TotalScore: total,
		Accuracy:   0.97,
		MaxCombo:   120,
		Passed:     true,
		Statistics: rulesets.Statistics{rulesets.HitGreat: 120},
		MaximumStatistics: rulesets.Statistics{
			rulesets.HitGreat: 120,
		},
		EndedAt: time.Now().UTC(),
	}
}

func reserve(ctx *testcontext.Context, t *testing.T, service *scores.Service, userID int64, checksum string) *scores.Token {
	token, err := service.CreateToken(ctx, userID, scores.TokenRequest{
		BeatmapChecksum: checksum,
		Ruleset:         rulesets.Osu,
	})
	require.NoError(t, err)
	return token
}

func TestSubmitRedeemsTokenOnce(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		source := &rawSource{raw: map[int64][]byte{10: []byte(cleanOsu)}}
		service := newPipeline(ctx, t, db, source)

		player := seedPlayer(ctx, t, db, "redeemer", "DE")
		seedDifficulty(ctx, t, db, 10, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 5.2)

		token := reserve(ctx, t, service, player.ID, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

		score, err := service.Submit(ctx, player.ID, token.ID, passedPlay(700_000))
		require.NoError(t, err)
		require.Equal(t, player.ID, score.UserID)
		require.Greater(t, score.PPValue(), 0.0)

		// re-submitting the same token hands back the original score,
		// even when the body claims a different result
		again, err := service.Submit(ctx, player.ID, token.ID, passedPlay(999_999))
		require.NoError(t, err)
		require.Equal(t, score.ID, again.ID)
		require.Equal(t, int64(700_000), again.TotalScore)

		count, err := db.Scores().Scores().CountByUser(ctx, player.ID, rulesets.Osu)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)

		// the fan-out must not have run twice either
		stats, err := db.Users().Statistics().Get(ctx, player.ID, rulesets.Osu)
		require.NoError(t, err)
		require.Equal(t, int64(1), stats.PlayCount)

		// a token cannot be redeemed by someone else
		other := seedPlayer(ctx, t, db, "intruder", "DE")
		stolen := reserve(ctx, t, service, player.ID, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		_, err = service.Submit(ctx, other.ID, stolen.ID, passedPlay(1))
		require.True(t, scores.ErrTokenMismatch.Has(err))
	})
}

func TestLeaderboardOvertake(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		source := &rawSource{raw: map[int64][]byte{20: []byte(cleanOsu)}}
		service := newPipeline(ctx, t, db, source)

		alice := seedPlayer(ctx, t, db, "alice", "DE")
		bob := seedPlayer(ctx, t, db, "bob", "FR")
		seedDifficulty(ctx, t, db, 20, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 4.1)

		submit := func(userID, total int64) *scores.Score {
			token := reserve(ctx, t, service, userID, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
			score, err := service.Submit(ctx, userID, token.ID, passedPlay(total))
			require.NoError(t, err)
			return score
		}

		submit(alice.ID, 400_000)
		submit(bob.ID, 500_000)

		board, err := service.Leaderboard(ctx, scores.LeaderboardRequest{
			BeatmapID: 20,
			Ruleset:   rulesets.Osu,
			ViewerID:  alice.ID,
		})
		require.NoError(t, err)
		require.Len(t, board.Entries, 2)
		require.Equal(t, "bob", board.Entries[0].Username)
		require.Equal(t, int64(400_000), board.Entries[1].Best.TotalScore)
		require.NotNil(t, board.Viewer)
		require.Equal(t, int64(2), board.Viewer.Position)

		// a strictly higher pass replaces the best and busts the cached page
		submit(alice.ID, 600_000)

		board, err = service.Leaderboard(ctx, scores.LeaderboardRequest{
			BeatmapID: 20,
			Ruleset:   rulesets.Osu,
		})
		require.NoError(t, err)
		require.Len(t, board.Entries, 2)
		require.Equal(t, "alice", board.Entries[0].Username)
		require.Equal(t, int64(600_000), board.Entries[0].Best.TotalScore)

		// a worse pass leaves the projection alone
		submit(bob.ID, 300_000)

		board, err = service.Leaderboard(ctx, scores.LeaderboardRequest{
			BeatmapID: 20,
			Ruleset:   rulesets.Osu,
		})
		require.NoError(t, err)
		require.Equal(t, int64(500_000), board.Entries[1].Best.TotalScore)
	})
}

func TestSubmitSuspiciousMapZeroesPP(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		source := &rawSource{raw: map[int64][]byte{
			30: []byte(cleanOsu),
			31: []byte(stackedOsu),
		}}
		service := newPipeline(ctx, t, db, source)

		player := seedPlayer(ctx, t, db, "grinder", "JP")
		seedDifficulty(ctx, t, db, 30, "cccccccccccccccccccccccccccccccc", 6.0)
		seedDifficulty(ctx, t, db, 31, "dddddddddddddddddddddddddddddddd", 6.0)

		clean := reserve(ctx, t, service, player.ID, "cccccccccccccccccccccccccccccccc")
		cleanScore, err := service.Submit(ctx, player.ID, clean.ID, passedPlay(800_000))
		require.NoError(t, err)
		require.Greater(t, cleanScore.PPValue(), 0.0)

		// identical play on the stacked-object chart earns nothing
		stacked := reserve(ctx, t, service, player.ID, "dddddddddddddddddddddddddddddddd")
		stackedScore, err := service.Submit(ctx, player.ID, stacked.ID, passedPlay(800_000))
		require.NoError(t, err)
		require.Zero(t, stackedScore.PPValue())

		// the zero also lands in the stored row
		stored, err := db.Scores().Scores().Get(ctx, stackedScore.ID)
		require.NoError(t, err)
		require.Zero(t, stored.PPValue())
	})
}

func TestPinReorder(t *testing.T) {
	testdb.Run(t, func(ctx *testcontext.Context, t *testing.T, db arcade.DB) {
		source := &rawSource{raw: map[int64][]byte{40: []byte(cleanOsu)}}
		service := newPipeline(ctx, t, db, source)

		player := seedPlayer(ctx, t, db, "curator", "US")
		seedDifficulty(ctx, t, db, 40, "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", 3.3)

		var ids []int64
		for i := 0; i < 3; i++ {
			token := reserve(ctx, t, service, player.ID, "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
			score, err := service.Submit(ctx, player.ID, token.ID, passedPlay(int64(100_000*(i+1))))
			require.NoError(t, err)
			ids = append(ids, score.ID)
		}

		pinnedIDs := func() []int64 {
			listed, err := service.UserScores(ctx, scores.ListRequest{
				UserID:  player.ID,
				Kind:    scores.ListPinned,
				Ruleset: rulesets.Osu,
				Limit:   10,
			})
			require.NoError(t, err)
			out := make([]int64, 0, len(listed))
			for _, score := range listed {
				out = append(out, score.ID)
			}
			return out
		}

		for _, id := range ids {
			require.NoError(t, service.Pin(ctx, player.ID, id))
		}
		// pinning again is a no-op, not a duplicate
		require.NoError(t, service.Pin(ctx, player.ID, ids[0]))
		require.Equal(t, []int64{ids[0], ids[1], ids[2]}, pinnedIDs())

		// zero moves to the front
		require.NoError(t, service.ReorderPin(ctx, player.ID, ids[2], 0))
		require.Equal(t, []int64{ids[2], ids[0], ids[1]}, pinnedIDs())

		// moving after a named score slots in right behind it
		require.NoError(t, service.ReorderPin(ctx, player.ID, ids[0], ids[1]))
		require.Equal(t, []int64{ids[2], ids[1], ids[0]}, pinnedIDs())

		// anchors must themselves be pinned
		err := service.ReorderPin(ctx, player.ID, ids[0], 424242)
		require.True(t, scores.ErrValidation.Has(err))

		// unpinning closes the gap and keeps the order dense
		require.NoError(t, service.Unpin(ctx, player.ID, ids[1]))
		require.Equal(t, []int64{ids[2], ids[0]}, pinnedIDs())
		remaining, err := db.Scores().Scores().ListPinned(ctx, player.ID, rulesets.Osu)
		require.NoError(t, err)
		require.Equal(t, 1, remaining[0].PinnedOrder)
		require.Equal(t, 2, remaining[1].PinnedOrder)
	})
}
