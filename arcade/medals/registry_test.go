// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package medals_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/medals"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/internal/testcontext"
)

type memAchievements struct {
	rows map[int64]map[string]*medals.UserAchievement
}

func newMemAchievements() *memAchievements {
	return &memAchievements{rows: map[int64]map[string]*medals.UserAchievement{}}
}

func (m *memAchievements) Insert(ctx context.Context, a *medals.UserAchievement) error {
	if m.rows[a.UserID] == nil {
		m.rows[a.UserID] = map[string]*medals.UserAchievement{}
	}
	if _, ok := m.rows[a.UserID][a.Medal]; ok {
		return medals.Error.New("duplicate unlock")
	}
	m.rows[a.UserID][a.Medal] = a
	return nil
}

func (m *memAchievements) Has(ctx context.Context, userID int64, medal string) (bool, error) {
	_, ok := m.rows[userID][medal]
	return ok, nil
}

func (m *memAchievements) ListByUser(ctx context.Context, userID int64) ([]*medals.UserAchievement, error) {
	var out []*medals.UserAchievement
	for _, a := range m.rows[userID] {
		out = append(out, a)
	}
	return out, nil
}

func TestCheckUnlocksOnce(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := newMemAchievements()
	service := medals.NewService(zaptest.NewLogger(t), db)

	play := &medals.Play{
		UserID:   7,
		Ruleset:  rulesets.Osu,
		Passed:   true,
		Rank:     rulesets.GradeS,
		MaxCombo: 512,
		Beatmap:  &beatmaps.Beatmap{Status: beatmaps.StatusRanked, StarRating: 5.2},
	}

	unlocked, err := service.Check(ctx, play)
	require.NoError(t, err)

	slugs := map[string]bool{}
	for _, medal := range unlocked {
		slugs[medal.Slug] = true
	}
	require.True(t, slugs["pass-first"])
	require.True(t, slugs["combo-500"])
	require.True(t, slugs["star-chaser-5"])
	require.False(t, slugs["combo-1000"])
	require.False(t, slugs["perfectionist"])

	// the same play unlocks nothing new
	again, err := service.Check(ctx, play)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestCheckPlaycountMilestones(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := newMemAchievements()
	service := medals.NewService(zaptest.NewLogger(t), db)

	play := &medals.Play{
		UserID:     3,
		Ruleset:    rulesets.Taiko,
		Passed:     false,
		Rank:       rulesets.GradeF,
		Statistics: &users.UserStatistics{PlayCount: 1000},
	}
	unlocked, err := service.Check(ctx, play)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	require.Equal(t, "playcount-1000", unlocked[0].Slug)
}

func TestRegisterPluginMedal(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	service := medals.NewService(zaptest.NewLogger(t), newMemAchievements())
	service.Register(medals.Medal{Slug: "always", Name: "Always"}, func(play *medals.Play) bool {
		return true
	})

	unlocked, err := service.Check(ctx, &medals.Play{UserID: 1, Rank: rulesets.GradeF})
	require.NoError(t, err)

	var found bool
	for _, medal := range unlocked {
		found = found || medal.Slug == "always"
	}
	require.True(t, found)
}
