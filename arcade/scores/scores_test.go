// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
)

func TestScoreBetter(t *testing.T) {
	a := &scores.Score{ID: 1, TotalScore: 900000}
	b := &scores.Score{ID: 2, TotalScore: 950000}
	require.True(t, b.Better(a))
	require.False(t, a.Better(b))

	// equal totals go to the earlier submission
	c := &scores.Score{ID: 3, TotalScore: 900000}
	require.True(t, a.Better(c))
	require.False(t, c.Better(a))
}

func TestTokenRedeemed(t *testing.T) {
	token := &scores.Token{ID: 1, UserID: 2}
	require.False(t, token.Redeemed())

	scoreID := int64(99)
	token.ScoreID = &scoreID
	require.True(t, token.Redeemed())
}

func TestSubmissionValidate(t *testing.T) {
	valid := func() *scores.SubmissionInfo {
		return &scores.SubmissionInfo{
			Rank:       rulesets.GradeA,
			TotalScore: 700000,
			Accuracy:   0.93,
			MaxCombo:   312,
			Passed:     true,
			EndedAt:    time.Now(),
		}
	}
	require.NoError(t, valid().Validate())

	info := valid()
	info.TotalScore = -1
	require.True(t, scores.ErrValidation.Has(info.Validate()))

	info = valid()
	info.Accuracy = 1.2
	require.True(t, scores.ErrValidation.Has(info.Validate()))

	info = valid()
	info.MaxCombo = -5
	require.True(t, scores.ErrValidation.Has(info.Validate()))

	info = valid()
	info.Rank = "Z"
	require.True(t, scores.ErrValidation.Has(info.Validate()))

	info = valid()
	info.EndedAt = time.Time{}
	require.True(t, scores.ErrValidation.Has(info.Validate()))
}

func TestListKindValid(t *testing.T) {
	for _, kind := range []scores.ListKind{scores.ListRecent, scores.ListBest, scores.ListFirsts, scores.ListPinned} {
		require.True(t, kind.Valid())
	}
	require.False(t, scores.ListKind("weird").Valid())
}

func TestLeaderboardTypeValid(t *testing.T) {
	for _, typ := range []scores.LeaderboardType{
		scores.LeaderboardGlobal, scores.LeaderboardCountry,
		scores.LeaderboardFriends, scores.LeaderboardTeam,
	} {
		require.True(t, typ.Valid())
	}
	require.False(t, scores.LeaderboardType("everyone").Valid())
}
