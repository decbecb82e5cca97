// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package users

import (
	"context"

	"tempora.dev/tempora/arcade/rulesets"
)

// Statistics exposes methods to manage per-ruleset user statistics.
//
// architecture: Database
type Statistics interface {
	// Get queries the statistics row for a user and ruleset.
	Get(ctx context.Context, userID int64, ruleset rulesets.ID) (*UserStatistics, error)
	// GetAll queries every statistics row of a user.
	GetAll(ctx context.Context, userID int64) ([]*UserStatistics, error)
	// Insert creates a zeroed statistics row.
	Insert(ctx context.Context, userID int64, ruleset rulesets.ID) error
	// Update overwrites the mutable columns of a row.
	Update(ctx context.Context, stats *UserStatistics) error
	// GlobalRank computes the 1-based rank by pp among ranked users;
	// 0 when the user has no standing.
	GlobalRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error)
	// CountryRank computes the 1-based rank by pp within the user's country.
	CountryRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error)
	// TopByPP lists user ids ordered by pp descending for a ruleset.
	TopByPP(ctx context.Context, ruleset rulesets.ID, limit, offset int) ([]*UserStatistics, error)
	// TopByRankedScore lists rows ordered by ranked score descending.
	TopByRankedScore(ctx context.Context, ruleset rulesets.ID, limit, offset int) ([]*UserStatistics, error)
	// CountRanked counts users with a ranking standing for a ruleset.
	CountRanked(ctx context.Context, ruleset rulesets.ID) (int64, error)
	// TopByPPInCountry lists one country's rows ordered by pp descending.
	TopByPPInCountry(ctx context.Context, ruleset rulesets.ID, country string, limit, offset int) ([]*UserStatistics, error)
	// TopByRankedScoreInCountry lists one country's rows ordered by
	// ranked score descending.
	TopByRankedScoreInCountry(ctx context.Context, ruleset rulesets.ID, country string, limit, offset int) ([]*UserStatistics, error)
	// CountRankedInCountry counts one country's ranked users.
	CountRankedInCountry(ctx context.Context, ruleset rulesets.ID, country string) (int64, error)
	// AggregateByCountry sums standings per country. Ordered by summed
	// ranked score when byScore is set, by summed pp otherwise.
	AggregateByCountry(ctx context.Context, ruleset rulesets.ID, byScore bool, limit, offset int) ([]*CountryAggregate, error)
	// AggregateByTeam sums standings per team, ordered like
	// AggregateByCountry.
	AggregateByTeam(ctx context.Context, ruleset rulesets.ID, byScore bool, limit, offset int) ([]*TeamAggregate, error)
	// IncrementReplaysWatched bumps the replays-watched counter.
	IncrementReplaysWatched(ctx context.Context, userID int64, ruleset rulesets.ID) error
}

// CountryAggregate is one country's summed standing for a ruleset.
type CountryAggregate struct {
	Country     string  `json:"code"`
	ActiveUsers int64   `json:"active_users"`
	PlayCount   int64   `json:"play_count"`
	RankedScore int64   `json:"ranked_score"`
	Performance float64 `json:"performance"`
}

// TeamAggregate is one team's summed standing for a ruleset.
type TeamAggregate struct {
	TeamID      int64   `json:"team_id"`
	Members     int64   `json:"members"`
	PlayCount   int64   `json:"play_count"`
	RankedScore int64   `json:"ranked_score"`
	Performance float64 `json:"performance"`
}

// UserStatistics is the per-(user, ruleset) aggregate row. It is mutated
// only by the score pipeline.
type UserStatistics struct {
	UserID  int64       `json:"-"`
	Ruleset rulesets.ID `json:"-"`

	TotalScore  int64 `json:"total_score"`
	RankedScore int64 `json:"ranked_score"`

	PP          float64 `json:"pp"`
	HitAccuracy float64 `json:"hit_accuracy"`

	PlayCount int64 `json:"play_count"`
	PlayTime  int64 `json:"play_time"`
	TotalHits int64 `json:"total_hits"`
	MaxCombo  int   `json:"maximum_combo"`

	CountXH int `json:"grade_counts_ssh"`
	CountX  int `json:"grade_counts_ss"`
	CountSH int `json:"grade_counts_sh"`
	CountS  int `json:"grade_counts_s"`
	CountA  int `json:"grade_counts_a"`

	Level         int     `json:"level_current"`
	LevelProgress float64 `json:"level_progress"`

	GlobalRank  int64 `json:"global_rank"`
	CountryRank int64 `json:"country_rank"`

	ReplaysWatched int64 `json:"replays_watched_by_others"`
	IsRanked       bool  `json:"is_ranked"`
}

// AddGrade bumps the counter backing the given grade letter; non-passing
// and low grades have no counter.
func (stats *UserStatistics) AddGrade(grade rulesets.Grade, delta int) {
	switch grade {
	case rulesets.GradeXH:
		stats.CountXH += delta
	case rulesets.GradeX:
		stats.CountX += delta
	case rulesets.GradeSH:
		stats.CountSH += delta
	case rulesets.GradeS:
		stats.CountS += delta
	case rulesets.GradeA:
		stats.CountA += delta
	}
}
