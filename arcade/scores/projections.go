// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores

import (
	"context"
	"time"

	"tempora.dev/tempora/arcade/rulesets"
)

// BestScores is the per-(user, beatmap, ruleset) best projection behind
// beatmap leaderboards. Rows are denormalized copies of the winning
// score so a leaderboard page needs no join against the score table.
//
// architecture: Database
type BestScores interface {
	// Get returns the row for a tuple, or ErrNotFound.
	Get(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) (*BestScore, error)
	// Upsert replaces the row for the projection's tuple.
	Upsert(ctx context.Context, best *BestScore) error
	// Delete removes the row for a tuple.
	Delete(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) error
	// DeleteByScore removes the row referencing a score, if any.
	DeleteByScore(ctx context.Context, scoreID int64) error
	// Top returns the leaderboard page, best first, ties to lower score id.
	Top(ctx context.Context, beatmapID int64, ruleset rulesets.ID, limit int) ([]*BestScore, error)
	// TopByCountry restricts the page to players of one country.
	TopByCountry(ctx context.Context, beatmapID int64, ruleset rulesets.ID, country string, limit int) ([]*BestScore, error)
	// ListByUser returns a user's rows across beatmaps, best score first.
	ListByUser(ctx context.Context, userID int64, ruleset rulesets.ID, limit int) ([]*BestScore, error)
	// TopByUsers restricts the page to the given players.
	TopByUsers(ctx context.Context, beatmapID int64, ruleset rulesets.ID, userIDs []int64, limit int) ([]*BestScore, error)
	// Position returns the 1-based rank a row holds on the global
	// leaderboard of its beatmap.
	Position(ctx context.Context, best *BestScore) (int64, error)
}

// BestScore is the winning play of one (user, beatmap, ruleset) tuple.
type BestScore struct {
	UserID    int64       `json:"user_id"`
	BeatmapID int64       `json:"beatmap_id"`
	Ruleset   rulesets.ID `json:"ruleset_id"`

	ScoreID    int64          `json:"score_id"`
	TotalScore int64          `json:"total_score"`
	PP         float64        `json:"pp"`
	Accuracy   float64        `json:"accuracy"`
	MaxCombo   int            `json:"max_combo"`
	Rank       rulesets.Grade `json:"rank"`
	Mods       rulesets.Mods  `json:"mods"`
	EndedAt    time.Time      `json:"ended_at"`
}

// PPBestScores is the per-(user, ruleset) top-pp projection feeding the
// weighted profile totals. At most Keep rows survive per tuple.
//
// architecture: Database
type PPBestScores interface {
	// Upsert stores the row for a score.
	Upsert(ctx context.Context, best *PPBest) error
	// DeleteByScore removes the row referencing a score, if any.
	DeleteByScore(ctx context.Context, scoreID int64) error
	// ListByUser returns rows ordered by pp descending, score id ascending.
	ListByUser(ctx context.Context, userID int64, ruleset rulesets.ID, limit int) ([]*PPBest, error)
	// Trim drops rows beyond the keep-count, lowest pp first.
	Trim(ctx context.Context, userID int64, ruleset rulesets.ID, keep int) error
}

// PPBest is one entry of a user's top-pp list.
type PPBest struct {
	UserID  int64       `json:"user_id"`
	Ruleset rulesets.ID `json:"ruleset_id"`

	ScoreID   int64   `json:"score_id"`
	BeatmapID int64   `json:"beatmap_id"`
	PP        float64 `json:"pp"`
	Accuracy  float64 `json:"accuracy"`
}

// Playcounts is the per-(user, beatmap) play counter.
//
// architecture: Database
type Playcounts interface {
	// Increment bumps the counter and returns the new value.
	Increment(ctx context.Context, userID, beatmapID int64) (int64, error)
	// Get returns the counter value, zero when absent.
	Get(ctx context.Context, userID, beatmapID int64) (int64, error)
}
