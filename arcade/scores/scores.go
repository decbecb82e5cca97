// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package scores implements the two-phase score pipeline: token
// reservation, submission, pp computation and the projection fan-out
// that keeps leaderboards and user statistics consistent.
package scores

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"tempora.dev/tempora/arcade/rulesets"
)

var mon = monkit.Package()

var (
	// Error is the default scores error class.
	Error = errs.Class("scores service")
	// ErrNotFound is returned when a score or token is absent.
	ErrNotFound = errs.Class("score not found")
	// ErrTokenMismatch is returned when a token belongs to someone else.
	ErrTokenMismatch = errs.Class("token mismatch")
	// ErrVersionMismatch is returned on client or ruleset hash rejections.
	ErrVersionMismatch = errs.Class("version mismatch")
	// ErrValidation is returned when a submission fails semantic checks.
	ErrValidation = errs.Class("validation")
)

// DB contains the score tables.
//
// architecture: Database
type DB interface {
	// Scores returns the score table.
	Scores() Scores
	// Tokens returns the reservation table.
	Tokens() Tokens
	// Bests returns the per-(user, beatmap, ruleset) best projection.
	Bests() BestScores
	// PPBests returns the per-(user, ruleset) top-pp projection.
	PPBests() PPBestScores
	// Playcounts returns the per-(user, beatmap) play counter.
	Playcounts() Playcounts
}

// Scores is the score table.
//
// architecture: Database
type Scores interface {
	// Insert stores a score, assigning its id in place.
	Insert(ctx context.Context, score *Score) error
	// Get returns the score by id.
	Get(ctx context.Context, id int64) (*Score, error)
	// SetPP records the computed pp of a score.
	SetPP(ctx context.Context, id int64, pp float64) error
	// SetReplayFilename records the stored replay file of a score.
	SetReplayFilename(ctx context.Context, id int64, filename string) error
	// Delete removes a score row.
	Delete(ctx context.Context, id int64) error
	// ListByIDs fetches a batch of scores.
	ListByIDs(ctx context.Context, ids []int64) ([]*Score, error)
	// ListRecent returns a user's newest scores for a ruleset.
	ListRecent(ctx context.Context, userID int64, ruleset rulesets.ID, includeFailed bool, limit, offset int) ([]*Score, error)
	// ListForUserBeatmap returns a user's scores on one beatmap, best first.
	ListForUserBeatmap(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) ([]*Score, error)
	// ListPinned returns the user's pinned scores in pin order.
	ListPinned(ctx context.Context, userID int64, ruleset rulesets.ID) ([]*Score, error)
	// SetPinOrder overwrites a score's pin order; zero unpins.
	SetPinOrder(ctx context.Context, id int64, order int) error
	// CountByUser counts the user's scores for a ruleset.
	CountByUser(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error)
}

// Score is a single play.
type Score struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	BeatmapID int64       `json:"beatmap_id"`
	Ruleset   rulesets.ID `json:"ruleset_id"`

	Mods       rulesets.Mods  `json:"mods"`
	TotalScore int64          `json:"total_score"`
	Accuracy   float64        `json:"accuracy"`
	MaxCombo   int            `json:"max_combo"`
	Rank       rulesets.Grade `json:"rank"`
	Passed     bool           `json:"passed"`
	Perfect    bool           `json:"is_perfect_combo"`

	Statistics        rulesets.Statistics `json:"statistics"`
	MaximumStatistics rulesets.Statistics `json:"maximum_statistics"`

	PP *float64 `json:"pp"`

	// PinnedOrder is 0 for unpinned scores and a dense positive
	// sequence per (user, ruleset) otherwise.
	PinnedOrder int `json:"-"`

	ReplayFilename string `json:"-"`
	BuildID        string `json:"build_id,omitempty"`

	EndedAt   time.Time `json:"ended_at"`
	CreatedAt time.Time `json:"-"`
}

// HasReplay reports whether a replay file was stored for the play.
func (s *Score) HasReplay() bool { return s.ReplayFilename != "" }

// PPValue returns the computed pp or zero.
func (s *Score) PPValue() float64 {
	if s.PP == nil {
		return 0
	}
	return *s.PP
}

// Better reports whether this score outranks other on a leaderboard:
// higher total score, ties to the earlier submission.
func (s *Score) Better(other *Score) bool {
	if s.TotalScore != other.TotalScore {
		return s.TotalScore > other.TotalScore
	}
	return s.ID < other.ID
}

// SubmissionInfo mirrors the client's local score record as sent on the
// submission PUT.
type SubmissionInfo struct {
	Rank              rulesets.Grade      `json:"rank"`
	TotalScore        int64               `json:"total_score"`
	Accuracy          float64             `json:"accuracy"`
	MaxCombo          int                 `json:"max_combo"`
	Passed            bool                `json:"passed"`
	Perfect           bool                `json:"is_perfect_combo"`
	Mods              rulesets.Mods       `json:"mods"`
	Statistics        rulesets.Statistics `json:"statistics"`
	MaximumStatistics rulesets.Statistics `json:"maximum_statistics"`
	EndedAt           time.Time           `json:"ended_at"`
	BuildID           string              `json:"build_id,omitempty"`
	ClientUUID        string              `json:"client_uuid,omitempty"`
}

// Validate checks the submission body's semantic constraints.
func (info *SubmissionInfo) Validate() error {
	if info.TotalScore < 0 {
		return ErrValidation.New("negative total score")
	}
	if info.Accuracy < 0 || info.Accuracy > 1 {
		return ErrValidation.New("accuracy out of range")
	}
	if info.MaxCombo < 0 {
		return ErrValidation.New("negative combo")
	}
	if info.Rank != "" && !info.Rank.Valid() {
		return ErrValidation.New("unknown rank %q", info.Rank)
	}
	if info.EndedAt.IsZero() {
		return ErrValidation.New("ended_at missing")
	}
	return nil
}
