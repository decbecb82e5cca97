// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores

import (
	"context"
	"time"

	"tempora.dev/tempora/arcade/rulesets"
)

// Tokens is the score reservation table.
//
// architecture: Database
type Tokens interface {
	// Insert stores a token, assigning its id in place.
	Insert(ctx context.Context, token *Token) error
	// Get returns the token by id.
	Get(ctx context.Context, id int64) (*Token, error)
	// SetScore attaches the committed score. It fails when the token
	// already carries one, making redemption single-shot.
	SetScore(ctx context.Context, id, scoreID int64) error
	// DeleteOlderThan removes never-redeemed tokens past the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Token is a pre-play reservation. A token is redeemable exactly once,
// by its creator; after redemption ScoreID points at the stored score.
type Token struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	BeatmapID int64       `json:"beatmap_id"`
	Ruleset   rulesets.ID `json:"ruleset_id"`

	// RoomID and PlaylistItemID are set for multiplayer plays only.
	RoomID         int64 `json:"-"`
	PlaylistItemID int64 `json:"-"`

	ScoreID *int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// Redeemed reports whether the token already produced a score.
func (t *Token) Redeemed() bool { return t.ScoreID != nil }
