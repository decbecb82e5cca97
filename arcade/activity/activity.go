// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package activity keeps the user timeline (achievements, milestones,
// rank movements, renames) and the daily global-rank history.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"tempora.dev/tempora/arcade/rulesets"
)

var mon = monkit.Package()

// Error is the default activity error class.
var Error = errs.Class("activity")

// EventType names a timeline entry kind.
type EventType string

// Timeline entry kinds.
const (
	TypeAchievement        EventType = "achievement"
	TypeBeatmapPlaycount   EventType = "beatmapPlaycount"
	TypeRank               EventType = "rank"
	TypeRankLost           EventType = "rankLost"
	TypeUsernameChange     EventType = "usernameChange"
	TypeBeatmapsetFavorite EventType = "beatmapsetFavourite"
)

// DB contains the activity tables.
//
// architecture: Database
type DB interface {
	// Events returns the timeline table.
	Events() Events
	// RankHistory returns the daily rank snapshot table.
	RankHistory() RankHistory
}

// Events is the timeline table.
//
// architecture: Database
type Events interface {
	// Insert appends a timeline entry.
	Insert(ctx context.Context, event *Event) error
	// ListByUser returns the newest entries of a user.
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Event, error)
}

// Event is one timeline entry. Details carries the type-specific body
// already in its wire shape.
type Event struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"-"`
	Type      EventType       `json:"type"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RankHistory is the daily snapshot table plus the best-ever marks.
//
// architecture: Database
type RankHistory interface {
	// Record stores the global rank of a user for a date, replacing a
	// prior snapshot of the same day.
	Record(ctx context.Context, userID int64, ruleset rulesets.ID, date time.Time, rank int64) error
	// Recent returns up to days snapshots, oldest first.
	Recent(ctx context.Context, userID int64, ruleset rulesets.ID, days int) ([]int64, error)
	// BestRank returns the best recorded rank, 0 when none.
	BestRank(ctx context.Context, userID int64, ruleset rulesets.ID) (int64, error)
	// UpdateBestRank lowers the best-ever mark when improved.
	UpdateBestRank(ctx context.Context, userID int64, ruleset rulesets.ID, rank int64) error
}
