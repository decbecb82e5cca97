// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package medals holds the achievement registry and evaluates medal
// predicates after every processed score.
package medals

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
)

var mon = monkit.Package()

// Error is the default medals error class.
var Error = errs.Class("medals")

// UserAchievements is the unlocked medal table.
//
// architecture: Database
type UserAchievements interface {
	// Insert records an unlock; inserting twice is a conflict.
	Insert(ctx context.Context, achievement *UserAchievement) error
	// Has reports whether the user holds the medal.
	Has(ctx context.Context, userID int64, medal string) (bool, error)
	// ListByUser returns the user's unlocks, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*UserAchievement, error)
}

// UserAchievement is one unlocked medal.
type UserAchievement struct {
	UserID     int64     `json:"-"`
	Medal      string    `json:"achievement_id"`
	UnlockedAt time.Time `json:"achieved_at"`
}

// Play carries everything a predicate may inspect about the triggering
// score.
type Play struct {
	UserID     int64
	Ruleset    rulesets.ID
	Mods       rulesets.Mods
	Passed     bool
	Rank       rulesets.Grade
	MaxCombo   int
	Accuracy   float64
	TotalScore int64
	PP         float64

	Beatmap    *beatmaps.Beatmap
	Statistics *users.UserStatistics

	// At is the submission instant; zero means now.
	At time.Time
}

func (play *Play) unlockTime() time.Time {
	if play.At.IsZero() {
		return time.Now().UTC()
	}
	return play.At
}

// Predicate decides whether a play unlocks the medal.
type Predicate func(play *Play) bool

// Medal is a registered achievement.
type Medal struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`

	predicate Predicate
}
