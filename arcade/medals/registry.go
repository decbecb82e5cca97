// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package medals

import (
	"context"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
)

// defaultMedals is the built-in registry. Plugins may append to a
// Service's copy at startup, never at runtime.
var defaultMedals = []Medal{
	{
		Slug:        "pass-first",
		Name:        "First Steps",
		Description: "Clear any beatmap.",
		predicate: func(play *Play) bool {
			return play.Passed
		},
	},
	{
		Slug:        "combo-500",
		Name:        "500 Combo",
		Description: "Reach a 500 combo on a single play.",
		predicate: func(play *Play) bool {
			return play.MaxCombo >= 500
		},
	},
	{
		Slug:        "combo-1000",
		Name:        "1,000 Combo",
		Description: "Reach a 1,000 combo on a single play.",
		predicate: func(play *Play) bool {
			return play.MaxCombo >= 1000
		},
	},
	{
		Slug:        "perfectionist",
		Name:        "Perfectionist",
		Description: "Clear a ranked beatmap with an SS.",
		predicate: func(play *Play) bool {
			if !play.Passed || play.Beatmap == nil || !play.Beatmap.Status.GivesPP() {
				return false
			}
			return play.Rank == rulesets.GradeX || play.Rank == rulesets.GradeXH
		},
	},
	{
		Slug:        "star-chaser-5",
		Name:        "Rising Star",
		Description: "Clear a 5 star beatmap.",
		predicate:   starClear(5),
	},
	{
		Slug:        "star-chaser-7",
		Name:        "Constellation",
		Description: "Clear a 7 star beatmap.",
		predicate:   starClear(7),
	},
	{
		Slug:        "playcount-1000",
		Name:        "1,000 Plays",
		Description: "Play one thousand times.",
		predicate: func(play *Play) bool {
			return play.Statistics != nil && play.Statistics.PlayCount >= 1000
		},
	},
	{
		Slug:        "playcount-10000",
		Name:        "10,000 Plays",
		Description: "Play ten thousand times.",
		predicate: func(play *Play) bool {
			return play.Statistics != nil && play.Statistics.PlayCount >= 10000
		},
	},
	{
		Slug:        "pp-100",
		Name:        "Triple Digits",
		Description: "Earn 100pp from a single play.",
		predicate: func(play *Play) bool {
			return play.Passed && play.PP >= 100
		},
	},
	{
		Slug:        "mod-hidden",
		Name:        "Now You See Me",
		Description: "Clear a beatmap with Hidden enabled.",
		predicate: func(play *Play) bool {
			return play.Passed && play.Mods.Has("HD")
		},
	},
}

func starClear(stars float64) Predicate {
	return func(play *Play) bool {
		return play.Passed && play.Beatmap != nil && play.Beatmap.StarRating >= stars
	}
}

// Service evaluates the registry against processed plays.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	db     UserAchievements
	medals []Medal
}

// NewService returns a medals service over the built-in registry.
func NewService(log *zap.Logger, db UserAchievements) *Service {
	return &Service{
		log:    log,
		db:     db,
		medals: append([]Medal{}, defaultMedals...),
	}
}

// Register appends additional medals; meant for startup-time plugins.
func (s *Service) Register(medal Medal, predicate Predicate) {
	medal.predicate = predicate
	s.medals = append(s.medals, medal)
}

// All returns the registered medals.
func (s *Service) All() []Medal {
	return append([]Medal{}, s.medals...)
}

// Get returns a registered medal by slug.
func (s *Service) Get(slug string) (Medal, bool) {
	for _, medal := range s.medals {
		if medal.Slug == slug {
			return medal, true
		}
	}
	return Medal{}, false
}

// Check runs every predicate the user has not unlocked yet and persists
// the unlocks. It returns the newly earned medals.
func (s *Service) Check(ctx context.Context, play *Play) (unlocked []Medal, err error) {
	defer mon.Task()(&ctx)(&err)

	for _, medal := range s.medals {
		has, err := s.db.Has(ctx, play.UserID, medal.Slug)
		if err != nil {
			return unlocked, Error.Wrap(err)
		}
		if has || !medal.predicate(play) {
			continue
		}
		err = s.db.Insert(ctx, &UserAchievement{
			UserID:     play.UserID,
			Medal:      medal.Slug,
			UnlockedAt: play.unlockTime(),
		})
		if err != nil {
			return unlocked, Error.Wrap(err)
		}
		mon.Event("medal_unlocked")
		s.log.Info("medal unlocked",
			zap.Int64("user_id", play.UserID),
			zap.String("medal", medal.Slug))
		unlocked = append(unlocked, medal)
	}
	return unlocked, nil
}

// ListByUser returns the user's unlocks.
func (s *Service) ListByUser(ctx context.Context, userID int64) (list []*UserAchievement, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.ListByUser(ctx, userID)
}
