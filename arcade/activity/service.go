// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package activity

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
)

// Config holds activity configuration.
type Config struct {
	SnapshotPageSize int `help:"users ranked per page during the daily snapshot" default:"500"`
	TimelineLimit    int `help:"maximum timeline entries returned per request" default:"50"`
}

// Service records timeline entries and runs the daily rank snapshot.
//
// architecture: Service
type Service struct {
	log   *zap.Logger
	db    DB
	stats users.Statistics

	config Config
}

// NewService returns an activity service.
func NewService(log *zap.Logger, db DB, stats users.Statistics, config Config) *Service {
	return &Service{
		log:    log,
		db:     db,
		stats:  stats,
		config: config,
	}
}

// Timeline returns the newest entries of a user.
func (s *Service) Timeline(ctx context.Context, userID int64, limit, offset int) (events []*Event, err error) {
	defer mon.Task()(&ctx)(&err)
	if limit <= 0 || limit > s.config.TimelineLimit {
		limit = s.config.TimelineLimit
	}
	return s.db.Events().ListByUser(ctx, userID, limit, offset)
}

func (s *Service) record(ctx context.Context, userID int64, eventType EventType, details any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(s.db.Events().Insert(ctx, &Event{
		UserID:    userID,
		Type:      eventType,
		Details:   raw,
		CreatedAt: time.Now().UTC(),
	}))
}

// RecordAchievement appends a medal unlock to the timeline.
func (s *Service) RecordAchievement(ctx context.Context, userID int64, medal string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.record(ctx, userID, TypeAchievement, map[string]string{"achievement": medal})
}

// RecordPlaycountMilestone appends an every-hundredth playcount entry.
func (s *Service) RecordPlaycountMilestone(ctx context.Context, userID, beatmapID, count int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.record(ctx, userID, TypeBeatmapPlaycount, map[string]int64{
		"beatmap_id": beatmapID,
		"count":      count,
	})
}

// RecordUsernameChange appends a rename entry.
func (s *Service) RecordUsernameChange(ctx context.Context, userID int64, from, to string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.record(ctx, userID, TypeUsernameChange, map[string]string{
		"previous_username": from,
		"username":          to,
	})
}

// Recent implements users.RankHistories for profile pages.
func (s *Service) Recent(ctx context.Context, userID int64, ruleset rulesets.ID, days int) (ranks []int64, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.RankHistory().Recent(ctx, userID, ruleset, days)
}

// SnapshotRanks records today's global rank for every user holding pp in
// any ruleset. Ran once per day by the scheduler; repeating a day
// replaces that day's snapshots, so the job is idempotent.
func (s *Service) SnapshotRanks(ctx context.Context) (snapshots int, err error) {
	defer mon.Task()(&ctx)(&err)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	pageSize := s.config.SnapshotPageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	for _, ruleset := range rulesets.All() {
		for offset := 0; ; offset += pageSize {
			page, err := s.stats.TopByPP(ctx, ruleset, pageSize, offset)
			if err != nil {
				return snapshots, Error.Wrap(err)
			}
			if len(page) == 0 {
				break
			}
			for i, row := range page {
				if row.PP <= 0 {
					continue
				}
				rank := int64(offset + i + 1)
				if err := s.db.RankHistory().Record(ctx, row.UserID, ruleset, today, rank); err != nil {
					s.log.Warn("rank snapshot failed",
						zap.Int64("user_id", row.UserID),
						zap.Stringer("ruleset", ruleset),
						zap.Error(err))
					continue
				}
				if err := s.db.RankHistory().UpdateBestRank(ctx, row.UserID, ruleset, rank); err != nil {
					s.log.Warn("best rank update failed", zap.Int64("user_id", row.UserID), zap.Error(err))
				}
				snapshots++
			}
			if len(page) < pageSize {
				break
			}
		}
	}
	return snapshots, nil
}

// Subscribe mirrors hub events onto the timeline until the context ends.
func (s *Service) Subscribe(ctx context.Context, hub *eventhub.Hub) error {
	events, cancel := hub.Subscribe(
		eventhub.KindUsernameChanged,
		eventhub.KindAchievementUnlocked,
		eventhub.KindPlaycountMilestone,
	)
	defer cancel()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.mirror(ctx, event)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Service) mirror(ctx context.Context, event eventhub.Event) {
	var err error
	switch payload := event.Payload.(type) {
	case eventhub.UsernameChanged:
		err = s.RecordUsernameChange(ctx, payload.UserID, payload.From, payload.To)
	case eventhub.AchievementUnlocked:
		err = s.RecordAchievement(ctx, payload.UserID, payload.Medal)
	case eventhub.PlaycountMilestone:
		err = s.RecordPlaycountMilestone(ctx, payload.UserID, payload.BeatmapID, payload.Count)
	}
	if err != nil {
		s.log.Warn("failed to mirror event to timeline", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}
