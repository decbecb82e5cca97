// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package scheduler drives the periodic maintenance work: cache warmups
// and ranking refreshes on fixed intervals, plus the calendar jobs that
// must fire at a wall-clock time (daily rank snapshots, daily challenge
// rotation). Every job is idempotent and failures are logged, never
// fatal.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempora.dev/tempora/internal/sync2"
)

var (
	mon = monkit.Package()

	// Error is the default scheduler error class.
	Error = errs.Class("scheduler")
)

// Beatmaps is the slice of the beatmaps service the scheduler drives.
type Beatmaps interface {
	WarmHomepage(ctx context.Context) error
	SyncStale(ctx context.Context) (int, error)
}

// Rankings refreshes the cached ranking pages.
type Rankings interface {
	Refresh(ctx context.Context) error
}

// Users warms composed profile caches.
type Users interface {
	PreloadProfiles(ctx context.Context, perRuleset int) (int, error)
}

// Scores cleans up abandoned submission tokens.
type Scores interface {
	DeleteStaleTokens(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Activity snapshots daily global ranks.
type Activity interface {
	SnapshotRanks(ctx context.Context) (int, error)
}

// Rooms rotates the daily challenge.
type Rooms interface {
	RotateDailyChallenge(ctx context.Context) error
}

// Config holds scheduler configuration.
type Config struct {
	BeatmapWarmupInterval  time.Duration `help:"how often the homepage search cache is rebuilt" default:"30m"`
	RankingRefreshInterval time.Duration `help:"how often ranking pages are recached" default:"30m"`
	UserPreloadInterval    time.Duration `help:"how often top profiles are precomposed" default:"15m"`
	UserPreloadDepth       int           `help:"profiles per ruleset warmed on each preload" default:"100"`
	StaleSyncInterval      time.Duration `help:"how often stale beatmapsets are re-synced" default:"1h"`
	TokenCleanupInterval   time.Duration `help:"how often abandoned score tokens are purged" default:"1h"`
	TokenMaxAge            time.Duration `help:"age at which an unredeemed score token is abandoned" default:"24h"`

	SnapshotSchedule string `help:"cron schedule of the daily rank snapshot" default:"0 0 * * *"`
	RotationSchedule string `help:"cron schedule of the daily challenge rotation" default:"5 0 * * *"`
}

// Scheduler owns the interval cycles and the calendar cron. Its Run
// blocks until the context is canceled.
//
// architecture: Chore
type Scheduler struct {
	log    *zap.Logger
	config Config

	beatmaps Beatmaps
	rankings Rankings
	users    Users
	scores   Scores
	activity Activity
	rooms    Rooms

	cycles []*namedCycle
	cron   *cron.Cron
}

type namedCycle struct {
	name  string
	cycle *sync2.Cycle
	run   func(ctx context.Context) error
}

// New creates a scheduler over the given collaborators; nil
// collaborators disable their jobs.
func New(log *zap.Logger, beatmaps Beatmaps, rankings Rankings, users Users, scores Scores, activity Activity, rooms Rooms, config Config) *Scheduler {
	s := &Scheduler{
		log:      log,
		config:   config,
		beatmaps: beatmaps,
		rankings: rankings,
		users:    users,
		scores:   scores,
		activity: activity,
		rooms:    rooms,
	}

	if beatmaps != nil && config.BeatmapWarmupInterval > 0 {
		s.addCycle("beatmap homepage warmup", config.BeatmapWarmupInterval, func(ctx context.Context) error {
			return beatmaps.WarmHomepage(ctx)
		})
	}
	if beatmaps != nil && config.StaleSyncInterval > 0 {
		s.addCycle("beatmapset stale sync", config.StaleSyncInterval, func(ctx context.Context) error {
			synced, err := beatmaps.SyncStale(ctx)
			if synced > 0 {
				log.Info("stale beatmapsets synced", zap.Int("count", synced))
			}
			return err
		})
	}
	if rankings != nil && config.RankingRefreshInterval > 0 {
		s.addCycle("ranking refresh", config.RankingRefreshInterval, rankings.Refresh)
	}
	if users != nil && config.UserPreloadInterval > 0 {
		s.addCycle("profile preload", config.UserPreloadInterval, func(ctx context.Context) error {
			_, err := users.PreloadProfiles(ctx, config.UserPreloadDepth)
			return err
		})
	}
	if scores != nil && config.TokenCleanupInterval > 0 {
		s.addCycle("score token cleanup", config.TokenCleanupInterval, func(ctx context.Context) error {
			deleted, err := scores.DeleteStaleTokens(ctx, config.TokenMaxAge)
			if deleted > 0 {
				log.Info("stale score tokens purged", zap.Int64("count", deleted))
			}
			return err
		})
	}

	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if activity != nil && config.SnapshotSchedule != "" {
		s.addCron("rank snapshot", config.SnapshotSchedule, func(ctx context.Context) error {
			snapshots, err := activity.SnapshotRanks(ctx)
			if snapshots > 0 {
				log.Info("daily ranks recorded", zap.Int("count", snapshots))
			}
			return err
		})
	}
	if rooms != nil && config.RotationSchedule != "" {
		s.addCron("daily challenge rotation", config.RotationSchedule, rooms.RotateDailyChallenge)
	}
	return s
}

func (s *Scheduler) addCycle(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.cycles = append(s.cycles, &namedCycle{
		name:  name,
		cycle: sync2.NewCycle(interval),
		run:   run,
	})
}

func (s *Scheduler) addCron(name, schedule string, run func(ctx context.Context) error) {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runJob(context.Background(), name, run)
	})
	if err != nil {
		s.log.Error("invalid cron schedule, job disabled",
			zap.String("job", name),
			zap.String("schedule", schedule),
			zap.Error(err))
	}
}

// runJob executes one job, absorbing its error into the log.
func (s *Scheduler) runJob(ctx context.Context, name string, run func(ctx context.Context) error) {
	start := time.Now()
	if err := run(ctx); err != nil {
		mon.Event("scheduler_job_failed", monkit.NewSeriesTag("job", name))
		s.log.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.log.Debug("scheduled job done",
		zap.String("job", name),
		zap.Duration("elapsed", time.Since(start)))
}

// Run starts every cycle and the calendar cron, blocking until the
// context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	defer s.cron.Stop()

	group, ctx := errgroup.WithContext(ctx)
	for _, nc := range s.cycles {
		nc := nc
		group.Go(func() error {
			return nc.cycle.Run(ctx, func(ctx context.Context) error {
				s.runJob(ctx, nc.name, nc.run)
				return nil
			})
		})
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops the cycles.
func (s *Scheduler) Close() error {
	for _, nc := range s.cycles {
		nc.cycle.Stop()
	}
	<-s.cron.Stop().Done()
	return nil
}

// TriggerAll forces one immediate pass of every interval job; used by
// tests and the admin surface.
func (s *Scheduler) TriggerAll() {
	for _, nc := range s.cycles {
		nc.cycle.Trigger()
	}
}
