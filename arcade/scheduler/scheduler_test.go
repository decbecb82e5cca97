// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/scheduler"
	"tempora.dev/tempora/internal/testcontext"
)

type fakeJobs struct {
	warmups   atomic.Int64
	syncs     atomic.Int64
	refreshes atomic.Int64
	preloads  atomic.Int64
	cleanups  atomic.Int64
	failWarm  atomic.Bool
}

func (f *fakeJobs) WarmHomepage(ctx context.Context) error {
	f.warmups.Add(1)
	if f.failWarm.Load() {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeJobs) SyncStale(ctx context.Context) (int, error) {
	f.syncs.Add(1)
	return 0, nil
}

func (f *fakeJobs) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	return nil
}

func (f *fakeJobs) PreloadProfiles(ctx context.Context, perRuleset int) (int, error) {
	f.preloads.Add(1)
	return perRuleset, nil
}

func (f *fakeJobs) DeleteStaleTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.cleanups.Add(1)
	return 1, nil
}

func TestSchedulerRunsIntervalJobs(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	jobs := &fakeJobs{}
	s := scheduler.New(zaptest.NewLogger(t), jobs, jobs, jobs, jobs, nil, nil, scheduler.Config{
		BeatmapWarmupInterval:  time.Hour,
		RankingRefreshInterval: time.Hour,
		UserPreloadInterval:    time.Hour,
		UserPreloadDepth:       25,
		StaleSyncInterval:      time.Hour,
		TokenCleanupInterval:   time.Hour,
		TokenMaxAge:            24 * time.Hour,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()

	// every cycle fires once immediately
	require.Eventually(t, func() bool {
		return jobs.warmups.Load() >= 1 &&
			jobs.syncs.Load() >= 1 &&
			jobs.refreshes.Load() >= 1 &&
			jobs.preloads.Load() >= 1 &&
			jobs.cleanups.Load() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	// a failing job does not stop the loop
	jobs.failWarm.Store(true)
	s.TriggerAll()
	require.Eventually(t, func() bool {
		return jobs.warmups.Load() >= 2 && jobs.refreshes.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	jobs.failWarm.Store(false)
	s.TriggerAll()
	require.Eventually(t, func() bool {
		return jobs.warmups.Load() >= 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, s.Close())
}

func TestSchedulerNilCollaborators(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	s := scheduler.New(zaptest.NewLogger(t), nil, nil, nil, nil, nil, nil, scheduler.Config{})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, s.Close())
}
