// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package sync2_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"tempora.dev/tempora/internal/sync2"
)

func TestCycle_RunsImmediately(t *testing.T) {
	t.Parallel()

	cycle := sync2.NewCycle(time.Hour)

	var count int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var group errgroup.Group
	group.Go(func() error {
		return cycle.Run(ctx, func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	})

	cycle.TriggerWait()
	cycle.Stop()

	require.NoError(t, group.Wait())
	// one immediate run plus the triggered run
	require.Equal(t, int64(2), atomic.LoadInt64(&count))
}

func TestCycle_StopCancels(t *testing.T) {
	t.Parallel()

	cycle := sync2.NewCycle(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 1)
	var group errgroup.Group
	group.Go(func() error {
		return cycle.Run(ctx, func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		})
	})

	<-ran
	cycle.Stop()
	require.NoError(t, group.Wait())
}

func TestCycle_ContextCancel(t *testing.T) {
	t.Parallel()

	cycle := sync2.NewCycle(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	var group errgroup.Group
	group.Go(func() error {
		return cycle.Run(ctx, func(ctx context.Context) error { return nil })
	})

	cancel()
	require.ErrorIs(t, group.Wait(), context.Canceled)
}
