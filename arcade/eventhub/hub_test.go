// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package eventhub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/internal/testcontext"
	"tempora.dev/tempora/storage/redis"
	"tempora.dev/tempora/storage/redis/redisserver"
)

func TestHubDeliversToMatchingSubscribers(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	hub := eventhub.NewHub(zaptest.NewLogger(t))
	defer ctx.Check(hub.Close)

	scores, cancelScores := hub.Subscribe(eventhub.KindScoreProcessed)
	defer cancelScores()
	all, cancelAll := hub.Subscribe()
	defer cancelAll()

	hub.Publish(ctx, eventhub.KindUserRegistered, eventhub.UserRegistered{UserID: 7, Username: "new"})
	hub.Publish(ctx, eventhub.KindScoreProcessed, eventhub.ScoreProcessed{ScoreID: 1, UserID: 7})

	event := <-scores
	assert.Equal(t, eventhub.KindScoreProcessed, event.Kind)
	payload, ok := event.Payload.(eventhub.ScoreProcessed)
	require.True(t, ok)
	assert.EqualValues(t, 1, payload.ScoreID)

	first := <-all
	second := <-all
	assert.Equal(t, eventhub.KindUserRegistered, first.Kind)
	assert.Equal(t, eventhub.KindScoreProcessed, second.Kind)
}

func TestHubCancelStopsDelivery(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	hub := eventhub.NewHub(zaptest.NewLogger(t))
	defer ctx.Check(hub.Close)

	events, cancel := hub.Subscribe(eventhub.KindRoomEnded)
	cancel()

	hub.Publish(ctx, eventhub.KindRoomEnded, eventhub.RoomEnded{RoomID: 3})

	_, open := <-events
	assert.False(t, open)
}

func TestBridgePublishesScoreProcessed(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	defer cleanup()

	client, err := redis.NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	hub := eventhub.NewHub(zaptest.NewLogger(t))
	defer ctx.Check(hub.Close)

	bridge := eventhub.NewBridge(zaptest.NewLogger(t), hub, client)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	ctx.Go(func() error { return bridge.Run(runCtx) })

	pubsub := client.Subscribe(ctx, eventhub.ChannelScoreProcessed)
	defer func() { _ = pubsub.Close() }()
	_, err = pubsub.Receive(ctx)
	require.NoError(t, err)

	hub.Publish(ctx, eventhub.KindScoreProcessed, eventhub.ScoreProcessed{ScoreID: 11, UserID: 2, BeatmapID: 3, Ruleset: 0})

	select {
	case msg := <-pubsub.Channel():
		assert.Contains(t, msg.Payload, `"score_id":11`)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for redis publish")
	}
}
