// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package eventhub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"tempora.dev/tempora/storage/redis"
)

// Redis channels observed by sibling processes (spectator server, bots).
const (
	ChannelScoreProcessed = "osu-channel:score:processed"
	ChannelNotification   = "chat:notification"
)

// Bridge mirrors selected hub events onto Redis pub/sub channels so that
// processes outside this one can react to them.
type Bridge struct {
	log   *zap.Logger
	hub   *Hub
	redis *redis.Client
}

// NewBridge creates a bridge between the hub and Redis.
func NewBridge(log *zap.Logger, hub *Hub, redis *redis.Client) *Bridge {
	return &Bridge{
		log:   log,
		hub:   hub,
		redis: redis,
	}
}

// Run forwards events until the context is canceled.
func (bridge *Bridge) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	events, cancel := bridge.hub.Subscribe(KindScoreProcessed, KindAchievementUnlocked)
	defer cancel()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			bridge.forward(ctx, event)
		case <-ctx.Done():
			return nil
		}
	}
}

func (bridge *Bridge) forward(ctx context.Context, event Event) {
	var err error
	defer mon.Task()(&ctx)(&err)

	var channel string
	switch event.Kind {
	case KindScoreProcessed:
		channel = ChannelScoreProcessed
	case KindAchievementUnlocked:
		channel = ChannelNotification
	default:
		return
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		bridge.log.Error("failed to encode event", zap.String("kind", string(event.Kind)), zap.Error(err))
		return
	}

	if err = bridge.redis.Publish(ctx, channel, data).Err(); err != nil {
		bridge.log.Error("failed to publish event to redis",
			zap.String("kind", string(event.Kind)),
			zap.String("channel", channel),
			zap.Error(err))
	}
}
