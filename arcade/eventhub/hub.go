// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package eventhub implements the in-process publish/subscribe hub that
// decouples the domain services, plus a bridge that mirrors selected
// events onto Redis channels for other processes.
package eventhub

import (
	"context"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	mon = monkit.Package()

	// Error is the default eventhub error class.
	Error = errs.Class("eventhub")
)

// Kind names an event type.
type Kind string

// Event kinds published by the domain services.
const (
	KindUserRegistered      Kind = "user.registered"
	KindUsernameChanged     Kind = "user.username_changed"
	KindUserLoggedIn        Kind = "user.logged_in"
	KindScoreProcessed      Kind = "score.processed"
	KindPlaycountMilestone  Kind = "score.playcount_milestone"
	KindAchievementUnlocked Kind = "achievement.unlocked"
	KindMessageSent         Kind = "chat.message_sent"
	KindReplayDownloaded    Kind = "replay.downloaded"
	KindRoomCreated         Kind = "room.created"
	KindRoomEnded           Kind = "room.ended"
)

// Event is a single published occurrence.
type Event struct {
	Kind    Kind
	At      time.Time
	Payload any
}

// Payloads carried by the events above. They reference entities by id so
// that subscribing packages do not import the owning packages. The JSON
// tags fix the wire shape used by the Redis bridge.
type (
	// UserRegistered is published after a successful registration.
	UserRegistered struct {
		UserID   int64  `json:"user_id"`
		Username string `json:"username"`
		IP       string `json:"-"`
	}

	// UsernameChanged is published after a rename.
	UsernameChanged struct {
		UserID int64  `json:"user_id"`
		From   string `json:"from"`
		To     string `json:"to"`
	}

	// UserLoggedIn is published on successful password grants.
	UserLoggedIn struct {
		UserID int64  `json:"user_id"`
		IP     string `json:"ip"`
	}

	// ScoreProcessed is published once a submitted score has finished
	// post-processing.
	ScoreProcessed struct {
		ScoreID   int64 `json:"score_id"`
		UserID    int64 `json:"user_id"`
		BeatmapID int64 `json:"beatmap_id"`
		Ruleset   int   `json:"ruleset_id"`
	}

	// PlaycountMilestone is published every hundredth play a user puts
	// into a single beatmap.
	PlaycountMilestone struct {
		UserID    int64 `json:"user_id"`
		BeatmapID int64 `json:"beatmap_id"`
		Count     int64 `json:"count"`
	}

	// AchievementUnlocked is published when a medal predicate fires.
	AchievementUnlocked struct {
		UserID int64  `json:"user_id"`
		Medal  string `json:"medal"`
	}

	// MessageSent is published for every accepted chat message.
	MessageSent struct {
		ChannelID int64 `json:"channel_id"`
		MessageID int64 `json:"message_id"`
		SenderID  int64 `json:"sender_id"`
	}

	// ReplayDownloaded is published when a replay file is served.
	ReplayDownloaded struct {
		ScoreID   int64 `json:"score_id"`
		WatcherID int64 `json:"watcher_id"`
	}

	// RoomCreated is published when a multiplayer room opens.
	RoomCreated struct {
		RoomID int64 `json:"room_id"`
		HostID int64 `json:"host_id"`
	}

	// RoomEnded is published when a multiplayer room is closed.
	RoomEnded struct {
		RoomID int64 `json:"room_id"`
	}
)

// subscriber is a single registered listener.
type subscriber struct {
	kinds map[Kind]bool
	ch    chan Event
}

// Hub is an in-process publish/subscribe dispatcher. Publishing never
// blocks: events to a subscriber with a full buffer are dropped and
// counted, because domain code must not stall on slow listeners.
type Hub struct {
	log *zap.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewHub creates an event hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:         log,
		subscribers: map[*subscriber]struct{}{},
	}
}

// Subscribe registers a listener for the given kinds; no kinds means all.
// The returned cancel must be called to release the subscription.
func (hub *Hub) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	sub := &subscriber{
		kinds: make(map[Kind]bool, len(kinds)),
		ch:    make(chan Event, 256),
	}
	for _, kind := range kinds {
		sub.kinds[kind] = true
	}

	hub.mu.Lock()
	if !hub.closed {
		hub.subscribers[sub] = struct{}{}
	} else {
		close(sub.ch)
	}
	hub.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			hub.mu.Lock()
			if _, ok := hub.subscribers[sub]; ok {
				delete(hub.subscribers, sub)
				close(sub.ch)
			}
			hub.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber.
func (hub *Hub) Publish(ctx context.Context, kind Kind, payload any) {
	defer mon.Task()(&ctx)(nil)
	mon.Event("eventhub_publish", monkit.NewSeriesTag("kind", string(kind)))

	event := Event{Kind: kind, At: time.Now().UTC(), Payload: payload}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.closed {
		return
	}
	for sub := range hub.subscribers {
		if len(sub.kinds) > 0 && !sub.kinds[kind] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			mon.Event("eventhub_dropped", monkit.NewSeriesTag("kind", string(kind)))
			hub.log.Debug("dropped event for slow subscriber", zap.String("kind", string(kind)))
		}
	}
}

// Close tears down all subscriptions.
func (hub *Hub) Close() error {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.closed {
		return nil
	}
	hub.closed = true
	for sub := range hub.subscribers {
		delete(hub.subscribers, sub)
		close(sub.ch)
	}
	return nil
}
