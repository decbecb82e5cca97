// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package rooms manages multiplayer rooms: lifecycle and host
// succession, playlists, per-item scoring projections and the daily
// challenge streaks.
package rooms

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"tempora.dev/tempora/arcade/rulesets"
)

var mon = monkit.Package()

var (
	// Error is the default rooms error class.
	Error = errs.Class("rooms")
	// ErrNotFound is returned when a room or playlist item is absent.
	ErrNotFound = errs.Class("room not found")
	// ErrForbidden is returned for password and privilege rejections.
	ErrForbidden = errs.Class("room forbidden")
	// ErrValidation is returned for malformed room input.
	ErrValidation = errs.Class("room validation")
	// ErrEnded is returned when acting on a finished room.
	ErrEnded = errs.Class("room ended")
)

// Category classifies what a room is for.
type Category string

// Room categories.
const (
	CategoryNormal         Category = "NORMAL"
	CategoryRealtime       Category = "REALTIME"
	CategoryDailyChallenge Category = "DAILY_CHALLENGE"
)

// Valid reports whether the category is known.
func (c Category) Valid() bool {
	switch c {
	case CategoryNormal, CategoryRealtime, CategoryDailyChallenge:
		return true
	}
	return false
}

// MatchType selects the competitive arrangement.
type MatchType string

// Match types.
const (
	MatchHeadToHead  MatchType = "head-to-head"
	MatchTeamVersus  MatchType = "team-versus"
	MatchPlaylists   MatchType = "playlists"
	MatchMatchmaking MatchType = "matchmaking"
)

// Valid reports whether the match type is known.
func (t MatchType) Valid() bool {
	switch t {
	case MatchHeadToHead, MatchTeamVersus, MatchPlaylists, MatchMatchmaking:
		return true
	}
	return false
}

// QueueMode controls who may append playlist items.
type QueueMode string

// Queue modes.
const (
	QueueHostOnly   QueueMode = "host_only"
	QueueAllPlayers QueueMode = "all_players"
	QueueRoundRobin QueueMode = "all_players_round_robin"
)

// Status is the room's lifecycle state.
type Status string

// Room statuses.
const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
)

// DB contains the multiplayer tables.
//
// architecture: Database
type DB interface {
	// Rooms returns the room table.
	Rooms() Rooms
	// Playlists returns the playlist item table.
	Playlists() Playlists
	// Participants returns the participant table.
	Participants() Participants
	// BestScores returns the per-(room, item, user) best projection.
	BestScores() BestScores
	// Attempts returns the per-(room, user) attempt counter.
	Attempts() Attempts
	// Events returns the room lifecycle log.
	Events() Events
	// DailyChallenge returns the streak table.
	DailyChallenge() DailyChallenge
}

// Rooms is the room table.
//
// architecture: Database
type Rooms interface {
	// Insert creates a room, assigning its id in place.
	Insert(ctx context.Context, room *Room) error
	// Get returns the room by id.
	Get(ctx context.Context, id int64) (*Room, error)
	// Update overwrites the mutable room columns.
	Update(ctx context.Context, room *Room) error
	// ListActive returns rooms whose ends-at lies in the future, newest
	// first, optionally filtered by category.
	ListActive(ctx context.Context, category Category, limit int) ([]*Room, error)
	// ActiveDailyChallenge returns the currently open daily challenge
	// room, or ErrNotFound.
	ActiveDailyChallenge(ctx context.Context, at time.Time) (*Room, error)
}

// Room is one multiplayer lobby.
type Room struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	HostID int64  `json:"host_id"`

	Category  Category  `json:"category"`
	Type      MatchType `json:"type"`
	QueueMode QueueMode `json:"queue_mode"`
	Status    Status    `json:"status"`

	Password  string `json:"-"`
	ChannelID int64  `json:"channel_id"`

	ParticipantCount int `json:"participant_count"`
	MaxParticipants  int `json:"max_attempts,omitempty"`

	StartsAt time.Time  `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	CreatedAt time.Time `json:"-"`
}

// Ended reports whether the room is finished at the given time.
func (room *Room) Ended(at time.Time) bool {
	return room.EndsAt != nil && !room.EndsAt.After(at)
}

// HasPassword reports whether joining requires the password.
func (room *Room) HasPassword() bool { return room.Password != "" }

// Playlists is the playlist item table.
//
// architecture: Database
type Playlists interface {
	// Insert stores an item, assigning its id in place.
	Insert(ctx context.Context, item *PlaylistItem) error
	// Get returns the item by id.
	Get(ctx context.Context, id int64) (*PlaylistItem, error)
	// ListByRoom returns the room's items in play order.
	ListByRoom(ctx context.Context, roomID int64) ([]*PlaylistItem, error)
	// MarkExpired flags an item as no longer playable.
	MarkExpired(ctx context.Context, id int64) error
}

// PlaylistItem is one map+mods entry of a room's rotation.
type PlaylistItem struct {
	ID      int64 `json:"id"`
	RoomID  int64 `json:"room_id"`
	OwnerID int64 `json:"owner_id"`

	BeatmapID int64       `json:"beatmap_id"`
	Ruleset   rulesets.ID `json:"ruleset_id"`

	RequiredMods rulesets.Mods `json:"required_mods,omitempty"`
	AllowedMods  rulesets.Mods `json:"allowed_mods,omitempty"`

	PlayOrder int        `json:"playlist_order"`
	Expired   bool       `json:"expired"`
	PlayedAt  *time.Time `json:"played_at,omitempty"`
}

// Participants is the participant table.
//
// architecture: Database
type Participants interface {
	// Upsert joins a user, clearing a prior left-at on rejoin.
	Upsert(ctx context.Context, roomID, userID int64, at time.Time) error
	// MarkLeft records the departure instant.
	MarkLeft(ctx context.Context, roomID, userID int64, at time.Time) error
	// Active returns the present participants, earliest joined first.
	Active(ctx context.Context, roomID int64) ([]*Participant, error)
	// CountActive counts the present participants.
	CountActive(ctx context.Context, roomID int64) (int, error)
}

// Participant is one user's presence in a room.
type Participant struct {
	RoomID   int64      `json:"room_id"`
	UserID   int64      `json:"user_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// BestScores is the per-(room, playlist item, user) best projection.
//
// architecture: Database
type BestScores interface {
	// Get returns the row for a tuple, or ErrNotFound.
	Get(ctx context.Context, roomID, itemID, userID int64) (*BestScore, error)
	// Upsert replaces the row for the tuple.
	Upsert(ctx context.Context, best *BestScore) error
	// AggregateByUser sums each participant's best totals across the
	// room's items, highest aggregate first.
	AggregateByUser(ctx context.Context, roomID int64) ([]*AggregateScore, error)
	// TopForItem returns an item's best rows, highest total first.
	TopForItem(ctx context.Context, roomID, itemID int64, limit int) ([]*BestScore, error)
}

// BestScore is one user's best play of one playlist item.
type BestScore struct {
	RoomID         int64 `json:"room_id"`
	PlaylistItemID int64 `json:"playlist_item_id"`
	UserID         int64 `json:"user_id"`

	ScoreID    int64   `json:"score_id"`
	TotalScore int64   `json:"total_score"`
	Accuracy   float64 `json:"accuracy"`
	PP         float64 `json:"pp"`
	Passed     bool    `json:"passed"`

	UpdatedAt time.Time `json:"-"`
}

// AggregateScore is one row of the room leaderboard.
type AggregateScore struct {
	UserID     int64   `json:"user_id"`
	TotalScore int64   `json:"total_score"`
	Accuracy   float64 `json:"accuracy"`
	Attempts   int64   `json:"attempts"`
	Completed  int     `json:"completed_items"`
}

// Attempts is the per-(room, user) attempt counter.
//
// architecture: Database
type Attempts interface {
	// Increment bumps the counter and returns the new value.
	Increment(ctx context.Context, roomID, userID int64) (int64, error)
	// Get returns the counter value, zero when absent.
	Get(ctx context.Context, roomID, userID int64) (int64, error)
}

// EventType classifies a room lifecycle entry.
type EventType string

// Room lifecycle events.
const (
	EventRoomCreated   EventType = "room-created"
	EventRoomDisbanded EventType = "room-disbanded"
	EventPlayerJoined  EventType = "player-joined"
	EventPlayerLeft    EventType = "player-left"
	EventHostChanged   EventType = "host-changed"
	EventGameStarted   EventType = "game-started"
	EventGameCompleted EventType = "game-completed"
)

// Events is the room lifecycle log.
//
// architecture: Database
type Events interface {
	// Insert appends an entry, assigning its id in place.
	Insert(ctx context.Context, event *MultiplayerEvent) error
	// ListByRoom returns a room's entries, oldest first.
	ListByRoom(ctx context.Context, roomID int64, limit int) ([]*MultiplayerEvent, error)
}

// MultiplayerEvent is one lifecycle log entry.
type MultiplayerEvent struct {
	ID     int64     `json:"id"`
	RoomID int64     `json:"room_id"`
	UserID int64     `json:"user_id,omitempty"`
	Type   EventType `json:"event_type"`
	At     time.Time `json:"created_at"`
}

// DailyChallenge is the per-user streak table.
//
// architecture: Database
type DailyChallenge interface {
	// Get returns the user's row, creating a zero row when absent.
	Get(ctx context.Context, userID int64) (*DailyChallengeStats, error)
	// Update overwrites the row.
	Update(ctx context.Context, stats *DailyChallengeStats) error
}

// DailyChallengeStats tracks one user's challenge streaks. A day with a
// completed playthrough extends the daily streak; a week with at least
// one completion extends the weekly streak. Repeat completions on an
// already-counted date change nothing.
type DailyChallengeStats struct {
	UserID int64 `json:"user_id"`

	DailyStreakCurrent  int `json:"daily_streak_current"`
	DailyStreakBest     int `json:"daily_streak_best"`
	WeeklyStreakCurrent int `json:"weekly_streak_current"`
	WeeklyStreakBest    int `json:"weekly_streak_best"`

	PlayCount int64 `json:"playcount"`

	// LastPlayedOn is the UTC date of the last counted completion,
	// zero time when the user never completed one.
	LastPlayedOn time.Time `json:"last_weekly_streak,omitempty"`
}
