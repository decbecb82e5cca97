// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package chat implements the real-time chat subsystem: channel and
// silence bookkeeping in the relational store, Redis-first message
// durability with deferred batch persistence, and the WebSocket hub
// that fans messages out to connected players.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

var (
	// Error is the default chat error class.
	Error = errs.Class("chat")
	// ErrNotFound is returned when a channel or message is absent.
	ErrNotFound = errs.Class("chat not found")
	// ErrForbidden is returned when the sender may not act on a channel.
	ErrForbidden = errs.Class("chat forbidden")
	// ErrValidation is returned for malformed chat input.
	ErrValidation = errs.Class("chat validation")
)

// ChannelType categorizes a channel.
type ChannelType string

// Channel types.
const (
	TypePublic      ChannelType = "PUBLIC"
	TypePrivate     ChannelType = "PRIVATE"
	TypeMultiplayer ChannelType = "MULTIPLAYER"
	TypeSpectator   ChannelType = "SPECTATOR"
	TypeTemporary   ChannelType = "TEMPORARY"
	TypePM          ChannelType = "PM"
	TypeGroup       ChannelType = "GROUP"
	TypeSystem      ChannelType = "SYSTEM"
	TypeAnnounce    ChannelType = "ANNOUNCE"
	TypeTeam        ChannelType = "TEAM"
)

// Valid reports whether the type is part of the vocabulary.
func (t ChannelType) Valid() bool {
	switch t {
	case TypePublic, TypePrivate, TypeMultiplayer, TypeSpectator, TypeTemporary,
		TypePM, TypeGroup, TypeSystem, TypeAnnounce, TypeTeam:
		return true
	}
	return false
}

// MessageType categorizes message content.
type MessageType string

// Message content types.
const (
	MessagePlain    MessageType = "plain"
	MessageAction   MessageType = "action"
	MessageMarkdown MessageType = "markdown"
)

// DB contains the durable chat tables. Live message flow goes through
// Redis first; rows arrive here through the persistence worker.
//
// architecture: Database
type DB interface {
	// Channels returns the channel table.
	Channels() Channels
	// Messages returns the persisted message table.
	Messages() Messages
	// Silences returns the silence table.
	Silences() Silences
}

// Channels is the channel table.
//
// architecture: Database
type Channels interface {
	// Insert creates a channel, assigning its id in place.
	Insert(ctx context.Context, channel *Channel) error
	// Get returns the channel by id.
	Get(ctx context.Context, id int64) (*Channel, error)
	// GetByName returns the channel by exact name.
	GetByName(ctx context.Context, name string) (*Channel, error)
	// ListByIDs fetches a batch of channels.
	ListByIDs(ctx context.Context, ids []int64) ([]*Channel, error)
	// ListPublic returns every joinable public channel.
	ListPublic(ctx context.Context) ([]*Channel, error)
	// Delete removes a channel row.
	Delete(ctx context.Context, id int64) error
}

// Channel is a place messages are exchanged.
type Channel struct {
	ID          int64       `json:"channel_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        ChannelType `json:"type"`
	Icon        string      `json:"icon,omitempty"`

	Moderated bool      `json:"moderated"`
	CreatedAt time.Time `json:"-"`
}

// CanEcho reports whether bot commands in the channel are echoed only
// to their sender.
func (c *Channel) CanEcho() bool { return c.Type == TypePublic }

// Messages is the persisted message table. It is the durable tail of
// the Redis store, not the live path.
//
// architecture: Database
type Messages interface {
	// InsertBatch stores the messages whose ids are not yet present.
	InsertBatch(ctx context.Context, messages []*Message) error
	// MaxID returns the highest stored message id, zero when empty.
	MaxID(ctx context.Context) (int64, error)
	// ListBefore returns up to limit messages of a channel with id below
	// before, newest first. A zero before means from the newest.
	ListBefore(ctx context.Context, channelID, before int64, limit int) ([]*Message, error)
	// Exists reports whether the id is stored.
	Exists(ctx context.Context, id int64) (bool, error)
}

// Message is a single chat line. Ids come from a global Redis counter
// and are strictly increasing across all channels.
type Message struct {
	ID        int64 `json:"message_id"`
	ChannelID int64 `json:"channel_id"`
	SenderID  int64 `json:"sender_id"`

	Content string      `json:"content"`
	Type    MessageType `json:"type"`

	ClientUUID *uuid.UUID `json:"uuid,omitempty"`
	CreatedAt  time.Time  `json:"timestamp"`
}

// IsBotCommand reports whether the content addresses the in-game bot.
func (m *Message) IsBotCommand() bool {
	return len(m.Content) > 0 && m.Content[0] == '!'
}

// Silences is the per-(user, channel) mute table.
//
// architecture: Database
type Silences interface {
	// Insert stores a silence, assigning its id in place.
	Insert(ctx context.Context, silence *Silence) error
	// ActiveFor returns the silence muting a user in a channel, or
	// ErrNotFound when the user may speak.
	ActiveFor(ctx context.Context, userID, channelID int64, at time.Time) (*Silence, error)
	// ListSince returns silences with id greater than sinceID, oldest
	// first, for the updates feed.
	ListSince(ctx context.Context, sinceID int64, limit int) ([]*Silence, error)
	// Delete lifts a silence.
	Delete(ctx context.Context, id int64) error
}

// Silence mutes one user in one channel. The user still receives
// messages but may not send until ExpiresAt.
type Silence struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"user_id"`
	ChannelID int64 `json:"-"`

	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"-"`
}

// Active reports whether the silence still mutes at the given time; a
// nil expiry never lifts.
func (s *Silence) Active(at time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(at)
}
