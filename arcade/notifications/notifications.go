// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package notifications stores per-user notification rows for offline
// delivery and read tracking.
package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var mon = monkit.Package()

// Error is the default notifications error class.
var Error = errs.Class("notifications")

// Name identifies what a notification is about.
type Name string

// Notification names.
const (
	NameChannelMessage     Name = "channel_message"
	NameTeamMessage        Name = "team_message"
	NameAchievementEarned  Name = "user_achievement_unlock"
	NameBeatmapsetUpdate   Name = "beatmapset_update"
	NameAnnouncement       Name = "channel_announcement"
	NameUsernameChangeDone Name = "username_change"
)

// DB is the notification table.
//
// architecture: Database
type DB interface {
	// Insert stores a notification for one recipient.
	Insert(ctx context.Context, notification *Notification) error
	// ListByUser returns the newest notifications of a user.
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*Notification, error)
	// MarkRead flags the given notifications of the user read.
	MarkRead(ctx context.Context, userID int64, ids []int64) error
	// CountUnread returns how many rows remain unread.
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

// Notification is one row delivered to one recipient.
type Notification struct {
	ID       int64 `json:"id"`
	UserID   int64 `json:"-"`
	SourceID int64 `json:"source_user_id,omitempty"`

	Name    Name            `json:"name"`
	Details json.RawMessage `json:"details,omitempty"`

	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Service writes and reads notification rows.
//
// architecture: Service
type Service struct {
	log *zap.Logger
	db  DB
}

// NewService returns a notifications service.
func NewService(log *zap.Logger, db DB) *Service {
	return &Service{log: log, db: db}
}

// Notify stores a notification. details must marshal to JSON; failures
// are returned so callers can decide whether delivery matters.
func (s *Service) Notify(ctx context.Context, userID, sourceID int64, name Name, details any) (err error) {
	defer mon.Task()(&ctx)(&err)

	var raw json.RawMessage
	if details != nil {
		raw, err = json.Marshal(details)
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return Error.Wrap(s.db.Insert(ctx, &Notification{
		UserID:    userID,
		SourceID:  sourceID,
		Name:      name,
		Details:   raw,
		CreatedAt: time.Now().UTC(),
	}))
}

// List returns the newest notifications of a user.
func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, limit int) (list []*Notification, err error) {
	defer mon.Task()(&ctx)(&err)
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.db.ListByUser(ctx, userID, unreadOnly, limit)
}

// MarkRead flags notifications read. Unknown ids are ignored.
func (s *Service) MarkRead(ctx context.Context, userID int64, ids []int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	if len(ids) == 0 {
		return nil
	}
	return Error.Wrap(s.db.MarkRead(ctx, userID, ids))
}

// Unread returns the unread count of a user.
func (s *Service) Unread(ctx context.Context, userID int64) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.CountUnread(ctx, userID)
}
