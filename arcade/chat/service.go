// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package chat

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/notifications"
	"tempora.dev/tempora/arcade/users"
)

// Config holds chat configuration.
type Config struct {
	SystemChannelID  int64 `help:"channel every session joins on start" default:"1"`
	MaxMessageLength int   `help:"longest accepted message in characters" default:"1000"`
	HistoryLimit     int   `help:"default page size for message reads" default:"50"`
}

// Service runs channel membership, message ingestion and the read
// paths over the Redis store and the durable tables.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	db     DB
	userdb users.DB
	store  *Store
	hub    *Hub
	notify *notifications.Service
	events *eventhub.Hub

	config Config
	nowFn  func() time.Time
}

// NewService returns a chat service. The id counter is primed from the
// persisted maximum so restarts never reissue ids.
func NewService(ctx context.Context, log *zap.Logger, db DB, userdb users.DB, store *Store, hub *Hub, notify *notifications.Service, events *eventhub.Hub, config Config) (*Service, error) {
	if config.SystemChannelID == 0 {
		config.SystemChannelID = 1
	}
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = 1000
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}

	maxID, err := db.Messages().MaxID(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := store.Prime(ctx, maxID); err != nil {
		return nil, err
	}

	return &Service{
		log:    log,
		db:     db,
		userdb: userdb,
		store:  store,
		hub:    hub,
		notify: notify,
		events: events,
		config: config,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// TestSetNow overrides the clock.
func (s *Service) TestSetNow(now func() time.Time) { s.nowFn = now }

// Start services a fresh session: the user joins the system channel and
// re-enters the hub's fan-out maps for every durable membership.
func (s *Service) Start(ctx context.Context, userID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := s.Join(ctx, userID, s.config.SystemChannelID); err != nil && !ErrForbidden.Has(err) {
		return err
	}
	joined, err := s.store.Joined(ctx, userID)
	if err != nil {
		return err
	}
	for _, channelID := range joined {
		s.hub.JoinChannel(channelID, userID)
	}
	return nil
}

// Send validates, stores and fans out one message.
func (s *Service) Send(ctx context.Context, senderID, channelID int64, content string, msgType MessageType, clientUUID *uuid.UUID) (msg *Message, err error) {
	defer mon.Task()(&ctx)(&err)

	sender, err := s.userdb.Users().Get(ctx, senderID)
	if err != nil {
		return nil, ErrNotFound.New("user %d", senderID)
	}
	if sender.Restricted() {
		return nil, ErrForbidden.New("restricted users cannot chat")
	}
	if content == "" {
		return nil, ErrValidation.New("empty message")
	}
	if utf8.RuneCountInString(content) > s.config.MaxMessageLength {
		return nil, ErrValidation.New("message exceeds %d characters", s.config.MaxMessageLength)
	}
	if msgType == "" {
		msgType = MessagePlain
	}

	channel, err := s.db.Channels().Get(ctx, channelID)
	if err != nil {
		return nil, ErrNotFound.New("channel %d", channelID)
	}
	if member, err := s.store.IsMember(ctx, channelID, senderID); err != nil {
		return nil, err
	} else if !member {
		return nil, ErrForbidden.New("not a member of channel %d", channelID)
	}

	now := s.nowFn()
	if silence, err := s.db.Silences().ActiveFor(ctx, senderID, channelID, now); err == nil && silence != nil {
		mon.Event("chat_send_silenced")
		return nil, ErrForbidden.New("silenced in channel %d", channelID)
	}

	id, err := s.store.NextID(ctx)
	if err != nil {
		return nil, err
	}
	msg = &Message{
		ID:         id,
		ChannelID:  channelID,
		SenderID:   senderID,
		Content:    content,
		Type:       msgType,
		ClientUUID: clientUUID,
		CreatedAt:  now,
	}
	if err := s.store.Push(ctx, msg); err != nil {
		return nil, err
	}

	frame := Frame{Event: EventMessageNew, Data: messageFrame(msg, sender)}
	if msg.IsBotCommand() && channel.CanEcho() {
		// bot commands stay between the player and the bot
		s.hub.SendUser(ctx, senderID, frame)
	} else {
		s.hub.BroadcastChannel(ctx, channelID, frame)
	}

	s.events.Publish(ctx, eventhub.KindMessageSent, eventhub.MessageSent{
		ChannelID: channelID,
		MessageID: id,
		SenderID:  senderID,
	})

	s.notifyOffline(ctx, channel, msg, sender)
	mon.Event("chat_message_sent")
	return msg, nil
}

// messageFrame is the wire shape of a fanned-out message.
func messageFrame(msg *Message, sender *users.User) map[string]any {
	return map[string]any{
		"message": msg,
		"sender":  sender,
	}
}

// notifyOffline writes notification rows for channel types with
// offline delivery semantics.
func (s *Service) notifyOffline(ctx context.Context, channel *Channel, msg *Message, sender *users.User) {
	if s.notify == nil {
		return
	}
	switch channel.Type {
	case TypePM:
		a, b, ok := ParsePMName(channel.Name)
		if !ok {
			return
		}
		recipient := a
		if recipient == msg.SenderID {
			recipient = b
		}
		err := s.notify.Notify(ctx, recipient, msg.SenderID, notifications.NameChannelMessage, map[string]any{
			"channel_id": channel.ID,
			"title":      sender.Username,
			"cover_url":  sender.CoverURL,
		})
		if err != nil {
			s.log.Warn("pm notification failed", zap.Int64("channel_id", channel.ID), zap.Error(err))
		}

	case TypeTeam:
		members, err := s.store.Members(ctx, channel.ID)
		if err != nil {
			s.log.Warn("team member lookup failed", zap.Int64("channel_id", channel.ID), zap.Error(err))
			return
		}
		for _, member := range members {
			if member == msg.SenderID {
				continue
			}
			err := s.notify.Notify(ctx, member, msg.SenderID, notifications.NameTeamMessage, map[string]any{
				"channel_id": channel.ID,
				"title":      channel.Name,
			})
			if err != nil {
				s.log.Warn("team notification failed", zap.Int64("channel_id", channel.ID), zap.Error(err))
			}
		}
	}
}

// PMName returns the canonical PM channel name for a user pair.
func PMName(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("pm_%d_%d", a, b)
}

// ParsePMName extracts the user pair from a PM channel name.
func ParsePMName(name string) (a, b int64, ok bool) {
	n, err := fmt.Sscanf(name, "pm_%d_%d", &a, &b)
	return a, b, err == nil && n == 2
}

// RoomChannelName returns the channel name of a multiplayer room.
func RoomChannelName(roomID int64) string {
	return fmt.Sprintf("mp_%d", roomID)
}

// OpenPM finds or creates the PM channel between two users, trying both
// historical name orders, and joins both parties.
func (s *Service) OpenPM(ctx context.Context, userID, targetID int64) (channel *Channel, err error) {
	defer mon.Task()(&ctx)(&err)

	if userID == targetID {
		return nil, ErrValidation.New("cannot message yourself")
	}
	user, err := s.userdb.Users().Get(ctx, userID)
	if err != nil {
		return nil, ErrNotFound.New("user %d", userID)
	}
	if user.Restricted() {
		return nil, ErrForbidden.New("restricted users cannot chat")
	}
	target, err := s.userdb.Users().Get(ctx, targetID)
	if err != nil {
		return nil, ErrNotFound.New("user %d", targetID)
	}

	// a block in either direction closes the line
	if rel, err := s.userdb.Relationships().Get(ctx, targetID, userID); err == nil && rel != nil && rel.Kind == users.RelationBlock {
		return nil, ErrForbidden.New("user %d does not accept messages", targetID)
	}
	if rel, err := s.userdb.Relationships().Get(ctx, userID, targetID); err == nil && rel != nil && rel.Kind == users.RelationBlock {
		return nil, ErrForbidden.New("user %d is blocked", targetID)
	}

	for _, name := range []string{PMName(userID, targetID), fmt.Sprintf("pm_%d_%d", targetID, userID)} {
		if channel, err := s.db.Channels().GetByName(ctx, name); err == nil {
			if err := s.joinBoth(ctx, channel, userID, targetID); err != nil {
				return nil, err
			}
			return channel, nil
		}
	}

	channel = &Channel{
		Name:        PMName(userID, targetID),
		Description: fmt.Sprintf("%s & %s", user.Username, target.Username),
		Type:        TypePM,
		CreatedAt:   s.nowFn(),
	}
	if err := s.db.Channels().Insert(ctx, channel); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := s.joinBoth(ctx, channel, userID, targetID); err != nil {
		return nil, err
	}
	mon.Event("chat_pm_opened")
	return channel, nil
}

func (s *Service) joinBoth(ctx context.Context, channel *Channel, userID, targetID int64) error {
	for _, id := range []int64{userID, targetID} {
		if err := s.store.Join(ctx, channel.ID, id); err != nil {
			return err
		}
		s.hub.JoinChannel(channel.ID, id)
		s.hub.SendUser(ctx, id, Frame{Event: EventChannelJoin, Data: channel})
	}
	return nil
}

// CreateAnnouncement opens an ANNOUNCE channel and pushes the first
// message to the listed recipients. Moderator privileges are required.
func (s *Service) CreateAnnouncement(ctx context.Context, senderID int64, name, description, content string, recipientIDs []int64) (channel *Channel, msg *Message, err error) {
	defer mon.Task()(&ctx)(&err)

	sender, err := s.userdb.Users().Get(ctx, senderID)
	if err != nil {
		return nil, nil, ErrNotFound.New("user %d", senderID)
	}
	if !sender.Privileges.Has(users.PrivilegeModerator) && !sender.Privileges.Has(users.PrivilegeAdmin) {
		return nil, nil, ErrForbidden.New("announcements require moderator privileges")
	}
	if name == "" || content == "" {
		return nil, nil, ErrValidation.New("announcement needs a name and a message")
	}
	if len(recipientIDs) == 0 {
		return nil, nil, ErrValidation.New("announcement needs recipients")
	}

	channel = &Channel{
		Name:        name,
		Description: description,
		Type:        TypeAnnounce,
		CreatedAt:   s.nowFn(),
	}
	if err := s.db.Channels().Insert(ctx, channel); err != nil {
		return nil, nil, Error.Wrap(err)
	}

	if err := s.store.Join(ctx, channel.ID, senderID); err != nil {
		return nil, nil, err
	}
	s.hub.JoinChannel(channel.ID, senderID)
	for _, recipient := range recipientIDs {
		if recipient == senderID {
			continue
		}
		if err := s.store.Join(ctx, channel.ID, recipient); err != nil {
			return nil, nil, err
		}
		s.hub.JoinChannel(channel.ID, recipient)
		s.hub.SendUser(ctx, recipient, Frame{Event: EventChannelJoin, Data: channel})
		if s.notify != nil {
			_ = s.notify.Notify(ctx, recipient, senderID, notifications.NameAnnouncement, map[string]any{
				"channel_id": channel.ID,
				"title":      name,
			})
		}
	}

	msg, err = s.Send(ctx, senderID, channel.ID, content, MessagePlain, nil)
	if err != nil {
		return nil, nil, err
	}
	return channel, msg, nil
}

// Join makes the user a durable member of a channel.
func (s *Service) Join(ctx context.Context, userID, channelID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	user, err := s.userdb.Users().Get(ctx, userID)
	if err != nil {
		return ErrNotFound.New("user %d", userID)
	}
	if user.Restricted() {
		return ErrForbidden.New("restricted users cannot join channels")
	}
	channel, err := s.db.Channels().Get(ctx, channelID)
	if err != nil {
		return ErrNotFound.New("channel %d", channelID)
	}
	switch channel.Type {
	case TypePM, TypeAnnounce:
		// membership to these is assigned by their create paths
		if member, err := s.store.IsMember(ctx, channelID, userID); err != nil || !member {
			return ErrForbidden.New("channel %d is invite only", channelID)
		}
		return nil
	}

	member, err := s.store.IsMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if member {
		// already joined; re-mirror the hub but send no duplicate frame
		s.hub.JoinChannel(channelID, userID)
		return nil
	}

	if err := s.store.Join(ctx, channelID, userID); err != nil {
		return err
	}
	s.hub.JoinChannel(channelID, userID)
	s.hub.SendUser(ctx, userID, Frame{Event: EventChannelJoin, Data: channel})
	mon.Event("chat_channel_joined")
	return nil
}

// Leave removes the user from a channel.
func (s *Service) Leave(ctx context.Context, userID, channelID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	channel, err := s.db.Channels().Get(ctx, channelID)
	if err != nil {
		return ErrNotFound.New("channel %d", channelID)
	}
	if err := s.store.Leave(ctx, channelID, userID); err != nil {
		return err
	}
	s.hub.LeaveChannel(channelID, userID)
	s.hub.SendUser(ctx, userID, Frame{Event: EventChannelPart, Data: channel})
	return nil
}

// MarkRead advances the user's read marker in a channel.
func (s *Service) MarkRead(ctx context.Context, userID, channelID, messageID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if member, err := s.store.IsMember(ctx, channelID, userID); err != nil {
		return err
	} else if !member {
		return ErrForbidden.New("not a member of channel %d", channelID)
	}
	return s.store.SetLastRead(ctx, channelID, userID, messageID)
}

// Messages serves channel history: Redis first, backfilled from the
// durable table when the requested slice has aged out.
func (s *Service) Messages(ctx context.Context, userID, channelID int64, limit int, since, until int64) (messages []*Message, senders map[int64]*users.User, err error) {
	defer mon.Task()(&ctx)(&err)

	if member, err := s.store.IsMember(ctx, channelID, userID); err != nil {
		return nil, nil, err
	} else if !member {
		return nil, nil, ErrForbidden.New("not a member of channel %d", channelID)
	}
	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}

	messages, err = s.store.Range(ctx, channelID, since, until, limit)
	if err != nil {
		s.log.Warn("redis history read failed, using store", zap.Int64("channel_id", channelID), zap.Error(err))
		messages = nil
	}

	if len(messages) < limit && since == 0 {
		before := until
		if len(messages) > 0 {
			before = messages[0].ID
		}
		older, err := s.db.Messages().ListBefore(ctx, channelID, before, limit-len(messages))
		if err != nil {
			return nil, nil, Error.Wrap(err)
		}
		// ListBefore is newest first; flip and prepend
		for _, msg := range older {
			messages = append([]*Message{msg}, messages...)
		}
	}

	senders, err = s.resolveSenders(ctx, messages)
	if err != nil {
		return nil, nil, err
	}
	return messages, senders, nil
}

func (s *Service) resolveSenders(ctx context.Context, messages []*Message) (map[int64]*users.User, error) {
	senders := make(map[int64]*users.User, len(messages))
	if len(messages) == 0 {
		return senders, nil
	}
	seen := map[int64]bool{}
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		if !seen[msg.SenderID] {
			seen[msg.SenderID] = true
			ids = append(ids, msg.SenderID)
		}
	}
	list, err := s.userdb.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for _, user := range list {
		senders[user.ID] = user
	}
	return senders, nil
}

// ChannelPresence is one joined channel in the updates feed.
type ChannelPresence struct {
	Channel       *Channel `json:"channel"`
	LastReadID    int64    `json:"last_read_id"`
	LastMessageID int64    `json:"last_message_id"`
}

// Updates is the poll payload for clients without a live socket.
type Updates struct {
	Presence []ChannelPresence `json:"presence"`
	Silences []*Silence        `json:"silences"`
}

// Updates returns the caller's joined channels with read markers plus
// recent silences after sinceSilenceID.
func (s *Service) Updates(ctx context.Context, userID, sinceSilenceID int64) (updates *Updates, err error) {
	defer mon.Task()(&ctx)(&err)

	joined, err := s.store.Joined(ctx, userID)
	if err != nil {
		return nil, err
	}
	channels, err := s.db.Channels().ListByIDs(ctx, joined)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	updates = &Updates{Presence: make([]ChannelPresence, 0, len(channels))}
	for _, channel := range channels {
		lastRead, err := s.store.LastReadID(ctx, channel.ID, userID)
		if err != nil {
			return nil, err
		}
		lastMsg, err := s.store.LastMessageID(ctx, channel.ID)
		if err != nil {
			return nil, err
		}
		updates.Presence = append(updates.Presence, ChannelPresence{
			Channel:       channel,
			LastReadID:    lastRead,
			LastMessageID: lastMsg,
		})
	}

	updates.Silences, err = s.db.Silences().ListSince(ctx, sinceSilenceID, 100)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return updates, nil
}

// PublicChannels lists the joinable public channels.
func (s *Service) PublicChannels(ctx context.Context) (channels []*Channel, err error) {
	defer mon.Task()(&ctx)(&err)
	channels, err = s.db.Channels().ListPublic(ctx)
	return channels, Error.Wrap(err)
}

// EnsureRoomChannel creates the chat channel of a multiplayer room and
// joins the host, returning the channel id. Rooms call this on create.
func (s *Service) EnsureRoomChannel(ctx context.Context, roomID, hostID int64) (channelID int64, err error) {
	defer mon.Task()(&ctx)(&err)

	name := RoomChannelName(roomID)
	channel, err := s.db.Channels().GetByName(ctx, name)
	if err != nil {
		channel = &Channel{
			Name:      name,
			Type:      TypeMultiplayer,
			CreatedAt: s.nowFn(),
		}
		if err := s.db.Channels().Insert(ctx, channel); err != nil {
			return 0, Error.Wrap(err)
		}
	}
	if err := s.store.Join(ctx, channel.ID, hostID); err != nil {
		return 0, err
	}
	s.hub.JoinChannel(channel.ID, hostID)
	return channel.ID, nil
}

// JoinRoomChannel adds a room participant to the room's channel.
func (s *Service) JoinRoomChannel(ctx context.Context, roomID, userID int64) error {
	channel, err := s.db.Channels().GetByName(ctx, RoomChannelName(roomID))
	if err != nil {
		return ErrNotFound.New("room channel %d", roomID)
	}
	if err := s.store.Join(ctx, channel.ID, userID); err != nil {
		return err
	}
	s.hub.JoinChannel(channel.ID, userID)
	s.hub.SendUser(ctx, userID, Frame{Event: EventChannelJoin, Data: channel})
	return nil
}

// LeaveRoomChannel removes a room participant from the room's channel.
func (s *Service) LeaveRoomChannel(ctx context.Context, roomID, userID int64) error {
	channel, err := s.db.Channels().GetByName(ctx, RoomChannelName(roomID))
	if err != nil {
		return nil
	}
	return s.Leave(ctx, userID, channel.ID)
}

// CloseRoomChannel removes the room's channel once the room ends.
func (s *Service) CloseRoomChannel(ctx context.Context, roomID int64) error {
	channel, err := s.db.Channels().GetByName(ctx, RoomChannelName(roomID))
	if err != nil {
		return nil
	}
	members, err := s.store.Members(ctx, channel.ID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if err := s.store.Leave(ctx, channel.ID, member); err != nil {
			return err
		}
		s.hub.LeaveChannel(channel.ID, member)
		s.hub.SendUser(ctx, member, Frame{Event: EventChannelPart, Data: channel})
	}
	return Error.Wrap(s.db.Channels().Delete(ctx, channel.ID))
}
