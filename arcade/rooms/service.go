// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rooms

import (
	"context"
	"crypto/subtle"
	"time"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
)

// ChannelManager is the slice of the chat service rooms drive: every
// room owns one multiplayer channel.
type ChannelManager interface {
	EnsureRoomChannel(ctx context.Context, roomID, hostID int64) (channelID int64, err error)
	JoinRoomChannel(ctx context.Context, roomID, userID int64) error
	LeaveRoomChannel(ctx context.Context, roomID, userID int64) error
	CloseRoomChannel(ctx context.Context, roomID int64) error
}

// Config holds room configuration.
type Config struct {
	DefaultDuration time.Duration `help:"room lifetime when the request does not set one" default:"24h"`
	ListLimit       int           `help:"rooms returned per listing page" default:"50"`
}

// Service manages multiplayer rooms. It implements the score pipeline's
// RoomHook so playlist plays feed the room projections.
//
// architecture: Service
type Service struct {
	log      *zap.Logger
	db       DB
	userdb   users.DB
	channels ChannelManager
	events   *eventhub.Hub

	config Config
	nowFn  func() time.Time
}

// NewService returns a rooms service.
func NewService(log *zap.Logger, db DB, userdb users.DB, channels ChannelManager, events *eventhub.Hub, config Config) *Service {
	if config.DefaultDuration <= 0 {
		config.DefaultDuration = 24 * time.Hour
	}
	if config.ListLimit <= 0 {
		config.ListLimit = 50
	}
	return &Service{
		log:      log,
		db:       db,
		userdb:   userdb,
		channels: channels,
		events:   events,
		config:   config,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// TestSetNow overrides the clock.
func (s *Service) TestSetNow(now func() time.Time) { s.nowFn = now }

// PlaylistItemRequest is one requested playlist entry.
type PlaylistItemRequest struct {
	BeatmapID    int64         `json:"beatmap_id"`
	Ruleset      rulesets.ID   `json:"ruleset_id"`
	RequiredMods rulesets.Mods `json:"required_mods,omitempty"`
	AllowedMods  rulesets.Mods `json:"allowed_mods,omitempty"`
}

// CreateRoomRequest carries a room creation.
type CreateRoomRequest struct {
	Name      string                `json:"name"`
	Category  Category              `json:"category"`
	Type      MatchType             `json:"type"`
	QueueMode QueueMode             `json:"queue_mode"`
	Password  string                `json:"password,omitempty"`
	Duration  time.Duration         `json:"-"`
	Playlist  []PlaylistItemRequest `json:"playlist"`
}

// Create opens a room with its chat channel and playlist, and seats the
// host.
func (s *Service) Create(ctx context.Context, hostID int64, req CreateRoomRequest) (room *Room, err error) {
	defer mon.Task()(&ctx)(&err)

	host, err := s.userdb.Users().Get(ctx, hostID)
	if err != nil {
		return nil, ErrNotFound.New("user %d", hostID)
	}
	if host.Restricted() {
		return nil, ErrForbidden.New("restricted users cannot host rooms")
	}
	if req.Name == "" {
		return nil, ErrValidation.New("room needs a name")
	}
	if len(req.Playlist) == 0 {
		return nil, ErrValidation.New("playlist cannot be empty")
	}
	for i, item := range req.Playlist {
		if item.BeatmapID == 0 {
			return nil, ErrValidation.New("playlist item %d misses beatmap_id", i)
		}
		if !item.Ruleset.Valid() {
			return nil, ErrValidation.New("playlist item %d has unknown ruleset %d", i, int(item.Ruleset))
		}
	}
	if req.Category == "" {
		req.Category = CategoryNormal
	}
	if !req.Category.Valid() {
		return nil, ErrValidation.New("unknown category %q", req.Category)
	}
	if req.Type == "" {
		req.Type = MatchHeadToHead
	}
	if !req.Type.Valid() {
		return nil, ErrValidation.New("unknown match type %q", req.Type)
	}
	if req.QueueMode == "" {
		req.QueueMode = QueueHostOnly
	}
	duration := req.Duration
	if duration <= 0 {
		duration = s.config.DefaultDuration
	}

	now := s.nowFn()
	ends := now.Add(duration)
	room = &Room{
		Name:             req.Name,
		HostID:           hostID,
		Category:         req.Category,
		Type:             req.Type,
		QueueMode:        req.QueueMode,
		Status:           StatusIdle,
		Password:         req.Password,
		ParticipantCount: 1,
		StartsAt:         now,
		EndsAt:           &ends,
		CreatedAt:        now,
	}
	if err := s.db.Rooms().Insert(ctx, room); err != nil {
		return nil, Error.Wrap(err)
	}

	for i, item := range req.Playlist {
		err := s.db.Playlists().Insert(ctx, &PlaylistItem{
			RoomID:       room.ID,
			OwnerID:      hostID,
			BeatmapID:    item.BeatmapID,
			Ruleset:      item.Ruleset,
			RequiredMods: item.RequiredMods,
			AllowedMods:  item.AllowedMods,
			PlayOrder:    i,
		})
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	if s.channels != nil {
		channelID, err := s.channels.EnsureRoomChannel(ctx, room.ID, hostID)
		if err != nil {
			return nil, err
		}
		room.ChannelID = channelID
		if err := s.db.Rooms().Update(ctx, room); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	if err := s.db.Participants().Upsert(ctx, room.ID, hostID, now); err != nil {
		return nil, Error.Wrap(err)
	}
	s.logEvent(ctx, room.ID, hostID, EventRoomCreated)
	s.events.Publish(ctx, eventhub.KindRoomCreated, eventhub.RoomCreated{
		RoomID: room.ID,
		HostID: hostID,
	})
	mon.Event("room_created")
	return room, nil
}

// Get returns a room with its playlist.
func (s *Service) Get(ctx context.Context, roomID int64) (room *Room, playlist []*PlaylistItem, err error) {
	defer mon.Task()(&ctx)(&err)

	room, err = s.db.Rooms().Get(ctx, roomID)
	if err != nil {
		return nil, nil, ErrNotFound.New("room %d", roomID)
	}
	playlist, err = s.db.Playlists().ListByRoom(ctx, roomID)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	return room, playlist, nil
}

// List returns open rooms, optionally filtered by category.
func (s *Service) List(ctx context.Context, category Category) (rooms []*Room, err error) {
	defer mon.Task()(&ctx)(&err)
	rooms, err = s.db.Rooms().ListActive(ctx, category, s.config.ListLimit)
	return rooms, Error.Wrap(err)
}

// Join seats a user in the room, verifying the password when one is
// set. Rejoining after a leave clears the departure mark.
func (s *Service) Join(ctx context.Context, roomID, userID int64, password string) (err error) {
	defer mon.Task()(&ctx)(&err)

	room, err := s.db.Rooms().Get(ctx, roomID)
	if err != nil {
		return ErrNotFound.New("room %d", roomID)
	}
	now := s.nowFn()
	if room.Ended(now) {
		return ErrEnded.New("room %d", roomID)
	}
	user, err := s.userdb.Users().Get(ctx, userID)
	if err != nil {
		return ErrNotFound.New("user %d", userID)
	}
	if user.Restricted() {
		return ErrForbidden.New("restricted users cannot join rooms")
	}
	if room.HasPassword() && subtle.ConstantTimeCompare([]byte(room.Password), []byte(password)) != 1 {
		mon.Event("room_join_bad_password")
		return ErrForbidden.New("wrong password for room %d", roomID)
	}

	if err := s.db.Participants().Upsert(ctx, roomID, userID, now); err != nil {
		return Error.Wrap(err)
	}
	if err := s.refreshParticipantCount(ctx, room); err != nil {
		return err
	}
	if s.channels != nil {
		if err := s.channels.JoinRoomChannel(ctx, roomID, userID); err != nil {
			s.log.Warn("room channel join failed", zap.Int64("room_id", roomID), zap.Error(err))
		}
	}
	s.logEvent(ctx, roomID, userID, EventPlayerJoined)
	return nil
}

func (s *Service) refreshParticipantCount(ctx context.Context, room *Room) error {
	count, err := s.db.Participants().CountActive(ctx, room.ID)
	if err != nil {
		return Error.Wrap(err)
	}
	room.ParticipantCount = count
	return Error.Wrap(s.db.Rooms().Update(ctx, room))
}

// Leave removes a user. A departing host hands the room to the earliest
// joined remaining participant; with nobody left the room ends.
func (s *Service) Leave(ctx context.Context, roomID, userID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	room, err := s.db.Rooms().Get(ctx, roomID)
	if err != nil {
		return ErrNotFound.New("room %d", roomID)
	}
	now := s.nowFn()
	if err := s.db.Participants().MarkLeft(ctx, roomID, userID, now); err != nil {
		return Error.Wrap(err)
	}
	if s.channels != nil {
		if err := s.channels.LeaveRoomChannel(ctx, roomID, userID); err != nil {
			s.log.Warn("room channel leave failed", zap.Int64("room_id", roomID), zap.Error(err))
		}
	}
	s.logEvent(ctx, roomID, userID, EventPlayerLeft)

	remaining, err := s.db.Participants().Active(ctx, roomID)
	if err != nil {
		return Error.Wrap(err)
	}
	if len(remaining) == 0 {
		return s.End(ctx, room)
	}

	if room.HostID == userID {
		successor := remaining[0]
		room.HostID = successor.UserID
		s.logEvent(ctx, roomID, successor.UserID, EventHostChanged)
		s.log.Info("room host transferred",
			zap.Int64("room_id", roomID),
			zap.Int64("host_id", successor.UserID))
	}
	room.ParticipantCount = len(remaining)
	return Error.Wrap(s.db.Rooms().Update(ctx, room))
}

// End closes the room and purges its channel.
func (s *Service) End(ctx context.Context, room *Room) (err error) {
	defer mon.Task()(&ctx)(&err)

	now := s.nowFn()
	room.EndsAt = &now
	room.Status = StatusIdle
	room.ParticipantCount = 0
	if err := s.db.Rooms().Update(ctx, room); err != nil {
		return Error.Wrap(err)
	}
	if s.channels != nil {
		if err := s.channels.CloseRoomChannel(ctx, room.ID); err != nil {
			s.log.Warn("room channel close failed", zap.Int64("room_id", room.ID), zap.Error(err))
		}
	}
	s.logEvent(ctx, room.ID, 0, EventRoomDisbanded)
	s.events.Publish(ctx, eventhub.KindRoomEnded, eventhub.RoomEnded{RoomID: room.ID})
	mon.Event("room_ended")
	return nil
}

// ScoreProcessed implements the score pipeline's room hook: playlist
// plays maintain the item best, the attempt counter, the lifecycle log
// and daily challenge streaks.
func (s *Service) ScoreProcessed(ctx context.Context, token *scores.Token, score *scores.Score) (err error) {
	defer mon.Task()(&ctx)(&err)

	room, err := s.db.Rooms().Get(ctx, token.RoomID)
	if err != nil {
		return ErrNotFound.New("room %d", token.RoomID)
	}
	item, err := s.db.Playlists().Get(ctx, token.PlaylistItemID)
	if err != nil {
		return ErrNotFound.New("playlist item %d", token.PlaylistItemID)
	}
	if item.RoomID != room.ID {
		return ErrValidation.New("playlist item %d belongs to room %d", item.ID, item.RoomID)
	}

	if _, err := s.db.Attempts().Increment(ctx, room.ID, score.UserID); err != nil {
		return Error.Wrap(err)
	}

	prior, err := s.db.BestScores().Get(ctx, room.ID, item.ID, score.UserID)
	if err != nil || prior.TotalScore < score.TotalScore {
		err := s.db.BestScores().Upsert(ctx, &BestScore{
			RoomID:         room.ID,
			PlaylistItemID: item.ID,
			UserID:         score.UserID,
			ScoreID:        score.ID,
			TotalScore:     score.TotalScore,
			Accuracy:       score.Accuracy,
			PP:             score.PPValue(),
			Passed:         score.Passed,
			UpdatedAt:      s.nowFn(),
		})
		if err != nil {
			return Error.Wrap(err)
		}
	}

	s.logEvent(ctx, room.ID, score.UserID, EventGameCompleted)

	if room.Category == CategoryDailyChallenge && score.Passed {
		if err := s.recordChallenge(ctx, score.UserID); err != nil {
			return err
		}
	}
	return nil
}

// recordChallenge advances the user's streaks; a date already counted
// changes nothing.
func (s *Service) recordChallenge(ctx context.Context, userID int64) error {
	stats, err := s.db.DailyChallenge().Get(ctx, userID)
	if err != nil {
		return Error.Wrap(err)
	}
	if !AdvanceStreaks(stats, s.nowFn()) {
		return nil
	}
	mon.Event("daily_challenge_counted")
	return Error.Wrap(s.db.DailyChallenge().Update(ctx, stats))
}

// RotateDailyChallenge ends a daily challenge room carried over from an
// earlier UTC date. With yesterday's room closed, the pre-seeded row
// whose window covers today becomes the active challenge.
func (s *Service) RotateDailyChallenge(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	now := s.nowFn()
	room, err := s.db.Rooms().ActiveDailyChallenge(ctx, now)
	if err != nil {
		if ErrNotFound.Has(err) {
			return nil
		}
		return Error.Wrap(err)
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if room.StartsAt.Before(today) {
		s.log.Info("rotating daily challenge", zap.Int64("room_id", room.ID))
		return s.End(ctx, room)
	}
	return nil
}

// Leaderboard aggregates each participant's best totals across the
// room's playlist.
func (s *Service) Leaderboard(ctx context.Context, roomID int64) (rows []*AggregateScore, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := s.db.Rooms().Get(ctx, roomID); err != nil {
		return nil, ErrNotFound.New("room %d", roomID)
	}
	rows, err = s.db.BestScores().AggregateByUser(ctx, roomID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for _, row := range rows {
		if attempts, err := s.db.Attempts().Get(ctx, roomID, row.UserID); err == nil {
			row.Attempts = attempts
		}
	}
	return rows, nil
}

// ItemLeaderboard returns the best rows of one playlist item.
func (s *Service) ItemLeaderboard(ctx context.Context, roomID, itemID int64, limit int) (rows []*BestScore, err error) {
	defer mon.Task()(&ctx)(&err)
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	rows, err = s.db.BestScores().TopForItem(ctx, roomID, itemID, limit)
	return rows, Error.Wrap(err)
}

// EventLog returns the room's lifecycle entries.
func (s *Service) EventLog(ctx context.Context, roomID int64, limit int) (events []*MultiplayerEvent, err error) {
	defer mon.Task()(&ctx)(&err)
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	events, err = s.db.Events().ListByRoom(ctx, roomID, limit)
	return events, Error.Wrap(err)
}

// EnsureRow seeds a zero streak row for a fresh account. It satisfies
// the auth package's daily-stats bootstrap hook.
func (s *Service) EnsureRow(ctx context.Context, userID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = s.db.DailyChallenge().Get(ctx, userID)
	return Error.Wrap(err)
}

// ChallengeStats returns the user's daily challenge streaks.
func (s *Service) ChallengeStats(ctx context.Context, userID int64) (stats *DailyChallengeStats, err error) {
	defer mon.Task()(&ctx)(&err)
	stats, err = s.db.DailyChallenge().Get(ctx, userID)
	return stats, Error.Wrap(err)
}

func (s *Service) logEvent(ctx context.Context, roomID, userID int64, eventType EventType) {
	err := s.db.Events().Insert(ctx, &MultiplayerEvent{
		RoomID: roomID,
		UserID: userID,
		Type:   eventType,
		At:     s.nowFn(),
	})
	if err != nil {
		s.log.Warn("room event insert failed",
			zap.Int64("room_id", roomID),
			zap.String("event", string(eventType)),
			zap.Error(err))
	}
}
