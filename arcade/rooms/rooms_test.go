// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rooms_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/internal/testcontext"
)

func TestAdvanceStreaks(t *testing.T) {
	day := func(s string) time.Time {
		parsed, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return parsed
	}
	stats := &rooms.DailyChallengeStats{UserID: 1}

	require.True(t, rooms.AdvanceStreaks(stats, day("2026-08-03"))) // monday
	require.Equal(t, 1, stats.DailyStreakCurrent)
	require.Equal(t, 1, stats.WeeklyStreakCurrent)

	// same date does not count twice
	require.False(t, rooms.AdvanceStreaks(stats, day("2026-08-03")))
	require.Equal(t, int64(1), stats.PlayCount)

	// next day extends the daily streak, same week leaves weekly alone
	require.True(t, rooms.AdvanceStreaks(stats, day("2026-08-04")))
	require.Equal(t, 2, stats.DailyStreakCurrent)
	require.Equal(t, 1, stats.WeeklyStreakCurrent)

	// a gap resets daily but the following week extends weekly
	require.True(t, rooms.AdvanceStreaks(stats, day("2026-08-10")))
	require.Equal(t, 1, stats.DailyStreakCurrent)
	require.Equal(t, 2, stats.DailyStreakBest)
	require.Equal(t, 2, stats.WeeklyStreakCurrent)

	// a long gap resets both currents, bests survive
	require.True(t, rooms.AdvanceStreaks(stats, day("2026-09-01")))
	require.Equal(t, 1, stats.DailyStreakCurrent)
	require.Equal(t, 1, stats.WeeklyStreakCurrent)
	require.Equal(t, 2, stats.WeeklyStreakBest)
}

// in-memory room tables

type memDB struct {
	mu           sync.Mutex
	rooms        map[int64]*rooms.Room
	playlists    map[int64]*rooms.PlaylistItem
	participants []*rooms.Participant
	bests        map[[3]int64]*rooms.BestScore
	attempts     map[[2]int64]int64
	events       []*rooms.MultiplayerEvent
	challenges   map[int64]*rooms.DailyChallengeStats
	nextID       int64
}

func newMemDB() *memDB {
	return &memDB{
		rooms:      map[int64]*rooms.Room{},
		playlists:  map[int64]*rooms.PlaylistItem{},
		bests:      map[[3]int64]*rooms.BestScore{},
		attempts:   map[[2]int64]int64{},
		challenges: map[int64]*rooms.DailyChallengeStats{},
	}
}

func (db *memDB) Rooms() rooms.Rooms                   { return (*memRooms)(db) }
func (db *memDB) Playlists() rooms.Playlists           { return (*memPlaylists)(db) }
func (db *memDB) Participants() rooms.Participants     { return (*memParticipants)(db) }
func (db *memDB) BestScores() rooms.BestScores         { return (*memBests)(db) }
func (db *memDB) Attempts() rooms.Attempts             { return (*memAttempts)(db) }
func (db *memDB) Events() rooms.Events                 { return (*memEvents)(db) }
func (db *memDB) DailyChallenge() rooms.DailyChallenge { return (*memChallenges)(db) }

type memRooms memDB

func (m *memRooms) Insert(ctx context.Context, room *rooms.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	room.ID = m.nextID
	clone := *room
	m.rooms[room.ID] = &clone
	return nil
}

func (m *memRooms) Get(ctx context.Context, id int64) (*rooms.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[id]; ok {
		clone := *room
		return &clone, nil
	}
	return nil, rooms.ErrNotFound.New("room %d", id)
}

func (m *memRooms) Update(ctx context.Context, room *rooms.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *room
	m.rooms[room.ID] = &clone
	return nil
}

func (m *memRooms) ListActive(ctx context.Context, category rooms.Category, limit int) ([]*rooms.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []*rooms.Room
	for _, room := range m.rooms {
		if room.Ended(now) {
			continue
		}
		if category != "" && room.Category != category {
			continue
		}
		clone := *room
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memRooms) ActiveDailyChallenge(ctx context.Context, at time.Time) (*rooms.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, room := range m.rooms {
		if room.Category == rooms.CategoryDailyChallenge && !room.Ended(at) {
			clone := *room
			return &clone, nil
		}
	}
	return nil, rooms.ErrNotFound.New("no active challenge")
}

type memPlaylists memDB

func (m *memPlaylists) Insert(ctx context.Context, item *rooms.PlaylistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	m.playlists[item.ID] = item
	return nil
}

func (m *memPlaylists) Get(ctx context.Context, id int64) (*rooms.PlaylistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.playlists[id]; ok {
		return item, nil
	}
	return nil, rooms.ErrNotFound.New("item %d", id)
}

func (m *memPlaylists) ListByRoom(ctx context.Context, roomID int64) ([]*rooms.PlaylistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*rooms.PlaylistItem
	for _, item := range m.playlists {
		if item.RoomID == roomID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayOrder < out[j].PlayOrder })
	return out, nil
}

func (m *memPlaylists) MarkExpired(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.playlists[id]; ok {
		item.Expired = true
	}
	return nil
}

type memParticipants memDB

func (m *memParticipants) Upsert(ctx context.Context, roomID, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.RoomID == roomID && p.UserID == userID {
			p.LeftAt = nil
			return nil
		}
	}
	m.participants = append(m.participants, &rooms.Participant{RoomID: roomID, UserID: userID, JoinedAt: at})
	return nil
}

func (m *memParticipants) MarkLeft(ctx context.Context, roomID, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.RoomID == roomID && p.UserID == userID && p.LeftAt == nil {
			left := at
			p.LeftAt = &left
		}
	}
	return nil
}

func (m *memParticipants) Active(ctx context.Context, roomID int64) ([]*rooms.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*rooms.Participant
	for _, p := range m.participants {
		if p.RoomID == roomID && p.LeftAt == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *memParticipants) CountActive(ctx context.Context, roomID int64) (int, error) {
	active, _ := m.Active(ctx, roomID)
	return len(active), nil
}

type memBests memDB

func (m *memBests) Get(ctx context.Context, roomID, itemID, userID int64) (*rooms.BestScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if best, ok := m.bests[[3]int64{roomID, itemID, userID}]; ok {
		return best, nil
	}
	return nil, rooms.ErrNotFound.New("no best")
}

func (m *memBests) Upsert(ctx context.Context, best *rooms.BestScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bests[[3]int64{best.RoomID, best.PlaylistItemID, best.UserID}] = best
	return nil
}

func (m *memBests) AggregateByUser(ctx context.Context, roomID int64) ([]*rooms.AggregateScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := map[int64]*rooms.AggregateScore{}
	for key, best := range m.bests {
		if key[0] != roomID {
			continue
		}
		row := byUser[best.UserID]
		if row == nil {
			row = &rooms.AggregateScore{UserID: best.UserID}
			byUser[best.UserID] = row
		}
		row.TotalScore += best.TotalScore
		row.Completed++
	}
	var out []*rooms.AggregateScore
	for _, row := range byUser {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalScore > out[j].TotalScore })
	return out, nil
}

func (m *memBests) TopForItem(ctx context.Context, roomID, itemID int64, limit int) ([]*rooms.BestScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*rooms.BestScore
	for key, best := range m.bests {
		if key[0] == roomID && key[1] == itemID {
			out = append(out, best)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalScore > out[j].TotalScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memAttempts memDB

func (m *memAttempts) Increment(ctx context.Context, roomID, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[[2]int64{roomID, userID}]++
	return m.attempts[[2]int64{roomID, userID}], nil
}

func (m *memAttempts) Get(ctx context.Context, roomID, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[[2]int64{roomID, userID}], nil
}

type memEvents memDB

func (m *memEvents) Insert(ctx context.Context, event *rooms.MultiplayerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	event.ID = m.nextID
	m.events = append(m.events, event)
	return nil
}

func (m *memEvents) ListByRoom(ctx context.Context, roomID int64, limit int) ([]*rooms.MultiplayerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*rooms.MultiplayerEvent
	for _, event := range m.events {
		if event.RoomID == roomID {
			out = append(out, event)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEvents) kinds(roomID int64) []rooms.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rooms.EventType
	for _, event := range m.events {
		if event.RoomID == roomID {
			out = append(out, event.Type)
		}
	}
	return out
}

type memChallenges memDB

func (m *memChallenges) Get(ctx context.Context, userID int64) (*rooms.DailyChallengeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stats, ok := m.challenges[userID]; ok {
		return stats, nil
	}
	stats := &rooms.DailyChallengeStats{UserID: userID}
	m.challenges[userID] = stats
	return stats, nil
}

func (m *memChallenges) Update(ctx context.Context, stats *rooms.DailyChallengeStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[stats.UserID] = stats
	return nil
}

// minimal user table

type memUserDB struct {
	users map[int64]*users.User
}

func (db *memUserDB) Users() users.Users                 { return db }
func (db *memUserDB) Statistics() users.Statistics       { return nil }
func (db *memUserDB) Relationships() users.Relationships { return nil }
func (db *memUserDB) Teams() users.Teams                 { return nil }

func (db *memUserDB) Get(ctx context.Context, id int64) (*users.User, error) {
	if user, ok := db.users[id]; ok {
		return user, nil
	}
	return nil, users.ErrNotFound.New("user %d", id)
}

func (db *memUserDB) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	return nil, users.ErrNotFound.New("unsupported")
}

func (db *memUserDB) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return nil, users.ErrNotFound.New("unsupported")
}

func (db *memUserDB) GetByUsernameOrEmail(ctx context.Context, identifier string) (*users.User, error) {
	return nil, users.ErrNotFound.New("unsupported")
}

func (db *memUserDB) Insert(ctx context.Context, user *users.User) error {
	db.users[user.ID] = user
	return nil
}

func (db *memUserDB) Update(ctx context.Context, id int64, request users.UpdateUserRequest) error {
	return nil
}

func (db *memUserDB) UpdateLastVisit(ctx context.Context, id int64, at time.Time) error { return nil }

func (db *memUserDB) Count(ctx context.Context) (int64, error) { return int64(len(db.users)), nil }

func (db *memUserDB) ListByIDs(ctx context.Context, ids []int64) ([]*users.User, error) {
	var out []*users.User
	for _, id := range ids {
		if user, ok := db.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// channel manager spy

type memChannels2 struct {
	mu     sync.Mutex
	joined map[int64][]int64
	closed []int64
}

func newMemChannels() *memChannels2 {
	return &memChannels2{joined: map[int64][]int64{}}
}

func (m *memChannels2) EnsureRoomChannel(ctx context.Context, roomID, hostID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined[roomID] = append(m.joined[roomID], hostID)
	return roomID + 1000, nil
}

func (m *memChannels2) JoinRoomChannel(ctx context.Context, roomID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined[roomID] = append(m.joined[roomID], userID)
	return nil
}

func (m *memChannels2) LeaveRoomChannel(ctx context.Context, roomID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.joined[roomID]
	for i, id := range list {
		if id == userID {
			m.joined[roomID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memChannels2) CloseRoomChannel(ctx context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.joined, roomID)
	m.closed = append(m.closed, roomID)
	return nil
}

func newTestService(t *testing.T, db *memDB, userdb *memUserDB) (*rooms.Service, *memChannels2) {
	log := zaptest.NewLogger(t)
	events := eventhub.NewHub(log)
	t.Cleanup(func() { _ = events.Close() })
	channels := newMemChannels()
	return rooms.NewService(log, db, userdb, channels, events, rooms.Config{}), channels
}

func validRequest() rooms.CreateRoomRequest {
	return rooms.CreateRoomRequest{
		Name: "casual lobby",
		Playlist: []rooms.PlaylistItemRequest{
			{BeatmapID: 101, Ruleset: rulesets.Osu},
			{BeatmapID: 102, Ruleset: rulesets.Taiko},
		},
	}
}

func TestCreateRoomValidation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := newMemDB()
	userdb := &memUserDB{users: map[int64]*users.User{
		1: {ID: 1, Username: "host"},
		2: {ID: 2, Username: "banned", Privileges: users.PrivilegeRestricted},
	}}
	service, channels := newTestService(t, db, userdb)

	// restricted host
	_, err := service.Create(ctx, 2, validRequest())
	require.True(t, rooms.ErrForbidden.Has(err))

	// empty playlist
	req := validRequest()
	req.Playlist = nil
	_, err = service.Create(ctx, 1, req)
	require.True(t, rooms.ErrValidation.Has(err))

	// missing beatmap id
	req = validRequest()
	req.Playlist[0].BeatmapID = 0
	_, err = service.Create(ctx, 1, req)
	require.True(t, rooms.ErrValidation.Has(err))

	// bad ruleset
	req = validRequest()
	req.Playlist[1].Ruleset = rulesets.ID(99)
	_, err = service.Create(ctx, 1, req)
	require.True(t, rooms.ErrValidation.Has(err))

	room, err := service.Create(ctx, 1, validRequest())
	require.NoError(t, err)
	require.Equal(t, int64(1), room.HostID)
	require.Equal(t, 1, room.ParticipantCount)
	require.Equal(t, room.ID+1000, room.ChannelID)
	require.Contains(t, channels.joined[room.ID], int64(1))

	_, playlist, err := service.Get(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, playlist, 2)
	require.Equal(t, int64(101), playlist[0].BeatmapID)
}

func TestJoinPasswordAndRejoin(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := newMemDB()
	userdb := &memUserDB{users: map[int64]*users.User{
		1: {ID: 1, Username: "host"},
		2: {ID: 2, Username: "guest"},
	}}
	service, _ := newTestService(t, db, userdb)

	req := validRequest()
	req.Password = "sekrit"
	room, err := service.Create(ctx, 1, req)
	require.NoError(t, err)

	require.True(t, rooms.ErrForbidden.Has(service.Join(ctx, room.ID, 2, "wrong")))
	require.NoError(t, service.Join(ctx, room.ID, 2, "sekrit"))

	fresh, _, err := service.Get(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 2, fresh.ParticipantCount)

	// leave and rejoin clears the departure mark
	require.NoError(t, service.Leave(ctx, room.ID, 2))
	require.NoError(t, service.Join(ctx, room.ID, 2, "sekrit"))
	count, err := db.Participants().CountActive(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestHostTransferAndRoomEnd(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := newMemDB()
	userdb := &memUserDB{users: map[int64]*users.User{
		1: {ID: 1, Username: "host"},
		2: {ID: 2, Username: "second"},
		3: {ID: 3, Username: "third"},
	}}
	service, channels := newTestService(t, db, userdb)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := base
	service.TestSetNow(func() time.Time { clock = clock.Add(time.Second); return clock })

	room, err := service.Create(ctx, 1, validRequest())
	require.NoError(t, err)
	require.NoError(t, service.Join(ctx, room.ID, 2, ""))
	require.NoError(t, service.Join(ctx, room.ID, 3, ""))

	// host leaves, earliest joined remaining participant takes over
	require.NoError(t, service.Leave(ctx, room.ID, 1))
	fresh, _, err := service.Get(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), fresh.HostID)
	require.Contains(t, (*memEvents)(db).kinds(room.ID), rooms.EventHostChanged)

	// last participant leaving ends the room
	require.NoError(t, service.Leave(ctx, room.ID, 2))
	require.NoError(t, service.Leave(ctx, room.ID, 3))
	fresh, _, err = service.Get(ctx, room.ID)
	require.NoError(t, err)
	require.True(t, fresh.Ended(clock.Add(time.Minute)))
	require.Equal(t, 0, fresh.ParticipantCount)
	require.Contains(t, channels.closed, room.ID)
}

func TestScoreProcessedProjections(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := newMemDB()
	userdb := &memUserDB{users: map[int64]*users.User{1: {ID: 1, Username: "host"}}}
	service, _ := newTestService(t, db, userdb)

	req := validRequest()
	req.Category = rooms.CategoryDailyChallenge
	room, err := service.Create(ctx, 1, req)
	require.NoError(t, err)
	playlist, err := db.Playlists().ListByRoom(ctx, room.ID)
	require.NoError(t, err)
	item := playlist[0]

	submit := func(scoreID, total int64, passed bool) {
		pp := 40.0
		err := service.ScoreProcessed(ctx, &scores.Token{
			UserID:         1,
			RoomID:         room.ID,
			PlaylistItemID: item.ID,
		}, &scores.Score{
			ID:         scoreID,
			UserID:     1,
			BeatmapID:  item.BeatmapID,
			TotalScore: total,
			Passed:     passed,
			PP:         &pp,
		})
		require.NoError(t, err)
	}

	submit(10, 500000, true)
	submit(11, 400000, true) // worse, best keeps score 10
	submit(12, 700000, true)

	best, err := db.BestScores().Get(ctx, room.ID, item.ID, 1)
	require.NoError(t, err)
	require.Equal(t, int64(12), best.ScoreID)
	require.Equal(t, int64(700000), best.TotalScore)

	attempts, err := db.Attempts().Get(ctx, room.ID, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), attempts)

	// three completions on the same date count the streak once
	stats, err := service.ChallengeStats(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DailyStreakCurrent)
	require.Equal(t, int64(1), stats.PlayCount)

	board, err := service.Leaderboard(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, board, 1)
	require.Equal(t, int64(700000), board[0].TotalScore)
	require.Equal(t, int64(3), board[0].Attempts)
}
