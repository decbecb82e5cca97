// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package chat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/notifications"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/internal/testcontext"
	"tempora.dev/tempora/storage/redis"
	"tempora.dev/tempora/storage/redis/redisserver"
)

func newTestStore(t *testing.T, ctx *testcontext.Context) *chat.Store {
	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	t.Cleanup(cleanup)

	client, err := redis.NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return chat.NewStore(zaptest.NewLogger(t), client)
}

func TestStorePrimeMonotonic(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := newTestStore(t, ctx)

	// fresh redis, persisted maximum wins
	require.NoError(t, store.Prime(ctx, 500))
	id, err := store.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(501), id)

	// priming with a lower floor never moves the counter back
	require.NoError(t, store.Prime(ctx, 10))
	id, err = store.NextID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(502), id)
}

func TestStorePushAndRange(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := newTestStore(t, ctx)

	for i := 1; i <= 5; i++ {
		id, err := store.NextID(ctx)
		require.NoError(t, err)
		require.NoError(t, store.Push(ctx, &chat.Message{
			ID:        id,
			ChannelID: 7,
			SenderID:  1,
			Content:   "hello",
			Type:      chat.MessagePlain,
			CreatedAt: time.Now().UTC(),
		}))
	}

	all, err := store.Range(ctx, 7, 0, 0, 50)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.True(t, sort.SliceIsSorted(all, func(i, j int) bool { return all[i].ID < all[j].ID }))

	// since is exclusive, until inclusive
	slice, err := store.Range(ctx, 7, 2, 4, 50)
	require.NoError(t, err)
	require.Len(t, slice, 2)
	require.Equal(t, int64(3), slice[0].ID)
	require.Equal(t, int64(4), slice[1].ID)

	last, err := store.LastMessageID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(5), last)
}

func TestStorePopPending(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := newTestStore(t, ctx)

	for i := 0; i < 3; i++ {
		id, err := store.NextID(ctx)
		require.NoError(t, err)
		require.NoError(t, store.Push(ctx, &chat.Message{ID: id, ChannelID: 2, SenderID: 1, Content: "x"}))
	}

	batch, err := store.PopPending(ctx, 100, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.Equal(t, int64(1), batch[0].ID)
	require.Equal(t, int64(3), batch[2].ID)

	// queue drained
	batch, err = store.PopPending(ctx, 100, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestStoreReadMarkers(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := newTestStore(t, ctx)

	require.NoError(t, store.SetLastRead(ctx, 3, 9, 40))
	require.NoError(t, store.SetLastRead(ctx, 3, 9, 15)) // never backwards

	id, err := store.LastReadID(ctx, 3, 9)
	require.NoError(t, err)
	require.Equal(t, int64(40), id)
}

func TestStoreMembership(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := newTestStore(t, ctx)

	require.NoError(t, store.Join(ctx, 1, 10))
	require.NoError(t, store.Join(ctx, 1, 11))
	require.NoError(t, store.Join(ctx, 2, 10))

	member, err := store.IsMember(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, member)

	joined, err := store.Joined(ctx, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2}, joined)

	require.NoError(t, store.Leave(ctx, 1, 10))
	member, err = store.IsMember(ctx, 1, 10)
	require.NoError(t, err)
	require.False(t, member)
}

// in-memory chat tables

type memChatDB struct {
	mu       sync.Mutex
	channels map[int64]*chat.Channel
	byName   map[string]*chat.Channel
	messages map[int64]*chat.Message
	silences []*chat.Silence
	nextID   int64
}

func newMemChatDB() *memChatDB {
	return &memChatDB{
		channels: map[int64]*chat.Channel{},
		byName:   map[string]*chat.Channel{},
		messages: map[int64]*chat.Message{},
	}
}

func (db *memChatDB) Channels() chat.Channels { return (*memChannels)(db) }
func (db *memChatDB) Messages() chat.Messages { return (*memMessages)(db) }
func (db *memChatDB) Silences() chat.Silences { return (*memSilences)(db) }

type memChannels memChatDB

func (m *memChannels) Insert(ctx context.Context, channel *chat.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	channel.ID = m.nextID
	m.channels[channel.ID] = channel
	m.byName[channel.Name] = channel
	return nil
}

func (m *memChannels) Get(ctx context.Context, id int64) (*chat.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel, ok := m.channels[id]; ok {
		return channel, nil
	}
	return nil, chat.ErrNotFound.New("channel %d", id)
}

func (m *memChannels) GetByName(ctx context.Context, name string) (*chat.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel, ok := m.byName[name]; ok {
		return channel, nil
	}
	return nil, chat.ErrNotFound.New("channel %q", name)
}

func (m *memChannels) ListByIDs(ctx context.Context, ids []int64) ([]*chat.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chat.Channel
	for _, id := range ids {
		if channel, ok := m.channels[id]; ok {
			out = append(out, channel)
		}
	}
	return out, nil
}

func (m *memChannels) ListPublic(ctx context.Context) ([]*chat.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chat.Channel
	for _, channel := range m.channels {
		if channel.Type == chat.TypePublic {
			out = append(out, channel)
		}
	}
	return out, nil
}

func (m *memChannels) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel, ok := m.channels[id]; ok {
		delete(m.byName, channel.Name)
		delete(m.channels, id)
	}
	return nil
}

type memMessages memChatDB

func (m *memMessages) InsertBatch(ctx context.Context, messages []*chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		if _, ok := m.messages[msg.ID]; !ok {
			m.messages[msg.ID] = msg
		}
	}
	return nil
}

func (m *memMessages) MaxID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for id := range m.messages {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (m *memMessages) ListBefore(ctx context.Context, channelID, before int64, limit int) ([]*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chat.Message
	for _, msg := range m.messages {
		if msg.ChannelID == channelID && (before == 0 || msg.ID < before) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMessages) Exists(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.messages[id]
	return ok, nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type memSilences memChatDB

func (m *memSilences) Insert(ctx context.Context, silence *chat.Silence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	silence.ID = m.nextID
	m.silences = append(m.silences, silence)
	return nil
}

func (m *memSilences) ActiveFor(ctx context.Context, userID, channelID int64, at time.Time) (*chat.Silence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, silence := range m.silences {
		if silence.UserID == userID && silence.ChannelID == channelID && silence.Active(at) {
			return silence, nil
		}
	}
	return nil, chat.ErrNotFound.New("no silence")
}

func (m *memSilences) ListSince(ctx context.Context, sinceID int64, limit int) ([]*chat.Silence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chat.Silence
	for _, silence := range m.silences {
		if silence.ID > sinceID {
			out = append(out, silence)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSilences) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, silence := range m.silences {
		if silence.ID == id {
			m.silences = append(m.silences[:i], m.silences[i+1:]...)
			return nil
		}
	}
	return nil
}

// in-memory user tables, just enough for chat

type memUserDB struct {
	mu     sync.Mutex
	users  map[int64]*users.User
	blocks map[[2]int64]bool
}

func newMemUserDB(list ...*users.User) *memUserDB {
	db := &memUserDB{users: map[int64]*users.User{}, blocks: map[[2]int64]bool{}}
	for _, user := range list {
		db.users[user.ID] = user
	}
	return db
}

func (db *memUserDB) Users() users.Users                 { return (*memUsers)(db) }
func (db *memUserDB) Statistics() users.Statistics       { return nil }
func (db *memUserDB) Relationships() users.Relationships { return (*memRelationships)(db) }
func (db *memUserDB) Teams() users.Teams                 { return nil }

type memUsers memUserDB

func (m *memUsers) Get(ctx context.Context, id int64) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, users.ErrNotFound.New("user %d", id)
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, users.ErrNotFound.New("user %q", username)
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return nil, users.ErrNotFound.New("unsupported")
}

func (m *memUsers) GetByUsernameOrEmail(ctx context.Context, identifier string) (*users.User, error) {
	return m.GetByUsername(ctx, identifier)
}

func (m *memUsers) Insert(ctx context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) Update(ctx context.Context, id int64, request users.UpdateUserRequest) error {
	return nil
}

func (m *memUsers) UpdateLastVisit(ctx context.Context, id int64, at time.Time) error { return nil }

func (m *memUsers) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *memUsers) ListByIDs(ctx context.Context, ids []int64) ([]*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*users.User
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

type memRelationships memUserDB

func (m *memRelationships) Upsert(ctx context.Context, userID, targetID int64, kind users.RelationKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[[2]int64{userID, targetID}] = kind == users.RelationBlock
	return nil
}

func (m *memRelationships) Delete(ctx context.Context, userID, targetID int64, kind users.RelationKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, [2]int64{userID, targetID})
	return nil
}

func (m *memRelationships) Get(ctx context.Context, userID, targetID int64) (*users.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocks[[2]int64{userID, targetID}] {
		return &users.Relationship{UserID: userID, TargetID: targetID, Kind: users.RelationBlock}, nil
	}
	return nil, users.ErrNotFound.New("no relation")
}

func (m *memRelationships) List(ctx context.Context, userID int64, kind users.RelationKind) ([]*users.Relationship, error) {
	return nil, nil
}

func (m *memRelationships) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	return nil, nil
}

type memNotifications struct {
	mu   sync.Mutex
	rows []*notifications.Notification
}

func (m *memNotifications) Insert(ctx context.Context, n *notifications.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, n)
	return nil
}

func (m *memNotifications) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*notifications.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notifications.Notification
	for _, n := range m.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifications) MarkRead(ctx context.Context, userID int64, ids []int64) error {
	return nil
}

func (m *memNotifications) CountUnread(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.rows {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func newTestService(t *testing.T, ctx *testcontext.Context, chatdb *memChatDB, userdb *memUserDB) (*chat.Service, *chat.Store, *memNotifications) {
	log := zaptest.NewLogger(t)
	store := newTestStore(t, ctx)
	hub := chat.NewHub(log)
	t.Cleanup(func() { _ = hub.Close() })
	events := eventhub.NewHub(log)
	t.Cleanup(func() { _ = events.Close() })
	notifyDB := &memNotifications{}

	service, err := chat.NewService(ctx, log, chatdb, userdb, store, hub,
		notifications.NewService(log, notifyDB), events, chat.Config{})
	require.NoError(t, err)
	return service, store, notifyDB
}

func TestSendValidation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	chatdb := newMemChatDB()
	userdb := newMemUserDB(
		&users.User{ID: 1, Username: "alice"},
		&users.User{ID: 2, Username: "bob", Privileges: users.PrivilegeRestricted},
	)
	service, store, _ := newTestService(t, ctx, chatdb, userdb)

	channel := &chat.Channel{Name: "#general", Type: chat.TypePublic}
	require.NoError(t, chatdb.Channels().Insert(ctx, channel))
	require.NoError(t, service.Join(ctx, 1, channel.ID))

	msg, err := service.Send(ctx, 1, channel.ID, "hello world", chat.MessagePlain, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), msg.ID)

	// restricted sender
	_, err = service.Send(ctx, 2, channel.ID, "hi", chat.MessagePlain, nil)
	require.True(t, chat.ErrForbidden.Has(err))

	// not a member
	require.NoError(t, userdb.Users().Insert(ctx, &users.User{ID: 3, Username: "eve"}))
	_, err = service.Send(ctx, 3, channel.ID, "hi", chat.MessagePlain, nil)
	require.True(t, chat.ErrForbidden.Has(err))

	// over-long content
	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	_, err = service.Send(ctx, 1, channel.ID, string(long), chat.MessagePlain, nil)
	require.True(t, chat.ErrValidation.Has(err))

	// ids remain monotonic after rejections
	msg, err = service.Send(ctx, 1, channel.ID, "second", chat.MessagePlain, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), msg.ID)

	history, err := store.Range(ctx, channel.ID, 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestSendSilenced(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	chatdb := newMemChatDB()
	userdb := newMemUserDB(&users.User{ID: 1, Username: "alice"})
	service, _, _ := newTestService(t, ctx, chatdb, userdb)

	channel := &chat.Channel{Name: "#general", Type: chat.TypePublic}
	require.NoError(t, chatdb.Channels().Insert(ctx, channel))
	require.NoError(t, service.Join(ctx, 1, channel.ID))

	require.NoError(t, chatdb.Silences().Insert(ctx, &chat.Silence{
		UserID:    1,
		ChannelID: channel.ID,
	}))
	_, err := service.Send(ctx, 1, channel.ID, "muted", chat.MessagePlain, nil)
	require.True(t, chat.ErrForbidden.Has(err))
}

func TestOpenPMDiscovery(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	chatdb := newMemChatDB()
	userdb := newMemUserDB(
		&users.User{ID: 5, Username: "alice"},
		&users.User{ID: 3, Username: "bob"},
	)
	service, _, notifyDB := newTestService(t, ctx, chatdb, userdb)

	first, err := service.OpenPM(ctx, 5, 3)
	require.NoError(t, err)
	require.Equal(t, "pm_3_5", first.Name)
	require.Equal(t, chat.TypePM, first.Type)

	// the reverse direction resolves to the same channel
	second, err := service.OpenPM(ctx, 3, 5)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// a pm creates an offline notification for the other party
	_, err = service.Send(ctx, 5, first.ID, "hey", chat.MessagePlain, nil)
	require.NoError(t, err)
	rows, err := notifyDB.ListByUser(ctx, 3, false, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, notifications.NameChannelMessage, rows[0].Name)
}

func TestOpenPMBlocked(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	chatdb := newMemChatDB()
	userdb := newMemUserDB(
		&users.User{ID: 1, Username: "alice"},
		&users.User{ID: 2, Username: "bob"},
	)
	service, _, _ := newTestService(t, ctx, chatdb, userdb)

	require.NoError(t, userdb.Relationships().Upsert(ctx, 2, 1, users.RelationBlock))
	_, err := service.OpenPM(ctx, 1, 2)
	require.True(t, chat.ErrForbidden.Has(err))
}

func TestWorkerPersists(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	chatdb := newMemChatDB()
	userdb := newMemUserDB(&users.User{ID: 1, Username: "alice"})
	service, store, _ := newTestService(t, ctx, chatdb, userdb)

	channel := &chat.Channel{Name: "#general", Type: chat.TypePublic}
	require.NoError(t, chatdb.Channels().Insert(ctx, channel))
	require.NoError(t, service.Join(ctx, 1, channel.ID))

	for i := 0; i < 5; i++ {
		_, err := service.Send(ctx, 1, channel.ID, "line", chat.MessagePlain, nil)
		require.NoError(t, err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	worker := chat.NewWorker(zaptest.NewLogger(t), chatdb.Messages(), store)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(workerCtx)
	}()

	require.Eventually(t, func() bool {
		return (*memMessages)(chatdb).count() == 5
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	// a second service instance primes its counter past persisted ids
	restarted, err := chat.NewService(ctx, zaptest.NewLogger(t), chatdb, userdb,
		newTestStore(t, ctx), chat.NewHub(zaptest.NewLogger(t)), nil,
		eventhub.NewHub(zaptest.NewLogger(t)), chat.Config{})
	require.NoError(t, err)
	require.NoError(t, restarted.Join(ctx, 1, channel.ID))
	msg, err := restarted.Send(ctx, 1, channel.ID, "after restart", chat.MessagePlain, nil)
	require.NoError(t, err)
	require.Greater(t, msg.ID, int64(5))
}

func TestUpdatesFeed(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	chatdb := newMemChatDB()
	userdb := newMemUserDB(&users.User{ID: 1, Username: "alice"})
	service, _, _ := newTestService(t, ctx, chatdb, userdb)

	channel := &chat.Channel{Name: "#general", Type: chat.TypePublic}
	require.NoError(t, chatdb.Channels().Insert(ctx, channel))
	require.NoError(t, service.Join(ctx, 1, channel.ID))

	msg, err := service.Send(ctx, 1, channel.ID, "hello", chat.MessagePlain, nil)
	require.NoError(t, err)

	updates, err := service.Updates(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, updates.Presence, 1)
	require.Equal(t, channel.ID, updates.Presence[0].Channel.ID)
	require.Equal(t, msg.ID, updates.Presence[0].LastMessageID)
	// the sender's own marker advances with the send
	require.Equal(t, msg.ID, updates.Presence[0].LastReadID)
}

// flakyMessages fails the first inserts, then behaves.
type flakyMessages struct {
	chat.Messages
	mu       sync.Mutex
	failures int
}

func (m *flakyMessages) InsertBatch(ctx context.Context, messages []*chat.Message) error {
	m.mu.Lock()
	if m.failures > 0 {
		m.failures--
		m.mu.Unlock()
		return chat.Error.New("relational store down")
	}
	m.mu.Unlock()
	return m.Messages.InsertBatch(ctx, messages)
}

func TestWorkerRequeuesFailedBatch(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	chatdb := newMemChatDB()
	userdb := newMemUserDB(&users.User{ID: 1, Username: "alice"})
	service, store, _ := newTestService(t, ctx, chatdb, userdb)

	channel := &chat.Channel{Name: "#general", Type: chat.TypePublic}
	require.NoError(t, chatdb.Channels().Insert(ctx, channel))
	require.NoError(t, service.Join(ctx, 1, channel.ID))
	for i := 0; i < 3; i++ {
		_, err := service.Send(ctx, 1, channel.ID, "line", chat.MessagePlain, nil)
		require.NoError(t, err)
	}

	// two insert failures in a row; the popped batch must go back on
	// the queue instead of being dropped
	flaky := &flakyMessages{Messages: chatdb.Messages(), failures: 2}
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	worker := chat.NewWorker(zaptest.NewLogger(t), flaky, store)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(workerCtx)
	}()

	require.Eventually(t, func() bool {
		return (*memMessages)(chatdb).count() == 3
	}, 10*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestStoreRequeuePendingKeepsOrder(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	store := newTestStore(t, ctx)

	for i := 0; i < 3; i++ {
		id, err := store.NextID(ctx)
		require.NoError(t, err)
		require.NoError(t, store.Push(ctx, &chat.Message{ID: id, ChannelID: 4, SenderID: 1, Content: "x"}))
	}

	batch, err := store.PopPending(ctx, 100, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	require.NoError(t, store.RequeuePending(ctx, batch))
	again, err := store.PopPending(ctx, 100, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, again, 3)
	for i := range batch {
		require.Equal(t, batch[i].ID, again[i].ID)
	}
}

func TestJoinRepeatSendsNoDuplicateFrame(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	chatdb := newMemChatDB()
	userdb := newMemUserDB(&users.User{ID: 1, Username: "alice"})
	store := newTestStore(t, ctx)
	hub := chat.NewHub(log)
	t.Cleanup(func() { _ = hub.Close() })
	events := eventhub.NewHub(log)
	t.Cleanup(func() { _ = events.Close() })

	service, err := chat.NewService(ctx, log, chatdb, userdb, store, hub, nil, events, chat.Config{})
	require.NoError(t, err)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(1, ws)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	require.Eventually(t, func() bool { return hub.ConnectedUsers() == 1 }, 5*time.Second, 10*time.Millisecond)

	channel := &chat.Channel{Name: "#general", Type: chat.TypePublic}
	require.NoError(t, chatdb.Channels().Insert(ctx, channel))
	require.NoError(t, service.Join(ctx, 1, channel.ID))
	require.NoError(t, service.Join(ctx, 1, channel.ID))

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame chat.ClientFrame
	require.NoError(t, client.ReadJSON(&frame))
	require.Equal(t, chat.EventChannelJoin, frame.Event)

	// the repeated join emitted nothing further
	_ = client.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	require.Error(t, client.ReadJSON(&frame))
}
