// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package arcade is the game-server deployable: one Peer owning the
// database, the Redis tiers, every domain service and the web server.
package arcade

import (
	"context"
	"errors"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempora.dev/tempora/arcade/activity"
	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/fetcher"
	"tempora.dev/tempora/arcade/mailservice"
	"tempora.dev/tempora/arcade/medals"
	"tempora.dev/tempora/arcade/notifications"
	"tempora.dev/tempora/arcade/performance"
	"tempora.dev/tempora/arcade/rankings"
	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/scheduler"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/arcade/web"
	"tempora.dev/tempora/storage"
	"tempora.dev/tempora/storage/filestore"
	"tempora.dev/tempora/storage/redis"
)

var mon = monkit.Package()

// Error is the default arcade error class.
var Error = errs.Class("arcade")

// DB is the master database for the game server.
//
// architecture: Master Database
type DB interface {
	// CreateTables initializes the schema.
	CreateTables(ctx context.Context) error
	// Close closes the database.
	Close() error

	// Users returns the account tables.
	Users() users.DB
	// Auth returns the authentication tables.
	Auth() auth.DB
	// Beatmaps returns the beatmap mirror tables.
	Beatmaps() beatmaps.DB
	// Scores returns the score pipeline tables.
	Scores() scores.DB
	// Chat returns the durable chat tables.
	Chat() chat.DB
	// Rooms returns the multiplayer tables.
	Rooms() rooms.DB
	// Activity returns the timeline and rank history tables.
	Activity() activity.DB
	// Notifications returns the notification table.
	Notifications() notifications.DB
	// Achievements returns the unlocked medal table.
	Achievements() medals.UserAchievements
}

// RedisConfig selects the three logical Redis stores.
type RedisConfig struct {
	Address  string `help:"redis host:port" default:"127.0.0.1:6379"`
	Password string `help:"redis password" default:""`
	CacheDB  int    `help:"database holding caches, auth artifacts and pub/sub" default:"0"`
	ChatDB   int    `help:"database holding live chat state" default:"1"`
	BinaryDB int    `help:"database holding raw binary bodies" default:"2"`
}

// Config is the game server configuration.
type Config struct {
	Database string `help:"database url" default:"sqlite3://arcade.db" devDefault:"sqlite3://arcade.db" releaseDefault:"postgres://"`
	BlobsDir string `help:"directory for replays, avatars and covers" default:"blobs"`

	Redis RedisConfig

	Web         web.Config
	Mail        mailservice.Config
	Auth        auth.Config
	Users       users.Config
	Beatmaps    beatmaps.Config
	Fetcher     fetcher.Config
	Performance performance.Config
	Scores      scores.Config
	Chat        chat.Config
	Rooms       rooms.Config
	Rankings    rankings.Config
	Activity    activity.Config
	Scheduler   scheduler.Config
}

// Peer is the game server process. Subsystems are wired once in New and
// run together under Run.
//
// architecture: Peer
type Peer struct {
	Log    *zap.Logger
	DB     DB
	Config Config

	Redis struct {
		Cache  *redis.Client
		Chat   *redis.Client
		Binary *redis.Client
	}

	Blobs  storage.Blobs
	Events *eventhub.Hub
	Bridge *eventhub.Bridge

	Mail    *mailservice.Service
	Fetcher *fetcher.Client

	Users struct {
		Cache   *users.Cache
		Service *users.Service
	}

	Auth          *auth.Service
	Beatmaps      *beatmaps.Service
	Performance   *performance.Service
	Medals        *medals.Service
	Notifications *notifications.Service
	Scores        *scores.Service

	Chat struct {
		Store   *chat.Store
		Hub     *chat.Hub
		Worker  *chat.Worker
		Service *chat.Service
	}

	Rooms     *rooms.Service
	Rankings  *rankings.Service
	Activity  *activity.Service
	Scheduler *scheduler.Scheduler

	Web *web.Server
}

// New wires up a peer. The database must already be migrated.
func New(ctx context.Context, log *zap.Logger, db DB, config Config) (peer *Peer, err error) {
	defer mon.Task()(&ctx)(&err)

	peer = &Peer{
		Log:    log,
		DB:     db,
		Config: config,
	}

	{ // setup redis
		peer.Redis.Cache, err = redis.NewClient(ctx, config.Redis.Address, config.Redis.Password, config.Redis.CacheDB)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Redis.Chat, err = redis.NewClient(ctx, config.Redis.Address, config.Redis.Password, config.Redis.ChatDB)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Redis.Binary, err = redis.NewClient(ctx, config.Redis.Address, config.Redis.Password, config.Redis.BinaryDB)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup blob storage
		peer.Blobs, err = filestore.New(config.BlobsDir)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup events
		peer.Events = eventhub.NewHub(log.Named("eventhub"))
		peer.Bridge = eventhub.NewBridge(log.Named("eventhub:bridge"), peer.Events, peer.Redis.Cache)
	}

	{ // setup mail
		peer.Mail = mailservice.New(log.Named("mail"), config.Mail)
	}

	{ // setup fetcher
		peer.Fetcher = fetcher.New(log.Named("fetcher"), peer.Redis.Cache, config.Fetcher)
	}

	{ // setup users
		peer.Users.Cache = users.NewCache(log.Named("users:cache"), peer.Redis.Cache, config.Users.ProfileCacheTTL)
		peer.Users.Service, err = users.NewService(log.Named("users"),
			db.Users(), peer.Users.Cache, peer.Events, peer.Blobs,
			users.PassthroughRenderer{}, db.Activity().RankHistory(), config.Users)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup auth
		peer.Auth, err = auth.NewService(log.Named("auth"),
			db.Auth(), db.Users(), peer.Redis.Cache, peer.Mail, peer.Events, config.Auth)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup beatmaps
		peer.Beatmaps, err = beatmaps.NewService(log.Named("beatmaps"),
			db.Beatmaps(), peer.Redis.Cache, peer.Redis.Binary, peer.Fetcher, config.Beatmaps)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup performance
		var calc performance.Calculator
		httpCalc, err := performance.NewHTTPCalculator(log.Named("performance:http"), config.Performance)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		if httpCalc != nil {
			calc = httpCalc
		}
		peer.Performance = performance.NewService(log.Named("performance"), calc, peer.Redis.Cache, config.Performance)
	}

	{ // setup medals
		peer.Medals = medals.NewService(log.Named("medals"), db.Achievements())
	}

	{ // setup notifications
		peer.Notifications = notifications.NewService(log.Named("notifications"), db.Notifications())
	}

	{ // setup scores
		peer.Scores, err = scores.NewService(log.Named("scores"),
			db.Scores(), db.Users(), peer.Users.Cache, peer.Beatmaps, peer.Performance,
			peer.Medals, peer.Events, peer.Redis.Cache, peer.Blobs, config.Scores)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup chat
		peer.Chat.Store = chat.NewStore(log.Named("chat:store"), peer.Redis.Chat)
		peer.Chat.Hub = chat.NewHub(log.Named("chat:hub"))
		peer.Chat.Worker = chat.NewWorker(log.Named("chat:worker"), db.Chat().Messages(), peer.Chat.Store)
		peer.Chat.Service, err = chat.NewService(ctx, log.Named("chat"),
			db.Chat(), db.Users(), peer.Chat.Store, peer.Chat.Hub,
			peer.Notifications, peer.Events, config.Chat)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	{ // setup rooms
		peer.Rooms = rooms.NewService(log.Named("rooms"),
			db.Rooms(), db.Users(), peer.Chat.Service, peer.Events, config.Rooms)
		peer.Scores.SetRoomHook(peer.Rooms)
		peer.Auth.SetDailyStatsInitializer(peer.Rooms)
	}

	{ // setup rankings
		peer.Rankings = rankings.NewService(log.Named("rankings"), db.Users(), peer.Redis.Cache, config.Rankings)
	}

	{ // setup activity
		peer.Activity = activity.NewService(log.Named("activity"), db.Activity(), db.Users().Statistics(), config.Activity)
	}

	{ // setup scheduler
		peer.Scheduler = scheduler.New(log.Named("scheduler"),
			peer.Beatmaps, peer.Rankings, peer.Users.Service, peer.Scores,
			peer.Activity, peer.Rooms, config.Scheduler)
	}

	{ // setup web
		peer.Web, err = web.NewServer(log.Named("web"), config.Web, web.Services{
			Auth:          peer.Auth,
			Users:         peer.Users.Service,
			Beatmaps:      peer.Beatmaps,
			Performance:   peer.Performance,
			Scores:        peer.Scores,
			Chat:          peer.Chat.Service,
			ChatHub:       peer.Chat.Hub,
			Rooms:         peer.Rooms,
			Rankings:      peer.Rankings,
			Activity:      peer.Activity,
			Notifications: peer.Notifications,
			Medals:        peer.Medals,
			UserCount:     db.Users().Users().Count,
		})
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
	}

	return peer, nil
}

// Run starts every long-lived element and blocks until the first
// failure or context cancellation.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ignoreCancel(peer.Auth.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Bridge.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Chat.Worker.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Activity.Subscribe(ctx, peer.Events))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Scheduler.Run(ctx))
	})
	group.Go(func() error {
		return ignoreCancel(peer.Web.Run(ctx))
	})

	return group.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close shuts subsystems down in reverse wiring order.
func (peer *Peer) Close() error {
	var group errs.Group

	if peer.Web != nil {
		group.Add(peer.Web.Close())
	}
	if peer.Scheduler != nil {
		group.Add(peer.Scheduler.Close())
	}
	if peer.Chat.Hub != nil {
		group.Add(peer.Chat.Hub.Close())
	}
	if peer.Scores != nil {
		group.Add(peer.Scores.Close())
	}
	if peer.Auth != nil {
		group.Add(peer.Auth.Close())
	}
	if peer.Events != nil {
		group.Add(peer.Events.Close())
	}
	if peer.Redis.Binary != nil {
		group.Add(peer.Redis.Binary.Close())
	}
	if peer.Redis.Chat != nil {
		group.Add(peer.Redis.Chat.Close())
	}
	if peer.Redis.Cache != nil {
		group.Add(peer.Redis.Cache.Close())
	}

	return group.Err()
}
