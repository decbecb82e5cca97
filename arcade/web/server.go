// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package web serves the HTTP and WebSocket surface of the game server:
// the client API under /api/v2, the auth flow endpoints, the private
// extensions, the legacy /api/v1 subset and the internal /_lio RPC.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempora.dev/tempora/arcade/activity"
	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/medals"
	"tempora.dev/tempora/arcade/notifications"
	"tempora.dev/tempora/arcade/performance"
	"tempora.dev/tempora/arcade/rankings"
	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
)

var (
	mon = monkit.Package()

	// Error is the web server error class.
	Error = errs.Class("web")

	// ErrBadRequest marks requests the server could not even parse.
	ErrBadRequest = errs.Class("bad request")
)

// Config holds web server configuration.
type Config struct {
	Address     string `help:"address to listen on" default:":8080" testDefault:"127.0.0.1:0"`
	ExternalURL string `help:"public base url of the server" default:"http://localhost:8080"`

	LIOSecret    string `help:"shared secret expected on internal /_lio requests" default:""`
	RulesetsHash string `help:"ruleset build hash reported to the spectator server" default:""`

	PreviewURL  string `help:"audio preview url template containing %d" default:"https://b.ppy.sh/preview/%d.mp3"`
	DownloadURL string `help:"beatmapset archive url template containing %d" default:"https://catboy.best/d/%d"`

	MaxBodySize     int64         `help:"request body limit in bytes" default:"10485760"`
	ShutdownTimeout time.Duration `help:"grace period for draining requests on stop" default:"10s" testDefault:"1s"`
}

// Services collects the subsystems the handlers call into.
type Services struct {
	Auth          *auth.Service
	Users         *users.Service
	Beatmaps      *beatmaps.Service
	Performance   *performance.Service
	Scores        *scores.Service
	Chat          *chat.Service
	ChatHub       *chat.Hub
	Rooms         *rooms.Service
	Rankings      *rankings.Service
	Activity      *activity.Service
	Notifications *notifications.Service
	Medals        *medals.Service

	// UserCount reports the number of registered accounts; used by the
	// legacy player-count endpoint.
	UserCount func(ctx context.Context) (int64, error)
}

// Server hosts the HTTP endpoints.
//
// architecture: Endpoint
type Server struct {
	log      *zap.Logger
	config   Config
	services Services

	http *http.Server
}

// NewServer creates the server with its full route table.
func NewServer(log *zap.Logger, config Config, services Services) (*Server, error) {
	if services.Auth == nil || services.Users == nil {
		return nil, Error.New("auth and users services are required")
	}

	server := &Server{
		log:      log,
		config:   config,
		services: services,
	}

	router := mux.NewRouter()
	router.Use(server.withBodyLimit)

	router.HandleFunc("/oauth/token", server.oauthToken).Methods(http.MethodPost)
	router.HandleFunc("/users", server.register).Methods(http.MethodPost)
	router.HandleFunc("/password-reset/request", server.passwordResetRequest).Methods(http.MethodPost)
	router.HandleFunc("/password-reset/reset", server.passwordReset).Methods(http.MethodPost)
	router.HandleFunc("/notification-server", server.notificationServer)

	v2 := router.PathPrefix("/api/v2").Subrouter()
	v2.Use(server.withBearer)

	// Session verification must stay reachable while unverified.
	session := v2.PathPrefix("/session/verify").Subrouter()
	session.HandleFunc("", server.sessionVerify).Methods(http.MethodPost)
	session.HandleFunc("/reissue", server.sessionVerifyReissue).Methods(http.MethodPost)
	session.HandleFunc("/mail-fallback", server.sessionVerifyMailFallback).Methods(http.MethodPost)

	api := v2.NewRoute().Subrouter()
	api.Use(server.withVerifiedSession)

	api.HandleFunc("/me", server.me).Methods(http.MethodGet)
	api.HandleFunc("/me/{ruleset}", server.me).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}", server.userProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/{ruleset}", server.userProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/scores/{type}", server.userScores).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/beatmapsets/{type}", server.userBeatmapsets).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/recent_activity", server.userRecentActivity).Methods(http.MethodGet)

	api.HandleFunc("/beatmaps/lookup", server.beatmapLookup).Methods(http.MethodGet)
	api.HandleFunc("/beatmaps/", server.beatmapsBatch).Methods(http.MethodGet)
	api.HandleFunc("/beatmaps/{id:[0-9]+}", server.beatmap).Methods(http.MethodGet)
	api.HandleFunc("/beatmaps/{id:[0-9]+}/attributes", server.beatmapAttributes).Methods(http.MethodPost)
	api.HandleFunc("/beatmaps/{id:[0-9]+}/scores", server.beatmapScores).Methods(http.MethodGet)
	api.HandleFunc("/beatmaps/{id:[0-9]+}/scores/users/{uid:[0-9]+}", server.beatmapUserScore).Methods(http.MethodGet)
	api.HandleFunc("/beatmaps/{id:[0-9]+}/scores/users/{uid:[0-9]+}/all", server.beatmapUserScores).Methods(http.MethodGet)
	api.HandleFunc("/beatmaps/{id:[0-9]+}/solo/scores", server.createSoloToken).Methods(http.MethodPost)
	api.HandleFunc("/beatmaps/{id:[0-9]+}/solo/scores/{token:[0-9]+}", server.submitSoloScore).Methods(http.MethodPut)

	api.HandleFunc("/beatmapsets/lookup", server.beatmapsetLookup).Methods(http.MethodGet)
	api.HandleFunc("/beatmapsets/search", server.beatmapsetSearch).Methods(http.MethodGet)
	api.HandleFunc("/beatmapsets/{id:[0-9]+}", server.beatmapset).Methods(http.MethodGet)
	api.HandleFunc("/beatmapsets/{id:[0-9]+}/download", server.beatmapsetDownload).Methods(http.MethodGet)
	api.HandleFunc("/beatmapsets/{id:[0-9]+}/favourites", server.beatmapsetFavourite).Methods(http.MethodPost)

	api.HandleFunc("/rankings/{ruleset}/country", server.countryRankings).Methods(http.MethodGet)
	api.HandleFunc("/rankings/{ruleset}/country/{sort}", server.countryRankings).Methods(http.MethodGet)
	api.HandleFunc("/rankings/{ruleset}/team", server.teamRankings).Methods(http.MethodGet)
	api.HandleFunc("/rankings/{ruleset}/team/{sort}", server.teamRankings).Methods(http.MethodGet)
	api.HandleFunc("/rankings/{ruleset}/{sort}", server.userRankings).Methods(http.MethodGet)

	api.HandleFunc("/friends", server.friends).Methods(http.MethodGet)
	api.HandleFunc("/friends", server.addFriend).Methods(http.MethodPost)
	api.HandleFunc("/friends/{id:[0-9]+}", server.removeFriend).Methods(http.MethodDelete)
	api.HandleFunc("/blocks", server.blocks).Methods(http.MethodGet)
	api.HandleFunc("/blocks", server.addBlock).Methods(http.MethodPost)
	api.HandleFunc("/blocks/{id:[0-9]+}", server.removeBlock).Methods(http.MethodDelete)

	api.HandleFunc("/rooms", server.createRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms", server.listRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}", server.getRoom).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}", server.endRoom).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id:[0-9]+}/users/{uid:[0-9]+}", server.joinRoom).Methods(http.MethodPut)
	api.HandleFunc("/rooms/{id:[0-9]+}/users/{uid:[0-9]+}", server.leaveRoom).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id:[0-9]+}/leaderboard", server.roomLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}/events", server.roomEvents).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}/playlist/{pid:[0-9]+}/scores", server.createPlaylistToken).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id:[0-9]+}/playlist/{pid:[0-9]+}/scores", server.playlistScores).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id:[0-9]+}/playlist/{pid:[0-9]+}/scores/{token:[0-9]+}", server.submitPlaylistScore).Methods(http.MethodPut)

	api.HandleFunc("/scores/{id:[0-9]+}", server.deleteScore).Methods(http.MethodDelete)
	api.HandleFunc("/score-pins/{id:[0-9]+}", server.pinScore).Methods(http.MethodPut)
	api.HandleFunc("/score-pins/{id:[0-9]+}", server.unpinScore).Methods(http.MethodDelete)
	api.HandleFunc("/score-pins/{id:[0-9]+}/reorder", server.reorderScorePin).Methods(http.MethodPost)

	api.HandleFunc("/notifications", server.listNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/mark-read", server.markNotificationsRead).Methods(http.MethodPost)

	api.HandleFunc("/chat/updates", server.chatUpdates).Methods(http.MethodGet)
	api.HandleFunc("/chat/channels", server.chatChannels).Methods(http.MethodGet)
	api.HandleFunc("/chat/channels", server.chatCreateChannel).Methods(http.MethodPost)
	api.HandleFunc("/chat/channels/{channel:[0-9]+}/users/{user:[0-9]+}", server.chatJoinChannel).Methods(http.MethodPut)
	api.HandleFunc("/chat/channels/{channel:[0-9]+}/users/{user:[0-9]+}", server.chatLeaveChannel).Methods(http.MethodDelete)
	api.HandleFunc("/chat/channels/{channel:[0-9]+}/messages", server.chatSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/chat/channels/{channel:[0-9]+}/messages", server.chatMessages).Methods(http.MethodGet)
	api.HandleFunc("/chat/channels/{channel:[0-9]+}/mark-as-read/{message:[0-9]+}", server.chatMarkRead).Methods(http.MethodPut)
	api.HandleFunc("/chat/new", server.chatNewPM).Methods(http.MethodPost)
	api.HandleFunc("/chat/ack", server.chatAck).Methods(http.MethodPost)

	private := router.PathPrefix("/api/private").Subrouter()
	private.Use(server.withBearer, server.withVerifiedSession)

	private.HandleFunc("/avatar", server.uploadAvatar).Methods(http.MethodPost)
	private.HandleFunc("/avatar/{id:[0-9]+}", server.serveAvatar).Methods(http.MethodGet)
	private.HandleFunc("/cover", server.uploadCover).Methods(http.MethodPost)
	private.HandleFunc("/preferences", server.updatePreferences).Methods(http.MethodPut)
	private.HandleFunc("/rename", server.rename).Methods(http.MethodPost)
	private.HandleFunc("/password", server.changePassword).Methods(http.MethodPost)
	private.HandleFunc("/totp/enroll", server.totpEnroll).Methods(http.MethodPost)
	private.HandleFunc("/totp/verify", server.totpVerify).Methods(http.MethodPost)
	private.HandleFunc("/totp", server.totpDisable).Methods(http.MethodDelete)
	private.HandleFunc("/oauth/apps", server.listOAuthApps).Methods(http.MethodGet)
	private.HandleFunc("/oauth/apps", server.createOAuthApp).Methods(http.MethodPost)
	private.HandleFunc("/oauth/apps/{id:[0-9]+}", server.deleteOAuthApp).Methods(http.MethodDelete)
	private.HandleFunc("/relationship/{id:[0-9]+}", server.relationship).Methods(http.MethodGet)
	private.HandleFunc("/rating", server.rateBeatmapset).Methods(http.MethodPost)
	private.HandleFunc("/beatmapsets/{id:[0-9]+}/sync", server.syncBeatmapset).Methods(http.MethodPost)
	private.HandleFunc("/audio/{id:[0-9]+}", server.audioPreview).Methods(http.MethodGet)
	private.HandleFunc("/keys", server.listAPIKeys).Methods(http.MethodGet)
	private.HandleFunc("/keys", server.createAPIKey).Methods(http.MethodPost)
	private.HandleFunc("/keys/{id:[0-9]+}", server.deleteAPIKey).Methods(http.MethodDelete)
	private.HandleFunc("/replays/{id:[0-9]+}", server.downloadReplay).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/get_player_info", server.v1PlayerInfo).Methods(http.MethodGet)
	v1.HandleFunc("/get_player_count", server.v1PlayerCount).Methods(http.MethodGet)

	lio := router.PathPrefix("/_lio").Subrouter()
	lio.Use(server.withLIOSecret)
	lio.HandleFunc("/beatmaps/{id:[0-9]+}/ensure", server.lioEnsureBeatmap).Methods(http.MethodPost)
	lio.HandleFunc("/scores/{id:[0-9]+}/replay", server.lioSaveReplay).Methods(http.MethodPut)
	lio.HandleFunc("/rooms/{id:[0-9]+}/end", server.lioEndRoom).Methods(http.MethodPost)
	lio.HandleFunc("/rooms/{id:[0-9]+}/users/{uid:[0-9]+}", server.lioJoinRoom).Methods(http.MethodPut)
	lio.HandleFunc("/rooms/{id:[0-9]+}/users/{uid:[0-9]+}", server.lioLeaveRoom).Methods(http.MethodDelete)
	lio.HandleFunc("/rulesets/hash", server.lioRulesetsHash).Methods(http.MethodGet)

	server.http = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server, nil
}

// Run binds the listener and serves until the context is canceled.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	listener, err := net.Listen("tcp", server.config.Address)
	if err != nil {
		return Error.Wrap(err)
	}
	server.log.Info("server started", zap.String("address", listener.Addr().String()))

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		return Error.Wrap(server.http.Shutdown(shutdownCtx))
	})
	group.Go(func() error {
		defer cancel()
		err := server.http.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close stops the server without waiting for open requests.
func (server *Server) Close() error {
	return Error.Wrap(server.http.Close())
}
