// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
)

type createRoomPayload struct {
	rooms.CreateRoomRequest

	// DurationMinutes bounds the room lifetime; zero keeps it open.
	DurationMinutes int `json:"duration"`
}

func (server *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload createRoomPayload
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	payload.Duration = time.Duration(payload.DurationMinutes) * time.Minute

	room, err := server.services.Rooms.Create(ctx, user.ID, payload.CreateRoomRequest)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, room)
}

func (server *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	category := rooms.Category(strings.ToUpper(r.URL.Query().Get("category")))
	list, err := server.services.Rooms.List(ctx, category)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(list))
}

// roomWithPlaylist is the detailed room shape with its items inlined.
type roomWithPlaylist struct {
	*rooms.Room
	Playlist []*rooms.PlaylistItem `json:"playlist"`
}

func (server *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	room, playlist, err := server.services.Rooms.Get(ctx, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, roomWithPlaylist{Room: room, Playlist: nonNil(playlist)})
}

func (server *Server) endRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	room, _, err := server.services.Rooms.Get(ctx, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if room.HostID != user.ID {
		server.serveError(w, r, rooms.ErrForbidden.New("only the host may close the room"))
		return
	}
	if err = server.services.Rooms.End(ctx, room); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if pathID(r, "uid") != user.ID {
		server.serveError(w, r, rooms.ErrForbidden.New("cannot seat another player"))
		return
	}
	if err = server.services.Rooms.Join(ctx, pathID(r, "id"), user.ID, r.URL.Query().Get("password")); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nil)
}

func (server *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if pathID(r, "uid") != user.ID {
		server.serveError(w, r, rooms.ErrForbidden.New("cannot remove another player"))
		return
	}
	if err = server.services.Rooms.Leave(ctx, pathID(r, "id"), user.ID); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) roomLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	rows, err := server.services.Rooms.Leaderboard(ctx, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"leaderboard": nonNil(rows)})
}

func (server *Server) roomEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	events, err := server.services.Rooms.EventLog(ctx, pathID(r, "id"),
		clampLimit(queryInt(r, "limit", 100), 100, 500))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func (server *Server) createPlaylistToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = r.ParseForm(); err != nil {
		server.serveError(w, r, ErrBadRequest.New("malformed form body"))
		return
	}
	rulesetID, _ := strconv.Atoi(r.PostFormValue("ruleset_id"))

	token, err := server.services.Scores.CreateToken(ctx, user.ID, scores.TokenRequest{
		BeatmapID:          parseInt64(r.PostFormValue("beatmap_id")),
		BeatmapChecksum:    r.PostFormValue("beatmap_hash"),
		Ruleset:            rulesets.ID(rulesetID),
		ClientVersion:      r.PostFormValue("version_hash"),
		RulesetVersionHash: r.PostFormValue("ruleset_version_hash"),
		RoomID:             pathID(r, "id"),
		PlaylistItemID:     pathID(r, "pid"),
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, token)
}

func (server *Server) submitPlaylistScore(w http.ResponseWriter, r *http.Request) {
	server.submitSoloScore(w, r)
}

func (server *Server) playlistScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	rows, err := server.services.Rooms.ItemLeaderboard(ctx, pathID(r, "id"), pathID(r, "pid"),
		clampLimit(queryInt(r, "limit", 50), 50, 100))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"scores": nonNil(rows)})
}
