// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"net/http"
)

// The /_lio surface is the spectator server's private RPC. It trusts
// the shared secret checked by withLIOSecret and speaks in ids only.

// lioEnsureBeatmap pulls the beatmap through the mirror pipeline so the
// spectator server can assume its raw file is cached.
func (server *Server) lioEnsureBeatmap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if _, err = server.services.Beatmaps.Get(ctx, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.services.Beatmaps.PreloadRaw(ctx, pathID(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) lioSaveReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if err = server.services.Scores.SaveReplay(ctx, pathID(r, "id"), r.Body); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) lioEndRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	room, _, err := server.services.Rooms.Get(ctx, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Rooms.End(ctx, room); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) lioJoinRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if err = server.services.Rooms.Join(ctx, pathID(r, "id"), pathID(r, "uid"),
		r.URL.Query().Get("password")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) lioLeaveRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if err = server.services.Rooms.Leave(ctx, pathID(r, "id"), pathID(r, "uid")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lioRulesetsHash lets the spectator server confirm it replays with the
// same ruleset build the web side accepts submissions from.
func (server *Server) lioRulesetsHash(w http.ResponseWriter, r *http.Request) {
	server.serveJSON(w, http.StatusOK, map[string]string{"hash": server.config.RulesetsHash})
}
