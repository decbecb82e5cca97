// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"fmt"
	"net/http"

	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
)

func (server *Server) beatmap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	beatmap, err := server.services.Beatmaps.Get(ctx, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, beatmap)
}

func (server *Server) beatmapLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var beatmap *beatmaps.Beatmap
	switch {
	case r.URL.Query().Get("checksum") != "":
		beatmap, err = server.services.Beatmaps.GetByChecksum(ctx, r.URL.Query().Get("checksum"))
	case queryInt64(r, "id", 0) != 0:
		beatmap, err = server.services.Beatmaps.Get(ctx, queryInt64(r, "id", 0))
	default:
		err = ErrBadRequest.New("lookup needs id or checksum")
	}
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, beatmap)
}

func (server *Server) beatmapsBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	ids := r.URL.Query()["ids[]"]
	if len(ids) > 50 {
		ids = ids[:50]
	}

	list := []*beatmaps.Beatmap{}
	for _, raw := range ids {
		id := parseInt64(raw)
		if id == 0 {
			continue
		}
		beatmap, err := server.services.Beatmaps.Get(ctx, id)
		if err != nil {
			if beatmaps.ErrNotFound.Has(err) {
				continue
			}
			server.serveError(w, r, err)
			return
		}
		list = append(list, beatmap)
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"beatmaps": list})
}

func (server *Server) beatmapAttributes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		Mods      rulesets.Mods `json:"mods"`
		RulesetID *int          `json:"ruleset_id"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}

	beatmapID := pathID(r, "id")
	ruleset := rulesets.Osu
	if payload.RulesetID != nil {
		ruleset = rulesets.ID(*payload.RulesetID)
	} else if beatmap, err := server.services.Beatmaps.Get(ctx, beatmapID); err == nil {
		ruleset = beatmap.Ruleset
	}

	attrs, err := server.services.Performance.BeatmapAttributes(ctx, beatmapID, ruleset, payload.Mods)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"attributes": attrs})
}

func (server *Server) beatmapScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	ruleset, err := queryRuleset(r, rulesets.Osu)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	var mods rulesets.Mods
	for _, acronym := range r.URL.Query()["mods[]"] {
		mods = append(mods, rulesets.Mod{Acronym: acronym})
	}

	board, err := server.services.Scores.Leaderboard(ctx, scores.LeaderboardRequest{
		BeatmapID: pathID(r, "id"),
		Ruleset:   ruleset,
		Type:      scores.LeaderboardType(r.URL.Query().Get("type")),
		Mods:      mods,
		ViewerID:  user.ID,
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, board)
}

func (server *Server) beatmapUserScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	ruleset, err := queryRuleset(r, rulesets.Osu)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	best, position, err := server.services.Scores.BeatmapUserScore(ctx,
		pathID(r, "uid"), pathID(r, "id"), ruleset)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"position": position,
		"score":    best,
	})
}

func (server *Server) beatmapUserScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	ruleset, err := queryRuleset(r, rulesets.Osu)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	list, err := server.services.Scores.BeatmapUserScores(ctx,
		pathID(r, "uid"), pathID(r, "id"), ruleset)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"scores": nonNil(list)})
}

func (server *Server) beatmapset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	set, err := server.services.Beatmaps.Beatmapset(ctx, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, set)
}

func (server *Server) beatmapsetLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	beatmapID := queryInt64(r, "beatmap_id", 0)
	if beatmapID == 0 {
		server.serveError(w, r, ErrBadRequest.New("lookup needs beatmap_id"))
		return
	}
	set, err := server.services.Beatmaps.Lookup(ctx, beatmapID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, set)
}

func (server *Server) beatmapsetSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	result, err := server.services.Beatmaps.Search(ctx,
		r.URL.Query().Get("q"), r.URL.Query().Get("cursor_string"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, result)
}

// beatmapsetDownload hands the client off to the configured mirror; the
// server itself never stores set archives.
func (server *Server) beatmapsetDownload(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, fmt.Sprintf(server.config.DownloadURL, pathID(r, "id")), http.StatusFound)
}

func (server *Server) beatmapsetFavourite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	action := r.PostFormValue("action")
	count, err := server.services.Beatmaps.ToggleFavourite(ctx, user.ID, pathID(r, "id"), action != "unfavourite")
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]int64{"favourite_count": count})
}
