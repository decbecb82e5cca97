// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"strconv"

	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/users"
)

// withAPIKey authenticates legacy endpoints through the ?k= personal
// API key, matching the v1 convention.
func (server *Server) withAPIKey(w http.ResponseWriter, r *http.Request) bool {
	plain := r.URL.Query().Get("k")
	if plain == "" {
		server.serveError(w, r, auth.ErrInvalidGrant.New("missing api key"))
		return false
	}
	if _, err := server.services.Auth.AuthenticateAPIKey(r.Context(), plain); err != nil {
		server.serveError(w, r, auth.ErrInvalidGrant.New("bad api key"))
		return false
	}
	return true
}

// v1PlayerInfo serves the legacy player lookup. The v1 surface predates
// typed JSON clients, so every number goes out as a string.
func (server *Server) v1PlayerInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.withAPIKey(w, r) {
		return
	}

	var user *users.User
	switch {
	case queryInt64(r, "id", 0) != 0:
		user, err = server.services.Users.Get(ctx, queryInt64(r, "id", 0))
	case r.URL.Query().Get("name") != "":
		user, err = server.services.Users.GetByUsername(ctx, r.URL.Query().Get("name"))
	default:
		err = ErrBadRequest.New("lookup needs id or name")
	}
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	ruleset, err := queryRuleset(r, user.PlayMode)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	profile, err := server.services.Users.Profile(ctx, user.ID, ruleset, false)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	stats := profile.Statistics
	server.serveJSON(w, http.StatusOK, []map[string]string{{
		"user_id":      strconv.FormatInt(user.ID, 10),
		"username":     user.Username,
		"country":      user.Country,
		"join_date":    user.CreatedAt.Format("2006-01-02 15:04:05"),
		"playcount":    strconv.FormatInt(stats.PlayCount, 10),
		"ranked_score": strconv.FormatInt(stats.RankedScore, 10),
		"total_score":  strconv.FormatInt(stats.TotalScore, 10),
		"pp_rank":      strconv.FormatInt(stats.GlobalRank, 10),
		"pp_raw":       strconv.FormatFloat(stats.PP, 'f', 2, 64),
		"accuracy":     strconv.FormatFloat(stats.HitAccuracy, 'f', 4, 64),
		"level":        strconv.Itoa(stats.Level),
		"count_rank_ssh": strconv.Itoa(stats.CountXH),
		"count_rank_ss":  strconv.Itoa(stats.CountX),
		"count_rank_sh":  strconv.Itoa(stats.CountSH),
		"count_rank_s":   strconv.Itoa(stats.CountS),
		"count_rank_a":   strconv.Itoa(stats.CountA),
	}})
}

func (server *Server) v1PlayerCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.withAPIKey(w, r) {
		return
	}
	total, err := server.services.UserCount(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]string{
		"total":  strconv.FormatInt(total, 10),
		"online": strconv.Itoa(server.services.ChatHub.ConnectedUsers()),
	})
}
