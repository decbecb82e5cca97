// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"context"
	"net/http"

	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
)

func (server *Server) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	ruleset, present, err := pathRuleset(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	profile, err := server.services.Users.Profile(ctx, user.ID, ruleset, !present)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.services.Users.TouchLastVisit(ctx, user.ID)
	server.serveJSON(w, http.StatusOK, profile)
}

func (server *Server) userProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	ruleset, present, err := pathRuleset(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	profile, err := server.services.Users.Profile(ctx, pathID(r, "id"), ruleset, !present)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, profile)
}

func (server *Server) userScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	userID := pathID(r, "id")
	target, err := server.services.Users.Get(ctx, userID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	ruleset, err := queryRuleset(r, target.PlayMode)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	list, err := server.services.Scores.UserScores(ctx, scores.ListRequest{
		UserID:       userID,
		Kind:         scores.ListKind(pathVar(r, "type")),
		Ruleset:      ruleset,
		IncludeFails: queryInt(r, "include_fails", 0) == 1,
		Limit:        queryInt(r, "limit", 0),
		Offset:       queryInt(r, "offset", 0),
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(list))
}

func (server *Server) userBeatmapsets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	userID := pathID(r, "id")
	limit := clampLimit(queryInt(r, "limit", 50), 50, 100)
	offset := queryInt(r, "offset", 0)

	var sets []*beatmaps.Beatmapset
	switch pathVar(r, "type") {
	case "favourite":
		sets, err = server.services.Beatmaps.FavouritesOf(ctx, userID, limit, offset)
		if err != nil {
			server.serveError(w, r, err)
			return
		}
	default:
		// Mapping uploads are not hosted here; the other types are
		// always empty.
	}
	server.serveJSON(w, http.StatusOK, nonNil(sets))
}

func (server *Server) userRecentActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	events, err := server.services.Activity.Timeline(ctx, pathID(r, "id"),
		clampLimit(queryInt(r, "limit", 20), 20, 100), queryInt(r, "offset", 0))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(events))
}

func (server *Server) friends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if !server.requireScope(w, r, auth.ScopeFriendsRead) {
		return
	}
	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	friends, err := server.services.Users.Friends(ctx, user.ID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(friends))
}

func (server *Server) blocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	blocks, err := server.services.Users.Blocks(ctx, user.ID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(blocks))
}

// relationTarget resolves the target user id from the ?target= query
// or a JSON body.
func relationTarget(r *http.Request) (int64, error) {
	if target := queryInt64(r, "target", 0); target != 0 {
		return target, nil
	}
	var payload struct {
		Target int64 `json:"target"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		return 0, err
	}
	if payload.Target == 0 {
		return 0, ErrBadRequest.New("missing target")
	}
	return payload.Target, nil
}

func (server *Server) addFriend(w http.ResponseWriter, r *http.Request) {
	server.mutateRelation(w, r, server.services.Users.AddFriend)
}

func (server *Server) addBlock(w http.ResponseWriter, r *http.Request) {
	server.mutateRelation(w, r, server.services.Users.Block)
}

func (server *Server) mutateRelation(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, userID, targetID int64) error) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	target, err := relationTarget(r)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = action(ctx, user.ID, target); err != nil {
		server.serveError(w, r, err)
		return
	}
	relation, err := server.services.Users.CheckRelation(ctx, user.ID, target)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, relation)
}

func (server *Server) removeFriend(w http.ResponseWriter, r *http.Request) {
	server.dropRelation(w, r, server.services.Users.RemoveFriend)
}

func (server *Server) removeBlock(w http.ResponseWriter, r *http.Request) {
	server.dropRelation(w, r, server.services.Users.Unblock)
}

func (server *Server) dropRelation(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, userID, targetID int64) error) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = action(ctx, user.ID, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
