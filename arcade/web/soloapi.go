// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"net/http"
	"strconv"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
)

// createSoloToken reserves a play before the client starts it. The
// client posts its version hash and the local beatmap checksum so a
// stale or tampered copy is rejected up front.
func (server *Server) createSoloToken(w http.ResponseWriter, r *http.Request) {
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
		BeatmapID:          pathID(r, "id"),
		BeatmapChecksum:    r.PostFormValue("beatmap_hash"),
		Ruleset:            rulesets.ID(rulesetID),
		ClientVersion:      r.PostFormValue("version_hash"),
		RulesetVersionHash: r.PostFormValue("ruleset_version_hash"),
	})
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, token)
}

func (server *Server) submitSoloScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var info scores.SubmissionInfo
	if err = decodeJSON(r, &info); err != nil {
		server.serveError(w, r, err)
		return
	}

	score, err := server.services.Scores.Submit(ctx, user.ID, pathID(r, "token"), &info)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, score)
}

// deleteScore lets a player remove their own score. Projections derived
// from it are recomputed by the service.
func (server *Server) deleteScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Scores.Delete(ctx, user.ID, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) pinScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Scores.Pin(ctx, user.ID, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) unpinScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Scores.Unpin(ctx, user.ID, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) reorderScorePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		AfterScoreID int64 `json:"after_score_id"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Scores.ReorderPin(ctx, user.ID, pathID(r, "id"), payload.AfterScoreID); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
