// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
)

// uploadPart returns the uploaded file, accepting both a multipart
// field and a raw body so curl and the frontend can share the endpoint.
func uploadPart(r *http.Request, field string) (io.ReadCloser, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile(field)
		if err != nil {
			return nil, ErrBadRequest.New("missing %q file field", field)
		}
		return file, nil
	}
	return r.Body, nil
}

func (server *Server) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	server.uploadImage(w, r, "avatar", server.services.Users.SetAvatar)
}

func (server *Server) uploadCover(w http.ResponseWriter, r *http.Request) {
	server.uploadImage(w, r, "cover", server.services.Users.SetCover)
}

func (server *Server) uploadImage(w http.ResponseWriter, r *http.Request, field string, store func(ctx context.Context, userID int64, reader io.Reader) error) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	file, err := uploadPart(r, field)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			server.log.Debug("upload close failed", zap.Error(closeErr))
		}
	}()

	if err = store(ctx, user.ID, file); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (server *Server) serveAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	reader, err := server.services.Users.OpenAvatar(ctx, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	defer func() { _ = reader.Close() }()

	w.Header().Set("Cache-Control", "public, max-age=60")
	http.ServeContent(w, r, "avatar.png", time.Time{}, reader)
}

func (server *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}

	// Field presence matters: a key set to null clears the value while
	// an absent key leaves it alone, so the body is walked raw.
	var raw map[string]json.RawMessage
	if err = decodeJSON(r, &raw); err != nil {
		server.serveError(w, r, err)
		return
	}

	var req users.PreferencesRequest
	if value, ok := raw["playmode"]; ok {
		var mode int
		if json.Unmarshal(value, &mode) != nil {
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				server.serveError(w, r, ErrBadRequest.New("malformed playmode"))
				return
			}
			id, err := rulesets.Parse(name)
			if err != nil {
				server.serveError(w, r, err)
				return
			}
			mode = int(id)
		}
		ruleset := rulesets.ID(mode)
		req.PlayMode = &ruleset
	}
	if value, ok := raw["profile_colour"]; ok {
		var color *string
		if string(value) != "null" {
			var parsed string
			if err := json.Unmarshal(value, &parsed); err != nil {
				server.serveError(w, r, ErrBadRequest.New("malformed profile_colour"))
				return
			}
			color = &parsed
		}
		req.ProfileColor = &color
	}
	if value, ok := raw["profile_hue"]; ok {
		var hue *int
		if string(value) != "null" {
			var parsed int
			if err := json.Unmarshal(value, &parsed); err != nil {
				server.serveError(w, r, ErrBadRequest.New("malformed profile_hue"))
				return
			}
			hue = &parsed
		}
		req.ProfileHue = &hue
	}
	if value, ok := raw["page"]; ok {
		var page string
		if string(value) != "null" {
			if err := json.Unmarshal(value, &page); err != nil {
				server.serveError(w, r, ErrBadRequest.New("malformed page"))
				return
			}
		}
		req.PageRaw = &page
	}

	if err = server.services.Users.UpdatePreferences(ctx, user.ID, req); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (server *Server) rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		Username string `json:"username"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Users.Rename(ctx, user.ID, payload.Username); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (server *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		CurrentPassword string `json:"current_password"`
		TOTPKey         string `json:"totp_key"`
		NewPassword     string `json:"new_password"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Auth.ChangePassword(ctx, user.ID,
		payload.CurrentPassword, payload.TOTPKey, payload.NewPassword); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (server *Server) totpEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	setup, err := server.services.Auth.StartTOTPEnrollment(ctx, user.ID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, setup)
}

func (server *Server) totpVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	backupCodes, err := server.services.Auth.FinishTOTPEnrollment(ctx, user.ID, payload.Code)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{"backup_codes": backupCodes})
}

func (server *Server) totpDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		Key string `json:"key"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Auth.DisableTOTP(ctx, user.ID, payload.Key); err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (server *Server) listOAuthApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	clients, err := server.services.Auth.ListClients(ctx, user.ID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(clients))
}

func (server *Server) createOAuthApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		Name        string `json:"name"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	client, secret, err := server.services.Auth.CreateClient(ctx, user.ID, payload.Name, payload.RedirectURI)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"client": client,
		"secret": secret,
	})
}

func (server *Server) deleteOAuthApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Auth.DeleteClient(ctx, user.ID, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) relationship(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	relation, err := server.services.Users.CheckRelation(ctx, user.ID, pathID(r, "id"))
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, relation)
}

func (server *Server) rateBeatmapset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		BeatmapsetID int64 `json:"beatmapset_id"`
		Score        int   `json:"score"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Beatmaps.Rate(ctx, user.ID, payload.BeatmapsetID, payload.Score); err != nil {
		server.serveError(w, r, err)
		return
	}
	average, count, err := server.services.Beatmaps.RatingSummary(ctx, payload.BeatmapsetID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"average": average,
		"count":   count,
	})
}

func (server *Server) syncBeatmapset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if err = server.services.Beatmaps.Sync(ctx, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// audioPreview hands the client to the upstream preview clip for a set.
func (server *Server) audioPreview(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, fmt.Sprintf(server.config.PreviewURL, pathID(r, "id")), http.StatusFound)
}

func (server *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	keys, err := server.services.Auth.ListAPIKeys(ctx, user.ID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, nonNil(keys))
}

func (server *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err = decodeJSON(r, &payload); err != nil {
		server.serveError(w, r, err)
		return
	}
	plain, key, err := server.services.Auth.CreateAPIKey(ctx, user.ID, payload.Name)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	server.serveJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"plain": plain,
	})
}

func (server *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	if err = server.services.Auth.DeleteAPIKey(ctx, user.ID, pathID(r, "id")); err != nil {
		server.serveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) downloadReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	user, err := users.GetUser(ctx)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	reader, err := server.services.Scores.OpenReplay(ctx, pathID(r, "id"), user.ID)
	if err != nil {
		server.serveError(w, r, err)
		return
	}
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, "replay.osr", time.Time{}, reader)
}
