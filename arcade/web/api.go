// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/fetcher"
	"tempora.dev/tempora/arcade/performance"
	"tempora.dev/tempora/arcade/rankings"
	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/storage"
)

// errorBody is the envelope every failed request serializes to, except
// the OAuth token endpoint which has its own wire shape.
type errorBody struct {
	Err     string `json:"error"`
	MsgKey  string `json:"msg_key"`
	Details any    `json:"details,omitempty"`
}

func (server *Server) serveJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if value == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(value); err != nil {
		server.log.Debug("response encoding failed", zap.Error(err))
	}
}

func (server *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	status, key := classify(err)

	if status >= http.StatusInternalServerError {
		server.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		server.serveJSON(w, status, errorBody{Err: "internal server error", MsgKey: key})
		return
	}
	server.serveJSON(w, status, errorBody{Err: err.Error(), MsgKey: key})
}

// classify maps service error classes onto HTTP statuses. Unknown
// errors are internal; their text never reaches the client.
func classify(err error) (status int, msgKey string) {
	switch {
	case auth.ErrRateLimited.Has(err):
		return http.StatusTooManyRequests, "rate_limited"
	case auth.ErrUnverifiedSession.Has(err):
		return http.StatusUnauthorized, "verification_required"
	case auth.ErrInvalidClient.Has(err),
		auth.ErrInvalidGrant.Has(err),
		users.ErrUnauthorized.Has(err):
		return http.StatusUnauthorized, "unauthorized"
	case auth.ErrInvalidScope.Has(err),
		chat.ErrForbidden.Has(err),
		rooms.ErrForbidden.Has(err):
		return http.StatusForbidden, "forbidden"
	case users.ErrNotFound.Has(err),
		beatmaps.ErrNotFound.Has(err),
		scores.ErrNotFound.Has(err),
		chat.ErrNotFound.Has(err),
		rooms.ErrNotFound.Has(err),
		storage.ErrBlobNotFound.Has(err):
		return http.StatusNotFound, "not_found"
	case users.ErrUsernameTaken.Has(err):
		return http.StatusConflict, "username_taken"
	case users.ErrEmailTaken.Has(err):
		return http.StatusConflict, "email_taken"
	case rooms.ErrEnded.Has(err):
		return http.StatusConflict, "room_ended"
	case ErrBadRequest.Has(err):
		return http.StatusBadRequest, "bad_request"
	case users.ErrValidation.Has(err),
		scores.ErrValidation.Has(err),
		chat.ErrValidation.Has(err),
		rooms.ErrValidation.Has(err),
		rankings.ErrValidation.Has(err),
		auth.ErrInvalidRequest.Has(err),
		auth.ErrIncorrectLength.Has(err),
		auth.ErrIncorrectFormat.Has(err),
		auth.ErrIncorrectKey.Has(err),
		scores.ErrTokenMismatch.Has(err),
		scores.ErrVersionMismatch.Has(err),
		rulesets.Error.Has(err):
		return http.StatusUnprocessableEntity, "validation_failed"
	case fetcher.Error.Has(err), performance.Error.Has(err):
		return http.StatusBadGateway, "upstream_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON parses the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return ErrBadRequest.New("malformed json: %v", err)
	}
	return nil
}

// pathVar returns a string route variable.
func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// nonNil turns a nil slice into an empty one so lists serialize as [].
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// pathID returns a numeric route variable. The route patterns only
// admit digits, so a parse failure means a route bug.
func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

// pathRuleset resolves an optional {ruleset} route variable; absent
// means the zero ruleset with useDefault semantics left to the caller.
func pathRuleset(r *http.Request) (id rulesets.ID, present bool, err error) {
	name, ok := mux.Vars(r)["ruleset"]
	if !ok || name == "" {
		return 0, false, nil
	}
	id, err = rulesets.Parse(name)
	return id, true, err
}

// queryRuleset resolves the ?mode= query parameter, absent meaning the
// fallback.
func queryRuleset(r *http.Request, fallback rulesets.ID) (rulesets.ID, error) {
	name := r.URL.Query().Get("mode")
	if name == "" {
		return fallback, nil
	}
	return rulesets.Parse(name)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryInt64(r *http.Request, name string, fallback int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func parseInt64(raw string) int64 {
	value, _ := strconv.ParseInt(raw, 10, 64)
	return value
}

// clampLimit bounds a client-supplied page size.
func clampLimit(value, fallback, max int) int {
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}
