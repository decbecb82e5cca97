// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msgKey string
	}{
		{auth.ErrInvalidGrant.New("expired"), http.StatusUnauthorized, "unauthorized"},
		{auth.ErrUnverifiedSession.New("pending"), http.StatusUnauthorized, "verification_required"},
		{auth.ErrInvalidScope.New("chat.write required"), http.StatusForbidden, "forbidden"},
		{auth.ErrRateLimited.New("slow down"), http.StatusTooManyRequests, "rate_limited"},
		{users.ErrNotFound.New("user 7"), http.StatusNotFound, "not_found"},
		{beatmaps.ErrNotFound.New("beatmap 9"), http.StatusNotFound, "not_found"},
		{scores.ErrNotFound.New("score 3"), http.StatusNotFound, "not_found"},
		{users.ErrUsernameTaken.New("peppy"), http.StatusConflict, "username_taken"},
		{rooms.ErrEnded.New("room 4"), http.StatusConflict, "room_ended"},
		{users.ErrValidation.New("username too short"), http.StatusUnprocessableEntity, "validation_failed"},
		{scores.ErrTokenMismatch.New("wrong beatmap"), http.StatusUnprocessableEntity, "validation_failed"},
		{chat.ErrForbidden.New("silenced"), http.StatusForbidden, "forbidden"},
		{ErrBadRequest.New("malformed json"), http.StatusBadRequest, "bad_request"},
		{Error.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, msgKey := classify(tc.err)
		require.Equal(t, tc.status, status, "error %v", tc.err)
		require.Equal(t, tc.msgKey, msgKey, "error %v", tc.err)
	}
}

func TestServeErrorHidesInternals(t *testing.T) {
	server := &Server{log: zaptest.NewLogger(t)}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/me", nil)
	server.serveError(rec, req, Error.New("database exploded: secret dsn"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "internal server error", body.Err)
	require.NotContains(t, rec.Body.String(), "secret dsn")
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v2/me", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	require.Equal(t, "abc123", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/api/v2/me", nil)
	req.Header.Set("Authorization", "Basic abc123")
	require.Equal(t, "", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/notification-server?token=qtok", nil)
	require.Equal(t, "qtok", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/notification-server?access_token=atok", nil)
	require.Equal(t, "atok", bearerToken(req))

	// The header wins over query parameters.
	req = httptest.NewRequest(http.MethodGet, "/notification-server?token=qtok", nil)
	req.Header.Set("Authorization", "Bearer htok")
	require.Equal(t, "htok", bearerToken(req))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:52011"
	require.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.2, 203.0.113.9")
	require.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	require.Equal(t, "198.51.100.7", clientIP(req))
}

func TestRegistrationField(t *testing.T) {
	require.Equal(t, "username", registrationField(users.ErrUsernameTaken.New("taken")))
	require.Equal(t, "user_email", registrationField(users.ErrEmailTaken.New("taken")))
	require.Equal(t, "username", registrationField(users.ErrValidation.New("username too short")))
	require.Equal(t, "password", registrationField(users.ErrValidation.New("password too weak")))
	require.Equal(t, "", registrationField(Error.New("boom")))
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, 50, clampLimit(0, 50, 100))
	require.Equal(t, 50, clampLimit(-3, 50, 100))
	require.Equal(t, 7, clampLimit(7, 50, 100))
	require.Equal(t, 100, clampLimit(500, 50, 100))
}

func TestLIOSecretGuard(t *testing.T) {
	server := &Server{log: zaptest.NewLogger(t), config: Config{LIOSecret: "sesame"}}

	var reached bool
	handler := server.withLIOSecret(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/_lio/rooms/1/end", nil)
	handler.ServeHTTP(rec, req)
	require.False(t, reached)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req.Header.Set("X-Tempora-Secret", "sesame")
	handler.ServeHTTP(rec, req)
	require.True(t, reached)

	// An empty configured secret locks the surface instead of opening it.
	open := &Server{log: zaptest.NewLogger(t)}
	reached = false
	handler = open.withLIOSecret(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/_lio/rooms/1/end", nil)
	req.Header.Set("X-Tempora-Secret", "")
	handler.ServeHTTP(rec, req)
	require.False(t, reached)
}

func TestNonNil(t *testing.T) {
	require.NotNil(t, nonNil[int](nil))
	require.Len(t, nonNil([]int{1, 2}), 2)

	raw, err := json.Marshal(nonNil[string](nil))
	require.NoError(t, err)
	require.Equal(t, "[]", string(raw))
}
