// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package fetcher_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade/fetcher"
	"tempora.dev/tempora/internal/testcontext"
)

func testConfig(api, token string) fetcher.Config {
	return fetcher.Config{
		BaseURL:           api,
		TokenURL:          token,
		ClientID:          99,
		ClientSecret:      "sekrit",
		RawMirrors:        nil,
		RequestTimeout:    5 * time.Second,
		DefaultRetryAfter: time.Second,
		GrantRetries:      3,
	}
}

func tokenHandler(grants *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grants.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	}
}

func TestClientFetchesBeatmapset(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var grants atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler(&grants))
	mux.HandleFunc("/api/v2/beatmapsets/1234", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":1234,"title":"Freedom Dive","beatmaps":[{"id":5678,"version":"FOUR DIMENSIONS"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := fetcher.New(zaptest.NewLogger(t), nil, testConfig(server.URL+"/api/v2", server.URL+"/oauth/token"))

	set, err := client.Beatmapset(ctx, 1234)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), set.ID)
	assert.Equal(t, "Freedom Dive", set.Title)
	require.Len(t, set.Beatmaps, 1)
	assert.Equal(t, int64(5678), set.Beatmaps[0].ID)

	// the token is granted once and reused
	_, err = client.Beatmapset(ctx, 1234)
	require.NoError(t, err)
	assert.Equal(t, int64(1), grants.Load())
}

func TestClientRegrantsOn401(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var grants, rejected atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		grants.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api/v2/beatmapsets/1", func(w http.ResponseWriter, r *http.Request) {
		if rejected.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"title":"ok"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := fetcher.New(zaptest.NewLogger(t), nil, testConfig(server.URL+"/api/v2", server.URL+"/oauth/token"))

	set, err := client.Beatmapset(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", set.Title)
	assert.Equal(t, int64(2), grants.Load())
}

func TestRawBeatmapMirrorFallback(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/osu/777", r.URL.Path)
		_, _ = w.Write([]byte("osu file format v14"))
	}))
	defer working.Close()

	config := testConfig("unused", "unused")
	config.RawMirrors = []string{
		broken.URL + "/osu/%d",
		working.URL + "/osu/%d",
	}
	client := fetcher.New(zaptest.NewLogger(t), nil, config)

	raw, err := client.RawBeatmap(ctx, 777)
	require.NoError(t, err)
	assert.Equal(t, "osu file format v14", string(raw))
}

func TestRawBeatmapAllMirrorsFail(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	config := testConfig("unused", "unused")
	config.RawMirrors = []string{broken.URL + "/osu/%d"}
	client := fetcher.New(zaptest.NewLogger(t), nil, config)

	_, err := client.RawBeatmap(ctx, 1)
	assert.Error(t, err)
}
