// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package fetcher talks to the upstream beatmap API with a shared
// client-credentials token, a process-wide rate gate and per-key
// request coalescing.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/storage/redis"
)

var mon = monkit.Package()

// Error is the default fetcher error class.
var Error = errs.Class("fetcher")

// Config holds fetcher configuration.
type Config struct {
	BaseURL      string `help:"upstream api base url" default:"https://osu.ppy.sh/api/v2"`
	TokenURL     string `help:"upstream oauth token url" default:"https://osu.ppy.sh/oauth/token"`
	ClientID     int64  `help:"upstream oauth client id" default:"0"`
	ClientSecret string `help:"upstream oauth client secret" default:""`

	RawMirrors []string `help:"raw file url templates tried in order, each containing %d" default:"https://osu.ppy.sh/osu/%d"`

	RequestTimeout    time.Duration `help:"per-request timeout" default:"30s"`
	DefaultRetryAfter time.Duration `help:"wait applied on 429 without a Retry-After header" default:"60s"`
	GrantRetries      int           `help:"token grant attempts" default:"3"`
}

// Client is the upstream API client. It implements beatmaps.Source.
type Client struct {
	log    *zap.Logger
	http   *http.Client
	redis  *redis.Client
	config Config

	gate  *rateGate
	token *tokenCache
	raws  singleflight.Group
}

// New returns a fetcher client. redisClient may be nil; the token is
// then held in-process only.
func New(log *zap.Logger, redisClient *redis.Client, config Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Client{
		log: log,
		http: &http.Client{
			Transport: transport,
			Timeout:   config.RequestTimeout,
		},
		redis:  redisClient,
		config: config,
		gate:   &rateGate{},
		token:  &tokenCache{},
	}
}

// get performs an authenticated GET against the upstream API, handling
// the rate gate and one token regrant on 401.
func (c *Client) get(ctx context.Context, path string, query url.Values) (body []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		target := c.config.BaseURL + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
		status, body, err := c.do(ctx, target, token)
		if err != nil {
			return nil, err
		}
		switch {
		case status == http.StatusUnauthorized:
			mon.Event("fetcher_regrant")
			c.clearToken(ctx)
			continue
		case status >= 200 && status < 300:
			return body, nil
		default:
			return nil, Error.New("upstream returned %d for %s", status, path)
		}
	}
	return nil, Error.New("unauthorized after token regrant")
}

// do runs one HTTP request through the rate gate.
func (c *Client) do(ctx context.Context, target, token string) (status int, body []byte, err error) {
	if err := c.gate.wait(ctx); err != nil {
		return 0, nil, Error.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, Error.Wrap(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()

	if resp.StatusCode == http.StatusTooManyRequests {
		mon.Event("fetcher_rate_limited")
		c.gate.block(parseRetryAfter(resp.Header.Get("Retry-After"), c.config.DefaultRetryAfter))
		return resp.StatusCode, nil, nil
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return 0, nil, Error.Wrap(err)
	}
	return resp.StatusCode, body, nil
}

// parseRetryAfter reads the header as delta seconds or an HTTP date.
func parseRetryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
		return 0
	}
	return fallback
}

// wire shapes for upstream responses

type wireBeatmap struct {
	beatmaps.Beatmap
	Beatmapset *beatmaps.Beatmapset `json:"beatmapset"`
}

// Beatmapset fetches a set with its difficulties.
func (c *Client) Beatmapset(ctx context.Context, id int64) (set *beatmaps.Beatmapset, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := c.get(ctx, fmt.Sprintf("/beatmapsets/%d", id), nil)
	if err != nil {
		return nil, err
	}
	set = &beatmaps.Beatmapset{}
	if err := json.Unmarshal(body, set); err != nil {
		return nil, Error.Wrap(err)
	}
	return set, nil
}

// BeatmapsetForBeatmap resolves the difficulty, then returns its full set.
func (c *Client) BeatmapsetForBeatmap(ctx context.Context, beatmapID int64) (set *beatmaps.Beatmapset, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := c.get(ctx, fmt.Sprintf("/beatmaps/%d", beatmapID), nil)
	if err != nil {
		return nil, err
	}
	return c.setFromBeatmapBody(ctx, body)
}

// BeatmapsetForChecksum resolves a difficulty by md5, then returns its set.
func (c *Client) BeatmapsetForChecksum(ctx context.Context, checksum string) (set *beatmaps.Beatmapset, err error) {
	defer mon.Task()(&ctx)(&err)

	query := url.Values{}
	query.Set("checksum", checksum)
	body, err := c.get(ctx, "/beatmaps/lookup", query)
	if err != nil {
		return nil, err
	}
	return c.setFromBeatmapBody(ctx, body)
}

func (c *Client) setFromBeatmapBody(ctx context.Context, body []byte) (*beatmaps.Beatmapset, error) {
	var beatmap wireBeatmap
	if err := json.Unmarshal(body, &beatmap); err != nil {
		return nil, Error.Wrap(err)
	}
	if beatmap.Beatmapset == nil {
		return nil, Error.New("upstream beatmap %d carries no set", beatmap.ID)
	}
	// the embedded set omits sibling difficulties; fetch the full set
	return c.Beatmapset(ctx, beatmap.Beatmapset.ID)
}

// Search runs an upstream beatmapset search page.
func (c *Client) Search(ctx context.Context, queryString, cursor string) (result *beatmaps.SearchResult, err error) {
	defer mon.Task()(&ctx)(&err)

	query := url.Values{}
	if queryString != "" {
		query.Set("q", queryString)
	}
	if cursor != "" {
		query.Set("cursor_string", cursor)
	}
	body, err := c.get(ctx, "/beatmapsets/search", query)
	if err != nil {
		return nil, err
	}
	result = &beatmaps.SearchResult{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, Error.Wrap(err)
	}
	return result, nil
}

// RawBeatmap downloads the raw ".osu" file, trying each mirror in order.
// Concurrent calls for the same id share one download.
func (c *Client) RawBeatmap(ctx context.Context, beatmapID int64) (raw []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	key := strconv.FormatInt(beatmapID, 10)
	value, err, _ := c.raws.Do(key, func() (any, error) {
		return c.downloadRaw(ctx, beatmapID)
	})
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

func (c *Client) downloadRaw(ctx context.Context, beatmapID int64) ([]byte, error) {
	if len(c.config.RawMirrors) == 0 {
		return nil, Error.New("no raw mirrors configured")
	}

	var group errs.Group
	for _, mirror := range c.config.RawMirrors {
		if !strings.Contains(mirror, "%d") {
			group.Add(Error.New("mirror %q lacks a %%d placeholder", mirror))
			continue
		}
		target := fmt.Sprintf(mirror, beatmapID)
		status, body, err := c.do(ctx, target, "")
		if err != nil {
			group.Add(err)
			continue
		}
		if status >= 200 && status < 300 && len(body) > 0 {
			return body, nil
		}
		group.Add(Error.New("mirror %q returned %d", mirror, status))
	}
	return nil, group.Err()
}
