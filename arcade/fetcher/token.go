// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// rateGate is the process-wide 429 gate. After an upstream rate limit
// every request waits until the epoch passes.
type rateGate struct {
	mu    sync.Mutex
	until time.Time
}

func (g *rateGate) wait(ctx context.Context) error {
	g.mu.Lock()
	wait := time.Until(g.until)
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *rateGate) block(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until := time.Now().Add(d); until.After(g.until) {
		g.until = until
	}
}

// tokenCache holds the in-process copy of the shared access token.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (c *Client) tokenKey() string {
	return fmt.Sprintf("fetcher:access_token:%d", c.config.ClientID)
}

func (c *Client) expireKey() string {
	return fmt.Sprintf("fetcher:expire_at:%d", c.config.ClientID)
}

// accessToken returns a usable token, granting a fresh one when the
// cached copy is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (token string, err error) {
	defer mon.Task()(&ctx)(&err)

	c.token.mu.Lock()
	defer c.token.mu.Unlock()

	now := time.Now()
	if c.token.token != "" && now.Add(30*time.Second).Before(c.token.expiresAt) {
		return c.token.token, nil
	}

	// another process may have granted already
	if c.redis != nil {
		token, err := c.redis.Get(ctx, c.tokenKey()).Result()
		if err == nil && token != "" {
			var expireAt int64
			if raw, err := c.redis.Get(ctx, c.expireKey()).Result(); err == nil {
				expireAt, _ = parseInt64(raw)
			}
			expiresAt := time.Unix(expireAt, 0)
			if now.Add(30 * time.Second).Before(expiresAt) {
				c.token.token = token
				c.token.expiresAt = expiresAt
				return token, nil
			}
		}
	}

	token, expiresAt, err := c.grant(ctx)
	if err != nil {
		return "", err
	}
	c.token.token = token
	c.token.expiresAt = expiresAt

	if c.redis != nil {
		ttl := time.Until(expiresAt)
		if err := c.redis.Set(ctx, c.tokenKey(), token, ttl).Err(); err != nil {
			c.log.Warn("failed to mirror fetcher token", zap.Error(err))
		}
		if err := c.redis.Set(ctx, c.expireKey(), expiresAt.Unix(), ttl).Err(); err != nil {
			c.log.Warn("failed to mirror fetcher token expiry", zap.Error(err))
		}
	}
	return token, nil
}

// grant requests a client-credentials token with linear backoff.
func (c *Client) grant(ctx context.Context) (token string, expiresAt time.Time, err error) {
	var lastErr error
	retries := c.config.GrantRetries
	if retries < 1 {
		retries = 1
	}
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * time.Second
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", time.Time{}, ctx.Err()
			}
		}
		token, expiresAt, lastErr = c.grantOnce(ctx)
		if lastErr == nil {
			return token, expiresAt, nil
		}
		c.log.Warn("token grant failed", zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return "", time.Time{}, Error.Wrap(lastErr)
}

func (c *Client) grantOnce(ctx context.Context) (string, time.Time, error) {
	if err := c.gate.wait(ctx); err != nil {
		return "", time.Time{}, err
	}

	form := url.Values{}
	form.Set("client_id", fmt.Sprint(c.config.ClientID))
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "public")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.gate.block(parseRetryAfter(resp.Header.Get("Retry-After"), c.config.DefaultRetryAfter))
		return "", time.Time{}, Error.New("token endpoint rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, Error.New("token endpoint returned %d", resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", time.Time{}, Error.Wrap(err)
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", time.Time{}, Error.Wrap(err)
	}
	if parsed.AccessToken == "" {
		return "", time.Time{}, Error.New("token endpoint returned no token")
	}
	return parsed.AccessToken, time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second), nil
}

// clearToken drops the in-process and mirrored token after a 401.
func (c *Client) clearToken(ctx context.Context) {
	c.token.mu.Lock()
	c.token.token = ""
	c.token.expiresAt = time.Time{}
	c.token.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.DeleteAll(ctx, c.tokenKey(), c.expireKey()); err != nil {
			c.log.Warn("failed to clear mirrored fetcher token", zap.Error(err))
		}
	}
}

func parseInt64(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscan(s, &v)
	return v, err
}
