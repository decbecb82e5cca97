// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package users

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/storage/redis"
)

// Cache keeps composed profiles in Redis so profile reads skip the
// database between mutations.
type Cache struct {
	log    *zap.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a profile cache backed by the shared Redis client.
func NewCache(log *zap.Logger, client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{log: log, client: client, ttl: ttl}
}

func profileKey(userID int64, ruleset rulesets.ID, useDefault bool) string {
	if useDefault {
		return fmt.Sprintf("user:%d", userID)
	}
	return fmt.Sprintf("user:%d:ruleset:%d", userID, int(ruleset))
}

// GetProfile returns the cached profile, if present.
func (c *Cache) GetProfile(ctx context.Context, userID int64, ruleset rulesets.ID, useDefault bool) (*Profile, bool) {
	var profile Profile
	ok, err := c.client.GetJSON(ctx, profileKey(userID, ruleset, useDefault), &profile)
	if err != nil {
		c.log.Warn("profile cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &profile, true
}

// SetProfile stores the composed profile under its variant key.
func (c *Cache) SetProfile(ctx context.Context, userID int64, ruleset rulesets.ID, useDefault bool, profile *Profile) {
	if err := c.client.SetJSON(ctx, profileKey(userID, ruleset, useDefault), profile, c.ttl); err != nil {
		c.log.Warn("profile cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// InvalidateUser removes every cached variant belonging to the user,
// including the legacy v1 projections kept by the compatibility API.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	patterns := []string{
		fmt.Sprintf("user:%d", userID),
		fmt.Sprintf("user:%d:*", userID),
		fmt.Sprintf("v1_user:%d", userID),
		fmt.Sprintf("v1_user:%d:*", userID),
	}
	for _, pattern := range patterns {
		if err := c.client.DeleteMatching(ctx, pattern); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
