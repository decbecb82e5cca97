// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package redis wraps the go-redis client with connection checking and
// JSON convenience helpers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
)

// Error is the default redis error class.
var Error = errs.Class("redis")

// Client is the entrypoint into Redis.
type Client struct {
	*redis.Client
}

// NewClient returns a configured Client instance, verifying a successful
// connection to redis.
func NewClient(ctx context.Context, address, password string, db int) (*Client, error) {
	client := &Client{
		Client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.Client.Close())
	}
	return client, nil
}

// NewClientFrom returns a configured Client instance from a redis URL,
// verifying a successful connection to redis.
func NewClientFrom(ctx context.Context, address string) (*Client, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	client := &Client{Client: redis.NewClient(opts)}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.Client.Close())
	}
	return client, nil
}

// Close closes the redis connection pool.
func (client *Client) Close() error {
	return Error.Wrap(client.Client.Close())
}

// GetJSON fetches the key and unmarshals its value into dest. It returns
// false without an error when the key does not exist.
func (client *Client) GetJSON(ctx context.Context, key string, dest any) (found bool, err error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, Error.Wrap(err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, Error.Wrap(err)
	}
	return true, nil
}

// SetJSON marshals the value into the key. A zero ttl stores the key
// without expiry.
func (client *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(client.Set(ctx, key, data, ttl).Err())
}

// DeleteAll removes all of the given keys, ignoring misses.
func (client *Client) DeleteAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return Error.Wrap(client.Del(ctx, keys...).Err())
}

// DeleteMatching scans for keys matching the glob pattern and removes
// them in batches. It never blocks the server the way KEYS would.
func (client *Client) DeleteMatching(ctx context.Context, pattern string) error {
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := flush(); err != nil {
				return Error.Wrap(err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(flush())
}
