// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package redis_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/internal/testcontext"
	"tempora.dev/tempora/storage/redis"
	"tempora.dev/tempora/storage/redis/redisserver"
)

func TestClientJSON(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	defer cleanup()

	client, err := redis.NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	found, err := client.GetJSON(ctx, "missing", &payload{})
	require.NoError(t, err)
	assert.False(t, found)

	want := payload{Name: "fiery", Count: 3}
	require.NoError(t, client.SetJSON(ctx, "entry", want, time.Hour))

	var got payload
	found, err = client.GetJSON(ctx, "entry", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	require.NoError(t, client.DeleteAll(ctx, "entry", "missing"))
	found, err = client.GetJSON(ctx, "entry", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewClientFrom(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	addr, cleanup, err := redisserver.Mini()
	require.NoError(t, err)
	defer cleanup()

	client, err := redis.NewClientFrom(ctx, "redis://"+addr+"/0")
	require.NoError(t, err)
	defer ctx.Check(client.Close)

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	value, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}
