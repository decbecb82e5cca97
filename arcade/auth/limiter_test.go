// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tempora.dev/tempora/arcade/auth"
)

func TestLimiterPerKey(t *testing.T) {
	limiter := auth.NewLimiter(0.001, 2, time.Minute)
	defer limiter.Close()

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	// a different key has its own bucket
	assert.True(t, limiter.Allow("10.0.0.2"))
}
