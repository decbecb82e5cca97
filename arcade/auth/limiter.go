// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tempora.dev/tempora/internal/sync2"
)

// limited tracks one key's limiter and when it can be forgotten.
type limited struct {
	limiter *rate.Limiter
	expire  time.Time
}

// Limiter is a keyed token-bucket limiter. Keys are typically client IPs
// or email addresses.
type Limiter struct {
	mu      sync.Mutex
	limited map[string]*limited

	limit rate.Limit
	burst int
	keep  time.Duration

	loop *sync2.Cycle
}

// NewLimiter returns a limiter allowing eventsPerSecond with the given
// burst per key. Idle keys are dropped by the cleanup loop.
func NewLimiter(eventsPerSecond float64, burst int, clearPeriod time.Duration) *Limiter {
	return &Limiter{
		limited: map[string]*limited{},
		limit:   rate.Limit(eventsPerSecond),
		burst:   burst,
		keep:    clearPeriod,
		loop:    sync2.NewCycle(clearPeriod),
	}
}

// Allow reports whether the key may proceed now.
func (limiter *Limiter) Allow(key string) bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()

	entry, found := limiter.limited[key]
	if !found {
		entry = &limited{
			limiter: rate.NewLimiter(limiter.limit, limiter.burst),
		}
		limiter.limited[key] = entry
	}
	entry.expire = now.Add(limiter.keep)

	return entry.limiter.AllowN(now, 1)
}

// Run periodically drops idle keys until the context is canceled.
func (limiter *Limiter) Run(ctx context.Context) error {
	return limiter.loop.Run(ctx, func(ctx context.Context) error {
		limiter.cleanUp(time.Now())
		return nil
	})
}

func (limiter *Limiter) cleanUp(now time.Time) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	for key, entry := range limiter.limited {
		if now.After(entry.expire) {
			delete(limiter.limited, key)
		}
	}
}

// Close stops the cleanup loop.
func (limiter *Limiter) Close() {
	limiter.loop.Stop()
}
