// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package beatmaps

import (
	"context"
	"time"
)

// Favourites is the user-to-set favourite table.
//
// architecture: Database
type Favourites interface {
	// Add stores a favourite; adding twice is a no-op.
	Add(ctx context.Context, userID, beatmapsetID int64) error
	// Remove deletes a favourite; removing twice is a no-op.
	Remove(ctx context.Context, userID, beatmapsetID int64) error
	// Has reports whether the user favourited the set.
	Has(ctx context.Context, userID, beatmapsetID int64) (bool, error)
	// Count returns the number of users favouriting the set.
	Count(ctx context.Context, beatmapsetID int64) (int64, error)
	// ListByUser returns set ids favourited by a user, newest first.
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]int64, error)
}

// Ratings is the user rating table for sets.
//
// architecture: Database
type Ratings interface {
	// Upsert records a 0..10 vote, replacing the user's prior vote.
	Upsert(ctx context.Context, rating *Rating) error
	// Summary returns the vote average and count for a set.
	Summary(ctx context.Context, beatmapsetID int64) (average float64, count int64, err error)
}

// Rating is one user's vote on a set.
type Rating struct {
	UserID       int64
	BeatmapsetID int64
	Score        int
	CreatedAt    time.Time
}
