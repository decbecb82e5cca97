// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package users

import (
	"context"
	"time"
)

// Teams is the player team table.
//
// architecture: Database
type Teams interface {
	// Get returns the team by id.
	Get(ctx context.Context, id int64) (*Team, error)
	// Insert creates a team.
	Insert(ctx context.Context, team *Team) (*Team, error)
	// MemberIDs returns the user ids belonging to the team.
	MemberIDs(ctx context.Context, teamID int64) ([]int64, error)
	// SetMembership moves a user into the team; a zero team id leaves.
	SetMembership(ctx context.Context, userID int64, teamID int64) error
	// List returns every team.
	List(ctx context.Context) ([]*Team, error)
}

// Team is a named group of players competing together on team
// leaderboards.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	LeaderID  int64     `json:"leader_id"`
	CreatedAt time.Time `json:"created_at"`
}
