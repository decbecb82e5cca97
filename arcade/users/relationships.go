// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package users

import (
	"context"
	"time"
)

// RelationKind distinguishes friend and block edges.
type RelationKind string

// Relationship kinds.
const (
	RelationFriend RelationKind = "friend"
	RelationBlock  RelationKind = "block"
)

// Relationship is a directed edge between two users.
type Relationship struct {
	UserID    int64        `json:"-"`
	TargetID  int64        `json:"target_id"`
	Kind      RelationKind `json:"-"`
	CreatedAt time.Time    `json:"-"`

	// Mutual is set on friend edges when the target friends back.
	Mutual bool `json:"mutual"`
}

// Relationships exposes methods to manage the relationships table.
//
// architecture: Database
type Relationships interface {
	// Upsert creates the edge, replacing an opposite-kind edge when present.
	Upsert(ctx context.Context, userID, targetID int64, kind RelationKind) error
	// Delete removes an edge of the given kind.
	Delete(ctx context.Context, userID, targetID int64, kind RelationKind) error
	// Get returns the edge between two users, when one exists.
	Get(ctx context.Context, userID, targetID int64) (*Relationship, error)
	// List returns all edges of a kind for a user, with Mutual populated
	// for friends.
	List(ctx context.Context, userID int64, kind RelationKind) ([]*Relationship, error)
	// FriendIDs returns the target ids of the user's friend edges.
	FriendIDs(ctx context.Context, userID int64) ([]int64, error)
}
