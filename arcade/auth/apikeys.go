// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// APIKeys is the personal API key table. Keys authenticate legacy
// endpoints where OAuth is unavailable.
//
// architecture: Database
type APIKeys interface {
	// Insert stores a key.
	Insert(ctx context.Context, key *APIKey) error
	// GetByHash returns the key with the given digest.
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	// ListByUser returns a user's keys, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*APIKey, error)
	// TouchLastUsed records usage.
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
	// Delete removes a key by id, scoped to its owner.
	Delete(ctx context.Context, userID, id int64) error
}

// APIKey is a stored personal key. Only the sha256 digest persists.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"-"`
	Name       string     `json:"name"`
	Hash       string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// NewAPIKeySecret mints the plaintext shown to the user exactly once,
// together with its storable digest.
func NewAPIKeySecret() (plain, hash string, err error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", "", Error.Wrap(err)
	}
	plain = hex.EncodeToString(raw)
	return plain, HashAPIKey(plain), nil
}

// HashAPIKey digests a presented key for lookup.
func HashAPIKey(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
