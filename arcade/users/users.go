// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package users

import (
	"context"
	"time"

	"tempora.dev/tempora/arcade/rulesets"
)

// Users exposes methods to manage the users table.
//
// architecture: Database
type Users interface {
	// Get queries a user by id.
	Get(ctx context.Context, id int64) (*User, error)
	// GetByUsername queries a user by exact username.
	GetByUsername(ctx context.Context, username string) (*User, error)
	// GetByEmail queries a user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByUsernameOrEmail resolves a login identifier.
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*User, error)
	// Insert creates a user, assigning its id in place.
	Insert(ctx context.Context, user *User) error
	// Update applies the non-nil fields of the request.
	Update(ctx context.Context, id int64, request UpdateUserRequest) error
	// UpdateLastVisit bumps the last-visit timestamp.
	UpdateLastVisit(ctx context.Context, id int64, at time.Time) error
	// Count returns the total number of users.
	Count(ctx context.Context) (int64, error)
	// ListByIDs fetches a batch of users preserving no particular order.
	ListByIDs(ctx context.Context, ids []int64) ([]*User, error)
}

// Privileges is the user privilege bitmask.
type Privileges uint32

// Privilege bits.
const (
	PrivilegeNormal Privileges = 1 << iota
	PrivilegeSupporter
	PrivilegeModerator
	PrivilegeAdmin
	PrivilegeRestricted
	PrivilegeBot
)

// Has reports whether every given bit is set.
func (p Privileges) Has(flag Privileges) bool {
	return p&flag == flag
}

// User is a database object that describes a player account.
type User struct {
	ID int64 `json:"id"`

	Username       string `json:"username"`
	Email          string `json:"-"`
	PasswordDigest []byte `json:"-"`

	Country    string     `json:"country_code"`
	Privileges Privileges `json:"-"`

	CreatedAt   time.Time `json:"join_date"`
	LastVisitAt time.Time `json:"last_visit"`

	IsSupporter bool        `json:"is_supporter"`
	PlayMode    rulesets.ID `json:"playmode"`

	ProfileColor *string `json:"profile_colour,omitempty"`
	ProfileHue   *int    `json:"profile_hue,omitempty"`
	CoverURL     string  `json:"cover_url,omitempty"`
	PageRaw      string  `json:"-"`
	PageHTML     string  `json:"-"`

	PreviousUsernames []string `json:"previous_usernames"`

	SilencedUntil *time.Time `json:"-"`
	DonorUntil    *time.Time `json:"-"`

	TeamID *int64 `json:"-"`
}

// Restricted reports whether moderation has restricted the account.
func (user *User) Restricted() bool {
	return user.Privileges.Has(PrivilegeRestricted)
}

// Silenced reports whether the user may not speak at the given time.
func (user *User) Silenced(now time.Time) bool {
	return user.SilencedUntil != nil && user.SilencedUntil.After(now)
}

// IsBot reports whether this is an automated account.
func (user *User) IsBot() bool {
	return user.Privileges.Has(PrivilegeBot)
}

// UpdateUserRequest contains the columns optionally updatable by
// Users.Update. Double pointers distinguish "set to NULL" from "no change".
type UpdateUserRequest struct {
	Username          *string
	Email             *string
	PasswordDigest    []byte
	Country           *string
	Privileges        *Privileges
	IsSupporter       *bool
	PlayMode          *rulesets.ID
	ProfileColor      **string
	ProfileHue        **int
	CoverURL          *string
	PageRaw           *string
	PageHTML          *string
	PreviousUsernames *[]string
	SilencedUntil     **time.Time
	DonorUntil        **time.Time
	TeamID            **int64
}

// key is a context value key type.
type key int

// userKey is the context key for the authenticated user.
const userKey key = 0

// WithUser creates a new context carrying the authenticated user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the authenticated user from the context.
func GetUser(ctx context.Context) (*User, error) {
	if user, ok := ctx.Value(userKey).(*User); ok {
		return user, nil
	}
	return nil, ErrUnauthorized.New("user is not in context")
}
