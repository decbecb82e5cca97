// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"context"
	"strings"
	"time"
)

// Token grant types.
const (
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
)

// Scopes recognized by the verifier.
const (
	ScopeAll         = "*"
	ScopePublic      = "public"
	ScopeIdentify    = "identify"
	ScopeFriendsRead = "friends.read"
	ScopeChatRead    = "chat.read"
	ScopeChatWrite   = "chat.write"
	ScopeDelegate    = "delegate"
)

var knownScopes = map[string]bool{
	ScopeAll:         true,
	ScopePublic:      true,
	ScopeIdentify:    true,
	ScopeFriendsRead: true,
	ScopeChatRead:    true,
	ScopeChatWrite:   true,
	ScopeDelegate:    true,
}

// Scopes is a space separated scope set.
type Scopes []string

// ParseScopes splits and validates a space separated scope string. An
// empty string means the full "*" scope.
func ParseScopes(raw string) (Scopes, error) {
	if strings.TrimSpace(raw) == "" {
		return Scopes{ScopeAll}, nil
	}
	fields := strings.Fields(raw)
	scopes := make(Scopes, 0, len(fields))
	for _, field := range fields {
		if !knownScopes[field] {
			return nil, ErrInvalidScope.New("%q", field)
		}
		scopes = append(scopes, field)
	}
	return scopes, nil
}

// Has reports whether the set allows the required scope. The "*" scope
// allows everything.
func (s Scopes) Has(required string) bool {
	for _, scope := range s {
		if scope == ScopeAll || scope == required {
			return true
		}
	}
	return false
}

// String joins the set back into wire form.
func (s Scopes) String() string { return strings.Join(s, " ") }

// Tokens is the issued token table. Rows pair an access token's jti with
// its rotating refresh string so either side can be revoked.
//
// architecture: Database
type Tokens interface {
	// Insert stores a freshly issued token pair.
	Insert(ctx context.Context, token *Token) error
	// GetByJTI returns the token row for an access token id.
	GetByJTI(ctx context.Context, jti string) (*Token, error)
	// GetByRefresh returns the token row for a refresh string.
	GetByRefresh(ctx context.Context, refresh string) (*Token, error)
	// Rotate replaces the jti, refresh string and expiries of a row.
	Rotate(ctx context.Context, id int64, jti, refresh string, accessExpiresAt, refreshExpiresAt time.Time) error
	// Revoke marks a single token row revoked.
	Revoke(ctx context.Context, id int64) error
	// RevokeAllForUser marks every live token of the user revoked,
	// optionally keeping one row alive.
	RevokeAllForUser(ctx context.Context, userID int64, keepID int64) error
	// DeleteExpiredBefore removes rows whose refresh expiry passed.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Token is a persisted access/refresh token pair.
type Token struct {
	ID               int64
	UserID           int64
	ClientID         int64
	JTI              string
	Refresh          string
	Scopes           Scopes
	SessionID        int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
	RevokedAt        *time.Time
}

// Live reports whether the access side of the pair is usable.
func (t *Token) Live(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.AccessExpiresAt)
}

// Refreshable reports whether the refresh side of the pair is usable.
func (t *Token) Refreshable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.RefreshExpiresAt)
}

// TokenResponse is the OAuth wire shape returned by the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
