// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Clients is the registered OAuth client table.
//
// architecture: Database
type Clients interface {
	// Get returns the client by id.
	Get(ctx context.Context, id int64) (*Client, error)
	// Insert adds a client.
	Insert(ctx context.Context, client *Client) error
	// ListByOwner returns clients registered by a user.
	ListByOwner(ctx context.Context, ownerID int64) ([]*Client, error)
	// Delete removes a client.
	Delete(ctx context.Context, id int64) error
}

// Client is a registered OAuth application.
type Client struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"-"`
	Name        string    `json:"name"`
	Secret      string    `json:"-"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// SecretMatches compares the presented secret in constant time.
func (c *Client) SecretMatches(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}

// CreateClient registers an OAuth application for a user. The secret is
// returned separately and shown exactly once.
func (s *Service) CreateClient(ctx context.Context, ownerID int64, name, redirectURI string) (client *Client, secret string, err error) {
	defer mon.Task()(&ctx)(&err)

	if name == "" {
		return nil, "", ErrInvalidRequest.New("application needs a name")
	}
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", Error.Wrap(err)
	}
	secret = hex.EncodeToString(raw)

	client = &Client{
		OwnerID:     ownerID,
		Name:        name,
		Secret:      secret,
		RedirectURI: redirectURI,
		CreatedAt:   s.nowFn().UTC(),
	}
	if err := s.db.Clients().Insert(ctx, client); err != nil {
		return nil, "", Error.Wrap(err)
	}
	return client, secret, nil
}

// ListClients returns the OAuth applications a user registered.
func (s *Service) ListClients(ctx context.Context, ownerID int64) (clients []*Client, err error) {
	defer mon.Task()(&ctx)(&err)

	clients, err = s.db.Clients().ListByOwner(ctx, ownerID)
	return clients, Error.Wrap(err)
}

// DeleteClient removes an OAuth application owned by the user.
func (s *Service) DeleteClient(ctx context.Context, ownerID, clientID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	client, err := s.db.Clients().Get(ctx, clientID)
	if err != nil {
		return ErrInvalidRequest.New("unknown application %d", clientID)
	}
	if client.OwnerID != ownerID {
		return ErrInvalidRequest.New("application %d is not yours", clientID)
	}
	return Error.Wrap(s.db.Clients().Delete(ctx, clientID))
}
