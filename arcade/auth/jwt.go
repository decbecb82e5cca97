// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSigner mints and parses the HS256 access tokens.
type TokenSigner struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenSigner returns a signer for the configured secret.
func NewTokenSigner(secret, issuer, audience string) (*TokenSigner, error) {
	if secret == "" {
		return nil, Error.New("token secret is not configured")
	}
	return &TokenSigner{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

// NewJTI returns a fresh 32 character hex token id.
func NewJTI() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AccessClaims is what the verifier extracts from a bearer token.
type AccessClaims struct {
	UserID    int64
	JTI       string
	ExpiresAt time.Time
}

// Sign mints an access token for the subject.
func (s *TokenSigner) Sign(userID int64, jti string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		ID:        jti,
		Issuer:    s.issuer,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return signed, nil
}

// Parse verifies the signature and standard claims of a bearer token.
func (s *TokenSigner) Parse(raw string) (*AccessClaims, error) {
	var claims jwt.RegisteredClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidGrant.Wrap(err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidGrant.New("malformed subject")
	}
	return &AccessClaims{
		UserID:    userID,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
