// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package auth issues bearer tokens, verifies them, enforces second
// factor gating and drives the login trust state machine.
package auth

import (
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

var (
	// Error is the default auth error class.
	Error = errs.Class("auth service")
	// ErrInvalidClient signals a bad client id/secret pair.
	ErrInvalidClient = errs.Class("invalid_client")
	// ErrInvalidGrant signals bad credentials or a dead token.
	ErrInvalidGrant = errs.Class("invalid_grant")
	// ErrInvalidRequest signals a malformed token request.
	ErrInvalidRequest = errs.Class("invalid_request")
	// ErrInvalidScope signals a scope outside the grant's allowance.
	ErrInvalidScope = errs.Class("invalid_scope")
	// ErrUnverifiedSession signals a session still waiting on its second factor.
	ErrUnverifiedSession = errs.Class("session unverified")
	// ErrRateLimited signals a per-IP or per-email limiter rejection.
	ErrRateLimited = errs.Class("rate limited")
)

// DB contains the authentication tables.
//
// architecture: Database
type DB interface {
	// Clients returns the registered OAuth clients table.
	Clients() Clients
	// Tokens returns the issued token table.
	Tokens() Tokens
	// Sessions returns the login session table.
	Sessions() Sessions
	// Devices returns the trusted device table.
	Devices() Devices
	// TOTP returns the second-factor credential table.
	TOTP() TOTPCredentials
	// LoginLog returns the login attempt log.
	LoginLog() LoginLog
	// APIKeys returns the personal API key table.
	APIKeys() APIKeys
}

// Config holds auth service configuration.
type Config struct {
	TokenSecret       string        `help:"HS256 secret for access tokens" default:"" devDefault:"insecure-dev-secret" testDefault:"insecure-test-secret"`
	TokenIssuer       string        `help:"issuer embedded in access tokens" default:"tempora"`
	TokenAudience     string        `help:"optional audience embedded in access tokens" default:""`
	AccessTokenTTL    time.Duration `help:"access token lifetime" default:"24h"`
	RefreshTokenTTL   time.Duration `help:"refresh token lifetime" default:"720h"`
	SessionTTL        time.Duration `help:"login session lifetime" default:"720h"`
	GameClientID      int64         `help:"client id the game client authenticates with" default:"5"`
	GameClientSecret  string        `help:"shared secret for the game client" default:"" devDefault:"insecure-game-secret" testDefault:"insecure-game-secret"`
	EmailVerification bool          `help:"ask for a mail code when the device is unknown" default:"true"`
	MultiDevice       bool          `help:"allow concurrent sessions from several devices" default:"true"`

	TOTPSupportVersion int `help:"minimum client api version able to answer totp prompts" default:"20220425"`

	MailCodeTTL        time.Duration `help:"lifetime of emailed verification codes" default:"10m"`
	PasswordResetTTL   time.Duration `help:"lifetime of password reset codes" default:"10m"`
	PasswordResetEvery time.Duration `help:"minimum delay between password reset mails" default:"1m"`

	LoginRateLimit  float64 `help:"per-ip token requests per second" default:"1"`
	LoginRateBurst  int     `help:"per-ip token request burst" default:"5"`
	ReissueInterval time.Duration `help:"minimum delay between verification mails" default:"30s"`
}
