// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// VerificationMethod states which second factor a login session waits on.
type VerificationMethod string

// Verification methods.
const (
	VerifyNone VerificationMethod = ""
	VerifyTOTP VerificationMethod = "totp"
	VerifyMail VerificationMethod = "mail"
)

// Sessions is the login session table.
//
// architecture: Database
type Sessions interface {
	// Insert stores a new session.
	Insert(ctx context.Context, session *Session) error
	// Get returns the session by id.
	Get(ctx context.Context, id int64) (*Session, error)
	// MarkVerified clears the pending method and records the instant.
	MarkVerified(ctx context.Context, id int64) error
	// SetMethod switches the pending verification method.
	SetMethod(ctx context.Context, id int64, method VerificationMethod) error
	// RevokeAllForUser ends every session of the user.
	RevokeAllForUser(ctx context.Context, userID int64) error
	// DeleteExpiredBefore removes sessions past their expiry.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Session is a login session created at token issuance. It stays
// unverified until the second factor completes.
type Session struct {
	ID         int64
	UserID     int64
	IP         string
	UserAgent  string
	Method     VerificationMethod
	Verified   bool
	VerifiedAt *time.Time
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Devices is the trusted device table. A verified login records its
// fingerprint so later logins from the same device skip the mail code.
//
// architecture: Database
type Devices interface {
	// Upsert stores or refreshes a trusted device.
	Upsert(ctx context.Context, device *Device) error
	// Trusted reports whether the fingerprint is known for the user.
	Trusted(ctx context.Context, userID int64, fingerprint string) (bool, error)
	// DeleteAllForUser forgets every device of the user.
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// Device is a remembered client fingerprint.
type Device struct {
	UserID      int64
	Fingerprint string
	IP          string
	UserAgent   string
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// DeviceFingerprint derives the trust key from the connection facts.
func DeviceFingerprint(ip, userAgent string) string {
	sum := sha1.Sum([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// LoginLog records every authentication attempt.
//
// architecture: Database
type LoginLog interface {
	// Insert appends an attempt.
	Insert(ctx context.Context, attempt *LoginAttempt) error
	// Recent returns the newest attempts for a user.
	Recent(ctx context.Context, userID int64, limit int) ([]*LoginAttempt, error)
}

// LoginAttempt is a single row of the login log.
type LoginAttempt struct {
	ID        int64
	UserID    int64
	IP        string
	UserAgent string
	Success   bool
	Notes     string
	CreatedAt time.Time
}
