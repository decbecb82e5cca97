// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/zeebo/errs"
	"golang.org/x/crypto/bcrypt"
)

const (
	totpPeriod     = 30
	totpSkew       = 1
	backupCodeLen  = 10
	backupCodeNum  = 10
	backupAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// TOTPCredentials is the second-factor credential table.
//
// architecture: Database
type TOTPCredentials interface {
	// Get returns the credential for a user, or ErrNoCredential.
	Get(ctx context.Context, userID int64) (*TOTPCredential, error)
	// Insert stores a freshly enrolled credential.
	Insert(ctx context.Context, cred *TOTPCredential) error
	// RemoveBackupCode deletes a consumed backup code hash.
	RemoveBackupCode(ctx context.Context, userID int64, hash string) error
	// Delete removes the credential entirely.
	Delete(ctx context.Context, userID int64) error
}

// ErrNoCredential is returned when a user has no TOTP enrolled.
var ErrNoCredential = errs.Class("no totp credential")

// TOTPCredential holds a user's enrolled TOTP secret and the bcrypt
// hashes of their remaining backup codes.
type TOTPCredential struct {
	UserID      int64
	Secret      string
	BackupCodes []string
	CreatedAt   time.Time
}

// GenerateTOTPKey creates a fresh secret bound to the account.
func GenerateTOTPKey(issuer, email string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", Error.Wrap(err)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP checks a six digit code against the secret, accepting one
// period of clock drift either way.
func ValidateTOTP(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateBackupCodes returns the plaintext codes to show once and their
// bcrypt hashes to store.
func GenerateBackupCodes() (plain, hashed []string, err error) {
	plain = make([]string, 0, backupCodeNum)
	hashed = make([]string, 0, backupCodeNum)
	for i := 0; i < backupCodeNum; i++ {
		code, err := randomString(backupCodeLen, backupAlphabet)
		if err != nil {
			return nil, nil, Error.Wrap(err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, Error.Wrap(err)
		}
		plain = append(plain, code)
		hashed = append(hashed, string(hash))
	}
	return plain, hashed, nil
}

// MatchBackupCode returns the stored hash the code matches, or "".
func MatchBackupCode(code string, hashes []string) string {
	for _, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			return hash
		}
	}
	return ""
}

func randomString(n int, alphabet string) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
