// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth_test

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/arcade/auth"
)

func TestTOTPWindow(t *testing.T) {
	secret, uri, err := auth.GenerateTOTPKey("tempora", "player@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Contains(t, uri, "otpauth://totp/")

	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.True(t, auth.ValidateTOTP(code, secret, now))

	// one period of drift either way still validates
	assert.True(t, auth.ValidateTOTP(code, secret, now.Add(30*time.Second)))
	assert.True(t, auth.ValidateTOTP(code, secret, now.Add(-30*time.Second)))
	// two periods out does not
	assert.False(t, auth.ValidateTOTP(code, secret, now.Add(90*time.Second)))

	assert.False(t, auth.ValidateTOTP("000000", secret, now))
	assert.False(t, auth.ValidateTOTP("garbage", secret, now))
}

func TestBackupCodes(t *testing.T) {
	plain, hashed, err := auth.GenerateBackupCodes()
	require.NoError(t, err)
	require.Len(t, plain, 10)
	require.Len(t, hashed, 10)

	for _, code := range plain {
		assert.Len(t, code, 10)
	}

	match := auth.MatchBackupCode(plain[3], hashed)
	assert.Equal(t, hashed[3], match)
	assert.Empty(t, auth.MatchBackupCode("aaaaaaaaaa", hashed))
}

func TestDeviceFingerprint(t *testing.T) {
	a := auth.DeviceFingerprint("10.0.0.1", "osu!lazer")
	b := auth.DeviceFingerprint("10.0.0.1", "osu!lazer")
	c := auth.DeviceFingerprint("10.0.0.2", "osu!lazer")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 40)
}
