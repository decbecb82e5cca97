// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth_test

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tempora.dev/tempora/arcade/auth"
)

func TestPasswordRoundTrip(t *testing.T) {
	digest, err := auth.HashPassword("hunter2abc")
	require.NoError(t, err)

	assert.True(t, auth.VerifyPassword(digest, "hunter2abc"))
	// second call exercises the verify cache
	assert.True(t, auth.VerifyPassword(digest, "hunter2abc"))
	assert.False(t, auth.VerifyPassword(digest, "hunter2abd"))
	assert.False(t, auth.VerifyPassword(nil, "hunter2abc"))
}

func TestPasswordLegacyShapes(t *testing.T) {
	// digests imported from older systems may hash the raw password
	plain, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword(plain, "correct horse"))

	// the native shape hashes the hex md5 of the password
	sum := md5.Sum([]byte("correct horse"))
	chained, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(sum[:])), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword(chained, "correct horse"))
}
