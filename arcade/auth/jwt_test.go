// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/arcade/auth"
)

func TestTokenSignerRoundTrip(t *testing.T) {
	signer, err := auth.NewTokenSigner("test-secret", "tempora", "")
	require.NoError(t, err)

	jti := auth.NewJTI()
	assert.Len(t, jti, 32)

	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	raw, err := signer.Sign(42, jti, expires)
	require.NoError(t, err)

	claims, err := signer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, jti, claims.JTI)
	assert.WithinDuration(t, expires, claims.ExpiresAt, time.Second)
}

func TestTokenSignerRejects(t *testing.T) {
	signer, err := auth.NewTokenSigner("test-secret", "tempora", "")
	require.NoError(t, err)

	expired, err := signer.Sign(42, auth.NewJTI(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = signer.Parse(expired)
	assert.Error(t, err)

	other, err := auth.NewTokenSigner("other-secret", "tempora", "")
	require.NoError(t, err)
	forged, err := other.Sign(42, auth.NewJTI(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = signer.Parse(forged)
	assert.Error(t, err)

	wrongIssuer, err := auth.NewTokenSigner("test-secret", "someone-else", "")
	require.NoError(t, err)
	crossed, err := wrongIssuer.Sign(42, auth.NewJTI(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = signer.Parse(crossed)
	assert.Error(t, err)

	_, err = signer.Parse("not.a.token")
	assert.Error(t, err)

	_, err = auth.NewTokenSigner("", "tempora", "")
	assert.Error(t, err)
}

func TestScopes(t *testing.T) {
	scopes, err := auth.ParseScopes("")
	require.NoError(t, err)
	assert.True(t, scopes.Has(auth.ScopeChatWrite))

	scopes, err = auth.ParseScopes("public identify")
	require.NoError(t, err)
	assert.True(t, scopes.Has(auth.ScopePublic))
	assert.True(t, scopes.Has(auth.ScopeIdentify))
	assert.False(t, scopes.Has(auth.ScopeChatWrite))
	assert.Equal(t, "public identify", scopes.String())

	_, err = auth.ParseScopes("public nonsense")
	require.Error(t, err)
	assert.True(t, auth.ErrInvalidScope.Has(err))
}
