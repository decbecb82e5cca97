// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package users_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/arcade/users"
)

func TestValidateUsername(t *testing.T) {
	for _, name := range []string{"cookiezi", "Player_1", "a-b", "___"} {
		assert.NoError(t, users.ValidateUsername(name), name)
	}
	for _, name := range []string{
		"",
		"ab",                 // too short
		"0starts_with_digit", //
		"way_too_long_name_x",
		"has space",
		"admin",
		"BanchoBot",
	} {
		err := users.ValidateUsername(name)
		require.Error(t, err, name)
		assert.True(t, users.ErrValidation.Has(err), name)
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, users.ValidateEmail("player@example.com"))
	assert.Error(t, users.ValidateEmail("not-an-email"))
	assert.Error(t, users.ValidateEmail(""))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, users.ValidatePassword("longenough"))
	err := users.ValidatePassword("short")
	require.Error(t, err)
	assert.True(t, users.ErrValidation.Has(err))
}

func TestPrivileges(t *testing.T) {
	p := users.PrivilegeNormal | users.PrivilegeModerator
	assert.True(t, p.Has(users.PrivilegeModerator))
	assert.False(t, p.Has(users.PrivilegeAdmin))

	restricted := users.User{Privileges: users.PrivilegeRestricted}
	assert.True(t, restricted.Restricted())
}
