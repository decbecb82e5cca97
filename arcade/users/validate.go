// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package users

import (
	"net/mail"
	"regexp"
	"strings"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 15
	passwordMinLength = 8
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z_-][A-Za-z0-9_-]*$`)

// banned usernames, lowercased
var bannedUsernames = map[string]bool{
	"admin":     true,
	"moderator": true,
	"banchobot": true,
	"system":    true,
	"peppy":     true,
}

// ValidateUsername checks registration username constraints: 3-15 chars of
// [A-Za-z0-9_-], not starting with a digit, not on the banned list.
func ValidateUsername(username string) error {
	if len(username) < usernameMinLength || len(username) > usernameMaxLength {
		return ErrValidation.New("username must be between %d and %d characters", usernameMinLength, usernameMaxLength)
	}
	if !usernamePattern.MatchString(username) {
		return ErrValidation.New("username may only contain letters, numbers, underscores and hyphens, and cannot start with a digit")
	}
	if bannedUsernames[strings.ToLower(username)] {
		return ErrValidation.New("username is not allowed")
	}
	return nil
}

// ValidateEmail checks the address format only.
func ValidateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrValidation.New("invalid email address")
	}
	return nil
}

// ValidatePassword checks the new-password constraints.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLength {
		return ErrValidation.New("password must be at least %d characters", passwordMinLength)
	}
	return nil
}
