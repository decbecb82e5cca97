// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rankings

import (
	"encoding/base64"
	"encoding/json"
)

// Cursor is the opaque paging token handed to clients. It survives an
// encode/decode round trip unchanged.
type Cursor struct {
	Page int `json:"page"`
}

// Encode serializes the cursor into its wire form.
func (c Cursor) Encode() string {
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a wire cursor. An empty string is the first page.
func DecodeCursor(encoded string) (Cursor, error) {
	if encoded == "" {
		return Cursor{Page: 1}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, ErrValidation.New("malformed cursor")
	}
	var cursor Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return Cursor{}, ErrValidation.New("malformed cursor")
	}
	if cursor.Page < 1 {
		return Cursor{}, ErrValidation.New("cursor page out of range")
	}
	return cursor, nil
}
