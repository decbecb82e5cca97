// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package testrand implements random data generation for tests.
package testrand

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"

	"github.com/google/uuid"
)

// Intn returns, as an int, a non-negative pseudo-random number in [0,n).
// It panics if n <= 0.
func Intn(n int) int {
	return rand.Intn(n)
}

// Int63n returns, as an int64, a non-negative pseudo-random number in [0,n).
// It panics if n <= 0.
func Int63n(n int64) int64 {
	return rand.Int63n(n)
}

// ID returns a positive pseudo-random int64 usable as an entity id.
func ID() int64 {
	return 1 + rand.Int63n(1<<40)
}

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// BytesN generates size amount of random data.
func BytesN(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// HexN generates a random hex string of length size.
func HexN(size int) string {
	data := make([]byte, (size+1)/2)
	Read(data)
	return hex.EncodeToString(data)[:size]
}

// Reader creates a new random data reader.
func Reader() io.Reader {
	return rand.New(rand.NewSource(rand.Int63()))
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// String generates a random alphanumeric string of length n.
func String(n int) string {
	data := make([]byte, n)
	Read(data)
	for i, b := range data {
		data[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(data)
}

// Username generates a plausible player name.
func Username() string {
	return "player_" + String(8)
}

// Email generates a random email address.
func Email() string {
	return fmt.Sprintf("%s@%s.test", String(8), String(6))
}

// UUID creates a random uuid.
func UUID() uuid.UUID {
	var id uuid.UUID
	Read(id[:])
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}
