// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package auth

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// Password digests are bcrypt over the hex md5 of the plaintext, the
// shape stable clients already send for legacy endpoints. Digests from
// older imports may be plain bcrypt, so verification tries both.

// HashPassword produces a storable digest.
func HashPassword(password string) ([]byte, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(hexMD5(password)), bcrypt.DefaultCost)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return digest, nil
}

// verifyCache remembers successful digest/password pairs so hot paths
// skip the bcrypt work. Keys are sha256 sums, never the inputs.
type verifyCache struct {
	entries sync.Map
	size    atomic.Int64
}

const verifyCacheLimit = 4096

func (c *verifyCache) key(digest []byte, password string) string {
	sum := sha256.Sum256(append(append([]byte{}, digest...), password...))
	return string(sum[:])
}

func (c *verifyCache) hit(digest []byte, password string) bool {
	_, ok := c.entries.Load(c.key(digest, password))
	return ok
}

func (c *verifyCache) remember(digest []byte, password string) {
	if c.size.Load() >= verifyCacheLimit {
		c.entries.Range(func(k, _ any) bool {
			c.entries.Delete(k)
			return true
		})
		c.size.Store(0)
	}
	if _, loaded := c.entries.LoadOrStore(c.key(digest, password), struct{}{}); !loaded {
		c.size.Add(1)
	}
}

var passwordCache verifyCache

// VerifyPassword checks the plaintext against a stored digest.
func VerifyPassword(digest []byte, password string) bool {
	if len(digest) == 0 {
		return false
	}
	if passwordCache.hit(digest, password) {
		return true
	}
	ok := bcrypt.CompareHashAndPassword(digest, []byte(hexMD5(password))) == nil ||
		bcrypt.CompareHashAndPassword(digest, []byte(password)) == nil
	if ok {
		passwordCache.remember(digest, password)
	}
	return ok
}

func hexMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
