// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rulesets

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Mod is a gameplay modifier: an acronym plus optional client settings.
// Settings are kept opaque; the server never interprets them beyond
// equality and fingerprinting.
type Mod struct {
	Acronym  string          `json:"acronym"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// Mods is an ordered set of modifiers as submitted by the client.
type Mods []Mod

// acronyms that exclude a score from ranking
var unrankedAcronyms = map[string]bool{
	"AT": true, // autoplay
	"CN": true, // cinema
	"DA": true, // difficulty adjust
	"TP": true, // target practice
}

// Has reports whether the acronym is present.
func (mods Mods) Has(acronym string) bool {
	for _, mod := range mods {
		if mod.Acronym == acronym {
			return true
		}
	}
	return false
}

// Acronyms returns the acronyms in submission order.
func (mods Mods) Acronyms() []string {
	out := make([]string, 0, len(mods))
	for _, mod := range mods {
		out = append(out, mod.Acronym)
	}
	return out
}

// SortedAcronyms returns the acronyms sorted lexicographically; used for
// mod-filter equality.
func (mods Mods) SortedAcronyms() []string {
	out := mods.Acronyms()
	sort.Strings(out)
	return out
}

// Ranked reports whether every mod in the set permits ranking.
func (mods Mods) Ranked() bool {
	for _, mod := range mods {
		if unrankedAcronyms[mod.Acronym] {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable md5 hex digest over the sorted acronyms,
// used in cache keys.
func (mods Mods) Fingerprint() string {
	sum := md5.Sum([]byte(strings.Join(mods.SortedAcronyms(), ",")))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether both sets contain exactly the same acronyms,
// ignoring order and settings.
func (mods Mods) Equal(other Mods) bool {
	a, b := mods.SortedAcronyms(), other.SortedAcronyms()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Encode serializes the set for storage. An empty set encodes as "[]".
func (mods Mods) Encode() ([]byte, error) {
	if mods == nil {
		mods = Mods{}
	}
	data, err := json.Marshal(mods)
	return data, Error.Wrap(err)
}

// DecodeMods parses a stored mods column.
func DecodeMods(data []byte) (Mods, error) {
	if len(data) == 0 {
		return Mods{}, nil
	}
	var mods Mods
	if err := json.Unmarshal(data, &mods); err != nil {
		return nil, Error.Wrap(err)
	}
	return mods, nil
}
