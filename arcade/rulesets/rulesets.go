// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package rulesets defines the game modes, their variants, mods and
// judgement vocabulary shared across the whole backend.
package rulesets

import (
	"github.com/zeebo/errs"
)

// Error is the default rulesets error class.
var Error = errs.Class("rulesets")

// ID identifies a ruleset. Variants (relax, autopilot) get their own id for
// storage and statistics, but share the base id on the client-facing wire.
type ID int

const (
	// Osu is the standard circle-clicking mode.
	Osu ID = 0
	// Taiko is the drumming mode.
	Taiko ID = 1
	// Catch is the fruit-catching mode.
	Catch ID = 2
	// Mania is the vertical-scrolling key mode.
	Mania ID = 3

	// OsuRelax is the osu relax variant.
	OsuRelax ID = 4
	// OsuAutopilot is the osu autopilot variant.
	OsuAutopilot ID = 5
	// TaikoRelax is the taiko relax variant.
	TaikoRelax ID = 6
	// CatchRelax is the catch relax variant.
	CatchRelax ID = 7
)

var names = map[ID]string{
	Osu:          "osu",
	Taiko:        "taiko",
	Catch:        "fruits",
	Mania:        "mania",
	OsuRelax:     "osurx",
	OsuAutopilot: "osuap",
	TaikoRelax:   "taikorx",
	CatchRelax:   "fruitsrx",
}

var byName = func() map[string]ID {
	m := make(map[string]ID, len(names))
	for id, name := range names {
		m[name] = id
	}
	// accepted aliases
	m["catch"] = Catch
	m["catchrx"] = CatchRelax
	return m
}()

// All lists every ruleset the server knows about, bases first.
func All() []ID {
	return []ID{Osu, Taiko, Catch, Mania, OsuRelax, OsuAutopilot, TaikoRelax, CatchRelax}
}

// Bases lists the four base modes.
func Bases() []ID {
	return []ID{Osu, Taiko, Catch, Mania}
}

// Parse resolves a ruleset by its short name.
func Parse(name string) (ID, error) {
	if id, ok := byName[name]; ok {
		return id, nil
	}
	return 0, Error.New("unknown ruleset %q", name)
}

// String returns the canonical short name.
func (id ID) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether the id names a known ruleset.
func (id ID) Valid() bool {
	_, ok := names[id]
	return ok
}

// IsVariant reports whether the ruleset is a mod-selected variant of a base
// mode rather than a base mode itself.
func (id ID) IsVariant() bool {
	return id > Mania && id.Valid()
}

// Base maps a variant to its base mode; base modes map to themselves.
func (id ID) Base() ID {
	switch id {
	case OsuRelax, OsuAutopilot:
		return Osu
	case TaikoRelax:
		return Taiko
	case CatchRelax:
		return Catch
	default:
		return id
	}
}

// WithVariant resolves the effective ruleset for a base mode played with the
// given mods: RX and AP acronyms select the matching variant when one
// exists for the base mode.
func WithVariant(base ID, mods Mods) ID {
	if base.IsVariant() {
		return base
	}
	switch {
	case mods.Has("RX"):
		switch base {
		case Osu:
			return OsuRelax
		case Taiko:
			return TaikoRelax
		case Catch:
			return CatchRelax
		}
	case mods.Has("AP"):
		if base == Osu {
			return OsuAutopilot
		}
	}
	return base
}
