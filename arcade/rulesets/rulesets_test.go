// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rulesets_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/arcade/rulesets"
)

func TestParseAndString(t *testing.T) {
	for _, id := range rulesets.All() {
		parsed, err := rulesets.Parse(id.String())
		require.NoError(t, err, id.String())
		assert.Equal(t, id, parsed)
	}

	parsed, err := rulesets.Parse("catch")
	require.NoError(t, err)
	assert.Equal(t, rulesets.Catch, parsed)

	_, err = rulesets.Parse("solitaire")
	require.Error(t, err)
	assert.True(t, rulesets.Error.Has(err))
}

func TestBaseAndVariant(t *testing.T) {
	assert.Equal(t, rulesets.Osu, rulesets.OsuRelax.Base())
	assert.Equal(t, rulesets.Osu, rulesets.OsuAutopilot.Base())
	assert.Equal(t, rulesets.Taiko, rulesets.TaikoRelax.Base())
	assert.Equal(t, rulesets.Mania, rulesets.Mania.Base())

	assert.True(t, rulesets.CatchRelax.IsVariant())
	assert.False(t, rulesets.Catch.IsVariant())
}

func TestWithVariant(t *testing.T) {
	rx := rulesets.Mods{{Acronym: "RX"}}
	ap := rulesets.Mods{{Acronym: "AP"}}
	none := rulesets.Mods{{Acronym: "HD"}, {Acronym: "DT"}}

	assert.Equal(t, rulesets.OsuRelax, rulesets.WithVariant(rulesets.Osu, rx))
	assert.Equal(t, rulesets.OsuAutopilot, rulesets.WithVariant(rulesets.Osu, ap))
	assert.Equal(t, rulesets.TaikoRelax, rulesets.WithVariant(rulesets.Taiko, rx))
	assert.Equal(t, rulesets.Osu, rulesets.WithVariant(rulesets.Osu, none))
	// mania has no variants
	assert.Equal(t, rulesets.Mania, rulesets.WithVariant(rulesets.Mania, rx))
}

func TestModsEqualIgnoresOrderAndSettings(t *testing.T) {
	a := rulesets.Mods{{Acronym: "DT"}, {Acronym: "HD", Settings: json.RawMessage(`{"x":1}`)}}
	b := rulesets.Mods{{Acronym: "HD"}, {Acronym: "DT"}}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), rulesets.Mods{{Acronym: "HR"}}.Fingerprint())
}

func TestModsRanked(t *testing.T) {
	assert.True(t, rulesets.Mods{{Acronym: "HD"}, {Acronym: "HR"}}.Ranked())
	assert.False(t, rulesets.Mods{{Acronym: "AT"}}.Ranked())
}

func TestModsEncodeRoundTrip(t *testing.T) {
	mods := rulesets.Mods{{Acronym: "DT", Settings: json.RawMessage(`{"speed_change":1.5}`)}}
	data, err := mods.Encode()
	require.NoError(t, err)

	decoded, err := rulesets.DecodeMods(data)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "DT", decoded[0].Acronym)
	assert.JSONEq(t, `{"speed_change":1.5}`, string(decoded[0].Settings))

	empty, err := rulesets.DecodeMods(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStatistics(t *testing.T) {
	stats := rulesets.Statistics{
		rulesets.HitGreat:         100,
		rulesets.HitOk:            20,
		rulesets.HitMiss:          3,
		rulesets.HitLargeTickHit:  40,
		rulesets.HitIgnoreHit:     7,
		rulesets.HitSliderTailHit: 12,
	}

	assert.Equal(t, 123, stats.BasicTotal())
	assert.Equal(t, 175, stats.TotalHits())
}

func TestGrades(t *testing.T) {
	assert.True(t, rulesets.GradeXH.Passing())
	assert.False(t, rulesets.GradeF.Passing())
	assert.False(t, rulesets.Grade("Z").Valid())
}
