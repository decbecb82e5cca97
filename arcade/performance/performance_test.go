// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package performance_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"tempora.dev/tempora/arcade/performance"
	"tempora.dev/tempora/arcade/rulesets"
)

func TestFallbackPP(t *testing.T) {
	assert.Zero(t, performance.FallbackPP(0, 1_000_000))
	assert.Zero(t, performance.FallbackPP(5, 0))

	// a perfect standardised score earns exactly p_max
	stars := 5.0
	pMax := 1.4 * math.Pow(stars, 2.8)
	assert.InDelta(t, pMax, performance.FallbackPP(stars, 1_000_000), 1e-9)

	// below the break point the curve is linear
	low := performance.FallbackPP(stars, 100_000)
	assert.InDelta(t, pMax*0.1, low, 1e-9)

	// monotonic in score
	prev := 0.0
	for score := int64(0); score <= 1_000_000; score += 50_000 {
		pp := performance.FallbackPP(stars, score)
		assert.GreaterOrEqual(t, pp, prev)
		prev = pp
	}

	// harder maps earn more at the same score
	assert.Greater(t,
		performance.FallbackPP(7, 900_000),
		performance.FallbackPP(4, 900_000))
}

func TestClassicScore(t *testing.T) {
	// osu scales quadratically with object count
	assert.Equal(t, int64(100000), performance.ClassicScore(rulesets.Osu, 1_000_000, 0))

	full := performance.ClassicScore(rulesets.Osu, 1_000_000, 100)
	assert.Equal(t, int64(math.Round(100*100*32.57+100000)), full)

	half := performance.ClassicScore(rulesets.Osu, 500_000, 100)
	assert.Equal(t, int64(math.Round((100*100*32.57+100000)*0.5)), half)

	taiko := performance.ClassicScore(rulesets.Taiko, 1_000_000, 200)
	assert.Equal(t, int64(math.Round(200*1109+100000)), taiko)

	catch := performance.ClassicScore(rulesets.Catch, 1_000_000, 50)
	assert.Equal(t, int64(math.Round(50.0*50.0*21.62+100000)), catch)

	// mania is identity
	assert.Equal(t, int64(765432), performance.ClassicScore(rulesets.Mania, 765432, 999))

	// variants convert like their base
	relax := performance.ClassicScore(rulesets.OsuRelax, 500_000, 100)
	assert.Equal(t, half, relax)
}

func TestBonusPP(t *testing.T) {
	assert.Zero(t, performance.BonusPP(0))
	assert.InDelta(t, 416.6667*(1-math.Pow(0.9994, 1000)), performance.BonusPP(1000), 1e-9)
	// saturates toward the cap
	assert.Less(t, performance.BonusPP(100000), 416.6667)
	assert.Greater(t, performance.BonusPP(100000), 416.0)
}

func TestWeightedPP(t *testing.T) {
	assert.Zero(t, performance.WeightedPP(nil))

	pps := []float64{100, 100, 100}
	expected := 100.0 + 100*0.95 + 100*0.95*0.95
	assert.InDelta(t, expected, performance.WeightedPP(pps), 1e-9)
}

func TestWeightedAccuracy(t *testing.T) {
	assert.Zero(t, performance.WeightedAccuracy(nil))

	// uniform accuracy stays put under weighting
	accs := []float64{0.97, 0.97, 0.97}
	assert.InDelta(t, 0.97, performance.WeightedAccuracy(accs), 1e-9)

	// earlier (higher pp) entries dominate
	skewed := performance.WeightedAccuracy([]float64{1.0, 0.5})
	assert.Greater(t, skewed, 0.75)
}

func TestLevelFromScore(t *testing.T) {
	level, progress := performance.LevelFromScore(0)
	assert.Equal(t, 1, level)
	assert.Zero(t, progress)

	// level 2 starts at 30000
	level, _ = performance.LevelFromScore(29999)
	assert.Equal(t, 1, level)
	level, progress = performance.LevelFromScore(30000)
	assert.Equal(t, 2, level)
	assert.Zero(t, progress)

	// halfway through a bracket
	level, progress = performance.LevelFromScore(15000)
	assert.Equal(t, 1, level)
	assert.InDelta(t, 0.5, progress, 1e-9)

	// the curve turns linear above level 100
	level, _ = performance.LevelFromScore(26_931_190_829 + 100_000_000_000)
	assert.Equal(t, 101, level)

	// monotonic
	prevLevel := 0
	for _, score := range []int64{0, 1000, 1_000_000, 1_000_000_000, 30_000_000_000, 500_000_000_000} {
		level, _ := performance.LevelFromScore(score)
		assert.GreaterOrEqual(t, level, prevLevel)
		prevLevel = level
	}
}
