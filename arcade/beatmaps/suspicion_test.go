// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package beatmaps_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/rulesets"
)

func osuFile(difficulty string, objects ...string) []byte {
	var b strings.Builder
	b.WriteString("osu file format v14\n\n[General]\nMode: 0\n\n[Difficulty]\n")
	b.WriteString(difficulty)
	b.WriteString("\n[HitObjects]\n")
	for _, o := range objects {
		b.WriteString(o)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func circles(n int, spacingMS int64) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("256,192,%d,1,0,0:0:0:0:", int64(i)*spacingMS))
	}
	return out
}

func analyze(t *testing.T, raw []byte, ruleset rulesets.ID) beatmaps.Suspicion {
	t.Helper()
	cfg := beatmaps.AnalyzerConfig{
		MaxLength:        24 * time.Hour,
		MaxObjects:       500000,
		MaxObjectsTaiko:  30000,
		DensityPer1s:     200,
		DensityPer10s:    500,
		MaxSliderRepeats: 5000,
	}
	return beatmaps.Analyze(raw, ruleset, 4, cfg)
}

func TestAnalyzeCleanMap(t *testing.T) {
	verdict := analyze(t, osuFile("CircleSize:4", circles(100, 500)...), rulesets.Osu)
	assert.False(t, verdict.Suspicious)
	assert.Empty(t, verdict.Reasons)
}

func TestAnalyzeLength(t *testing.T) {
	objects := []string{
		"256,192,0,1,0,0:0:0:0:",
		fmt.Sprintf("256,192,%d,1,0,0:0:0:0:", int64(25*time.Hour/time.Millisecond)),
	}
	verdict := analyze(t, osuFile("CircleSize:4", objects...), rulesets.Osu)
	assert.True(t, verdict.Suspicious)
	assert.Contains(t, verdict.Reasons, "length")
}

func TestAnalyzeDensity(t *testing.T) {
	// 250 objects packed into one second
	verdict := analyze(t, osuFile("CircleSize:4", circles(250, 2)...), rulesets.Osu)
	assert.True(t, verdict.Suspicious)
	assert.Contains(t, verdict.Reasons, "density_1s")

	// taiko doubles the allowance, 250 in a second is fine there
	verdict = analyze(t, osuFile("CircleSize:4", circles(250, 2)...), rulesets.Taiko)
	assert.NotContains(t, verdict.Reasons, "density_1s")

	// mania scales with key count: cs 8 means 4x the allowance
	verdict = analyze(t, osuFile("CircleSize:8", circles(250, 2)...), rulesets.Mania)
	assert.NotContains(t, verdict.Reasons, "density_1s")
}

func TestAnalyzeSliderRepeats(t *testing.T) {
	slider := "100,100,1000,2,0,B|200:200|300:100,6000,140"
	verdict := analyze(t, osuFile("CircleSize:4", slider), rulesets.Osu)
	assert.True(t, verdict.Suspicious)
	assert.Contains(t, verdict.Reasons, "slider_repeats")
}

func TestAnalyzeOutOfBounds(t *testing.T) {
	anchorOut := "100,100,1000,2,0,B|9000:200|300:100,1,140"
	verdict := analyze(t, osuFile("CircleSize:4", anchorOut), rulesets.Osu)
	assert.True(t, verdict.Suspicious)
	assert.Contains(t, verdict.Reasons, "out_of_bounds")

	originOut := "-50,100,1000,2,0,B|200:200|300:100,1,140"
	verdict = analyze(t, osuFile("CircleSize:4", originOut), rulesets.Osu)
	assert.True(t, verdict.Suspicious)
	assert.Contains(t, verdict.Reasons, "out_of_bounds")

	// circles off the playfield are clamped by the client, only sliders count
	circleOut := "-50,100,1000,1,0,0:0:0:0:"
	verdict = analyze(t, osuFile("CircleSize:4", circleOut), rulesets.Osu)
	assert.False(t, verdict.Suspicious)
}

func TestAnalyzeSimultaneous(t *testing.T) {
	objects := []string{
		"256,192,1000,1,0,0:0:0:0:",
		"100,100,1000,1,0,0:0:0:0:",
	}
	verdict := analyze(t, osuFile("CircleSize:4", objects...), rulesets.Osu)
	assert.True(t, verdict.Suspicious)
	assert.Contains(t, verdict.Reasons, "simultaneous_objects")

	// chords are normal in mania
	verdict = analyze(t, osuFile("CircleSize:4", objects...), rulesets.Mania)
	assert.False(t, verdict.Suspicious)
}

func TestAnalyzeObjectCount(t *testing.T) {
	// taiko's ceiling is far lower, exercise that one
	verdict := analyze(t, osuFile("CircleSize:4", circles(30001, 1000)...), rulesets.Taiko)
	assert.True(t, verdict.Suspicious)
	assert.Contains(t, verdict.Reasons, "object_count")

	verdict = analyze(t, osuFile("CircleSize:4", circles(30001, 1000)...), rulesets.Osu)
	assert.NotContains(t, verdict.Reasons, "object_count")
}

func TestAnalyzeEmptyFile(t *testing.T) {
	verdict := analyze(t, []byte("osu file format v14\n"), rulesets.Osu)
	assert.False(t, verdict.Suspicious)
}
