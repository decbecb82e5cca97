// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package performance computes pp and difficulty attributes, remotely
// when a calculator is configured and by closed-form fallback otherwise.
package performance

import (
	"context"
	"math"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"tempora.dev/tempora/arcade/rulesets"
)

var mon = monkit.Package()

// Error is the default performance error class.
var Error = errs.Class("performance")

// Request describes one play for the calculator.
type Request struct {
	BeatmapID  int64               `json:"beatmap_id"`
	Ruleset    rulesets.ID         `json:"ruleset_id"`
	Mods       rulesets.Mods       `json:"mods"`
	MaxCombo   int                 `json:"max_combo"`
	Accuracy   float64             `json:"accuracy"`
	TotalScore int64               `json:"total_score"`
	Statistics rulesets.Statistics `json:"statistics"`
	Passed     bool                `json:"passed"`
}

// Result is the calculator's answer for one play.
type Result struct {
	PP         float64 `json:"pp"`
	StarRating float64 `json:"star_rating"`
}

// Attributes are per-(beatmap, ruleset, mods) difficulty numbers.
type Attributes struct {
	StarRating float64 `json:"star_rating"`
	MaxCombo   int     `json:"max_combo"`
	AimRating  float64 `json:"aim_rating,omitempty"`
	SpeedRatng float64 `json:"speed_rating,omitempty"`
}

// Calculator computes difficulty and performance for plays.
type Calculator interface {
	// Calculate returns pp and the star rating used.
	Calculate(ctx context.Context, req *Request) (*Result, error)
	// Attributes returns difficulty attributes for a map under mods.
	Attributes(ctx context.Context, beatmapID int64, ruleset rulesets.ID, mods rulesets.Mods) (*Attributes, error)
	// Supports reports whether the ruleset can be calculated.
	Supports(ruleset rulesets.ID) bool
}

// FallbackPP approximates pp from the star rating and the standardised
// total score when no calculator supports the ruleset. The curve is
// linear up to a break point that tightens with difficulty, then grows
// exponentially toward p_max = 1.4·s^2.8.
func FallbackPP(stars float64, totalScore int64) float64 {
	if stars <= 0 || totalScore <= 0 {
		return 0
	}
	const k = 4.0
	x := float64(totalScore) / 1_000_000
	if x > 1 {
		x = 1
	}
	pMax := 1.4 * math.Pow(stars, 2.8)

	clamped := stars
	if clamped < 1 {
		clamped = 1
	} else if clamped > 8 {
		clamped = 8
	}
	b := 0.95 - 0.33*(clamped-1)/7

	if x < b {
		return pMax * x
	}
	u := (x - b) / (1 - b)
	return pMax * (b + (1-b)*(math.Exp(k*u)-1)/(math.Exp(k)-1))
}

// ClassicScore converts a standardised total score into the classic
// display convention for the ruleset. basicObjects is the count of
// basic judgement objects in the play.
func ClassicScore(ruleset rulesets.ID, standardised int64, basicObjects int) int64 {
	const maxScore = 1_000_000
	s := float64(standardised)
	n := float64(basicObjects)

	switch ruleset.Base() {
	case rulesets.Osu:
		return int64(math.Round((n*n*32.57 + 100000) * s / maxScore))
	case rulesets.Taiko:
		return int64(math.Round((n*1109 + 100000) * s / maxScore))
	case rulesets.Catch:
		return int64(math.Round(math.Pow(s/maxScore*n, 2)*21.62 + s/10))
	default:
		return standardised
	}
}

// BonusPP is the play count bonus added to the weighted pp total.
func BonusPP(rankedPlays int) float64 {
	return 416.6667 * (1 - math.Pow(0.9994, float64(rankedPlays)))
}

// WeightedPP folds a pp list sorted descending into the profile total.
func WeightedPP(sorted []float64) float64 {
	total := 0.0
	weight := 1.0
	for _, pp := range sorted {
		total += pp * weight
		weight *= 0.95
	}
	return total
}

// WeightedAccuracy folds an accuracy list ordered by descending pp into
// the profile accuracy.
func WeightedAccuracy(accuracies []float64) float64 {
	if len(accuracies) == 0 {
		return 0
	}
	sum := 0.0
	norm := 0.0
	weight := 1.0
	for _, acc := range accuracies {
		sum += acc * weight
		norm += weight
		weight *= 0.95
	}
	return sum / norm
}
