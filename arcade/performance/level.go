// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package performance

import "math"

// maxLevel caps the bracketed threshold table.
const maxLevel = 200

// levelThresholds[n] is the cumulative ranked score required to hold
// level n. Built once at startup.
var levelThresholds = buildLevelTable()

func buildLevelTable() []int64 {
	table := make([]int64, maxLevel+2)
	for n := 1; n <= maxLevel+1; n++ {
		table[n] = requiredScoreForLevel(n)
	}
	return table
}

// requiredScoreForLevel follows the classic cubic curve up to level 100
// and turns linear above it.
func requiredScoreForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level <= 100 {
		l := float64(level)
		return int64(math.Floor(5000.0/3.0*(4*l*l*l-3*l*l-l) + 1.25*math.Pow(1.8, l-60)))
	}
	return 26_931_190_829 + 100_000_000_000*int64(level-100)
}

// LevelFromScore maps cumulative ranked score to the integer level and
// the fractional progress toward the next one.
func LevelFromScore(score int64) (level int, progress float64) {
	if score <= 0 {
		return 1, 0
	}

	lo, hi := 1, maxLevel
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if levelThresholds[mid] <= score {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	level = lo
	if level >= maxLevel {
		return maxLevel, 0
	}

	span := levelThresholds[level+1] - levelThresholds[level]
	if span <= 0 {
		return level, 0
	}
	progress = float64(score-levelThresholds[level]) / float64(span)
	return level, progress
}
