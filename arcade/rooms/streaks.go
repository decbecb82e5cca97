// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rooms

import "time"

// AdvanceStreaks folds a completed challenge at the given instant into
// the stats. It returns false when the date already counted and nothing
// changed.
func AdvanceStreaks(stats *DailyChallengeStats, at time.Time) bool {
	day := at.UTC().Truncate(24 * time.Hour)
	last := stats.LastPlayedOn.UTC().Truncate(24 * time.Hour)

	if !stats.LastPlayedOn.IsZero() && day.Equal(last) {
		return false
	}

	if !stats.LastPlayedOn.IsZero() && day.Sub(last) == 24*time.Hour {
		stats.DailyStreakCurrent++
	} else {
		stats.DailyStreakCurrent = 1
	}
	if stats.DailyStreakCurrent > stats.DailyStreakBest {
		stats.DailyStreakBest = stats.DailyStreakCurrent
	}

	thisYear, thisWeek := day.ISOWeek()
	lastYear, lastWeek := last.ISOWeek()
	switch {
	case stats.LastPlayedOn.IsZero():
		stats.WeeklyStreakCurrent = 1
	case thisYear == lastYear && thisWeek == lastWeek:
		// same week already counted
	case consecutiveWeeks(last, day):
		stats.WeeklyStreakCurrent++
	default:
		stats.WeeklyStreakCurrent = 1
	}
	if stats.WeeklyStreakCurrent > stats.WeeklyStreakBest {
		stats.WeeklyStreakBest = stats.WeeklyStreakCurrent
	}

	stats.PlayCount++
	stats.LastPlayedOn = day
	return true
}

// consecutiveWeeks reports whether b falls in the ISO week right after
// a's.
func consecutiveWeeks(a, b time.Time) bool {
	// the week after a's always contains a+7d
	nextYear, nextWeek := a.AddDate(0, 0, 7).ISOWeek()
	year, week := b.ISOWeek()
	return year == nextYear && week == nextWeek
}
