// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package rulesets

// HitResult is a single judgement outcome.
type HitResult string

// The judgement vocabulary, mirroring the client's serialized names.
const (
	HitMiss    HitResult = "miss"
	HitMeh     HitResult = "meh"
	HitOk      HitResult = "ok"
	HitGood    HitResult = "good"
	HitGreat   HitResult = "great"
	HitPerfect HitResult = "perfect"

	HitSmallTickMiss HitResult = "small_tick_miss"
	HitSmallTickHit  HitResult = "small_tick_hit"
	HitLargeTickMiss HitResult = "large_tick_miss"
	HitLargeTickHit  HitResult = "large_tick_hit"
	HitSmallBonus    HitResult = "small_bonus"
	HitLargeBonus    HitResult = "large_bonus"
	HitIgnoreMiss    HitResult = "ignore_miss"
	HitIgnoreHit     HitResult = "ignore_hit"
	HitComboBreak    HitResult = "combo_break"
	HitSliderTailHit HitResult = "slider_tail_hit"
)

// IsBasic reports whether the result is a basic judgement: one that every
// primary hit object produces exactly once.
func (h HitResult) IsBasic() bool {
	switch h {
	case HitMiss, HitMeh, HitOk, HitGood, HitGreat, HitPerfect:
		return true
	}
	return false
}

// Statistics maps judgements to counts, as submitted by the client.
type Statistics map[HitResult]int

// BasicTotal counts the basic judgement objects; the N used by display
// score conversion.
func (s Statistics) BasicTotal() int {
	total := 0
	for result, count := range s {
		if result.IsBasic() {
			total += count
		}
	}
	return total
}

// TotalHits counts every judged object, excluding bookkeeping results.
func (s Statistics) TotalHits() int {
	total := 0
	for result, count := range s {
		switch result {
		case HitComboBreak, HitIgnoreMiss, HitIgnoreHit:
			continue
		}
		total += count
	}
	return total
}

// Grade is the letter awarded to a play.
type Grade string

// Grade letters; XH and X are the silver/gold SS, failed plays carry F.
const (
	GradeXH Grade = "XH"
	GradeX  Grade = "X"
	GradeSH Grade = "SH"
	GradeS  Grade = "S"
	GradeA  Grade = "A"
	GradeB  Grade = "B"
	GradeC  Grade = "C"
	GradeD  Grade = "D"
	GradeF  Grade = "F"
)

// Valid reports whether the grade is part of the vocabulary.
func (g Grade) Valid() bool {
	switch g {
	case GradeXH, GradeX, GradeSH, GradeS, GradeA, GradeB, GradeC, GradeD, GradeF:
		return true
	}
	return false
}

// Passing reports whether the grade denotes a cleared play.
func (g Grade) Passing() bool {
	return g.Valid() && g != GradeF
}
