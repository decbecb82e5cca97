// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package beatmaps

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"
	"time"

	"tempora.dev/tempora/arcade/rulesets"
)

// AnalyzerConfig bounds what a playable map may look like. Maps outside
// these bounds earn zero pp.
type AnalyzerConfig struct {
	MaxLength        time.Duration `help:"maps longer than this are suspicious" default:"24h"`
	MaxObjects       int           `help:"object count ceiling" default:"500000"`
	MaxObjectsTaiko  int           `help:"object count ceiling for taiko" default:"30000"`
	DensityPer1s     int           `help:"objects allowed inside any one second" default:"200"`
	DensityPer10s    int           `help:"objects allowed inside any ten seconds" default:"500"`
	MaxSliderRepeats int           `help:"slider repeat ceiling" default:"5000"`
}

// Suspicion is the analyzer verdict.
type Suspicion struct {
	Suspicious bool
	Reasons    []string
}

func (s *Suspicion) flag(reason string) {
	s.Suspicious = true
	s.Reasons = append(s.Reasons, reason)
}

// object is one parsed line of the [HitObjects] section.
type object struct {
	x, y    float64
	time    int64
	slider  bool
	repeats int
	anchors [][2]float64
}

const (
	playfieldMaxX = 512
	playfieldMaxY = 384
)

// Analyze inspects raw ".osu" content for the shapes difficulty
// calculators choke on. cs is the fallback circle size when the file's
// [Difficulty] section lacks one.
func Analyze(raw []byte, ruleset rulesets.ID, cs float64, config AnalyzerConfig) Suspicion {
	objects, parsedCS := parseOsuFile(raw)
	if parsedCS >= 0 {
		cs = parsedCS
	}

	var verdict Suspicion
	if len(objects) == 0 {
		return verdict
	}

	length := time.Duration(objects[len(objects)-1].time-objects[0].time) * time.Millisecond
	if length > config.MaxLength {
		verdict.flag("length")
	}

	maxObjects := config.MaxObjects
	if ruleset.Base() == rulesets.Taiko {
		maxObjects = config.MaxObjectsTaiko
	}
	if len(objects) > maxObjects {
		verdict.flag("object_count")
	}

	per1s, per10s := densityLimits(ruleset, cs, config)
	times := make([]int64, len(objects))
	for i, o := range objects {
		times[i] = o.time
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	if windowExceeded(times, per1s, 1000) {
		verdict.flag("density_1s")
	}
	if windowExceeded(times, per10s, 10000) {
		verdict.flag("density_10s")
	}

	for _, o := range objects {
		if !o.slider {
			continue
		}
		if o.repeats > config.MaxSliderRepeats {
			verdict.flag("slider_repeats")
			break
		}
	}
	for _, o := range objects {
		if !o.slider {
			continue
		}
		if outOfBounds(o.x, o.y) {
			verdict.flag("out_of_bounds")
			break
		}
		flagged := false
		for _, anchor := range o.anchors {
			if outOfBounds(anchor[0], anchor[1]) {
				verdict.flag("out_of_bounds")
				flagged = true
				break
			}
		}
		if flagged {
			break
		}
	}

	// simultaneous objects break most calculators; mania chords are
	// legitimate and skipped
	if ruleset.Base() != rulesets.Mania {
		for i := 1; i < len(objects); i++ {
			if objects[i].time == objects[i-1].time {
				verdict.flag("simultaneous_objects")
				break
			}
		}
	}

	return verdict
}

func densityLimits(ruleset rulesets.ID, cs float64, config AnalyzerConfig) (per1s, per10s int) {
	per1s, per10s = config.DensityPer1s, config.DensityPer10s
	switch ruleset.Base() {
	case rulesets.Taiko:
		per1s *= 2
		per10s *= 2
	case rulesets.Mania:
		mult := int(cs / 2)
		if mult < 1 {
			mult = 1
		}
		per1s *= mult
		per10s *= mult
	}
	return per1s, per10s
}

// windowExceeded reports whether any run of count objects fits inside
// windowMS milliseconds.
func windowExceeded(times []int64, count int, windowMS int64) bool {
	if count <= 0 || len(times) < count {
		return false
	}
	for i := 0; i+count-1 < len(times); i++ {
		if times[i+count-1]-times[i] < windowMS {
			return true
		}
	}
	return false
}

func outOfBounds(x, y float64) bool {
	return x < 0 || x > playfieldMaxX || y < 0 || y > playfieldMaxY
}

// parseOsuFile extracts hit objects and the circle size. A negative
// returned cs means the file did not specify one.
func parseOsuFile(raw []byte) (objects []object, cs float64) {
	cs = -1
	section := ""

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line
			continue
		}

		switch section {
		case "[Difficulty]":
			if name, value, ok := strings.Cut(line, ":"); ok {
				if strings.TrimSpace(name) == "CircleSize" {
					if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
						cs = parsed
					}
				}
			}
		case "[HitObjects]":
			if o, ok := parseHitObject(line); ok {
				objects = append(objects, o)
			}
		}
	}
	return objects, cs
}

func parseHitObject(line string) (object, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return object{}, false
	}
	x, errX := strconv.ParseFloat(fields[0], 64)
	y, errY := strconv.ParseFloat(fields[1], 64)
	t, errT := strconv.ParseInt(fields[2], 10, 64)
	typ, errKind := strconv.Atoi(fields[3])
	if errX != nil || errY != nil || errT != nil || errKind != nil {
		return object{}, false
	}

	o := object{x: x, y: y, time: t}
	if typ&2 != 0 && len(fields) >= 7 {
		o.slider = true
		o.anchors = parseAnchors(fields[5])
		if repeats, err := strconv.Atoi(fields[6]); err == nil {
			o.repeats = repeats
		}
	}
	return o, true
}

// parseAnchors reads the "B|x:y|x:y" slider curve field.
func parseAnchors(curve string) [][2]float64 {
	parts := strings.Split(curve, "|")
	if len(parts) < 2 {
		return nil
	}
	anchors := make([][2]float64, 0, len(parts)-1)
	for _, part := range parts[1:] {
		sx, sy, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		x, errX := strconv.ParseFloat(sx, 64)
		y, errY := strconv.ParseFloat(sy, 64)
		if errX != nil || errY != nil {
			continue
		}
		anchors = append(anchors, [2]float64{x, y})
	}
	return anchors
}
