// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package beatmaps holds the local mirror of beatmap metadata, the
// favourite/rating side tables and the suspicious-map analyzer.
package beatmaps

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"tempora.dev/tempora/arcade/rulesets"
)

var mon = monkit.Package()

var (
	// Error is the default beatmaps error class.
	Error = errs.Class("beatmaps service")
	// ErrNotFound is returned when a beatmap is unknown locally and upstream.
	ErrNotFound = errs.Class("beatmap not found")
)

// Status is the ranked state of a beatmap or set.
type Status int

// Beatmap ranked statuses.
const (
	StatusGraveyard Status = -2
	StatusWIP       Status = -1
	StatusPending   Status = 0
	StatusRanked    Status = 1
	StatusApproved  Status = 2
	StatusQualified Status = 3
	StatusLoved     Status = 4
)

// String returns the api name of the status.
func (s Status) String() string {
	switch s {
	case StatusGraveyard:
		return "graveyard"
	case StatusWIP:
		return "wip"
	case StatusPending:
		return "pending"
	case StatusRanked:
		return "ranked"
	case StatusApproved:
		return "approved"
	case StatusQualified:
		return "qualified"
	case StatusLoved:
		return "loved"
	default:
		return "unknown"
	}
}

// GivesPP reports whether scores on maps of this status may earn pp.
func (s Status) GivesPP() bool {
	return s == StatusRanked || s == StatusApproved || s == StatusLoved
}

// DB contains the beatmap tables.
//
// architecture: Database
type DB interface {
	// Beatmaps returns the per-difficulty table.
	Beatmaps() Beatmaps
	// Beatmapsets returns the set table.
	Beatmapsets() Beatmapsets
	// Favourites returns the favourite side table.
	Favourites() Favourites
	// Ratings returns the rating side table.
	Ratings() Ratings
}

// Beatmaps is the per-difficulty table.
//
// architecture: Database
type Beatmaps interface {
	// Get returns the beatmap by id.
	Get(ctx context.Context, id int64) (*Beatmap, error)
	// GetByChecksum returns the beatmap with the md5 checksum.
	GetByChecksum(ctx context.Context, checksum string) (*Beatmap, error)
	// Upsert inserts or replaces the row.
	Upsert(ctx context.Context, beatmap *Beatmap) error
	// ListByBeatmapset returns the difficulties of a set.
	ListByBeatmapset(ctx context.Context, beatmapsetID int64) ([]*Beatmap, error)
	// IncrementPlaycount bumps play and optionally pass counters.
	IncrementPlaycount(ctx context.Context, id int64, passed bool) error
}

// Beatmapsets is the set table.
//
// architecture: Database
type Beatmapsets interface {
	// Get returns the set by id.
	Get(ctx context.Context, id int64) (*Beatmapset, error)
	// Upsert inserts or replaces the row.
	Upsert(ctx context.Context, set *Beatmapset) error
	// ListSyncedBefore returns ids of unranked sets not refreshed since
	// the cutoff, oldest first.
	ListSyncedBefore(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
	// SetFavouriteCount overwrites the denormalized counter.
	SetFavouriteCount(ctx context.Context, id int64, count int64) error
}

// Beatmap is one difficulty of a set.
type Beatmap struct {
	ID           int64       `json:"id"`
	BeatmapsetID int64       `json:"beatmapset_id"`
	Checksum     string      `json:"checksum"`
	Version      string      `json:"version"`
	Ruleset      rulesets.ID `json:"mode_int"`
	Status       Status      `json:"ranked"`

	TotalLength int     `json:"total_length"`
	HitLength   int     `json:"hit_length"`
	BPM         float64 `json:"bpm"`
	CS          float64 `json:"cs"`
	AR          float64 `json:"ar"`
	OD          float64 `json:"accuracy"`
	HP          float64 `json:"drain"`
	StarRating  float64 `json:"difficulty_rating"`
	MaxCombo    int     `json:"max_combo"`

	CountCircles  int `json:"count_circles"`
	CountSliders  int `json:"count_sliders"`
	CountSpinners int `json:"count_spinners"`

	Playcount int64 `json:"playcount"`
	Passcount int64 `json:"passcount"`

	LastUpdated time.Time `json:"last_updated"`
	SyncedAt    time.Time `json:"-"`
}

// Beatmapset groups difficulties sharing one song.
type Beatmapset struct {
	ID int64 `json:"id"`

	Title          string `json:"title"`
	TitleUnicode   string `json:"title_unicode"`
	Artist         string `json:"artist"`
	ArtistUnicode  string `json:"artist_unicode"`
	Creator        string `json:"creator"`
	CreatorID      int64  `json:"user_id"`
	Source         string `json:"source"`
	Tags           string `json:"tags"`
	Status         Status `json:"ranked"`
	Video          bool   `json:"video"`
	Storyboard     bool   `json:"storyboard"`
	NSFW           bool   `json:"nsfw"`
	GenreID        int    `json:"genre_id"`
	LanguageID     int    `json:"language_id"`
	PlayCount      int64  `json:"play_count"`
	FavouriteCount int64  `json:"favourite_count"`

	SubmittedAt time.Time  `json:"submitted_date"`
	RankedAt    *time.Time `json:"ranked_date,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	SyncedAt    time.Time  `json:"-"`

	Beatmaps []*Beatmap `json:"beatmaps,omitempty"`
}
