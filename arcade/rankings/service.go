// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package rankings serves the paged global, country and team ranking
// tables. Pages are cached in Redis and pre-warmed by the scheduler so
// the hot first pages never fan out to the relational store.
package rankings

import (
	"context"
	"fmt"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/storage/redis"
)

var mon = monkit.Package()

var (
	// Error is the default rankings error class.
	Error = errs.Class("rankings")
	// ErrValidation is returned for unknown sorts or rulesets.
	ErrValidation = errs.Class("rankings validation")
)

// Sort selects the ranking order.
type Sort string

// Ranking sorts.
const (
	SortPerformance Sort = "performance"
	SortScore       Sort = "score"
)

// Valid reports whether the sort is known.
func (s Sort) Valid() bool {
	return s == SortPerformance || s == SortScore
}

// Config holds rankings configuration.
type Config struct {
	PageSize     int           `help:"users per ranking page" default:"50"`
	CacheTTL     time.Duration `help:"ranking page cache lifetime" default:"30m" testDefault:"1m"`
	WarmupPages  int           `help:"pages per ruleset and sort refreshed by the scheduler" default:"1"`
	MaxCountries int           `help:"countries per country ranking page" default:"50"`
}

// Service answers ranking reads through the cache tier.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	userdb users.DB
	cache  *redis.Client
	config Config
}

// NewService returns a rankings service.
func NewService(log *zap.Logger, userdb users.DB, cache *redis.Client, config Config) *Service {
	if config.PageSize <= 0 {
		config.PageSize = 50
	}
	if config.MaxCountries <= 0 {
		config.MaxCountries = 50
	}
	if config.WarmupPages <= 0 {
		config.WarmupPages = 1
	}
	return &Service{
		log:    log,
		userdb: userdb,
		cache:  cache,
		config: config,
	}
}

// UserEntry is one row of a user ranking page.
type UserEntry struct {
	Position int64                `json:"position"`
	UserID   int64                `json:"user_id"`
	Username string               `json:"username"`
	Country  string               `json:"country_code"`
	Stats    users.UserStatistics `json:"statistics"`
}

// UserPage is one page of the global or per-country user ranking.
type UserPage struct {
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	Entries []*UserEntry `json:"ranking"`

	// Cursor pages into the next slice; empty on the last page.
	Cursor string `json:"cursor_string,omitempty"`
}

// CountryEntry is one row of the country ranking.
type CountryEntry struct {
	Position int64 `json:"position"`
	users.CountryAggregate
}

// TeamEntry is one row of the team ranking.
type TeamEntry struct {
	Position  int64  `json:"position"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	users.TeamAggregate
}

func pageKey(ruleset rulesets.ID, sort Sort, country string, page int) string {
	if country != "" {
		return fmt.Sprintf("ranking:%d:%s:%s:page:%d", int(ruleset), sort, country, page)
	}
	return fmt.Sprintf("ranking:%d:%s:page:%d", int(ruleset), sort, page)
}

func statsKey(ruleset rulesets.ID, sort Sort, country string) string {
	if country != "" {
		return fmt.Sprintf("ranking:%d:%s:%s:stats", int(ruleset), sort, country)
	}
	return fmt.Sprintf("ranking:%d:%s:stats", int(ruleset), sort)
}

// Users returns one page of the user ranking, optionally narrowed to a
// country. Pages are 1-based.
func (s *Service) Users(ctx context.Context, ruleset rulesets.ID, sort Sort, country string, page int) (result *UserPage, err error) {
	defer mon.Task()(&ctx)(&err)

	if !ruleset.Valid() {
		return nil, ErrValidation.New("unknown ruleset %d", int(ruleset))
	}
	if !sort.Valid() {
		return nil, ErrValidation.New("unknown sort %q", string(sort))
	}
	if page < 1 {
		page = 1
	}

	key := pageKey(ruleset, sort, country, page)
	if s.cache != nil {
		var cached UserPage
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			mon.Event("ranking_page_cache_hit")
			return &cached, nil
		}
	}

	result, err = s.buildUserPage(ctx, ruleset, sort, country, page)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, result, s.config.CacheTTL); err != nil {
			s.log.Warn("ranking page cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) buildUserPage(ctx context.Context, ruleset rulesets.ID, sort Sort, country string, page int) (*UserPage, error) {
	limit := s.config.PageSize
	offset := (page - 1) * limit

	var (
		rows  []*users.UserStatistics
		total int64
		err   error
	)
	switch {
	case country != "" && sort == SortPerformance:
		rows, err = s.userdb.Statistics().TopByPPInCountry(ctx, ruleset, country, limit, offset)
	case country != "":
		rows, err = s.userdb.Statistics().TopByRankedScoreInCountry(ctx, ruleset, country, limit, offset)
	case sort == SortPerformance:
		rows, err = s.userdb.Statistics().TopByPP(ctx, ruleset, limit, offset)
	default:
		rows, err = s.userdb.Statistics().TopByRankedScore(ctx, ruleset, limit, offset)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if country != "" {
		total, err = s.userdb.Statistics().CountRankedInCountry(ctx, ruleset, country)
	} else {
		total, err = s.userdb.Statistics().CountRanked(ctx, ruleset)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	players, err := s.userdb.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	byID := make(map[int64]*users.User, len(players))
	for _, player := range players {
		byID[player.ID] = player
	}

	result := &UserPage{Total: total, Page: page}
	for i, row := range rows {
		entry := &UserEntry{
			Position: int64(offset + i + 1),
			UserID:   row.UserID,
			Stats:    *row,
		}
		if player, ok := byID[row.UserID]; ok {
			entry.Username = player.Username
			entry.Country = player.Country
		}
		result.Entries = append(result.Entries, entry)
	}
	if int64(offset+len(rows)) < total {
		result.Cursor = Cursor{Page: page + 1}.Encode()
	}
	return result, nil
}

// Countries returns one page of the per-country aggregate ranking.
func (s *Service) Countries(ctx context.Context, ruleset rulesets.ID, sort Sort, page int) (entries []*CountryEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	if !ruleset.Valid() {
		return nil, ErrValidation.New("unknown ruleset %d", int(ruleset))
	}
	if !sort.Valid() {
		return nil, ErrValidation.New("unknown sort %q", string(sort))
	}
	if page < 1 {
		page = 1
	}

	key := fmt.Sprintf("ranking:%d:%s:countries:page:%d", int(ruleset), sort, page)
	if s.cache != nil {
		var cached []*CountryEntry
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			mon.Event("ranking_country_cache_hit")
			return cached, nil
		}
	}

	limit := s.config.MaxCountries
	offset := (page - 1) * limit
	rows, err := s.userdb.Statistics().AggregateByCountry(ctx, ruleset, sort == SortScore, limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for i, row := range rows {
		entries = append(entries, &CountryEntry{
			Position:         int64(offset + i + 1),
			CountryAggregate: *row,
		})
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, entries, s.config.CacheTTL); err != nil {
			s.log.Warn("country ranking cache write failed", zap.Error(err))
		}
	}
	return entries, nil
}

// Teams returns one page of the per-team aggregate ranking.
func (s *Service) Teams(ctx context.Context, ruleset rulesets.ID, sort Sort, page int) (entries []*TeamEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	if !ruleset.Valid() {
		return nil, ErrValidation.New("unknown ruleset %d", int(ruleset))
	}
	if !sort.Valid() {
		return nil, ErrValidation.New("unknown sort %q", string(sort))
	}
	if page < 1 {
		page = 1
	}

	key := fmt.Sprintf("ranking:%d:%s:teams:page:%d", int(ruleset), sort, page)
	if s.cache != nil {
		var cached []*TeamEntry
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			mon.Event("ranking_team_cache_hit")
			return cached, nil
		}
	}

	limit := s.config.PageSize
	offset := (page - 1) * limit
	rows, err := s.userdb.Statistics().AggregateByTeam(ctx, ruleset, sort == SortScore, limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for i, row := range rows {
		entry := &TeamEntry{
			Position:      int64(offset + i + 1),
			TeamAggregate: *row,
		}
		if team, err := s.userdb.Teams().Get(ctx, row.TeamID); err == nil {
			entry.Name = team.Name
			entry.ShortName = team.ShortName
		}
		entries = append(entries, entry)
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, entries, s.config.CacheTTL); err != nil {
			s.log.Warn("team ranking cache write failed", zap.Error(err))
		}
	}
	return entries, nil
}

// Refresh rebuilds and recaches the first WarmupPages pages of every
// ruleset and sort. It is driven by the scheduler and safe to rerun.
func (s *Service) Refresh(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if s.cache == nil {
		return nil
	}
	var group errs.Group
	for _, ruleset := range rulesets.All() {
		for _, sort := range []Sort{SortPerformance, SortScore} {
			for page := 1; page <= s.config.WarmupPages; page++ {
				result, err := s.buildUserPage(ctx, ruleset, sort, "", page)
				if err != nil {
					group.Add(err)
					continue
				}
				key := pageKey(ruleset, sort, "", page)
				if err := s.cache.SetJSON(ctx, key, result, s.config.CacheTTL); err != nil {
					group.Add(err)
				}
			}
		}
	}
	mon.Event("ranking_refresh")
	return Error.Wrap(group.Err())
}
