// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package performance

import (
	"context"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/storage/redis"
)

// Service answers pp and attribute questions, preferring the remote
// calculator and falling back to the closed-form curve.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	calc   Calculator
	cache  *redis.Client
	config Config
}

// NewService returns a new performance service. calc may be nil when no
// remote calculator is configured.
func NewService(log *zap.Logger, calc Calculator, cache *redis.Client, config Config) *Service {
	return &Service{
		log:    log,
		calc:   calc,
		cache:  cache,
		config: config,
	}
}

// ComputePP returns the pp for a play. starRating is the locally known
// difficulty used by the fallback when the calculator cannot answer.
func (s *Service) ComputePP(ctx context.Context, req *Request, starRating float64) (pp float64, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.calc != nil && s.calc.Supports(req.Ruleset) {
		result, err := s.calc.Calculate(ctx, req)
		if err == nil {
			mon.Event("pp_calculated")
			return result.PP, nil
		}
		s.log.Warn("calculator failed, using fallback",
			zap.Int64("beatmap_id", req.BeatmapID),
			zap.Error(err))
	}

	if !s.config.FallbackEnabled {
		return 0, nil
	}
	mon.Event("pp_fallback")
	return FallbackPP(starRating, req.TotalScore), nil
}

// BeatmapAttributes returns difficulty attributes, cached without expiry
// until the difficulty is recomputed.
func (s *Service) BeatmapAttributes(ctx context.Context, beatmapID int64, ruleset rulesets.ID, mods rulesets.Mods) (attrs *Attributes, err error) {
	defer mon.Task()(&ctx)(&err)

	key := attributesKey(beatmapID, ruleset, mods)
	if s.cache != nil {
		var cached Attributes
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			mon.Event("attributes_cache_hit")
			return &cached, nil
		}
	}

	if s.calc == nil || !s.calc.Supports(ruleset) {
		return nil, Error.New("no calculator for ruleset %s", ruleset)
	}
	attrs, err = s.calc.Attributes(ctx, beatmapID, ruleset, mods)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, attrs, 0); err != nil {
			s.log.Warn("attributes cache write failed", zap.Int64("beatmap_id", beatmapID), zap.Error(err))
		}
	}
	return attrs, nil
}

// InvalidateAttributes drops every cached attribute set of a beatmap,
// used after a difficulty resync.
func (s *Service) InvalidateAttributes(ctx context.Context, beatmapID int64) {
	if s.cache == nil {
		return
	}
	pattern := attributesPattern(beatmapID)
	if err := s.cache.DeleteMatching(ctx, pattern); err != nil {
		s.log.Warn("attributes invalidation failed", zap.Int64("beatmap_id", beatmapID), zap.Error(err))
	}
}
