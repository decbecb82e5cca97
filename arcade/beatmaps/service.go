// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package beatmaps

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/storage/redis"
)

// Source resolves beatmap data we do not hold locally.
type Source interface {
	// Beatmapset fetches a set with its difficulties.
	Beatmapset(ctx context.Context, id int64) (*Beatmapset, error)
	// BeatmapsetForBeatmap fetches the set containing the difficulty.
	BeatmapsetForBeatmap(ctx context.Context, beatmapID int64) (*Beatmapset, error)
	// BeatmapsetForChecksum fetches the set containing the checksummed difficulty.
	BeatmapsetForChecksum(ctx context.Context, checksum string) (*Beatmapset, error)
	// Search runs an upstream beatmapset search.
	Search(ctx context.Context, query, cursor string) (*SearchResult, error)
	// RawBeatmap downloads the raw ".osu" file.
	RawBeatmap(ctx context.Context, beatmapID int64) ([]byte, error)
}

// SearchResult is one page of a beatmapset search.
type SearchResult struct {
	Beatmapsets []*Beatmapset `json:"beatmapsets"`
	Total       int64         `json:"total"`
	Cursor      string        `json:"cursor_string,omitempty"`
}

// Config holds beatmaps service configuration.
type Config struct {
	CacheTTL       time.Duration `help:"beatmap and set cache lifetime" default:"1h" testDefault:"1m"`
	SearchCacheTTL time.Duration `help:"search result cache lifetime" default:"5m"`
	RawTTL         time.Duration `help:"raw file cache lifetime, renewed on hit" default:"24h"`
	StaleAfter     time.Duration `help:"age after which unranked sets are re-synced" default:"168h"`
	SyncBatch      int           `help:"sets refreshed per sync pass" default:"50"`

	Analyzer AnalyzerConfig
}

// Service answers beatmap reads through the cache tier and keeps the
// local mirror fresh.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	db     DB
	cache  *redis.Client
	binary *redis.Client
	source Source
	config Config
}

// NewService returns a new beatmaps service. cache holds metadata,
// binary holds raw file bodies.
func NewService(log *zap.Logger, db DB, cache, binary *redis.Client, source Source, config Config) (*Service, error) {
	if db == nil {
		return nil, errs.New("database can't be nil")
	}
	return &Service{
		log:    log,
		db:     db,
		cache:  cache,
		binary: binary,
		source: source,
		config: config,
	}, nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Get returns the difficulty, pulling it from upstream when unknown.
func (s *Service) Get(ctx context.Context, id int64) (beatmap *Beatmap, err error) {
	defer mon.Task()(&ctx)(&err)

	beatmap, err = s.db.Beatmaps().Get(ctx, id)
	if err == nil {
		return beatmap, nil
	}
	if s.source == nil {
		return nil, ErrNotFound.New("beatmap %d", id)
	}

	set, err := s.source.BeatmapsetForBeatmap(ctx, id)
	if err != nil {
		return nil, ErrNotFound.New("beatmap %d: %v", id, err)
	}
	if err := s.storeSet(ctx, set); err != nil {
		return nil, err
	}
	return s.db.Beatmaps().Get(ctx, id)
}

// GetByChecksum returns the difficulty with the md5 checksum, pulling it
// from upstream when unknown.
func (s *Service) GetByChecksum(ctx context.Context, checksum string) (beatmap *Beatmap, err error) {
	defer mon.Task()(&ctx)(&err)

	beatmap, err = s.db.Beatmaps().GetByChecksum(ctx, checksum)
	if err == nil {
		return beatmap, nil
	}
	if s.source == nil {
		return nil, ErrNotFound.New("checksum %s", checksum)
	}

	set, err := s.source.BeatmapsetForChecksum(ctx, checksum)
	if err != nil {
		return nil, ErrNotFound.New("checksum %s: %v", checksum, err)
	}
	if err := s.storeSet(ctx, set); err != nil {
		return nil, err
	}
	return s.db.Beatmaps().GetByChecksum(ctx, checksum)
}

func lookupKey(beatmapID int64) string {
	return fmt.Sprintf("beatmap_lookup:%d:beatmapset", beatmapID)
}

// Lookup returns the set containing the difficulty, cached.
func (s *Service) Lookup(ctx context.Context, beatmapID int64) (set *Beatmapset, err error) {
	defer mon.Task()(&ctx)(&err)

	key := lookupKey(beatmapID)
	if s.cache != nil {
		var cached Beatmapset
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			mon.Event("beatmap_lookup_cache_hit")
			return &cached, nil
		}
	}

	beatmap, err := s.Get(ctx, beatmapID)
	if err != nil {
		return nil, err
	}
	set, err = s.Beatmapset(ctx, beatmap.BeatmapsetID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, set, s.config.CacheTTL); err != nil {
			s.log.Warn("lookup cache write failed", zap.Int64("beatmap_id", beatmapID), zap.Error(err))
		}
	}
	return set, nil
}

func setKey(id int64) string {
	return fmt.Sprintf("beatmapset:%d", id)
}

// Beatmapset returns the set with difficulties, cached.
func (s *Service) Beatmapset(ctx context.Context, id int64) (set *Beatmapset, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.cache != nil {
		var cached Beatmapset
		if found, err := s.cache.GetJSON(ctx, setKey(id), &cached); err == nil && found {
			return &cached, nil
		}
	}

	set, err = s.db.Beatmapsets().Get(ctx, id)
	if err != nil {
		if s.source == nil {
			return nil, ErrNotFound.New("beatmapset %d", id)
		}
		set, err = s.source.Beatmapset(ctx, id)
		if err != nil {
			return nil, ErrNotFound.New("beatmapset %d: %v", id, err)
		}
		if err := s.storeSet(ctx, set); err != nil {
			return nil, err
		}
	}
	if set.Beatmaps == nil {
		set.Beatmaps, err = s.db.Beatmaps().ListByBeatmapset(ctx, id)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, setKey(id), set, s.config.CacheTTL); err != nil {
			s.log.Warn("set cache write failed", zap.Int64("beatmapset_id", id), zap.Error(err))
		}
	}
	return set, nil
}

// storeSet upserts a fetched set and all of its difficulties.
func (s *Service) storeSet(ctx context.Context, set *Beatmapset) error {
	set.SyncedAt = time.Now().UTC()
	if err := s.db.Beatmapsets().Upsert(ctx, set); err != nil {
		return Error.Wrap(err)
	}
	for _, beatmap := range set.Beatmaps {
		beatmap.BeatmapsetID = set.ID
		beatmap.SyncedAt = set.SyncedAt
		if err := s.db.Beatmaps().Upsert(ctx, beatmap); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Search runs an upstream search with a short cache in front.
func (s *Service) Search(ctx context.Context, query, cursor string) (result *SearchResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.source == nil {
		return nil, Error.New("search source not configured")
	}
	key := fmt.Sprintf("beatmapset_search:%s:%s", md5hex(query), md5hex(cursor))
	if s.cache != nil {
		var cached SearchResult
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			mon.Event("beatmapset_search_cache_hit")
			return &cached, nil
		}
	}

	result, err = s.source.Search(ctx, query, cursor)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, result, s.config.SearchCacheTTL); err != nil {
			s.log.Warn("search cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// WarmHomepage refreshes the cache entry backing the default search the
// client shows on its listing page.
func (s *Service) WarmHomepage(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if s.source == nil || s.cache == nil {
		return nil
	}
	key := fmt.Sprintf("beatmapset_search:%s:%s", md5hex(""), md5hex(""))
	result, err := s.source.Search(ctx, "", "")
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(s.cache.SetJSON(ctx, key, result, s.config.SearchCacheTTL))
}

func rawKey(beatmapID int64) string {
	return fmt.Sprintf("beatmap:%d:raw", beatmapID)
}

// Raw returns the raw ".osu" body, renewing the cache entry on hit.
func (s *Service) Raw(ctx context.Context, beatmapID int64) (raw []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	key := rawKey(beatmapID)
	if s.binary != nil {
		raw, err := s.binary.Get(ctx, key).Bytes()
		if err == nil {
			if err := s.binary.Expire(ctx, key, s.config.RawTTL).Err(); err != nil {
				s.log.Warn("raw cache renew failed", zap.Int64("beatmap_id", beatmapID), zap.Error(err))
			}
			mon.Event("beatmap_raw_cache_hit")
			return raw, nil
		}
	}

	if s.source == nil {
		return nil, Error.New("raw source not configured")
	}
	raw, err = s.source.RawBeatmap(ctx, beatmapID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if s.binary != nil {
		if err := s.binary.Set(ctx, key, raw, s.config.RawTTL).Err(); err != nil {
			s.log.Warn("raw cache write failed", zap.Int64("beatmap_id", beatmapID), zap.Error(err))
		}
	}
	return raw, nil
}

// PreloadRaw warms the raw cache without propagating failures.
func (s *Service) PreloadRaw(ctx context.Context, beatmapID int64) {
	if _, err := s.Raw(ctx, beatmapID); err != nil {
		s.log.Warn("raw preload failed", zap.Int64("beatmap_id", beatmapID), zap.Error(err))
	}
}

// Analyze runs the suspicious-map gate against the difficulty's raw file.
func (s *Service) Analyze(ctx context.Context, beatmap *Beatmap) (verdict Suspicion, err error) {
	defer mon.Task()(&ctx)(&err)

	raw, err := s.Raw(ctx, beatmap.ID)
	if err != nil {
		return Suspicion{}, err
	}
	return Analyze(raw, beatmap.Ruleset, beatmap.CS, s.config.Analyzer), nil
}

// ToggleFavourite adds or removes a favourite and returns the new count.
func (s *Service) ToggleFavourite(ctx context.Context, userID, beatmapsetID int64, favourite bool) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := s.db.Beatmapsets().Get(ctx, beatmapsetID); err != nil {
		return 0, ErrNotFound.New("beatmapset %d", beatmapsetID)
	}
	if favourite {
		err = s.db.Favourites().Add(ctx, userID, beatmapsetID)
	} else {
		err = s.db.Favourites().Remove(ctx, userID, beatmapsetID)
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}

	count, err = s.db.Favourites().Count(ctx, beatmapsetID)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if err := s.db.Beatmapsets().SetFavouriteCount(ctx, beatmapsetID, count); err != nil {
		return 0, Error.Wrap(err)
	}

	s.invalidateSet(ctx, beatmapsetID)
	s.invalidateUserSets(ctx, userID)
	return count, nil
}

// FavouritesOf lists the sets a user favourited, cached.
func (s *Service) FavouritesOf(ctx context.Context, userID int64, limit, offset int) (sets []*Beatmapset, err error) {
	defer mon.Task()(&ctx)(&err)

	key := fmt.Sprintf("user:%d:beatmapsets:favourite:limit:%d:offset:%d", userID, limit, offset)
	if s.cache != nil {
		var cached []*Beatmapset
		if found, err := s.cache.GetJSON(ctx, key, &cached); err == nil && found {
			return cached, nil
		}
	}

	ids, err := s.db.Favourites().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	sets = make([]*Beatmapset, 0, len(ids))
	for _, id := range ids {
		set, err := s.Beatmapset(ctx, id)
		if err != nil {
			s.log.Warn("favourite set missing", zap.Int64("beatmapset_id", id), zap.Error(err))
			continue
		}
		sets = append(sets, set)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, sets, s.config.CacheTTL); err != nil {
			s.log.Warn("favourites cache write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return sets, nil
}

// Rate records a 0..10 vote on a set.
func (s *Service) Rate(ctx context.Context, userID, beatmapsetID int64, score int) (err error) {
	defer mon.Task()(&ctx)(&err)

	if score < 0 || score > 10 {
		return Error.New("rating must be between 0 and 10")
	}
	if _, err := s.db.Beatmapsets().Get(ctx, beatmapsetID); err != nil {
		return ErrNotFound.New("beatmapset %d", beatmapsetID)
	}
	return Error.Wrap(s.db.Ratings().Upsert(ctx, &Rating{
		UserID:       userID,
		BeatmapsetID: beatmapsetID,
		Score:        score,
		CreatedAt:    time.Now().UTC(),
	}))
}

// RatingSummary returns the average vote and vote count of a set.
func (s *Service) RatingSummary(ctx context.Context, beatmapsetID int64) (average float64, count int64, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.Ratings().Summary(ctx, beatmapsetID)
}

// RecordPlay bumps the difficulty's play counters and drops stale caches.
func (s *Service) RecordPlay(ctx context.Context, beatmap *Beatmap, passed bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := s.db.Beatmaps().IncrementPlaycount(ctx, beatmap.ID, passed); err != nil {
		return Error.Wrap(err)
	}
	s.invalidateSet(ctx, beatmap.BeatmapsetID)
	if s.cache != nil {
		if err := s.cache.DeleteAll(ctx, lookupKey(beatmap.ID)); err != nil {
			s.log.Warn("lookup cache invalidation failed", zap.Int64("beatmap_id", beatmap.ID), zap.Error(err))
		}
	}
	return nil
}

// Sync refreshes one set from upstream and drops its caches.
func (s *Service) Sync(ctx context.Context, beatmapsetID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if s.source == nil {
		return Error.New("sync source not configured")
	}
	set, err := s.source.Beatmapset(ctx, beatmapsetID)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := s.storeSet(ctx, set); err != nil {
		return err
	}

	s.invalidateSet(ctx, beatmapsetID)
	if s.cache != nil {
		for _, beatmap := range set.Beatmaps {
			if err := s.cache.DeleteAll(ctx, lookupKey(beatmap.ID)); err != nil {
				s.log.Warn("lookup cache invalidation failed", zap.Int64("beatmap_id", beatmap.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// SyncStale refreshes the oldest unranked sets. Failures are logged and
// skipped so one broken set cannot wedge the pass.
func (s *Service) SyncStale(ctx context.Context) (synced int, err error) {
	defer mon.Task()(&ctx)(&err)

	cutoff := time.Now().UTC().Add(-s.config.StaleAfter)
	ids, err := s.db.Beatmapsets().ListSyncedBefore(ctx, cutoff, s.config.SyncBatch)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	for _, id := range ids {
		if err := s.Sync(ctx, id); err != nil {
			s.log.Warn("stale sync failed", zap.Int64("beatmapset_id", id), zap.Error(err))
			continue
		}
		synced++
	}
	return synced, nil
}

func (s *Service) invalidateSet(ctx context.Context, beatmapsetID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteAll(ctx, setKey(beatmapsetID)); err != nil {
		s.log.Warn("set cache invalidation failed", zap.Int64("beatmapset_id", beatmapsetID), zap.Error(err))
	}
}

func (s *Service) invalidateUserSets(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("user:%d:beatmapsets:*", userID)
	if err := s.cache.DeleteMatching(ctx, pattern); err != nil {
		s.log.Warn("user sets cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
