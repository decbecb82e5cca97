// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/medals"
	"tempora.dev/tempora/arcade/performance"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/storage"
	"tempora.dev/tempora/storage/redis"
)

// replayNamespace is the blob namespace for replay files.
const replayNamespace = "replays"

// Config holds score pipeline configuration.
type Config struct {
	RulesetsVersionHash    string   `help:"hash clients must present when reserving a token" default:""`
	ClientVersions         []string `help:"accepted client version hashes, empty accepts all" default:""`
	PerformanceAllBeatmaps bool     `help:"award pp on every beatmap status" default:"false"`
	PreloadRaw             bool     `help:"warm the raw cache when a token is created" default:"true"`

	PPBestKeep     int           `help:"top scores kept per user and ruleset for weighting" default:"100"`
	LeaderboardTop int           `help:"entries per leaderboard page" default:"50"`
	ScoresCacheTTL time.Duration `help:"user score list cache lifetime" default:"5m"`
	RecentCacheTTL time.Duration `help:"recent score list cache lifetime" default:"30s"`

	// SyncProcessing runs the post-submit fan-out inline instead of in
	// a detached task; the submission still never fails because of it.
	SyncProcessing bool `help:"run score post-processing inline" default:"false" testDefault:"true"`
}

// RoomHook receives processed multiplayer plays so the room package can
// maintain its own projections without the pipeline importing it.
type RoomHook interface {
	ScoreProcessed(ctx context.Context, token *Token, score *Score) error
}

// Service drives the two-phase score pipeline.
//
// architecture: Service
type Service struct {
	log      *zap.Logger
	db       DB
	userdb   users.DB
	ucache   *users.Cache
	beatmaps *beatmaps.Service
	perf     *performance.Service
	medals   *medals.Service
	events   *eventhub.Hub
	cache    *redis.Client
	blobs    storage.Blobs

	roomHook RoomHook

	config Config
	nowFn  func() time.Time

	background sync.WaitGroup
}

// NewService returns a new scores service.
func NewService(log *zap.Logger, db DB, userdb users.DB, ucache *users.Cache, beatmapSvc *beatmaps.Service, perf *performance.Service, medalSvc *medals.Service, events *eventhub.Hub, cache *redis.Client, blobs storage.Blobs, config Config) (*Service, error) {
	if db == nil || userdb == nil {
		return nil, errs.New("database can't be nil")
	}
	if beatmapSvc == nil || perf == nil {
		return nil, errs.New("beatmaps and performance services are required")
	}
	if events == nil {
		return nil, errs.New("events can't be nil")
	}
	if config.PPBestKeep <= 0 {
		config.PPBestKeep = 100
	}
	return &Service{
		log:      log,
		db:       db,
		userdb:   userdb,
		ucache:   ucache,
		beatmaps: beatmapSvc,
		perf:     perf,
		medals:   medalSvc,
		events:   events,
		cache:    cache,
		blobs:    blobs,
		config:   config,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetRoomHook wires the multiplayer projection hook.
func (s *Service) SetRoomHook(hook RoomHook) { s.roomHook = hook }

// TestSetNow overrides the clock.
func (s *Service) TestSetNow(now func() time.Time) { s.nowFn = now }

// Close waits for detached post-processing to drain.
func (s *Service) Close() error {
	s.background.Wait()
	return nil
}

// TokenRequest carries a token reservation.
type TokenRequest struct {
	BeatmapID          int64
	BeatmapChecksum    string
	Ruleset            rulesets.ID
	ClientVersion      string
	RulesetVersionHash string

	// RoomID and PlaylistItemID are set by the multiplayer endpoints.
	RoomID         int64
	PlaylistItemID int64
}

// CreateToken validates the client and reserves a play.
func (s *Service) CreateToken(ctx context.Context, userID int64, req TokenRequest) (token *Token, err error) {
	defer mon.Task()(&ctx)(&err)

	if !req.Ruleset.Valid() {
		return nil, ErrValidation.New("unknown ruleset %d", int(req.Ruleset))
	}
	if len(s.config.ClientVersions) > 0 && !contains(s.config.ClientVersions, req.ClientVersion) {
		mon.Event("score_token_bad_client")
		return nil, ErrVersionMismatch.New("client version not allowed")
	}
	if s.config.RulesetsVersionHash != "" && req.RulesetVersionHash != s.config.RulesetsVersionHash {
		mon.Event("score_token_bad_ruleset_hash")
		return nil, ErrVersionMismatch.New("ruleset version hash %q not accepted", req.RulesetVersionHash)
	}

	beatmap, err := s.beatmaps.GetByChecksum(ctx, req.BeatmapChecksum)
	if err != nil {
		return nil, ErrNotFound.New("beatmap checksum %s: %v", req.BeatmapChecksum, err)
	}
	if req.BeatmapID != 0 && beatmap.ID != req.BeatmapID {
		return nil, ErrValidation.New("checksum belongs to beatmap %d, not %d", beatmap.ID, req.BeatmapID)
	}

	now := s.nowFn()
	token = &Token{
		UserID:         userID,
		BeatmapID:      beatmap.ID,
		Ruleset:        req.Ruleset,
		RoomID:         req.RoomID,
		PlaylistItemID: req.PlaylistItemID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.Tokens().Insert(ctx, token); err != nil {
		return nil, Error.Wrap(err)
	}

	if s.config.PreloadRaw {
		s.detach(ctx, func(ctx context.Context) {
			s.beatmaps.PreloadRaw(ctx, beatmap.ID)
		})
	}
	mon.Event("score_token_created")
	return token, nil
}

// Submit redeems a token with the play's result. Re-submitting a
// redeemed token returns the originally stored score.
func (s *Service) Submit(ctx context.Context, userID, tokenID int64, info *SubmissionInfo) (score *Score, err error) {
	defer mon.Task()(&ctx)(&err)

	token, err := s.db.Tokens().Get(ctx, tokenID)
	if err != nil {
		return nil, ErrNotFound.New("token %d", tokenID)
	}
	if token.UserID != userID {
		return nil, ErrTokenMismatch.New("token %d", tokenID)
	}
	if token.Redeemed() {
		mon.Event("score_submit_replayed")
		return s.db.Scores().Get(ctx, *token.ScoreID)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	beatmap, err := s.beatmaps.Get(ctx, token.BeatmapID)
	if err != nil {
		return nil, ErrNotFound.New("beatmap %d: %v", token.BeatmapID, err)
	}

	rank := info.Rank
	if !info.Passed {
		rank = rulesets.GradeF
	}
	score = &Score{
		UserID:            userID,
		BeatmapID:         token.BeatmapID,
		Ruleset:           rulesets.WithVariant(token.Ruleset, info.Mods),
		Mods:              info.Mods,
		TotalScore:        info.TotalScore,
		Accuracy:          info.Accuracy,
		MaxCombo:          info.MaxCombo,
		Rank:              rank,
		Passed:            info.Passed,
		Perfect:           info.Perfect,
		Statistics:        info.Statistics,
		MaximumStatistics: info.MaximumStatistics,
		BuildID:           info.BuildID,
		EndedAt:           info.EndedAt.UTC(),
		CreatedAt:         s.nowFn(),
	}
	if err := s.db.Scores().Insert(ctx, score); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := s.db.Tokens().SetScore(ctx, token.ID, score.ID); err != nil {
		// lost the race against a concurrent submit for the same token
		if fresh, ferr := s.db.Tokens().Get(ctx, token.ID); ferr == nil && fresh.Redeemed() {
			_ = s.db.Scores().Delete(ctx, score.ID)
			return s.db.Scores().Get(ctx, *fresh.ScoreID)
		}
		return nil, Error.Wrap(err)
	}
	token.ScoreID = &score.ID

	pp := s.computePP(ctx, score, beatmap)
	score.PP = &pp
	if err := s.db.Scores().SetPP(ctx, score.ID, pp); err != nil {
		return nil, Error.Wrap(err)
	}

	// the score is committed; derivations must never fail the request
	if s.config.SyncProcessing {
		s.process(ctx, token, score, beatmap)
	} else {
		s.detach(ctx, func(ctx context.Context) {
			s.process(ctx, token, score, beatmap)
		})
	}
	mon.Event("score_submitted")
	return score, nil
}

// computePP decides eligibility and runs the calculator. Failures and
// ineligible plays yield zero, never an error.
func (s *Service) computePP(ctx context.Context, score *Score, beatmap *beatmaps.Beatmap) float64 {
	if !score.Passed {
		return 0
	}
	if !beatmap.Status.GivesPP() && !s.config.PerformanceAllBeatmaps {
		return 0
	}
	if !score.Mods.Ranked() {
		return 0
	}

	if verdict, err := s.beatmaps.Analyze(ctx, beatmap); err != nil {
		s.log.Warn("suspicion analysis failed", zap.Int64("beatmap_id", beatmap.ID), zap.Error(err))
	} else if verdict.Suspicious {
		mon.Event("score_pp_suspicious_zeroed")
		s.log.Info("suspicious beatmap, forcing pp to zero",
			zap.Int64("beatmap_id", beatmap.ID),
			zap.Strings("reasons", verdict.Reasons))
		return 0
	}

	pp, err := s.perf.ComputePP(ctx, &performance.Request{
		BeatmapID:  score.BeatmapID,
		Ruleset:    score.Ruleset,
		Mods:       score.Mods,
		MaxCombo:   score.MaxCombo,
		Accuracy:   score.Accuracy,
		TotalScore: score.TotalScore,
		Statistics: score.Statistics,
		Passed:     score.Passed,
	}, beatmap.StarRating)
	if err != nil {
		s.log.Warn("pp computation failed", zap.Int64("score_id", score.ID), zap.Error(err))
		return 0
	}
	return pp
}

// detach runs fn in a tracked background task with its own lifetime.
func (s *Service) detach(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn(detached)
	}()
}

// process fans a committed score out into every derived structure.
// Failures are logged per step; later steps still run.
func (s *Service) process(ctx context.Context, token *Token, score *Score, beatmap *beatmaps.Beatmap) {
	var err error
	defer mon.Task()(&ctx)(&err)

	rankedDelta, prevGrade, overtook := s.updateBest(ctx, score)
	s.updatePPBest(ctx, score, beatmap)
	stats := s.updateStatistics(ctx, score, beatmap, rankedDelta, prevGrade, overtook)
	s.updatePlaycount(ctx, score)
	s.checkMedals(ctx, score, beatmap, stats)

	if err := s.beatmaps.RecordPlay(ctx, beatmap, score.Passed); err != nil {
		s.log.Warn("beatmap play record failed", zap.Int64("beatmap_id", beatmap.ID), zap.Error(err))
	}

	if token.RoomID != 0 && s.roomHook != nil {
		if err := s.roomHook.ScoreProcessed(ctx, token, score); err != nil {
			s.log.Warn("room projection failed", zap.Int64("room_id", token.RoomID), zap.Error(err))
		}
	}

	s.invalidateUser(ctx, score.UserID)

	s.events.Publish(ctx, eventhub.KindScoreProcessed, eventhub.ScoreProcessed{
		ScoreID:   score.ID,
		UserID:    score.UserID,
		BeatmapID: score.BeatmapID,
		Ruleset:   int(score.Ruleset),
	})
	mon.Event("score_processed")
}

// updateBest maintains the leaderboard projection. It returns the
// ranked-score delta, the grade the replaced best held and whether the
// projection changed.
func (s *Service) updateBest(ctx context.Context, score *Score) (rankedDelta int64, prevGrade rulesets.Grade, overtook bool) {
	if !score.Passed {
		return 0, "", false
	}

	prior, err := s.db.Bests().Get(ctx, score.UserID, score.BeatmapID, score.Ruleset)
	if err == nil {
		if prior.TotalScore >= score.TotalScore {
			return 0, "", false
		}
		rankedDelta = score.TotalScore - prior.TotalScore
		prevGrade = prior.Rank
	} else {
		rankedDelta = score.TotalScore
	}

	err = s.db.Bests().Upsert(ctx, &BestScore{
		UserID:     score.UserID,
		BeatmapID:  score.BeatmapID,
		Ruleset:    score.Ruleset,
		ScoreID:    score.ID,
		TotalScore: score.TotalScore,
		PP:         score.PPValue(),
		Accuracy:   score.Accuracy,
		MaxCombo:   score.MaxCombo,
		Rank:       score.Rank,
		Mods:       score.Mods,
		EndedAt:    score.EndedAt,
	})
	if err != nil {
		s.log.Error("best score upsert failed", zap.Int64("score_id", score.ID), zap.Error(err))
		return 0, "", false
	}
	s.invalidateLeaderboard(ctx, score.BeatmapID, score.Ruleset)
	return rankedDelta, prevGrade, true
}

// updatePPBest maintains the top-pp projection for eligible plays.
func (s *Service) updatePPBest(ctx context.Context, score *Score, beatmap *beatmaps.Beatmap) {
	if !score.Passed || score.PPValue() <= 0 {
		return
	}
	if !beatmap.Status.GivesPP() && !s.config.PerformanceAllBeatmaps {
		return
	}

	err := s.db.PPBests().Upsert(ctx, &PPBest{
		UserID:    score.UserID,
		Ruleset:   score.Ruleset,
		ScoreID:   score.ID,
		BeatmapID: score.BeatmapID,
		PP:        score.PPValue(),
		Accuracy:  score.Accuracy,
	})
	if err != nil {
		s.log.Error("pp best upsert failed", zap.Int64("score_id", score.ID), zap.Error(err))
		return
	}
	if err := s.db.PPBests().Trim(ctx, score.UserID, score.Ruleset, s.config.PPBestKeep); err != nil {
		s.log.Warn("pp best trim failed", zap.Int64("user_id", score.UserID), zap.Error(err))
	}
}

// updateStatistics recomputes the per-ruleset aggregate row.
func (s *Service) updateStatistics(ctx context.Context, score *Score, beatmap *beatmaps.Beatmap, rankedDelta int64, prevGrade rulesets.Grade, overtook bool) *users.UserStatistics {
	stats, err := s.userdb.Statistics().Get(ctx, score.UserID, score.Ruleset)
	if err != nil {
		s.log.Error("statistics row missing", zap.Int64("user_id", score.UserID), zap.Error(err))
		return nil
	}

	stats.PlayCount++
	stats.PlayTime += int64(playSeconds(score, beatmap))
	stats.TotalHits += int64(score.Statistics.TotalHits())
	stats.TotalScore += score.TotalScore
	stats.RankedScore += rankedDelta
	if score.MaxCombo > stats.MaxCombo {
		stats.MaxCombo = score.MaxCombo
	}
	if overtook {
		if prevGrade != "" {
			stats.AddGrade(prevGrade, -1)
		}
		stats.AddGrade(score.Rank, 1)
	}

	bests, err := s.db.PPBests().ListByUser(ctx, score.UserID, score.Ruleset, s.config.PPBestKeep)
	if err != nil {
		s.log.Warn("pp best list failed", zap.Int64("user_id", score.UserID), zap.Error(err))
	} else {
		pps := make([]float64, 0, len(bests))
		accs := make([]float64, 0, len(bests))
		for _, best := range bests {
			pps = append(pps, best.PP)
			accs = append(accs, best.Accuracy)
		}
		stats.PP = performance.WeightedPP(pps) + performance.BonusPP(len(pps))
		stats.HitAccuracy = performance.WeightedAccuracy(accs) * 100
	}

	stats.Level, stats.LevelProgress = performance.LevelFromScore(stats.RankedScore)
	stats.IsRanked = stats.PP > 0

	if rank, err := s.userdb.Statistics().GlobalRank(ctx, score.UserID, score.Ruleset); err == nil {
		stats.GlobalRank = rank
	}
	if rank, err := s.userdb.Statistics().CountryRank(ctx, score.UserID, score.Ruleset); err == nil {
		stats.CountryRank = rank
	}

	if err := s.userdb.Statistics().Update(ctx, stats); err != nil {
		s.log.Error("statistics update failed", zap.Int64("user_id", score.UserID), zap.Error(err))
	}
	return stats
}

// playSeconds estimates the time a play took.
func playSeconds(score *Score, beatmap *beatmaps.Beatmap) int {
	if score.Passed || beatmap.HitLength <= 0 {
		return beatmap.HitLength
	}
	// a failed play covers part of the map; approximate by judged share
	max := score.MaximumStatistics.TotalHits()
	if max <= 0 {
		return beatmap.HitLength
	}
	done := score.Statistics.TotalHits()
	if done > max {
		done = max
	}
	return beatmap.HitLength * done / max
}

func (s *Service) updatePlaycount(ctx context.Context, score *Score) {
	count, err := s.db.Playcounts().Increment(ctx, score.UserID, score.BeatmapID)
	if err != nil {
		s.log.Warn("playcount increment failed", zap.Int64("user_id", score.UserID), zap.Error(err))
		return
	}
	if count%100 == 0 {
		s.events.Publish(ctx, eventhub.KindPlaycountMilestone, eventhub.PlaycountMilestone{
			UserID:    score.UserID,
			BeatmapID: score.BeatmapID,
			Count:     count,
		})
	}
}

func (s *Service) checkMedals(ctx context.Context, score *Score, beatmap *beatmaps.Beatmap, stats *users.UserStatistics) {
	if s.medals == nil {
		return
	}
	unlocked, err := s.medals.Check(ctx, &medals.Play{
		UserID:     score.UserID,
		Ruleset:    score.Ruleset,
		Mods:       score.Mods,
		Passed:     score.Passed,
		Rank:       score.Rank,
		MaxCombo:   score.MaxCombo,
		Accuracy:   score.Accuracy,
		TotalScore: score.TotalScore,
		PP:         score.PPValue(),
		Beatmap:    beatmap,
		Statistics: stats,
		At:         score.EndedAt,
	})
	if err != nil {
		s.log.Warn("medal check failed", zap.Int64("user_id", score.UserID), zap.Error(err))
	}
	for _, medal := range unlocked {
		s.events.Publish(ctx, eventhub.KindAchievementUnlocked, eventhub.AchievementUnlocked{
			UserID: score.UserID,
			Medal:  medal.Slug,
		})
	}
}

// Get returns a score by id.
func (s *Service) Get(ctx context.Context, id int64) (score *Score, err error) {
	defer mon.Task()(&ctx)(&err)
	score, err = s.db.Scores().Get(ctx, id)
	if err != nil {
		return nil, ErrNotFound.New("score %d", id)
	}
	return score, nil
}

// Delete removes a user's own score and re-derives the projections that
// referenced it.
func (s *Service) Delete(ctx context.Context, userID, scoreID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	score, err := s.db.Scores().Get(ctx, scoreID)
	if err != nil {
		return ErrNotFound.New("score %d", scoreID)
	}
	if score.UserID != userID {
		return ErrTokenMismatch.New("score %d belongs to another user", scoreID)
	}

	if err := s.db.Scores().Delete(ctx, scoreID); err != nil {
		return Error.Wrap(err)
	}
	if err := s.db.Bests().DeleteByScore(ctx, scoreID); err != nil {
		return Error.Wrap(err)
	}
	if err := s.db.PPBests().DeleteByScore(ctx, scoreID); err != nil {
		return Error.Wrap(err)
	}

	// re-derive the beatmap best from the remaining scores
	remaining, err := s.db.Scores().ListForUserBeatmap(ctx, userID, score.BeatmapID, score.Ruleset)
	if err != nil {
		return Error.Wrap(err)
	}
	var best *Score
	for _, candidate := range remaining {
		if !candidate.Passed {
			continue
		}
		if best == nil || candidate.Better(best) {
			best = candidate
		}
	}
	if best != nil {
		err = s.db.Bests().Upsert(ctx, &BestScore{
			UserID:     best.UserID,
			BeatmapID:  best.BeatmapID,
			Ruleset:    best.Ruleset,
			ScoreID:    best.ID,
			TotalScore: best.TotalScore,
			PP:         best.PPValue(),
			Accuracy:   best.Accuracy,
			MaxCombo:   best.MaxCombo,
			Rank:       best.Rank,
			Mods:       best.Mods,
			EndedAt:    best.EndedAt,
		})
		if err != nil {
			return Error.Wrap(err)
		}
	}

	s.invalidateLeaderboard(ctx, score.BeatmapID, score.Ruleset)
	s.invalidateUser(ctx, userID)
	return nil
}

// SaveReplay stores the replay file of a score.
func (s *Service) SaveReplay(ctx context.Context, scoreID int64, r io.Reader) (err error) {
	defer mon.Task()(&ctx)(&err)

	if s.blobs == nil {
		return Error.New("blob storage not configured")
	}
	score, err := s.db.Scores().Get(ctx, scoreID)
	if err != nil {
		return ErrNotFound.New("score %d", scoreID)
	}

	filename := fmt.Sprintf("%d.osr", scoreID)
	writer, err := s.blobs.Create(ctx, storage.BlobRef{Namespace: replayNamespace, Key: filename})
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := io.Copy(writer, r); err != nil {
		return errs.Combine(Error.Wrap(err), writer.Cancel())
	}
	if err := writer.Commit(); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(s.db.Scores().SetReplayFilename(ctx, score.ID, filename))
}

// OpenReplay serves a stored replay, counting the download for the
// score owner's watched counter.
func (s *Service) OpenReplay(ctx context.Context, scoreID, watcherID int64) (r storage.BlobReader, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.blobs == nil {
		return nil, Error.New("blob storage not configured")
	}
	score, err := s.db.Scores().Get(ctx, scoreID)
	if err != nil {
		return nil, ErrNotFound.New("score %d", scoreID)
	}
	if !score.HasReplay() {
		return nil, ErrNotFound.New("score %d has no replay", scoreID)
	}

	r, err = s.blobs.Open(ctx, storage.BlobRef{Namespace: replayNamespace, Key: score.ReplayFilename})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if watcherID != 0 && watcherID != score.UserID {
		if err := s.userdb.Statistics().IncrementReplaysWatched(ctx, score.UserID, score.Ruleset); err != nil {
			s.log.Warn("replay watch count failed", zap.Int64("score_id", scoreID), zap.Error(err))
		}
		s.events.Publish(ctx, eventhub.KindReplayDownloaded, eventhub.ReplayDownloaded{
			ScoreID:   scoreID,
			WatcherID: watcherID,
		})
	}
	return r, nil
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	if s.ucache != nil {
		if err := s.ucache.InvalidateUser(ctx, userID); err != nil {
			s.log.Warn("user cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.DeleteMatching(ctx, fmt.Sprintf("user:%d:scores:*", userID)); err != nil {
			s.log.Warn("score cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
}

func contains(haystack []string, needle string) bool {
	for _, candidate := range haystack {
		if candidate == needle {
			return true
		}
	}
	return false
}
