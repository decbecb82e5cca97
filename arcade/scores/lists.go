// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
)

// ListKind selects which of a user's score lists is served.
type ListKind string

// User score list kinds.
const (
	ListRecent ListKind = "recent"
	ListBest   ListKind = "best"
	ListFirsts ListKind = "firsts"
	ListPinned ListKind = "pinned"
)

// Valid reports whether the kind is known.
func (k ListKind) Valid() bool {
	switch k {
	case ListRecent, ListBest, ListFirsts, ListPinned:
		return true
	}
	return false
}

// ListRequest parameterizes a user score list page.
type ListRequest struct {
	UserID  int64
	Kind    ListKind
	Ruleset rulesets.ID

	// IncludeFails widens the recent list to failed plays.
	IncludeFails bool

	Limit  int
	Offset int
}

func listKey(req ListRequest) string {
	fails := 0
	if req.IncludeFails {
		fails = 1
	}
	return fmt.Sprintf("user:%d:scores:%s:%d:%d:%d:%d",
		req.UserID, req.Kind, int(req.Ruleset), fails, req.Limit, req.Offset)
}

// UserScores serves one of a user's score lists, cached in Redis under
// keys the pipeline's invalidation sweeps away on every new submission.
func (s *Service) UserScores(ctx context.Context, req ListRequest) (scores []*Score, err error) {
	defer mon.Task()(&ctx)(&err)

	if !req.Kind.Valid() {
		return nil, ErrValidation.New("unknown list kind %q", req.Kind)
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	key := listKey(req)
	if s.cache != nil {
		var cached []*Score
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			mon.Event("score_list_cache_hit")
			return cached, nil
		}
	}

	switch req.Kind {
	case ListRecent:
		scores, err = s.db.Scores().ListRecent(ctx, req.UserID, req.Ruleset, req.IncludeFails, req.Limit, req.Offset)
	case ListBest:
		scores, err = s.listBest(ctx, req)
	case ListFirsts:
		scores, err = s.listFirsts(ctx, req)
	case ListPinned:
		scores, err = s.db.Scores().ListPinned(ctx, req.UserID, req.Ruleset)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if s.cache != nil {
		ttl := s.config.ScoresCacheTTL
		if req.Kind == ListRecent {
			ttl = s.config.RecentCacheTTL
		}
		if err := s.cache.SetJSON(ctx, key, scores, ttl); err != nil {
			s.log.Warn("score list cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return scores, nil
}

// listBest maps the top-pp projection page back to full score rows.
func (s *Service) listBest(ctx context.Context, req ListRequest) ([]*Score, error) {
	bests, err := s.db.PPBests().ListByUser(ctx, req.UserID, req.Ruleset, s.config.PPBestKeep)
	if err != nil {
		return nil, err
	}
	if req.Offset >= len(bests) {
		return []*Score{}, nil
	}
	bests = bests[req.Offset:]
	if len(bests) > req.Limit {
		bests = bests[:req.Limit]
	}

	ids := make([]int64, 0, len(bests))
	for _, best := range bests {
		ids = append(ids, best.ScoreID)
	}
	rows, err := s.db.Scores().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	// restore pp ordering lost by the batch fetch
	byID := make(map[int64]*Score, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]*Score, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

// listFirsts returns the user's best scores that currently hold rank
// one on their beatmap's global leaderboard.
func (s *Service) listFirsts(ctx context.Context, req ListRequest) ([]*Score, error) {
	// firsts are rare; walking the user's bests suffices at this scale
	bests, err := s.db.Bests().ListByUser(ctx, req.UserID, req.Ruleset, req.Limit+req.Offset)
	if err != nil {
		return nil, err
	}
	firsts := make([]int64, 0, len(bests))
	for _, best := range bests {
		position, err := s.db.Bests().Position(ctx, best)
		if err != nil {
			return nil, err
		}
		if position == 1 {
			firsts = append(firsts, best.ScoreID)
		}
	}
	if req.Offset >= len(firsts) {
		return []*Score{}, nil
	}
	firsts = firsts[req.Offset:]
	if len(firsts) > req.Limit {
		firsts = firsts[:req.Limit]
	}
	return s.db.Scores().ListByIDs(ctx, firsts)
}

// BeatmapUserScore returns the viewer's best on a beatmap together with
// its global position.
func (s *Service) BeatmapUserScore(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) (best *BestScore, position int64, err error) {
	defer mon.Task()(&ctx)(&err)

	best, err = s.db.Bests().Get(ctx, userID, beatmapID, ruleset)
	if err != nil {
		return nil, 0, ErrNotFound.New("no best for user %d on beatmap %d", userID, beatmapID)
	}
	position, err = s.db.Bests().Position(ctx, best)
	if err != nil {
		return nil, 0, Error.Wrap(err)
	}
	return best, position, nil
}

// BeatmapUserScores returns every score the user set on one beatmap,
// best first.
func (s *Service) BeatmapUserScores(ctx context.Context, userID, beatmapID int64, ruleset rulesets.ID) (scores []*Score, err error) {
	defer mon.Task()(&ctx)(&err)
	scores, err = s.db.Scores().ListForUserBeatmap(ctx, userID, beatmapID, ruleset)
	return scores, Error.Wrap(err)
}

// DeleteStaleTokens drops reservations that were never redeemed. Run
// from the scheduler.
func (s *Service) DeleteStaleTokens(ctx context.Context, olderThan time.Duration) (deleted int64, err error) {
	defer mon.Task()(&ctx)(&err)
	deleted, err = s.db.Tokens().DeleteOlderThan(ctx, s.nowFn().Add(-olderThan))
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if deleted > 0 {
		s.log.Info("stale score tokens removed", zap.Int64("count", deleted))
	}
	return deleted, nil
}
