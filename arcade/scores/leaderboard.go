// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/rulesets"
)

// LeaderboardType selects the population a beatmap leaderboard ranks.
type LeaderboardType string

// Leaderboard populations.
const (
	LeaderboardGlobal  LeaderboardType = "global"
	LeaderboardCountry LeaderboardType = "country"
	LeaderboardFriends LeaderboardType = "friend"
	LeaderboardTeam    LeaderboardType = "team"
)

// Valid reports whether the type is known.
func (t LeaderboardType) Valid() bool {
	switch t {
	case LeaderboardGlobal, LeaderboardCountry, LeaderboardFriends, LeaderboardTeam:
		return true
	}
	return false
}

// modsFilterOverfetch is how many extra rows are pulled when a mods
// filter is applied, since filtering happens after the query.
const modsFilterOverfetch = 10

// LeaderboardRequest parameterizes a beatmap leaderboard page.
type LeaderboardRequest struct {
	BeatmapID int64
	Ruleset   rulesets.ID
	Type      LeaderboardType

	// Mods restricts entries to an exact mod combination; nil disables
	// the filter.
	Mods rulesets.Mods

	// ViewerID selects the player whose own row is attached, and the
	// subject of friend and team population lookups.
	ViewerID int64
}

// LeaderboardEntry is one row of a beatmap leaderboard.
type LeaderboardEntry struct {
	Position int64     `json:"position"`
	Username string    `json:"username"`
	Country  string    `json:"country_code"`
	Best     BestScore `json:"score"`
}

// Leaderboard is a beatmap leaderboard page plus the viewer's own row.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"scores"`

	// Viewer is the caller's row with its global position, also when it
	// falls outside the page. Nil when the caller has no best.
	Viewer *LeaderboardEntry `json:"user_score,omitempty"`
}

func leaderboardKey(req LeaderboardRequest) string {
	return fmt.Sprintf("beatmap:%d:leaderboard:%d:%s:%s",
		req.BeatmapID, int(req.Ruleset), req.Type, req.Mods.Fingerprint())
}

// Leaderboard serves a beatmap leaderboard page. Global and country
// pages are cached; friend and team pages depend on the viewer and are
// always computed.
func (s *Service) Leaderboard(ctx context.Context, req LeaderboardRequest) (board *Leaderboard, err error) {
	defer mon.Task()(&ctx)(&err)

	if req.Type == "" {
		req.Type = LeaderboardGlobal
	}
	if !req.Type.Valid() {
		return nil, ErrValidation.New("unknown leaderboard type %q", req.Type)
	}

	cacheable := s.cache != nil && (req.Type == LeaderboardGlobal || req.Type == LeaderboardCountry)
	key := leaderboardKey(req)
	if req.Type == LeaderboardCountry {
		viewer, err := s.userdb.Users().Get(ctx, req.ViewerID)
		if err != nil {
			return nil, ErrNotFound.New("user %d", req.ViewerID)
		}
		key += ":" + viewer.Country
	}

	var cached Leaderboard
	if cacheable {
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			mon.Event("leaderboard_cache_hit")
			s.attachViewer(ctx, req, &cached)
			return &cached, nil
		}
	}

	rows, err := s.fetchRows(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Mods != nil {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Mods.Equal(req.Mods) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
		if len(rows) > s.config.LeaderboardTop {
			rows = rows[:s.config.LeaderboardTop]
		}
	}

	board = &Leaderboard{Entries: make([]LeaderboardEntry, 0, len(rows))}
	names, countries := s.resolvePlayers(ctx, rows)
	for i, row := range rows {
		board.Entries = append(board.Entries, LeaderboardEntry{
			Position: int64(i + 1),
			Username: names[row.UserID],
			Country:  countries[row.UserID],
			Best:     *row,
		})
	}

	if cacheable {
		if err := s.cache.SetJSON(ctx, key, board, s.config.ScoresCacheTTL); err != nil {
			s.log.Warn("leaderboard cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	s.attachViewer(ctx, req, board)
	return board, nil
}

// fetchRows pulls the raw projection page for the requested population.
func (s *Service) fetchRows(ctx context.Context, req LeaderboardRequest) (_ []*BestScore, err error) {
	limit := s.config.LeaderboardTop
	if req.Mods != nil {
		limit *= modsFilterOverfetch
	}

	switch req.Type {
	case LeaderboardCountry:
		viewer, err := s.userdb.Users().Get(ctx, req.ViewerID)
		if err != nil {
			return nil, ErrNotFound.New("user %d", req.ViewerID)
		}
		return s.db.Bests().TopByCountry(ctx, req.BeatmapID, req.Ruleset, viewer.Country, limit)

	case LeaderboardFriends:
		friendIDs, err := s.userdb.Relationships().FriendIDs(ctx, req.ViewerID)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		// the viewer competes on their own friend board
		friendIDs = append(friendIDs, req.ViewerID)
		return s.db.Bests().TopByUsers(ctx, req.BeatmapID, req.Ruleset, friendIDs, limit)

	case LeaderboardTeam:
		viewer, err := s.userdb.Users().Get(ctx, req.ViewerID)
		if err != nil {
			return nil, ErrNotFound.New("user %d", req.ViewerID)
		}
		if viewer.TeamID == nil {
			return nil, ErrValidation.New("user %d has no team", req.ViewerID)
		}
		memberIDs, err := s.userdb.Teams().MemberIDs(ctx, *viewer.TeamID)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return s.db.Bests().TopByUsers(ctx, req.BeatmapID, req.Ruleset, memberIDs, limit)

	default:
		return s.db.Bests().Top(ctx, req.BeatmapID, req.Ruleset, limit)
	}
}

// attachViewer fills Board.Viewer with the caller's best and its global
// position.
func (s *Service) attachViewer(ctx context.Context, req LeaderboardRequest, board *Leaderboard) {
	if req.ViewerID == 0 {
		return
	}
	best, err := s.db.Bests().Get(ctx, req.ViewerID, req.BeatmapID, req.Ruleset)
	if err != nil {
		return
	}
	if req.Mods != nil && !best.Mods.Equal(req.Mods) {
		return
	}
	position, err := s.db.Bests().Position(ctx, best)
	if err != nil {
		s.log.Warn("leaderboard position failed", zap.Int64("user_id", req.ViewerID), zap.Error(err))
		return
	}
	user, err := s.userdb.Users().Get(ctx, req.ViewerID)
	if err != nil {
		return
	}
	board.Viewer = &LeaderboardEntry{
		Position: position,
		Username: user.Username,
		Country:  user.Country,
		Best:     *best,
	}
}

// resolvePlayers batch-loads usernames and countries for the page.
func (s *Service) resolvePlayers(ctx context.Context, rows []*BestScore) (names, countries map[int64]string) {
	names = make(map[int64]string, len(rows))
	countries = make(map[int64]string, len(rows))
	if len(rows) == 0 {
		return names, countries
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	players, err := s.userdb.Users().ListByIDs(ctx, ids)
	if err != nil {
		s.log.Warn("leaderboard player lookup failed", zap.Error(err))
		return names, countries
	}
	for _, player := range players {
		names[player.ID] = player.Username
		countries[player.ID] = player.Country
	}
	return names, countries
}

func (s *Service) invalidateLeaderboard(ctx context.Context, beatmapID int64, ruleset rulesets.ID) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("beatmap:%d:leaderboard:%d:*", beatmapID, int(ruleset))
	if err := s.cache.DeleteMatching(ctx, pattern); err != nil {
		s.log.Warn("leaderboard cache invalidation failed", zap.Int64("beatmap_id", beatmapID), zap.Error(err))
	}
}
