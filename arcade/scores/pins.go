// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package scores

import (
	"context"
)

// maxPinned bounds how many scores one user may pin per ruleset.
const maxPinned = 10

// Pin appends the score to the end of the owner's pin list.
func (s *Service) Pin(ctx context.Context, userID, scoreID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	score, err := s.db.Scores().Get(ctx, scoreID)
	if err != nil {
		return ErrNotFound.New("score %d", scoreID)
	}
	if score.UserID != userID {
		return ErrTokenMismatch.New("score %d belongs to another user", scoreID)
	}
	if score.PinnedOrder > 0 {
		return nil
	}

	pinned, err := s.db.Scores().ListPinned(ctx, userID, score.Ruleset)
	if err != nil {
		return Error.Wrap(err)
	}
	if len(pinned) >= maxPinned {
		return ErrValidation.New("pin limit of %d reached", maxPinned)
	}

	if err := s.db.Scores().SetPinOrder(ctx, scoreID, len(pinned)+1); err != nil {
		return Error.Wrap(err)
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// Unpin removes the score from the pin list and closes the gap so the
// remaining orders stay dense.
func (s *Service) Unpin(ctx context.Context, userID, scoreID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	score, err := s.db.Scores().Get(ctx, scoreID)
	if err != nil {
		return ErrNotFound.New("score %d", scoreID)
	}
	if score.UserID != userID {
		return ErrTokenMismatch.New("score %d belongs to another user", scoreID)
	}
	if score.PinnedOrder == 0 {
		return nil
	}

	pinned, err := s.db.Scores().ListPinned(ctx, userID, score.Ruleset)
	if err != nil {
		return Error.Wrap(err)
	}
	if err := s.db.Scores().SetPinOrder(ctx, scoreID, 0); err != nil {
		return Error.Wrap(err)
	}
	order := 1
	for _, other := range pinned {
		if other.ID == scoreID {
			continue
		}
		if other.PinnedOrder != order {
			if err := s.db.Scores().SetPinOrder(ctx, other.ID, order); err != nil {
				return Error.Wrap(err)
			}
		}
		order++
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// ReorderPin moves a pinned score to sit after another pinned score, or
// to the front when afterScoreID is zero. The whole list is renumbered
// so orders stay a dense 1..n sequence.
func (s *Service) ReorderPin(ctx context.Context, userID, scoreID, afterScoreID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	score, err := s.db.Scores().Get(ctx, scoreID)
	if err != nil {
		return ErrNotFound.New("score %d", scoreID)
	}
	if score.UserID != userID {
		return ErrTokenMismatch.New("score %d belongs to another user", scoreID)
	}
	if score.PinnedOrder == 0 {
		return ErrValidation.New("score %d is not pinned", scoreID)
	}

	pinned, err := s.db.Scores().ListPinned(ctx, userID, score.Ruleset)
	if err != nil {
		return Error.Wrap(err)
	}

	reordered := make([]*Score, 0, len(pinned))
	if afterScoreID == 0 {
		reordered = append(reordered, score)
	}
	found := afterScoreID == 0
	for _, other := range pinned {
		if other.ID == scoreID {
			continue
		}
		reordered = append(reordered, other)
		if other.ID == afterScoreID {
			reordered = append(reordered, score)
			found = true
		}
	}
	if !found {
		return ErrValidation.New("score %d is not pinned", afterScoreID)
	}

	for i, other := range reordered {
		if other.PinnedOrder != i+1 {
			if err := s.db.Scores().SetPinOrder(ctx, other.ID, i+1); err != nil {
				return Error.Wrap(err)
			}
		}
	}
	s.invalidateUser(ctx, userID)
	return nil
}
