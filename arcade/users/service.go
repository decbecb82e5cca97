// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package users holds player accounts, per-ruleset statistics and the
// relationships between players.
package users

import (
	"context"
	"io"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade/eventhub"
	"tempora.dev/tempora/arcade/rulesets"
	"tempora.dev/tempora/storage"
)

var mon = monkit.Package()

var (
	// Error is the default users service error class.
	Error = errs.Class("users service")
	// ErrValidation is returned when input fails semantic checks.
	ErrValidation = errs.Class("validation")
	// ErrUnauthorized is returned when the caller lacks credentials.
	ErrUnauthorized = errs.Class("unauthorized")
	// ErrNotFound is returned when the requested user is absent.
	ErrNotFound = errs.Class("user not found")
	// ErrUsernameTaken is returned on username conflicts.
	ErrUsernameTaken = errs.Class("username taken")
	// ErrEmailTaken is returned on email conflicts.
	ErrEmailTaken = errs.Class("email taken")
)

// blob namespaces for user provided images
const (
	avatarNamespace = "avatars"
	coverNamespace  = "covers"
)

// DB contains the user related tables.
//
// architecture: Database
type DB interface {
	// Users returns the users table.
	Users() Users
	// Statistics returns the per-ruleset statistics table.
	Statistics() Statistics
	// Relationships returns the relationships table.
	Relationships() Relationships
	// Teams returns the teams table.
	Teams() Teams
}

// CountryResolver resolves a client IP to an ISO 3166-1 alpha-2 code.
type CountryResolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// StaticCountryResolver always answers with a fixed country.
type StaticCountryResolver struct {
	Code string
}

// Country implements CountryResolver.
func (r StaticCountryResolver) Country(ctx context.Context, ip string) (string, error) {
	if r.Code == "" {
		return "XX", nil
	}
	return r.Code, nil
}

// PageRenderer renders raw profile-page markup to safe HTML.
type PageRenderer interface {
	Render(ctx context.Context, raw string) (string, error)
}

// PassthroughRenderer keeps the raw markup untouched.
type PassthroughRenderer struct{}

// Render implements PageRenderer.
func (PassthroughRenderer) Render(ctx context.Context, raw string) (string, error) {
	return raw, nil
}

// RankHistories provides daily global-rank snapshots for profile pages.
type RankHistories interface {
	// Recent returns up to days of global ranks, oldest first.
	Recent(ctx context.Context, userID int64, ruleset rulesets.ID, days int) ([]int64, error)
}

// Config holds users service configuration.
type Config struct {
	ProfileCacheTTL time.Duration `help:"how long composed profiles stay cached" default:"5m" testDefault:"1m"`
	PageMaxLength   int           `help:"maximum profile page length in characters" default:"20000"`
	RankHistoryDays int           `help:"days of rank history attached to profiles" default:"90"`
}

// Service is handling player account related logic.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	store  DB
	cache  *Cache
	events *eventhub.Hub
	blobs  storage.Blobs

	renderer      PageRenderer
	rankHistories RankHistories

	config Config
}

// NewService returns a new users service.
func NewService(log *zap.Logger, store DB, cache *Cache, events *eventhub.Hub, blobs storage.Blobs, renderer PageRenderer, rankHistories RankHistories, config Config) (*Service, error) {
	if store == nil {
		return nil, errs.New("store can't be nil")
	}
	if events == nil {
		return nil, errs.New("events can't be nil")
	}
	return &Service{
		log:           log,
		store:         store,
		cache:         cache,
		events:        events,
		blobs:         blobs,
		renderer:      renderer,
		rankHistories: rankHistories,
		config:        config,
	}, nil
}

// Get returns the user by id.
func (s *Service) Get(ctx context.Context, id int64) (u *User, err error) {
	defer mon.Task()(&ctx)(&err)
	u, err = s.store.Users().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByUsername returns the user by exact username.
func (s *Service) GetByUsername(ctx context.Context, username string) (u *User, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Users().GetByUsername(ctx, username)
}

// Profile is the composed read-model for the public user endpoints.
type Profile struct {
	User        *User           `json:"user"`
	Statistics  *UserStatistics `json:"statistics"`
	RankHistory []int64         `json:"rank_history,omitempty"`
}

// Profile assembles the cached profile of a user for a ruleset. A zero
// ruleset argument with useDefault selects the user's active mode.
func (s *Service) Profile(ctx context.Context, userID int64, ruleset rulesets.ID, useDefault bool) (profile *Profile, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.cache != nil {
		if cached, ok := s.cache.GetProfile(ctx, userID, ruleset, useDefault); ok {
			mon.Event("user_profile_cache_hit")
			return cached, nil
		}
		mon.Event("user_profile_cache_miss")
	}

	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if useDefault {
		ruleset = user.PlayMode
	}
	if !ruleset.Valid() {
		return nil, ErrValidation.New("unknown ruleset %d", int(ruleset))
	}

	stats, err := s.store.Statistics().Get(ctx, userID, ruleset)
	if err != nil {
		return nil, err
	}

	profile = &Profile{User: user, Statistics: stats}
	if s.rankHistories != nil {
		history, err := s.rankHistories.Recent(ctx, userID, ruleset, s.config.RankHistoryDays)
		if err != nil {
			s.log.Warn("failed to load rank history", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			profile.RankHistory = history
		}
	}

	if s.cache != nil {
		s.cache.SetProfile(ctx, userID, ruleset, useDefault, profile)
	}
	return profile, nil
}

// TouchLastVisit bumps the last-visit timestamp; failures are logged only.
func (s *Service) TouchLastVisit(ctx context.Context, userID int64) {
	var err error
	defer mon.Task()(&ctx)(&err)

	if err = s.store.Users().UpdateLastVisit(ctx, userID, time.Now().UTC()); err != nil {
		s.log.Warn("failed to update last visit", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Rename changes the username, recording the old name.
func (s *Service) Rename(ctx context.Context, userID int64, newUsername string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := ValidateUsername(newUsername); err != nil {
		return err
	}

	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.Username == newUsername {
		return nil
	}

	if existing, err := s.store.Users().GetByUsername(ctx, newUsername); err == nil && existing.ID != userID {
		return ErrUsernameTaken.New("%q", newUsername)
	}

	previous := append(append([]string{}, user.PreviousUsernames...), user.Username)
	// keep each prior name once, newest occurrence last
	previous = dedupeKeepLast(previous)

	err = s.store.Users().Update(ctx, userID, UpdateUserRequest{
		Username:          &newUsername,
		PreviousUsernames: &previous,
	})
	if err != nil {
		return err
	}

	s.events.Publish(ctx, eventhub.KindUsernameChanged, eventhub.UsernameChanged{
		UserID: userID,
		From:   user.Username,
		To:     newUsername,
	})
	s.invalidate(ctx, userID)
	return nil
}

// PreferencesRequest carries optional profile customization updates.
type PreferencesRequest struct {
	PlayMode     *rulesets.ID
	ProfileColor **string
	ProfileHue   **int
	PageRaw      *string
}

// UpdatePreferences applies profile customization.
func (s *Service) UpdatePreferences(ctx context.Context, userID int64, req PreferencesRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	update := UpdateUserRequest{
		ProfileColor: req.ProfileColor,
		ProfileHue:   req.ProfileHue,
	}
	if req.PlayMode != nil {
		if !req.PlayMode.Valid() {
			return ErrValidation.New("unknown ruleset %d", int(*req.PlayMode))
		}
		update.PlayMode = req.PlayMode
	}
	if req.PageRaw != nil {
		if len(*req.PageRaw) > s.config.PageMaxLength {
			return ErrValidation.New("page exceeds %d characters", s.config.PageMaxLength)
		}
		rendered := *req.PageRaw
		if s.renderer != nil {
			rendered, err = s.renderer.Render(ctx, *req.PageRaw)
			if err != nil {
				return Error.Wrap(err)
			}
		}
		update.PageRaw = req.PageRaw
		update.PageHTML = &rendered
	}

	if err := s.store.Users().Update(ctx, userID, update); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// SetAvatar stores a new avatar image.
func (s *Service) SetAvatar(ctx context.Context, userID int64, r io.Reader) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := s.storeBlob(ctx, avatarNamespace, userID, r); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// SetCover stores a new profile cover image.
func (s *Service) SetCover(ctx context.Context, userID int64, r io.Reader) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := s.storeBlob(ctx, coverNamespace, userID, r); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// OpenAvatar opens the stored avatar image for reading.
func (s *Service) OpenAvatar(ctx context.Context, userID int64) (r storage.BlobReader, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.blobs.Open(ctx, storage.BlobRef{Namespace: avatarNamespace, Key: itoa(userID)})
}

func (s *Service) storeBlob(ctx context.Context, namespace string, userID int64, r io.Reader) error {
	if s.blobs == nil {
		return Error.New("blob storage not configured")
	}
	writer, err := s.blobs.Create(ctx, storage.BlobRef{Namespace: namespace, Key: itoa(userID)})
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := io.Copy(writer, r); err != nil {
		return errs.Combine(Error.Wrap(err), writer.Cancel())
	}
	return Error.Wrap(writer.Commit())
}

// AddFriend creates a friend edge from the caller.
func (s *Service) AddFriend(ctx context.Context, userID, targetID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if userID == targetID {
		return ErrValidation.New("cannot friend yourself")
	}
	if _, err := s.store.Users().Get(ctx, targetID); err != nil {
		return err
	}
	return s.store.Relationships().Upsert(ctx, userID, targetID, RelationFriend)
}

// RemoveFriend deletes a friend edge.
func (s *Service) RemoveFriend(ctx context.Context, userID, targetID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Relationships().Delete(ctx, userID, targetID, RelationFriend)
}

// Block creates a block edge, replacing any friendship.
func (s *Service) Block(ctx context.Context, userID, targetID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if userID == targetID {
		return ErrValidation.New("cannot block yourself")
	}
	return s.store.Relationships().Upsert(ctx, userID, targetID, RelationBlock)
}

// Unblock deletes a block edge.
func (s *Service) Unblock(ctx context.Context, userID, targetID int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Relationships().Delete(ctx, userID, targetID, RelationBlock)
}

// Friends lists the caller's friend edges.
func (s *Service) Friends(ctx context.Context, userID int64) (friends []*Relationship, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Relationships().List(ctx, userID, RelationFriend)
}

// Blocks lists the caller's block edges.
func (s *Service) Blocks(ctx context.Context, userID int64) (blocks []*Relationship, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Relationships().List(ctx, userID, RelationBlock)
}

// CheckRelation returns the edge between two users, or nil.
func (s *Service) CheckRelation(ctx context.Context, userID, targetID int64) (rel *Relationship, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.store.Relationships().Get(ctx, userID, targetID)
}

// PreloadProfiles composes and caches the profiles of the top players
// per ruleset so the hottest reads never miss. Run by the scheduler;
// failures on individual profiles are logged and skipped.
func (s *Service) PreloadProfiles(ctx context.Context, perRuleset int) (warmed int, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.cache == nil || perRuleset <= 0 {
		return 0, nil
	}
	for _, ruleset := range rulesets.All() {
		rows, err := s.store.Statistics().TopByPP(ctx, ruleset, perRuleset, 0)
		if err != nil {
			return warmed, Error.Wrap(err)
		}
		for _, row := range rows {
			if _, err := s.Profile(ctx, row.UserID, ruleset, false); err != nil {
				s.log.Warn("profile preload failed",
					zap.Int64("user_id", row.UserID),
					zap.Stringer("ruleset", ruleset),
					zap.Error(err))
				continue
			}
			warmed++
		}
	}
	return warmed, nil
}

// InvalidateCache drops the user's cached profile variants. Exposed for
// the score pipeline, which must refresh profiles after processing.
func (s *Service) InvalidateCache(ctx context.Context, userID int64) {
	s.invalidate(ctx, userID)
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.log.Warn("failed to invalidate user cache", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func dedupeKeepLast(names []string) []string {
	lastIndex := make(map[string]int, len(names))
	for i, name := range names {
		lastIndex[name] = i
	}
	out := names[:0]
	for i, name := range names {
		if lastIndex[name] == i {
			out = append(out, name)
		}
	}
	return out
}
