package entry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrStaleDashboard means the write is durable but the user's cached
// dashboard could not be dropped.
var ErrStaleDashboard = errors.New("dashboard cache invalidation failed")

const invalidateAttempts = 3

// Invalidator drops every cached aggregate for a user.
type Invalidator interface {
	InvalidateUserCache(ctx context.Context, userID uint64) error
}

// Service is the write path for entries. Every create or delete
// invalidates the user's cached dashboard before returning.
type Service struct {
	Store       Store
	Invalidator Invalidator
	Logger      zerolog.Logger

	retryWait time.Duration
}

func NewService(store Store, inv Invalidator, logger zerolog.Logger) *Service {
	return &Service{
		Store:       store,
		Invalidator: inv,
		Logger:      logger.With().Str("component", "entry").Logger(),
		retryWait:   50 * time.Millisecond,
	}
}

func (s *Service) Create(ctx context.Context, e *Entry) error {
	if e.UserID == 0 || strings.TrimSpace(e.MoodTag) == "" {
		return fmt.Errorf("entry requires user and mood")
	}
	if e.VideoRef != nil {
		return fmt.Errorf("entry video ref is set after creation only")
	}
	if len(e.Tags) == 0 {
		e.Tags = ExtractTags(e.Transcript)
	}
	if err := s.Store.Create(ctx, e); err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return s.invalidate(ctx, e.UserID)
}

func (s *Service) Get(ctx context.Context, userID, id uint64) (*Entry, error) {
	return s.Store.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID uint64, f Filter) ([]Entry, error) {
	return s.Store.Query(ctx, userID, f)
}

// Query satisfies the analytics entry source.
func (s *Service) Query(ctx context.Context, userID uint64, f Filter) ([]Entry, error) {
	return s.Store.Query(ctx, userID, f)
}

func (s *Service) Delete(ctx context.Context, userID, id uint64) error {
	if err := s.Store.Delete(ctx, userID, id); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// PatchVideoRef applies the single permitted post-insert update.
func (s *Service) PatchVideoRef(ctx context.Context, id uint64, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("empty video ref")
	}
	return s.Store.PatchVideoRef(ctx, id, ref)
}

// invalidate retries the cache delete a few times. When it still fails the
// write has happened and the caller gets ErrStaleDashboard.
func (s *Service) invalidate(ctx context.Context, userID uint64) error {
	if s.Invalidator == nil {
		return nil
	}
	var err error
	for attempt := 1; attempt <= invalidateAttempts; attempt++ {
		if err = s.Invalidator.InvalidateUserCache(ctx, userID); err == nil {
			return nil
		}
		s.Logger.Warn().Err(err).Uint64("user_id", userID).Int("attempt", attempt).Msg("dashboard cache invalidation failed")
		if attempt == invalidateAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStaleDashboard, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.retryWait):
		}
	}
	s.Logger.Error().Err(err).Uint64("user_id", userID).Msg("dashboard left stale")
	return fmt.Errorf("%w: %v", ErrStaleDashboard, err)
}
