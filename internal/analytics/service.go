package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"voicejournal/internal/entry"
	"voicejournal/internal/metrics"
)

const DefaultTTL = 5 * time.Minute

// EntrySource reads a user's raw entries.
type EntrySource interface {
	Query(ctx context.Context, userID uint64, f entry.Filter) ([]entry.Entry, error)
}

type Service struct {
	source EntrySource
	cache  Cache
	ttl    time.Duration
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(source EntrySource, cache Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		source: source,
		cache:  cache,
		ttl:    ttl,
		loc:    time.UTC,
		now:    time.Now,
		logger: logger.With().Str("component", "analytics").Logger(),
	}
}

// GetDashboardData serves a cached dashboard until it expires and
// recomputes it from raw entries otherwise.
func (s *Service) GetDashboardData(ctx context.Context, userID uint64) (*Dashboard, error) {
	key := DashboardKey(userID)
	now := s.now()

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("user_id", userID).Msg("dashboard cache read failed")
	}
	if ok && now.Before(cached.ExpiresAt) {
		metrics.DashboardCache.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.DashboardCache.WithLabelValues("miss").Inc()

	entries, err := s.source.Query(ctx, userID, entry.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	d := Compute(entries, now, s.loc)
	d.ExpiresAt = now.Add(s.ttl)
	if err := s.cache.Set(ctx, key, &d, s.ttl); err != nil {
		s.logger.Warn().Err(err).Uint64("user_id", userID).Msg("dashboard cache write failed")
	}
	return &d, nil
}

// InvalidateUserCache deletes every cached aggregate for userID. It never
// recomputes.
func (s *Service) InvalidateUserCache(ctx context.Context, userID uint64) error {
	if err := s.cache.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("invalidate dashboard cache: %w", err)
	}
	s.logger.Debug().Uint64("user_id", userID).Msg("dashboard cache invalidated")
	return nil
}
