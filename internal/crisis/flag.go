package crisis

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Flag records a high-severity transcript for follow-up.
type Flag struct {
	ID             uint64         `gorm:"primaryKey"`
	UserID         uint64         `gorm:"index;not null"`
	SessionID      string         `gorm:"type:text;not null"`
	SeverityScore  int            `gorm:"not null"`
	Keywords       pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	ContextSnippet string         `gorm:"type:text;not null;default:''"`
	CreatedAt      time.Time      `gorm:"index;not null;default:now()"`
}

func (Flag) TableName() string { return "crisis_flags" }

type FlagStore interface {
	CreateFlag(ctx context.Context, f *Flag) error
}

type GormFlagStore struct {
	DB *gorm.DB
}

func (s *GormFlagStore) CreateFlag(ctx context.Context, f *Flag) error {
	return s.DB.WithContext(ctx).Create(f).Error
}

// FlagRecorder persists flags off the caller's path. Write failures are
// logged and never reach the pipeline.
type FlagRecorder struct {
	store   FlagStore
	gate    *Gate
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewFlagRecorder(store FlagStore, gate *Gate, logger zerolog.Logger) *FlagRecorder {
	return &FlagRecorder{
		store:   store,
		gate:    gate,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// Record dispatches a flag write when the assessment warrants one and
// reports whether it did. It never blocks on the store.
func (r *FlagRecorder) Record(ctx context.Context, userID uint64, sessionID string, a Assessment) bool {
	if r == nil || r.store == nil || !r.gate.ShouldFlag(a) {
		return false
	}

	f := &Flag{
		UserID:         userID,
		SessionID:      sessionID,
		SeverityScore:  a.Severity,
		Keywords:       pq.StringArray(a.Keywords),
		ContextSnippet: a.Snippet,
		CreatedAt:      a.AssessedAt,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if err := r.store.CreateFlag(writeCtx, f); err != nil {
			r.logger.Error().Err(err).Uint64("user_id", userID).Int("severity", a.Severity).Msg("crisis flag write failed")
			return
		}
		r.logger.Warn().Uint64("user_id", userID).Int("severity", a.Severity).Strs("keywords", a.Keywords).Msg("crisis flag recorded")
	}()
	return true
}

// Wait blocks until in-flight flag writes finish.
func (r *FlagRecorder) Wait() {
	if r != nil {
		r.wg.Wait()
	}
}
