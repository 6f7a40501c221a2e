// Package scheduler runs periodic maintenance: expired dashboard cache
// entries, idle check-in sessions and finished jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Task is one maintenance step. It reports how many items it removed.
type Task func(ctx context.Context) (int64, error)

type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers task under a cron spec such as "@every 1m" or "0 3 * * *".
func (s *Scheduler) Add(name, spec string, task Task) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, task) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) run(name string, task Task) {
	started := time.Now()
	n, err := task(s.ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("task", name).Msg("maintenance task failed")
		return
	}
	if n > 0 {
		s.logger.Info().Str("task", name).Int64("removed", n).Dur("took", time.Since(started)).Msg("maintenance task finished")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
