package jobs

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeRetry
	outcomeRetryAfter
	outcomeFail
)

// Outcome tells the worker what to do with a handled job.
type Outcome struct {
	kind   outcomeKind
	after  time.Duration
	reason string
}

func Done() Outcome { return Outcome{kind: outcomeDone} }

// Retry reschedules with exponential backoff.
func Retry(reason string) Outcome { return Outcome{kind: outcomeRetry, reason: reason} }

// RetryAfter reschedules after a fixed delay. It still consumes an attempt.
func RetryAfter(d time.Duration, reason string) Outcome {
	return Outcome{kind: outcomeRetryAfter, after: d, reason: reason}
}

func Fail(reason string) Outcome { return Outcome{kind: outcomeFail, reason: reason} }

type Handler func(ctx context.Context, job *Job) Outcome

type Worker struct {
	ID       string
	Store    Store
	Interval time.Duration
	Logger   zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	now      func() time.Time
}

func NewWorker(id string, store Store, logger zerolog.Logger) *Worker {
	return &Worker{
		ID:       id,
		Store:    store,
		Interval: 800 * time.Millisecond,
		Logger:   logger.With().Str("component", "jobs").Str("worker", id).Logger(),
		handlers: make(map[string]Handler),
		now:      time.Now,
	}
}

// Handle registers h for jobType, replacing any earlier handler.
func (w *Worker) Handle(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.Logger.Error().Err(err).Msg("worker claim error")
			}
		}
	}
}

// RunOnce claims and handles at most one due job. It reports whether a job
// was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.Store.Claim(ctx, w.ID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	w.mu.RLock()
	h, ok := w.handlers[job.Type]
	w.mu.RUnlock()
	if !ok {
		w.finish(ctx, job, Fail("unknown job type"))
		return
	}

	var out Outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				out = Retry(fmt.Sprintf("handler panic: %v", r))
			}
		}()
		out = h(ctx, job)
	}()
	w.finish(ctx, job, out)
}

func (w *Worker) finish(ctx context.Context, job *Job, out Outcome) {
	log := w.Logger.With().Uint64("job_id", job.ID).Str("type", job.Type).Logger()

	var err error
	switch out.kind {
	case outcomeDone:
		err = w.Store.MarkDone(ctx, job.ID)
	case outcomeFail:
		log.Warn().Str("reason", out.reason).Msg("job failed")
		err = w.Store.MarkFailed(ctx, job.ID, out.reason)
	case outcomeRetry, outcomeRetryAfter:
		attempts := job.Attempts + 1
		if job.LastAttempt() {
			log.Warn().Int("attempts", attempts).Str("reason", out.reason).Msg("job attempts exhausted")
			err = w.Store.MarkFailed(ctx, job.ID, out.reason)
			break
		}
		delay := out.after
		if out.kind == outcomeRetry {
			sec := math.Min(math.Pow(2, float64(attempts)), 600)
			delay = time.Duration(sec) * time.Second
		}
		err = w.Store.RetryLater(ctx, job.ID, attempts, w.now().Add(delay), out.reason)
	}
	if err != nil {
		log.Error().Err(err).Msg("job state update failed")
	}
}
