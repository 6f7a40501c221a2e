package video

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicejournal/internal/jobs"
	"voicejournal/internal/metrics"
)

var (
	ErrNotStarted   = errors.New("video coordinator not started")
	ErrShuttingDown = errors.New("video coordinator shutting down")
)

// JobTypePoll is the durable job type for detached status polls.
const JobTypePoll = "VIDEO_POLL"

// Mode bounds one polling loop.
type Mode struct {
	Name        string
	Interval    time.Duration
	MaxAttempts int
}

var (
	// Inline polls while the session is still open.
	Inline = Mode{Name: "inline", Interval: 4 * time.Second, MaxAttempts: 15}
	// Detached polls after the session has completed.
	Detached = Mode{Name: "detached", Interval: 30 * time.Second, MaxAttempts: 20}
)

func ModeByName(name string) (Mode, bool) {
	switch name {
	case Inline.Name:
		return Inline, true
	case Detached.Name, "":
		return Detached, true
	}
	return Mode{}, false
}

// Patcher applies the single permitted post-insert update to an entry.
type Patcher interface {
	PatchVideoRef(ctx context.Context, entryID uint64, ref string) error
}

type Request struct {
	EntryID   uint64
	UserID    uint64
	Script    string
	PersonaID string
	Mode      Mode
}

type pollPayload struct {
	JobID    string `json:"job_id"`
	EntryID  uint64 `json:"entry_id"`
	Interval int64  `json:"interval_ms"`
}

type Option func(*Coordinator)

// WithQueue persists detached polls so they survive restarts.
func WithQueue(q jobs.Queue) Option {
	return func(c *Coordinator) { c.queue = q }
}

func WithDefaultMode(m Mode) Option {
	return func(c *Coordinator) { c.mode = m }
}

func WithPersona(id string) Option {
	return func(c *Coordinator) { c.persona = id }
}

// Coordinator runs video polls off the request path. Each spawned poll is
// independent; Shutdown cancels in-process polls and waits for them.
type Coordinator struct {
	provider Provider
	patcher  Patcher
	queue    jobs.Queue
	mode     Mode
	persona  string
	logger   zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	stopping bool
	wg       sync.WaitGroup
}

func NewCoordinator(provider Provider, patcher Patcher, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		provider: provider,
		patcher:  patcher,
		mode:     Detached,
		logger:   logger.With().Str("component", "video").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start binds spawned polls to ctx. Cancelling ctx stops them.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
}

// Spawn submits the script and polls in the background. It returns at once.
func (c *Coordinator) Spawn(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return ErrNotStarted
	}
	if c.stopping {
		return ErrShuttingDown
	}

	if req.Mode.MaxAttempts <= 0 {
		req.Mode = c.mode
	}
	if req.PersonaID == "" {
		req.PersonaID = c.persona
	}

	ctx := c.ctx
	c.wg.Add(1)
	metrics.ActiveVideoPolls.Inc()
	go func() {
		defer c.wg.Done()
		defer metrics.ActiveVideoPolls.Dec()
		c.run(ctx, req)
	}()
	return nil
}

func (c *Coordinator) run(ctx context.Context, req Request) {
	log := c.logger.With().Uint64("entry_id", req.EntryID).Str("mode", req.Mode.Name).Logger()

	job, err := c.provider.Submit(ctx, req.Script, req.PersonaID)
	if err != nil {
		// the submission itself is never retried
		metrics.VideoOutcomes.WithLabelValues("submit_error").Inc()
		log.Warn().Err(err).Msg("video submission failed")
		return
	}
	log = log.With().Str("job_id", job.ID).Logger()

	if job.Status.Terminal() {
		c.finish(ctx, log, req.EntryID, job)
		return
	}

	if req.Mode.Name == Detached.Name && c.queue != nil {
		err := c.queue.Enqueue(ctx, req.UserID, JobTypePoll, pollPayload{
			JobID:    job.ID,
			EntryID:  req.EntryID,
			Interval: req.Mode.Interval.Milliseconds(),
		}, time.Now().Add(req.Mode.Interval), req.Mode.MaxAttempts)
		if err == nil {
			log.Debug().Msg("video poll queued")
			return
		}
		log.Warn().Err(err).Msg("queueing video poll failed, polling in process")
	}

	c.poll(ctx, log, req.EntryID, job.ID, req.Mode)
}

func (c *Coordinator) poll(ctx context.Context, log zerolog.Logger, entryID uint64, jobID string, mode Mode) {
	timer := time.NewTimer(mode.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= mode.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Debug().Int("attempt", attempt).Msg("video poll cancelled")
			return
		case <-timer.C:
		}

		finished, err := c.PollOnce(ctx, entryID, jobID)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("video status check failed")
		}
		if finished {
			return
		}
		timer.Reset(mode.Interval)
	}

	metrics.VideoOutcomes.WithLabelValues("exhausted").Inc()
	log.Info().Int("attempts", mode.MaxAttempts).Msg("video poll attempts exhausted")
}

// PollOnce checks a job once and patches the entry when it completed. It
// reports whether the job reached a terminal state.
func (c *Coordinator) PollOnce(ctx context.Context, entryID uint64, jobID string) (bool, error) {
	job, err := c.provider.Status(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	if !job.Status.Terminal() {
		return false, nil
	}
	log := c.logger.With().Uint64("entry_id", entryID).Str("job_id", jobID).Logger()
	return true, c.finish(ctx, log, entryID, job)
}

func (c *Coordinator) finish(ctx context.Context, log zerolog.Logger, entryID uint64, job Job) error {
	if job.Status == StatusFailed {
		metrics.VideoOutcomes.WithLabelValues("failed").Inc()
		log.Info().Msg("video generation failed")
		return nil
	}
	if job.DownloadURL == "" {
		metrics.VideoOutcomes.WithLabelValues("failed").Inc()
		log.Warn().Msg("video completed without a deliverable")
		return nil
	}

	if err := c.patcher.PatchVideoRef(ctx, entryID, job.DownloadURL); err != nil {
		metrics.VideoOutcomes.WithLabelValues("patch_error").Inc()
		log.Error().Err(err).Msg("video ref patch failed")
		return err
	}
	metrics.VideoOutcomes.WithLabelValues("completed").Inc()
	log.Info().Msg("video ref patched")
	return nil
}

// HandleJob polls one durable VIDEO_POLL job.
func (c *Coordinator) HandleJob(ctx context.Context, job *jobs.Job) jobs.Outcome {
	var p pollPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.JobID == "" {
		return jobs.Fail("bad payload")
	}
	interval := time.Duration(p.Interval) * time.Millisecond
	if interval <= 0 {
		interval = Detached.Interval
	}

	finished, err := c.PollOnce(ctx, p.EntryID, p.JobID)
	if finished {
		// a failed patch is final too; the ref stays null
		return jobs.Done()
	}

	reason := "pending"
	if err != nil {
		reason = err.Error()
	}
	if job.LastAttempt() {
		metrics.VideoOutcomes.WithLabelValues("exhausted").Inc()
		return jobs.Fail("attempts exhausted: " + reason)
	}
	return jobs.RetryAfter(interval, reason)
}

// Shutdown stops accepting polls, cancels running ones and waits for them
// or for ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.stopping = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every spawned poll has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
