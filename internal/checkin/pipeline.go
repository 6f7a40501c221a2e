package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"voicejournal/internal/blob"
	"voicejournal/internal/crisis"
	"voicejournal/internal/entry"
	"voicejournal/internal/metrics"
	"voicejournal/internal/mood"
	"voicejournal/internal/response"
	"voicejournal/internal/speech"
	"voicejournal/internal/transcribe"
	"voicejournal/internal/video"
)

// EntryWriter persists finished check-ins.
type EntryWriter interface {
	Create(ctx context.Context, e *entry.Entry) error
}

// VideoSpawner starts background video generation for a saved entry.
type VideoSpawner interface {
	Spawn(req video.Request) error
}

// Pipeline runs the check-in stages for a session. Stages of one session run
// one at a time under the session lock.
type Pipeline struct {
	Transcriber transcribe.Gateway
	Gate        *crisis.Gate
	Flags       *crisis.FlagRecorder
	Responder   *response.Orchestrator
	Speech      *speech.Adapter
	Blobs       blob.Store
	Entries     EntryWriter
	Video       VideoSpawner
	Voice       string // overrides the per-tone voice when set
	Logger      zerolog.Logger

	now func() time.Time
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *Pipeline) log(s *Session) zerolog.Logger {
	return p.Logger.With().Str("session_id", s.ID).Uint64("user_id", s.UserID).Logger()
}

// halt returns the pending halt, if any. Every stage except Consent checks
// it first.
func (s *Session) halt() error {
	if s.halted && !s.consented && s.Assessment != nil {
		return &HaltError{Decision: s.Assessment.Decision}
	}
	return nil
}

// Toggle starts recording from idle and stops it from recording. Stopping
// runs transcription and the crisis gate and lands in reviewing. A halting
// transcript is reported as a HaltError right away.
func (p *Pipeline) Toggle(ctx context.Context, s *Session, mimeType string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.halt(); err != nil {
		return s.view(), err
	}

	switch s.State {
	case StateIdle:
		if err := s.recorder.Start(mimeType); err != nil {
			return s.view(), fmt.Errorf("%w: %v", ErrCapture, err)
		}
		s.LastError = ""
		if err := s.transition(StateRecording, p.clock()); err != nil {
			s.recorder.Abort()
			return s.view(), err
		}
		return s.view(), nil

	case StateRecording:
		err := p.stop(ctx, s)
		return s.view(), err

	default:
		return s.view(), validationf("cannot toggle recording in state %s", s.State)
	}
}

func (p *Pipeline) stop(ctx context.Context, s *Session) error {
	log := p.log(s)

	audio, err := s.recorder.Stop()
	if err != nil {
		s.fail(StateIdle, err.Error(), p.clock())
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}
	s.audio = audio
	if err := s.transition(StateProcessing, p.clock()); err != nil {
		return err
	}

	started := time.Now()
	text, err := p.Transcriber.Transcribe(ctx, audio.Data, audio.MimeType)
	if err != nil {
		metrics.PipelineStageFailures.WithLabelValues("transcription").Inc()
		log.Warn().Err(err).Str("provider", p.Transcriber.Name()).Msg("transcription failed")
		s.audio = nil
		s.fail(StateIdle, "transcription failed: "+err.Error(), p.clock())
		return fmt.Errorf("%w: transcription: %v", ErrTransport, err)
	}

	s.Transcript = text
	log.Info().
		Str("provider", p.Transcriber.Name()).
		Dur("audio", audio.Duration()).
		Dur("took", time.Since(started)).
		Msg("transcribed recording")

	p.assess(ctx, s)
	if err := s.transition(StateReviewing, p.clock()); err != nil {
		return err
	}
	return s.halt()
}

// assess runs the crisis gate on a fresh transcript. Flags are recorded
// whether or not the session halts.
func (p *Pipeline) assess(ctx context.Context, s *Session) {
	a := p.Gate.Assess(s.Transcript)
	s.Assessment = &a
	s.halted = a.Decision.ShouldHalt
	s.consented = false

	metrics.CrisisAssessments.WithLabelValues(string(a.Decision.Level)).Inc()
	p.Flags.Record(ctx, s.UserID, s.ID, a)
	if a.Decision.Level != crisis.LevelNone {
		p.log(s).Warn().
			Int("severity", a.Severity).
			Str("level", string(a.Decision.Level)).
			Bool("halted", s.halted).
			Msg("crisis vocabulary detected")
	}
}

// WriteAudio appends captured audio to a recording session. A write error
// discards the recording.
func (p *Pipeline) WriteAudio(s *Session, b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.halt(); err != nil {
		return 0, err
	}
	if s.State != StateRecording {
		return 0, validationf("not recording")
	}
	n, err := s.recorder.Write(b)
	if err != nil {
		s.recorder.Abort()
		s.fail(StateIdle, err.Error(), p.clock())
		return n, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	s.UpdatedAt = p.clock()
	return n, nil
}

// Abort discards an in-progress recording and returns to idle.
func (p *Pipeline) Abort(s *Session) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateRecording {
		return s.view(), validationf("nothing to abort in state %s", s.State)
	}
	s.recorder.Abort()
	s.audio = nil
	if err := s.transition(StateIdle, p.clock()); err != nil {
		return s.view(), err
	}
	return s.view(), nil
}

// SelectMood records the mood and tone used for generation.
func (p *Pipeline) SelectMood(s *Session, m mood.Tag, tone response.Tone) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.halt(); err != nil {
		return s.view(), err
	}
	if s.State != StateReviewing {
		return s.view(), validationf("mood can only be chosen while reviewing, not %s", s.State)
	}
	if !m.Valid() {
		return s.view(), validationf("unknown mood %q", m)
	}
	tone, ok := response.ParseTone(string(tone))
	if !ok {
		return s.view(), validationf("unknown tone")
	}
	if s.Mood != m || s.Tone != tone {
		s.Response = nil
		s.ResponseAudio = ""
	}
	s.Mood = m
	s.Tone = tone
	s.UpdatedAt = p.clock()
	return s.view(), nil
}

// Generate produces the response, saves the entry and starts video
// generation. A persistence failure returns the session to reviewing with
// its recording, transcript and mood intact.
func (p *Pipeline) Generate(ctx context.Context, s *Session) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := p.log(s)

	if err := s.halt(); err != nil {
		return s.view(), err
	}
	if s.State != StateReviewing {
		return s.view(), validationf("cannot generate in state %s", s.State)
	}
	if s.Mood == "" {
		return s.view(), validationf("a mood is required before generating")
	}

	if err := s.transition(StateGenerating, p.clock()); err != nil {
		return s.view(), err
	}

	if s.Response == nil {
		res := p.Responder.Generate(ctx, response.Request{
			Mood:       s.Mood,
			Tone:       s.Tone,
			Transcript: s.Transcript,
		})
		s.Response = &res
	}
	if s.ResponseAudio == "" {
		voice := p.Voice
		if voice == "" {
			voice = speech.VoiceForTone(string(s.Tone))
		}
		s.ResponseAudio = p.Speech.Render(ctx, s.UserID, s.Response.Text, voice)
	}

	e, err := p.persist(ctx, s)
	stale := errors.Is(err, entry.ErrStaleDashboard)
	if stale {
		metrics.PipelineStageFailures.WithLabelValues("cache").Inc()
		log.Warn().Err(err).Uint64("entry_id", e.ID).Msg("entry saved with a stale dashboard")
		err = nil
	}
	if err != nil {
		metrics.PipelineStageFailures.WithLabelValues("persistence").Inc()
		log.Error().Err(err).Msg("saving entry failed")
		s.fail(StateReviewing, err.Error(), p.clock())
		return s.view(), fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.EntryID = e.ID
	s.LastError = ""
	if stale {
		s.LastError = "entry saved, dashboard refresh pending"
	}

	s.VideoStatus = VideoUnavailable
	if p.Video != nil {
		err := p.Video.Spawn(video.Request{
			EntryID: e.ID,
			UserID:  s.UserID,
			Script:  s.Response.VideoScript,
		})
		if err != nil {
			metrics.PipelineStageFailures.WithLabelValues("video").Inc()
			log.Warn().Err(err).Uint64("entry_id", e.ID).Msg("video generation not started")
		} else {
			s.VideoStatus = VideoPending
		}
	}

	if err := s.transition(StateComplete, p.clock()); err != nil {
		return s.view(), err
	}
	log.Info().
		Uint64("entry_id", e.ID).
		Str("source", string(s.Response.Source)).
		Float64("confidence", s.Response.Confidence).
		Msg("check-in complete")
	return s.view(), nil
}

func (p *Pipeline) persist(ctx context.Context, s *Session) (*entry.Entry, error) {
	e := &entry.Entry{
		UserID:             s.UserID,
		MoodTag:            string(s.Mood),
		AIResponseAudioRef: s.ResponseAudio,
		TextSummary:        s.Response.Text,
		Transcript:         s.Transcript,
		ResponseSource:     string(s.Response.Source),
		Confidence:         s.Response.Confidence,
	}

	if s.audio != nil && p.Blobs != nil {
		key := fmt.Sprintf("voice/%d/%s.%s", s.UserID, s.ID, s.audio.Extension())
		ref, err := p.Blobs.Put(ctx, key, s.audio.MimeType, s.audio.Data)
		if err != nil {
			return nil, fmt.Errorf("store voice note: %w", err)
		}
		e.VoiceNoteRef = ref
	}

	if err := p.Entries.Create(ctx, e); err != nil {
		if errors.Is(err, entry.ErrStaleDashboard) {
			return e, err
		}
		return nil, err
	}
	return e, nil
}

// Consent records explicit re-consent after a safety halt. The session stays
// in reviewing and Generate may be called again.
func (p *Pipeline) Consent(s *Session) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.halted {
		return s.view(), validationf("no safety halt to acknowledge")
	}
	s.halted = false
	s.consented = true
	s.UpdatedAt = p.clock()
	p.log(s).Warn().Int("severity", s.Assessment.Severity).Msg("user consented to continue after safety halt")
	return s.view(), nil
}

// Reset discards the recording and everything derived from it and returns
// the session to idle. It never clears a safety halt.
func (p *Pipeline) Reset(s *Session) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.halt(); err != nil {
		return s.view(), err
	}
	switch s.State {
	case StateIdle:
		return s.view(), nil
	case StateReviewing:
		s.fail(StateIdle, "reset", p.clock())
	default:
		return s.view(), validationf("cannot reset in state %s", s.State)
	}

	s.audio = nil
	s.Transcript = ""
	s.Mood = ""
	s.Tone = response.ToneCalm
	s.Response = nil
	s.ResponseAudio = ""
	s.Assessment = nil
	s.consented = false
	s.LastError = ""
	return s.view(), nil
}
