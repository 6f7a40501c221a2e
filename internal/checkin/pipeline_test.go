package checkin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicejournal/internal/blob"
	"voicejournal/internal/crisis"
	"voicejournal/internal/entry"
	"voicejournal/internal/mood"
	"voicejournal/internal/response"
	"voicejournal/internal/speech"
	"voicejournal/internal/video"
)

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type flakyWriter struct {
	fails int
	calls int
	next  *entry.Service
}

func (w *flakyWriter) Create(ctx context.Context, e *entry.Entry) error {
	w.calls++
	if w.calls <= w.fails {
		return errors.New("connection refused")
	}
	return w.next.Create(ctx, e)
}

type recordingSpawner struct {
	mu   sync.Mutex
	reqs []video.Request
	err  error
}

func (s *recordingSpawner) Spawn(req video.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reqs = append(s.reqs, req)
	return nil
}

type fakeFlags struct {
	mu    sync.Mutex
	flags []*crisis.Flag
}

func (f *fakeFlags) CreateFlag(_ context.Context, fl *crisis.Flag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, fl)
	return nil
}

type failingSynth struct{}

func (failingSynth) Name() string { return "failing" }

func (failingSynth) Synthesize(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("tts quota exceeded")
}

type harness struct {
	pipeline    *Pipeline
	transcriber *fakeTranscriber
	writer      *flakyWriter
	store       *entry.MemoryStore
	spawner     *recordingSpawner
	flagStore   *fakeFlags
	flags       *crisis.FlagRecorder
}

func newHarness(t *testing.T, transcript string) *harness {
	t.Helper()
	blobs, err := blob.NewDirStore(t.TempDir())
	require.NoError(t, err)
	responder, err := response.New(response.DefaultConfig(), nil)
	require.NoError(t, err)

	gate := crisis.NewGate(crisis.DefaultPolicy())
	h := &harness{
		transcriber: &fakeTranscriber{text: transcript},
		store:       entry.NewMemoryStore(),
		spawner:     &recordingSpawner{},
		flagStore:   &fakeFlags{},
	}
	h.writer = &flakyWriter{next: entry.NewService(h.store, nil, zerolog.Nop())}
	h.flags = crisis.NewFlagRecorder(h.flagStore, gate, zerolog.Nop())
	h.pipeline = &Pipeline{
		Transcriber: h.transcriber,
		Gate:        gate,
		Flags:       h.flags,
		Responder:   responder,
		Speech:      speech.NewAdapter(failingSynth{}, blobs, zerolog.Nop()),
		Blobs:       blobs,
		Entries:     h.writer,
		Video:       h.spawner,
		Logger:      zerolog.Nop(),
	}
	return h
}

// stopRecording records one chunk and stops, returning the stop result.
func (h *harness) stopRecording(t *testing.T, s *Session) (View, error) {
	t.Helper()
	ctx := context.Background()
	_, err := h.pipeline.Toggle(ctx, s, "audio/webm")
	require.NoError(t, err)
	_, err = h.pipeline.WriteAudio(s, []byte("voice bytes"))
	require.NoError(t, err)
	return h.pipeline.Toggle(ctx, s, "")
}

// record drives a session from idle to reviewing.
func (h *harness) record(t *testing.T, s *Session) {
	t.Helper()
	v, err := h.stopRecording(t, s)
	require.NoError(t, err)
	require.Equal(t, StateReviewing, v.State)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateRecording, true},
		{StateRecording, StateProcessing, true},
		{StateRecording, StateIdle, true},
		{StateProcessing, StateReviewing, true},
		{StateReviewing, StateGenerating, true},
		{StateGenerating, StateComplete, true},
		{StateError, StateIdle, true},
		{StateError, StateReviewing, true},
		{StateIdle, StateReviewing, false},
		{StateReviewing, StateIdle, false},
		{StateGenerating, StateReviewing, false},
		{StateComplete, StateIdle, false},
		{StateComplete, StateError, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, StateComplete.Terminal())
	assert.False(t, StateReviewing.Terminal())
}

func TestPipeline_HappyPath(t *testing.T) {
	h := newHarness(t, "Work was busy but I got through it")
	s := NewRegistry().Create(7)
	ctx := context.Background()

	h.record(t, s)
	assert.Equal(t, "Work was busy but I got through it", s.View().Transcript)

	_, err := h.pipeline.SelectMood(s, mood.Tired, response.ToneReflective)
	require.NoError(t, err)

	v, err := h.pipeline.Generate(ctx, s)
	require.NoError(t, err)
	h.flags.Wait()

	assert.Equal(t, StateComplete, v.State)
	require.NotNil(t, v.Response)
	assert.Equal(t, response.SourceTemplate, v.Response.Source)
	assert.Empty(t, v.ResponseAudio, "synthesis failure is swallowed")
	assert.Equal(t, VideoPending, v.VideoStatus)
	assert.NotZero(t, v.EntryID)

	e, err := h.store.Get(ctx, 7, v.EntryID)
	require.NoError(t, err)
	assert.Equal(t, "tired", e.MoodTag)
	assert.Equal(t, v.Response.Text, e.TextSummary)
	assert.True(t, strings.HasSuffix(e.VoiceNoteRef, s.ID+".webm"))
	assert.Nil(t, e.VideoRef)

	require.Len(t, h.spawner.reqs, 1)
	assert.Equal(t, v.EntryID, h.spawner.reqs[0].EntryID)
	assert.Contains(t, h.spawner.reqs[0].Script, response.PauseMarker)
	assert.Empty(t, h.flagStore.flags)

	var states []State
	for _, tr := range v.History {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{StateRecording, StateProcessing, StateReviewing, StateGenerating, StateComplete}, states)

	_, err = h.pipeline.Toggle(ctx, s, "audio/webm")
	assert.ErrorIs(t, err, ErrValidation, "complete is terminal")
}

func TestPipeline_TranscriptionFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, "")
	h.transcriber.err = errors.New("503 from provider")
	s := NewRegistry().Create(1)
	ctx := context.Background()

	_, err := h.pipeline.Toggle(ctx, s, "audio/webm")
	require.NoError(t, err)
	_, err = h.pipeline.WriteAudio(s, []byte("voice"))
	require.NoError(t, err)

	v, err := h.pipeline.Toggle(ctx, s, "")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateIdle, v.State)
	assert.Contains(t, v.LastError, "transcription failed")
	assert.Zero(t, v.AudioSeconds)
	assert.Empty(t, v.Transcript)

	// a fresh recording works afterwards
	h.transcriber.err = nil
	h.transcriber.text = "second try"
	h.record(t, s)
}

func TestPipeline_EmptyRecordingIsCaptureError(t *testing.T) {
	h := newHarness(t, "text")
	s := NewRegistry().Create(1)
	ctx := context.Background()

	_, err := h.pipeline.Toggle(ctx, s, "audio/webm")
	require.NoError(t, err)
	v, err := h.pipeline.Toggle(ctx, s, "")
	assert.ErrorIs(t, err, ErrCapture)
	assert.Equal(t, StateIdle, v.State)
	assert.Zero(t, h.transcriber.calls)
}

func TestPipeline_UnsupportedFormat(t *testing.T) {
	h := newHarness(t, "text")
	s := NewRegistry().Create(1)

	v, err := h.pipeline.Toggle(context.Background(), s, "video/mp4")
	assert.ErrorIs(t, err, ErrCapture)
	assert.Equal(t, StateIdle, v.State)
}

func TestPipeline_AbortDiscardsAudio(t *testing.T) {
	h := newHarness(t, "text")
	s := NewRegistry().Create(1)
	ctx := context.Background()

	_, err := h.pipeline.Toggle(ctx, s, "audio/webm")
	require.NoError(t, err)
	_, err = h.pipeline.WriteAudio(s, []byte("half a sentence"))
	require.NoError(t, err)

	v, err := h.pipeline.Abort(s)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, v.State)

	// the aborted bytes do not leak into the next recording
	_, err = h.pipeline.Toggle(ctx, s, "audio/webm")
	require.NoError(t, err)
	_, err = h.pipeline.Toggle(ctx, s, "")
	assert.ErrorIs(t, err, ErrCapture)

	_, err = h.pipeline.Abort(s)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPipeline_GenerateRequiresMood(t *testing.T) {
	h := newHarness(t, "fine day")
	s := NewRegistry().Create(1)
	h.record(t, s)

	before := len(s.View().History)
	v, err := h.pipeline.Generate(context.Background(), s)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, StateReviewing, v.State)
	assert.Len(t, v.History, before)
	assert.Zero(t, h.writer.calls)
}

func TestPipeline_SelectMoodValidation(t *testing.T) {
	h := newHarness(t, "fine day")
	s := NewRegistry().Create(1)

	_, err := h.pipeline.SelectMood(s, mood.Happy, response.ToneCalm)
	assert.ErrorIs(t, err, ErrValidation, "not reviewing yet")

	h.record(t, s)
	_, err = h.pipeline.SelectMood(s, mood.Tag("elated"), response.ToneCalm)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.pipeline.SelectMood(s, mood.Happy, response.Tone("sarcastic"))
	assert.ErrorIs(t, err, ErrValidation)

	v, err := h.pipeline.SelectMood(s, mood.Happy, "")
	require.NoError(t, err)
	assert.Equal(t, response.ToneCalm, v.Tone)
}

func TestPipeline_PersistenceFailureKeepsReviewData(t *testing.T) {
	h := newHarness(t, "I feel anxious about work")
	h.writer.fails = 1
	s := NewRegistry().Create(3)
	ctx := context.Background()

	h.record(t, s)
	_, err := h.pipeline.SelectMood(s, mood.Anxious, response.ToneCalm)
	require.NoError(t, err)

	v, err := h.pipeline.Generate(ctx, s)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, StateReviewing, v.State)
	assert.Equal(t, "I feel anxious about work", v.Transcript)
	assert.Equal(t, mood.Anxious, v.Mood)
	assert.NotNil(t, s.audio, "recording is kept")
	assert.NotEmpty(t, v.LastError)
	assert.Empty(t, h.spawner.reqs)
	first := v.Response

	v, err = h.pipeline.Generate(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, v.State)
	assert.Same(t, first, v.Response, "response reused on retry")
	assert.Equal(t, 1, h.transcriber.calls, "no re-recording needed")
	assert.Empty(t, v.LastError)

	entries, err := h.store.Query(ctx, 3, entry.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

const haltingTranscript = "I want to die. I feel hopeless and worthless."

func TestPipeline_SafetyHaltRequiresConsent(t *testing.T) {
	h := newHarness(t, haltingTranscript)
	s := NewRegistry().Create(9)
	ctx := context.Background()

	v, err := h.stopRecording(t, s)
	var halt *HaltError
	require.ErrorAs(t, err, &halt)
	assert.ErrorIs(t, err, ErrSafetyHalt)
	assert.True(t, halt.Decision.ShouldHalt)
	assert.Equal(t, StateReviewing, v.State)
	assert.Equal(t, haltingTranscript, v.Transcript)
	assert.True(t, v.Halted)

	h.flags.Wait()
	require.Len(t, h.flagStore.flags, 1)
	assert.Equal(t, s.ID, h.flagStore.flags[0].SessionID)

	// the halt outranks retries and recovery paths
	_, err = h.pipeline.SelectMood(s, mood.Sad, response.ToneCalm)
	assert.ErrorIs(t, err, ErrSafetyHalt)
	_, err = h.pipeline.Generate(ctx, s)
	assert.ErrorIs(t, err, ErrSafetyHalt)
	_, err = h.pipeline.Toggle(ctx, s, "audio/webm")
	assert.ErrorIs(t, err, ErrSafetyHalt)
	assert.Zero(t, h.writer.calls)

	v, err = h.pipeline.Consent(s)
	require.NoError(t, err)
	assert.False(t, v.Halted)
	assert.True(t, v.Consented)

	_, err = h.pipeline.SelectMood(s, mood.Sad, response.ToneCalm)
	require.NoError(t, err)
	v, err = h.pipeline.Generate(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, v.State)
	h.flags.Wait()
	assert.Len(t, h.flagStore.flags, 1, "assessment runs once per recording")
}

func TestPipeline_HaltOutranksMissingMood(t *testing.T) {
	h := newHarness(t, haltingTranscript)
	s := NewRegistry().Create(9)
	_, err := h.stopRecording(t, s)
	require.ErrorIs(t, err, ErrSafetyHalt)

	v, err := h.pipeline.Generate(context.Background(), s)
	assert.ErrorIs(t, err, ErrSafetyHalt)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, StateReviewing, v.State)
}

func TestPipeline_ResetCannotDiscardHaltingTranscript(t *testing.T) {
	h := newHarness(t, haltingTranscript)
	s := NewRegistry().Create(9)
	_, err := h.stopRecording(t, s)
	require.ErrorIs(t, err, ErrSafetyHalt)

	v, err := h.pipeline.Reset(s)
	assert.ErrorIs(t, err, ErrSafetyHalt)
	assert.Equal(t, StateReviewing, v.State)
	assert.Equal(t, haltingTranscript, v.Transcript)

	h.flags.Wait()
	assert.Len(t, h.flagStore.flags, 1)
}

func TestPipeline_ModerateSeverityFlagsWithoutHalting(t *testing.T) {
	h := newHarness(t, "Some days I feel worthless")
	s := NewRegistry().Create(2)
	h.record(t, s)
	_, err := h.pipeline.SelectMood(s, mood.Sad, response.ToneCalm)
	require.NoError(t, err)

	v, err := h.pipeline.Generate(context.Background(), s)
	require.NoError(t, err)
	h.flags.Wait()

	assert.Equal(t, StateComplete, v.State)
	require.NotNil(t, v.Assessment)
	assert.Equal(t, 3, v.Assessment.Severity)
	assert.Len(t, h.flagStore.flags, 1)
}

type downCache struct{}

func (downCache) InvalidateUserCache(context.Context, uint64) error {
	return errors.New("redis down")
}

func TestPipeline_StaleDashboardStillCompletes(t *testing.T) {
	h := newHarness(t, "A slow sunday")
	h.writer.next = entry.NewService(h.store, downCache{}, zerolog.Nop())
	s := NewRegistry().Create(6)
	h.record(t, s)
	_, err := h.pipeline.SelectMood(s, mood.Calm, response.ToneCalm)
	require.NoError(t, err)

	v, err := h.pipeline.Generate(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, v.State)
	assert.NotZero(t, v.EntryID)
	assert.Contains(t, v.LastError, "dashboard")
	assert.Len(t, h.spawner.reqs, 1)

	entries, err := h.store.Query(context.Background(), 6, entry.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no duplicate entry")
}

func TestPipeline_ConsentWithoutHalt(t *testing.T) {
	h := newHarness(t, "text")
	s := NewRegistry().Create(1)
	_, err := h.pipeline.Consent(s)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPipeline_VideoSpawnFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, "A calm evening walk")
	h.spawner.err = video.ErrShuttingDown
	s := NewRegistry().Create(4)
	h.record(t, s)
	_, err := h.pipeline.SelectMood(s, mood.Calm, response.ToneCalm)
	require.NoError(t, err)

	v, err := h.pipeline.Generate(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, v.State)
	assert.Equal(t, VideoUnavailable, v.VideoStatus)
}

func TestPipeline_ResetClearsReview(t *testing.T) {
	h := newHarness(t, "text")
	s := NewRegistry().Create(1)
	h.record(t, s)
	_, err := h.pipeline.SelectMood(s, mood.Neutral, response.ToneCalm)
	require.NoError(t, err)

	v, err := h.pipeline.Reset(s)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, v.State)
	assert.Empty(t, v.Transcript)
	assert.Empty(t, v.Mood)

	_, err = h.pipeline.Toggle(context.Background(), s, "audio/webm")
	require.NoError(t, err)
	_, err = h.pipeline.Reset(s)
	assert.ErrorIs(t, err, ErrValidation, "recording must be aborted instead")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	a := r.Create(1)
	b := r.Create(2)
	assert.NotEqual(t, a.ID, b.ID)

	got, err := r.Get(1, a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = r.Get(2, a.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "sessions are scoped to their owner")
	assert.ErrorIs(t, r.Delete(2, a.ID), ErrSessionNotFound)

	r.now = func() time.Time { return base.Add(2 * time.Hour) }
	fresh := r.Create(3)
	assert.Equal(t, 2, r.Prune(time.Hour))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Delete(3, fresh.ID))
	assert.Zero(t, r.Len())
}
