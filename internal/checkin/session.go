package checkin

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"voicejournal/internal/capture"
	"voicejournal/internal/crisis"
	"voicejournal/internal/mood"
	"voicejournal/internal/response"
)

type VideoStatus string

const (
	VideoNone        VideoStatus = "none"
	VideoPending     VideoStatus = "pending"
	VideoUnavailable VideoStatus = "unavailable"
)

// Session is one recording attempt. Every pipeline stage holds mu, so
// stages of the same session never overlap.
type Session struct {
	mu sync.Mutex

	ID     string
	UserID uint64
	State  State

	recorder *capture.Recorder
	audio    *capture.Audio

	Transcript string
	Mood       mood.Tag
	Tone       response.Tone

	Response      *response.Result
	ResponseAudio string
	Assessment    *crisis.Assessment

	halted    bool
	consented bool

	EntryID     uint64
	VideoStatus VideoStatus
	LastError   string

	History   []Transition
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSession(userID uint64, now time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		State:       StateIdle,
		recorder:    capture.NewRecorder(),
		Tone:        response.ToneCalm,
		VideoStatus: VideoNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// View is a read-only copy of a session.
type View struct {
	ID            string             `json:"id"`
	State         State              `json:"state"`
	Transcript    string             `json:"transcript,omitempty"`
	Mood          mood.Tag           `json:"mood,omitempty"`
	Tone          response.Tone      `json:"tone"`
	Response      *response.Result   `json:"response,omitempty"`
	ResponseAudio string             `json:"response_audio,omitempty"`
	Assessment    *crisis.Assessment `json:"assessment,omitempty"`
	Halted        bool               `json:"halted"`
	Consented     bool               `json:"consented"`
	EntryID       uint64             `json:"entry_id,omitempty"`
	VideoStatus   VideoStatus        `json:"video_status"`
	AudioSeconds  float64            `json:"audio_seconds,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	History       []Transition       `json:"history"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() View {
	v := View{
		ID:            s.ID,
		State:         s.State,
		Transcript:    s.Transcript,
		Mood:          s.Mood,
		Tone:          s.Tone,
		Response:      s.Response,
		ResponseAudio: s.ResponseAudio,
		Assessment:    s.Assessment,
		Halted:        s.halted,
		Consented:     s.consented,
		EntryID:       s.EntryID,
		VideoStatus:   s.VideoStatus,
		LastError:     s.LastError,
		History:       append([]Transition(nil), s.History...),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.audio != nil {
		v.AudioSeconds = s.audio.Duration().Seconds()
	}
	return v
}

// Registry holds live sessions. Distinct sessions share no state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session), now: time.Now}
}

func (r *Registry) Create(userID uint64) *Session {
	s := newSession(userID, r.now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(userID uint64, id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Delete(userID uint64, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Prune drops sessions untouched for longer than idle. Sessions with a
// stage in flight are skipped.
func (r *Registry) Prune(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		stale := s.UpdatedAt.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
