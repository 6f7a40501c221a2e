// Package capture buffers a voice recording until it is finalized.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrCapture wraps every device, permission or payload problem.
var ErrCapture = errors.New("capture error")

// DefaultMaxBytes matches the transcription upload limit.
const DefaultMaxBytes = 25 << 20

var supportedMime = map[string]string{
	"audio/webm": "webm",
	"audio/ogg":  "ogg",
	"audio/wav":  "wav",
	"audio/mpeg": "mp3",
	"audio/mp4":  "m4a",
}

// Audio is a finalized recording.
type Audio struct {
	Data      []byte
	MimeType  string
	StartedAt time.Time
	StoppedAt time.Time
}

func (a *Audio) Duration() time.Duration { return a.StoppedAt.Sub(a.StartedAt) }

// Extension returns the file extension for the audio mime type.
func (a *Audio) Extension() string { return Extension(a.MimeType) }

// Extension maps a supported mime type onto its file extension.
func Extension(mimeType string) string {
	if ext, ok := supportedMime[normalizeMime(mimeType)]; ok {
		return ext
	}
	return "bin"
}

// Supported reports whether the mime type can be recorded.
func Supported(mimeType string) bool {
	_, ok := supportedMime[normalizeMime(mimeType)]
	return ok
}

func normalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

// Recorder accumulates audio between Start and Stop.
type Recorder struct {
	MaxBytes int

	mu      sync.Mutex
	buf     bytes.Buffer
	mime    string
	active  bool
	started time.Time
	now     func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{MaxBytes: DefaultMaxBytes, now: time.Now}
}

func (r *Recorder) Start(mimeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return fmt.Errorf("%w: already recording", ErrCapture)
	}
	if !Supported(mimeType) {
		return fmt.Errorf("%w: unsupported audio format %q", ErrCapture, mimeType)
	}
	r.buf.Reset()
	r.mime = normalizeMime(mimeType)
	r.active = true
	r.started = r.clock()
	return nil
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return 0, fmt.Errorf("%w: not recording", ErrCapture)
	}
	limit := r.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if r.buf.Len()+len(p) > limit {
		return 0, fmt.Errorf("%w: recording exceeds %d bytes", ErrCapture, limit)
	}
	return r.buf.Write(p)
}

// Stop finalizes the recording. The recorder is reusable afterwards.
func (r *Recorder) Stop() (*Audio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return nil, fmt.Errorf("%w: not recording", ErrCapture)
	}
	r.active = false
	if r.buf.Len() == 0 {
		return nil, fmt.Errorf("%w: no audio captured", ErrCapture)
	}

	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()

	return &Audio{
		Data:      data,
		MimeType:  r.mime,
		StartedAt: r.started,
		StoppedAt: r.clock(),
	}, nil
}

// Abort drops any buffered audio.
func (r *Recorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.buf.Reset()
	r.mime = ""
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}
