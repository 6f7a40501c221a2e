// Package transcribe turns recorded audio into text.
package transcribe

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

var (
	ErrEmptyAudio      = errors.New("empty audio")
	ErrEmptyTranscript = errors.New("provider returned an empty transcript")
)

// Gateway converts audio bytes to transcript text.
type Gateway interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// New returns a Whisper gateway when an API key is configured and the
// deterministic stub otherwise.
func New(cfg Config, logger zerolog.Logger) Gateway {
	if cfg.APIKey == "" {
		logger.Warn().Msg("no transcription API key configured, using stub transcripts")
		return StubGateway{}
	}
	return NewWhisperGateway(cfg, logger)
}
