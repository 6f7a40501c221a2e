package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voicejournal/internal/capture"
)

const maxErrorBody = 64 << 10

// WhisperGateway posts audio to an OpenAI-compatible transcription endpoint.
type WhisperGateway struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

func NewWhisperGateway(cfg Config, logger zerolog.Logger) *WhisperGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &WhisperGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger.With().Str("provider", "whisper").Logger(),
	}
}

func (g *WhisperGateway) Name() string { return "whisper" }

func (g *WhisperGateway) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	start := time.Now()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "recording."+capture.Extension(mimeType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := w.WriteField("model", g.cfg.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if g.cfg.Language != "" {
		if err := w.WriteField("language", g.cfg.Language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		g.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("transcription failed")
		return "", fmt.Errorf("transcription API status %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	g.logger.Debug().Dur("took", time.Since(start)).Int("chars", len(text)).Msg("transcription complete")
	return text, nil
}
