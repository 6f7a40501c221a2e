// Package speech renders response text to audio. Rendering is best effort.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicejournal/internal/blob"
	"voicejournal/internal/metrics"
)

const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// VoiceForTone picks the default voice for a response tone.
func VoiceForTone(tone string) string {
	switch tone {
	case "motivational":
		return VoiceAlloy
	case "reflective":
		return VoiceShimmer
	default:
		return VoiceNova
	}
}

type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Speed   float64
	Timeout time.Duration
}

// OpenAIProvider calls an OpenAI-compatible /audio/speech endpoint.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger zerolog.Logger
}

func NewOpenAIProvider(cfg OpenAIConfig, logger zerolog.Logger) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("provider", "openai-tts").Logger(),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if p.cfg.APIKey == "" {
		return nil, errors.New("speech API key not configured")
	}
	if voiceID == "" {
		voiceID = VoiceNova
	}

	body, err := json.Marshal(speechRequest{
		Model:          p.cfg.Model,
		Input:          text,
		Voice:          voiceID,
		ResponseFormat: "mp3",
		Speed:          p.cfg.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("speech API status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("speech API returned no audio")
	}
	return audio, nil
}

// Adapter synthesizes and stores reply audio. Failures never propagate.
type Adapter struct {
	provider Provider
	store    blob.Store
	logger   zerolog.Logger
}

func NewAdapter(provider Provider, store blob.Store, logger zerolog.Logger) *Adapter {
	return &Adapter{
		provider: provider,
		store:    store,
		logger:   logger.With().Str("component", "speech").Logger(),
	}
}

// Render returns a blob reference for the spoken reply, or "" when
// synthesis or storage fails.
func (a *Adapter) Render(ctx context.Context, userID uint64, text, voiceID string) string {
	if a == nil || a.provider == nil || a.store == nil || strings.TrimSpace(text) == "" {
		return ""
	}

	audio, err := a.provider.Synthesize(ctx, text, voiceID)
	if err != nil {
		metrics.PipelineStageFailures.WithLabelValues("synthesis").Inc()
		a.logger.Warn().Err(err).Uint64("user_id", userID).Str("provider", a.provider.Name()).Msg("speech synthesis failed")
		return ""
	}

	key := fmt.Sprintf("responses/%d/%s.mp3", userID, uuid.NewString())
	ref, err := a.store.Put(ctx, key, "audio/mpeg", audio)
	if err != nil {
		metrics.PipelineStageFailures.WithLabelValues("synthesis").Inc()
		a.logger.Warn().Err(err).Uint64("user_id", userID).Msg("storing synthesized audio failed")
		return ""
	}
	return ref
}
