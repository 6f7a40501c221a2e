// Package llm wraps the generative text backends used for check-in responses.
package llm

import (
	"context"
	"fmt"
)

// Params are the decode parameters sent with every prompt.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// Provider is the interface for generative text backends. Implementations
// must not retry: callers fall back to templates instead.
type Provider interface {
	GenerateText(ctx context.Context, prompt string, p Params) (string, error)
	Name() string
}

type Config struct {
	Provider string // openai, bedrock, or empty

	APIKey  string
	BaseURL string
	Model   string

	BedrockRegion string
	BedrockModel  string
}

// New builds the configured provider. A nil provider with a nil error means
// generation is disabled.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewOpenAIProvider(cfg), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm provider openai requires OPENAI_API_KEY")
		}
		return NewOpenAIProvider(cfg), nil
	case "bedrock":
		return NewBedrockProvider(ctx, BedrockConfig{Region: cfg.BedrockRegion, ModelID: cfg.BedrockModel})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
