package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"voicejournal/internal/crisis"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	LogLevel  string
	LogFormat string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	LLMProvider   string // openai, bedrock, or empty for templates only
	LLMModel      string
	BedrockRegion string
	BedrockModel  string

	STTModel string
	TTSModel string
	TTSVoice string

	VideoAPIURL    string
	VideoAPIKey    string
	VideoPersonaID string
	VideoPollMode  string // inline or detached

	AIAttemptPercent    int
	ConfidenceThreshold float64
	CrisisPerMatch      int

	CacheBackend string // memory or redis
	CacheTTL     time.Duration
	RedisAddr    string

	BlobDir string
}

var defaults = map[string]any{
	"http_addr":              ":8080",
	"cors_allow_credentials": false,
	"log_level":              "info",
	"log_format":             "json",
	"openai_base_url":        "https://api.openai.com/v1",
	"llm_model":              "gpt-4o-mini",
	"bedrock_region":         "us-east-1",
	"stt_model":              "whisper-1",
	"tts_model":              "tts-1",
	"video_persona_id":       "hannah",
	"video_poll_mode":        "detached",
	"ai_attempt_percent":     70,
	"confidence_threshold":   0.6,
	"crisis_per_match":       3,
	"cache_backend":          "memory",
	"cache_ttl":              5 * time.Minute,
	"redis_addr":             "localhost:6379",
	"blob_dir":               "./data/blobs",
}

// Load reads configuration from the process environment, after merging an
// optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	cfg := Config{
		HTTPAddr:             v.GetString("http_addr"),
		DatabaseURL:          strings.TrimSpace(v.GetString("database_url")),
		CORSAllowCredentials: v.GetBool("cors_allow_credentials"),
		JWTSecret:            strings.TrimSpace(v.GetString("jwt_secret")),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		OpenAIAPIKey:  strings.TrimSpace(v.GetString("openai_api_key")),
		OpenAIBaseURL: v.GetString("openai_base_url"),

		LLMProvider:   strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
		LLMModel:      v.GetString("llm_model"),
		BedrockRegion: v.GetString("bedrock_region"),
		BedrockModel:  v.GetString("bedrock_model"),

		STTModel: v.GetString("stt_model"),
		TTSModel: v.GetString("tts_model"),
		TTSVoice: v.GetString("tts_voice"),

		VideoAPIURL:    strings.TrimSpace(v.GetString("video_api_url")),
		VideoAPIKey:    strings.TrimSpace(v.GetString("video_api_key")),
		VideoPersonaID: v.GetString("video_persona_id"),
		VideoPollMode:  strings.ToLower(v.GetString("video_poll_mode")),

		AIAttemptPercent:    v.GetInt("ai_attempt_percent"),
		ConfidenceThreshold: v.GetFloat64("confidence_threshold"),
		CrisisPerMatch:      v.GetInt("crisis_per_match"),

		CacheBackend: strings.ToLower(v.GetString("cache_backend")),
		CacheTTL:     v.GetDuration("cache_ttl"),
		RedisAddr:    v.GetString("redis_addr"),

		BlobDir: v.GetString("blob_dir"),
	}

	for _, o := range strings.Split(v.GetString("cors_allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("missing env: DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("missing env: JWT_SECRET")
	}
	if minPer := crisis.DefaultPolicy().ResourcesAt; cfg.CrisisPerMatch < minPer {
		return cfg, fmt.Errorf("CRISIS_PER_MATCH must be at least %d, got %d", minPer, cfg.CrisisPerMatch)
	}
	return cfg, nil
}
