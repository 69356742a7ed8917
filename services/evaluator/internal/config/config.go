package config

import (
	"errors"
	"time"

	"github.com/example/checkpoint-player/internal/platform/config"
)

type Config struct {
	ServiceName string
	LogLevel    string
	GRPCAddr    string
	// DatabaseURL points at the shared Postgres holding questions, progress
	// and the attempt log.
	DatabaseURL string
	// RedisURL enables the Redis replay cache. Empty falls back to Postgres.
	RedisURL  string
	ReplayTTL time.Duration
	// AnswerDigestKey keys the blake2b digest stored in the attempt log.
	AnswerDigestKey string
	// GeminiAPIKey enables LLM grading and summaries. Empty keeps the rule
	// grader and a static summary.
	GeminiAPIKey  string
	GeminiModel   string
	GraderTimeout time.Duration
	IsProd        bool
}

func Load() (Config, error) {
	cfg := Config{
		ServiceName:     config.String("SERVICE_NAME", "evaluator"),
		LogLevel:        config.String("LOG_LEVEL", "info"),
		GRPCAddr:        config.String("GRPC_ADDR", ":9096"),
		DatabaseURL:     config.String("DATABASE_URL", ""),
		RedisURL:        config.String("REDIS_URL", ""),
		ReplayTTL:       config.Duration("REPLAY_TTL", 24*time.Hour),
		AnswerDigestKey: config.String("ANSWER_DIGEST_KEY", ""),
		GeminiAPIKey:    trimQuotes(config.String("GEMINI_API_KEY", "")),
		GeminiModel:     config.String("GEMINI_MODEL", "gemini-2.5-flash"),
		GraderTimeout:   config.Duration("GRADER_TIMEOUT", 8*time.Second),
		IsProd:          config.String("APP_ENV", "development") == "production",
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if len(cfg.AnswerDigestKey) > 64 {
		return Config{}, errors.New("ANSWER_DIGEST_KEY must be at most 64 bytes")
	}
	return cfg, nil
}

// trimQuotes drops quotes left around secrets by some env file loaders.
func trimQuotes(s string) string {
	for len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}
