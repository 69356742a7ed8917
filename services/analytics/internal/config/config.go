package config

import (
	"errors"
	"time"

	"github.com/example/checkpoint-player/internal/platform/config"
)

// Config holds all configuration for the analytics forwarder.
type Config struct {
	ServiceName      string
	LogLevel         string
	NATSURL          string
	PostHogAPIKey    string
	PostHogHost      string // cloud or self-hosted endpoint
	FlushInterval    time.Duration
	PostHogBatchSize int // SDK batch size before flush
	NATSBatchSize    int
	BatchInterval    time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		ServiceName:      config.String("SERVICE_NAME", "analytics"),
		LogLevel:         config.String("LOG_LEVEL", "info"),
		NATSURL:          config.String("NATS_URL", "nats://nats:4222"),
		PostHogAPIKey:    config.String("POSTHOG_API_KEY", ""),
		PostHogHost:      config.String("POSTHOG_HOST", "https://app.posthog.com"),
		FlushInterval:    config.Duration("POSTHOG_FLUSH_INTERVAL", 5*time.Second),
		PostHogBatchSize: config.Int("POSTHOG_BATCH_SIZE", 100),
		NATSBatchSize:    config.Int("WORKER_BATCH_SIZE", 200),
		BatchInterval:    time.Duration(config.Int("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond,
	}
	if cfg.PostHogAPIKey == "" {
		return Config{}, errors.New("POSTHOG_API_KEY is required")
	}
	if cfg.PostHogBatchSize <= 0 {
		cfg.PostHogBatchSize = 100
	}
	if cfg.NATSBatchSize <= 0 {
		cfg.NATSBatchSize = 200
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 2 * time.Second
	}
	return cfg, nil
}
