package config

import (
	"errors"
	"time"

	"github.com/example/checkpoint-player/internal/platform/config"
)

type WorkerConfig struct {
	App         config.AppConfig
	DatabaseURL string
	NATSURL     string

	BatchSize     int
	BatchInterval time.Duration
}

func Load() (WorkerConfig, error) {
	app, err := config.Load("progress-worker")
	if err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		App:           app,
		DatabaseURL:   config.String("DATABASE_URL", ""),
		NATSURL:       config.String("NATS_URL", "nats://nats:4222"),
		BatchSize:     config.Int("WORKER_BATCH_SIZE", 100),
		BatchInterval: time.Duration(config.Int("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond,
	}
	if cfg.DatabaseURL == "" {
		return WorkerConfig{}, errors.New("DATABASE_URL is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 2 * time.Second
	}
	return cfg, nil
}
