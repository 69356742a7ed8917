package config

import (
	"errors"
	"time"

	"github.com/example/checkpoint-player/internal/platform/config"
)

type PlayerConfig struct {
	App config.AppConfig

	JWTSecret []byte
	JWTIssuer string

	EvaluatorGRPCAddr string
	EvaluatorTimeout  time.Duration

	PositionWriteInterval time.Duration
	SessionIdleTTL        time.Duration
	// AsyncPositions routes position writes through NATS to the progress
	// worker instead of writing Postgres inline.
	AsyncPositions bool

	DatabaseURL string
	NATSURL     string

	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

func Load() (PlayerConfig, error) {
	app, err := config.Load("player")
	if err != nil {
		return PlayerConfig{}, err
	}
	cfg := PlayerConfig{
		App:                   app,
		JWTSecret:             []byte(config.String("JWT_SECRET", "")),
		JWTIssuer:             config.String("JWT_ISSUER", ""),
		EvaluatorGRPCAddr:     config.String("EVALUATOR_GRPC_ADDR", ""),
		EvaluatorTimeout:      config.Duration("EVALUATOR_TIMEOUT", 10*time.Second),
		PositionWriteInterval: config.Duration("POSITION_WRITE_INTERVAL", 5*time.Second),
		SessionIdleTTL:        config.Duration("SESSION_IDLE_TTL", 30*time.Minute),
		AsyncPositions:        config.Bool("PLAYER_ASYNC_POSITIONS", false),
		DatabaseURL:           config.String("DATABASE_URL", ""),
		NATSURL:               config.String("NATS_URL", ""),
		CBMaxRequests:         uint32(config.Int("CB_MAX_REQUESTS", 5)),
		CBInterval:            config.Duration("CB_INTERVAL", 60*time.Second),
		CBTimeout:             config.Duration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold:    uint32(config.Int("CB_FAILURE_THRESHOLD", 5)),
	}
	if len(cfg.JWTSecret) == 0 {
		return PlayerConfig{}, errors.New("JWT_SECRET is required")
	}
	if cfg.EvaluatorGRPCAddr == "" {
		return PlayerConfig{}, errors.New("EVALUATOR_GRPC_ADDR is required")
	}
	if cfg.DatabaseURL == "" {
		return PlayerConfig{}, errors.New("DATABASE_URL is required")
	}
	if cfg.AsyncPositions && cfg.NATSURL == "" {
		return PlayerConfig{}, errors.New("NATS_URL is required when PLAYER_ASYNC_POSITIONS is set")
	}
	if cfg.CBFailureThreshold == 0 {
		cfg.CBFailureThreshold = 1
	}
	return cfg, nil
}
