package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/platform/logging"
	"github.com/example/checkpoint-player/internal/platform/natsconn"
	"github.com/example/checkpoint-player/internal/platform/run"
	"github.com/example/checkpoint-player/internal/progress"
	"github.com/example/checkpoint-player/services/analytics/internal/config"
	"github.com/example/checkpoint-player/services/analytics/internal/consumer"
	"github.com/example/checkpoint-player/services/analytics/internal/handler"
	"github.com/example/checkpoint-player/services/analytics/internal/posthog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = logging.ForService(log, cfg.ServiceName)

	ph, err := posthog.New(cfg.PostHogAPIKey, cfg.PostHogHost, cfg.FlushInterval, cfg.PostHogBatchSize, log)
	if err != nil {
		log.Error("posthog init", zap.Error(err))
		run.Exit(1)
	}

	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		log.Error("jetstream", zap.Error(err))
		run.Exit(1)
	}
	// The position stream must exist before ANALYTICS can source it.
	if err := natsconn.EnsureStream(js, progress.StreamName, progress.SubjectPosition); err != nil {
		log.Error("progress stream", zap.Error(err))
		run.Exit(1)
	}

	c, err := consumer.New(js, handler.New(ph, log), cfg.NATSBatchSize, cfg.BatchInterval, log)
	if err != nil {
		log.Error("consumer init", zap.Error(err))
		run.Exit(1)
	}

	runner := run.New(log)
	code := runner.WithSignals(runner.Group(
		run.Component{
			Name: "analytics-consumer",
			Run:  c.Run,
			Stop: func(context.Context) error { return ph.Close() },
		},
	))
	run.Exit(code)
}

