package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/checkpoint-player/internal/platform/db"
	"github.com/example/checkpoint-player/internal/platform/httpserver"
	"github.com/example/checkpoint-player/internal/platform/logging"
	"github.com/example/checkpoint-player/internal/platform/natsconn"
	"github.com/example/checkpoint-player/internal/platform/run"
	"github.com/example/checkpoint-player/internal/progress"
	workerconfig "github.com/example/checkpoint-player/services/progress/internal/config"
	"github.com/example/checkpoint-player/services/progress/internal/worker"
)

func main() {
	cfg, err := workerconfig.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = logging.ForService(log, cfg.App.ServiceName)

	ctx := context.Background()
	pool, err := db.OpenDSN(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, progress.Schema...); err != nil {
		log.Error("db migrate", zap.Error(err))
		run.Exit(1)
	}

	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.App.ServiceName})
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
	if err := natsconn.EnsureStream(js, progress.StreamName, progress.SubjectPosition); err != nil {
		log.Error("progress stream", zap.Error(err))
		run.Exit(1)
	}
	src, err := worker.Subscribe(js)
	if err != nil {
		log.Error("subscribe", zap.Error(err))
		run.Exit(1)
	}
	consumer := worker.New(src, worker.NewPostgresStore(pool), log, worker.Options{
		BatchSize:     cfg.BatchSize,
		BatchInterval: cfg.BatchInterval,
	})

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			if !nc.IsConnected() {
				return natsconn.ErrDisconnected
			}
			return db.ReadyFunc(pool)()
		},
		Logger: log,
	})
	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, ServiceName: cfg.App.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(runner.Group(
		run.Component{
			Name: "http",
			Run:  func(context.Context) error { return srv.Start() },
			Stop: srv.Shutdown,
		},
		run.Component{
			Name: "position-consumer",
			Run:  consumer.Run,
		},
	))
	run.Exit(code)
}
