package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/example/checkpoint-player/internal/catalog"
	"github.com/example/checkpoint-player/internal/evalrpc"
	"github.com/example/checkpoint-player/internal/gating"
	"github.com/example/checkpoint-player/internal/platform/analytics"
	"github.com/example/checkpoint-player/internal/platform/auth"
	"github.com/example/checkpoint-player/internal/platform/db"
	"github.com/example/checkpoint-player/internal/platform/httpserver"
	"github.com/example/checkpoint-player/internal/platform/logging"
	"github.com/example/checkpoint-player/internal/platform/natsconn"
	"github.com/example/checkpoint-player/internal/platform/run"
	"github.com/example/checkpoint-player/internal/progress"
	playerconfig "github.com/example/checkpoint-player/services/player/internal/config"
	"github.com/example/checkpoint-player/services/player/internal/evaluator"
	"github.com/example/checkpoint-player/services/player/internal/handlers"
	"github.com/example/checkpoint-player/services/player/internal/sessions"
	"github.com/example/checkpoint-player/services/player/internal/sink"
)

func main() {
	cfg, err := playerconfig.Load()
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

	var schema []string
	schema = append(schema, catalog.Schema...)
	schema = append(schema, progress.Schema...)
	if err := db.Migrate(ctx, pool, schema...); err != nil {
		log.Error("db migrate", zap.Error(err))
		run.Exit(1)
	}

	var js nats.JetStreamContext
	if cfg.NATSURL != "" {
		nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.App.ServiceName})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		defer nc.Drain()
		js, err = nc.JetStream()
		if err != nil {
			log.Error("jetstream", zap.Error(err))
			run.Exit(1)
		}
		if err := natsconn.EnsureStream(js, progress.StreamName, progress.SubjectPosition); err != nil {
			log.Error("progress stream", zap.Error(err))
			run.Exit(1)
		}
		if err := natsconn.EnsureStream(js, analytics.StreamName, analytics.SubjectAll); err != nil {
			log.Error("analytics stream", zap.Error(err))
			run.Exit(1)
		}
	}

	evalConn, err := grpc.NewClient(cfg.EvaluatorGRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Error("evaluator grpc", zap.Error(err))
		run.Exit(1)
	}
	defer evalConn.Close()

	cb := evaluator.NewBreaker("evaluator", evaluator.BreakerSettings{
		MaxRequests:      cfg.CBMaxRequests,
		Interval:         cfg.CBInterval,
		Timeout:          cfg.CBTimeout,
		FailureThreshold: cfg.CBFailureThreshold,
	}, log)
	evalClient := evaluator.New(evalrpc.NewClient(evalConn), evaluator.WithCircuitBreaker(cb), evaluator.WithLogger(log))

	reader := catalog.NewReader(catalog.NewPostgresStore(pool))
	repo := progress.NewPostgresRepository(pool)
	tracker := progress.NewTracker(repo, reader)

	var positions *sink.PositionPublisher
	if cfg.AsyncPositions {
		positions = sink.NewPositionPublisher(js)
	}
	deps := gating.Deps{
		Catalog:   reader,
		Progress:  tracker,
		Evaluator: evalClient,
		Sink:      sink.NewProgress(tracker, positions, log),
		Events:    sink.NewRecorder(analytics.New(js, log)),
	}
	sessionCfg := gating.SessionConfig{
		PositionInterval: cfg.PositionWriteInterval,
		EvaluatorTimeout: cfg.EvaluatorTimeout,
		Logger:           log,
		LogFields:        httpserver.LogFields,
	}
	registry := sessions.NewRegistry(cfg.SessionIdleTTL, log)

	verifier := auth.JWTVerifier{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: db.ReadyFunc(pool), Logger: log})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))

		r.Route("/v1/playback/sessions", func(r chi.Router) {
			r.Post("/", handlers.OpenSession(deps, registry, sessionCfg))
			r.Get("/{id}", handlers.GetSession(registry))
			r.Post("/{id}/time", handlers.AdvanceTime(registry))
			r.Post("/{id}/seek", handlers.Seek(registry))
			r.Post("/{id}/answer", handlers.SubmitAnswer(registry))
			r.Delete("/{id}", handlers.CloseSession(registry))
		})
		r.Get("/v1/progress", handlers.ListProgress(repo))

		r.With(auth.RequireAdmin).Get("/v1/admin/sessions", handlers.ListSessions(registry))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.App.HTTP.Addr, ServiceName: cfg.App.ServiceName, Logger: log, Router: r})

	sweepEvery := cfg.SessionIdleTTL / 4
	if sweepEvery > time.Minute {
		sweepEvery = time.Minute
	}
	runner := run.New(log)
	code := runner.WithSignals(runner.Group(
		run.Component{
			Name: "http",
			Run:  func(context.Context) error { return srv.Start() },
			Stop: srv.Shutdown,
		},
		run.Component{
			Name: "sessions",
			Run:  func(ctx context.Context) error { return registry.Run(ctx, sweepEvery) },
		},
	))
	run.Exit(code)
}
