package main

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/checkpoint-player/internal/catalog"
	"github.com/example/checkpoint-player/internal/evalrpc"
	"github.com/example/checkpoint-player/internal/platform/db"
	"github.com/example/checkpoint-player/internal/platform/logging"
	"github.com/example/checkpoint-player/internal/platform/run"
	"github.com/example/checkpoint-player/internal/progress"
	"github.com/example/checkpoint-player/services/evaluator/internal/attempts"
	evalconfig "github.com/example/checkpoint-player/services/evaluator/internal/config"
	"github.com/example/checkpoint-player/services/evaluator/internal/grading"
	"github.com/example/checkpoint-player/services/evaluator/internal/grpcapi"
	"github.com/example/checkpoint-player/services/evaluator/internal/replay"
)

func main() {
	cfg, err := evalconfig.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = logging.ForService(log, cfg.ServiceName)

	ctx := context.Background()
	pool, err := db.OpenDSN(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	var schema []string
	for _, part := range [][]string{catalog.Schema, progress.Schema, attempts.Schema, replay.Schema} {
		schema = append(schema, part...)
	}
	if err := db.Migrate(ctx, pool, schema...); err != nil {
		log.Error("db migrate", zap.Error(err))
		run.Exit(1)
	}

	replayStore, err := replay.NewStore(cfg.RedisURL, pool, cfg.ReplayTTL, cfg.IsProd)
	if err != nil {
		log.Error("replay store", zap.Error(err))
		run.Exit(1)
	}
	digester, err := attempts.NewDigester([]byte(cfg.AnswerDigestKey))
	if err != nil {
		log.Error("answer digester", zap.Error(err))
		run.Exit(1)
	}

	var (
		grader     grading.Grader     = grading.RuleGrader{}
		summarizer grading.Summarizer = grading.StaticSummarizer{}
	)
	if cfg.GeminiAPIKey != "" {
		g, err := grading.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GraderTimeout, log)
		if err != nil {
			log.Error("gemini client", zap.Error(err))
			run.Exit(1)
		}
		grader, summarizer = g, g
		log.Info("llm grading enabled", zap.String("model", cfg.GeminiModel))
	}

	svc := &grpcapi.EvaluatorService{
		Catalog:    catalog.NewPostgresStore(pool),
		Progress:   progress.NewPostgresRepository(pool),
		Attempts:   attempts.NewPostgresStore(pool),
		Replay:     replayStore,
		Grader:     grader,
		Summarizer: summarizer,
		Digester:   digester,
		Log:        log,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	evalrpc.RegisterEvaluatorServer(grpcSrv, svc)
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(evalrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	runner := run.New(log)
	code := runner.WithSignals(runner.Group(run.Component{
		Name: "grpc",
		Run: func(context.Context) error {
			log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
			return grpcSrv.Serve(lis)
		},
		Stop: func(ctx context.Context) error {
			healthSrv.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				grpcSrv.Stop()
			case <-time.After(run.ShutdownTimeout):
				grpcSrv.Stop()
			}
			return nil
		},
	}))
	run.Exit(code)
}
