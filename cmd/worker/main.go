// Command worker consumes queued evaluation tasks and produces verdicts.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/cache"
	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-job-verdict/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-job-verdict/internal/config"
	"github.com/fairyhunter13/ai-job-verdict/internal/domain"
	"github.com/fairyhunter13/ai-job-verdict/internal/gazetteer"
	"github.com/fairyhunter13/ai-job-verdict/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	jobRepo := postgres.NewJobRepo(pool)
	verdictRepo := postgres.NewVerdictRepo(pool)

	rc, err := cache.New(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rc.Close() }()

	// Without an API key the worker runs fully offline on the stub client.
	var aicl domain.AIClient
	if cfg.OpenRouterAPIKey != "" {
		aicl = openrouter.New(cfg)
	} else {
		slog.Warn("OPENROUTER_API_KEY not set; using deterministic stub client")
		aicl = stub.New()
	}
	avail := domain.Availability{LLM: true}

	gaz, err := gazetteer.New()
	if err != nil {
		slog.Error("gazetteer load failed", slog.Any("error", err))
		os.Exit(1)
	}

	evaluator := usecase.NewConsensusEvaluator(cfg, aicl, avail)
	locator := usecase.NewLocationValidator(cfg, aicl, gaz, avail)
	processor := usecase.NewProcessService(jobRepo, verdictRepo, evaluator, locator, rc, cfg.VerdictCacheTTL)

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.WorkerConcurrency, processor.Process)
	if err != nil {
		slog.Error("consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}
