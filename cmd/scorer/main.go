package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fraud_scorer/internal/api"
	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/model"
	"fraud_scorer/internal/processor"
	"fraud_scorer/internal/repository"
	"fraud_scorer/internal/repository/memory"
	"fraud_scorer/internal/repository/redisstore"
	"fraud_scorer/internal/scoring"
	"fraud_scorer/internal/service"
	"fraud_scorer/pkg/config"
	"fraud_scorer/pkg/crypto"
	"fraud_scorer/pkg/logging"
	"fraud_scorer/pkg/metrics"
	"fraud_scorer/pkg/resilience"
	"fraud_scorer/pkg/traces"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	appName     = "fraud_scorer"
	redisPrefix = "fraud_scorer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("env", cfg.Env),
		slog.String("strategy", cfg.ScoringStrategy),
		slog.String("fallback_policy", cfg.FallbackPolicy))

	ctx := context.Background()

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, api.Version, logger)
	if err != nil {
		logger.Error("Tracing setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	signer := crypto.NewSigner(cfg.SigningSecret, logger)

	registry, scorer := setupScorer(cfg, metricsCollector, logger)
	repo, closeRepo := setupRepository(ctx, cfg, logger)
	alertService, closeNATS := setupAlertService(cfg, metricsCollector, logger)

	assessmentProcessor := processor.NewAssessmentProcessor(scorer, repo, cfg.BatchWorkers, logger).
		WithAlerter(alertService).
		WithRecorder(metricsCollector).
		WithTracer(traces.Tracer()).
		WithMaxBatchSize(cfg.MaxBatchSize)

	var models api.ModelRegistry
	if registry != nil {
		models = registry
	}
	apiHandler := api.NewAPIHandler(assessmentProcessor, models, metricsCollector, signer, logger)

	metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg, apiHandler, logger)

	waitForShutdown(logger, httpServer, metricsCollector, alertService, func(ctx context.Context) {
		closeNATS()
		closeRepo()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("Tracing shutdown failed", slog.String("error", err.Error()))
		}
	})
	logger.Info("Application shutdown complete")
}

// setupScorer builds the scoring strategy. The model registry is only created
// for the classifier strategy; a failed initial load leaves it empty so the
// fallback policy decides what happens to requests.
func setupScorer(cfg *config.Config, metricsCollector *metrics.MetricsCollector, logger *slog.Logger) (*model.Registry, *scoring.Scorer) {
	policy := scoring.FallbackPolicy(cfg.FallbackPolicy)

	if cfg.ScoringStrategy == string(domain.StrategyWeightedRules) {
		return nil, scoring.NewScorer(scoring.NewWeightedRuleStrategy(), policy, logger)
	}

	registry := model.NewRegistry(cfg.ModelManifestPath, cfg.ModelPath, logger)
	err := registry.Reload()
	metricsCollector.RecordModelReload(err == nil)
	if err != nil {
		logger.Error("Initial model load failed",
			slog.String("model_path", cfg.ModelPath),
			slog.String("manifest_path", cfg.ModelManifestPath),
			slog.String("error", err.Error()))
	}

	breaker := resilience.NewBreaker(
		resilience.BuildSettings("classifier",
			cfg.BreakerIntervalSeconds,
			cfg.BreakerTimeoutSeconds,
			cfg.BreakerFailureThreshold,
			cfg.BreakerSuccessThreshold),
		func(name string, _, to gobreaker.State) {
			metricsCollector.SetBreakerState(name, resilience.StateValue(to))
		},
		logger,
	)
	metricsCollector.SetBreakerState(breaker.Name(), resilience.StateValue(breaker.State()))

	strategy := scoring.NewClassifierStrategy(registry, breaker)
	return registry, scoring.NewScorer(strategy, policy, logger)
}

func setupRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.AssessmentRepository, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-memory assessment history", slog.Int("limit", cfg.HistoryLimit))
		return memory.NewAssessmentRepository(cfg.HistoryLimit), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	repo := redisstore.NewAssessmentRepository(client, redisPrefix, cfg.HistoryTTL, cfg.HistoryLimit)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repo.Ping(pingCtx); err != nil {
		logger.Error("Redis unavailable", slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Using Redis assessment history", slog.String("addr", cfg.RedisAddr))
	return repo, func() {
		if err := client.Close(); err != nil {
			logger.Error("Redis close failed", slog.String("error", err.Error()))
		}
	}
}

func setupAlertService(cfg *config.Config, metricsCollector *metrics.MetricsCollector, logger *slog.Logger) (*service.AlertService, func()) {
	sinks := []service.AlertSink{service.NewLogSink(logger)}
	closeNATS := func() {}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(appName))
		if err != nil {
			logger.Error("NATS connection failed", slog.String("url", cfg.NATSURL), slog.String("error", err.Error()))
			os.Exit(1)
		}
		sinks = append(sinks, service.NewNATSSink(nc, cfg.AlertSubject))
		closeNATS = func() {
			if err := nc.Drain(); err != nil {
				logger.Error("NATS drain failed", slog.String("error", err.Error()))
			}
		}
		logger.Info("Publishing alerts to NATS", slog.String("subject", cfg.AlertSubject))
	}

	return service.NewAlertService(sinks, cfg.AlertWorkers, metricsCollector, logger), closeNATS
}

func startHTTPServer(cfg *config.Config, apiHandler *api.APIHandler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      apiHandler.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsCollector *metrics.MetricsCollector,
	alertService *service.AlertService,
	cleanup func(context.Context),
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := alertService.Shutdown(ctx); err != nil {
		logger.Error("Alert service shutdown failed", slog.String("error", err.Error()))
	}

	cleanup(ctx)
}
