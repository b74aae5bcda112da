package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/app"
	"github.com/bloodbridge/bloodbridge/internal/donations"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/observability"
	"github.com/bloodbridge/bloodbridge/internal/platform/cache"
	"github.com/bloodbridge/bloodbridge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := observability.NewMetrics()
	metrics := registry.Jobs()
	if cfg.WorkerMetricsAddr != "" {
		go serveMetrics(ctx, cfg.WorkerMetricsAddr, registry.Handler(), logger)
	}

	locations := location.NewLoader(cfg.LocationDatasetURL, redisClient, cfg.LocationCacheTTL, logger)
	locationJob := jobs.NewLocationRefreshJob(locations, logger, metrics)

	// The worker has no browser sessions, so the manager only ever hands out
	// the anonymous client.
	manager := identity.NewManager(nil, logger)
	apiClient := api.NewClient(cfg.APIBaseURL, cfg.APITimeout, logger)
	lists := donations.NewLists(listctl.NewRedisStore(redisClient), cfg.ListCacheTTL, nil, logger)
	warmer := donations.NewPublicWarmer(lists, donations.NewService(apiClient, manager, nil, logger))
	warmupJob := jobs.NewListsWarmupJob(logger, metrics, warmer)

	warmupTask, err := jobs.NewListsWarmupTask(jobs.DefaultWarmupPages)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	cron := []jobs.CronRegistration{
		{Spec: "0 3 * * *", Task: jobs.NewLocationRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
	}
	if cfg.ListCacheBackend == app.CacheRedis && cfg.WarmupEvery > 0 {
		cron = append(cron, jobs.CronRegistration{
			Spec:    fmt.Sprintf("@every %s", cfg.WarmupEvery),
			Task:    warmupTask,
			Options: []asynq.Option{asynq.MaxRetry(1)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLocationRefresh, Handler: locationJob.Handle},
			{Type: jobs.TaskListsWarmup, Handler: warmupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", handler)
	server := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("serving worker metrics", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("worker metrics server", slog.Any("error", err))
	}
}
