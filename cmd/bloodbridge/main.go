package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/app"
	"github.com/bloodbridge/bloodbridge/internal/auth"
	"github.com/bloodbridge/bloodbridge/internal/dashboard"
	"github.com/bloodbridge/bloodbridge/internal/donations"
	"github.com/bloodbridge/bloodbridge/internal/funding"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/imagehost"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/observability"
	"github.com/bloodbridge/bloodbridge/internal/platform/cache"
	"github.com/bloodbridge/bloodbridge/internal/platform/db"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/users"
	"github.com/bloodbridge/bloodbridge/internal/view"
	"github.com/bloodbridge/bloodbridge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

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

	var auditLogger *shared.AuditLogger
	if cfg.AuditEnabled() {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migrate audit log", slog.Any("error", err))
			os.Exit(1)
		}
		auditLogger = shared.NewAuditLogger(pool)
	}

	metrics := observability.NewMetrics()
	if err := listctl.SetupMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register list metrics", slog.Any("error", err))
	}

	sessionManager := shared.NewSessionManager(redisClient, "bloodbridge_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	engine, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	provider := identity.NewProvider(identity.ProviderConfig{
		BaseURL:  cfg.IdentityBaseURL,
		TokenURL: cfg.IdentityTokenURL,
		APIKey:   cfg.IdentityAPIKey,
		Timeout:  cfg.APITimeout,
	}, logger)
	identityManager := identity.NewManager(provider, logger)

	registry := listctl.NewRegistry(cfg.ViewIdleTTL, logger)
	identityManager.OnSignOut(func(sessionID string) {
		registry.UnmountSession(sessionID)
	})
	go registry.Run(ctx, time.Minute)
	go identityManager.Run(ctx, time.Minute, cfg.SessionTTL)

	store := listStore(cfg, redisClient)

	pages := &view.Pages{Engine: engine, CSRF: csrfManager, Identity: identityManager, Logger: logger}
	apiClient := api.NewClient(cfg.APIBaseURL, cfg.APITimeout, logger)
	rbacService := rbac.NewService(apiClient, identityManager, redisClient, cfg.RoleCacheTTL, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Identity: identityManager, Logger: logger}

	locations := location.NewLoader(cfg.LocationDatasetURL, redisClient, cfg.LocationCacheTTL, logger)
	if _, err := locations.Load(ctx); err != nil {
		logger.Warn("load locations", slog.Any("error", err))
	}

	var uploader auth.Uploader
	if cfg.ImageUploadsEnabled() {
		uploader = imagehost.NewClient(cfg.ImageHostURL, cfg.ImageHostKey, logger)
	}

	authService := auth.NewService(provider, uploader, apiClient, identityManager, rbacService, auditLogger, logger)
	authHandler := auth.NewHandler(logger, authService, pages, sessionManager, csrfManager, locations)

	usersService := users.NewService(apiClient, identityManager, rbacService, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, store, cfg.ListCacheTTL, registry, pages, cfg.ViewAwaitBudget)

	donationLists := donations.NewLists(store, cfg.ListCacheTTL, registry, logger)
	donationsService := donations.NewService(apiClient, identityManager, auditLogger, logger)
	donationsHandler := donations.NewHandler(logger, donationsService, donationLists, pages, locations, cfg.ViewAwaitBudget)

	fundingService := funding.NewService(apiClient, identityManager, auditLogger, logger)
	fundingHandler := funding.NewHandler(logger, fundingService, store, cfg.ListCacheTTL, registry, pages, cfg.ViewAwaitBudget)

	dashboardService := dashboard.NewService(apiClient, identityManager, logger)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, donationsHandler, pages)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	if _, err := jobClient.EnqueueLocationRefresh(ctx); err != nil {
		logger.Warn("enqueue location refresh", slog.Any("error", err))
	}
	if _, err := jobClient.EnqueueListsWarmup(ctx, jobs.DefaultWarmupPages); err != nil {
		logger.Warn("enqueue lists warmup", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pages:            pages,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Identity:         identityManager,
		RBACMiddleware:   rbacMiddleware,
		AuthHandler:      authHandler,
		UsersHandler:     usersHandler,
		DonationsHandler: donationsHandler,
		FundingHandler:   fundingHandler,
		DashboardHandler: dashboardHandler,
		LocationHandler:  location.NewHandler(locations, logger),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func listStore(cfg *app.Config, client *redis.Client) listctl.Store {
	if cfg.ListCacheBackend == app.CacheMemory {
		return listctl.NewMemoryStore()
	}
	return listctl.NewRedisStore(client)
}
