package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cruscotto/internal/backend"
	"cruscotto/internal/cache"
	"cruscotto/internal/cli"
	apphttp "cruscotto/internal/http"
	applog "cruscotto/internal/log"
	"cruscotto/internal/middleware/ratelimit"
	"cruscotto/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Interfaces stay untyped nil when the piece is missing.
	var (
		publisher services.ReportPublisher
		store     services.PublicationStore
		ledger    apphttp.Ledger
	)
	if res.Publisher != nil {
		publisher = res.Publisher
	}
	if res.Store != nil {
		store = res.Store
		ledger = res.Store
	}

	reports := services.NewReportService(res.Backend, publisher, store, services.ReportConfig{
		DetailCategories: cfg.DetailCategories,
		KPILabels:        cfg.KPILabels,
		BalanceSheet:     cfg.BalanceSheet,
		CashFlowSheet:    cfg.CashFlowSheet,
		TitlePrefix:      cfg.ReportTitle,
		CacheSize:        cfg.CacheSize,
		CacheTTL:         cfg.CacheTTL,
	})

	cacheManager := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	for _, c := range reports.Caches() {
		cacheManager.Register(c)
	}
	if cfg.CacheTTL > 0 {
		cacheManager.StartCleanup(cfg.CacheTTL)
	}

	srv := apphttp.NewServer(":"+cfg.Port, reports, apphttp.Options{
		Logger:         logger,
		Ledger:         ledger,
		PublishEnabled: publisher != nil || store != nil,
		RateLimit: ratelimit.Config{
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindow,
		},
		TrustedProxies: cfg.TrustedProxies,
		RequestTimeout: cfg.RequestTimeout,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting cruscotto server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"publish_enabled", publisher != nil || store != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
