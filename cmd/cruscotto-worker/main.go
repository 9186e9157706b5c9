package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cruscotto/internal/backend"
	"cruscotto/internal/cli"
	applog "cruscotto/internal/log"
	"cruscotto/internal/services"
	"cruscotto/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting cruscotto-worker")

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
	if res.Publisher == nil && res.Store == nil {
		logger.Error("Nothing to do: configure AMQP_URL or the sqlite backend")
		os.Exit(1)
	}
	if res.Writer == nil {
		logger.Warn("No report writer configured, reports will only be logged")
	}

	var store services.PublicationStore
	if res.Store != nil {
		store = res.Store
	}

	// Publishing always recomputes, so the worker keeps no report cache.
	reports := services.NewReportService(res.Backend, nil, store, services.ReportConfig{
		DetailCategories: cfg.DetailCategories,
		KPILabels:        cfg.KPILabels,
		BalanceSheet:     cfg.BalanceSheet,
		CashFlowSheet:    cfg.CashFlowSheet,
		TitlePrefix:      cfg.ReportTitle,
	})

	publishWorker := worker.NewPublishWorker(reports, store, res.Writer, worker.Config{
		BatchSize:   cfg.PublishBatchSize,
		MaxAttempts: cfg.PublishMaxAttempts,
		RetryDelay:  cfg.PublishRetryDelay,
	})

	processor := services.NewPublishProcessor(publishWorker, services.PublishProcessorConfig{
		PollInterval: cfg.PublishInterval,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Publish processor stop error", applog.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	if store != nil {
		logger.Info("Performing startup publish check...")
		if err := publishWorker.StartupCheck(ctx); err != nil {
			logger.Error("Failed startup publish check", applog.FieldError, err)
		}
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start publish processor", applog.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("No publication store, skipping pending retries")
	}

	if res.Publisher != nil {
		go func() {
			err := res.Publisher.ConsumeReportRequests(ctx, publishWorker.HandlePublishMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP client available")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
