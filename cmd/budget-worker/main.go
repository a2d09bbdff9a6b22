package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/cli"
	"bilancio/internal/core"
	"bilancio/internal/metrics"
	"bilancio/internal/services"
	"bilancio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting budget-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// Initialize AMQP client for consuming execution events (optional)
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - refreshing on timer only")
	}

	// Initialize the ledger backend
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	book, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize ledger backend", "error", err)
		os.Exit(1)
	}
	if book.Cleanup != nil {
		defer book.Cleanup()
	}

	engine := services.NewBudgetEngine(sqliteRepo, book.Backend, book.Rates, cfg.WarningThreshold, cfg.ExceededThreshold)
	collector := metrics.NewMetricsCollector(logger.Logger)
	refresher := worker.NewRefresher(sqliteRepo, engine, collector)

	collector.StartMetricsServer(":" + cfg.MetricsPort)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := collector.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics shutdown failed", "error", err)
		}
	})

	// Refresh on execution events when AMQP is available
	if amqpClient != nil {
		go func() {
			if err := amqpClient.ConsumeExecutionEvents(ctx, func(msg *amqp.ExecutionEventMessage) error {
				return refresher.HandleExecutionEvent(ctx, msg)
			}); err != nil && err != context.Canceled {
				logger.Error("Event consumption failed", "error", err)
			}
		}()
	}

	// Refresh once on startup, then on every tick
	if err := refresher.Run(ctx, core.DateOf(time.Now())); err != nil {
		logger.Error("Startup refresh failed", "error", err)
	}

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := refresher.Run(ctx, core.DateOf(time.Now())); err != nil {
					logger.Error("Periodic refresh failed", "error", err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
