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

	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// Initialize AMQP client for publishing execution events (optional)
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
		logger.Info("AMQP disabled - no AMQP_URL provided")
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

	scheduler := services.NewRecurringScheduler(sqliteRepo, book.Backend, amqpClient)
	collector := metrics.NewMetricsCollector(logger.Logger)
	sweeper := worker.NewSweeper(sqliteRepo, scheduler, collector, cfg.WorkerConcurrency)

	collector.StartMetricsServer(":" + cfg.MetricsPort)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := collector.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics shutdown failed", "error", err)
		}
	})

	// Sweep once on startup, then on every tick
	if _, _, err := sweeper.Run(ctx, core.DateOf(time.Now())); err != nil {
		logger.Error("Startup sweep failed", "error", err)
	}

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := sweeper.Run(ctx, core.DateOf(time.Now())); err != nil {
					logger.Error("Periodic sweep failed", "error", err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
