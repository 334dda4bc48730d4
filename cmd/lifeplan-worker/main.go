package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"lifeplan/internal/amqp"
	"lifeplan/internal/cli"
	"lifeplan/internal/log"
	"lifeplan/internal/services"
	"lifeplan/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting lifeplan-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.MirrorEnabled() {
		logger.Error("GOOGLE_SPREADSHEET_ID is required by the worker")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	be := cli.OpenBackend(ctx, logger, cfg)
	defer be.Close()
	if be.Tracker == nil {
		logger.Warn("Backend does not track pending mirrors; only broker messages are handled", "backend", cfg.DataBackend)
	}

	mirror, err := cli.OpenMirror(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize Sheets mirror", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(be.Store, be.Tracker, mirror, cfg.SyncBatchSize)

	// On startup, mirror any plans saved while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	switch {
	case cfg.AMQPURL != "":
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumePlanSync(gctx, syncWorker.HandleSyncMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	case be.Outbox != nil:
		processor := services.NewSyncProcessor(be.Outbox, be.Tracker, syncWorker, services.SyncProcessorConfig{
			PollInterval: cfg.SyncInterval,
			BatchSize:    cfg.SyncBatchSize,
		})
		if err := processor.Start(gctx); err != nil {
			logger.Error("Failed to start sync processor", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return processor.Stop(stopCtx)
		})
	default:
		logger.Info("No broker and no outbox; relying on the periodic scan")
	}

	// Periodic sync for any missed messages.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := syncWorker.ProcessPendingPlans(gctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	<-done
	logger.Info("Worker shutdown complete")
}
