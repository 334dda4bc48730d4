package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"lifeplan/internal/amqp"
	"lifeplan/internal/cache"
	"lifeplan/internal/cli"
	apphttp "lifeplan/internal/http"
	"lifeplan/internal/services"
	"lifeplan/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	be := cli.OpenBackend(ctx, logger, cfg)

	cacheManager := cache.NewManager()
	planCache := cli.OpenPlanCache(ctx, logger, cfg, cacheManager)

	opts := []services.PlanServiceOption{services.WithPlanCache(planCache.Cache)}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, falling back to the outbox", "error", err)
		} else {
			opts = append(opts, services.WithPublisher(client))
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}
	planService := services.NewPlanService(be.Store, opts...)

	sessions := services.NewSessionManager(planService, 128, cfg.SessionTTL)
	cacheManager.Register(sessions.Cleaner())
	cacheManager.StartCleanup(time.Minute)

	// Without a broker the outbox is drained in-process.
	var processor *services.SyncProcessor
	if cfg.AMQPURL == "" && be.Outbox != nil && cfg.MirrorEnabled() {
		mirror, err := cli.OpenMirror(ctx, cfg)
		if err != nil {
			logger.Error("Failed to initialize Sheets mirror", "error", err)
			os.Exit(1)
		}
		syncWorker := worker.NewSyncWorker(be.Store, be.Tracker, mirror, cfg.SyncBatchSize)
		processor = services.NewSyncProcessor(be.Outbox, be.Tracker, syncWorker, services.SyncProcessorConfig{
			PollInterval: cfg.SyncInterval,
			BatchSize:    cfg.SyncBatchSize,
		})
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:              ":" + cfg.Port,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:    cfg.TrustedProxies,
		BlockSuspicious:   cfg.BlockSuspicious,
	}, apphttp.Dependencies{
		Plans:    planService,
		Sessions: sessions,
		Settings: be.Settings,
		Cache:    cacheManager,
		Logger:   logger,
	})
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Warn("Sync processor stop error", "error", err)
			}
		}
		if err := planCache.Close(); err != nil {
			logger.Warn("Plan cache close error", "error", err)
		}
		if err := planService.Close(); err != nil {
			logger.Warn("Backend close error", "error", err)
		}
	})

	if processor != nil {
		if err := processor.Start(runCtx); err != nil {
			logger.Error("Failed to start sync processor", "error", err)
		}
	}

	logger.Info("Starting lifeplan server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
