// Package cli provides common CLI initialization utilities shared by
// cmd/lifeplan, cmd/lifeplan-worker and cmd/plan-export.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"lifeplan/internal/backend"
	"lifeplan/internal/cache"
	"lifeplan/internal/config"
	"lifeplan/internal/core"
	"lifeplan/internal/log"
	"lifeplan/internal/plans/google"
)

// SetupLogger builds the process logger at the given level and installs it
// as the slog default. An unknown level falls back to info.
func SetupLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	logger := log.New(log.Config{Level: lvl, Component: log.ComponentApp, Output: os.Stdout})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info level", "error", err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeConfiguration).ToSlice()...)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend creates the plan backend selected by DATA_BACKEND.
// Returns the backend or exits the process on failure.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.Result {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// OpenMirror connects to the Sheets mirror. It returns nil when no
// spreadsheet is configured.
func OpenMirror(ctx context.Context, cfg *config.Config) (*google.Client, error) {
	if !cfg.MirrorEnabled() {
		return nil, nil
	}
	client, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("sheets mirror: %w", err)
	}
	return client, nil
}

// PlanCache is the plan cache chosen by REDIS_URL plus what it holds open.
type PlanCache struct {
	Cache cache.Cache[core.Plan]
	redis *redis.Client
}

// Close releases the Redis connection, if any.
func (c *PlanCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// OpenPlanCache uses Redis when REDIS_URL is set and reachable, otherwise an
// in-process LRU registered with manager for expiry sweeps.
func OpenPlanCache(ctx context.Context, logger *log.Logger, cfg *config.Config, manager *cache.Manager) *PlanCache {
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info("Using Redis plan cache", "ttl", cfg.CacheTTL)
			return &PlanCache{
				Cache: cache.NewRedisCache[core.Plan](client, "lifeplan:plan:", cfg.CacheTTL),
				redis: client,
			}
		}
		logger.Warn("Redis unavailable, falling back to in-process cache", "error", err)
	}

	lru := cache.NewLRUCache[core.Plan](256, cfg.CacheTTL)
	manager.Register(lru)
	return &PlanCache{Cache: lru}
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs once with a context bounded by timeout; the returned channel closes
// when it is done.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-ctx.Done()
		stop()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, done
}
