package backend

import (
	"context"
	"fmt"

	"lifeplan/internal/log"
	"lifeplan/internal/plans"
	"lifeplan/internal/plans/memory"
	"lifeplan/internal/plans/remote"
	"lifeplan/internal/settings"
	"lifeplan/internal/storage"
)

var (
	_ plans.Store       = (*storage.SQLiteRepository)(nil)
	_ plans.Outbox      = (*storage.SQLiteRepository)(nil)
	_ plans.SyncTracker = (*storage.SQLiteRepository)(nil)
	_ settings.Store    = (*storage.SQLiteRepository)(nil)
	_ plans.Store       = (*storage.PostgresRepository)(nil)
	_ plans.Outbox      = (*storage.PostgresRepository)(nil)
	_ plans.SyncTracker = (*storage.PostgresRepository)(nil)
	_ settings.Store    = (*storage.PostgresRepository)(nil)
	_ plans.Store       = (*remote.Client)(nil)
	_ plans.Exporter    = (*remote.Client)(nil)
	_ plans.Store       = (*memory.Store)(nil)
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.DefaultSettings == (settings.Settings{}) {
		config.DefaultSettings = settings.Default()
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case RemoteBackend:
		return f.createRemoteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	repo.SetDefaultSettings(config.DefaultSettings)

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &Result{
		Type:     SQLiteBackend,
		Store:    repo,
		Settings: repo,
		Outbox:   repo,
		Tracker:  repo,
		Cleanup:  repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*Result, error) {
	repo, err := storage.NewPostgresRepository(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}
	repo.SetDefaultSettings(config.DefaultSettings)

	f.logger.InfoContext(ctx, "Initialized Postgres backend")

	return &Result{
		Type:     PostgresBackend,
		Store:    repo,
		Settings: repo,
		Outbox:   repo,
		Tracker:  repo,
		Cleanup:  repo.Close,
	}, nil
}

func (f *DefaultFactory) createRemoteBackend(ctx context.Context, config Config) (*Result, error) {
	var opts []remote.Option
	if config.RemoteToken != "" {
		opts = append(opts, remote.WithToken(config.RemoteToken))
	}
	client, err := remote.New(config.RemoteBaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remote client: %w", err)
	}

	if config.RemoteToken == "" {
		if _, err := client.Login(ctx, remote.Credentials{Email: config.RemoteEmail, Password: config.RemotePassword}); err != nil {
			return nil, fmt.Errorf("failed to log in to remote backend: %w", err)
		}
	}

	f.logger.InfoContext(ctx, "Initialized remote backend", "base_url", config.RemoteBaseURL)

	// The remote backend keeps no presentation settings.
	return &Result{
		Type:     RemoteBackend,
		Store:    client,
		Settings: settings.NewMemoryStore(config.DefaultSettings),
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*Result, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)

	return &Result{
		Type:     MemoryBackend,
		Store:    store,
		Settings: settings.NewMemoryStore(config.DefaultSettings),
	}, nil
}
