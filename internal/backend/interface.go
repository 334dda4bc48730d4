package backend

import (
	"context"

	"lifeplan/internal/plans"
	"lifeplan/internal/settings"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// Result is a ready plan backend plus the optional capabilities it carries.
// Outbox and Tracker are nil for backends that do not queue mirror work.
type Result struct {
	Type     BackendType
	Store    plans.Store
	Settings settings.Store
	Outbox   plans.Outbox
	Tracker  plans.SyncTracker
	Cleanup  CleanupFunc
}

// Close runs Cleanup when set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend
	DataDirectory string

	// SQLite
	SQLiteDBPath string

	// Postgres
	DatabaseURL string

	// Remote
	RemoteBaseURL  string
	RemoteToken    string
	RemoteEmail    string
	RemotePassword string

	// Defaults returned by settings stores that were never written.
	DefaultSettings settings.Settings
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	RemoteBackend   BackendType = "remote"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, RemoteBackend:
		return true
	default:
		return false
	}
}
