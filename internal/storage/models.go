package storage

import (
	"database/sql"
	"time"
)

type Plan struct {
	ID         string
	Name       string
	TermYears  int64
	StartMonth string
	Version    int64
	SyncStatus string
	SyncedAt   sql.NullTime
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type PlanItem struct {
	ID       int64
	PlanID   string
	Category string
	Position int64
	Name     string
	Value    string
	ItemDate string
	Meta     string
}

type SyncQueue struct {
	ID          int64
	PlanID      string
	PlanVersion int64
	Operation   string
	Status      string
	Attempts    int64
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt sql.NullTime
}

type GetSyncQueueStatsRow struct {
	PendingCount    int64
	ProcessingCount int64
	CompletedCount  int64
	FailedCount     int64
}
