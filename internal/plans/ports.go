package plans

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"lifeplan/internal/core"
)

var (
	ErrNotFound          = errors.New("plan not found")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// ExportFormat is the file format of a plan export.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ParseExportFormat defaults to CSV when s is empty.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Ports for plan backends.
type (
	PlanReader interface {
		GetPlan(ctx context.Context, id string) (core.Plan, error)
	}

	PlanLister interface {
		ListPlans(ctx context.Context) ([]core.PlanSummary, error)
	}

	// PlanWriter persists a save request and returns the stored plan with its
	// version bumped.
	PlanWriter interface {
		SavePlan(ctx context.Context, id string, req core.SaveRequest) (core.Plan, error)
	}

	PlanCreator interface {
		CreatePlan(ctx context.Context, p core.Plan) (core.Plan, error)
	}

	PlanDeleter interface {
		DeletePlan(ctx context.Context, id string) error
	}

	// Exporter streams a rendered export of a plan. Only backends able to
	// render server side implement it.
	Exporter interface {
		ExportPlan(ctx context.Context, id string, format ExportFormat) (io.ReadCloser, error)
	}

	// Store groups the operations every plan backend supports.
	Store interface {
		PlanReader
		PlanLister
		PlanWriter
		PlanCreator
		PlanDeleter
	}

	// Mirror keeps a read-only copy of saved plans in an external system.
	Mirror interface {
		MirrorPlan(ctx context.Context, p core.Plan) (ref string, err error)
		DeleteMirror(ctx context.Context, planID string) error
	}

	// SyncTracker is implemented by stores that remember which saved plans
	// still have to be mirrored.
	SyncTracker interface {
		GetPendingSyncPlans(ctx context.Context, limit int) ([]PendingSync, error)
		MarkSynced(ctx context.Context, planID string) error
		MarkSyncError(ctx context.Context, planID string) error
	}

	// Outbox is the durable queue of mirror operations polled by the sync
	// processor when no broker is configured.
	Outbox interface {
		EnqueueSync(ctx context.Context, planID string, version int64, op SyncOperation) error
		ResetStaleProcessing(ctx context.Context) error
		DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncItem, error)
		MarkSyncProcessing(ctx context.Context, id int64) error
		MarkSyncComplete(ctx context.Context, id int64) error
		MarkSyncFailed(ctx context.Context, id int64, cause string) error
		IncrementSyncAttempt(ctx context.Context, id int64, cause string) error
		CleanupCompletedSyncs(ctx context.Context, before time.Time) error
		RetryFailedSyncs(ctx context.Context) error
		GetSyncQueueStats(ctx context.Context) (SyncQueueStats, error)
	}
)

// SyncOperation is the kind of mirror work queued for a plan.
type SyncOperation string

const (
	OpSync   SyncOperation = "sync"
	OpDelete SyncOperation = "delete"
)

// PendingSync identifies a saved plan whose mirror is out of date.
type PendingSync struct {
	PlanID    string
	Version   int64
	UpdatedAt time.Time
}

// SyncItem is one row of the outbox.
type SyncItem struct {
	ID          int64
	PlanID      string
	PlanVersion int64
	Operation   SyncOperation
	Attempts    int64
	LastError   string
	CreatedAt   time.Time
}

// SyncQueueStats counts outbox rows by status.
type SyncQueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
