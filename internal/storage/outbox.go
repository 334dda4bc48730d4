package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lifeplan/internal/plans"
	"lifeplan/internal/settings"
)

// EnqueueSync implements plans.Outbox
func (r *SQLiteRepository) EnqueueSync(ctx context.Context, planID string, version int64, op plans.SyncOperation) error {
	if err := r.queries.EnqueueSync(ctx, planID, version, string(op), r.now().UTC()); err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}
	slog.DebugContext(ctx, "Sync queued", "plan_id", planID, "version", version, "operation", op)
	return nil
}

// ResetStaleProcessing returns items left in processing by a crash to pending.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	if err := r.queries.ResetStaleProcessing(ctx, r.now().UTC()); err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]plans.SyncItem, error) {
	rows, err := r.queries.DequeueSyncBatch(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	out := make([]plans.SyncItem, len(rows))
	for i, row := range rows {
		out[i] = plans.SyncItem{
			ID:          row.ID,
			PlanID:      row.PlanID,
			PlanVersion: row.PlanVersion,
			Operation:   plans.SyncOperation(row.Operation),
			Attempts:    row.Attempts,
			LastError:   row.LastError,
			CreatedAt:   row.CreatedAt,
		}
	}
	return out, nil
}

func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncProcessing(ctx, id, r.now().UTC()); err != nil {
		return fmt.Errorf("mark sync processing: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncComplete(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncComplete(ctx, id, r.now().UTC()); err != nil {
		return fmt.Errorf("mark sync complete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, cause string) error {
	if err := r.queries.MarkSyncFailed(ctx, id, cause, r.now().UTC()); err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, id int64, cause string) error {
	if err := r.queries.IncrementSyncAttempt(ctx, id, cause, r.now().UTC()); err != nil {
		return fmt.Errorf("increment sync attempt: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, before time.Time) error {
	n, err := r.queries.CleanupCompletedSyncs(ctx, before.UTC())
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) error {
	if err := r.queries.RetryFailedSyncs(ctx, r.now().UTC()); err != nil {
		return fmt.Errorf("retry failed syncs: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (plans.SyncQueueStats, error) {
	row, err := r.queries.GetSyncQueueStats(ctx)
	if err != nil {
		return plans.SyncQueueStats{}, fmt.Errorf("get sync queue stats: %w", err)
	}
	return plans.SyncQueueStats{
		Pending:    row.PendingCount,
		Processing: row.ProcessingCount,
		Completed:  row.CompletedCount,
		Failed:     row.FailedCount,
	}, nil
}

var (
	_ plans.Store       = (*SQLiteRepository)(nil)
	_ plans.SyncTracker = (*SQLiteRepository)(nil)
	_ plans.Outbox      = (*SQLiteRepository)(nil)
	_ settings.Store    = (*SQLiteRepository)(nil)
)
