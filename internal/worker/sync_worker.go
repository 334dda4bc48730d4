package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lifeplan/internal/amqp"
	"lifeplan/internal/plans"
)

// VersionReader is implemented by mirrors that can report which plan version
// they currently hold.
type VersionReader interface {
	MirroredVersion(ctx context.Context, planID string) (int64, bool, error)
}

// SyncWorker mirrors saved plans from the local store into the external
// mirror.
type SyncWorker struct {
	plans     plans.PlanReader
	tracker   plans.SyncTracker
	mirror    plans.Mirror
	batchSize int
}

// NewSyncWorker creates a worker. tracker may be nil for stores that do not
// track pending mirrors; the pending scans are then no-ops.
func NewSyncWorker(reader plans.PlanReader, tracker plans.SyncTracker, mirror plans.Mirror, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		plans:     reader,
		tracker:   tracker,
		mirror:    mirror,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single plan message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.PlanSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"plan_id", msg.PlanID,
		"version", msg.Version,
		"operation", msg.Operation)

	if msg.Operation == plans.OpDelete {
		return w.DeletePlanMirror(ctx, msg.PlanID)
	}
	return w.SyncPlan(ctx, msg.PlanID)
}

// SyncPlan mirrors the current version of a plan. A plan deleted since the
// request was queued is skipped.
func (w *SyncWorker) SyncPlan(ctx context.Context, planID string) error {
	p, err := w.plans.GetPlan(ctx, planID)
	if errors.Is(err, plans.ErrNotFound) {
		slog.WarnContext(ctx, "Plan no longer exists, skipping sync", "plan_id", planID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get plan from storage: %w", err)
	}

	if vr, ok := w.mirror.(VersionReader); ok {
		mirrored, found, err := vr.MirroredVersion(ctx, planID)
		if err == nil && found && mirrored >= p.Version {
			slog.InfoContext(ctx, "Mirror already up to date",
				"plan_id", planID,
				"version", p.Version)
			w.markSynced(ctx, planID)
			return nil
		}
	}

	ref, err := w.mirror.MirrorPlan(ctx, p)
	if err != nil {
		if w.tracker != nil {
			if markErr := w.tracker.MarkSyncError(ctx, planID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "plan_id", planID, "error", markErr)
			}
		}
		return fmt.Errorf("mirror plan: %w", err)
	}

	// The mirror succeeded even if the flag cannot be stored.
	w.markSynced(ctx, planID)

	slog.InfoContext(ctx, "Successfully synced plan",
		"plan_id", planID,
		"version", p.Version,
		"mirror_ref", ref)
	return nil
}

// DeletePlanMirror drops the mirror of a deleted plan.
func (w *SyncWorker) DeletePlanMirror(ctx context.Context, planID string) error {
	if err := w.mirror.DeleteMirror(ctx, planID); err != nil {
		slog.ErrorContext(ctx, "Failed to delete plan mirror", "plan_id", planID, "error", err)
		return fmt.Errorf("delete mirror: %w", err)
	}
	slog.InfoContext(ctx, "Successfully deleted plan mirror", "plan_id", planID)
	return nil
}

func (w *SyncWorker) markSynced(ctx context.Context, planID string) {
	if w.tracker == nil {
		return
	}
	if err := w.tracker.MarkSynced(ctx, planID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "plan_id", planID, "error", err)
	}
}

// ProcessPendingPlans mirrors plans whose last save has not been mirrored.
// It backs up the broker in case messages are lost.
func (w *SyncWorker) ProcessPendingPlans(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize)
	return err
}

// StartupSyncCheck catches up on plans saved while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	total, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if total == 0 {
		slog.InfoContext(ctx, "No pending plans found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"total", total,
		"synced", total-failed,
		"errors", failed)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (total, failed int, err error) {
	if w.tracker == nil {
		return 0, 0, nil
	}
	pending, err := w.tracker.GetPendingSyncPlans(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending plans: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending plans", "count", len(pending))
	for _, ps := range pending {
		if ctx.Err() != nil {
			return len(pending), failed, ctx.Err()
		}
		if err := w.SyncPlan(ctx, ps.PlanID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync plan", "plan_id", ps.PlanID, "error", err)
			failed++
		}
	}
	return len(pending), failed, nil
}
