package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lifeplan/internal/plans"
)

// PlanSyncer performs one mirror operation. worker.SyncWorker implements it.
type PlanSyncer interface {
	SyncPlan(ctx context.Context, planID string) error
	DeletePlanMirror(ctx context.Context, planID string) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending items (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum retry attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed items (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncProcessor drains the plan outbox when no broker is configured.
type SyncProcessor struct {
	outbox  plans.Outbox
	tracker plans.SyncTracker
	syncer  PlanSyncer
	config  SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor. tracker may be nil.
func NewSyncProcessor(outbox plans.Outbox, tracker plans.SyncTracker, syncer PlanSyncer, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.CleanupAge <= 0 {
		config.CleanupAge = def.CleanupAge
	}
	return &SyncProcessor{
		outbox:  outbox,
		tracker: tracker,
		syncer:  syncer,
		config:  config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Items left in processing by a crash go back to pending.
	if err := p.outbox.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// processBatch handles one batch of pending items.
func (p *SyncProcessor) processBatch(ctx context.Context) {
	items, err := p.outbox.DequeueSyncBatch(ctx, int64(p.config.BatchSize))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	for _, item := range items {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.outbox.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing",
				"id", item.ID, "error", err)
			continue
		}

		var processErr error
		switch item.Operation {
		case plans.OpSync:
			processErr = p.syncer.SyncPlan(ctx, item.PlanID)
		case plans.OpDelete:
			processErr = p.syncer.DeletePlanMirror(ctx, item.PlanID)
		default:
			processErr = fmt.Errorf("unknown operation: %s", item.Operation)
		}

		if processErr != nil {
			p.handleFailure(ctx, item, processErr)
		} else {
			p.handleSuccess(ctx, item)
		}
	}
}

func (p *SyncProcessor) handleSuccess(ctx context.Context, item plans.SyncItem) {
	if err := p.outbox.MarkSyncComplete(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync complete",
			"id", item.ID, "error", err)
	}
}

// handleFailure retries the item until MaxRetries attempts have failed.
func (p *SyncProcessor) handleFailure(ctx context.Context, item plans.SyncItem, processErr error) {
	slog.WarnContext(ctx, "Sync processing failed",
		"id", item.ID,
		"plan_id", item.PlanID,
		"operation", item.Operation,
		"attempt", item.Attempts+1,
		"error", processErr)

	if item.Attempts+1 < int64(p.config.MaxRetries) {
		if err := p.outbox.IncrementSyncAttempt(ctx, item.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to increment sync attempt",
				"id", item.ID, "error", err)
		}
		return
	}

	if err := p.outbox.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync as failed",
			"id", item.ID, "error", err)
	}
	if item.Operation == plans.OpSync && p.tracker != nil {
		if err := p.tracker.MarkSyncError(ctx, item.PlanID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark plan sync error",
				"plan_id", item.PlanID, "error", err)
		}
	}

	slog.ErrorContext(ctx, "Sync item failed permanently after max retries",
		"id", item.ID,
		"plan_id", item.PlanID,
		"attempts", item.Attempts+1)
}

func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	if err := p.outbox.CleanupCompletedSyncs(ctx, cutoff); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed syncs", "error", err)
	}
}

// Stats returns current queue statistics
func (p *SyncProcessor) Stats(ctx context.Context) (plans.SyncQueueStats, error) {
	return p.outbox.GetSyncQueueStats(ctx)
}

// RetryFailed resets all failed items for retry
func (p *SyncProcessor) RetryFailed(ctx context.Context) error {
	return p.outbox.RetryFailedSyncs(ctx)
}
