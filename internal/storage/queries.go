package storage

import (
	"context"
	"time"
)

const planColumns = `id, name, term_years, start_month, version, sync_status, synced_at, created_at, updated_at`

func scanPlan(row interface{ Scan(...interface{}) error }) (Plan, error) {
	var p Plan
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.TermYears,
		&p.StartMonth,
		&p.Version,
		&p.SyncStatus,
		&p.SyncedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

const getPlan = `SELECT ` + planColumns + ` FROM plans WHERE id = ?`

func (q *Queries) GetPlan(ctx context.Context, id string) (Plan, error) {
	return scanPlan(q.db.QueryRowContext(ctx, getPlan, id))
}

const listPlans = `SELECT ` + planColumns + ` FROM plans ORDER BY name, id`

func (q *Queries) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := q.db.QueryContext(ctx, listPlans)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

type CreatePlanParams struct {
	ID         string
	Name       string
	TermYears  int64
	StartMonth string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const createPlan = `
INSERT INTO plans (id, name, term_years, start_month, version, sync_status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`

func (q *Queries) CreatePlan(ctx context.Context, arg CreatePlanParams) error {
	_, err := q.db.ExecContext(ctx, createPlan,
		arg.ID,
		arg.Name,
		arg.TermYears,
		arg.StartMonth,
		arg.Version,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const bumpPlanVersion = `
UPDATE plans
SET version = version + 1, sync_status = 'pending', updated_at = ?
WHERE id = ?
RETURNING version`

func (q *Queries) BumpPlanVersion(ctx context.Context, id string, updatedAt time.Time) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, bumpPlanVersion, updatedAt, id).Scan(&version)
	return version, err
}

const deletePlan = `DELETE FROM plans WHERE id = ?`

func (q *Queries) DeletePlan(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePlan, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listPlanItems = `
SELECT id, plan_id, category, position, name, value, item_date, meta
FROM plan_items
WHERE plan_id = ?
ORDER BY id`

func (q *Queries) ListPlanItems(ctx context.Context, planID string) ([]PlanItem, error) {
	rows, err := q.db.QueryContext(ctx, listPlanItems, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlanItem
	for rows.Next() {
		var i PlanItem
		if err := rows.Scan(
			&i.ID,
			&i.PlanID,
			&i.Category,
			&i.Position,
			&i.Name,
			&i.Value,
			&i.ItemDate,
			&i.Meta,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

type InsertPlanItemParams struct {
	PlanID   string
	Category string
	Position int64
	Name     string
	Value    string
	ItemDate string
	Meta     string
}

const insertPlanItem = `
INSERT INTO plan_items (plan_id, category, position, name, value, item_date, meta)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertPlanItem(ctx context.Context, arg InsertPlanItemParams) error {
	_, err := q.db.ExecContext(ctx, insertPlanItem,
		arg.PlanID,
		arg.Category,
		arg.Position,
		arg.Name,
		arg.Value,
		arg.ItemDate,
		arg.Meta,
	)
	return err
}

const deletePlanItemsByCategory = `DELETE FROM plan_items WHERE plan_id = ? AND category = ?`

func (q *Queries) DeletePlanItemsByCategory(ctx context.Context, planID, category string) error {
	_, err := q.db.ExecContext(ctx, deletePlanItemsByCategory, planID, category)
	return err
}

const deletePlanItems = `DELETE FROM plan_items WHERE plan_id = ?`

func (q *Queries) DeletePlanItems(ctx context.Context, planID string) error {
	_, err := q.db.ExecContext(ctx, deletePlanItems, planID)
	return err
}

const getPendingSyncPlans = `
SELECT id, version, updated_at FROM plans
WHERE sync_status = 'pending'
ORDER BY updated_at
LIMIT ?`

type GetPendingSyncPlansRow struct {
	ID        string
	Version   int64
	UpdatedAt time.Time
}

func (q *Queries) GetPendingSyncPlans(ctx context.Context, limit int64) ([]GetPendingSyncPlansRow, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSyncPlans, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetPendingSyncPlansRow
	for rows.Next() {
		var i GetPendingSyncPlansRow
		if err := rows.Scan(&i.ID, &i.Version, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const markPlanSynced = `UPDATE plans SET sync_status = 'synced', synced_at = ? WHERE id = ?`

func (q *Queries) MarkPlanSynced(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, markPlanSynced, at, id)
	return err
}

const markPlanSyncError = `UPDATE plans SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkPlanSyncError(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markPlanSyncError, id)
	return err
}

const getSetting = `SELECT value FROM settings WHERE key = ?`

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, getSetting, key).Scan(&value)
	return value, err
}

const upsertSetting = `
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (q *Queries) UpsertSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, upsertSetting, key, value, at)
	return err
}

const enqueueSync = `
INSERT INTO sync_queue (plan_id, plan_version, operation, status, created_at, updated_at)
VALUES (?, ?, ?, 'pending', ?, ?)`

func (q *Queries) EnqueueSync(ctx context.Context, planID string, version int64, operation string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, enqueueSync, planID, version, operation, at, at)
	return err
}

const syncQueueColumns = `id, plan_id, plan_version, operation, status, attempts, last_error, created_at, updated_at, processed_at`

const dequeueSyncBatch = `SELECT ` + syncQueueColumns + ` FROM sync_queue
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT ?`

func (q *Queries) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueue, error) {
	rows, err := q.db.QueryContext(ctx, dequeueSyncBatch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SyncQueue
	for rows.Next() {
		var i SyncQueue
		if err := rows.Scan(
			&i.ID,
			&i.PlanID,
			&i.PlanVersion,
			&i.Operation,
			&i.Status,
			&i.Attempts,
			&i.LastError,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.ProcessedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const resetStaleProcessing = `UPDATE sync_queue SET status = 'pending', updated_at = ? WHERE status = 'processing'`

func (q *Queries) ResetStaleProcessing(ctx context.Context, at time.Time) error {
	_, err := q.db.ExecContext(ctx, resetStaleProcessing, at)
	return err
}

const markSyncProcessing = `UPDATE sync_queue SET status = 'processing', updated_at = ? WHERE id = ?`

func (q *Queries) MarkSyncProcessing(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, markSyncProcessing, at, id)
	return err
}

const markSyncComplete = `
UPDATE sync_queue SET status = 'completed', updated_at = ?, processed_at = ? WHERE id = ?`

func (q *Queries) MarkSyncComplete(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, markSyncComplete, at, at, id)
	return err
}

const markSyncFailed = `
UPDATE sync_queue
SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ?, processed_at = ?
WHERE id = ?`

func (q *Queries) MarkSyncFailed(ctx context.Context, id int64, cause string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, markSyncFailed, cause, at, at, id)
	return err
}

const incrementSyncAttempt = `
UPDATE sync_queue
SET status = 'pending', attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) IncrementSyncAttempt(ctx context.Context, id int64, cause string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, incrementSyncAttempt, cause, at, id)
	return err
}

const cleanupCompletedSyncs = `DELETE FROM sync_queue WHERE status = 'completed' AND processed_at < ?`

func (q *Queries) CleanupCompletedSyncs(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupCompletedSyncs, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const retryFailedSyncs = `
UPDATE sync_queue SET status = 'pending', attempts = 0, updated_at = ? WHERE status = 'failed'`

func (q *Queries) RetryFailedSyncs(ctx context.Context, at time.Time) error {
	_, err := q.db.ExecContext(ctx, retryFailedSyncs, at)
	return err
}

const getSyncQueueStats = `
SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM sync_queue`

func (q *Queries) GetSyncQueueStats(ctx context.Context) (GetSyncQueueStatsRow, error) {
	var i GetSyncQueueStatsRow
	err := q.db.QueryRowContext(ctx, getSyncQueueStats).Scan(
		&i.PendingCount,
		&i.ProcessingCount,
		&i.CompletedCount,
		&i.FailedCount,
	)
	return i, err
}
