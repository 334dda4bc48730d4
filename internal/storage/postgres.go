package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
	"lifeplan/internal/settings"
)

// PostgresRepository is the PostgreSQL plan store. It mirrors the SQLite
// repository so either can back the server.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	defaults settings.Settings
	now      func() time.Time
}

// NewPostgresRepository migrates the schema and opens a connection pool.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRepository{pool: pool, defaults: settings.Default(), now: time.Now}, nil
}

func (r *PostgresRepository) SetDefaultSettings(s settings.Settings) {
	r.defaults = s
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) GetPlan(ctx context.Context, id string) (core.Plan, error) {
	var p Plan
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, term_years, start_month, version, created_at, updated_at
		FROM plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.TermYears, &p.StartMonth, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Plan{}, fmt.Errorf("%w: %s", plans.ErrNotFound, id)
	}
	if err != nil {
		return core.Plan{}, fmt.Errorf("get plan: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, category, position, name, value::text, to_char(item_date, 'YYYY-MM-DD'), meta::text
		FROM plan_items WHERE plan_id = $1 ORDER BY id`, id)
	if err != nil {
		return core.Plan{}, fmt.Errorf("list plan items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PlanItem, error) {
		i := PlanItem{PlanID: id}
		err := row.Scan(&i.ID, &i.Category, &i.Position, &i.Name, &i.Value, &i.ItemDate, &i.Meta)
		return i, err
	})
	if err != nil {
		return core.Plan{}, fmt.Errorf("scan plan items: %w", err)
	}

	return toCorePlan(p, items)
}

func (r *PostgresRepository) ListPlans(ctx context.Context) ([]core.PlanSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, term_years, version, updated_at FROM plans ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.PlanSummary, error) {
		var s core.PlanSummary
		err := row.Scan(&s.ID, &s.Name, &s.TermYears, &s.Version, &s.UpdatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan plans: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CreatePlan(ctx context.Context, p core.Plan) (core.Plan, error) {
	if err := p.Validate(); err != nil {
		return core.Plan{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	now := r.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO plans (id, name, term_years, start_month, version, sync_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)`,
			p.ID, p.Name, p.TermYears, string(p.Start), p.Version, now); err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		return insertItemsPg(ctx, tx, p.ID, p.Items)
	})
	if err != nil {
		return core.Plan{}, err
	}

	slog.InfoContext(ctx, "Plan saved to PostgreSQL", "plan_id", p.ID, "items", len(p.Items))
	return p, nil
}

func (r *PostgresRepository) SavePlan(ctx context.Context, id string, req core.SaveRequest) (core.Plan, error) {
	if err := req.Validate(); err != nil {
		return core.Plan{}, err
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var version int64
		err := tx.QueryRow(ctx, `
			UPDATE plans SET version = version + 1, sync_status = 'pending', updated_at = $2
			WHERE id = $1 RETURNING version`, id, r.now().UTC()).Scan(&version)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", plans.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("bump plan version: %w", err)
		}

		categories := make([]string, 0, len(req))
		for c := range req {
			categories = append(categories, string(c))
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM plan_items WHERE plan_id = $1 AND category = ANY($2)`, id, categories); err != nil {
			return fmt.Errorf("delete replaced items: %w", err)
		}
		return insertItemsPg(ctx, tx, id, req.Items())
	})
	if err != nil {
		return core.Plan{}, err
	}

	return r.GetPlan(ctx, id)
}

func (r *PostgresRepository) DeletePlan(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", plans.ErrNotFound, id)
	}
	return nil
}

func insertItemsPg(ctx context.Context, tx pgx.Tx, planID string, items []core.PlanItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	positions := make(map[core.Category]int64)
	for _, it := range items {
		m, err := core.ParseMonthKey(it.Date)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO plan_items (plan_id, category, position, name, value, item_date, meta)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::date, $7::numeric)`,
			planID, string(it.Category), positions[it.Category], it.Name,
			it.Value.String(), m.FirstDay(), it.Meta.String())
		positions[it.Category]++
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert plan items: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPendingSyncPlans(ctx context.Context, limit int) ([]plans.PendingSync, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, version, updated_at FROM plans
		WHERE sync_status = 'pending' ORDER BY updated_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync plans: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (plans.PendingSync, error) {
		var p plans.PendingSync
		err := row.Scan(&p.PlanID, &p.Version, &p.UpdatedAt)
		return p, err
	})
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, planID string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE plans SET sync_status = 'synced', synced_at = $2 WHERE id = $1`, planID, r.now().UTC()); err != nil {
		return fmt.Errorf("mark plan synced: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkSyncError(ctx context.Context, planID string) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE plans SET sync_status = 'error' WHERE id = $1`, planID); err != nil {
		return fmt.Errorf("mark plan sync error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSettings(ctx context.Context) (settings.Settings, error) {
	s := r.defaults
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings WHERE key = ANY($1)`,
		[]string{settingTheme, settingLocale})
	if err != nil {
		return s, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return s, fmt.Errorf("scan setting: %w", err)
		}
		switch key {
		case settingTheme:
			if t, err := settings.ParseTheme(value); err == nil {
				s.Theme = t
			}
		case settingLocale:
			s.Locale = value
		}
	}
	return s, rows.Err()
}

func (r *PostgresRepository) SaveSettings(ctx context.Context, s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	const upsert = `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	batch.Queue(upsert, settingTheme, string(s.Theme))
	batch.Queue(upsert, settingLocale, s.Locale)
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *PostgresRepository) EnqueueSync(ctx context.Context, planID string, version int64, op plans.SyncOperation) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO sync_queue (plan_id, plan_version, operation) VALUES ($1, $2, $3)`,
		planID, version, string(op)); err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ResetStaleProcessing(ctx context.Context) error {
	return r.exec(ctx, "reset stale processing",
		`UPDATE sync_queue SET status = 'pending', updated_at = NOW() WHERE status = 'processing'`)
}

func (r *PostgresRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]plans.SyncItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, plan_id, plan_version, operation, attempts, last_error, created_at
		FROM sync_queue WHERE status = 'pending'
		ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (plans.SyncItem, error) {
		var i plans.SyncItem
		var op string
		err := row.Scan(&i.ID, &i.PlanID, &i.PlanVersion, &op, &i.Attempts, &i.LastError, &i.CreatedAt)
		i.Operation = plans.SyncOperation(op)
		return i, err
	})
}

func (r *PostgresRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark sync processing",
		`UPDATE sync_queue SET status = 'processing', updated_at = NOW() WHERE id = $1`, id)
}

func (r *PostgresRepository) MarkSyncComplete(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark sync complete",
		`UPDATE sync_queue SET status = 'completed', updated_at = NOW(), processed_at = NOW() WHERE id = $1`, id)
}

func (r *PostgresRepository) MarkSyncFailed(ctx context.Context, id int64, cause string) error {
	return r.exec(ctx, "mark sync failed", `
		UPDATE sync_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW(), processed_at = NOW()
		WHERE id = $1`, id, cause)
}

func (r *PostgresRepository) IncrementSyncAttempt(ctx context.Context, id int64, cause string) error {
	return r.exec(ctx, "increment sync attempt", `
		UPDATE sync_queue SET status = 'pending', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, cause)
}

func (r *PostgresRepository) CleanupCompletedSyncs(ctx context.Context, before time.Time) error {
	return r.exec(ctx, "cleanup completed syncs",
		`DELETE FROM sync_queue WHERE status = 'completed' AND processed_at < $1`, before)
}

func (r *PostgresRepository) RetryFailedSyncs(ctx context.Context) error {
	return r.exec(ctx, "retry failed syncs",
		`UPDATE sync_queue SET status = 'pending', attempts = 0, updated_at = NOW() WHERE status = 'failed'`)
}

func (r *PostgresRepository) GetSyncQueueStats(ctx context.Context) (plans.SyncQueueStats, error) {
	var s plans.SyncQueueStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM sync_queue`).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	if err != nil {
		return s, fmt.Errorf("get sync queue stats: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

var (
	_ plans.Store       = (*PostgresRepository)(nil)
	_ plans.SyncTracker = (*PostgresRepository)(nil)
	_ plans.Outbox      = (*PostgresRepository)(nil)
	_ settings.Store    = (*PostgresRepository)(nil)
)
