package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
	"lifeplan/internal/settings"

	_ "modernc.org/sqlite"
)

const (
	settingTheme  = "theme"
	settingLocale = "locale"
)

type SQLiteRepository struct {
	db       *sql.DB
	queries  *Queries
	defaults settings.Settings
	now      func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Writers serialize on the database file anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:       db,
		queries:  New(db),
		defaults: settings.Default(),
		now:      time.Now,
	}

	return repo, nil
}

// SetDefaultSettings sets the values returned for settings never saved.
func (r *SQLiteRepository) SetDefaultSettings(s settings.Settings) {
	r.defaults = s
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetPlan implements plans.PlanReader
func (r *SQLiteRepository) GetPlan(ctx context.Context, id string) (core.Plan, error) {
	row, err := r.queries.GetPlan(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Plan{}, fmt.Errorf("%w: %s", plans.ErrNotFound, id)
	}
	if err != nil {
		return core.Plan{}, fmt.Errorf("get plan: %w", err)
	}

	items, err := r.queries.ListPlanItems(ctx, id)
	if err != nil {
		return core.Plan{}, fmt.Errorf("list plan items: %w", err)
	}

	return toCorePlan(row, items)
}

// ListPlans implements plans.PlanLister
func (r *SQLiteRepository) ListPlans(ctx context.Context) ([]core.PlanSummary, error) {
	rows, err := r.queries.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	out := make([]core.PlanSummary, len(rows))
	for i, p := range rows {
		out[i] = core.PlanSummary{
			ID:        p.ID,
			Name:      p.Name,
			TermYears: int(p.TermYears),
			Version:   p.Version,
			UpdatedAt: p.UpdatedAt,
		}
	}
	return out, nil
}

// CreatePlan implements plans.PlanCreator
func (r *SQLiteRepository) CreatePlan(ctx context.Context, p core.Plan) (core.Plan, error) {
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

	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.CreatePlan(ctx, CreatePlanParams{
			ID:         p.ID,
			Name:       p.Name,
			TermYears:  int64(p.TermYears),
			StartMonth: string(p.Start),
			Version:    p.Version,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		return insertItems(ctx, q, p.ID, p.Items)
	})
	if err != nil {
		return core.Plan{}, err
	}

	slog.InfoContext(ctx, "Plan saved to SQLite",
		"plan_id", p.ID,
		"name", p.Name,
		"items", len(p.Items))

	return p, nil
}

// SavePlan implements plans.PlanWriter. Categories present in req replace the
// stored entries of that category in one transaction.
func (r *SQLiteRepository) SavePlan(ctx context.Context, id string, req core.SaveRequest) (core.Plan, error) {
	if err := req.Validate(); err != nil {
		return core.Plan{}, err
	}

	var version int64
	err := r.withTx(ctx, func(q *Queries) error {
		v, err := q.BumpPlanVersion(ctx, id, r.now().UTC())
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", plans.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("bump plan version: %w", err)
		}
		version = v

		for c := range req {
			if err := q.DeletePlanItemsByCategory(ctx, id, string(c)); err != nil {
				return fmt.Errorf("delete %s items: %w", c, err)
			}
		}
		return insertItems(ctx, q, id, req.Items())
	})
	if err != nil {
		return core.Plan{}, err
	}

	slog.InfoContext(ctx, "Plan updated in SQLite",
		"plan_id", id,
		"version", version,
		"categories", len(req))

	return r.GetPlan(ctx, id)
}

// DeletePlan implements plans.PlanDeleter
func (r *SQLiteRepository) DeletePlan(ctx context.Context, id string) error {
	return r.withTx(ctx, func(q *Queries) error {
		if err := q.DeletePlanItems(ctx, id); err != nil {
			return fmt.Errorf("delete plan items: %w", err)
		}
		n, err := q.DeletePlan(ctx, id)
		if err != nil {
			return fmt.Errorf("delete plan: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", plans.ErrNotFound, id)
		}
		return nil
	})
}

// GetPendingSyncPlans returns saved plans whose mirror is out of date.
func (r *SQLiteRepository) GetPendingSyncPlans(ctx context.Context, limit int) ([]plans.PendingSync, error) {
	rows, err := r.queries.GetPendingSyncPlans(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync plans: %w", err)
	}
	out := make([]plans.PendingSync, len(rows))
	for i, p := range rows {
		out[i] = plans.PendingSync{PlanID: p.ID, Version: p.Version, UpdatedAt: p.UpdatedAt}
	}
	return out, nil
}

// MarkSynced marks a plan as successfully mirrored
func (r *SQLiteRepository) MarkSynced(ctx context.Context, planID string) error {
	if err := r.queries.MarkPlanSynced(ctx, planID, r.now().UTC()); err != nil {
		return fmt.Errorf("mark plan synced: %w", err)
	}
	slog.InfoContext(ctx, "Plan marked as synced", "plan_id", planID)
	return nil
}

// MarkSyncError marks a plan as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, planID string) error {
	if err := r.queries.MarkPlanSyncError(ctx, planID); err != nil {
		return fmt.Errorf("mark plan sync error: %w", err)
	}
	slog.WarnContext(ctx, "Plan marked with sync error", "plan_id", planID)
	return nil
}

// GetSettings implements settings.Store
func (r *SQLiteRepository) GetSettings(ctx context.Context) (settings.Settings, error) {
	s := r.defaults
	theme, err := r.queries.GetSetting(ctx, settingTheme)
	switch {
	case err == nil:
		if t, perr := settings.ParseTheme(theme); perr == nil {
			s.Theme = t
		}
	case !errors.Is(err, sql.ErrNoRows):
		return s, fmt.Errorf("get theme: %w", err)
	}
	locale, err := r.queries.GetSetting(ctx, settingLocale)
	switch {
	case err == nil:
		s.Locale = locale
	case !errors.Is(err, sql.ErrNoRows):
		return s, fmt.Errorf("get locale: %w", err)
	}
	return s, nil
}

// SaveSettings implements settings.Store
func (r *SQLiteRepository) SaveSettings(ctx context.Context, s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	now := r.now().UTC()
	return r.withTx(ctx, func(q *Queries) error {
		if err := q.UpsertSetting(ctx, settingTheme, string(s.Theme), now); err != nil {
			return fmt.Errorf("save theme: %w", err)
		}
		if err := q.UpsertSetting(ctx, settingLocale, s.Locale, now); err != nil {
			return fmt.Errorf("save locale: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, q *Queries, planID string, items []core.PlanItem) error {
	positions := make(map[core.Category]int64)
	for _, it := range items {
		m, err := core.ParseMonthKey(it.Date)
		if err != nil {
			return err
		}
		if err := q.InsertPlanItem(ctx, InsertPlanItemParams{
			PlanID:   planID,
			Category: string(it.Category),
			Position: positions[it.Category],
			Name:     it.Name,
			Value:    it.Value.String(),
			ItemDate: m.FirstDay(),
			Meta:     it.Meta.String(),
		}); err != nil {
			return fmt.Errorf("insert plan item: %w", err)
		}
		positions[it.Category]++
	}
	return nil
}

func toCorePlan(p Plan, rows []PlanItem) (core.Plan, error) {
	items := make([]core.PlanItem, len(rows))
	for i, row := range rows {
		it, err := toCoreItem(row.Category, row.Name, row.Value, row.ItemDate, row.Meta)
		if err != nil {
			return core.Plan{}, fmt.Errorf("plan %s item %d: %w", p.ID, row.ID, err)
		}
		items[i] = it
	}
	return core.Plan{
		ID:        p.ID,
		Name:      p.Name,
		TermYears: int(p.TermYears),
		Start:     core.MonthKey(p.StartMonth),
		Version:   p.Version,
		Items:     items,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}
