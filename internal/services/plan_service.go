package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"lifeplan/internal/cache"
	"lifeplan/internal/core"
	"lifeplan/internal/plans"
)

// Publisher announces saved and deleted plans to the mirror worker.
// *amqp.Client implements it.
type Publisher interface {
	PublishPlanSync(ctx context.Context, planID string, version int64) error
	PublishPlanDelete(ctx context.Context, planID string) error
}

// PlanService orchestrates plan operations across the store, the plan cache
// and the mirror pipeline.
type PlanService struct {
	store     plans.Store
	cache     cache.Cache[core.Plan]
	publisher Publisher
	outbox    plans.Outbox

	overviewConcurrency int
}

type PlanServiceOption func(*PlanService)

func WithPlanCache(c cache.Cache[core.Plan]) PlanServiceOption {
	return func(s *PlanService) { s.cache = c }
}

func WithPublisher(p Publisher) PlanServiceOption {
	return func(s *PlanService) { s.publisher = p }
}

// WithOutbox overrides the outbox detected on the store.
func WithOutbox(o plans.Outbox) PlanServiceOption {
	return func(s *PlanService) { s.outbox = o }
}

func WithOverviewConcurrency(n int) PlanServiceOption {
	return func(s *PlanService) {
		if n > 0 {
			s.overviewConcurrency = n
		}
	}
}

func NewPlanService(store plans.Store, opts ...PlanServiceOption) *PlanService {
	s := &PlanService{store: store, overviewConcurrency: 4}
	if o, ok := store.(plans.Outbox); ok {
		s.outbox = o
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying backend.
func (s *PlanService) Store() plans.Store { return s.store }

func (s *PlanService) Get(ctx context.Context, id string) (core.Plan, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, id); ok {
			return p, nil
		}
	}
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return core.Plan{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, id, p)
	}
	return p, nil
}

func (s *PlanService) List(ctx context.Context) ([]core.PlanSummary, error) {
	return s.store.ListPlans(ctx)
}

// Create validates and stores a new plan.
func (s *PlanService) Create(ctx context.Context, p core.Plan) (core.Plan, error) {
	if err := p.Validate(); err != nil {
		return core.Plan{}, err
	}
	created, err := s.store.CreatePlan(ctx, p)
	if err != nil {
		return core.Plan{}, fmt.Errorf("create plan: %w", err)
	}
	s.notify(ctx, created.ID, created.Version, plans.OpSync)
	return created, nil
}

// Save persists req and returns the stored plan. Mirror notification
// failures are logged; the save itself has already succeeded.
func (s *PlanService) Save(ctx context.Context, id string, req core.SaveRequest) (core.Plan, error) {
	if err := req.Validate(); err != nil {
		return core.Plan{}, err
	}
	saved, err := s.store.SavePlan(ctx, id, req)
	if err != nil {
		if s.cache != nil {
			s.cache.Delete(ctx, id)
		}
		return core.Plan{}, fmt.Errorf("save plan: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, id, saved)
	}
	s.notify(ctx, id, saved.Version, plans.OpSync)
	return saved, nil
}

func (s *PlanService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePlan(ctx, id); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if s.cache != nil {
		s.cache.Delete(ctx, id)
	}
	s.notify(ctx, id, 0, plans.OpDelete)
	return nil
}

// Dashboard summarizes one plan.
func (s *PlanService) Dashboard(ctx context.Context, id string) (core.PlanOverview, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return core.PlanOverview{}, err
	}
	return core.Summarize(p, core.BuildTable(p)), nil
}

// Overview summarizes every plan, loading them concurrently. The result keeps
// the order of List.
func (s *PlanService) Overview(ctx context.Context) ([]core.PlanOverview, error) {
	list, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	out := make([]core.PlanOverview, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.overviewConcurrency)
	for i, summary := range list {
		g.Go(func() error {
			ov, err := s.Dashboard(gctx, summary.ID)
			if errors.Is(err, plans.ErrNotFound) {
				// Deleted between list and load.
				return nil
			}
			if err != nil {
				return fmt.Errorf("plan %s: %w", summary.ID, err)
			}
			out[i] = ov
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	compact := out[:0]
	for _, ov := range out {
		if ov.PlanID != "" {
			compact = append(compact, ov)
		}
	}
	return compact, nil
}

// notify publishes to the broker when one is configured and falls back to
// the store's outbox otherwise.
func (s *PlanService) notify(ctx context.Context, id string, version int64, op plans.SyncOperation) {
	if s.publisher != nil {
		var err error
		if op == plans.OpDelete {
			err = s.publisher.PublishPlanDelete(ctx, id)
		} else {
			err = s.publisher.PublishPlanSync(ctx, id, version)
		}
		if err == nil {
			return
		}
		slog.ErrorContext(ctx, "Failed to publish plan sync message",
			"plan_id", id, "operation", op, "error", err)
	}
	if s.outbox == nil {
		return
	}
	if err := s.outbox.EnqueueSync(ctx, id, version, op); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue plan sync",
			"plan_id", id, "operation", op, "error", err)
	}
}

// Close releases the store and publisher when they hold resources.
func (s *PlanService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close plan service: %w", errors.Join(errs...))
	}
	return nil
}
