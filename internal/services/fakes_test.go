package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
	"lifeplan/internal/plans/memory"
)

type published struct {
	planID  string
	version int64
	op      plans.SyncOperation
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	fail   error
	closed bool
}

func (p *fakePublisher) PublishPlanSync(_ context.Context, id string, version int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, published{id, version, plans.OpSync})
	return nil
}

func (p *fakePublisher) PublishPlanDelete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, published{id, 0, plans.OpDelete})
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

// fakeOutbox is an in-memory plans.Outbox.
type fakeOutbox struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*outboxRow
}

type outboxRow struct {
	item   plans.SyncItem
	status string
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{items: map[int64]*outboxRow{}}
}

func (o *fakeOutbox) EnqueueSync(_ context.Context, planID string, version int64, op plans.SyncOperation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.items[o.nextID] = &outboxRow{
		item:   plans.SyncItem{ID: o.nextID, PlanID: planID, PlanVersion: version, Operation: op, CreatedAt: time.Now()},
		status: "pending",
	}
	return nil
}

func (o *fakeOutbox) ResetStaleProcessing(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.items {
		if r.status == "processing" {
			r.status = "pending"
		}
	}
	return nil
}

func (o *fakeOutbox) DequeueSyncBatch(_ context.Context, limit int64) ([]plans.SyncItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []plans.SyncItem
	for id := int64(1); id <= o.nextID && int64(len(out)) < limit; id++ {
		if r, ok := o.items[id]; ok && r.status == "pending" {
			out = append(out, r.item)
		}
	}
	return out, nil
}

func (o *fakeOutbox) set(id int64, status, cause string, bump bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.items[id]
	if !ok {
		return errors.New("no such item")
	}
	r.status = status
	if cause != "" {
		r.item.LastError = cause
	}
	if bump {
		r.item.Attempts++
	}
	return nil
}

func (o *fakeOutbox) MarkSyncProcessing(_ context.Context, id int64) error {
	return o.set(id, "processing", "", false)
}

func (o *fakeOutbox) MarkSyncComplete(_ context.Context, id int64) error {
	return o.set(id, "completed", "", false)
}

func (o *fakeOutbox) MarkSyncFailed(_ context.Context, id int64, cause string) error {
	return o.set(id, "failed", cause, true)
}

func (o *fakeOutbox) IncrementSyncAttempt(_ context.Context, id int64, cause string) error {
	return o.set(id, "pending", cause, true)
}

func (o *fakeOutbox) CleanupCompletedSyncs(context.Context, time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, r := range o.items {
		if r.status == "completed" {
			delete(o.items, id)
		}
	}
	return nil
}

func (o *fakeOutbox) RetryFailedSyncs(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.items {
		if r.status == "failed" {
			r.status = "pending"
			r.item.Attempts = 0
		}
	}
	return nil
}

func (o *fakeOutbox) GetSyncQueueStats(context.Context) (plans.SyncQueueStats, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var s plans.SyncQueueStats
	for _, r := range o.items {
		switch r.status {
		case "pending":
			s.Pending++
		case "processing":
			s.Processing++
		case "completed":
			s.Completed++
		case "failed":
			s.Failed++
		}
	}
	return s, nil
}

// countingStore counts backend reads so cache hits can be observed.
type countingStore struct {
	*memory.Store
	mu    sync.Mutex
	reads int
}

func (s *countingStore) GetPlan(ctx context.Context, id string) (core.Plan, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.Store.GetPlan(ctx, id)
}

// exportingStore is a store that renders exports itself.
type exportingStore struct {
	*memory.Store
}

func (exportingStore) ExportPlan(_ context.Context, id string, format plans.ExportFormat) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("remote " + string(format) + " " + id)), nil
}

func scenarioPlan() core.Plan {
	item := func(c core.Category, name, date, v string) core.PlanItem {
		return core.PlanItem{Category: c, Name: name, Date: date, Value: core.ParseAmount(v)}
	}
	return core.Plan{
		Name:      "Scenario",
		TermYears: 1,
		Items: []core.PlanItem{
			item(core.Income, "Salary", "2024-01-01", "1000"),
			item(core.Income, "Salary", "2024-02-01", "1000"),
			item(core.Costs, "Rent", "2024-01-01", "400"),
			item(core.Costs, "Rent", "2024-02-01", "500"),
			item(core.Investments, "Reserve", "2024-01-01", "5000"),
			item(core.Investments, "Reserve", "2024-02-01", "0"),
		},
	}
}
