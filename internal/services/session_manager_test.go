package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifeplan/internal/core"
	"lifeplan/internal/plans/memory"
)

func newSessionFixture(t *testing.T) (*SessionManager, *fakePublisher, core.Plan) {
	t.Helper()
	pub := &fakePublisher{}
	svc := NewPlanService(memory.New(), WithPublisher(pub))
	p, err := svc.Create(context.Background(), scenarioPlan())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return NewSessionManager(svc, 16, time.Hour), pub, p
}

func TestSessionEditAndSave(t *testing.T) {
	m, pub, p := newSessionFixture(t)
	ctx := context.Background()

	v, err := m.Open(ctx, p.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if v.Dirty || v.PlanID != p.ID {
		t.Fatalf("unexpected fresh session %+v", v)
	}

	v, err = m.SetValue(ctx, v.ID, core.Costs, 0, "2024-01", "0")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !v.Dirty {
		t.Fatal("edit should mark the session dirty")
	}

	v, err = m.Save(ctx, v.ID)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if v.Dirty || v.Version != p.Version+1 {
		t.Fatalf("after save: dirty=%v version=%d", v.Dirty, v.Version)
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected create and save events, got %d", len(pub.events))
	}

	if _, err := m.Save(ctx, v.ID); !errors.Is(err, core.ErrNothingToSave) {
		t.Fatalf("expected ErrNothingToSave, got %v", err)
	}
}

func TestSessionRejectedCommitKeepsState(t *testing.T) {
	m, _, p := newSessionFixture(t)
	ctx := context.Background()
	v, _ := m.Open(ctx, p.ID)

	v, id, err := m.AddRow(ctx, v.ID, core.Investments, "ETF")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	ref := core.CellRef{Category: core.Investments, RowID: id, Field: core.FieldValue, Date: "2024-01"}
	if _, err := m.Select(ctx, v.ID, ref); err != nil {
		t.Fatalf("select: %v", err)
	}

	v, err = m.Commit(ctx, v.ID, "6000")
	var ce *core.CeilingError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CeilingError, got %v", err)
	}
	if v.Active == nil || *v.Active != ref || v.CellState != core.CellRejected {
		t.Fatalf("rejected cell should stay active: %+v %s", v.Active, v.CellState)
	}

	v, err = m.Cancel(ctx, v.ID)
	if err != nil || v.Active != nil {
		t.Fatalf("cancel: %v %+v", err, v.Active)
	}

	v, err = m.Discard(ctx, v.ID)
	if err != nil || v.Dirty {
		t.Fatalf("discard: %v dirty=%v", err, v.Dirty)
	}
}

func TestSessionRenameAndRemove(t *testing.T) {
	m, _, p := newSessionFixture(t)
	ctx := context.Background()
	v, _ := m.Open(ctx, p.ID)

	v, err := m.Rename(ctx, v.ID, core.Costs, 0, "Mortgage")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	v, err = m.RemoveRow(ctx, v.ID, core.Costs, 0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, cv := range v.Table.Categories {
		if cv.Category == core.Costs && len(cv.Rows) != 0 {
			t.Fatalf("costs rows = %d, want 0", len(cv.Rows))
		}
	}
	if _, err := m.RemoveRow(ctx, v.ID, core.Investments, core.ReserveRowID); !errors.Is(err, core.ErrReserveRow) {
		t.Fatalf("expected ErrReserveRow, got %v", err)
	}
}

func TestSessionNotFound(t *testing.T) {
	m, _, p := newSessionFixture(t)
	ctx := context.Background()
	if _, err := m.Get(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	v, _ := m.Open(ctx, p.ID)
	m.Close(ctx, v.ID)
	if _, err := m.Get(ctx, v.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("closed session should be gone, got %v", err)
	}
	if _, err := m.Open(ctx, "missing"); err == nil {
		t.Fatal("opening a missing plan should fail")
	}
}
