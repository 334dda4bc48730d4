package core

import (
	"errors"
	"strings"
	"testing"
)

func TestEditProfitLossIsNoOp(t *testing.T) {
	e := NewEditor(scenarioPlan())
	before := render(e.Snapshot())

	if err := e.SetValue(ProfitLoss, 0, "2024-01", "123"); !errors.Is(err, ErrCellLocked) {
		t.Fatalf("expected ErrCellLocked, got %v", err)
	}
	if err := e.Rename(ProfitLoss, 0, "Mine"); !errors.Is(err, ErrCellLocked) {
		t.Fatalf("expected ErrCellLocked on rename, got %v", err)
	}
	if err := e.Select(CellRef{Category: ProfitLoss, RowID: 0, Field: FieldValue, Date: "2024-02"}); !errors.Is(err, ErrCellLocked) {
		t.Fatalf("expected ErrCellLocked on select, got %v", err)
	}
	if got := render(e.Snapshot()); got != before {
		t.Fatalf("table changed:\n%s\nwant:\n%s", got, before)
	}
	if e.Dirty() {
		t.Fatalf("blocked edits must not mark the table dirty")
	}
}

func TestReserveEditableOnlyAtFirstDate(t *testing.T) {
	e := NewEditor(scenarioPlan())
	before := render(e.Snapshot())

	if err := e.SetValue(Investments, ReserveRowID, "2024-02", "1"); !errors.Is(err, ErrCellLocked) {
		t.Fatalf("expected ErrCellLocked, got %v", err)
	}
	if got := render(e.Snapshot()); got != before {
		t.Fatalf("table changed by a locked write")
	}

	if err := e.SetValue(Investments, ReserveRowID, "2024-01", "7000"); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	r, _ := e.Snapshot().Lookup(Investments, ReserveRowID)
	assertDec(t, "reserve(2024-02)", r.Values["2024-02"], "7500")
	assertDec(t, "reserve firstMeta", r.FirstMeta, "7500")

	if !e.Editable(CellRef{Category: Investments, RowID: ReserveRowID, Field: FieldName}) {
		t.Fatalf("reserve name should stay editable")
	}
}

func TestCeilingRejectsOverdraw(t *testing.T) {
	e := NewEditor(scenarioPlan())
	id, err := e.AddRow(Investments, "ETF")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	before := render(e.Snapshot())

	err = e.SetValue(Investments, id, "2024-01", "6000")
	var ce *CeilingError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CeilingError, got %v", err)
	}
	if !errors.Is(err, ErrCeilingExceeded) {
		t.Fatalf("CeilingError should match ErrCeilingExceeded")
	}
	assertDec(t, "Maximum", ce.Maximum, "5000")
	assertDec(t, "Available", ce.Available, "5000")
	if !strings.Contains(err.Error(), "5000.00") {
		t.Fatalf("message should name the maximum permissible amount: %s", err)
	}
	if got := render(e.Snapshot()); got != before {
		t.Fatalf("rejected edit changed the table")
	}
}

func TestCeilingAcceptsUpToRemainingCapacity(t *testing.T) {
	e := NewEditor(scenarioPlan())
	a, _ := e.AddRow(Investments, "ETF")
	b, _ := e.AddRow(Investments, "Bonds")

	if err := e.SetValue(Investments, a, "2024-01", "3000"); err != nil {
		t.Fatalf("first investment: %v", err)
	}
	if err := e.SetValue(Investments, b, "2024-01", "2000"); err != nil {
		t.Fatalf("investment at capacity: %v", err)
	}

	var ce *CeilingError
	if err := e.SetValue(Investments, b, "2024-01", "2000.01"); !errors.As(err, &ce) {
		t.Fatalf("expected CeilingError, got %v", err)
	}
	assertDec(t, "Available", ce.Available, "2000")

	// The edited row's own value is not counted against it.
	if err := e.SetValue(Investments, a, "2024-01", "2500"); err != nil {
		t.Fatalf("lowering an investment: %v", err)
	}

	if err := e.SetValue(Investments, a, "2024-02", "1000"); err != nil {
		t.Fatalf("investment at last month: %v", err)
	}
	r, _ := e.Snapshot().Lookup(Investments, a)
	assertDec(t, "firstMeta", r.FirstMeta, "1000")
}

func TestProfitLossFollowsEdits(t *testing.T) {
	e := NewEditor(scenarioPlan())
	studies, _ := e.AddRow(Studies, "Course")

	if err := e.SetValue(Studies, studies, "2024-02", "100"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := e.SetValue(Income, 0, "2024-01", "1200"); err != nil {
		t.Fatalf("set: %v", err)
	}
	tbl := e.Snapshot()
	for _, d := range tbl.Dates() {
		want := tbl.Subtotal(Income, d).Sub(tbl.Subtotal(Costs, d)).Sub(tbl.Subtotal(Studies, d))
		pl := tbl.Rows(ProfitLoss)[0]
		if !pl.Values[d].Equal(want) {
			t.Fatalf("profit/loss at %s = %s, want %s", d, pl.Values[d], want)
		}
	}
	r, _ := tbl.Lookup(Investments, ReserveRowID)
	// 5000 + (1000 - 500 - 100)
	assertDec(t, "reserve(2024-02)", r.Values["2024-02"], "5400")
}

func TestSelectCommitStateMachine(t *testing.T) {
	e := NewEditor(scenarioPlan())
	id, _ := e.AddRow(Investments, "ETF")
	ref := CellRef{Category: Investments, RowID: id, Field: FieldValue, Date: "2024-01"}

	if err := e.Commit("1"); !errors.Is(err, ErrNoActiveCell) {
		t.Fatalf("expected ErrNoActiveCell, got %v", err)
	}
	if err := e.Select(ref); err != nil {
		t.Fatalf("select: %v", err)
	}
	if e.State(ref) != CellEditing {
		t.Fatalf("state = %s, want editing", e.State(ref))
	}

	if err := e.Commit("9999"); !errors.Is(err, ErrCeilingExceeded) {
		t.Fatalf("expected ceiling rejection, got %v", err)
	}
	if e.State(ref) != CellRejected {
		t.Fatalf("state = %s, want rejected", e.State(ref))
	}
	if active, ok := e.Active(); !ok || active != ref {
		t.Fatalf("rejected cell should stay active")
	}

	if err := e.Commit("100"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if e.State(ref) != CellDisplayed {
		t.Fatalf("state = %s, want displayed", e.State(ref))
	}
	if _, ok := e.Active(); ok {
		t.Fatalf("no cell should be active after commit")
	}
}

func TestSelectRejectsDerivedFields(t *testing.T) {
	e := NewEditor(scenarioPlan())
	tests := []struct {
		name string
		ref  CellRef
		want error
	}{
		{"firstMeta", CellRef{Category: Income, RowID: 0, Field: FieldFirstMeta}, ErrCellLocked},
		{"unknown date", CellRef{Category: Income, RowID: 0, Field: FieldValue, Date: "1999-01"}, ErrUnknownDate},
		{"unknown row", CellRef{Category: Income, RowID: 42, Field: FieldValue, Date: "2024-01"}, ErrRowNotFound},
		{"unknown category", CellRef{Category: "bogus", Field: FieldName}, ErrUnknownCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.Select(tt.ref); !errors.Is(err, tt.want) {
				t.Fatalf("Select = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCommitName(t *testing.T) {
	e := NewEditor(scenarioPlan())
	ref := CellRef{Category: Costs, RowID: 0, Field: FieldName}
	if err := e.Select(ref); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := e.Commit("Mortgage"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	r, _ := e.Snapshot().Lookup(Costs, 0)
	if r.Name != "Mortgage" {
		t.Fatalf("name = %q", r.Name)
	}
	if !e.Dirty() {
		t.Fatalf("rename should mark the table dirty")
	}
}

func TestSaveAndDiscard(t *testing.T) {
	e := NewEditor(scenarioPlan())
	if _, err := e.SavePayload(); !errors.Is(err, ErrNothingToSave) {
		t.Fatalf("expected ErrNothingToSave, got %v", err)
	}
	original := render(e.Snapshot())

	if err := e.SetValue(Costs, 0, "2024-01", "0"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := e.SavePayload(); err != nil {
		t.Fatalf("payload: %v", err)
	}

	e.Discard()
	if e.Dirty() {
		t.Fatalf("discard should clear the dirty flag")
	}
	if got := render(e.Snapshot()); got != original {
		t.Fatalf("discard did not restore the table")
	}
}

func TestRemoveRowClearsActiveCell(t *testing.T) {
	e := NewEditor(scenarioPlan())
	if err := e.Select(CellRef{Category: Costs, RowID: 0, Field: FieldName}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := e.RemoveRow(Costs, 0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := e.Active(); ok {
		t.Fatalf("active cell of a removed row should be dropped")
	}
	assertDec(t, "ProfitLoss", e.Snapshot().ProfitLoss("2024-01"), "1000")
}

func TestMarkSavedResetsBaseline(t *testing.T) {
	e := NewEditor(scenarioPlan())
	_ = e.SetValue(Income, 0, "2024-01", "2000")
	req, err := e.SavePayload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	saved := ApplySave(e.Plan(), req, e.Plan().UpdatedAt)
	e.MarkSaved(saved)

	if e.Dirty() {
		t.Fatalf("saved editor should be clean")
	}
	if e.Plan().Version != saved.Version {
		t.Fatalf("baseline not replaced")
	}
	e.Discard()
	r, _ := e.Snapshot().Lookup(Income, 0)
	assertDec(t, "income after discard", r.Values["2024-01"], "2000")
}
