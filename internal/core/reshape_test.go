package core

import (
	"testing"
	"time"
)

func TestUniqueDates(t *testing.T) {
	items := []PlanItem{
		item(Income, "a", "2024-03-01", "1"),
		item(Income, "a", "2024-01-15", "1"),
		item(Costs, "b", "2024-03-01T00:00:00Z", "1"),
		item(Costs, "b", "garbage", "1"),
	}
	got := UniqueDates(items)
	want := []MonthKey{"2024-01", "2024-03"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBuildTableKeepsDuplicateNames(t *testing.T) {
	p := Plan{Name: "dup", TermYears: 1, Items: []PlanItem{
		item(Costs, "Loan", "2024-01-01", "100"),
		item(Costs, "Loan", "2024-01-01", "200"),
		item(Costs, "Loan", "2024-02-01", "110"),
		item(Costs, "Loan", "2024-02-01", "210"),
	}}
	tbl := BuildTable(p)
	rows := tbl.Rows(Costs)
	if len(rows) != 2 {
		t.Fatalf("expected two rows named Loan, got %d", len(rows))
	}
	assertDec(t, "first row", rows[0].Values["2024-02"], "110")
	assertDec(t, "second row", rows[1].Values["2024-02"], "210")

	again := BuildTable(ApplySave(p, Flatten(tbl), time.Now()))
	if render(again) != render(tbl) {
		t.Fatalf("round trip changed the table:\n%s\nwant:\n%s", render(again), render(tbl))
	}
}

func TestBuildTableRenamesSyntheticRows(t *testing.T) {
	p := Plan{Name: "x", TermYears: 1, Items: []PlanItem{
		item(ProfitLoss, "Result", "2024-01-01", "999"),
		item(Investments, "Savings", "2024-01-01", "10"),
		item(Investments, "ETF", "2024-01-01", "3"),
	}}
	tbl := BuildTable(p)

	pl := tbl.Rows(ProfitLoss)[0]
	if pl.Name != "Result" {
		t.Fatalf("profit/loss name = %q", pl.Name)
	}
	assertDec(t, "stored profit/loss is derived", pl.Values["2024-01"], "0")

	r, _ := tbl.Lookup(Investments, ReserveRowID)
	if r.Name != "Savings" {
		t.Fatalf("reserve name = %q", r.Name)
	}
	etf, ok := tbl.Lookup(Investments, 1)
	if !ok || etf.Name != "ETF" {
		t.Fatalf("expected ETF at id 1, got %+v", etf)
	}
}

func TestFlattenWireShape(t *testing.T) {
	req := Flatten(BuildTable(scenarioPlan()))
	if len(req) != len(Categories()) {
		t.Fatalf("expected every category in the payload, got %d", len(req))
	}
	income := req[Income].Items
	if len(income) != 2 {
		t.Fatalf("expected 2 income entries, got %d", len(income))
	}
	for _, it := range income {
		if it.Date != "2024-01-01" && it.Date != "2024-02-01" {
			t.Fatalf("unexpected date %q", it.Date)
		}
		assertDec(t, "meta", it.Meta, "2000")
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestApplySaveReplacesCategories(t *testing.T) {
	p := scenarioPlan()
	p.Version = 3
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	req := SaveRequest{Costs: {Items: []PlanItem{item(Costs, "Food", "2024-01-01", "50")}}}

	out := ApplySave(p, req, now)
	if out.Version != 4 || !out.UpdatedAt.Equal(now) {
		t.Fatalf("version/updated not bumped: %+v", out)
	}
	var costs, income int
	for _, it := range out.Items {
		switch it.Category {
		case Costs:
			costs++
		case Income:
			income++
		}
	}
	if costs != 1 || income != 2 {
		t.Fatalf("costs=%d income=%d", costs, income)
	}
	if len(p.Items) != 6 {
		t.Fatalf("input plan was modified")
	}
}

func TestSaveRequestValidate(t *testing.T) {
	bad := SaveRequest{"bogus": {}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown category error")
	}
	badDate := SaveRequest{Income: {Items: []PlanItem{{Name: "x", Date: "soon"}}}}
	if err := badDate.Validate(); err == nil {
		t.Fatalf("expected invalid month error")
	}
}

func TestNewPlan(t *testing.T) {
	p, err := NewPlan(" Retirement ", "2025-01", 2)
	if err != nil {
		t.Fatalf("new plan: %v", err)
	}
	if p.Name != "Retirement" {
		t.Fatalf("name = %q", p.Name)
	}
	tbl := BuildTable(p)
	if len(tbl.Dates()) != 24 {
		t.Fatalf("expected 24 columns, got %d", len(tbl.Dates()))
	}
	for _, c := range Categories() {
		if tbl.RowCount(c) != 1 {
			t.Fatalf("%s: expected one row, got %d", c, tbl.RowCount(c))
		}
	}
	r, _ := tbl.Lookup(Investments, ReserveRowID)
	if r.Name != DefaultReserveName {
		t.Fatalf("reserve name = %q", r.Name)
	}

	if _, err := NewPlan("x", "2025-13", 1); err == nil {
		t.Fatalf("expected invalid month")
	}
	if _, err := NewPlan("", "2025-01", 1); err == nil {
		t.Fatalf("expected empty name error")
	}
	if _, err := NewPlan("x", "2025-01", 0); err == nil {
		t.Fatalf("expected invalid term")
	}
}
