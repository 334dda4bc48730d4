package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseCategory(t *testing.T) {
	if c, err := ParseCategory(" profitLoss "); err != nil || c != ProfitLoss {
		t.Fatalf("ParseCategory = %q, %v", c, err)
	}
	if _, err := ParseCategory("Income"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("category ids are case sensitive, got %v", err)
	}
	if len(Categories()) != 9 {
		t.Fatalf("expected nine categories")
	}
	if ProfitLoss.Label() != "Profit/Loss" {
		t.Fatalf("label = %q", ProfitLoss.Label())
	}
}

func TestParseMonthKey(t *testing.T) {
	tests := []struct {
		in      string
		want    MonthKey
		wantErr bool
	}{
		{"2024-01", "2024-01", false},
		{"2024-01-01", "2024-01", false},
		{"2024-12-31T23:00:00Z", "2024-12", false},
		{"2024-13-01", "", true},
		{"2024", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonthKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonthRangeCrossesYears(t *testing.T) {
	got := MonthRange("2024-11", 3)
	if len(got) != 3 || got[2] != "2025-01" {
		t.Fatalf("MonthRange = %v", got)
	}
	if got[2].Year() != 2025 || got[0].FirstDay() != "2024-11-01" {
		t.Fatalf("unexpected month helpers: %v", got)
	}
}

func TestPlanValidate(t *testing.T) {
	ok := scenarioPlan()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid plan: %v", err)
	}

	noName := ok
	noName.Name = " "
	if err := noName.Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}

	long := ok
	long.Name = strings.Repeat("x", 201)
	if err := long.Validate(); err == nil {
		t.Fatalf("expected long name error")
	}

	term := ok
	term.TermYears = 101
	if err := term.Validate(); !errors.Is(err, ErrInvalidTerm) {
		t.Fatalf("expected ErrInvalidTerm, got %v", err)
	}

	badItem := ok
	badItem.Items = []PlanItem{{Category: "nope", Date: "2024-01-01"}}
	if err := badItem.Validate(); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestPlanItemJSONUsesNumbers(t *testing.T) {
	b, err := json.Marshal(item(Income, "Salary", "2024-01-01", "12.5"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"value":12.5`) {
		t.Fatalf("expected numeric value, got %s", b)
	}

	var it PlanItem
	if err := json.Unmarshal([]byte(`{"category":"costs","name":"Rent","value":400,"date":"2024-01-01","meta":"4800"}`), &it); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assertDec(t, "value", it.Value, "400")
	assertDec(t, "meta", it.Meta, "4800")
}
