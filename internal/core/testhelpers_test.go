package core

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(c Category, name, date, value string) PlanItem {
	return PlanItem{Category: c, Name: name, Date: date, Value: dec(value)}
}

// scenarioPlan is the two-month example: income 1000/1000, costs 400/500 and a
// reserve seeded with 5000.
func scenarioPlan() Plan {
	return Plan{
		ID:        "p1",
		Name:      "Scenario",
		TermYears: 1,
		Items: []PlanItem{
			item(Income, "Salary", "2024-01-01", "1000"),
			item(Income, "Salary", "2024-02-01", "1000"),
			item(Costs, "Rent", "2024-01-01", "400"),
			item(Costs, "Rent", "2024-02-01", "500"),
			item(Investments, "Reserve", "2024-01-01", "5000"),
			item(Investments, "Reserve", "2024-02-01", "0"),
		},
	}
}

// render prints every row of the table so two states can be compared.
func render(t *Table) string {
	var b strings.Builder
	for _, c := range categoryOrder {
		for _, r := range t.Rows(c) {
			fmt.Fprintf(&b, "%s/%d %q meta=%s:", c, r.ID, r.Name, r.FirstMeta.StringFixed(2))
			for _, d := range t.dates {
				fmt.Fprintf(&b, " %s=%s", d, r.Values[d].StringFixed(2))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func assertDec(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, want %s", what, got.String(), want)
	}
}
