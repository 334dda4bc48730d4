package google

import (
	"time"

	"lifeplan/internal/core"
)

// planValues lays a plan out for the mirror tab:
//
//	Plan | <name> | Version | <n> | Updated | <ts>
//	(blank)
//	Category | Row | <month>... | Total
//	one line per row, then a Subtotal line per category
//	(blank)
//	Reserve balance | | <reserve>...
func planValues(p core.Plan, t *core.Table) [][]interface{} {
	dates := t.Dates()
	out := [][]interface{}{
		{"Plan", p.Name, "Version", p.Version, "Updated", p.UpdatedAt.UTC().Format(time.RFC3339)},
		{},
	}

	header := []interface{}{"Category", "Row"}
	for _, d := range dates {
		header = append(header, string(d))
	}
	header = append(header, "Total")
	out = append(out, header)

	for _, c := range core.Categories() {
		for _, r := range t.Rows(c) {
			line := []interface{}{c.Label(), r.Name}
			for _, d := range dates {
				line = append(line, core.FormatAmount(r.Value(d)))
			}
			line = append(line, core.FormatAmount(r.FirstMeta))
			out = append(out, line)
		}
		if c == core.ProfitLoss {
			continue
		}
		sub := []interface{}{c.Label(), "Subtotal"}
		for _, d := range dates {
			sub = append(sub, core.FormatAmount(t.Subtotal(c, d)))
		}
		out = append(out, sub)
	}

	out = append(out, []interface{}{})
	reserve := []interface{}{"Reserve balance", ""}
	for _, v := range t.Reserve() {
		reserve = append(reserve, core.FormatAmount(v))
	}
	out = append(out, reserve)
	return out
}
