package core

import "github.com/shopspring/decimal"

// CategoryAmount is an amount aggregated by category.
type CategoryAmount struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MonthAmount is a single point of a monthly series.
type MonthAmount struct {
	Month  MonthKey        `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// YearSummary aggregates one calendar year of a plan.
type YearSummary struct {
	Year          int              `json:"year"`
	ByCategory    []CategoryAmount `json:"by_category"`
	ProfitLoss    decimal.Decimal  `json:"profit_loss"`
	EndingReserve decimal.Decimal  `json:"ending_reserve"`
}

// PlanOverview is the dashboard view of a plan.
type PlanOverview struct {
	PlanID        string          `json:"plan_id"`
	Name          string          `json:"name"`
	Years         []YearSummary   `json:"years"`
	EndingReserve decimal.Decimal `json:"ending_reserve"`
	ReserveTrend  []MonthAmount   `json:"reserve_trend"`
}

// Summarize computes the per-year dashboard figures of a plan's table.
// Investments report the balance held at the year's last month; every other
// category reports the year's total.
func Summarize(p Plan, t *Table) PlanOverview {
	ov := PlanOverview{PlanID: p.ID, Name: p.Name}
	reserve := t.Reserve()
	if len(reserve) == 0 {
		return ov
	}

	for i, d := range t.dates {
		ov.ReserveTrend = append(ov.ReserveTrend, MonthAmount{Month: d, Amount: reserve[i]})
	}
	ov.EndingReserve = reserve[len(reserve)-1]

	var current *YearSummary
	totals := map[Category]decimal.Decimal{}
	flush := func() {
		if current == nil {
			return
		}
		for _, c := range categoryOrder {
			current.ByCategory = append(current.ByCategory, CategoryAmount{Category: c, Amount: totals[c]})
		}
		current.ProfitLoss = totals[ProfitLoss]
		ov.Years = append(ov.Years, *current)
	}

	for i, d := range t.dates {
		if current == nil || current.Year != d.Year() {
			flush()
			current = &YearSummary{Year: d.Year()}
			totals = map[Category]decimal.Decimal{}
		}
		for _, c := range categoryOrder {
			switch c {
			case Investments:
				totals[c] = t.Subtotal(c, d)
			case ProfitLoss:
				totals[c] = totals[c].Add(t.ProfitLoss(d))
			default:
				totals[c] = totals[c].Add(t.Subtotal(c, d))
			}
		}
		current.EndingReserve = reserve[i]
	}
	flush()
	return ov
}
