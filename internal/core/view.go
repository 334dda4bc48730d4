package core

import "github.com/shopspring/decimal"

// CategoryView is one category block of a rendered table.
type CategoryView struct {
	Category  Category          `json:"category"`
	Label     string            `json:"label"`
	ReadOnly  bool              `json:"read_only"`
	Rows      []Row             `json:"rows"`
	Subtotals []decimal.Decimal `json:"subtotals"`
}

// TableView is the serializable form of a table. Per-date slices follow the
// order of Dates.
type TableView struct {
	Dates      []MonthKey        `json:"dates"`
	Categories []CategoryView    `json:"categories"`
	ProfitLoss []decimal.Decimal `json:"profit_loss"`
	Reserve    []decimal.Decimal `json:"reserve"`
}

// View renders the table with its derived series.
func (t *Table) View() TableView {
	v := TableView{Dates: t.Dates(), Reserve: t.Reserve()}
	for _, c := range categoryOrder {
		cv := CategoryView{
			Category: c,
			Label:    c.Label(),
			ReadOnly: c == ProfitLoss,
			Rows:     t.Rows(c),
		}
		for _, d := range t.dates {
			cv.Subtotals = append(cv.Subtotals, t.Subtotal(c, d))
		}
		v.Categories = append(v.Categories, cv)
	}
	for _, d := range t.dates {
		v.ProfitLoss = append(v.ProfitLoss, t.ProfitLoss(d))
	}
	return v
}
