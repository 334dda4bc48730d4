package core

import "github.com/shopspring/decimal"

// outflowCategories are the discretionary spends drawn from the reserve.
var outflowCategories = []Category{Realizations, Companies, Personal, Exchange}

// Subtotal sums the values of every row of c at date. The investments reserve
// row is an ending balance, not a contribution, and is left out.
func (t *Table) Subtotal(c Category, date MonthKey) decimal.Decimal {
	sum := decimal.Zero
	for id, r := range t.rows[c] {
		if c == Investments && id == ReserveRowID {
			continue
		}
		sum = sum.Add(r.Values[date])
	}
	return sum
}

// Subtotals returns Subtotal(c, d) for every column.
func (t *Table) Subtotals(c Category) map[MonthKey]decimal.Decimal {
	out := make(map[MonthKey]decimal.Decimal, len(t.dates))
	for _, d := range t.dates {
		out[d] = t.Subtotal(c, d)
	}
	return out
}

// ProfitLoss is income minus costs minus studies at date.
func (t *Table) ProfitLoss(date MonthKey) decimal.Decimal {
	return t.Subtotal(Income, date).
		Sub(t.Subtotal(Costs, date)).
		Sub(t.Subtotal(Studies, date))
}

// Outflow is the spending drawn from the reserve at date.
func (t *Table) Outflow(date MonthKey) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range outflowCategories {
		sum = sum.Add(t.Subtotal(c, date))
	}
	return sum
}

// Reserve returns the reserve balance at every column, seeded by the reserve
// row's first value.
//
// The first transition also subtracts the seed month's own outflow:
//
//	reserve(d1) = reserve(d0) + PL(d1) - outflow(d0) - outflow(d1)
//	reserve(dn) = reserve(dn-1) + PL(dn) - outflow(dn)
func (t *Table) Reserve() []decimal.Decimal {
	if len(t.dates) == 0 {
		return nil
	}
	out := make([]decimal.Decimal, len(t.dates))
	if r, ok := t.rows[Investments][ReserveRowID]; ok {
		out[0] = r.Values[t.dates[0]]
	}
	for i := 1; i < len(t.dates); i++ {
		d := t.dates[i]
		next := out[i-1].Add(t.ProfitLoss(d)).Sub(t.Outflow(d))
		if i == 1 {
			next = next.Sub(t.Outflow(t.dates[0]))
		}
		out[i] = next
	}
	return out
}

// Recompute refreshes every derived cell: the profit/loss row, the reserve
// row past the first column, and each row's firstMeta.
func (t *Table) Recompute() {
	if pl, ok := t.rows[ProfitLoss][profitLossRowID]; ok {
		for _, d := range t.dates {
			pl.Values[d] = t.ProfitLoss(d)
		}
	}
	if r, ok := t.rows[Investments][ReserveRowID]; ok {
		series := t.Reserve()
		for i := 1; i < len(t.dates); i++ {
			r.Values[t.dates[i]] = series[i]
		}
	}
	for c, rows := range t.rows {
		for _, r := range rows {
			r.FirstMeta = t.firstMeta(c, r)
		}
	}
}
