package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// CategoryItems is the per-category group of a save request.
	CategoryItems struct {
		Items []PlanItem `json:"items"`
	}

	// SaveRequest is the body sent to the plan backend on save:
	// {category: {items: [{category, name, value, date, meta}, ...]}}.
	SaveRequest map[Category]CategoryItems
)

// UniqueDates returns the distinct months of items in ascending order.
// Entries whose date does not parse are ignored.
func UniqueDates(items []PlanItem) []MonthKey {
	seen := make(map[MonthKey]struct{}, len(items))
	out := make([]MonthKey, 0)
	for _, it := range items {
		m, err := ParseMonthKey(it.Date)
		if err != nil {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BuildTable reshapes the flat entries of a plan into a table.
//
// Entries are grouped by category and name. The k-th entry named N at a month
// lands in the k-th row named N, so rows sharing a name survive a save and
// reload. Rows appear in order of first appearance; the first investments row
// becomes the reserve row. Stored profit/loss values are ignored and derived.
func BuildTable(p Plan) *Table {
	dates := UniqueDates(p.Items)
	if len(dates) == 0 && p.Start != "" && p.TermYears > 0 {
		dates = MonthRange(p.Start, p.TermYears*12)
	}
	t := NewTable(dates)

	byCategory := make(map[Category][]PlanItem, len(categoryOrder))
	for _, it := range p.Items {
		byCategory[it.Category] = append(byCategory[it.Category], it)
	}

	type occurrence struct {
		name string
		n    int
	}
	for _, c := range categoryOrder {
		items := byCategory[c]
		if len(items) == 0 {
			continue
		}
		if c == ProfitLoss {
			if name := strings.TrimSpace(items[0].Name); name != "" {
				t.rows[ProfitLoss][profitLossRowID].Name = name
			}
			continue
		}

		rowFor := make(map[occurrence]int)
		seen := make(map[MonthKey]map[string]int)
		reserveTaken := false
		for _, it := range items {
			m, err := ParseMonthKey(it.Date)
			if err != nil {
				continue
			}
			if seen[m] == nil {
				seen[m] = make(map[string]int)
			}
			key := occurrence{name: it.Name, n: seen[m][it.Name]}
			seen[m][it.Name]++

			id, ok := rowFor[key]
			if !ok {
				if c == Investments && !reserveTaken {
					id = ReserveRowID
					t.rows[c][id].Name = it.Name
					reserveTaken = true
				} else {
					id = t.nextID[c]
					t.insertRow(c, id, it.Name)
				}
				rowFor[key] = id
			}
			t.rows[c][id].Values[m] = it.Value
		}
	}

	t.Recompute()
	return t
}

// Flatten turns the table back into the per-category entry lists of a save
// request. Dates are sent as YYYY-MM-01 and meta carries each row's firstMeta.
func Flatten(t *Table) SaveRequest {
	req := make(SaveRequest, len(categoryOrder))
	for _, c := range categoryOrder {
		rows := t.sortedRows(c)
		items := make([]PlanItem, 0, len(rows)*len(t.dates))
		for _, r := range rows {
			for _, d := range t.dates {
				items = append(items, PlanItem{
					Category: c,
					Name:     r.Name,
					Value:    r.Values[d],
					Date:     d.FirstDay(),
					Meta:     r.FirstMeta,
				})
			}
		}
		req[c] = CategoryItems{Items: items}
	}
	return req
}

// Items returns the entries of the request in category display order.
func (r SaveRequest) Items() []PlanItem {
	var out []PlanItem
	for _, c := range categoryOrder {
		group, ok := r[c]
		if !ok {
			continue
		}
		for _, it := range group.Items {
			it.Category = c
			out = append(out, it)
		}
	}
	return out
}

// Validate checks categories and dates of every entry.
func (r SaveRequest) Validate() error {
	for c, group := range r {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, c)
		}
		for i, it := range group.Items {
			if _, err := ParseMonthKey(it.Date); err != nil {
				return fmt.Errorf("%s item %d: %w", c, i, err)
			}
		}
	}
	return nil
}

// ApplySave returns p with the categories present in req replaced by the
// request's entries and the version bumped.
func ApplySave(p Plan, req SaveRequest, now time.Time) Plan {
	items := make([]PlanItem, 0, len(p.Items))
	for _, it := range p.Items {
		if _, replaced := req[it.Category]; !replaced {
			items = append(items, it)
		}
	}
	items = append(items, req.Items()...)

	out := p
	out.Items = items
	out.Version = p.Version + 1
	out.UpdatedAt = now
	return out
}

// NewPlan returns a zero-valued plan covering termYears from start, with one
// default row in every category.
func NewPlan(name string, start MonthKey, termYears int) (Plan, error) {
	if _, err := ParseMonthKey(string(start)); err != nil {
		return Plan{}, err
	}
	p := Plan{
		Name:      strings.TrimSpace(name),
		TermYears: termYears,
		Start:     start,
		Version:   1,
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	for _, c := range categoryOrder {
		rowName := c.Label()
		switch c {
		case ProfitLoss:
			rowName = DefaultProfitLossName
		case Investments:
			rowName = DefaultReserveName
		}
		for _, m := range MonthRange(start, termYears*12) {
			p.Items = append(p.Items, PlanItem{
				Category: c,
				Name:     rowName,
				Value:    decimal.Zero,
				Date:     m.FirstDay(),
				Meta:     decimal.Zero,
			})
		}
	}
	return p, nil
}
