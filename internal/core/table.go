package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ReserveRowID is the investments row holding the rolling reserve balance.
const ReserveRowID = 0

// profitLossRowID is the single synthetic profit/loss row.
const profitLossRowID = 0

var (
	ErrReadOnlyCategory = errors.New("category is read-only")
	ErrReserveRow       = errors.New("reserve row cannot be removed")
	ErrRowNotFound      = errors.New("row not found")
	ErrUnknownDate      = errors.New("date is not a column of the table")
)

// Row is a named line of one category, holding a value per month column.
type Row struct {
	ID        int                          `json:"id"`
	Name      string                       `json:"name"`
	Values    map[MonthKey]decimal.Decimal `json:"values"`
	FirstMeta decimal.Decimal              `json:"firstMeta"`
}

// Value returns the row's amount at date, zero when absent.
func (r *Row) Value(date MonthKey) decimal.Decimal {
	return r.Values[date]
}

func (r *Row) clone() *Row {
	values := make(map[MonthKey]decimal.Decimal, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return &Row{ID: r.ID, Name: r.Name, Values: values, FirstMeta: r.FirstMeta}
}

// Table is the in-memory plan table: rows grouped by category over a fixed
// sequence of month columns.
//
// Row ids are unique within a category and assigned from a per-category
// counter that never hands out an id twice, so ids stay stable across
// deletions.
type Table struct {
	dates  []MonthKey
	index  map[MonthKey]int
	rows   map[Category]map[int]*Row
	nextID map[Category]int
}

// NewTable returns a table over dates with the synthetic profit/loss row and
// the investments reserve row already in place.
func NewTable(dates []MonthKey) *Table {
	t := &Table{
		dates:  append([]MonthKey(nil), dates...),
		index:  make(map[MonthKey]int, len(dates)),
		rows:   make(map[Category]map[int]*Row, len(categoryOrder)),
		nextID: make(map[Category]int, len(categoryOrder)),
	}
	for i, d := range t.dates {
		t.index[d] = i
	}
	for _, c := range categoryOrder {
		t.rows[c] = make(map[int]*Row)
	}
	t.insertRow(ProfitLoss, profitLossRowID, DefaultProfitLossName)
	t.insertRow(Investments, ReserveRowID, DefaultReserveName)
	return t
}

// Dates returns the month columns in ascending order.
func (t *Table) Dates() []MonthKey {
	return append([]MonthKey(nil), t.dates...)
}

// FirstDate returns the first month column.
func (t *Table) FirstDate() (MonthKey, bool) {
	if len(t.dates) == 0 {
		return "", false
	}
	return t.dates[0], true
}

// HasDate reports whether date is a column of the table.
func (t *Table) HasDate(date MonthKey) bool {
	_, ok := t.index[date]
	return ok
}

// Rows returns copies of the rows of c ordered by id.
func (t *Table) Rows(c Category) []Row {
	rows := t.sortedRows(c)
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = *r.clone()
	}
	return out
}

// Lookup returns a copy of a single row.
func (t *Table) Lookup(c Category, id int) (Row, bool) {
	r, ok := t.rows[c][id]
	if !ok {
		return Row{}, false
	}
	return *r.clone(), true
}

// RowCount returns the number of rows in c.
func (t *Table) RowCount(c Category) int {
	return len(t.rows[c])
}

// AddRow appends a zero-valued row to c and returns its id.
func (t *Table) AddRow(c Category, name string) (int, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	if c == ProfitLoss {
		return 0, fmt.Errorf("add row to %s: %w", c, ErrReadOnlyCategory)
	}
	id := t.nextID[c]
	t.insertRow(c, id, strings.TrimSpace(name))
	return id, nil
}

// RemoveRow deletes a row. The profit/loss row and the reserve row stay.
func (t *Table) RemoveRow(c Category, id int) error {
	if c == ProfitLoss {
		return fmt.Errorf("remove row from %s: %w", c, ErrReadOnlyCategory)
	}
	if c == Investments && id == ReserveRowID {
		return ErrReserveRow
	}
	if _, ok := t.rows[c][id]; !ok {
		return fmt.Errorf("%w: %s/%d", ErrRowNotFound, c, id)
	}
	delete(t.rows[c], id)
	return nil
}

// RenameRow changes a row's label. Names are not required to be unique.
func (t *Table) RenameRow(c Category, id int, name string) error {
	if c == ProfitLoss {
		return fmt.Errorf("rename row in %s: %w", c, ErrReadOnlyCategory)
	}
	r, ok := t.rows[c][id]
	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrRowNotFound, c, id)
	}
	r.Name = strings.TrimSpace(name)
	return nil
}

// SetCell writes raw input into a cell and recomputes the derived rows.
// Input that does not parse as a number is stored as zero. It applies no
// edit rules; Editor.SetValue is the guarded write path.
func (t *Table) SetCell(c Category, id int, date MonthKey, raw string) error {
	if err := t.setValue(c, id, date, ParseAmount(raw)); err != nil {
		return err
	}
	t.Recompute()
	return nil
}

func (t *Table) setValue(c Category, id int, date MonthKey, v decimal.Decimal) error {
	r, ok := t.rows[c][id]
	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrRowNotFound, c, id)
	}
	if !t.HasDate(date) {
		return fmt.Errorf("%w: %s", ErrUnknownDate, date)
	}
	r.Values[date] = v
	r.FirstMeta = t.firstMeta(c, r)
	return nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		dates:  append([]MonthKey(nil), t.dates...),
		index:  make(map[MonthKey]int, len(t.index)),
		rows:   make(map[Category]map[int]*Row, len(t.rows)),
		nextID: make(map[Category]int, len(t.nextID)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	for c, rows := range t.rows {
		out.rows[c] = make(map[int]*Row, len(rows))
		for id, r := range rows {
			out.rows[c][id] = r.clone()
		}
	}
	for c, n := range t.nextID {
		out.nextID[c] = n
	}
	return out
}

// insertRow creates a zero row with an explicit id and moves the category
// counter past it.
func (t *Table) insertRow(c Category, id int, name string) *Row {
	r := &Row{ID: id, Name: name, Values: make(map[MonthKey]decimal.Decimal, len(t.dates))}
	for _, d := range t.dates {
		r.Values[d] = decimal.Zero
	}
	t.rows[c][id] = r
	if id >= t.nextID[c] {
		t.nextID[c] = id + 1
	}
	return r
}

func (t *Table) sortedRows(c Category) []*Row {
	rows := make([]*Row, 0, len(t.rows[c]))
	for _, r := range t.rows[c] {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

// firstMeta is the row aggregate: an ending balance for investments, a sum
// everywhere else.
func (t *Table) firstMeta(c Category, r *Row) decimal.Decimal {
	if len(t.dates) == 0 {
		return decimal.Zero
	}
	if c == Investments {
		return r.Values[t.dates[len(t.dates)-1]]
	}
	sum := decimal.Zero
	for _, d := range t.dates {
		sum = sum.Add(r.Values[d])
	}
	return sum
}
