package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Field selects which part of a row a cell reference points at.
type Field string

const (
	FieldValue     Field = "value"
	FieldName      Field = "name"
	FieldFirstMeta Field = "firstMeta"
)

// CellState is the editing state of a single cell.
type CellState string

const (
	CellDisplayed CellState = "displayed"
	CellEditing   CellState = "editing"
	CellRejected  CellState = "rejected"
)

var (
	ErrCellLocked      = errors.New("cell is not editable")
	ErrNoActiveCell    = errors.New("no cell is being edited")
	ErrNothingToSave   = errors.New("no changes to save")
	ErrCeilingExceeded = errors.New("investment exceeds available reserve")
)

// CellRef addresses one editable cell of the table.
type CellRef struct {
	Category Category `json:"category"`
	RowID    int      `json:"row"`
	Field    Field    `json:"field"`
	Date     MonthKey `json:"date,omitempty"`
}

// CeilingError reports an investment that would exceed the reserve at Date.
type CeilingError struct {
	Date      MonthKey
	Maximum   decimal.Decimal // reserve balance at Date
	Available decimal.Decimal // largest amount the edited row may hold
	Requested decimal.Decimal
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("investment of %s at %s exceeds the reserve of %s: maximum permissible amount is %s",
		FormatAmount(e.Requested), e.Date, FormatAmount(e.Maximum), FormatAmount(e.Available))
}

func (e *CeilingError) Unwrap() error { return ErrCeilingExceeded }

// Editor is the edit surface over one plan's table. It gates which cells are
// writable, validates investments against the reserve, keeps the single
// active cell and tracks unsaved changes.
//
// An Editor is not safe for concurrent use.
type Editor struct {
	plan     Plan
	table    *Table
	active   *CellRef
	rejected error
	dirty    bool
}

// NewEditor builds the table of plan.
func NewEditor(plan Plan) *Editor {
	return &Editor{plan: plan, table: BuildTable(plan)}
}

// Plan returns the plan the table was built from.
func (e *Editor) Plan() Plan { return e.plan }

// Snapshot returns a copy of the current table.
func (e *Editor) Snapshot() *Table { return e.table.Clone() }

// Dirty reports whether the table holds unsaved edits.
func (e *Editor) Dirty() bool { return e.dirty }

// Editable reports whether ref may be selected for editing.
func (e *Editor) Editable(ref CellRef) bool {
	return e.checkEditable(ref) == nil
}

func (e *Editor) checkEditable(ref CellRef) error {
	if !ref.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, ref.Category)
	}
	if _, ok := e.table.rows[ref.Category][ref.RowID]; !ok {
		return fmt.Errorf("%w: %s/%d", ErrRowNotFound, ref.Category, ref.RowID)
	}
	if ref.Category == ProfitLoss {
		return fmt.Errorf("%s: %w", ref.Category, ErrCellLocked)
	}
	switch ref.Field {
	case FieldName:
		return nil
	case FieldValue:
		if !e.table.HasDate(ref.Date) {
			return fmt.Errorf("%w: %s", ErrUnknownDate, ref.Date)
		}
		if ref.Category == Investments && ref.RowID == ReserveRowID {
			if first, _ := e.table.FirstDate(); ref.Date != first {
				return fmt.Errorf("reserve at %s: %w", ref.Date, ErrCellLocked)
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", ref.Field, ErrCellLocked)
	}
}

// Select makes ref the active cell. Any previously active cell is dropped.
func (e *Editor) Select(ref CellRef) error {
	if err := e.checkEditable(ref); err != nil {
		return err
	}
	e.active = &ref
	e.rejected = nil
	return nil
}

// Active returns the cell being edited.
func (e *Editor) Active() (CellRef, bool) {
	if e.active == nil {
		return CellRef{}, false
	}
	return *e.active, true
}

// State returns the editing state of ref.
func (e *Editor) State(ref CellRef) CellState {
	if e.active == nil || *e.active != ref {
		return CellDisplayed
	}
	if e.rejected != nil {
		return CellRejected
	}
	return CellEditing
}

// Commit writes raw into the active cell. On success the cell returns to
// display; a rejected value leaves the cell active and the table unchanged.
func (e *Editor) Commit(raw string) error {
	if e.active == nil {
		return ErrNoActiveCell
	}
	ref := *e.active
	var err error
	switch ref.Field {
	case FieldName:
		err = e.Rename(ref.Category, ref.RowID, raw)
	default:
		err = e.SetValue(ref.Category, ref.RowID, ref.Date, raw)
	}
	if err != nil {
		e.rejected = err
		return err
	}
	e.active = nil
	e.rejected = nil
	return nil
}

// Cancel drops the active cell without writing.
func (e *Editor) Cancel() {
	e.active = nil
	e.rejected = nil
}

// SetValue is a guarded cell write followed by a full recompute.
func (e *Editor) SetValue(c Category, id int, date MonthKey, raw string) error {
	ref := CellRef{Category: c, RowID: id, Field: FieldValue, Date: date}
	if err := e.checkEditable(ref); err != nil {
		return err
	}
	v := ParseAmount(raw)
	if c == Investments && id != ReserveRowID {
		if err := e.checkCeiling(id, date, v); err != nil {
			return err
		}
	}
	if err := e.table.setValue(c, id, date, v); err != nil {
		return err
	}
	e.table.Recompute()
	e.dirty = true
	return nil
}

// checkCeiling rejects an investment that, together with the other
// investment rows, would exceed the reserve balance at date.
func (e *Editor) checkCeiling(id int, date MonthKey, v decimal.Decimal) error {
	maximum := e.table.rows[Investments][ReserveRowID].Values[date]
	current := e.table.rows[Investments][id].Values[date]
	others := e.table.Subtotal(Investments, date).Sub(current)
	if v.Add(others).GreaterThan(maximum) {
		return &CeilingError{
			Date:      date,
			Maximum:   maximum,
			Available: maximum.Sub(others),
			Requested: v,
		}
	}
	return nil
}

// Rename changes a row label.
func (e *Editor) Rename(c Category, id int, name string) error {
	if err := e.checkEditable(CellRef{Category: c, RowID: id, Field: FieldName}); err != nil {
		return err
	}
	if err := e.table.RenameRow(c, id, name); err != nil {
		return err
	}
	e.dirty = true
	return nil
}

// AddRow appends a zero row to c.
func (e *Editor) AddRow(c Category, name string) (int, error) {
	if strings.TrimSpace(name) == "" {
		name = "New " + strings.ToLower(c.Label())
	}
	id, err := e.table.AddRow(c, name)
	if err != nil {
		return 0, err
	}
	e.table.Recompute()
	e.dirty = true
	return id, nil
}

// RemoveRow deletes a row and drops it from every derived value.
func (e *Editor) RemoveRow(c Category, id int) error {
	if err := e.table.RemoveRow(c, id); err != nil {
		return err
	}
	if e.active != nil && e.active.Category == c && e.active.RowID == id {
		e.Cancel()
	}
	e.table.Recompute()
	e.dirty = true
	return nil
}

// Discard rebuilds the table from the loaded plan, dropping local edits.
func (e *Editor) Discard() {
	e.table = BuildTable(e.plan)
	e.Cancel()
	e.dirty = false
}

// SavePayload returns the request body of a save. It fails with
// ErrNothingToSave when there are no edits.
func (e *Editor) SavePayload() (SaveRequest, error) {
	if !e.dirty {
		return nil, ErrNothingToSave
	}
	return Flatten(e.table), nil
}

// MarkSaved records plan as the new baseline after a successful save.
func (e *Editor) MarkSaved(plan Plan) {
	e.plan = plan
	e.table = BuildTable(plan)
	e.Cancel()
	e.dirty = false
}
