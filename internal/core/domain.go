package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The plan backend exchanges amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Category is one of the nine fixed groupings of a plan.
type Category string

const (
	Income       Category = "income"
	Studies      Category = "studies"
	Costs        Category = "costs"
	ProfitLoss   Category = "profitLoss"
	Investments  Category = "investments"
	Realizations Category = "realizations"
	Exchange     Category = "exchange"
	Companies    Category = "companies"
	Personal     Category = "personal"
)

// categoryOrder is the display order of the plan table.
var categoryOrder = []Category{
	Income,
	Studies,
	Costs,
	ProfitLoss,
	Investments,
	Realizations,
	Exchange,
	Companies,
	Personal,
}

var categoryLabels = map[Category]string{
	Income:       "Income",
	Studies:      "Studies",
	Costs:        "Costs",
	ProfitLoss:   "Profit/Loss",
	Investments:  "Investments",
	Realizations: "Realizations",
	Exchange:     "Exchange",
	Companies:    "Companies",
	Personal:     "Personal",
}

// MonthLayout is the layout of a month key.
const MonthLayout = "2006-01"

// Reserve and profit/loss row names used when a plan does not carry its own.
const (
	DefaultReserveName    = "Reserve"
	DefaultProfitLossName = "Profit/Loss"
)

type (
	// MonthKey identifies a table column, formatted YYYY-MM.
	MonthKey string

	// PlanItem is one dated, categorized value entry as stored by the plan backend.
	PlanItem struct {
		Category Category        `json:"category"`
		Name     string          `json:"name"`
		Value    decimal.Decimal `json:"value"`
		Date     string          `json:"date"`
		Meta     decimal.Decimal `json:"meta"`
	}

	// Plan is a multi-year projection owned by the plan backend.
	Plan struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		TermYears int        `json:"term"`
		Start     MonthKey   `json:"start,omitempty"`
		Version   int64      `json:"version"`
		Items     []PlanItem `json:"items"`
		CreatedAt time.Time  `json:"created_at"`
		UpdatedAt time.Time  `json:"updated_at"`
	}

	// PlanSummary is the list view of a plan.
	PlanSummary struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		TermYears int       `json:"term"`
		Version   int64     `json:"version"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrEmptyName       = errors.New("empty plan name")
	ErrInvalidTerm     = errors.New("invalid plan term")
)

// Categories returns the nine categories in display order.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human readable name of the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory validates a category identifier.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// ParseMonthKey accepts YYYY-MM, YYYY-MM-DD or an RFC 3339 timestamp.
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	if len(s) < 7 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	t, err := time.Parse(MonthLayout, s[:7])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthKeyOf(t), nil
}

// MonthKeyOf returns the month key of t.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format(MonthLayout))
}

// Time returns the first instant of the month in UTC.
func (m MonthKey) Time() time.Time {
	t, err := time.Parse(MonthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Year returns the calendar year of the month.
func (m MonthKey) Year() int {
	return m.Time().Year()
}

// FirstDay returns the YYYY-MM-01 date used on the wire.
func (m MonthKey) FirstDay() string {
	return string(m) + "-01"
}

// Next returns the following month.
func (m MonthKey) Next() MonthKey {
	return MonthKeyOf(m.Time().AddDate(0, 1, 0))
}

// MonthRange returns n consecutive months starting at start.
func MonthRange(start MonthKey, n int) []MonthKey {
	out := make([]MonthKey, 0, n)
	m := start
	for i := 0; i < n; i++ {
		out = append(out, m)
		m = m.Next()
	}
	return out
}

// Summary returns the list view of the plan.
func (p Plan) Summary() PlanSummary {
	return PlanSummary{
		ID:        p.ID,
		Name:      p.Name,
		TermYears: p.TermYears,
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
	}
}

func (p Plan) Validate() error {
	if len(strings.TrimSpace(p.Name)) == 0 {
		return ErrEmptyName
	}
	if len(p.Name) > 200 {
		return errors.New("plan name too long (max 200 characters)")
	}
	if p.TermYears < 1 || p.TermYears > 100 {
		return fmt.Errorf("%w: %d years", ErrInvalidTerm, p.TermYears)
	}
	for i, it := range p.Items {
		if !it.Category.Valid() {
			return fmt.Errorf("item %d: %w: %q", i, ErrUnknownCategory, it.Category)
		}
		if _, err := ParseMonthKey(it.Date); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}
