package storage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"lifeplan/internal/core"
)

// toCoreItem converts a stored entry. Amounts are kept as exact decimal text
// in both databases.
func toCoreItem(category, name, value, date, meta string) (core.PlanItem, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return core.PlanItem{}, fmt.Errorf("parse value %q: %w", value, err)
	}
	m, err := decimal.NewFromString(meta)
	if err != nil {
		return core.PlanItem{}, fmt.Errorf("parse meta %q: %w", meta, err)
	}
	return core.PlanItem{
		Category: core.Category(category),
		Name:     name,
		Value:    v,
		Date:     date,
		Meta:     m,
	}, nil
}
