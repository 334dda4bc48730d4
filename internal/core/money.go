package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts raw cell input to an amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. When both
// appear, commas are read as thousands separators (1,234.50). Empty or
// non-numeric input yields zero; a cell never rejects input for its format.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatAmount renders an amount with two decimals, e.g. "1234.50".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
