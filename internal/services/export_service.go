package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
)

// ExportService renders plan exports. Backends that render server side are
// used directly; otherwise CSV is produced from the derived table.
type ExportService struct {
	plans *PlanService
}

func NewExportService(plans *PlanService) *ExportService {
	return &ExportService{plans: plans}
}

// Export returns the rendered plan and a suggested file name.
func (s *ExportService) Export(ctx context.Context, id string, format plans.ExportFormat) (io.ReadCloser, string, error) {
	if exp, ok := s.plans.Store().(plans.Exporter); ok {
		p, err := s.plans.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		rc, err := exp.ExportPlan(ctx, id, format)
		if err != nil {
			return nil, "", fmt.Errorf("export plan: %w", err)
		}
		return rc, ExportFileName(p.Name, format), nil
	}

	if format != plans.FormatCSV {
		return nil, "", fmt.Errorf("%w: %s needs the remote backend", plans.ErrUnsupportedFormat, format)
	}
	p, err := s.plans.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, p); err != nil {
		return nil, "", err
	}
	return io.NopCloser(&buf), ExportFileName(p.Name, format), nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ExportFileName derives a download name from the plan name.
func ExportFileName(name string, format plans.ExportFormat) string {
	base := strings.Trim(unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "-"), "-.")
	if base == "" {
		base = "plan"
	}
	return base + "." + string(format)
}

// WriteCSV writes the plan's derived table: one line per row with its total,
// a subtotal line per category, then profit/loss and the reserve balance.
// Every record has the same width; investments and the reserve total to
// their final month.
func WriteCSV(w io.Writer, p core.Plan) error {
	t := core.BuildTable(p)
	dates := t.Dates()
	cw := csv.NewWriter(w)

	header := []string{"category", "row"}
	for _, d := range dates {
		header = append(header, string(d))
	}
	header = append(header, "total")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	for _, c := range core.Categories() {
		for _, r := range t.Rows(c) {
			rec := []string{string(c), r.Name}
			for _, d := range dates {
				rec = append(rec, core.FormatAmount(r.Value(d)))
			}
			rec = append(rec, core.FormatAmount(r.FirstMeta))
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
		}
		if c == core.ProfitLoss {
			continue
		}
		sub := []string{string(c), "subtotal"}
		total := decimal.Zero
		for _, d := range dates {
			v := t.Subtotal(c, d)
			sub = append(sub, core.FormatAmount(v))
			if c == core.Investments {
				total = v
			} else {
				total = total.Add(v)
			}
		}
		sub = append(sub, core.FormatAmount(total))
		if err := cw.Write(sub); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	reserve := []string{"reserve", "balance"}
	ending := decimal.Zero
	for _, v := range t.Reserve() {
		reserve = append(reserve, core.FormatAmount(v))
		ending = v
	}
	reserve = append(reserve, core.FormatAmount(ending))
	if err := cw.Write(reserve); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	cw.Flush()
	return cw.Error()
}
