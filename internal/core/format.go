package core

// Column headers of a formatted variance report.
const (
	HeaderDelta    = "Δ"
	HeaderDeltaPct = "Δ %"
)

type (
	// FormattedRow is a report row ready for display. Label is nil when
	// the report has no detail column; DeltaPct is nil when undefined.
	FormattedRow struct {
		Kind     string  `json:"kind"`
		Category string  `json:"category"`
		Label    *string `json:"label,omitempty"`
		Period1  string  `json:"period_1"`
		Period2  string  `json:"period_2"`
		Delta    string  `json:"delta"`
		DeltaPct *string `json:"delta_pct"`
	}

	// FormattedReport is a report with display strings and column headers.
	FormattedReport struct {
		Period1    string         `json:"period_1"`
		Period2    string         `json:"period_2"`
		ShowDetail bool           `json:"show_detail"`
		Columns    []string       `json:"columns"`
		Rows       []FormattedRow `json:"rows"`
	}
)

// Format renders amounts as grouped integers and delta percents with one
// decimal. Undefined delta percents are left empty. Without ShowDetail the
// label column is dropped from every row.
func (r Report) Format() FormattedReport {
	out := FormattedReport{
		Period1:    r.Period1,
		Period2:    r.Period2,
		ShowDetail: r.ShowDetail,
		Columns:    reportColumns(r.Period1, r.Period2, r.ShowDetail),
		Rows:       make([]FormattedRow, 0, len(r.Rows)),
	}
	for _, row := range r.Rows {
		fr := FormattedRow{
			Kind:     row.Kind.String(),
			Category: row.Category,
			Period1:  FormatThousands(row.Period1),
			Period2:  FormatThousands(row.Period2),
			Delta:    FormatThousands(row.Delta),
		}
		if r.ShowDetail {
			label := row.Label
			fr.Label = &label
		}
		if row.DeltaPct.Valid {
			pct := FormatPercent(row.DeltaPct.Decimal)
			fr.DeltaPct = &pct
		}
		out.Rows = append(out.Rows, fr)
	}
	return out
}

// Cells returns the row's values aligned with FormattedReport.Columns.
func (fr FormattedRow) Cells() []string {
	cells := make([]string, 0, 6)
	cells = append(cells, fr.Category)
	if fr.Label != nil {
		cells = append(cells, *fr.Label)
	}
	pct := ""
	if fr.DeltaPct != nil {
		pct = *fr.DeltaPct
	}
	return append(cells, fr.Period1, fr.Period2, fr.Delta, pct)
}

// Records returns the header followed by every row, for CSV and sheet
// writers.
func (r FormattedReport) Records() [][]string {
	records := make([][]string, 0, len(r.Rows)+1)
	records = append(records, append([]string(nil), r.Columns...))
	for _, row := range r.Rows {
		records = append(records, row.Cells())
	}
	return records
}

func reportColumns(p1, p2 string, detail bool) []string {
	cols := []string{CategoryColumn}
	if detail {
		cols = append(cols, LabelColumn)
	}
	return append(cols, p1, p2, HeaderDelta, HeaderDeltaPct)
}
