package core

import "github.com/shopspring/decimal"

// RowKind distinguishes the rows of a variance report.
type RowKind int

const (
	RowCategory RowKind = iota
	RowDetail
	RowKPI
)

func (k RowKind) String() string {
	switch k {
	case RowDetail:
		return "detail"
	case RowKPI:
		return "kpi"
	default:
		return "category"
	}
}

type (
	// Variance holds the two period amounts and their difference.
	// DeltaPct is invalid when Period2 is zero.
	Variance struct {
		Period1  decimal.Decimal
		Period2  decimal.Decimal
		Delta    decimal.Decimal
		DeltaPct decimal.NullDecimal
	}

	// Row is one line of a variance report. Category rows carry no label;
	// KPI rows carry no category.
	Row struct {
		Kind     RowKind
		Category string
		Label    string
		Variance
	}

	// Report is the unformatted result of Compute.
	Report struct {
		Period1    string
		Period2    string
		ShowDetail bool
		Rows       []Row
	}

	// ReportRequest selects the periods to compare and the optional
	// drill-down. Empty periods fall back to DefaultPeriods.
	ReportRequest struct {
		Period1          string
		Period2          string
		ShowDetail       bool
		DetailCategories []string
		KPILabels        []string
	}
)

// NewVariance computes delta and delta percent for a pair of amounts.
func NewVariance(p1, p2 decimal.Decimal) Variance {
	delta := p1.Sub(p2)
	return Variance{
		Period1:  p1,
		Period2:  p2,
		Delta:    delta,
		DeltaPct: deltaPercent(delta, p2),
	}
}

// deltaPercent is delta / |base|, undefined when base is zero.
func deltaPercent(delta, base decimal.Decimal) decimal.NullDecimal {
	if base.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(delta.Div(base.Abs()))
}

// Aggregates returns only the category rows.
func (r Report) Aggregates() []Row {
	var out []Row
	for _, row := range r.Rows {
		if row.Kind == RowCategory {
			out = append(out, row)
		}
	}
	return out
}
