package core

import "github.com/shopspring/decimal"

// classified is a deduplicated line item joined to its category.
type classified struct {
	label    string
	category string
	Variance
}

type categoryTotal struct {
	name    string
	members []int
	p1      decimal.Decimal
	p2      decimal.Decimal
	delta   decimal.Decimal
}

// Compute reclassifies stmt through mapping and compares req.Period1 with
// req.Period2.
//
// Items are deduplicated by label (first occurrence wins) and joined to
// their category. Each category with at least one item yields one aggregate
// row, in first-seen order, whose delta percent is recomputed from the
// summed totals. With ShowDetail, categories listed in DetailCategories are
// followed by one row per member item in statement order. KPI labels that
// are present and unmapped are appended last, in KPILabels order.
//
// The only error is a missing period column, reported before any work.
func Compute(stmt Statement, mapping Mapping, req ReportRequest) (Report, error) {
	p1, p2, err := ResolvePeriods(stmt.Periods, req.Period1, req.Period2)
	if err != nil {
		return Report{}, err
	}

	categories := mapping.index()

	var items []classified
	byLabel := map[string]int{}
	for _, li := range stmt.Items {
		key := normalizeLabel(li.Label)
		if key == "" {
			continue
		}
		if _, dup := byLabel[key]; dup {
			continue
		}
		byLabel[key] = len(items)
		items = append(items, classified{
			label:    li.Label,
			category: categories[key],
			Variance: NewVariance(li.Value(p1), li.Value(p2)),
		})
	}

	var order []string
	totals := map[string]*categoryTotal{}
	for i, it := range items {
		key := normalizeLabel(it.category)
		if key == "" {
			continue
		}
		t, ok := totals[key]
		if !ok {
			t = &categoryTotal{name: it.category}
			totals[key] = t
			order = append(order, key)
		}
		t.members = append(t.members, i)
		t.p1 = t.p1.Add(it.Period1)
		t.p2 = t.p2.Add(it.Period2)
		t.delta = t.delta.Add(it.Delta)
	}

	drill := toSet(req.DetailCategories)
	rows := make([]Row, 0, len(order))
	for _, key := range order {
		t := totals[key]
		rows = append(rows, Row{
			Kind:     RowCategory,
			Category: t.name,
			Variance: Variance{
				Period1:  t.p1,
				Period2:  t.p2,
				Delta:    t.delta,
				DeltaPct: deltaPercent(t.delta, t.p2),
			},
		})
		if !req.ShowDetail {
			continue
		}
		if _, ok := drill[key]; !ok {
			continue
		}
		for _, i := range t.members {
			rows = append(rows, Row{
				Kind:     RowDetail,
				Category: t.name,
				Label:    items[i].label,
				Variance: items[i].Variance,
			})
		}
	}

	emitted := map[string]struct{}{}
	for _, label := range req.KPILabels {
		key := normalizeLabel(label)
		if _, done := emitted[key]; done {
			continue
		}
		i, ok := byLabel[key]
		if !ok || items[i].category != "" {
			continue
		}
		emitted[key] = struct{}{}
		rows = append(rows, Row{
			Kind:     RowKPI,
			Label:    items[i].label,
			Variance: items[i].Variance,
		})
	}

	return Report{
		Period1:    p1,
		Period2:    p2,
		ShowDetail: req.ShowDetail,
		Rows:       rows,
	}, nil
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		if key := normalizeLabel(v); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}
