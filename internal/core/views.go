package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// FormattedTable is a sheet rendered for display.
type FormattedTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// BalanceSheetView zero-fills the table and formats every value column
// as a grouped integer. Text cells pass through unchanged.
func BalanceSheetView(t Table) FormattedTable {
	out := FormattedTable{Columns: append([]string(nil), t.Columns...)}
	for r := range t.Rows {
		row := make([]string, len(t.Columns))
		for c := range t.Columns {
			cell := t.Cell(r, c).filled()
			if c == 0 {
				row[c] = cell.String()
				continue
			}
			row[c] = formatCell(cell)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// CashFlowView orders the cash flow sheet by its first column, which holds
// a sort key, then drops that column and formats the value column (the
// second of the remaining ones). Rows whose key is not a number sort last.
// A table with a single column is only zero-filled.
func CashFlowView(t Table) FormattedTable {
	if len(t.Columns) <= 1 {
		return rawView(t)
	}

	type keyed struct {
		key   decimal.Decimal
		valid bool
		row   int
	}
	rows := make([]keyed, len(t.Rows))
	for r := range t.Rows {
		c := t.Cell(r, 0).filled()
		rows[r] = keyed{key: c.Number, valid: c.Kind == CellNumber, row: r}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].valid != rows[j].valid {
			return rows[i].valid
		}
		return rows[i].valid && rows[i].key.LessThan(rows[j].key)
	})

	const valueCol = 1
	out := FormattedTable{Columns: append([]string(nil), t.Columns[1:]...)}
	for _, k := range rows {
		row := make([]string, len(out.Columns))
		for c := range out.Columns {
			cell := t.Cell(k.row, c+1).filled()
			if c == valueCol {
				row[c] = formatCell(cell)
			} else {
				row[c] = cell.String()
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func rawView(t Table) FormattedTable {
	out := FormattedTable{Columns: append([]string(nil), t.Columns...)}
	for r := range t.Rows {
		row := make([]string, len(t.Columns))
		for c := range t.Columns {
			row[c] = t.Cell(r, c).filled().String()
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// formatCell groups numbers by thousands; anything else is left as read.
func formatCell(c Cell) string {
	if c.Kind == CellNumber {
		return FormatThousands(c.Number)
	}
	return c.String()
}
