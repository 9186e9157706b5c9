package sheets

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cruscotto/internal/core"
)

// ParseValues converts a values matrix (as returned by the Sheets API or
// read from a workbook) into a table. The first row is the header.
func ParseValues(values [][]any) core.Table {
	if len(values) == 0 {
		return core.Table{}
	}
	t := core.Table{Columns: headerRow(values[0])}
	for _, raw := range values[1:] {
		row := make([]core.Cell, len(raw))
		for i, v := range raw {
			row[i] = ParseCell(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ParseRows is ParseValues for string matrices.
func ParseRows(rows [][]string) core.Table {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = make([]any, len(r))
		for j, v := range r {
			values[i][j] = v
		}
	}
	return ParseValues(values)
}

// ParseCell reads a single value. Strings that look like amounts become
// numbers; empty strings and nil are blank.
func ParseCell(v any) core.Cell {
	switch x := v.(type) {
	case nil:
		return core.BlankCell()
	case float64:
		return core.NumberCell(decimal.NewFromFloat(x))
	case float32:
		return core.NumberCell(decimal.NewFromFloat32(x))
	case int:
		return core.NumberCell(decimal.NewFromInt(int64(x)))
	case int64:
		return core.NumberCell(decimal.NewFromInt(x))
	case decimal.Decimal:
		return core.NumberCell(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return core.BlankCell()
		}
		if d, err := core.ParseAmount(s); err == nil {
			return core.NumberCell(d)
		}
		return core.TextCell(s)
	default:
		return core.TextCell(strings.TrimSpace(fmt.Sprint(x)))
	}
}

func headerRow(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
