package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CellKind tells how a sheet cell was read.
type CellKind int

const (
	CellBlank CellKind = iota
	CellNumber
	CellText
)

// Cell is a single parsed sheet value.
type Cell struct {
	Kind   CellKind
	Number decimal.Decimal
	Text   string
}

// Table is a parsed sheet: a header row followed by data rows.
// Rows may be shorter than Columns; missing cells are blank.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

func BlankCell() Cell                   { return Cell{Kind: CellBlank} }
func NumberCell(d decimal.Decimal) Cell { return Cell{Kind: CellNumber, Number: d} }
func TextCell(s string) Cell            { return Cell{Kind: CellText, Text: s} }

// Amount returns the numeric value; blank and text cells read as zero.
func (c Cell) Amount() decimal.Decimal {
	if c.Kind == CellNumber {
		return c.Number
	}
	return decimal.Zero
}

// String renders the cell as it was read. Blank cells render empty.
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return c.Number.String()
	case CellText:
		return c.Text
	default:
		return ""
	}
}

// filled returns c with blanks replaced by zero.
func (c Cell) filled() Cell {
	if c.Kind == CellBlank {
		return NumberCell(decimal.Zero)
	}
	return c
}

// Cell returns the cell at row, col or a blank cell when out of range.
func (t Table) Cell(row, col int) Cell {
	if row < 0 || row >= len(t.Rows) {
		return BlankCell()
	}
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return BlankCell()
	}
	return r[col]
}

// ColumnIndex returns the position of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	want := strings.ToLower(normalizeLabel(name))
	for i, c := range t.Columns {
		if strings.ToLower(normalizeLabel(c)) == want {
			return i
		}
	}
	return -1
}

// StatementFromTable reads a statement sheet. The label column is "Voce"
// (or the first column); every other named column is a period. Blank
// period cells stay missing, text cells count as zero, rows without a
// label are skipped.
func StatementFromTable(t Table) Statement {
	labelCol := t.ColumnIndex(LabelColumn)
	if labelCol < 0 {
		labelCol = 0
	}

	var (
		periods []string
		cols    []int
	)
	seen := map[string]struct{}{}
	for i, name := range t.Columns {
		name = strings.TrimSpace(name)
		if i == labelCol || name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		periods = append(periods, name)
		cols = append(cols, i)
	}

	stmt := Statement{Periods: periods}
	for r := range t.Rows {
		label := strings.TrimSpace(t.Cell(r, labelCol).String())
		if label == "" {
			continue
		}
		item := LineItem{Label: label, Values: make(map[string]decimal.Decimal, len(periods))}
		for i, col := range cols {
			c := t.Cell(r, col)
			switch c.Kind {
			case CellNumber:
				item.Values[periods[i]] = c.Number
			case CellText:
				item.Values[periods[i]] = decimal.Zero
			}
		}
		stmt.Items = append(stmt.Items, item)
	}
	return stmt
}

// MappingFromTable reads the mapping sheet from its "Voce" and "Tipo"
// columns, falling back to the first two columns.
func MappingFromTable(t Table) Mapping {
	labelCol := t.ColumnIndex(LabelColumn)
	if labelCol < 0 {
		labelCol = 0
	}
	catCol := t.ColumnIndex(CategoryColumn)
	if catCol < 0 {
		catCol = 1
	}

	var m Mapping
	for r := range t.Rows {
		e := MappingEntry{
			Label:    strings.TrimSpace(t.Cell(r, labelCol).String()),
			Category: strings.TrimSpace(t.Cell(r, catCol).String()),
		}
		if e.Validate() != nil {
			continue
		}
		m = append(m, e)
	}
	return m
}
