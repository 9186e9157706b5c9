package storage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cruscotto/internal/core"
)

// storedTable is the JSON payload of a sheet_tables row.
type storedTable struct {
	Columns []string       `json:"columns"`
	Rows    [][]storedCell `json:"rows"`
}

// storedCell keeps numbers as decimal strings. Kind is "n", "t" or empty
// for blank.
type storedCell struct {
	Kind  string `json:"k,omitempty"`
	Value string `json:"v,omitempty"`
}

func encodeTable(t core.Table) storedTable {
	st := storedTable{Columns: t.Columns, Rows: make([][]storedCell, len(t.Rows))}
	for i, row := range t.Rows {
		cells := make([]storedCell, len(row))
		for j, c := range row {
			switch c.Kind {
			case core.CellNumber:
				cells[j] = storedCell{Kind: "n", Value: c.Number.String()}
			case core.CellText:
				cells[j] = storedCell{Kind: "t", Value: c.Text}
			}
		}
		st.Rows[i] = cells
	}
	return st
}

func (st storedTable) decode() (core.Table, error) {
	t := core.Table{Columns: st.Columns, Rows: make([][]core.Cell, len(st.Rows))}
	for i, row := range st.Rows {
		cells := make([]core.Cell, len(row))
		for j, c := range row {
			switch c.Kind {
			case "n":
				d, err := decimal.NewFromString(c.Value)
				if err != nil {
					return core.Table{}, fmt.Errorf("row %d col %d: %w", i, j, err)
				}
				cells[j] = core.NumberCell(d)
			case "t":
				cells[j] = core.TextCell(c.Value)
			default:
				cells[j] = core.BlankCell()
			}
		}
		t.Rows[i] = cells
	}
	return t, nil
}
