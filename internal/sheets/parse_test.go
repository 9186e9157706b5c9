package sheets

import (
	"testing"

	"github.com/shopspring/decimal"

	"cruscotto/internal/core"
)

func TestParseValues(t *testing.T) {
	values := [][]any{
		{"Voce", "Consuntivo 2024", 2025.0},
		{"Ricavi", 1200.5, "1.234,00"},
		{"Affitti", "", nil},
		{"EBITDA", "n/d", int64(-7)},
	}
	tbl := ParseValues(values)

	if len(tbl.Columns) != 3 || tbl.Columns[2] != "2025" {
		t.Fatalf("columns = %v", tbl.Columns)
	}
	if c := tbl.Cell(0, 1); c.Kind != core.CellNumber || !c.Number.Equal(decimal.RequireFromString("1200.5")) {
		t.Fatalf("float cell = %+v", c)
	}
	if c := tbl.Cell(0, 2); c.Kind != core.CellNumber || !c.Number.Equal(decimal.NewFromInt(1234)) {
		t.Fatalf("localized string cell = %+v", c)
	}
	if tbl.Cell(1, 1).Kind != core.CellBlank || tbl.Cell(1, 2).Kind != core.CellBlank {
		t.Fatalf("empty cells should be blank")
	}
	if c := tbl.Cell(2, 1); c.Kind != core.CellText || c.Text != "n/d" {
		t.Fatalf("text cell = %+v", c)
	}
	if c := tbl.Cell(2, 2); !c.Number.Equal(decimal.NewFromInt(-7)) {
		t.Fatalf("int cell = %+v", c)
	}
}

func TestParseRowsFeedsStatement(t *testing.T) {
	tbl := ParseRows([][]string{
		{"Voce", "Budget", "Consuntivo"},
		{"Ricavi", "100", "120"},
		{"Costi", "-40"},
	})
	stmt := core.StatementFromTable(tbl)
	if len(stmt.Periods) != 2 || len(stmt.Items) != 2 {
		t.Fatalf("statement = %+v", stmt)
	}
	if !stmt.Items[1].Value("Consuntivo").IsZero() {
		t.Fatalf("short row should read as zero")
	}
}

func TestParseValuesEmpty(t *testing.T) {
	if tbl := ParseValues(nil); len(tbl.Columns) != 0 || len(tbl.Rows) != 0 {
		t.Fatalf("expected empty table, got %+v", tbl)
	}
}
