package core

import "testing"

func TestStatementFromTable(t *testing.T) {
	tbl := Table{
		Columns: []string{"Voce", "Consuntivo 2024", "Budget 2025", "Budget 2025", ""},
		Rows: [][]Cell{
			{TextCell("Ricavi"), NumberCell(dec("100")), NumberCell(dec("120")), NumberCell(dec("999"))},
			{BlankCell(), NumberCell(dec("5"))},
			{TextCell(" Affitti "), TextCell("n/d"), BlankCell()},
			{TextCell("EBITDA")},
		},
	}
	stmt := StatementFromTable(tbl)

	if len(stmt.Periods) != 2 || stmt.Periods[0] != "Consuntivo 2024" || stmt.Periods[1] != "Budget 2025" {
		t.Fatalf("periods = %v", stmt.Periods)
	}
	if len(stmt.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(stmt.Items))
	}
	if got := stmt.Items[0].Value("Budget 2025"); !got.Equal(dec("120")) {
		t.Fatalf("duplicate period column should be ignored, got %s", got)
	}
	affitti := stmt.Items[1]
	if affitti.Label != "Affitti" {
		t.Fatalf("label = %q", affitti.Label)
	}
	if v, ok := affitti.Values["Consuntivo 2024"]; !ok || !v.IsZero() {
		t.Fatalf("text cell should read as zero, got %v %v", v, ok)
	}
	if _, ok := affitti.Values["Budget 2025"]; ok {
		t.Fatalf("blank cell should stay missing")
	}
	if !stmt.HasPeriod("Consuntivo 2024") || stmt.HasPeriod("Voce") {
		t.Fatalf("HasPeriod mismatch")
	}
}

func TestStatementFromTableLabelColumnElsewhere(t *testing.T) {
	tbl := Table{
		Columns: []string{"2024", "voce", "2025"},
		Rows: [][]Cell{
			{NumberCell(dec("1")), TextCell("Ricavi"), NumberCell(dec("2"))},
		},
	}
	stmt := StatementFromTable(tbl)
	if len(stmt.Periods) != 2 || stmt.Periods[0] != "2024" || stmt.Periods[1] != "2025" {
		t.Fatalf("periods = %v", stmt.Periods)
	}
	if stmt.Items[0].Label != "Ricavi" || !stmt.Items[0].Value("2025").Equal(dec("2")) {
		t.Fatalf("item = %+v", stmt.Items[0])
	}
}

func TestMappingFromTable(t *testing.T) {
	tbl := Table{
		Columns: []string{"Tipo", "Voce"},
		Rows: [][]Cell{
			{TextCell("Vendite"), TextCell("Ricavi")},
			{TextCell("Vendite"), BlankCell()},
			{BlankCell(), TextCell("EBITDA")},
		},
	}
	m := MappingFromTable(tbl)
	if len(m) != 2 {
		t.Fatalf("expected 2 entries, got %+v", m)
	}
	if m[0].Label != "Ricavi" || m[0].Category != "Vendite" {
		t.Fatalf("entry 0 = %+v", m[0])
	}
	if m[1].Label != "EBITDA" || m[1].Category != "" {
		t.Fatalf("entry 1 = %+v", m[1])
	}
}

func TestTableCellOutOfRange(t *testing.T) {
	tbl := Table{Columns: []string{"a"}, Rows: [][]Cell{{TextCell("x")}}}
	if tbl.Cell(0, 3).Kind != CellBlank || tbl.Cell(5, 0).Kind != CellBlank || tbl.Cell(-1, 0).Kind != CellBlank {
		t.Fatalf("out of range cells should be blank")
	}
	if !tbl.Cell(0, 0).Amount().IsZero() {
		t.Fatalf("text amount should be zero")
	}
}
