package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"cruscotto/internal/core"
)

func sampleReport(detail bool) core.FormattedReport {
	pct := "2.7%"
	label := "Vendite Italia"
	rows := []core.FormattedRow{
		{Kind: "category", Category: "Vendite", Period1: "2.825.000", Period2: "2.750.000", Delta: "75.000", DeltaPct: &pct},
		{Kind: "kpi", Category: "EBITDA", Period1: "402.300", Period2: "380.000", Delta: "22.300"},
	}
	cols := []string{core.CategoryColumn, "Consuntivo 2025", "Budget 2025", core.HeaderDelta, core.HeaderDeltaPct}
	if detail {
		rows[0].Label = &label
		empty := ""
		rows[1].Label = &empty
		cols = []string{core.CategoryColumn, core.LabelColumn, "Consuntivo 2025", "Budget 2025", core.HeaderDelta, core.HeaderDeltaPct}
	}
	return core.FormattedReport{
		Period1:    "Consuntivo 2025",
		Period2:    "Budget 2025",
		ShowDetail: detail,
		Columns:    cols,
		Rows:       rows,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{" PDF ", FormatPDF, false},
		{".xlsx", FormatXLSX, false},
		{"json", FormatJSON, false},
		{"html", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := FormatPDF.ContentType(); got != "application/pdf" {
		t.Errorf("pdf content type = %q", got)
	}
	if got := Format("bin").ContentType(); got != "application/octet-stream" {
		t.Errorf("unknown content type = %q", got)
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := CSV(&buf, sampleReport(false).Records()); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0][3] != "Δ" || records[1][1] != "2.825.000" || records[2][4] != "" {
		t.Errorf("records = %v", records)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleReport(true)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\n  \"period_1\"") {
		t.Errorf("output not indented: %s", buf.String())
	}
	var got core.FormattedReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Rows[0].Label == nil || *got.Rows[0].Label != "Vendite Italia" {
		t.Errorf("label lost: %+v", got.Rows[0])
	}
}

func TestTableRecords(t *testing.T) {
	table := core.FormattedTable{
		Columns: []string{"Voce", "2025"},
		Rows:    [][]string{{"Cassa", "12.000"}},
	}
	got := TableRecords(table)
	if len(got) != 2 || got[0][0] != "Voce" || got[1][1] != "12.000" {
		t.Errorf("TableRecords() = %v", got)
	}
}

func TestReportDocument(t *testing.T) {
	doc := ReportDocument("Variance", sampleReport(true))
	if doc.TextColumns != 2 {
		t.Errorf("TextColumns = %d, want 2", doc.TextColumns)
	}
	if len(doc.Rows) != 2 || doc.Kinds[1] != "kpi" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Rows[0][1] != "Vendite Italia" {
		t.Errorf("first row = %v", doc.Rows[0])
	}

	if doc := ReportDocument("Variance", sampleReport(false)); doc.TextColumns != 1 {
		t.Errorf("TextColumns without detail = %d", doc.TextColumns)
	}
}

func TestPDF(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"report", ReportDocument("Variance Consuntivo 2025 vs Budget 2025", sampleReport(false))},
		{"report with detail", ReportDocument("Variance", sampleReport(true))},
		{"table", TableDocument("Stato Patrimoniale", core.FormattedTable{
			Columns: []string{"Voce", "2024", "2025"},
			Rows:    [][]string{{"Cassa", "10.000", "12.000"}, {"Crediti", "0"}},
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.doc.Generated = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
			var buf bytes.Buffer
			if err := PDF(&buf, tt.doc); err != nil {
				t.Fatal(err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
				t.Errorf("output is not a PDF: %q", buf.Bytes()[:min(8, buf.Len())])
			}
		})
	}
}

func TestPDFManyRows(t *testing.T) {
	table := core.FormattedTable{Columns: []string{"Voce", "Importo"}}
	for range 120 {
		table.Rows = append(table.Rows, []string{"Voce", "1.000"})
	}
	var buf bytes.Buffer
	if err := PDF(&buf, TableDocument("Lungo", table)); err != nil {
		t.Fatal(err)
	}
}

func TestPDFNoColumns(t *testing.T) {
	if err := PDF(&bytes.Buffer{}, Document{Title: "vuoto"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestColumnWidths(t *testing.T) {
	got := columnWidths(6, 2)
	var total float64
	for _, w := range got {
		total += w
	}
	if total < pageWidth-0.01 || total > pageWidth+0.01 {
		t.Errorf("widths %v sum to %v, want %v", got, total, pageWidth)
	}
	if got[0] != textColWidth || got[2] != got[5] {
		t.Errorf("widths = %v", got)
	}

	all := columnWidths(2, 3)
	if all[0] != pageWidth/2 {
		t.Errorf("all text widths = %v", all)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		title string
		f     Format
		want  string
	}{
		{"Variance Consuntivo 2025 vs Budget 2025", FormatCSV, "variance-consuntivo-2025-vs-budget-2025.csv"},
		{"Stato Patrimoniale", FormatXLSX, "stato-patrimoniale.xlsx"},
		{"  ../Rendiconto / 2025 ", FormatPDF, "rendiconto-2025.pdf"},
		{"", FormatCSV, "report.csv"},
	}
	for _, tt := range tests {
		if got := FileName(tt.title, tt.f); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}
