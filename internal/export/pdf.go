package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"cruscotto/internal/core"
)

const (
	pageWidth     = 277.0 // A4 landscape minus margins, mm
	textColWidth  = 70.0
	rowHeight     = 6.0
	headerHeight  = 8.0
	footerOffset  = -12.0
	bodyFontSize  = 9
	titleFontSize = 14
)

var (
	headerFill   = [3]int{31, 78, 121}
	headerText   = [3]int{255, 255, 255}
	kpiFill      = [3]int{226, 239, 218}
	categoryFill = [3]int{242, 242, 242}
	bodyText     = [3]int{50, 50, 50}
)

// Document is a titled table ready for PDF rendering. Columns before
// TextColumns are left aligned, the rest are amounts.
type Document struct {
	Title       string
	Columns     []string
	Rows        [][]string
	Kinds       []string
	TextColumns int
	Generated   time.Time
}

// ReportDocument lays out a formatted variance report.
func ReportDocument(title string, r core.FormattedReport) Document {
	doc := Document{
		Title:       title,
		Columns:     r.Columns,
		Rows:        make([][]string, 0, len(r.Rows)),
		Kinds:       make([]string, 0, len(r.Rows)),
		TextColumns: 1,
	}
	if r.ShowDetail {
		doc.TextColumns = 2
	}
	for _, row := range r.Rows {
		doc.Rows = append(doc.Rows, row.Cells())
		doc.Kinds = append(doc.Kinds, row.Kind)
	}
	return doc
}

// TableDocument lays out a balance sheet or cash flow view.
func TableDocument(title string, t core.FormattedTable) Document {
	return Document{
		Title:       title,
		Columns:     t.Columns,
		Rows:        t.Rows,
		TextColumns: 1,
	}
}

// PDF renders doc on A4 landscape pages.
func PDF(w io.Writer, doc Document) error {
	if len(doc.Columns) == 0 {
		return fmt.Errorf("encode pdf: document has no columns")
	}
	generated := doc.Generated
	if generated.IsZero() {
		generated = time.Now()
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	text := func(s string) string { return tr(strings.ReplaceAll(s, "Δ", "Delta")) }
	widths := columnWidths(len(doc.Columns), doc.TextColumns)

	pdf.SetFooterFunc(func() {
		pdf.SetY(footerOffset)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(pageWidth/2, 10, text(fmt.Sprintf("%s | %s", doc.Title, generated.Format("2006-01-02"))), "", 0, "L", false, 0, "")
		pdf.CellFormat(pageWidth/2, 10, fmt.Sprintf("Pagina %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	header := func() {
		pdf.SetFont("Arial", "B", bodyFontSize)
		pdf.SetFillColor(headerFill[0], headerFill[1], headerFill[2])
		pdf.SetTextColor(headerText[0], headerText[1], headerText[2])
		for i, col := range doc.Columns {
			pdf.CellFormat(widths[i], headerHeight, text(col), "1", 0, align(i, doc.TextColumns), true, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.AddPage()
	pdf.SetFont("Arial", "B", titleFontSize)
	pdf.SetTextColor(bodyText[0], bodyText[1], bodyText[2])
	pdf.CellFormat(0, 10, text(doc.Title), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for r, row := range doc.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom-10 {
			pdf.AddPage()
			header()
		}
		kind := ""
		if r < len(doc.Kinds) {
			kind = doc.Kinds[r]
		}
		fill := false
		style := ""
		switch kind {
		case "kpi":
			pdf.SetFillColor(kpiFill[0], kpiFill[1], kpiFill[2])
			fill, style = true, "B"
		case "category":
			if doc.TextColumns > 1 {
				pdf.SetFillColor(categoryFill[0], categoryFill[1], categoryFill[2])
				fill, style = true, "B"
			}
		}
		pdf.SetFont("Arial", style, bodyFontSize)
		pdf.SetTextColor(bodyText[0], bodyText[1], bodyText[2])
		for i := range doc.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(widths[i], rowHeight, text(cell), "1", 0, align(i, doc.TextColumns), fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("encode pdf: %w", err)
	}
	return nil
}

func columnWidths(n, textCols int) []float64 {
	textCols = min(textCols, n)
	widths := make([]float64, n)
	numeric := n - textCols
	textWidth := textColWidth
	if numeric == 0 {
		textWidth = pageWidth / float64(n)
	}
	for i := range widths {
		if i < textCols {
			widths[i] = textWidth
		} else {
			widths[i] = (pageWidth - textWidth*float64(textCols)) / float64(numeric)
		}
	}
	return widths
}

func align(col, textCols int) string {
	if col < textCols {
		return "L"
	}
	return "R"
}
