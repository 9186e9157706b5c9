// Package excel reads statement workbooks and writes reports as xlsx.
package excel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"cruscotto/internal/core"
	ports "cruscotto/internal/sheets"
)

// Workbook reads the statement, its companion sheets and the mapping from
// xlsx files on disk. Files are opened on every read so edits show up
// without a restart.
type Workbook struct {
	statementPath  string
	mappingPath    string
	statementSheet string
	mappingSheet   string
	reportPath     string

	// mu serializes WriteReport: each write rewrites the whole file.
	mu sync.Mutex
}

var (
	_ ports.Source       = (*Workbook)(nil)
	_ ports.ReportWriter = (*Workbook)(nil)
)

// Options configures a Workbook.
type Options struct {
	StatementPath  string
	MappingPath    string
	StatementSheet string
	MappingSheet   string
	// ReportPath is the workbook WriteReport adds sheets to. It is
	// created when missing.
	ReportPath string
}

func New(opts Options) (*Workbook, error) {
	if strings.TrimSpace(opts.StatementPath) == "" {
		return nil, errors.New("missing statement workbook path")
	}
	if strings.TrimSpace(opts.MappingPath) == "" {
		return nil, errors.New("missing mapping workbook path")
	}
	return &Workbook{
		statementPath:  opts.StatementPath,
		mappingPath:    opts.MappingPath,
		statementSheet: opts.StatementSheet,
		mappingSheet:   opts.MappingSheet,
		reportPath:     opts.ReportPath,
	}, nil
}

// NewReportWriter returns a Workbook that only writes reports to path.
func NewReportWriter(path string) (*Workbook, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("missing report workbook path")
	}
	return &Workbook{reportPath: path}, nil
}

func (w *Workbook) ReadStatement(ctx context.Context) (core.Statement, error) {
	t, err := ReadTableFile(ctx, w.statementPath, w.statementSheet)
	if err != nil {
		return core.Statement{}, err
	}
	return core.StatementFromTable(t), nil
}

func (w *Workbook) ReadMapping(ctx context.Context) (core.Mapping, error) {
	t, err := ReadTableFile(ctx, w.mappingPath, w.mappingSheet)
	if err != nil {
		return nil, err
	}
	return core.MappingFromTable(t), nil
}

// ReadTable reads another sheet of the statement workbook.
func (w *Workbook) ReadTable(ctx context.Context, name string) (core.Table, error) {
	return ReadTableFile(ctx, w.statementPath, name)
}

// WriteReport adds (or replaces) a sheet named title in the report
// workbook.
func (w *Workbook) WriteReport(ctx context.Context, title string, r core.FormattedReport) (string, error) {
	if w.reportPath == "" {
		return "", errors.New("report workbook path not configured")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		f     *excelize.File
		fresh bool
	)
	if _, err := os.Stat(w.reportPath); err == nil {
		f, err = excelize.OpenFile(w.reportPath)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", w.reportPath, err)
		}
	} else {
		f, fresh = excelize.NewFile(), true
	}
	defer f.Close()

	sheet := sheetName(title)
	if err := writeReportSheet(f, sheet, r); err != nil {
		return "", err
	}
	if fresh {
		if err := dropDefaultSheet(f, sheet); err != nil {
			return "", err
		}
	}
	if err := f.SaveAs(w.reportPath); err != nil {
		return "", fmt.Errorf("save %s: %w", w.reportPath, err)
	}
	return fmt.Sprintf("%s!%s", w.reportPath, sheet), nil
}

// ReadTableFile reads one sheet of an xlsx file. Cells are read with their
// raw values so number formats in the workbook do not leak into amounts.
func ReadTableFile(ctx context.Context, path, sheet string) (core.Table, error) {
	if err := ctx.Err(); err != nil {
		return core.Table{}, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return core.Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

// ReadTableFrom is ReadTableFile for an uploaded workbook.
func ReadTableFrom(r io.Reader, sheet string) (core.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return core.Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

func readSheet(f *excelize.File, sheet string) (core.Table, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return core.Table{}, fmt.Errorf("%w: %q", ports.ErrSheetNotFound, sheet)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return core.Table{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return ports.ParseRows(rows), nil
}

// EncodeReport writes r as a single-sheet workbook to out.
func EncodeReport(out io.Writer, title string, r core.FormattedReport) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(title)
	if err := writeReportSheet(f, sheet, r); err != nil {
		return err
	}
	if err := dropDefaultSheet(f, sheet); err != nil {
		return err
	}
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// EncodeTable writes a formatted sheet view as a single-sheet workbook.
func EncodeTable(out io.Writer, title string, t core.FormattedTable) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	records := append([][]string{t.Columns}, t.Rows...)
	if err := writeRecords(f, sheet, records, nil); err != nil {
		return err
	}
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// replacementSheet holds a rewritten report until it takes the old sheet's
// name. excelize refuses to delete the only sheet of a workbook, so the old
// sheet is dropped only once the new one exists.
const replacementSheet = "_cruscotto_replace"

func writeReportSheet(f *excelize.File, sheet string, r core.FormattedReport) error {
	existing, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("lookup sheet %q: %w", sheet, err)
	}
	target := sheet
	if existing >= 0 {
		target = replacementSheet
		if idx, err := f.GetSheetIndex(target); err == nil && idx >= 0 {
			if err := f.DeleteSheet(target); err != nil {
				return fmt.Errorf("clear sheet %q: %w", target, err)
			}
		}
	}
	if _, err := f.NewSheet(target); err != nil {
		return fmt.Errorf("create sheet %q: %w", target, err)
	}

	if err := fillReportSheet(f, target, r); err != nil {
		return err
	}

	if existing >= 0 {
		if err := f.DeleteSheet(sheet); err != nil {
			return fmt.Errorf("delete sheet %q: %w", sheet, err)
		}
		if err := f.SetSheetName(target, sheet); err != nil {
			return fmt.Errorf("rename sheet %q: %w", target, err)
		}
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("lookup sheet %q: %w", sheet, err)
	}
	f.SetActiveSheet(idx)
	return nil
}

func fillReportSheet(f *excelize.File, sheet string, r core.FormattedReport) error {
	bold, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	rowStyles := map[int]int{}
	for i, row := range r.Rows {
		if row.Kind == "category" {
			rowStyles[i+2] = bold
		}
	}
	if err := writeRecords(f, sheet, r.Records(), rowStyles); err != nil {
		return err
	}
	return nil
}

// dropDefaultSheet removes the sheet excelize.NewFile creates.
func dropDefaultSheet(f *excelize.File, keep string) error {
	const def = "Sheet1"
	if keep == def {
		return nil
	}
	if idx, err := f.GetSheetIndex(def); err != nil || idx < 0 {
		return nil
	}
	if err := f.DeleteSheet(def); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	return nil
}

// writeRecords writes a header row (bold, filled) followed by data rows.
func writeRecords(f *excelize.File, sheet string, records [][]string, rowStyles map[int]int) error {
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#2F5597"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	width := 0
	for i, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
		cells := make([]any, len(rec))
		for j, v := range rec {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if width == 0 {
		return nil
	}

	last, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for row, style := range rowStyles {
		if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", last, row), style); err != nil {
			return fmt.Errorf("style row %d: %w", row, err)
		}
	}
	return f.SetColWidth(sheet, "A", last, 18)
}

// sheetName trims a title to a valid worksheet name.
func sheetName(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Report"
	}
	title = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, title)
	if runes := []rune(title); len(runes) > excelize.MaxSheetNameLength {
		title = string(runes[:excelize.MaxSheetNameLength])
	}
	return title
}
