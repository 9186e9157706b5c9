// Package console renders reports for the terminal.
package console

import (
	"strings"

	"github.com/pterm/pterm"

	"cruscotto/internal/core"
)

// Info prints an informational message.
func Info(format string, a ...any) { pterm.Info.Printfln(format, a...) }

// Warning prints a warning message.
func Warning(format string, a ...any) { pterm.Warning.Printfln(format, a...) }

// Success prints a success message.
func Success(format string, a ...any) { pterm.Success.Printfln(format, a...) }

// Error prints an error message.
func Error(format string, a ...any) { pterm.Error.Printfln(format, a...) }

// DisableColor turns off styling, e.g. when output is not a terminal.
func DisableColor() { pterm.DisableStyling() }

// Spinner shows progress of a slow read. The zero value is a no-op.
type Spinner struct {
	spinner *pterm.SpinnerPrinter
}

// StartSpinner starts a spinner with message.
func StartSpinner(message string) *Spinner {
	s, err := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(message)
	if err != nil {
		return &Spinner{}
	}
	return &Spinner{spinner: s}
}

// Stop removes the spinner.
func (s *Spinner) Stop() {
	if s.spinner != nil {
		_ = s.spinner.Stop()
	}
}

// RenderReport draws r as a boxed table. KPI rows are bold and the delta
// columns are colored by sign.
func RenderReport(r core.FormattedReport) (string, error) {
	data := pterm.TableData{r.Columns}
	for _, row := range r.Rows {
		cells := row.Cells()
		n := len(cells)
		cells[n-2] = colorDelta(cells[n-2])
		cells[n-1] = colorDelta(cells[n-1])
		if row.Kind == core.RowKPI.String() {
			for i := range cells[:n-2] {
				cells[i] = pterm.Bold.Sprint(cells[i])
			}
		}
		data = append(data, cells)
	}
	return renderTable(data)
}

// RenderTable draws a balance sheet or cash flow view.
func RenderTable(t core.FormattedTable) (string, error) {
	data := pterm.TableData{t.Columns}
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		copy(cells, row)
		data = append(data, cells)
	}
	return renderTable(data)
}

// RenderRecords draws a header record followed by rows.
func RenderRecords(records [][]string) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	return renderTable(pterm.TableData(records))
}

func renderTable(data pterm.TableData) (string, error) {
	table := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data)
	return table.Srender()
}

func colorDelta(s string) string {
	switch {
	case s == "" || strings.Trim(s, "0.,%") == "":
		return s
	case strings.HasPrefix(s, "-"):
		return pterm.FgRed.Sprint(s)
	default:
		return pterm.FgGreen.Sprint(s)
	}
}
