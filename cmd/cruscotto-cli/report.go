package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cruscotto/internal/console"
	"cruscotto/internal/core"
	"cruscotto/internal/export"
	"cruscotto/internal/services"
	"cruscotto/internal/sheets/excel"
)

const formatTable = "table"

// outputFlags selects the output format and destination.
type outputFlags struct {
	format string
	output string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "format", "f", formatTable, "output format: table, csv, json, xlsx, pdf")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output file (default: stdout, or a file named after the title for xlsx and pdf)")
}

// encoders renders one document in every export format.
type encoders struct {
	table func() (string, error)
	csv   func(io.Writer) error
	json  func(io.Writer) error
	xlsx  func(io.Writer) error
	pdf   func(io.Writer) error
}

func (o *outputFlags) write(stdout io.Writer, title string, enc encoders) error {
	if strings.EqualFold(o.format, formatTable) {
		out, err := enc.table()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, out)
		return err
	}

	format, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case export.FormatCSV:
		err = enc.csv(&buf)
	case export.FormatJSON:
		err = enc.json(&buf)
	case export.FormatXLSX:
		err = enc.xlsx(&buf)
	case export.FormatPDF:
		err = enc.pdf(&buf)
	}
	if err != nil {
		return err
	}

	path := o.output
	binary := format == export.FormatXLSX || format == export.FormatPDF
	if path == "" && !binary {
		_, err = buf.WriteTo(stdout)
		return err
	}
	if path == "" {
		path = export.FileName(title, format)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	console.Success("Saved %s", path)
	return nil
}

func (a *app) periodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "periods",
		Short: "List the statement periods",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reports, _, cleanup, err := a.openReports(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			periods, err := reports.Periods(cmd.Context())
			if err != nil {
				return err
			}
			p1, p2, _ := core.DefaultPeriods(periods)
			out := cmd.OutOrStdout()
			for _, p := range periods {
				marker := ""
				switch p {
				case p1:
					marker = "  (default period 1)"
				case p2:
					marker = "  (default period 2)"
				}
				fmt.Fprintf(out, "%s%s\n", p, marker)
			}
			return nil
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	var (
		q   services.ReportQuery
		out outputFlags
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute the variance report between two periods",
		Example: `  cruscotto report
  cruscotto report --period-1 "Consuntivo 2025" --period-2 "Budget 2025" --detail
  cruscotto report -f pdf -o variance.pdf`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reports, _, cleanup, err := a.openReports(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			spinner := console.StartSpinner("Computing report...")
			res, err := reports.Report(ctx, q)
			spinner.Stop()
			if err != nil {
				return err
			}

			title := reports.Title(res.Report)
			f := res.Formatted
			return out.write(cmd.OutOrStdout(), title, encoders{
				table: func() (string, error) { return console.RenderReport(f) },
				csv:   func(w io.Writer) error { return export.CSV(w, f.Records()) },
				json:  func(w io.Writer) error { return export.JSON(w, f) },
				xlsx:  func(w io.Writer) error { return excel.EncodeReport(w, title, f) },
				pdf:   func(w io.Writer) error { return export.PDF(w, export.ReportDocument(title, f)) },
			})
		},
	}
	cmd.Flags().StringVar(&q.Period1, "period-1", "", "first period (default: latest actual)")
	cmd.Flags().StringVar(&q.Period2, "period-2", "", "second period (default: the one before)")
	cmd.Flags().BoolVarP(&q.ShowDetail, "detail", "d", false, "show line items for the detail categories")
	out.register(cmd)
	return cmd
}

func (a *app) sheetCmd() *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:       "sheet {balance-sheet|cash-flow}",
		Short:     "Show the balance sheet or the cash flow statement",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"balance-sheet", "cash-flow"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reports, _, cleanup, err := a.openReports(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var (
				t     core.FormattedTable
				title string
			)
			if args[0] == "balance-sheet" {
				title = a.cfg.BalanceSheet
				t, err = reports.BalanceSheet(ctx)
			} else {
				title = a.cfg.CashFlowSheet
				t, err = reports.CashFlow(ctx)
			}
			if err != nil {
				return err
			}

			return out.write(cmd.OutOrStdout(), title, encoders{
				table: func() (string, error) { return console.RenderTable(t) },
				csv:   func(w io.Writer) error { return export.CSV(w, export.TableRecords(t)) },
				json:  func(w io.Writer) error { return export.JSON(w, t) },
				xlsx:  func(w io.Writer) error { return excel.EncodeTable(w, title, t) },
				pdf:   func(w io.Writer) error { return export.PDF(w, export.TableDocument(title, t)) },
			})
		},
	}
	out.register(cmd)
	return cmd
}
