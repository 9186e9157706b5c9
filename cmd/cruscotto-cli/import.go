package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cruscotto/internal/config"
	"cruscotto/internal/console"
	"cruscotto/internal/core"
	"cruscotto/internal/sheets"
	"cruscotto/internal/sheets/excel"
	"cruscotto/internal/storage"
)

// importSource names the workbooks an import reads.
type importSource struct {
	statementPath  string
	mappingsPath   string
	statementSheet string
	mappingsSheet  string
	extraSheets    []string
}

func sourceFromConfig(cfg *config.Config) importSource {
	return importSource{
		statementPath:  cfg.StatementPath(),
		mappingsPath:   cfg.MappingsPath(),
		statementSheet: cfg.StatementSheet,
		mappingsSheet:  cfg.MappingsSheet,
		extraSheets:    []string{cfg.BalanceSheet, cfg.CashFlowSheet},
	}
}

func (a *app) importCmd() *cobra.Command {
	var statement, mappings, db string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the statement and mapping workbooks into SQLite",
		Long: `Reads the statement workbook (income statement, balance sheet and cash
flow sheets) and the mapping workbook, and replaces the snapshot kept in the
SQLite database used by the sqlite backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := sourceFromConfig(a.cfg)
			if statement != "" {
				src.statementPath = statement
			}
			if mappings != "" {
				src.mappingsPath = mappings
			}
			if db == "" {
				db = a.cfg.SQLiteDBPath
			}

			repo, err := storage.NewSQLiteRepository(db)
			if err != nil {
				return err
			}
			defer repo.Close()

			sum, err := importWorkbooks(cmd.Context(), repo, src)
			if err != nil {
				return err
			}
			console.Success("Imported %d line items over %d periods and %d mappings into %s",
				sum.items, sum.periods, sum.mappings, db)
			for _, name := range sum.skipped {
				console.Warning("Sheet %q not found, skipped", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&statement, "statement", "", "statement workbook (default: from configuration)")
	cmd.Flags().StringVar(&mappings, "mappings", "", "mapping workbook (default: from configuration)")
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path (default: SQLITE_DB_PATH)")
	return cmd
}

type importSummary struct {
	periods  int
	items    int
	mappings int
	skipped  []string
}

// snapshotStore is the part of the repository an import writes to.
type snapshotStore interface {
	ImportStatement(ctx context.Context, stmt core.Statement) error
	ImportMapping(ctx context.Context, m core.Mapping) error
	ImportTable(ctx context.Context, name string, t core.Table) error
}

// importWorkbooks validates both workbooks before writing anything, so a
// broken statement never replaces a good snapshot.
func importWorkbooks(ctx context.Context, store snapshotStore, src importSource) (importSummary, error) {
	var sum importSummary
	for _, p := range []string{src.statementPath, src.mappingsPath} {
		if _, err := os.Stat(p); err != nil {
			return sum, fmt.Errorf("workbook %s: %w", p, err)
		}
	}

	stmtTable, err := excel.ReadTableFile(ctx, src.statementPath, src.statementSheet)
	if err != nil {
		return sum, err
	}
	stmt := core.StatementFromTable(stmtTable)
	if len(stmt.Periods) == 0 {
		return sum, fmt.Errorf("sheet %q has no period columns", src.statementSheet)
	}

	mapTable, err := excel.ReadTableFile(ctx, src.mappingsPath, src.mappingsSheet)
	if err != nil {
		return sum, err
	}
	mapping := core.MappingFromTable(mapTable)
	for _, e := range mapping {
		if err := e.Validate(); err != nil {
			return sum, fmt.Errorf("mapping %q: %w", e.Label, err)
		}
	}

	if err := store.ImportStatement(ctx, stmt); err != nil {
		return sum, err
	}
	if err := store.ImportMapping(ctx, mapping); err != nil {
		return sum, err
	}
	sum.periods, sum.items, sum.mappings = len(stmt.Periods), len(stmt.Items), len(mapping)

	for _, name := range src.extraSheets {
		t, err := excel.ReadTableFile(ctx, src.statementPath, name)
		if errors.Is(err, sheets.ErrSheetNotFound) {
			sum.skipped = append(sum.skipped, name)
			continue
		}
		if err != nil {
			return sum, err
		}
		if err := store.ImportTable(ctx, name, t); err != nil {
			return sum, err
		}
	}
	return sum, nil
}
