package sheets

import (
	"context"
	"errors"

	"cruscotto/internal/core"
)

// ErrSheetNotFound is returned when a named sheet does not exist in the
// workbook a reader is bound to.
var ErrSheetNotFound = errors.New("sheet not found")

// Ports for outbound adapters.
type (
	// StatementReader loads the income statement with its period columns.
	StatementReader interface {
		ReadStatement(ctx context.Context) (core.Statement, error)
	}

	// MappingReader loads the label → category mapping.
	MappingReader interface {
		ReadMapping(ctx context.Context) (core.Mapping, error)
	}

	// TableReader loads any other sheet of the statement workbook as a
	// raw table (balance sheet, cash flow).
	TableReader interface {
		ReadTable(ctx context.Context, name string) (core.Table, error)
	}

	// ReportWriter publishes a formatted report under title and returns a
	// reference to where it was written.
	ReportWriter interface {
		WriteReport(ctx context.Context, title string, r core.FormattedReport) (ref string, err error)
	}

	// Source bundles the readers a report needs.
	Source interface {
		StatementReader
		MappingReader
		TableReader
	}
)
