package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cruscotto/internal/amqp"
	"cruscotto/internal/sheets"
	"cruscotto/internal/sheets/excel"
	gsheet "cruscotto/internal/sheets/google"
	"cruscotto/internal/sheets/memory"
	"cruscotto/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result, err = f.createMemoryBackend()
	case ExcelBackend:
		result, err = f.createExcelBackend(config)
	case SheetsBackend:
		result, err = f.createSheetsBackend(ctx, config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachPublisher(result, config)
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store := memory.NewDemo()

	f.logger.Info("Initialized memory backend with demo data")

	return &BackendResult{
		Backend: store,
		Writer:  store,
	}, nil
}

func (f *DefaultFactory) createExcelBackend(config Config) (*BackendResult, error) {
	wb, err := excel.New(excel.Options{
		StatementPath:  config.StatementPath,
		MappingPath:    config.MappingsPath,
		StatementSheet: config.StatementSheet,
		MappingSheet:   config.MappingsSheet,
		ReportPath:     config.ReportPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize excel backend: %w", err)
	}

	f.logger.Info("Initialized excel backend",
		"statement", config.StatementPath,
		"mappings", config.MappingsPath,
		"report", config.ReportPath)

	result := &BackendResult{Backend: wb}
	if config.ReportPath != "" {
		result.Writer = wb
	}
	return result, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:         config.GoogleSpreadsheetID,
		MappingsSpreadsheetID: config.GoogleMappingsSpreadsheetID,
		StatementSheet:        config.StatementSheet,
		MappingSheet:          config.MappingsSheet,
		ReportSpreadsheetID:   config.GoogleReportSpreadsheetID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{
		Backend: cli,
		Writer:  cli,
	}, nil
}

// createSQLiteBackend serves imported snapshots from SQLite. Reports are
// published to Google Sheets when a report spreadsheet is configured,
// otherwise to the report workbook.
func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	var writer sheets.ReportWriter
	switch {
	case config.GoogleReportSpreadsheetID != "":
		cli, err := gsheet.New(ctx, gsheet.Options{SpreadsheetID: config.GoogleReportSpreadsheetID})
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to initialize Google Sheets report writer: %w", err)
		}
		writer = cli
	case config.ReportPath != "":
		wb, err := excel.NewReportWriter(config.ReportPath)
		if err != nil {
			repo.Close()
			return nil, err
		}
		writer = wb
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"report_writer", writer != nil)

	return &BackendResult{
		Backend: repo,
		Writer:  writer,
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

// attachPublisher connects to AMQP when configured. A broker that cannot
// be reached is logged and publishing falls back to the pending retry.
func (f *DefaultFactory) attachPublisher(result *BackendResult, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without queue", "error", err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.Publisher = client
	storeCleanup := result.Cleanup
	result.Cleanup = func() error {
		err := client.Close()
		if storeCleanup != nil {
			err = errors.Join(err, storeCleanup())
		}
		return err
	}
}
