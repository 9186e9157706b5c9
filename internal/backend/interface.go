package backend

import (
	"context"

	"cruscotto/internal/amqp"
	"cruscotto/internal/sheets"
	"cruscotto/internal/storage"
)

// Backend provides the statement, mapping and companion sheets.
type Backend interface {
	sheets.Source
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and the optional pieces
// built alongside it. Writer, Store and Publisher are nil when not
// available.
type BackendResult struct {
	Backend Backend
	// Writer receives published reports.
	Writer sheets.ReportWriter
	// Store is the publication ledger; set for the sqlite backend.
	Store *storage.SQLiteRepository
	// Publisher queues publish requests when AMQP is configured.
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Workbooks
	StatementPath  string
	MappingsPath   string
	ReportPath     string
	StatementSheet string
	MappingsSheet  string

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID         string
	GoogleMappingsSpreadsheetID string
	GoogleReportSpreadsheetID   string

	// AMQP, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	ExcelBackend  BackendType = "excel"
	SheetsBackend BackendType = "sheets"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, ExcelBackend, SheetsBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
