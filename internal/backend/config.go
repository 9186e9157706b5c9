package backend

import (
	"fmt"

	"cruscotto/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		StatementPath:  appConfig.StatementPath(),
		MappingsPath:   appConfig.MappingsPath(),
		ReportPath:     appConfig.ReportPath(),
		StatementSheet: appConfig.StatementSheet,
		MappingsSheet:  appConfig.MappingsSheet,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		GoogleSpreadsheetID:         appConfig.GoogleSpreadsheetID,
		GoogleMappingsSpreadsheetID: appConfig.GoogleMappingsSpreadsheetID,
		GoogleReportSpreadsheetID:   appConfig.GoogleReportSpreadsheetID,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case ExcelBackend:
		if c.StatementPath == "" || c.MappingsPath == "" {
			return fmt.Errorf("statement and mappings workbooks are required for excel backend")
		}

	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}

	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}

	case MemoryBackend:
		// Memory backend serves the demo data
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, ExcelBackend, SheetsBackend, SQLiteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
