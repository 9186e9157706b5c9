package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "cruscotto/internal/log"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendExcel  = "excel"
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
)

var validBackends = []string{BackendMemory, BackendExcel, BackendSheets, BackendSQLite}

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Backend selection
	DataBackend string

	// Workbooks (excel backend, CLI import)
	DataDir        string
	StatementFile  string
	MappingsFile   string
	ReportFile     string
	StatementSheet string
	MappingsSheet  string
	BalanceSheet   string
	CashFlowSheet  string

	// Database
	SQLiteDBPath string

	// Google Sheets
	GoogleSpreadsheetID         string
	GoogleMappingsSpreadsheetID string
	GoogleReportSpreadsheetID   string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// HTTP hardening
	RequestTimeout    time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustedProxies    []string

	// Report
	ReportTitle      string
	DetailCategories []string
	KPILabels        []string
	CacheTTL         time.Duration
	CacheSize        int

	// Worker
	PublishBatchSize   int
	PublishInterval    time.Duration
	PublishMaxAttempts int
	PublishRetryDelay  time.Duration
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:     "8081",
		LogLevel: "info",

		DataBackend: BackendMemory,

		DataDir:        "data",
		StatementFile:  "Conto_Economico_Budget.xlsx",
		MappingsFile:   "Mappings.xlsx",
		ReportFile:     "Report.xlsx",
		StatementSheet: "Conto Economico",
		MappingsSheet:  "Conto_Economico",
		BalanceSheet:   "Stato Patrimoniale",
		CashFlowSheet:  "Rendiconto Finanziario",

		SQLiteDBPath: "./data/cruscotto.db",

		AMQPExchange: "cruscotto",
		AMQPQueue:    "publish_reports",

		RequestTimeout:    15 * time.Second,
		RateLimitRequests: 10,
		RateLimitWindow:   time.Minute,

		ReportTitle:      "Variance",
		DetailCategories: []string{"Vendite", "Altri Opex"},
		KPILabels:        []string{"Marginalità Vendite lorda", "EBITDA", "EBIT", "EBT", "Risultato di Gruppo"},
		CacheTTL:         5 * time.Minute,
		CacheSize:        64,

		PublishBatchSize:   10,
		PublishInterval:    30 * time.Second,
		PublishMaxAttempts: 3,
		PublishRetryDelay:  time.Minute,
	}
}

// Load builds the configuration from defaults, the optional file named by
// CONFIG_FILE, then environment variables, each overriding the previous.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := fc.apply(cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)

	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.StatementFile = getEnv("STATEMENT_FILE", cfg.StatementFile)
	cfg.MappingsFile = getEnv("MAPPINGS_FILE", cfg.MappingsFile)
	cfg.ReportFile = getEnv("REPORT_FILE", cfg.ReportFile)
	cfg.StatementSheet = getEnv("STATEMENT_SHEET", cfg.StatementSheet)
	cfg.MappingsSheet = getEnv("MAPPINGS_SHEET", cfg.MappingsSheet)
	cfg.BalanceSheet = getEnv("BALANCE_SHEET", cfg.BalanceSheet)
	cfg.CashFlowSheet = getEnv("CASHFLOW_SHEET", cfg.CashFlowSheet)

	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleMappingsSpreadsheetID = getEnv("GOOGLE_MAPPINGS_SPREADSHEET_ID", cfg.GoogleMappingsSpreadsheetID)
	cfg.GoogleReportSpreadsheetID = getEnv("GOOGLE_REPORT_SPREADSHEET_ID", cfg.GoogleReportSpreadsheetID)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RateLimitRequests = getEnvInt("RATE_LIMIT_REQUESTS", cfg.RateLimitRequests)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.TrustedProxies = getEnvList("TRUSTED_PROXIES", cfg.TrustedProxies)

	cfg.ReportTitle = getEnv("REPORT_TITLE", cfg.ReportTitle)
	cfg.DetailCategories = getEnvList("DETAIL_CATEGORIES", cfg.DetailCategories)
	cfg.KPILabels = getEnvList("KPI_LABELS", cfg.KPILabels)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.CacheSize = getEnvInt("CACHE_SIZE", cfg.CacheSize)

	cfg.PublishBatchSize = getEnvInt("PUBLISH_BATCH_SIZE", cfg.PublishBatchSize)
	cfg.PublishInterval = getEnvDuration("PUBLISH_INTERVAL", cfg.PublishInterval)
	cfg.PublishMaxAttempts = getEnvInt("PUBLISH_MAX_ATTEMPTS", cfg.PublishMaxAttempts)
	cfg.PublishRetryDelay = getEnvDuration("PUBLISH_RETRY_DELAY", cfg.PublishRetryDelay)

	return cfg, nil
}

// StatementPath resolves StatementFile against DataDir.
func (c *Config) StatementPath() string { return c.inDataDir(c.StatementFile) }

// MappingsPath resolves MappingsFile against DataDir.
func (c *Config) MappingsPath() string { return c.inDataDir(c.MappingsFile) }

// ReportPath resolves ReportFile against DataDir.
func (c *Config) ReportPath() string { return c.inDataDir(c.ReportFile) }

func (c *Config) inDataDir(name string) string {
	if name == "" || filepath.IsAbs(name) || c.DataDir == "" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if strings.TrimSpace(c.StatementSheet) == "" {
		errors = append(errors, "statement sheet name cannot be empty")
	}
	if strings.TrimSpace(c.MappingsSheet) == "" {
		errors = append(errors, "mappings sheet name cannot be empty")
	}

	switch c.DataBackend {
	case BackendExcel:
		for _, f := range []struct{ what, path string }{
			{"statement workbook", c.StatementPath()},
			{"mappings workbook", c.MappingsPath()},
		} {
			if f.path == "" {
				errors = append(errors, fmt.Sprintf("%s path cannot be empty when using excel backend", f.what))
				continue
			}
			if _, err := os.Stat(f.path); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("%s does not exist: %s", f.what, f.path))
			}
		}

	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}

	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	if c.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be positive", c.RequestTimeout))
	}
	if c.RateLimitRequests < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitRequests))
	}
	if c.RateLimitWindow < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rate limit window %v: must be at least 1 second", c.RateLimitWindow))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil && net.ParseIP(cidr) == nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be an IP or CIDR", cidr))
		}
	}

	if c.PublishBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid publish batch size %d: must be at least 1", c.PublishBatchSize))
	} else if c.PublishBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid publish batch size %d: must be at most 1000", c.PublishBatchSize))
	}

	if c.PublishInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid publish interval %v: must be at least 1 second", c.PublishInterval))
	} else if c.PublishInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid publish interval %v: must be at most 24 hours", c.PublishInterval))
	}

	if c.PublishMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid publish max attempts %d: must be at least 1", c.PublishMaxAttempts))
	}
	if c.PublishRetryDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid publish retry delay %v: must not be negative", c.PublishRetryDelay))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return splitList(value)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
