package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// FileConfig is the optional configuration file. Empty fields keep the
// defaults.
type FileConfig struct {
	Port        string `yaml:"port" toml:"port" json:"port"`
	LogLevel    string `yaml:"log_level" toml:"log_level" json:"log_level"`
	DataBackend string `yaml:"data_backend" toml:"data_backend" json:"data_backend"`

	Workbooks struct {
		Dir            string `yaml:"dir" toml:"dir" json:"dir"`
		Statement      string `yaml:"statement" toml:"statement" json:"statement"`
		Mappings       string `yaml:"mappings" toml:"mappings" json:"mappings"`
		Report         string `yaml:"report" toml:"report" json:"report"`
		StatementSheet string `yaml:"statement_sheet" toml:"statement_sheet" json:"statement_sheet"`
		MappingsSheet  string `yaml:"mappings_sheet" toml:"mappings_sheet" json:"mappings_sheet"`
		BalanceSheet   string `yaml:"balance_sheet" toml:"balance_sheet" json:"balance_sheet"`
		CashFlowSheet  string `yaml:"cash_flow_sheet" toml:"cash_flow_sheet" json:"cash_flow_sheet"`
	} `yaml:"workbooks" toml:"workbooks" json:"workbooks"`

	SQLiteDBPath string `yaml:"sqlite_db_path" toml:"sqlite_db_path" json:"sqlite_db_path"`

	Google struct {
		SpreadsheetID         string `yaml:"spreadsheet_id" toml:"spreadsheet_id" json:"spreadsheet_id"`
		MappingsSpreadsheetID string `yaml:"mappings_spreadsheet_id" toml:"mappings_spreadsheet_id" json:"mappings_spreadsheet_id"`
		ReportSpreadsheetID   string `yaml:"report_spreadsheet_id" toml:"report_spreadsheet_id" json:"report_spreadsheet_id"`
	} `yaml:"google" toml:"google" json:"google"`

	AMQP struct {
		URL      string `yaml:"url" toml:"url" json:"url"`
		Exchange string `yaml:"exchange" toml:"exchange" json:"exchange"`
		Queue    string `yaml:"queue" toml:"queue" json:"queue"`
	} `yaml:"amqp" toml:"amqp" json:"amqp"`

	HTTP struct {
		RequestTimeout    string   `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
		RateLimitRequests int      `yaml:"rate_limit_requests" toml:"rate_limit_requests" json:"rate_limit_requests"`
		RateLimitWindow   string   `yaml:"rate_limit_window" toml:"rate_limit_window" json:"rate_limit_window"`
		TrustedProxies    []string `yaml:"trusted_proxies" toml:"trusted_proxies" json:"trusted_proxies"`
	} `yaml:"http" toml:"http" json:"http"`

	Report struct {
		Title            string   `yaml:"title" toml:"title" json:"title"`
		DetailCategories []string `yaml:"detail_categories" toml:"detail_categories" json:"detail_categories"`
		KPILabels        []string `yaml:"kpi_labels" toml:"kpi_labels" json:"kpi_labels"`
		CacheTTL         string   `yaml:"cache_ttl" toml:"cache_ttl" json:"cache_ttl"`
		CacheSize        int      `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
	} `yaml:"report" toml:"report" json:"report"`

	Worker struct {
		BatchSize   int    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
		Interval    string `yaml:"interval" toml:"interval" json:"interval"`
		MaxAttempts int    `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
		RetryDelay  string `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
	} `yaml:"worker" toml:"worker" json:"worker"`
}

// LoadFile reads a TOML, YAML or JSON configuration file.
func LoadFile(path string) (*FileConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var fc FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("error parsing TOML file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("error parsing YAML file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("error parsing JSON file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	return &fc, nil
}

func (fc *FileConfig) apply(cfg *Config) error {
	setString(&cfg.Port, fc.Port)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.DataBackend, fc.DataBackend)

	setString(&cfg.DataDir, fc.Workbooks.Dir)
	setString(&cfg.StatementFile, fc.Workbooks.Statement)
	setString(&cfg.MappingsFile, fc.Workbooks.Mappings)
	setString(&cfg.ReportFile, fc.Workbooks.Report)
	setString(&cfg.StatementSheet, fc.Workbooks.StatementSheet)
	setString(&cfg.MappingsSheet, fc.Workbooks.MappingsSheet)
	setString(&cfg.BalanceSheet, fc.Workbooks.BalanceSheet)
	setString(&cfg.CashFlowSheet, fc.Workbooks.CashFlowSheet)

	setString(&cfg.SQLiteDBPath, fc.SQLiteDBPath)

	setString(&cfg.GoogleSpreadsheetID, fc.Google.SpreadsheetID)
	setString(&cfg.GoogleMappingsSpreadsheetID, fc.Google.MappingsSpreadsheetID)
	setString(&cfg.GoogleReportSpreadsheetID, fc.Google.ReportSpreadsheetID)

	setString(&cfg.AMQPURL, fc.AMQP.URL)
	setString(&cfg.AMQPExchange, fc.AMQP.Exchange)
	setString(&cfg.AMQPQueue, fc.AMQP.Queue)

	if err := setDuration(&cfg.RequestTimeout, fc.HTTP.RequestTimeout); err != nil {
		return fmt.Errorf("http.request_timeout: %w", err)
	}
	if fc.HTTP.RateLimitRequests != 0 {
		cfg.RateLimitRequests = fc.HTTP.RateLimitRequests
	}
	if err := setDuration(&cfg.RateLimitWindow, fc.HTTP.RateLimitWindow); err != nil {
		return fmt.Errorf("http.rate_limit_window: %w", err)
	}
	if len(fc.HTTP.TrustedProxies) > 0 {
		cfg.TrustedProxies = fc.HTTP.TrustedProxies
	}

	setString(&cfg.ReportTitle, fc.Report.Title)
	if len(fc.Report.DetailCategories) > 0 {
		cfg.DetailCategories = fc.Report.DetailCategories
	}
	if len(fc.Report.KPILabels) > 0 {
		cfg.KPILabels = fc.Report.KPILabels
	}
	if fc.Report.CacheSize != 0 {
		cfg.CacheSize = fc.Report.CacheSize
	}
	if err := setDuration(&cfg.CacheTTL, fc.Report.CacheTTL); err != nil {
		return fmt.Errorf("report.cache_ttl: %w", err)
	}

	if fc.Worker.BatchSize != 0 {
		cfg.PublishBatchSize = fc.Worker.BatchSize
	}
	if err := setDuration(&cfg.PublishInterval, fc.Worker.Interval); err != nil {
		return fmt.Errorf("worker.interval: %w", err)
	}
	if fc.Worker.MaxAttempts != 0 {
		cfg.PublishMaxAttempts = fc.Worker.MaxAttempts
	}
	if err := setDuration(&cfg.PublishRetryDelay, fc.Worker.RetryDelay); err != nil {
		return fmt.Errorf("worker.retry_delay: %w", err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
