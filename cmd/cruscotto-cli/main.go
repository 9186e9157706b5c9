package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cruscotto/internal/backend"
	"cruscotto/internal/cli"
	"cruscotto/internal/config"
	"cruscotto/internal/console"
	applog "cruscotto/internal/log"
	"cruscotto/internal/services"
)

var version = "dev"

// app carries what every command needs after PersistentPreRunE.
type app struct {
	configFile string
	logLevel   string
	noColor    bool

	cfg    *config.Config
	logger *applog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cruscotto",
		Short:         "Variance reports from the income statement",
		Long:          "cruscotto reclassifies the income statement through the mapping sheet and compares two periods.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config-file", "C", "", "path to a TOML, YAML or JSON configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.periodsCmd(),
		a.reportCmd(),
		a.sheetCmd(),
		a.importCmd(),
		a.publishCmd(),
		a.publicationsCmd(),
	)
	return root
}

func (a *app) init() error {
	cli.LoadEnvFile()
	if a.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", a.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.noColor {
		console.DisableColor()
	}
	a.cfg = cfg
	a.logger = cli.SetupLogger(cfg.LogLevel, applog.ComponentCLI)
	return nil
}

// openReports builds the configured backend and a report service on it.
// The returned cleanup releases the backend.
func (a *app) openReports(ctx context.Context) (*services.ReportService, *backend.BackendResult, func(), error) {
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	res, err := backend.NewFactory(a.logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		publisher services.ReportPublisher
		store     services.PublicationStore
	)
	if res.Publisher != nil {
		publisher = res.Publisher
	}
	if res.Store != nil {
		store = res.Store
	}

	reports := services.NewReportService(res.Backend, publisher, store, services.ReportConfig{
		DetailCategories: a.cfg.DetailCategories,
		KPILabels:        a.cfg.KPILabels,
		BalanceSheet:     a.cfg.BalanceSheet,
		CashFlowSheet:    a.cfg.CashFlowSheet,
		TitlePrefix:      a.cfg.ReportTitle,
	})
	cleanup := func() {
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				a.logger.Warn("Backend cleanup failed", applog.FieldError, err)
			}
		}
	}
	return reports, res, cleanup, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
