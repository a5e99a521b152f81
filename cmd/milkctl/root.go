package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"milkbook/internal/backend"
	"milkbook/internal/cli"
	"milkbook/internal/config"
	"milkbook/internal/core"
	applog "milkbook/internal/log"
	"milkbook/internal/services"
)

var (
	cfgFile     string
	backendName string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "milkctl",
	Short: "Read and edit the milk ledger from the command line",
	Long: `milkctl works on the same storage as the milkbook server.
It materializes months, records daily quantities and prints what is owed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./milkbook.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "data backend, overrides DATA_BACKEND")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// loadConfig applies the global flags on top of the usual configuration
// sources and validates the result.
func loadConfig() (*config.Config, error) {
	cli.LoadEnvFile()
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_PATH", cfgFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if backendName != "" {
		cfg.DataBackend = backendName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openLedger opens the configured backend. The returned func releases it.
func openLedger(ctx context.Context) (*services.MonthlyLedger, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(logLevel),
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})

	res, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := res.Close(); err != nil {
			logger.Warn("Backend close error", applog.FieldError, err)
		}
	}
	return services.NewMonthlyLedger(res.Store, logger.Logger), cfg, closeFn, nil
}

// commandContext bounds a single command.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// monthFlags are shared by commands that work on one month.
type monthFlags struct {
	month int
	year  int
	price string
}

func (f *monthFlags) register(cmd *cobra.Command) {
	now := time.Now()
	cmd.Flags().IntVar(&f.month, "month", int(now.Month()), "month (1-12)")
	cmd.Flags().IntVar(&f.year, "year", now.Year(), fmt.Sprintf("year (%d-%d)", core.MinYear, core.MaxYear))
	cmd.Flags().StringVar(&f.price, "price", "", "unit price per litre (default from config)")
}

func (f *monthFlags) selection() (core.MonthSelection, error) {
	sel := core.MonthSelection{Month: f.month, Year: f.year}
	return sel, sel.Validate()
}

func (f *monthFlags) unitPrice(cfg *config.Config) (core.UnitPrice, error) {
	if f.price == "" {
		return core.UnitPrice(cfg.UnitPrice), nil
	}
	return core.ParseUnitPrice(f.price)
}

// backendLabel names the backend for output.
func backendLabel(cfg *config.Config) string {
	return backend.BackendType(cfg.DataBackend).String()
}
