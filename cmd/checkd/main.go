// Package main implements the checkd CLI for validating, fixing, and
// managing rule-checked technical documentation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/config"
	"github.com/fyrsmithlabs/checkd/internal/logging"
	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/telemetry"
	"github.com/fyrsmithlabs/checkd/internal/validate"
)

var (
	// cfgFile is the optional path to a YAML config file
	cfgFile string
	// cfg is loaded before any subcommand runs
	cfg *config.Config
	// logger is the process-wide logger
	logger *zap.Logger
	// otelProvider exports traces and metrics when enabled in config
	otelProvider *telemetry.Provider
	// version information
	version = "dev"
)

// Exit codes: 0 clean, 1 violations or unexpected failure, 2 invalid
// invocation (bad flags, unknown rule key, unreadable config).
const (
	exitClean      = 0
	exitViolations = 1
	exitUsage      = 2
)

// exitError carries a specific process exit code out of a RunE. The
// diagnostic has already been printed when one is returned.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func main() {
	err := rootCmd.Execute()
	if otelProvider != nil {
		_ = otelProvider.Shutdown(context.Background())
	}
	if logger != nil {
		_ = logger.Sync()
	}
	if err == nil {
		return
	}

	var ee exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}

	// Anything cobra hands back directly is an invocation problem.
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitUsage)
}

var rootCmd = &cobra.Command{
	Use:   "checkd",
	Short: "Rule-checked documentation and answer validation",
	Long: `checkd validates technical text against mechanical documentation rules,
retries generated answers until they pass, and adapts rule severities
from recurring-violation telemetry.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		otelProvider, err = telemetry.Setup(cmd.Context(), cfg.OTel, version)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(lifecycleCmd)
}

// fail prints the diagnostic and maps it to the violations exit code.
func fail(err error) error {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return exitError{exitViolations}
}

// components bundles the rule machinery shared by the subcommands.
type components struct {
	store    rules.Store
	registry *rules.Registry
	log      *telemetry.Log
	pipeline *validate.Pipeline
}

// newComponents wires the rule store, registry, telemetry log, and
// validator pipeline from the loaded config.
func newComponents() (*components, error) {
	store := rules.NewFileStore(cfg.Rules.Path, logger)
	rs, err := store.Load()
	if err != nil {
		return nil, err
	}
	registry := rules.NewRegistry(rs)

	log, err := telemetry.NewLog(cfg.Telemetry.Path, logger)
	if err != nil {
		return nil, err
	}

	pipeline, err := validate.NewPipeline(registry, log, logger)
	if err != nil {
		return nil, err
	}

	return &components{
		store:    store,
		registry: registry,
		log:      log,
		pipeline: pipeline,
	}, nil
}
