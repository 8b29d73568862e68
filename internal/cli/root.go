// Package cli wires configuration, logging and the journal's components into
// the journal command: the API server plus a few maintenance subcommands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rahwulkumar/trading-journal/config"
	"github.com/Rahwulkumar/trading-journal/internal/api"
	"github.com/Rahwulkumar/trading-journal/internal/logger"
	"github.com/Rahwulkumar/trading-journal/internal/store/sqlite"
)

const serviceName = "trading-journal"

// rootOptions carries the persistent flags. Non-empty values override the environment.
type rootOptions struct {
	dbPath   string
	logLevel string
}

func (o *rootOptions) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.SQLitePath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// toolLogger logs to w so command output on stdout stays clean.
func toolLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return logger.New(w, serviceName, logger.ParseLevel(cfg.LogLevel))
}

func openLedger(cfg *config.Config, log *slog.Logger) (*sqlite.Ledger, error) {
	l, err := sqlite.Open(cfg.SQLitePath, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.SQLitePath, err)
	}
	return l, nil
}

// NewRootCmd builds the journal command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "journal",
		Short:         "Trading journal backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&o.dbPath, "db", "", "SQLite journal database (overrides SQLITE_PATH)")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newServeCmd(o),
		newMigrateCmd(o),
		newSeedCmd(o),
		newQuoteCmd(o),
		newPnLCmd(o),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "journal %s\n", api.Version)
		},
	})

	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
