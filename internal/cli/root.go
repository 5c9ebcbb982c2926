// Package cli implements the cadence command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/config"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/ledger"
	"github.com/roach88/cadence/internal/policy"
	"github.com/roach88/cadence/internal/rights"
	"github.com/roach88/cadence/internal/service"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cadence CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cadence",
		Short: "Cadence - behavioral ledger engine",
		Long:  "An append-only behavioral ledger with a deterministic retention engine.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "ledger database path (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCheckinCommand(opts))
	cmd.AddCommand(NewRestCommand(opts))
	cmd.AddCommand(NewLinkCommand(opts))
	cmd.AddCommand(NewSupportCommand(opts))
	cmd.AddCommand(NewWitnessCommand(opts))
	cmd.AddCommand(NewAppealCommand(opts))
	cmd.AddCommand(NewPardonCommand(opts))
	cmd.AddCommand(NewResurrectCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReceiptsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openService builds the full stack from the resolved configuration.
// The returned close function releases the store.
func openService(opts *RootOptions) (*service.Service, func(), error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "load config", err)
		}
		cfg = loaded
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	logger := newLogger(cfg.Log, opts.Verbose)

	table, err := policy.Load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load retention policy", err)
	}

	store, err := ledger.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open ledger", err)
	}

	eng := engine.New(table,
		engine.WithMaxGapDays(cfg.MaxGapDays),
		engine.WithFreezeTokenCap(cfg.FreezeTokenCap),
	)
	gate := rights.NewGate(eng.Table(), cfg.MinAppealCapital)
	svc := service.New(store, eng, gate,
		service.WithLogger(logger),
		service.WithRetryPolicy(cfg.AppendRetries, time.Duration(cfg.RetryIntervalMS)*time.Millisecond),
	)

	return svc, func() { store.Close() }, nil
}

// newLogger builds the slog handler from config. Verbose forces debug.
func newLogger(cfg config.LogConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, hopts)
	}
	return slog.New(handler)
}
