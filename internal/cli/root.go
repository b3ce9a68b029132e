package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/carewh-lab/carewh/internal/core/config"
	"github.com/carewh-lab/carewh/internal/orchestrator"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the store wiring shared by all commands.
type RootOptions struct {
	ConfigPath string
	Format     string
	Verbose    bool

	// Connect and Migrate are replaced in tests.
	Connect ConnectFunc
	Migrate MigrateFunc
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		Connect: connectStores,
		Migrate: migrateWarehouse,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "carewh",
		Short: "Incremental hospital OLTP to star-schema warehouse loader",
		Long: `carewh copies changes from the hospital MySQL database into the
PostgreSQL star schema. Every load unit keeps its own watermark, so a run
only reads rows created or updated since the last successful load.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := orchestrator.ParseFormat(opts.Format); err != nil {
				return WrapExitError(orchestrator.ExitCommandError, "invalid --format", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file (defaults and CAREWH_* env apply without one)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newScheduleCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

// loadConfig reads the configuration and installs the default logger.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(orchestrator.ExitCommandError, "invalid configuration", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.Log, o.Verbose)
	return cfg, nil
}

func setupLogging(w io.Writer, cfg config.LogConfig, verbose bool) {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

func (o *RootOptions) format() orchestrator.Format {
	f, err := orchestrator.ParseFormat(o.Format)
	if err != nil {
		return orchestrator.FormatText
	}
	return f
}

// open loads the configuration and connects both stores.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*config.Config, *Stores, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	stores, err := o.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, connectError(err)
	}
	return cfg, stores, nil
}

func connectError(err error) error {
	return WrapExitError(orchestrator.ExitFailed, "failed to connect", err)
}

func newOrchestrator(cfg *config.Config, stores *Stores) *orchestrator.Orchestrator {
	return orchestrator.New(stores.Source, stores.Warehouse,
		orchestrator.WithRunLock(cfg.Engine.RunLock),
		orchestrator.WithVerification(cfg.Engine.Verify),
	)
}
