package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/carewh-lab/carewh/internal/orchestrator"
	"github.com/carewh-lab/carewh/internal/scheduler"
	"github.com/carewh-lab/carewh/internal/server"
	"github.com/spf13/cobra"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one incremental load",
		Long: `Run one incremental load: dimensions, then facts, late billing,
bridges and verification. The report is written to stdout.

Exit codes:
  0  every stage committed
  1  failed before any stage committed
  2  failed after at least one stage committed
  3  invalid command or configuration`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			stores, err := opts.Connect(ctx, cfg)
			if err != nil {
				report := orchestrator.InitFailure(err)
				if werr := orchestrator.WriteReport(cmd.OutOrStdout(), opts.format(), report); werr != nil {
					slog.Warn("[CLI] Failed to write report", "error", werr)
				}
				return connectError(err)
			}
			defer stores.Close()

			report, runErr := newOrchestrator(cfg, stores).Run(ctx)
			if err := orchestrator.WriteReport(cmd.OutOrStdout(), opts.format(), report); err != nil {
				return WrapExitError(orchestrator.ExitFailed, "failed to write report", err)
			}
			if code := report.ExitCode(); code != orchestrator.ExitSuccess {
				return WrapExitError(code, "load run failed", runErr)
			}
			return nil
		},
	}
}

func newVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Print warehouse row counts and load watermarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg, stores, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stores.Close()

			v, err := newOrchestrator(cfg, stores).Verify(ctx)
			if err != nil {
				return WrapExitError(orchestrator.ExitFailed, "verification failed", err)
			}
			if err := orchestrator.WriteVerification(cmd.OutOrStdout(), opts.format(), v); err != nil {
				return WrapExitError(orchestrator.ExitFailed, "failed to write verification", err)
			}
			return nil
		},
	}
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	var (
		statusOnly bool
		down       int
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the warehouse schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if down < 0 {
				return WrapExitError(orchestrator.ExitCommandError, "invalid --down", fmt.Errorf("must be >= 0, got %d", down))
			}
			st, err := opts.Migrate(cmd.Context(), cfg, MigrateRequest{StatusOnly: statusOnly, Down: down})
			if err != nil {
				return WrapExitError(orchestrator.ExitFailed, "migration failed", err)
			}
			if err := orchestrator.WriteSchemaStatus(cmd.OutOrStdout(), opts.format(), st); err != nil {
				return WrapExitError(orchestrator.ExitFailed, "failed to write schema status", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print the schema version without migrating")
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead of applying")
	cmd.MarkFlagsMutuallyExclusive("status", "down")
	return cmd
}

func newScheduleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run a load every schedule.interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg, stores, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stores.Close()

			s, err := scheduler.New(cfg.Schedule.IntervalDuration(), orchestrator.NewCoordinator(newOrchestrator(cfg, stores)))
			if err != nil {
				return WrapExitError(orchestrator.ExitCommandError, "invalid schedule", err)
			}
			return s.Start(ctx)
		},
	}
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops HTTP API, and run the scheduler when schedule.enabled is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg, stores, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer stores.Close()

			coord := orchestrator.NewCoordinator(newOrchestrator(cfg, stores))

			if cfg.Schedule.Enabled {
				s, err := scheduler.New(cfg.Schedule.IntervalDuration(), coord)
				if err != nil {
					return WrapExitError(orchestrator.ExitCommandError, "invalid schedule", err)
				}
				go func() {
					if err := s.Start(ctx); err != nil {
						slog.Error("[CLI] Scheduler stopped with error", "error", err)
					}
				}()
			} else {
				slog.Info("[CLI] Scheduler disabled by config")
			}

			srv := server.New(cfg.Server.Addr(), coord, cfg.Server.Mode)
			if err := srv.Run(ctx); err != nil {
				return WrapExitError(orchestrator.ExitFailed, "server stopped", err)
			}
			slog.Info("[CLI] Shutdown complete")
			return nil
		},
	}
}
