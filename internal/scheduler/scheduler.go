package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carewh-lab/carewh/internal/orchestrator"
	"github.com/go-co-op/gocron"
)

// Runner starts one load run.
type Runner interface {
	Run(ctx context.Context) (*orchestrator.Report, error)
}

// Scheduler triggers a run every interval until its context is canceled.
// A tick never overlaps a run still in progress; a failed run is logged and
// the next tick retries from the committed watermarks.
type Scheduler struct {
	interval time.Duration
	runner   Runner
}

func New(interval time.Duration, runner Runner) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule interval must be > 0, got %s", interval)
	}
	return &Scheduler{interval: interval, runner: runner}, nil
}

// Start runs the first load immediately and blocks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	if _, err := cron.Every(s.interval).Do(s.tick, ctx); err != nil {
		return fmt.Errorf("schedule load run: %w", err)
	}

	slog.Info("[Scheduler] Starting load scheduler", "interval", s.interval)
	cron.StartAsync()

	<-ctx.Done()
	slog.Info("[Scheduler] Stopping (context cancelled)")
	cron.Stop()
	slog.Info("[Scheduler] Stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.runner.Run(ctx)
	if err != nil {
		attrs := []any{"error", err}
		if report != nil {
			attrs = append(attrs,
				"run_id", report.RunID,
				"failed_stage", report.FailedStage,
				"committed_stages", report.CommittedStages,
				"exit_code", report.ExitCode())
		}
		slog.Error("[Scheduler] Scheduled run failed", attrs...)
		return
	}
	slog.Info("[Scheduler] Scheduled run completed",
		"run_id", report.RunID,
		"stages", report.CommittedStages,
		"duration", report.Duration())
}
