// Package orchestrator drives one load run through its fixed stage sequence
// and produces the run report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/storage"
	"github.com/carewh-lab/carewh/internal/load"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs INIT, then the load phases in order, then VERIFY.
// Every stage commits on its own; the first failure moves the run to FAILED
// and later stages are not attempted.
type Orchestrator struct {
	source    storage.Source
	warehouse storage.Warehouse
	loader    *load.Loader
	runLock   bool
	verify    bool
	now       func() time.Time
	newRunID  func() string
}

type Option func(*Orchestrator)

// WithClock sets the clock used for run dates and stage timings.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRunLock takes the warehouse run lock for the duration of each run.
func WithRunLock(enabled bool) Option {
	return func(o *Orchestrator) {
		o.runLock = enabled
	}
}

// WithVerification attaches table counts and watermarks to every report.
func WithVerification(enabled bool) Option {
	return func(o *Orchestrator) {
		o.verify = enabled
	}
}

func WithRunID(newRunID func() string) Option {
	return func(o *Orchestrator) {
		o.newRunID = newRunID
	}
}

func New(src storage.Source, wh storage.Warehouse, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:    src,
		warehouse: wh,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.loader = load.NewLoader(src, wh, load.WithClock(o.now))
	return o
}

type phase struct {
	state  State
	stages []load.Stage
}

func (o *Orchestrator) phases() []phase {
	return []phase{
		{StateLoadDimensions, o.loader.DimensionStages()},
		{StateLoadFacts, []load.Stage{o.loader.FactStage()}},
		{StateReconcileLate, []load.Stage{o.loader.ReconcileStage()}},
		{StateLoadBridges, o.loader.BridgeStages()},
	}
}

// Run executes one run. The report is always returned; err is the failure
// that moved the run to FAILED.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     o.newRunID(),
		StartedAt: o.now().UTC(),
		State:     StateInit,
	}
	log := slog.With("run_id", report.RunID)
	log.Info("[Orchestrator] Run started")

	release, err := o.init(ctx)
	if err != nil {
		return o.fail(report, StateInit, "", err), err
	}
	if release != nil {
		defer func() {
			if err := release(); err != nil {
				log.Warn("[Orchestrator] Failed to release run lock", "error", err)
			}
		}()
	}

	for _, p := range o.phases() {
		report.State = p.state
		for _, stage := range p.stages {
			if err := ctx.Err(); err != nil {
				return o.fail(report, p.state, stage.Unit, err), err
			}

			start := o.now()
			res, err := stage.Run(ctx)
			if err != nil {
				log.Error("[Orchestrator] Stage failed",
					"state", p.state,
					"load_unit", stage.Unit,
					"error_kind", etlerr.KindOf(err),
					"error", err)
				return o.fail(report, p.state, stage.Unit, err), err
			}

			sr := StageReport{
				State:     p.state,
				Unit:      res.Unit,
				Selected:  res.Selected,
				Inserted:  res.Inserted,
				Updated:   res.Updated,
				Skipped:   res.Skipped,
				Watermark: res.Watermark.LastLoad,
				Duration:  o.now().Sub(start),
			}
			report.Stages = append(report.Stages, sr)
			report.CommittedStages++

			log.Info("[Orchestrator] Stage committed",
				"state", p.state,
				"load_unit", sr.Unit,
				"selected", sr.Selected,
				"inserted", sr.Inserted,
				"updated", sr.Updated,
				"skipped", sr.Skipped,
				"watermark", sr.Watermark,
				"duration", sr.Duration)
		}
	}

	if o.verify {
		report.State = StateVerify
		v, err := o.Verify(ctx)
		if err != nil {
			return o.fail(report, StateVerify, "", err), err
		}
		report.Verification = v
	}

	report.State = StateDone
	report.FinishedAt = o.now().UTC()
	log.Info("[Orchestrator] Run finished",
		"state", report.State,
		"committed_stages", report.CommittedStages,
		"duration", report.Duration())
	return report, nil
}

// init checks both stores before any write and takes the run lock.
func (o *Orchestrator) init(ctx context.Context) (func() error, error) {
	if err := o.source.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping source: %w", err)
	}
	if err := o.warehouse.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	if err := o.source.ValidateSchema(ctx); err != nil {
		return nil, fmt.Errorf("validate source schema: %w", err)
	}
	if err := o.warehouse.ValidateSchema(ctx); err != nil {
		return nil, fmt.Errorf("validate warehouse schema: %w", err)
	}
	if !o.runLock {
		return nil, nil
	}
	release, err := o.warehouse.AcquireRunLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	return release, nil
}

// InitFailure is the report of a run that never reached its stores, such
// as when a connection cannot be opened before the orchestrator exists.
func InitFailure(err error) *Report {
	o := &Orchestrator{now: time.Now, newRunID: uuid.NewString}
	report := &Report{
		RunID:     o.newRunID(),
		StartedAt: o.now().UTC(),
		State:     StateInit,
	}
	return o.fail(report, StateInit, "", err)
}

func (o *Orchestrator) fail(report *Report, state State, unit string, err error) *Report {
	report.FailedState = state
	report.FailedStage = unit
	if report.FailedStage == "" {
		report.FailedStage = string(state)
	}
	report.State = StateFailed
	report.ErrorKind = etlerr.KindOf(err)
	report.Error = err.Error()
	report.FinishedAt = o.now().UTC()

	level := slog.LevelError
	if errors.Is(err, etlerr.ErrRunInProgress) {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "[Orchestrator] Run failed",
		"run_id", report.RunID,
		"failed_stage", report.FailedStage,
		"error_kind", report.ErrorKind,
		"committed_stages", report.CommittedStages,
		"exit_code", report.ExitCode())
	return report
}

// Verify counts every warehouse table and lists the stored watermarks.
// It only reads.
func (o *Orchestrator) Verify(ctx context.Context) (*Verification, error) {
	var v Verification
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := o.warehouse.TableCounts(gctx)
		if err != nil {
			return fmt.Errorf("count tables: %w", err)
		}
		v.Tables = counts
		return nil
	})
	g.Go(func() error {
		marks, err := o.warehouse.Watermarks(gctx)
		if err != nil {
			return fmt.Errorf("list watermarks: %w", err)
		}
		v.Watermarks = marks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Ping checks both stores.
func (o *Orchestrator) Ping(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.source.Ping(gctx) })
	g.Go(func() error { return o.warehouse.Ping(gctx) })
	return g.Wait()
}
