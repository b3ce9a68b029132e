package orchestrator

import (
	"time"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/core/storage"
	"github.com/carewh-lab/carewh/internal/core/watermark"
)

// State is a step of the run state machine.
type State string

const (
	StateInit           State = "INIT"
	StateLoadDimensions State = "LOAD_DIMENSIONS"
	StateLoadFacts      State = "LOAD_FACTS"
	StateReconcileLate  State = "RECONCILE_LATE_ARRIVALS"
	StateLoadBridges    State = "LOAD_BRIDGES"
	StateVerify         State = "VERIFY"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// Process exit codes of a run.
const (
	ExitSuccess      = 0
	ExitFailed       = 1 // nothing committed
	ExitPartial      = 2 // at least one stage committed
	ExitCommandError = 3
)

// StageReport is one committed stage.
type StageReport struct {
	State     State         `json:"state" yaml:"state"`
	Unit      string        `json:"load_unit" yaml:"load_unit"`
	Selected  int64         `json:"selected" yaml:"selected"`
	Inserted  int64         `json:"inserted" yaml:"inserted"`
	Updated   int64         `json:"updated" yaml:"updated"`
	Skipped   int64         `json:"skipped" yaml:"skipped"`
	Watermark time.Time     `json:"watermark" yaml:"watermark"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration"`
}

// Verification is the read-only post-run summary of the warehouse.
type Verification struct {
	Tables     []storage.TableCount  `json:"tables" yaml:"tables"`
	Watermarks []watermark.Watermark `json:"watermarks" yaml:"watermarks"`
}

// Report describes one run. A failed run lists only the stages that committed.
type Report struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time     `json:"finished_at" yaml:"finished_at"`
	State           State         `json:"state" yaml:"state"`
	Stages          []StageReport `json:"stages" yaml:"stages"`
	CommittedStages int           `json:"committed_stages" yaml:"committed_stages"`
	FailedState     State         `json:"failed_state,omitempty" yaml:"failed_state,omitempty"`
	FailedStage     string        `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	ErrorKind       etlerr.Kind   `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
	Verification    *Verification `json:"verification,omitempty" yaml:"verification,omitempty"`
}

// ExitCode maps the final state onto the process exit code.
func (r *Report) ExitCode() int {
	switch {
	case r.State == StateDone:
		return ExitSuccess
	case r.CommittedStages == 0:
		return ExitFailed
	default:
		return ExitPartial
	}
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
