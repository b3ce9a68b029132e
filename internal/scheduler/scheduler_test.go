package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carewh-lab/carewh/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls atomic.Int32
	ran   chan struct{}
	err   error
}

func newFakeRunner(err error) *fakeRunner {
	return &fakeRunner{ran: make(chan struct{}, 16), err: err}
}

func (f *fakeRunner) Run(ctx context.Context) (*orchestrator.Report, error) {
	f.calls.Add(1)
	select {
	case f.ran <- struct{}{}:
	default:
	}
	report := &orchestrator.Report{RunID: "run", State: orchestrator.StateDone}
	if f.err != nil {
		report.State = orchestrator.StateFailed
		report.FailedStage = "dim_patient"
	}
	return report, f.err
}

func waitForRun(t *testing.T, f *fakeRunner) {
	t.Helper()
	select {
	case <-f.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not trigger a run")
	}
}

func TestNew_RejectsNonPositiveInterval(t *testing.T) {
	_, err := New(0, newFakeRunner(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be > 0")
}

func TestScheduler_RunsUntilCanceled(t *testing.T) {
	runner := newFakeRunner(nil)
	s, err := New(20*time.Millisecond, runner)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	waitForRun(t, runner)
	waitForRun(t, runner)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, runner.calls.Load(), int32(2))
}

func TestScheduler_FailedRunIsRetriedNextTick(t *testing.T) {
	runner := newFakeRunner(errors.New("source unreachable"))
	s, err := New(20*time.Millisecond, runner)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	waitForRun(t, runner)
	waitForRun(t, runner)
	cancel()
	require.NoError(t, <-done)
}
