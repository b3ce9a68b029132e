package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Coordinator collapses concurrent run triggers within one process into a
// single run and remembers the most recent report.
type Coordinator struct {
	orch  *Orchestrator
	group singleflight.Group

	mu   sync.RWMutex
	last *Report
}

func NewCoordinator(orch *Orchestrator) *Coordinator {
	return &Coordinator{orch: orch}
}

type runResult struct {
	report *Report
	err    error
}

// Run starts a run, or joins the one in flight. The run is not canceled
// with ctx.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	v, _, shared := c.group.Do("run", func() (interface{}, error) {
		report, err := c.orch.Run(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.last = report
		c.mu.Unlock()
		return runResult{report: report, err: err}, nil
	})
	if shared {
		slog.Debug("[Coordinator] Joined run in flight")
	}
	res := v.(runResult)
	return res.report, res.err
}

// Last returns the report of the most recent run, or nil.
func (c *Coordinator) Last() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Coordinator) Verify(ctx context.Context) (*Verification, error) {
	return c.orch.Verify(ctx)
}

func (c *Coordinator) Ping(ctx context.Context) error {
	return c.orch.Ping(ctx)
}
