// Package run is the control surface of the engine: start a run, get its
// status, collect its report. Each run executes on its own goroutine
// against a fresh orchestrator under the configured overall deadline.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/orchestrator"
	"github.com/BaSui01/swarmflow/types"
)

// Request describes one analysis run.
type Request struct {
	Subject         string            `json:"subject"`
	Comparisons     []string          `json:"comparisons,omitempty"`
	FocusDimensions []types.Dimension `json:"focus_dimensions,omitempty"`
	Format          string            `json:"format,omitempty"`
}

// Status is a point-in-time view of a run.
type Status struct {
	ID         string               `json:"id"`
	State      types.RunStatus      `json:"state"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at,omitempty"`
	Error      string               `json:"error,omitempty"`
	Report     *orchestrator.Report `json:"report,omitempty"`
}

// Factory builds a fresh orchestrator for one run. The request is passed
// so the builder can tailor workers or providers to the subject.
type Factory func(req Request) (*orchestrator.Orchestrator, error)

type state struct {
	status Status
	done   chan struct{}
}

// Runner tracks runs by id. Safe for concurrent use.
type Runner struct {
	mu        sync.RWMutex
	runs      map[string]*state
	build     Factory
	timeout   time.Duration
	collector *metrics.Collector
	logger    *zap.Logger
}

func NewRunner(build Factory, timeout time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	return &Runner{
		runs:    make(map[string]*state),
		build:   build,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "runner")),
	}
}

// WithCollector installs the metrics collector.
func (r *Runner) WithCollector(c *metrics.Collector) *Runner {
	r.collector = c
	return r
}

// StartRun validates the request, registers the run and returns its id
// immediately. The run itself executes in the background under the
// configured overall deadline, detached from the caller's context.
func (r *Runner) StartRun(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Subject) == "" {
		return "", fmt.Errorf("subject is required")
	}
	orch, err := r.build(req)
	if err != nil {
		return "", fmt.Errorf("build orchestrator: %w", err)
	}

	id := types.NewID()
	st := &state{
		status: Status{ID: id, State: types.RunQueued},
		done:   make(chan struct{}),
	}
	r.mu.Lock()
	r.runs[id] = st
	r.mu.Unlock()

	if r.collector != nil {
		r.collector.RunStarted()
	}
	r.logger.Info("run queued",
		zap.String("run_id", id),
		zap.String("subject", req.Subject),
	)

	go r.execute(id, st, orch, req)
	return id, nil
}

func (r *Runner) execute(id string, st *state, orch *orchestrator.Orchestrator, req Request) {
	defer close(st.done)

	started := time.Now()
	r.update(st, func(s *Status) {
		s.State = types.RunRunning
		s.StartedAt = started
	})

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	report, err := orch.Execute(ctx, req.Subject, req.Comparisons)
	finished := time.Now()

	var terminal types.RunStatus
	switch {
	case err == nil:
		terminal = types.RunSucceeded
	case errors.Is(err, context.DeadlineExceeded):
		terminal = types.RunTimedOut
	default:
		terminal = types.RunFailed
	}

	r.update(st, func(s *Status) {
		s.State = terminal
		s.FinishedAt = finished
		if err != nil {
			s.Error = err.Error()
		}
		if report != nil {
			s.Report = focusReport(report, req.FocusDimensions)
		}
	})

	if r.collector != nil {
		r.collector.RunFinished(string(terminal), finished.Sub(started))
	}
	r.logger.Info("run finished",
		zap.String("run_id", id),
		zap.String("state", string(terminal)),
		zap.Duration("duration", finished.Sub(started)),
		zap.Error(err),
	)
}

func (r *Runner) update(st *state, fn func(*Status)) {
	r.mu.Lock()
	fn(&st.status)
	r.mu.Unlock()
}

// Status returns the current view of a run.
func (r *Runner) Status(id string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.runs[id]
	if !ok {
		return Status{}, false
	}
	return st.status, true
}

// Wait blocks until the run reaches a terminal state or the context ends.
func (r *Runner) Wait(ctx context.Context, id string) (Status, error) {
	r.mu.RLock()
	st, ok := r.runs[id]
	r.mu.RUnlock()
	if !ok {
		return Status{}, fmt.Errorf("unknown run: %s", id)
	}
	select {
	case <-st.done:
		status, _ := r.Status(id)
		return status, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// focusReport trims the report to the requested dimensions. An empty focus
// keeps everything.
func focusReport(report *orchestrator.Report, focus []types.Dimension) *orchestrator.Report {
	if len(focus) == 0 {
		return report
	}
	keep := make(map[types.Dimension]bool, len(focus))
	for _, d := range focus {
		keep[d] = true
	}
	trimmed := *report
	trimmed.Signals = make(map[types.Dimension][]types.Signal, len(focus))
	for dim, group := range report.Signals {
		if keep[dim] {
			trimmed.Signals[dim] = group
		}
	}
	return &trimmed
}
