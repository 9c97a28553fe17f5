// Package pool bounds how many worker tasks run at once and enforces a
// per-task deadline. Used by the orchestrator for collection and
// validation fan-out.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTaskTimeout marks a task that missed its deadline. The caller
	// discards whatever the task produced.
	ErrTaskTimeout = errors.New("task deadline exceeded")
	// ErrTaskPanicked marks a task that panicked; the panic is contained.
	ErrTaskPanicked = errors.New("task panicked")
)

// Task is one unit of work. It must honor ctx cancellation.
type Task func(ctx context.Context) error

// Pool is a semaphore-bounded executor. The zero value is unusable; use New.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	logger *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	active    atomic.Int32
}

func New(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		logger: logger.With(zap.String("component", "worker_pool")),
	}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int { return p.size }

// Run blocks until a slot is free, then executes the task under the given
// timeout. The deadline is enforced even against a task that ignores its
// context: Run returns ErrTaskTimeout and leaves the stray goroutine to
// finish into a cancelled context.
func (p *Pool) Run(ctx context.Context, timeout time.Duration, task Task) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.submitted.Add(1)
	p.active.Add(1)
	defer p.active.Add(-1)

	tctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- p.execute(tctx, task)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.failed.Add(1)
			return err
		}
		p.completed.Add(1)
		return nil
	case <-tctx.Done():
		p.timedOut.Add(1)
		p.logger.Warn("task deadline exceeded", zap.Duration("timeout", timeout))
		return fmt.Errorf("%w after %s", ErrTaskTimeout, timeout)
	}
}

func (p *Pool) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return task(ctx)
}

// Stats is a point-in-time snapshot of the pool counters.
type Stats struct {
	Size      int   `json:"size"`
	Active    int   `json:"active"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Size:      p.size,
		Active:    int(p.active.Load()),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		TimedOut:  p.timedOut.Load(),
	}
}
