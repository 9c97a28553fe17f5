// Package orchestrator drives an analysis run through the four phases:
// collecting, validating, debating, synthesizing. It owns the only write
// path to the board; workers, the handoff router and the debate engine all
// act through it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/board"
	"github.com/BaSui01/swarmflow/debate"
	"github.com/BaSui01/swarmflow/handoff"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/internal/pool"
	"github.com/BaSui01/swarmflow/types"
	"github.com/BaSui01/swarmflow/worker"
)

// ReportThreshold is the minimum strength a signal needs to appear in the
// synthesized report. Weaker signals stay on the board but are not shown.
const ReportThreshold = 0.3

// Options tunes one orchestrator. Zero values fall back to the defaults
// below.
type Options struct {
	MaxConcurrentWorkers int
	PerWorkerTimeout     time.Duration
	SignalFloor          int

	ConfidenceWeight   float64
	StrengthWeight     float64
	MinValidationScore float64
	VerificationBoost  float64

	Debate debate.Options
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrentWorkers <= 0 {
		o.MaxConcurrentWorkers = 4
	}
	if o.PerWorkerTimeout <= 0 {
		o.PerWorkerTimeout = 2 * time.Minute
	}
	if o.SignalFloor < 0 {
		o.SignalFloor = 0
	}
	if o.ConfidenceWeight == 0 && o.StrengthWeight == 0 {
		o.ConfidenceWeight = 0.70
		o.StrengthWeight = 0.30
	}
	if o.MinValidationScore <= 0 {
		o.MinValidationScore = 0.75
	}
	if o.VerificationBoost <= 0 {
		o.VerificationBoost = 0.2
	}
}

// Orchestrator runs one subject at a time against one board.
type Orchestrator struct {
	board       *board.Board
	registry    *worker.Registry
	router      *handoff.Router
	engine      *debate.Engine
	attacker    debate.Debater
	defender    debate.Debater
	adjudicator debate.Adjudicator
	reporter    Reporter
	pool        *pool.Pool
	collector   *metrics.Collector
	opts        Options
	logger      *zap.Logger

	mu         sync.Mutex
	incomplete []types.Dimension
}

// New wires an orchestrator. Registry and board are required; reporter,
// debate collaborators and the metrics collector may be nil, disabling the
// corresponding side effects.
func New(b *board.Board, registry *worker.Registry, router *handoff.Router, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	if router == nil {
		router = handoff.NewRouter(nil, handoff.Options{}, logger)
	}
	return &Orchestrator{
		board:    b,
		registry: registry,
		router:   router,
		engine:   debate.NewEngine(opts.Debate, logger),
		pool:     pool.New(opts.MaxConcurrentWorkers, logger),
		opts:     opts,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// WithDebaters installs the adversarial pair and the adjudicator. Without
// them the debating phase is a no-op transition.
func (o *Orchestrator) WithDebaters(attacker, defender debate.Debater, judge debate.Adjudicator) *Orchestrator {
	o.attacker = attacker
	o.defender = defender
	o.adjudicator = judge
	return o
}

// WithReporter installs the external report renderer.
func (o *Orchestrator) WithReporter(r Reporter) *Orchestrator {
	o.reporter = r
	return o
}

// WithCollector installs the metrics collector.
func (o *Orchestrator) WithCollector(c *metrics.Collector) *Orchestrator {
	o.collector = c
	return o
}

// Execute runs the full four-phase pipeline and returns the synthesized
// report. Task-scoped failures degrade locally; a board invariant
// violation or context cancellation aborts the run.
func (o *Orchestrator) Execute(ctx context.Context, subject string, comparisons []string) (*Report, error) {
	phases := []struct {
		phase types.Phase
		run   func(context.Context, string, []string) error
	}{
		{types.PhaseCollecting, o.runCollection},
		{types.PhaseValidating, o.runValidation},
		{types.PhaseDebating, o.runDebate},
	}

	for _, p := range phases {
		if err := o.enterPhase(p.phase); err != nil {
			return nil, o.fail(err)
		}
		started := time.Now()
		if err := p.run(ctx, subject, comparisons); err != nil {
			return nil, o.fail(err)
		}
		o.observePhase(p.phase, started)
	}

	if err := o.enterPhase(types.PhaseSynthesizing); err != nil {
		return nil, o.fail(err)
	}
	started := time.Now()
	report, err := o.runSynthesis(ctx, subject, comparisons)
	if err != nil {
		return nil, o.fail(err)
	}
	o.observePhase(types.PhaseSynthesizing, started)

	if err := o.board.SetPhase(types.PhaseDone); err != nil {
		return nil, o.fail(err)
	}
	return report, nil
}

// enterPhase advances the board's phase. The first phase is the board's
// initial state, so entering it is a no-op.
func (o *Orchestrator) enterPhase(phase types.Phase) error {
	if o.board.Phase() == phase {
		return nil
	}
	if err := o.board.SetPhase(phase); err != nil {
		return err
	}
	o.router.ResetPhase()
	return nil
}

func (o *Orchestrator) fail(cause error) error {
	if err := o.board.SetPhase(types.PhaseFailed); err != nil {
		o.logger.Error("could not mark board failed", zap.Error(err))
	}
	o.logger.Error("run failed", zap.Error(cause))
	return cause
}

func (o *Orchestrator) observePhase(phase types.Phase, started time.Time) {
	if o.collector == nil {
		return
	}
	o.collector.ObservePhase(string(phase), time.Since(started))
	o.collector.SetSignalCount(o.board.Count())
	unresolved := len(o.board.UnresolvedConflicts())
	o.collector.SetConflictCounts(unresolved, len(o.board.Conflicts())-unresolved)
}

// runCollection dispatches one task per collection worker through the
// bounded pool. Each task gets one retry; a second failure marks its
// dimension incomplete and the phase moves on. If the board ends up under
// the signal floor the whole sweep repeats once with a broadened scope.
func (o *Orchestrator) runCollection(ctx context.Context, subject string, comparisons []string) error {
	if err := o.collectOnce(ctx, subject, comparisons, false); err != nil {
		return err
	}
	if o.opts.SignalFloor > 0 && o.board.Count() < o.opts.SignalFloor {
		o.logger.Info("signal count under floor, re-collecting with broadened scope",
			zap.Int("signals", o.board.Count()),
			zap.Int("floor", o.opts.SignalFloor),
		)
		return o.collectOnce(ctx, subject, comparisons, true)
	}
	return nil
}

func (o *Orchestrator) collectOnce(ctx context.Context, subject string, comparisons []string, broadened bool) error {
	workers := o.registry.CollectionWorkers()
	if len(workers) == 0 {
		return types.NewError(types.ErrCollectionFailure, "no collection workers registered")
	}

	type settled struct {
		role    types.Role
		dim     types.Dimension
		contrib *worker.Contribution
		err     error
	}
	results := make(chan settled, len(workers))

	var wg sync.WaitGroup
	for _, w := range workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			role := w.Role()
			dim := role.PrimaryDimension()
			task := worker.Task{
				Subject:     subject,
				Comparisons: comparisons,
				Phase:       types.PhaseCollecting,
				Dimension:   dim,
				Broadened:   broadened,
			}
			contrib, err := o.executeOnce(ctx, w, task)
			if err != nil && ctx.Err() == nil {
				o.logger.Warn("collection task failed, retrying once",
					zap.String("role", string(role)),
					zap.Error(err),
				)
				contrib, err = o.executeOnce(ctx, w, task)
			}
			results <- settled{role: role, dim: dim, contrib: contrib, err: err}
		}()
	}
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			o.markIncomplete(res.dim)
			o.logger.Warn("dimension marked incomplete",
				zap.String("dimension", string(res.dim)),
				zap.String("role", string(res.role)),
				zap.Error(res.err),
			)
			continue
		}
		if err := o.apply(res.contrib, res.role); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// executeOnce runs a worker task through the pool under the per-worker
// timeout. The result channel keeps a late-finishing task from racing the
// timeout path; a timed-out task's output is never read.
func (o *Orchestrator) executeOnce(ctx context.Context, w worker.Worker, task worker.Task) (*worker.Contribution, error) {
	resCh := make(chan *worker.Contribution, 1)
	err := o.pool.Run(ctx, o.opts.PerWorkerTimeout, func(tctx context.Context) error {
		contrib, err := w.Execute(tctx, task)
		if err != nil {
			return err
		}
		resCh <- contrib
		return nil
	})
	if err != nil {
		if errors.Is(err, pool.ErrTaskTimeout) {
			return nil, types.NewError(types.ErrCollectionTimeout,
				fmt.Sprintf("worker %s missed its deadline", w.Role())).WithRetryable(true).WithCause(err)
		}
		return nil, err
	}
	return <-resCh, nil
}

// apply replays a contribution through the board's operation set. Invariant
// violations abort the run; everything else degrades with a log line.
func (o *Orchestrator) apply(contrib *worker.Contribution, role types.Role) error {
	if contrib.Empty() {
		return nil
	}
	for _, sig := range contrib.Signals {
		if sig.SourceWorker == "" {
			sig.SourceWorker = role
		}
		if _, err := o.board.Add(sig); err != nil {
			return err
		}
		o.countBoardOp("add")
	}
	for _, r := range contrib.Reinforcements {
		if err := o.board.Reinforce(r.SignalID, role); err != nil {
			o.logger.Warn("reinforcement dropped", zap.String("signal_id", r.SignalID), zap.Error(err))
			continue
		}
		o.countBoardOp("reinforce")
	}
	for _, ch := range contrib.Challenges {
		if _, err := o.board.Challenge(ch.SignalID, role, ch.Counter); err != nil {
			if types.GetErrorCode(err) == types.ErrBoardInvariantViolated {
				return err
			}
			o.logger.Warn("challenge dropped", zap.String("signal_id", ch.SignalID), zap.Error(err))
			continue
		}
		o.countBoardOp("challenge")
	}
	for _, req := range contrib.Handoffs {
		req.FromWorker = role
		queued, err := o.router.Submit(req)
		if err != nil {
			o.logger.Warn("handoff rejected",
				zap.String("from", string(role)),
				zap.String("code", string(types.GetErrorCode(err))),
				zap.Error(err),
			)
			continue
		}
		if o.collector != nil {
			o.collector.HandoffSubmitted(string(queued.Urgency))
		}
	}
	return nil
}

func (o *Orchestrator) countBoardOp(op string) {
	if o.collector != nil {
		o.collector.BoardOp(op)
	}
}

func (o *Orchestrator) markIncomplete(dim types.Dimension) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, d := range o.incomplete {
		if d == dim {
			return
		}
	}
	o.incomplete = append(o.incomplete, dim)
}

// IncompleteDimensions lists the dimensions whose collection degraded.
func (o *Orchestrator) IncompleteDimensions() []types.Dimension {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.Dimension, len(o.incomplete))
	copy(out, o.incomplete)
	return out
}
