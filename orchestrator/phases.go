package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/board"
	"github.com/BaSui01/swarmflow/types"
	"github.com/BaSui01/swarmflow/worker"
)

// runValidation drains the handoff queues, runs every role's
// cross-validation pass against one board snapshot, scores the signals and
// ends with a decay pass.
func (o *Orchestrator) runValidation(ctx context.Context, subject string, comparisons []string) error {
	var (
		fatalMu sync.Mutex
		fatal   error
	)
	setFatal := func(err error) {
		fatalMu.Lock()
		if fatal == nil {
			fatal = err
		}
		fatalMu.Unlock()
	}

	responses := o.router.Drain(ctx, func(hctx context.Context, req types.HandoffRequest) ([]types.Signal, error) {
		w, ok := o.registry.Get(req.ToWorker)
		if !ok {
			return nil, types.NewError(types.ErrHandoffUnroutable,
				"no worker registered for role "+string(req.ToWorker))
		}
		task := worker.Task{
			Subject:     subject,
			Comparisons: comparisons,
			Phase:       types.PhaseValidating,
			Snapshot:    o.snapshot(),
			Handoff:     &req,
		}
		contrib, err := o.executeOnce(hctx, w, task)
		if err != nil {
			return nil, err
		}
		// Relayed sub-questions sit one hop deeper than their origin.
		for i := range contrib.Handoffs {
			contrib.Handoffs[i].Depth = req.Depth + 1
		}
		if err := o.apply(contrib, req.ToWorker); err != nil {
			setFatal(err)
			return nil, err
		}
		return contrib.Signals, nil
	})
	if fatal != nil {
		return fatal
	}
	o.settleHandoffMetrics(responses)

	if err := o.crossValidate(ctx, subject, comparisons); err != nil {
		return err
	}
	if err := o.scoreSignals(); err != nil {
		return err
	}
	o.board.DetectConflicts()
	decayed := o.board.DecayUnreferenced()
	o.countBoardOp("decay")
	o.logger.Info("validation finished",
		zap.Int("signals", o.board.Count()),
		zap.Int("decayed", decayed),
	)
	return ctx.Err()
}

func (o *Orchestrator) settleHandoffMetrics(responses []types.HandoffResponse) {
	if o.collector == nil {
		return
	}
	for _, resp := range responses {
		switch {
		case resp.TimedOut:
			o.collector.HandoffSettled("timed_out")
		case resp.Unanswered:
			o.collector.HandoffSettled("unanswered")
		default:
			o.collector.HandoffSettled("answered")
		}
	}
	for urgency, depth := range o.router.QueueDepths() {
		o.collector.SetHandoffQueueDepth(string(urgency), depth)
	}
}

// crossValidate runs every registered role concurrently against the same
// snapshot. Failures degrade to a log line; only invariant violations
// escalate.
func (o *Orchestrator) crossValidate(ctx context.Context, subject string, comparisons []string) error {
	snapshot := o.snapshot()
	roles := o.registry.Roles()

	type settled struct {
		role    types.Role
		contrib *worker.Contribution
		err     error
	}
	results := make(chan settled, len(roles))

	var wg sync.WaitGroup
	for _, role := range roles {
		role := role
		w, _ := o.registry.Get(role)
		wg.Add(1)
		go func() {
			defer wg.Done()
			contrib, err := o.executeOnce(ctx, w, worker.Task{
				Subject:     subject,
				Comparisons: comparisons,
				Phase:       types.PhaseValidating,
				Snapshot:    snapshot,
			})
			results <- settled{role: role, contrib: contrib, err: err}
		}()
	}
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			o.logger.Warn("cross-validation task failed",
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

func (o *Orchestrator) snapshot() worker.Snapshot {
	return worker.Snapshot{
		Phase:     o.board.Phase(),
		Signals:   o.board.Query(board.Filter{}),
		Conflicts: o.board.Conflicts(),
		ByDim:     o.board.GroupByDimension(),
	}
}

// scoreSignals marks signals verified when their weighted score clears the
// minimum, applying the fixed strength boost once per signal.
func (o *Orchestrator) scoreSignals() error {
	verified := 0
	for _, sig := range o.board.Query(board.Filter{}) {
		if sig.Verified {
			continue
		}
		score := sig.Confidence*o.opts.ConfidenceWeight + sig.Strength*o.opts.StrengthWeight
		if score < o.opts.MinValidationScore {
			continue
		}
		if err := o.board.MarkVerified(sig.ID, o.opts.VerificationBoost); err != nil {
			return err
		}
		verified++
	}
	o.logger.Debug("signals scored", zap.Int("verified", verified))
	return nil
}

// runDebate hands the board to the arbitration engine. Without a full
// adversarial setup the phase is a logged no-op.
func (o *Orchestrator) runDebate(ctx context.Context, subject string, comparisons []string) error {
	if o.attacker == nil || o.defender == nil || o.adjudicator == nil {
		o.logger.Info("debate collaborators not installed, skipping arbitration")
		return nil
	}
	outcome, err := o.engine.Run(ctx, o.board, o.attacker, o.defender, o.adjudicator)
	if err != nil {
		return err
	}
	if o.collector != nil {
		for i := 0; i < outcome.RoundsRun; i++ {
			o.collector.DebateRound()
		}
		for i := 0; i < outcome.ClaimsAdjudicated; i++ {
			o.collector.DebateAdjustment()
		}
	}
	o.logger.Info("debate finished",
		zap.Int("rounds", outcome.RoundsRun),
		zap.Int("claims", outcome.ClaimsAdjudicated),
		zap.Int("conflicts_resolved", outcome.ConflictsResolved),
	)
	return nil
}

// runSynthesis assembles the report view and hands it to the external
// renderer. The board is not mutated past this point.
func (o *Orchestrator) runSynthesis(ctx context.Context, subject string, comparisons []string) (*Report, error) {
	report := &Report{
		Subject:              subject,
		Comparisons:          comparisons,
		Signals:              o.board.ValidForReport(ReportThreshold),
		ControversialPoints:  o.board.UnresolvedConflicts(),
		Insights:             o.board.CrossWorkerInsights(),
		IncompleteDimensions: o.IncompleteDimensions(),
		UnresolvedQuestions:  o.router.Escalated(),
		SignalCount:          o.board.Count(),
	}
	if o.reporter != nil {
		if err := o.reporter.Render(ctx, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}
