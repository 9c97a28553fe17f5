// Package debate runs the adversarial arbitration loop: an attacking role
// and a defending role argue over board signals for a bounded number of
// rounds, and a pluggable adjudicator converts each exchange into a signed
// strength adjustment applied through the board.
package debate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/board"
	"github.com/BaSui01/swarmflow/types"
)

// Claim targets one signal. Relevance orders claims within a round; only
// the most relevant ones get adjudicated when a round is oversubscribed.
type Claim struct {
	SignalID  string  `json:"signal_id"`
	Argument  string  `json:"argument"`
	Relevance float64 `json:"relevance"`
}

// Round is the material handed to each side: the eligible signals and the
// conflicts still open when the round starts.
type Round struct {
	Index     int              `json:"index"`
	Signals   []types.Signal   `json:"signals"`
	Conflicts []types.Conflict `json:"conflicts"`
}

// Debater produces one side's claims for a round. The engine pairs attack
// and defense claims by signal id before adjudication.
type Debater interface {
	Role() types.Role
	Claims(ctx context.Context, round Round) ([]Claim, error)
}

// DebaterFunc adapts a closure to the Debater interface.
type DebaterFunc struct {
	DebaterRole types.Role
	ClaimsFunc  func(ctx context.Context, round Round) ([]Claim, error)
}

func (f *DebaterFunc) Role() types.Role { return f.DebaterRole }

func (f *DebaterFunc) Claims(ctx context.Context, round Round) ([]Claim, error) {
	if f.ClaimsFunc == nil {
		return nil, nil
	}
	return f.ClaimsFunc(ctx, round)
}

// Adjudicator judges one exchange. The returned adjustment must lie in
// [-1, 1]: positive strengthens the attacked signal (defense won), negative
// weakens it. Errors are logged and scored as zero, never fatal.
type Adjudicator interface {
	Adjudicate(ctx context.Context, claim Claim, counter *Claim) (float64, error)
}

// AdjudicatorFunc adapts a closure to the Adjudicator interface.
type AdjudicatorFunc func(ctx context.Context, claim Claim, counter *Claim) (float64, error)

func (f AdjudicatorFunc) Adjudicate(ctx context.Context, claim Claim, counter *Claim) (float64, error) {
	return f(ctx, claim, counter)
}

// Options bounds the debate. Zero values fall back to the defaults below.
type Options struct {
	Rounds            int     // base round bound
	ExtendedRounds    int     // bound when conflicts at entry exceed the threshold
	ConflictThreshold int     // unresolved conflicts that trigger the extended bound
	StrengthStep      float64 // base magnitude of one adjustment
	RoundDecay        float64 // per-round dampening of the step
	MaxAdjustment     float64 // cumulative per-signal adjustment cap
	MaxPointsPerRound int     // claims adjudicated per round; the rest are discarded
	VerifiedOnly      bool    // restrict adjustments to verified signals
}

func (o *Options) applyDefaults() {
	if o.Rounds <= 0 {
		o.Rounds = 3
	}
	if o.ExtendedRounds < o.Rounds {
		o.ExtendedRounds = o.Rounds + 2
	}
	if o.ConflictThreshold <= 0 {
		o.ConflictThreshold = 5
	}
	if o.StrengthStep <= 0 {
		o.StrengthStep = 0.3
	}
	if o.RoundDecay <= 0 || o.RoundDecay > 1 {
		o.RoundDecay = 0.8
	}
	if o.MaxAdjustment <= 0 {
		o.MaxAdjustment = 0.6
	}
	if o.MaxPointsPerRound <= 0 {
		o.MaxPointsPerRound = 5
	}
}

// Outcome summarizes a finished debate.
type Outcome struct {
	RoundsRun         int `json:"rounds_run"`
	ClaimsAdjudicated int `json:"claims_adjudicated"`
	ClaimsDiscarded   int `json:"claims_discarded"`
	ConflictsResolved int `json:"conflicts_resolved"`
	AdjudicationFails int `json:"adjudication_fails"`
}

// Engine drives the loop against one board.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	return &Engine{
		opts:   opts,
		logger: logger.With(zap.String("component", "debate_engine")),
	}
}

// Run executes up to the configured number of rounds against the board,
// extended when the board enters with more unresolved conflicts than the
// threshold. The loop stops early once a round creates no new conflict.
func (e *Engine) Run(ctx context.Context, b *board.Board, attacker, defender Debater, judge Adjudicator) (*Outcome, error) {
	if judge == nil {
		return nil, fmt.Errorf("adjudicator is nil")
	}

	bound := e.opts.Rounds
	if len(b.UnresolvedConflicts()) > e.opts.ConflictThreshold {
		bound = e.opts.ExtendedRounds
		e.logger.Info("conflict load above threshold, extending round bound",
			zap.Int("bound", bound))
	}

	outcome := &Outcome{}
	cumulative := make(map[string]float64)

	for round := 1; round <= bound; round++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		material := Round{
			Index:     round,
			Signals:   e.eligibleSignals(b),
			Conflicts: b.UnresolvedConflicts(),
		}

		attacks, err := attacker.Claims(ctx, material)
		if err != nil {
			return outcome, fmt.Errorf("attacker claims, round %d: %w", round, err)
		}
		defenses, err := defender.Claims(ctx, material)
		if err != nil {
			return outcome, fmt.Errorf("defender claims, round %d: %w", round, err)
		}

		counters := make(map[string]*Claim, len(defenses))
		for i := range defenses {
			counters[defenses[i].SignalID] = &defenses[i]
		}

		sort.SliceStable(attacks, func(i, j int) bool {
			return attacks[i].Relevance > attacks[j].Relevance
		})
		if len(attacks) > e.opts.MaxPointsPerRound {
			outcome.ClaimsDiscarded += len(attacks) - e.opts.MaxPointsPerRound
			attacks = attacks[:e.opts.MaxPointsPerRound]
		}

		step := e.opts.StrengthStep * math.Pow(e.opts.RoundDecay, float64(round-1))
		for _, claim := range attacks {
			sig, ok := b.Get(claim.SignalID)
			if !ok {
				continue
			}
			if e.opts.VerifiedOnly && !sig.Verified {
				continue
			}

			adjustment := e.adjudicate(ctx, judge, claim, counters[claim.SignalID], outcome)
			delta := clampCumulative(adjustment*step, cumulative[claim.SignalID], e.opts.MaxAdjustment)
			cumulative[claim.SignalID] += delta
			outcome.ClaimsAdjudicated++

			if delta != 0 {
				actor := attacker.Role()
				if delta > 0 {
					actor = defender.Role()
				}
				if _, err := b.AdjustStrength(claim.SignalID, delta, actor); err != nil {
					return outcome, err
				}
			}
			if adjustment != 0 {
				outcome.ConflictsResolved += e.settleConflicts(b, claim.SignalID, adjustment, attacker.Role(), defender.Role())
			}
		}

		newConflicts := b.DetectConflicts()
		outcome.RoundsRun = round
		e.logger.Debug("debate round finished",
			zap.Int("round", round),
			zap.Int("claims", len(attacks)),
			zap.Int("new_conflicts", len(newConflicts)),
		)
		if len(newConflicts) == 0 {
			break
		}
	}
	return outcome, nil
}

func (e *Engine) eligibleSignals(b *board.Board) []types.Signal {
	f := board.Filter{}
	if e.opts.VerifiedOnly {
		f.VerifiedOnly = true
	}
	return b.Query(f)
}

func (e *Engine) adjudicate(ctx context.Context, judge Adjudicator, claim Claim, counter *Claim, outcome *Outcome) float64 {
	adjustment, err := judge.Adjudicate(ctx, claim, counter)
	if err != nil {
		outcome.AdjudicationFails++
		e.logger.Warn("adjudication failed, scoring zero",
			zap.String("signal_id", claim.SignalID),
			zap.Error(types.NewError(types.ErrAdjudicationFailure, "adjudicator error").WithCause(err)),
		)
		return 0
	}
	if adjustment > 1 {
		adjustment = 1
	} else if adjustment < -1 {
		adjustment = -1
	}
	return adjustment
}

// settleConflicts records a resolution on every open conflict involving the
// adjudicated signal, attributed to whichever side the verdict favored.
func (e *Engine) settleConflicts(b *board.Board, signalID string, adjustment float64, attacker, defender types.Role) int {
	winner := attacker
	verdict := "challenge upheld"
	if adjustment > 0 {
		winner = defender
		verdict = "claim defended"
	}
	resolved := 0
	for _, c := range b.UnresolvedConflicts() {
		if c.SignalA != signalID && c.SignalB != signalID {
			continue
		}
		if err := b.ResolveConflict(c.ID, verdict, winner); err == nil {
			resolved++
		}
	}
	return resolved
}

// clampCumulative trims delta so the running total for one signal never
// exceeds the cap in magnitude.
func clampCumulative(delta, cumulative, limit float64) float64 {
	total := cumulative + delta
	if total > limit {
		delta = limit - cumulative
	} else if total < -limit {
		delta = -limit - cumulative
	}
	return delta
}
