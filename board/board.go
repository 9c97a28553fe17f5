// Package board implements the shared signal board: the single coordination
// store workers communicate through. All mutation goes through the board's
// operation set under one lock, so concurrent writers never observe a torn
// update; reads are served from copies.
package board

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/types"
)

// Multiplicative factors of the pheromone strength model.
const (
	ReinforceFactor = 1.3
	ChallengeFactor = 0.7
	DecayFactor     = 0.85
)

// Board owns the full collections of signals and conflicts plus the current
// phase and an append-only activity log.
type Board struct {
	mu sync.RWMutex

	signals   map[string]*types.Signal
	conflicts map[string]*types.Conflict
	// conflictPairs guards DetectConflicts idempotency: one conflict per
	// unordered signal pair.
	conflictPairs map[string]bool
	refCounts     map[string]int
	// touched tracks signals reinforced or challenged since the last decay
	// call in the current phase.
	touched map[string]bool

	seq      int64
	phase    types.Phase
	activity []Activity

	logger *zap.Logger
	now    func() time.Time
}

// Activity is one entry of the append-only board log.
type Activity struct {
	Op       string     `json:"op"`
	Actor    types.Role `json:"actor,omitempty"`
	SignalID string     `json:"signal_id,omitempty"`
	Detail   string     `json:"detail,omitempty"`
	At       time.Time  `json:"at"`
}

// New creates an empty board in the collecting phase.
func New(logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{
		signals:       make(map[string]*types.Signal),
		conflicts:     make(map[string]*types.Conflict),
		conflictPairs: make(map[string]bool),
		refCounts:     make(map[string]int),
		touched:       make(map[string]bool),
		phase:         types.PhaseCollecting,
		logger:        logger.With(zap.String("component", "board")),
		now:           time.Now,
	}
}

// Add validates and appends a signal. The board assigns the id, sequence
// number and timestamp when absent; strength defaults to 1.0. Out-of-range
// confidence or strength seeds are invariant violations and abort the run.
func (b *Board) Add(sig types.Signal) (types.Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(sig)
}

// addLocked validates and appends a signal. Caller holds the write lock.
func (b *Board) addLocked(sig types.Signal) (types.Signal, error) {
	if sig.Confidence < 0 || sig.Confidence > 1 {
		return types.Signal{}, types.NewError(types.ErrBoardInvariantViolated,
			fmt.Sprintf("confidence %.3f outside [0,1]", sig.Confidence))
	}
	if sig.Strength == 0 {
		sig.Strength = types.DefaultStrength
	}
	if sig.Strength < types.MinStrength || sig.Strength > types.MaxStrength {
		return types.Signal{}, types.NewError(types.ErrBoardInvariantViolated,
			fmt.Sprintf("strength seed %.3f outside [%.1f,%.1f]", sig.Strength, types.MinStrength, types.MaxStrength))
	}
	if sig.ID == "" {
		sig.ID = types.NewID()
	}
	if _, exists := b.signals[sig.ID]; exists {
		return types.Signal{}, types.NewError(types.ErrBoardInvariantViolated,
			"signal id reused: "+sig.ID)
	}
	b.seq++
	sig.Seq = b.seq
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = b.now()
	}

	stored := sig
	b.signals[stored.ID] = &stored
	for _, ref := range stored.References {
		if _, ok := b.signals[ref]; ok {
			b.refCounts[ref]++
		}
	}
	b.appendActivity("add", stored.SourceWorker, stored.ID, string(stored.Type))

	b.logger.Debug("signal added",
		zap.String("id", stored.ID),
		zap.String("dimension", string(stored.Dimension)),
		zap.String("type", string(stored.Type)),
	)
	return stored, nil
}

// Reinforce amplifies a signal's strength (×1.3, capped at 3.0) and records
// the reinforcing actor.
func (b *Board) Reinforce(id string, actor types.Role) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sig, ok := b.signals[id]
	if !ok {
		return fmt.Errorf("signal not found: %s", id)
	}
	sig.Strength = types.ClampStrength(sig.Strength * ReinforceFactor)
	sig.ReinforcedBy = append(sig.ReinforcedBy, actor)
	b.touched[id] = true
	b.appendActivity("reinforce", actor, id, fmt.Sprintf("strength=%.3f", sig.Strength))
	return nil
}

// Challenge weakens a signal's strength (×0.7, floored at 0.1), adds the
// challenger's counter-signal to the board and opens a conflict between the
// pair. The returned conflict is unresolved.
func (b *Board) Challenge(id string, actor types.Role, counter types.Signal) (types.Conflict, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	challenged, ok := b.signals[id]
	if !ok {
		return types.Conflict{}, fmt.Errorf("signal not found: %s", id)
	}

	counter.SourceWorker = actor
	added, err := b.addLocked(counter)
	if err != nil {
		return types.Conflict{}, err
	}

	challenged.Strength = types.ClampStrength(challenged.Strength * ChallengeFactor)
	challenged.ChallengedBy = append(challenged.ChallengedBy, actor)
	b.touched[id] = true

	conflict := b.openConflict(challenged.ID, added.ID,
		fmt.Sprintf("%s challenged by %s", challenged.ID, actor))
	b.appendActivity("challenge", actor, id, fmt.Sprintf("strength=%.3f counter=%s", challenged.Strength, added.ID))
	return conflict, nil
}

// DecayUnreferenced applies one decay step (×0.85, floored at 0.1) to every
// signal neither reinforced nor challenged since the last decay call in the
// current phase, then starts a new decay epoch.
func (b *Board) DecayUnreferenced() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	decayed := 0
	for id, sig := range b.signals {
		if b.touched[id] {
			continue
		}
		sig.Strength = types.ClampStrength(sig.Strength * DecayFactor)
		decayed++
	}
	b.touched = make(map[string]bool)
	b.appendActivity("decay", "", "", fmt.Sprintf("decayed=%d", decayed))
	b.logger.Debug("decay pass applied", zap.Int("decayed", decayed))
	return decayed
}

// Get returns a copy of the signal with the given id.
func (b *Board) Get(id string) (types.Signal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sig, ok := b.signals[id]
	if !ok {
		return types.Signal{}, false
	}
	return *sig, true
}

// Count returns the number of signals on the board.
func (b *Board) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.signals)
}

// MarkVerified flags a signal as verified and applies the validation
// strength boost. Used by the validation phase only.
func (b *Board) MarkVerified(id string, boost float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sig, ok := b.signals[id]
	if !ok {
		return fmt.Errorf("signal not found: %s", id)
	}
	sig.Verified = true
	sig.Strength = types.ClampStrength(sig.Strength + boost)
	b.appendActivity("verify", "", id, fmt.Sprintf("strength=%.3f", sig.Strength))
	return nil
}

// AdjustStrength applies a signed debate delta to a signal's strength,
// keeping it inside the valid range. Returns the applied (post-clamp)
// strength.
func (b *Board) AdjustStrength(id string, delta float64, actor types.Role) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sig, ok := b.signals[id]
	if !ok {
		return 0, fmt.Errorf("signal not found: %s", id)
	}
	sig.Strength = types.ClampStrength(sig.Strength + delta)
	b.touched[id] = true
	b.appendActivity("adjust", actor, id, fmt.Sprintf("delta=%.3f strength=%.3f", delta, sig.Strength))
	return sig.Strength, nil
}

// SetPhase moves the board to the given phase and starts a fresh decay
// epoch. Phase ordering is enforced by the orchestrator; the board only
// refuses transitions out of a terminal phase.
func (b *Board) SetPhase(phase types.Phase) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase.Terminal() {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("board in terminal phase %s", b.phase))
	}
	b.phase = phase
	b.touched = make(map[string]bool)
	b.appendActivity("phase", "", "", string(phase))
	return nil
}

// Phase returns the board's current phase.
func (b *Board) Phase() types.Phase {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.phase
}

// ActivityLog returns a copy of the append-only activity log.
func (b *Board) ActivityLog() []Activity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Activity, len(b.activity))
	copy(out, b.activity)
	return out
}

// appendActivity records one log entry. Caller holds the write lock.
func (b *Board) appendActivity(op string, actor types.Role, signalID, detail string) {
	b.activity = append(b.activity, Activity{
		Op:       op,
		Actor:    actor,
		SignalID: signalID,
		Detail:   detail,
		At:       b.now(),
	})
}

// openConflict creates a conflict for an unordered signal pair unless one
// already exists. Caller holds the write lock.
func (b *Board) openConflict(a, bID, description string) types.Conflict {
	key := pairKey(a, bID)
	if b.conflictPairs[key] {
		for _, c := range b.conflicts {
			if pairKey(c.SignalA, c.SignalB) == key {
				return *c
			}
		}
	}
	conflict := &types.Conflict{
		ID:          types.NewID(),
		SignalA:     a,
		SignalB:     bID,
		Description: description,
		CreatedAt:   b.now(),
	}
	b.conflicts[conflict.ID] = conflict
	b.conflictPairs[key] = true
	return *conflict
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func sortByStrength(signals []types.Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Strength != signals[j].Strength {
			return signals[i].Strength > signals[j].Strength
		}
		return signals[i].Seq > signals[j].Seq
	})
}
