// Package worker defines the contract between the coordination engine and
// the role-specific analysis workers. Workers never touch the board
// directly: they receive a read-only snapshot and return a Contribution,
// which the orchestrator replays through the board's operation set.
package worker

import (
	"context"

	"github.com/BaSui01/swarmflow/types"
)

// Snapshot is the read-only view of the board handed to a worker. Signals
// are copies; mutating them has no effect on the board.
type Snapshot struct {
	Phase     types.Phase                        `json:"phase"`
	Signals   []types.Signal                     `json:"signals"`
	Conflicts []types.Conflict                   `json:"conflicts"`
	ByDim     map[types.Dimension][]types.Signal `json:"-"`
}

// Task is one unit of work dispatched to a worker. During collection the
// Dimension field names the axis the worker owns; during validation it is
// empty and the snapshot covers the full board. Handoff is set only when
// the task answers a routed sub-question.
type Task struct {
	Subject     string
	Comparisons []string
	Phase       types.Phase
	Dimension   types.Dimension
	Broadened   bool
	Snapshot    Snapshot
	Handoff     *types.HandoffRequest
}

// Reinforcement asks the board to amplify an existing signal.
type Reinforcement struct {
	SignalID string `json:"signal_id"`
	Reason   string `json:"reason"`
}

// Challenge asks the board to weaken an existing signal, backed by a
// counter-signal carrying the challenger's evidence.
type Challenge struct {
	SignalID string       `json:"signal_id"`
	Reason   string       `json:"reason"`
	Counter  types.Signal `json:"counter"`
}

// Contribution is everything a worker wants applied to the board plus any
// sub-questions it needs other roles to answer.
type Contribution struct {
	Signals        []types.Signal
	Reinforcements []Reinforcement
	Challenges     []Challenge
	Handoffs       []types.HandoffRequest
	Unanswered     bool
}

// Empty reports whether the contribution would leave the board untouched.
func (c *Contribution) Empty() bool {
	if c == nil {
		return true
	}
	return len(c.Signals) == 0 && len(c.Reinforcements) == 0 &&
		len(c.Challenges) == 0 && len(c.Handoffs) == 0
}

// Worker is implemented once per role. Execute must honor ctx cancellation;
// a contribution returned alongside a non-nil error is discarded whole.
type Worker interface {
	Role() types.Role
	Execute(ctx context.Context, task Task) (*Contribution, error)
}

// Func adapts a closure to the Worker interface.
type Func struct {
	WorkerRole  types.Role
	ExecuteFunc func(ctx context.Context, task Task) (*Contribution, error)
}

func (f *Func) Role() types.Role { return f.WorkerRole }

func (f *Func) Execute(ctx context.Context, task Task) (*Contribution, error) {
	if f.ExecuteFunc == nil {
		return &Contribution{}, nil
	}
	return f.ExecuteFunc(ctx, task)
}
