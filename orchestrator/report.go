package orchestrator

import (
	"context"

	"github.com/BaSui01/swarmflow/board"
	"github.com/BaSui01/swarmflow/types"
)

// Report is the synthesized view of a finished run: the signals strong
// enough to show, the contradictions nobody settled, and the places the
// analysis came up short.
type Report struct {
	Subject              string                             `json:"subject"`
	Comparisons          []string                           `json:"comparisons,omitempty"`
	Signals              map[types.Dimension][]types.Signal `json:"signals"`
	ControversialPoints  []types.Conflict                   `json:"controversial_points,omitempty"`
	Insights             []board.Insight                    `json:"insights,omitempty"`
	IncompleteDimensions []types.Dimension                  `json:"incomplete_dimensions,omitempty"`
	UnresolvedQuestions  []types.HandoffRequest             `json:"unresolved_questions,omitempty"`
	SignalCount          int                                `json:"signal_count"`
}

// Reporter renders the report for humans. Rendering lives outside the
// engine; markdown, HTML and friends all hide behind this interface.
type Reporter interface {
	Render(ctx context.Context, report *Report) error
}

// ReporterFunc adapts a closure to the Reporter interface.
type ReporterFunc func(ctx context.Context, report *Report) error

func (f ReporterFunc) Render(ctx context.Context, report *Report) error {
	return f(ctx, report)
}
