package board

import (
	"fmt"

	"github.com/BaSui01/swarmflow/types"
)

// Filter narrows a board query. Zero-value fields match everything.
type Filter struct {
	Dimensions    []types.Dimension
	Types         []types.SignalType
	Roles         []types.Role
	Tags          []string
	MinStrength   float64
	MinConfidence float64
	VerifiedOnly  bool
	Limit         int
}

func (f Filter) matches(sig *types.Signal) bool {
	if len(f.Dimensions) > 0 && !containsDim(f.Dimensions, sig.Dimension) {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, sig.Type) {
		return false
	}
	if len(f.Roles) > 0 && !containsRole(f.Roles, sig.SourceWorker) {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, tag := range f.Tags {
			if sig.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if sig.Strength < f.MinStrength {
		return false
	}
	if sig.Confidence < f.MinConfidence {
		return false
	}
	if f.VerifiedOnly && !sig.Verified {
		return false
	}
	return true
}

// Query returns copies of matching signals ordered by strength descending,
// then recency descending. It never mutates the board.
func (b *Board) Query(f Filter) []types.Signal {
	b.mu.RLock()
	out := make([]types.Signal, 0, len(b.signals))
	for _, sig := range b.signals {
		if f.matches(sig) {
			out = append(out, *sig)
		}
	}
	b.mu.RUnlock()

	sortByStrength(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// ValidForReport returns signals with strength strictly above minStrength,
// grouped by dimension, each group sorted by strength descending.
func (b *Board) ValidForReport(minStrength float64) map[types.Dimension][]types.Signal {
	b.mu.RLock()
	groups := make(map[types.Dimension][]types.Signal)
	for _, sig := range b.signals {
		if sig.Strength > minStrength {
			groups[sig.Dimension] = append(groups[sig.Dimension], *sig)
		}
	}
	b.mu.RUnlock()

	for dim := range groups {
		sortByStrength(groups[dim])
	}
	return groups
}

// GroupByDimension returns every signal grouped by dimension, strength
// sorted within each group.
func (b *Board) GroupByDimension() map[types.Dimension][]types.Signal {
	return b.ValidForReport(0)
}

// HotSignals returns the most referenced signals, ties broken by strength.
func (b *Board) HotSignals(limit int) []types.Signal {
	b.mu.RLock()
	type scored struct {
		sig  types.Signal
		refs int
	}
	all := make([]scored, 0, len(b.signals))
	for id, sig := range b.signals {
		all = append(all, scored{sig: *sig, refs: b.refCounts[id]})
	}
	b.mu.RUnlock()

	signals := make([]types.Signal, 0, len(all))
	// Selection by reference count first, strength second.
	for len(all) > 0 && (limit <= 0 || len(signals) < limit) {
		best := 0
		for i := 1; i < len(all); i++ {
			if all[i].refs > all[best].refs ||
				(all[i].refs == all[best].refs && all[i].sig.Strength > all[best].sig.Strength) {
				best = i
			}
		}
		signals = append(signals, all[best].sig)
		all = append(all[:best], all[best+1:]...)
	}
	return signals
}

// RelatedSignals walks the reference graph breadth-first from the given
// signal up to maxDistance hops and returns the reachable signals sorted by
// strength.
func (b *Board) RelatedSignals(id string, maxDistance, limit int) []types.Signal {
	b.mu.RLock()
	visited := map[string]bool{}
	frontier := []string{id}
	var related []types.Signal

	for hop := 0; hop < maxDistance && len(frontier) > 0; hop++ {
		var next []string
		for _, sid := range frontier {
			if visited[sid] {
				continue
			}
			visited[sid] = true
			sig, ok := b.signals[sid]
			if !ok {
				continue
			}
			related = append(related, *sig)
			next = append(next, sig.References...)
		}
		frontier = next
	}
	b.mu.RUnlock()

	sortByStrength(related)
	if limit > 0 && len(related) > limit {
		related = related[:limit]
	}
	return related
}

// Insight links a referenced signal to the roles that built on it. Used by
// the synthesis phase to surface cross-worker agreement.
type Insight struct {
	SignalID       string       `json:"signal_id"`
	Content        string       `json:"content"`
	FromWorker     types.Role   `json:"from_worker"`
	ReferencedBy   []types.Role `json:"referenced_by"`
	ReferenceCount int          `json:"reference_count"`
}

// CrossWorkerInsights lists signals referenced by workers other than their
// author, most referenced first.
func (b *Board) CrossWorkerInsights() []Insight {
	b.mu.RLock()
	var insights []Insight
	for id, count := range b.refCounts {
		if count == 0 {
			continue
		}
		sig, ok := b.signals[id]
		if !ok {
			continue
		}
		seen := map[types.Role]bool{}
		var referrers []types.Role
		for _, other := range b.signals {
			if other.SourceWorker == sig.SourceWorker {
				continue
			}
			for _, ref := range other.References {
				if ref == id && !seen[other.SourceWorker] {
					seen[other.SourceWorker] = true
					referrers = append(referrers, other.SourceWorker)
				}
			}
		}
		if len(referrers) > 0 {
			insights = append(insights, Insight{
				SignalID:       id,
				Content:        sig.Content,
				FromWorker:     sig.SourceWorker,
				ReferencedBy:   referrers,
				ReferenceCount: count,
			})
		}
	}
	b.mu.RUnlock()

	for i := 0; i < len(insights); i++ {
		for j := i + 1; j < len(insights); j++ {
			if insights[j].ReferenceCount > insights[i].ReferenceCount {
				insights[i], insights[j] = insights[j], insights[i]
			}
		}
	}
	return insights
}

// DetectConflicts scans signal pairs that share a dimension or tag with
// opposing sentiment, or where one side is an explicit contradiction, and
// opens conflicts for previously unflagged pairs. Idempotent: a pair is
// never flagged twice.
func (b *Board) DetectConflicts() []types.Conflict {
	b.mu.Lock()
	defer b.mu.Unlock()

	ordered := make([]*types.Signal, 0, len(b.signals))
	for _, sig := range b.signals {
		ordered = append(ordered, sig)
	}

	var created []types.Conflict
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			a, c := ordered[i], ordered[j]
			if a.Dimension != c.Dimension && !a.SharesTag(c) {
				continue
			}
			opposing := a.Sentiment.Opposes(c.Sentiment)
			explicit := a.Type == types.SignalContradiction || c.Type == types.SignalContradiction
			if !opposing && !explicit {
				continue
			}
			if b.conflictPairs[pairKey(a.ID, c.ID)] {
				continue
			}
			conflict := b.openConflict(a.ID, c.ID,
				fmt.Sprintf("opposing signals on %s", a.Dimension))
			created = append(created, conflict)
		}
	}
	if len(created) > 0 {
		b.appendActivity("detect_conflicts", "", "", fmt.Sprintf("created=%d", len(created)))
	}
	return created
}

// Conflicts returns a copy of every conflict.
func (b *Board) Conflicts() []types.Conflict {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Conflict, 0, len(b.conflicts))
	for _, c := range b.conflicts {
		out = append(out, *c)
	}
	return out
}

// UnresolvedConflicts returns the conflicts no adjudication has settled.
func (b *Board) UnresolvedConflicts() []types.Conflict {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.Conflict
	for _, c := range b.conflicts {
		if !c.Resolved() {
			out = append(out, *c)
		}
	}
	return out
}

// ResolveConflict records an adjudication outcome. A conflict's resolution
// is set at most once; later calls fail.
func (b *Board) ResolveConflict(id, resolution string, by types.Role) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conflicts[id]
	if !ok {
		return fmt.Errorf("conflict not found: %s", id)
	}
	if c.Resolved() {
		return fmt.Errorf("conflict already resolved: %s", id)
	}
	c.Resolution = resolution
	c.ResolvedBy = by
	b.appendActivity("resolve_conflict", by, "", id)
	return nil
}

func containsDim(list []types.Dimension, d types.Dimension) bool {
	for _, v := range list {
		if v == d {
			return true
		}
	}
	return false
}

func containsType(list []types.SignalType, t types.SignalType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsRole(list []types.Role, r types.Role) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}
