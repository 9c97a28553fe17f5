// Package handoff routes bounded sub-questions between worker roles. The
// routing decision is a declarative rule table, the queues are FIFO per
// urgency class, and the relay chain is depth-limited so two workers can
// never ping-pong a question indefinitely.
package handoff

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/types"
)

// RoutingRule maps a request to its target role. Rules are evaluated in
// order; the first match wins. A zero FromRole matches any origin and an
// empty Tags list matches any tags, so broad fallback rules go last.
type RoutingRule struct {
	Trigger  types.Trigger `json:"trigger" yaml:"trigger"`
	FromRole types.Role    `json:"from_role,omitempty" yaml:"from_role"`
	Tags     []string      `json:"tags,omitempty" yaml:"tags"`
	Target   types.Role    `json:"target" yaml:"target"`
}

func (r RoutingRule) matches(req types.HandoffRequest) bool {
	if r.Trigger != req.Trigger {
		return false
	}
	if r.FromRole != "" && r.FromRole != req.FromWorker {
		return false
	}
	if len(r.Tags) == 0 {
		return true
	}
	for _, want := range r.Tags {
		for _, have := range req.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// DefaultRules is the built-in routing table: contradictions go to the
// adversarial pair, verification to the defender, deep dives to the senior
// analyst, and evidence gaps to whichever collection role owns the tagged
// area, falling back to the scout.
func DefaultRules() []RoutingRule {
	return []RoutingRule{
		{Trigger: types.TriggerContradiction, Target: types.RoleRedTeam},
		{Trigger: types.TriggerVerification, Target: types.RoleBlueTeam},
		{Trigger: types.TriggerDeepDive, Target: types.RoleElite},
		{Trigger: types.TriggerEvidenceGap, Tags: []string{"technical", "architecture", "performance"}, Target: types.RoleTechnical},
		{Trigger: types.TriggerEvidenceGap, Tags: []string{"market", "pricing", "competitor"}, Target: types.RoleMarket},
		{Trigger: types.TriggerEvidenceGap, Tags: []string{"ux", "experience", "usability"}, Target: types.RoleExperience},
		{Trigger: types.TriggerEvidenceGap, Target: types.RoleScout},
		{Trigger: types.TriggerDomainMismatch, Tags: []string{"technical", "architecture", "performance"}, Target: types.RoleTechnical},
		{Trigger: types.TriggerDomainMismatch, Tags: []string{"market", "pricing", "competitor"}, Target: types.RoleMarket},
		{Trigger: types.TriggerDomainMismatch, Tags: []string{"ux", "experience", "usability"}, Target: types.RoleExperience},
		{Trigger: types.TriggerDomainMismatch, Target: types.RoleScout},
	}
}

// Handler answers one dispatched request. A nil signal slice with a nil
// error means the target had nothing to say (unanswered).
type Handler func(ctx context.Context, req types.HandoffRequest) ([]types.Signal, error)

// Options tunes the router. Zero values fall back to the defaults below.
type Options struct {
	MaxPerRole      int           // outstanding requests per origin role per phase
	DispatchTimeout time.Duration // per-request answer deadline during Drain
	MaxRoutes       int           // unresolved routes of the same question before escalation
}

const (
	defaultMaxPerRole      = 3
	defaultDispatchTimeout = 30 * time.Second
	defaultMaxRoutes       = 2
)

// Router owns the pending queues. All methods are safe for concurrent use;
// the queues share the board's single-writer discipline via one mutex.
type Router struct {
	mu          sync.Mutex
	rules       []RoutingRule
	queues      map[types.Urgency][]types.HandoffRequest
	outstanding map[types.Role]int
	routed      map[string]int // normalized question -> unresolved route count
	inFlight    map[string]string
	escalated   []types.HandoffRequest
	opts        Options
	logger      *zap.Logger
	now         func() time.Time
}

func NewRouter(rules []RoutingRule, opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if opts.MaxPerRole <= 0 {
		opts.MaxPerRole = defaultMaxPerRole
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = defaultDispatchTimeout
	}
	if opts.MaxRoutes <= 0 {
		opts.MaxRoutes = defaultMaxRoutes
	}
	return &Router{
		rules:       rules,
		queues:      make(map[types.Urgency][]types.HandoffRequest),
		outstanding: make(map[types.Role]int),
		routed:      make(map[string]int),
		inFlight:    make(map[string]string),
		escalated:   nil,
		opts:        opts,
		logger:      logger.With(zap.String("component", "handoff_router")),
		now:         time.Now,
	}
}

// Submit validates, resolves and enqueues a request. The returned request
// carries the assigned id and resolved target. Depth and rate violations
// come back as typed errors; a question that already failed to resolve
// twice is recorded as an unresolved item instead of being queued again.
func (r *Router) Submit(req types.HandoffRequest) (types.HandoffRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Depth >= types.MaxHandoffDepth {
		return req, types.NewError(types.ErrHandoffDepthExceeded,
			fmt.Sprintf("depth %d reached the relay limit %d", req.Depth, types.MaxHandoffDepth))
	}
	if r.outstanding[req.FromWorker] >= r.opts.MaxPerRole {
		return req, types.NewError(types.ErrHandoffRateExceeded,
			fmt.Sprintf("role %s already has %d outstanding requests this phase", req.FromWorker, r.opts.MaxPerRole))
	}

	key := normalizeQuestion(req.Question)
	if r.routed[key] >= r.opts.MaxRoutes {
		r.escalated = append(r.escalated, req)
		r.logger.Warn("question escalated after repeated unresolved routes",
			zap.String("question", req.Question),
			zap.String("from", string(req.FromWorker)),
		)
		return req, fmt.Errorf("question escalated after %d unresolved routes", r.opts.MaxRoutes)
	}

	if req.ToWorker == "" {
		target, ok := r.resolve(req)
		if !ok {
			return req, types.NewError(types.ErrHandoffUnroutable,
				fmt.Sprintf("no rule matches trigger %s from %s", req.Trigger, req.FromWorker))
		}
		req.ToWorker = target
	}
	if req.ID == "" {
		req.ID = types.NewID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = r.now()
	}
	if req.Urgency == "" {
		req.Urgency = types.UrgencyOptional
	}

	r.queues[req.Urgency] = append(r.queues[req.Urgency], req)
	r.outstanding[req.FromWorker]++
	r.inFlight[req.ID] = key

	r.logger.Debug("handoff queued",
		zap.String("id", req.ID),
		zap.String("from", string(req.FromWorker)),
		zap.String("to", string(req.ToWorker)),
		zap.String("trigger", string(req.Trigger)),
		zap.String("urgency", string(req.Urgency)),
		zap.Int("depth", req.Depth),
	)
	return req, nil
}

func (r *Router) resolve(req types.HandoffRequest) (types.Role, bool) {
	for _, rule := range r.rules {
		if rule.matches(req) {
			return rule.Target, true
		}
	}
	return "", false
}

// Drain empties the queues in urgency order and dispatches each request
// through the handler under the per-request timeout. A request unanswered
// in time yields a timedOut response with no signals; the caller proceeds
// as if the answer was empty.
func (r *Router) Drain(ctx context.Context, handle Handler) []types.HandoffResponse {
	var responses []types.HandoffResponse
	for {
		req, ok := r.pop()
		if !ok {
			return responses
		}
		responses = append(responses, r.dispatch(ctx, req, handle))
	}
}

func (r *Router) pop() (types.HandoffRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, urgency := range types.Urgencies() {
		q := r.queues[urgency]
		if len(q) == 0 {
			continue
		}
		req := q[0]
		r.queues[urgency] = q[1:]
		return req, true
	}
	return types.HandoffRequest{}, false
}

func (r *Router) dispatch(ctx context.Context, req types.HandoffRequest, handle Handler) types.HandoffResponse {
	dctx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
	defer cancel()

	type result struct {
		signals []types.Signal
		err     error
	}
	done := make(chan result, 1)
	go func() {
		signals, err := handle(dctx, req)
		done <- result{signals: signals, err: err}
	}()

	resp := types.HandoffResponse{RequestID: req.ID}
	select {
	case res := <-done:
		if res.err != nil {
			r.logger.Warn("handoff dispatch failed",
				zap.String("id", req.ID),
				zap.String("to", string(req.ToWorker)),
				zap.Error(res.err),
			)
			resp.Unanswered = true
		} else {
			resp.Signals = res.signals
			resp.Unanswered = len(res.signals) == 0
		}
	case <-dctx.Done():
		r.logger.Warn("handoff timed out",
			zap.String("id", req.ID),
			zap.String("to", string(req.ToWorker)),
			zap.Duration("timeout", r.opts.DispatchTimeout),
		)
		resp.TimedOut = true
	}
	resp.CompletedAt = r.now()
	r.complete(req, resp)
	return resp
}

// complete settles bookkeeping for a dispatched request: resolved questions
// clear their route count, unresolved ones accrue toward escalation.
func (r *Router) complete(req types.HandoffRequest, resp types.HandoffResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.inFlight[req.ID]
	if !ok {
		key = normalizeQuestion(req.Question)
	}
	delete(r.inFlight, req.ID)
	if r.outstanding[req.FromWorker] > 0 {
		r.outstanding[req.FromWorker]--
	}
	if resp.TimedOut || resp.Unanswered {
		r.routed[key]++
	} else {
		delete(r.routed, key)
	}
}

// ResetPhase clears the per-phase rate counters. Queued requests, route
// history and escalations survive the transition.
func (r *Router) ResetPhase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outstanding = make(map[types.Role]int)
}

// Pending counts queued requests across all urgency classes.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.queues {
		n += len(q)
	}
	return n
}

// QueueDepths reports the queue length per urgency class.
func (r *Router) QueueDepths() map[types.Urgency]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	depths := make(map[types.Urgency]int, len(types.Urgencies()))
	for _, u := range types.Urgencies() {
		depths[u] = len(r.queues[u])
	}
	return depths
}

// Escalated returns the questions handed back to the orchestrator as
// unresolved items.
func (r *Router) Escalated() []types.HandoffRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.HandoffRequest, len(r.escalated))
	copy(out, r.escalated)
	return out
}

func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
