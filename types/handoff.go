package types

import "time"

// Urgency orders handoff requests into drain classes.
type Urgency string

const (
	UrgencyBlocking  Urgency = "blocking"
	UrgencyImportant Urgency = "important"
	UrgencyOptional  Urgency = "optional"
)

// Rank returns the drain priority of the urgency class; lower drains first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyBlocking:
		return 0
	case UrgencyImportant:
		return 1
	default:
		return 2
	}
}

// Urgencies lists the drain classes in priority order.
func Urgencies() []Urgency {
	return []Urgency{UrgencyBlocking, UrgencyImportant, UrgencyOptional}
}

// Trigger is the routing reason attached to a handoff request. Routing
// rules match on it, so the set is fixed.
type Trigger string

const (
	TriggerEvidenceGap    Trigger = "evidence_gap"
	TriggerDomainMismatch Trigger = "domain_mismatch"
	TriggerContradiction  Trigger = "contradiction"
	TriggerDeepDive       Trigger = "deep_dive"
	TriggerVerification   Trigger = "verification"
)

// MaxHandoffDepth bounds the relay chain: a request generated at depth 2 or
// deeper is rejected rather than forwarded.
const MaxHandoffDepth = 2

// HandoffRequest is a routed sub-question from one worker role to another.
// Depth is 0 at the origin and incremented per hop.
type HandoffRequest struct {
	ID         string    `json:"id"`
	FromWorker Role      `json:"from_worker"`
	ToWorker   Role      `json:"to_worker,omitempty"`
	Trigger    Trigger   `json:"trigger"`
	Question   string    `json:"question"`
	Tags       []string  `json:"tags,omitempty"`
	Depth      int       `json:"depth"`
	Urgency    Urgency   `json:"urgency"`
	CreatedAt  time.Time `json:"created_at"`
}

// HandoffResponse completes a request: either produced signals, or an
// unanswered marker when the target had nothing, or a timeout marker.
type HandoffResponse struct {
	RequestID   string    `json:"request_id"`
	Signals     []Signal  `json:"signals,omitempty"`
	Unanswered  bool      `json:"unanswered,omitempty"`
	TimedOut    bool      `json:"timed_out,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
