package types

import (
	"time"

	"github.com/google/uuid"
)

// SignalType classifies the kind of claim a signal makes.
type SignalType string

const (
	SignalFact           SignalType = "fact"
	SignalObservation    SignalType = "observation"
	SignalInference      SignalType = "inference"
	SignalRisk           SignalType = "risk"
	SignalOpportunity    SignalType = "opportunity"
	SignalQuestion       SignalType = "question"
	SignalContradiction  SignalType = "contradiction"
	SignalRecommendation SignalType = "recommendation"
)

// Dimension is the fixed analysis axis a signal belongs to.
type Dimension string

const (
	DimensionProduct   Dimension = "product"
	DimensionTechnical Dimension = "technical"
	DimensionMarket    Dimension = "market"
	DimensionUX        Dimension = "ux"
	DimensionBusiness  Dimension = "business"
	DimensionTeam      Dimension = "team"
)

// AllDimensions lists every analysis axis in report order.
func AllDimensions() []Dimension {
	return []Dimension{
		DimensionProduct,
		DimensionTechnical,
		DimensionMarket,
		DimensionUX,
		DimensionBusiness,
		DimensionTeam,
	}
}

// Sentiment is the polarity of a signal.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Opposes reports whether two sentiments point in opposite directions.
func (s Sentiment) Opposes(other Sentiment) bool {
	return (s == SentimentPositive && other == SentimentNegative) ||
		(s == SentimentNegative && other == SentimentPositive)
}

// EvidenceType classifies a piece of supporting evidence.
type EvidenceType string

const (
	EvidenceLink      EvidenceType = "link"
	EvidenceCapture   EvidenceType = "capture"
	EvidenceDataPoint EvidenceType = "data_point"
	EvidenceQuote     EvidenceType = "quote"
	EvidenceInference EvidenceType = "inference"
)

// Reliability grades how trustworthy a piece of evidence is.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// Evidence is an immutable record attached to a signal at creation time.
type Evidence struct {
	Type        EvidenceType `json:"type"`
	Source      string       `json:"source"`
	RawContent  string       `json:"raw_content"`
	Reliability Reliability  `json:"reliability"`
}

// Strength bounds for the multiplicative reinforcement model. A signal is
// created at DefaultStrength unless its producer seeds another value, and
// board operations keep it inside [MinStrength, MaxStrength].
const (
	MinStrength     = 0.1
	MaxStrength     = 3.0
	DefaultStrength = 1.0
)

// ClampStrength forces v into the valid strength range.
func ClampStrength(v float64) float64 {
	if v < MinStrength {
		return MinStrength
	}
	if v > MaxStrength {
		return MaxStrength
	}
	return v
}

// Signal is an atomic claim on the board. Confidence is set once from
// evidence quality and never mutated; strength is the pheromone value
// mutated only through board operations.
type Signal struct {
	ID           string     `json:"id"`
	Seq          int64      `json:"seq"`
	SourceWorker Role       `json:"source_worker"`
	Type         SignalType `json:"type"`
	Dimension    Dimension  `json:"dimension"`
	Content      string     `json:"content"`
	Evidence     []Evidence `json:"evidence,omitempty"`
	Confidence   float64    `json:"confidence"`
	Strength     float64    `json:"strength"`
	Sentiment    Sentiment  `json:"sentiment"`
	Tags         []string   `json:"tags,omitempty"`
	References   []string   `json:"references,omitempty"`
	ReinforcedBy []Role     `json:"reinforced_by,omitempty"`
	ChallengedBy []Role     `json:"challenged_by,omitempty"`
	Verified     bool       `json:"verified"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasTag reports whether the signal carries the given tag.
func (s *Signal) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SharesTag reports whether two signals have at least one tag in common.
func (s *Signal) SharesTag(other *Signal) bool {
	for _, t := range other.Tags {
		if s.HasTag(t) {
			return true
		}
	}
	return false
}

// Conflict records a contradiction between two signals. Resolution stays
// empty until an adjudication outcome sets it, at most once.
type Conflict struct {
	ID          string    `json:"id"`
	SignalA     string    `json:"signal_a"`
	SignalB     string    `json:"signal_b"`
	Description string    `json:"description"`
	Resolution  string    `json:"resolution,omitempty"`
	ResolvedBy  Role      `json:"resolved_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Resolved reports whether an adjudication has settled the conflict.
func (c *Conflict) Resolved() bool {
	return c.Resolution != ""
}

// NewID returns a fresh unique identifier.
func NewID() string {
	return uuid.New().String()
}
