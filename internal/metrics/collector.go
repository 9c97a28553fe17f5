// Package metrics exposes the engine's prometheus instrumentation.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns every engine metric. Construct one per registry; tests
// pass their own registerer to stay isolated.
type Collector struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec

	phaseDuration *prometheus.HistogramVec

	boardOps     *prometheus.CounterVec
	signalsTotal prometheus.Gauge
	conflicts    *prometheus.GaugeVec

	handoffsSubmitted *prometheus.CounterVec
	handoffsSettled   *prometheus.CounterVec
	handoffQueueDepth *prometheus.GaugeVec

	debateRounds      prometheus.Counter
	debateAdjustments prometheus.Counter

	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	providerFailures  *prometheus.CounterVec
	providerDurations *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers every metric under the namespace. Passing nil uses
// the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_started_total",
		Help:      "Total number of analysis runs started",
	})
	c.runsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_finished_total",
		Help:      "Total number of analysis runs finished, by terminal status",
	}, []string{"status"})

	c.phaseDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Wall time spent in each orchestration phase",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"phase"})

	c.boardOps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "board_operations_total",
		Help:      "Board mutations by operation",
	}, []string{"op"})
	c.signalsTotal = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "board_signals",
		Help:      "Signals currently on the board",
	})
	c.conflicts = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "board_conflicts",
		Help:      "Conflicts on the board by resolution state",
	}, []string{"state"})

	c.handoffsSubmitted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handoffs_submitted_total",
		Help:      "Handoff requests accepted into the queues, by urgency",
	}, []string{"urgency"})
	c.handoffsSettled = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handoffs_settled_total",
		Help:      "Handoff requests settled, by outcome",
	}, []string{"outcome"})
	c.handoffQueueDepth = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "handoff_queue_depth",
		Help:      "Queued handoff requests per urgency class",
	}, []string{"urgency"})

	c.debateRounds = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "debate_rounds_total",
		Help:      "Debate rounds executed",
	})
	c.debateAdjustments = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "debate_adjustments_total",
		Help:      "Strength adjustments applied by the debate engine",
	})

	c.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_hits_total",
		Help:      "Search cache hits",
	})
	c.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_misses_total",
		Help:      "Search cache misses",
	})
	c.providerFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_provider_failures_total",
		Help:      "Provider failures and quota skips, by provider",
	}, []string{"provider"})
	c.providerDurations = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_provider_duration_seconds",
		Help:      "Provider call latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	return c
}

func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
}

func (c *Collector) RunFinished(status string, duration time.Duration) {
	c.runsFinished.WithLabelValues(status).Inc()
	c.logger.Debug("run finished",
		zap.String("status", status),
		zap.Duration("duration", duration),
	)
}

func (c *Collector) ObservePhase(phase string, duration time.Duration) {
	c.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func (c *Collector) BoardOp(op string) {
	c.boardOps.WithLabelValues(op).Inc()
}

func (c *Collector) SetSignalCount(n int) {
	c.signalsTotal.Set(float64(n))
}

func (c *Collector) SetConflictCounts(unresolved, resolved int) {
	c.conflicts.WithLabelValues("unresolved").Set(float64(unresolved))
	c.conflicts.WithLabelValues("resolved").Set(float64(resolved))
}

func (c *Collector) HandoffSubmitted(urgency string) {
	c.handoffsSubmitted.WithLabelValues(urgency).Inc()
}

func (c *Collector) HandoffSettled(outcome string) {
	c.handoffsSettled.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetHandoffQueueDepth(urgency string, depth int) {
	c.handoffQueueDepth.WithLabelValues(urgency).Set(float64(depth))
}

func (c *Collector) DebateRound() {
	c.debateRounds.Inc()
}

func (c *Collector) DebateAdjustment() {
	c.debateAdjustments.Inc()
}

func (c *Collector) CacheHit()  { c.cacheHits.Inc() }
func (c *Collector) CacheMiss() { c.cacheMisses.Inc() }

func (c *Collector) ProviderFailure(provider string) {
	c.providerFailures.WithLabelValues(provider).Inc()
}

func (c *Collector) ObserveProvider(provider string, duration time.Duration) {
	c.providerDurations.WithLabelValues(provider).Observe(duration.Seconds())
}
