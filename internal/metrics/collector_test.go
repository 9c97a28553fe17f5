package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RunAndPhaseCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("swarmflow", reg, nil)

	c.RunStarted()
	c.RunStarted()
	c.RunFinished("succeeded", time.Second)
	c.RunFinished("failed", time.Second)
	c.RunFinished("failed", time.Second)
	c.ObservePhase("collecting", 2*time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsFinished.WithLabelValues("succeeded")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsFinished.WithLabelValues("failed")))
}

func TestCollector_BoardAndHandoffGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("swarmflow", reg, nil)

	c.BoardOp("add")
	c.BoardOp("add")
	c.BoardOp("reinforce")
	c.SetSignalCount(17)
	c.SetConflictCounts(3, 1)
	c.SetHandoffQueueDepth("blocking", 2)
	c.HandoffSubmitted("blocking")
	c.HandoffSettled("answered")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.boardOps.WithLabelValues("add")))
	assert.Equal(t, float64(17), testutil.ToFloat64(c.signalsTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.conflicts.WithLabelValues("unresolved")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.handoffQueueDepth.WithLabelValues("blocking")))
}

func TestCollector_SearchCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("swarmflow", reg, nil)

	c.CacheHit()
	c.CacheMiss()
	c.CacheMiss()
	c.ProviderFailure("tavily")
	c.ObserveProvider("tavily", 120*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheHits))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.cacheMisses))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.providerFailures.WithLabelValues("tavily")))
}

func TestCollector_IsolatedRegistries(t *testing.T) {
	a := NewCollector("swarmflow", prometheus.NewRegistry(), nil)
	b := NewCollector("swarmflow", prometheus.NewRegistry(), nil)

	a.RunStarted()
	require.Equal(t, float64(1), testutil.ToFloat64(a.runsStarted))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.runsStarted))
}
