package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/types"
)

func staticProvider(name string, calls *int32, results ...Result) Provider {
	return &ProviderFunc{
		ProviderName: name,
		SearchFunc: func(ctx context.Context, query string, maxResults int) ([]Result, error) {
			if calls != nil {
				atomic.AddInt32(calls, 1)
			}
			return results, nil
		},
	}
}

func failingProvider(name string, calls *int32) Provider {
	return &ProviderFunc{
		ProviderName: name,
		SearchFunc: func(ctx context.Context, query string, maxResults int) ([]Result, error) {
			if calls != nil {
				atomic.AddInt32(calls, 1)
			}
			return nil, fmt.Errorf("%s unavailable", name)
		},
	}
}

func TestAggregator_PriorityFirstSuccessWins(t *testing.T) {
	a := NewAggregator(Options{Mode: ModePriority}, nil, nil)

	var callsA, callsB, callsC int32
	a.Register(&ProviderFunc{
		ProviderName: "alpha",
		SearchFunc: func(ctx context.Context, query string, maxResults int) ([]Result, error) {
			atomic.AddInt32(&callsA, 1)
			<-ctx.Done() // simulated hang until the per-provider deadline
			return nil, ctx.Err()
		},
	}, ProviderConfig{Enabled: true, Priority: 100, Timeout: 20 * time.Millisecond})
	a.Register(staticProvider("beta", &callsB,
		Result{Title: "one", URL: "https://example.com/1"},
		Result{Title: "two", URL: "https://example.com/2"},
		Result{Title: "three", URL: "https://example.com/3"},
	), ProviderConfig{Enabled: true, Priority: 50})
	a.Register(staticProvider("gamma", &callsC,
		Result{Title: "never", URL: "https://example.com/never"},
	), ProviderConfig{Enabled: true, Priority: 10})

	results, err := a.Search(context.Background(), "sync engines", 10)
	require.NoError(t, err)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "beta", r.Provider)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&callsA))
	assert.EqualValues(t, 1, atomic.LoadInt32(&callsB))
	assert.EqualValues(t, 0, atomic.LoadInt32(&callsC), "lower-priority provider is never queried")
}

func TestAggregator_AllProvidersFailed(t *testing.T) {
	a := NewAggregator(Options{Mode: ModePriority}, nil, nil)
	a.Register(failingProvider("alpha", nil), ProviderConfig{Enabled: true, Priority: 10})
	a.Register(failingProvider("beta", nil), ProviderConfig{Enabled: true, Priority: 5})

	_, err := a.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Equal(t, types.ErrAllProvidersFailed, types.GetErrorCode(err))
	assert.True(t, errors.Is(err, ErrNoResults))
	assert.True(t, types.IsRetryable(err))
}

func TestAggregator_ParallelMergesByPriority(t *testing.T) {
	a := NewAggregator(Options{Mode: ModeParallel}, nil, nil)

	a.Register(staticProvider("low", nil,
		Result{Title: "low-1", URL: "https://example.com/shared"},
		Result{Title: "low-2", URL: "https://example.com/low"},
	), ProviderConfig{Enabled: true, Priority: 1})
	a.Register(staticProvider("high", nil,
		Result{Title: "high-1", URL: "https://example.com/shared"},
	), ProviderConfig{Enabled: true, Priority: 9})

	results, err := a.Search(context.Background(), "dedup check", 10)
	require.NoError(t, err)

	// The shared URL collapses to one entry attributed to the
	// higher-priority provider.
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Provider)
	assert.Equal(t, "high-1", results[0].Title)
	assert.Equal(t, "low-2", results[1].Title)
}

func TestAggregator_AllModeConcatenatesSuccesses(t *testing.T) {
	a := NewAggregator(Options{Mode: ModeAll}, nil, nil)
	a.Register(failingProvider("broken", nil), ProviderConfig{Enabled: true, Priority: 100})
	a.Register(staticProvider("one", nil, Result{URL: "https://a.example.com/x"}),
		ProviderConfig{Enabled: true, Priority: 50})
	a.Register(staticProvider("two", nil, Result{URL: "https://b.example.com/y"}),
		ProviderConfig{Enabled: true, Priority: 10})

	results, err := a.Search(context.Background(), "breadth", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "one", results[0].Provider)
	assert.Equal(t, "two", results[1].Provider)
}

func TestAggregator_DisabledProvidersSkipped(t *testing.T) {
	a := NewAggregator(Options{Mode: ModePriority}, nil, nil)
	var calls int32
	a.Register(staticProvider("off", &calls, Result{URL: "https://example.com/off"}),
		ProviderConfig{Enabled: false, Priority: 100})
	a.Register(staticProvider("on", nil, Result{URL: "https://example.com/on"}),
		ProviderConfig{Enabled: true, Priority: 1})

	results, err := a.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestAggregator_QuotaExhaustionSkipsProvider(t *testing.T) {
	a := NewAggregator(Options{Mode: ModePriority}, nil, nil)
	var primary, fallback int32
	a.Register(staticProvider("limited", &primary, Result{URL: "https://example.com/limited"}),
		ProviderConfig{Enabled: true, Priority: 100, RateLimit: 0.001, Burst: 1})
	a.Register(staticProvider("backup", &fallback, Result{URL: "https://example.com/backup"}),
		ProviderConfig{Enabled: true, Priority: 1})

	first, err := a.Search(context.Background(), "q1", 5)
	require.NoError(t, err)
	assert.Equal(t, "limited", first[0].Provider)

	// Burst spent: the limited provider is skipped like a failure.
	second, err := a.Search(context.Background(), "q2", 5)
	require.NoError(t, err)
	assert.Equal(t, "backup", second[0].Provider)
	assert.EqualValues(t, 1, atomic.LoadInt32(&primary))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fallback))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			for k, v := range labels {
				found := false
				for _, pair := range m.GetLabel() {
					if pair.GetName() == k && pair.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return float64(m.GetHistogram().GetSampleCount())
		}
	}
	return 0
}

func TestAggregator_CollectorCountsCacheAndProviderOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("swarmflow", reg, nil)

	a := NewAggregator(Options{
		Mode:         ModePriority,
		CacheEnabled: true,
		CacheTTL:     time.Minute,
	}, NewMemoryStore(), nil).WithCollector(collector)

	a.Register(failingProvider("alpha", nil), ProviderConfig{Enabled: true, Priority: 100})
	a.Register(staticProvider("beta", nil,
		Result{Title: "one", URL: "https://example.com/1"},
	), ProviderConfig{Enabled: true, Priority: 50})

	_, err := a.Search(context.Background(), "sync engines", 5)
	require.NoError(t, err)

	// First pass: one cold cache lookup, a failed provider, a successful one.
	assert.Equal(t, 1.0, counterValue(t, reg, "swarmflow_search_cache_misses_total", nil))
	assert.Equal(t, 0.0, counterValue(t, reg, "swarmflow_search_cache_hits_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "swarmflow_search_provider_failures_total",
		map[string]string{"provider": "alpha"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "swarmflow_search_provider_duration_seconds",
		map[string]string{"provider": "alpha"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "swarmflow_search_provider_duration_seconds",
		map[string]string{"provider": "beta"}))

	_, err = a.Search(context.Background(), "sync engines", 5)
	require.NoError(t, err)

	// Second pass is served from cache, so no new provider observations.
	assert.Equal(t, 1.0, counterValue(t, reg, "swarmflow_search_cache_hits_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "swarmflow_search_cache_misses_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "swarmflow_search_provider_duration_seconds",
		map[string]string{"provider": "beta"}))
}

func TestAggregator_CacheHitBypassesProviders(t *testing.T) {
	store := NewMemoryStore()
	a := NewAggregator(Options{Mode: ModePriority, CacheEnabled: true, CacheTTL: time.Minute}, store, nil)

	var calls int32
	a.Register(staticProvider("alpha", &calls, Result{URL: "https://example.com/a"}),
		ProviderConfig{Enabled: true, Priority: 1})

	_, err := a.Search(context.Background(), "Cached  Query", 5)
	require.NoError(t, err)
	// Whitespace and case normalize to the same key.
	_, err = a.Search(context.Background(), "cached query", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAggregator_GlobalResultCap(t *testing.T) {
	a := NewAggregator(Options{Mode: ModePriority, MaxResults: 2}, nil, nil)
	a.Register(staticProvider("alpha", nil,
		Result{URL: "https://example.com/1"},
		Result{URL: "https://example.com/2"},
		Result{URL: "https://example.com/3"},
	), ProviderConfig{Enabled: true, Priority: 1})

	results, err := a.Search(context.Background(), "cap", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		a, b Result
		same bool
	}{
		{
			name: "scheme and tracking params ignored",
			a:    Result{URL: "http://Example.com/page?utm_source=x&id=7"},
			b:    Result{URL: "https://example.com/page?id=7"},
			same: true,
		},
		{
			name: "fragment and trailing slash ignored",
			a:    Result{URL: "https://example.com/docs/#intro"},
			b:    Result{URL: "https://example.com/docs"},
			same: true,
		},
		{
			name: "click ids stripped",
			a:    Result{URL: "https://example.com/p?fbclid=abc&gclid=def"},
			b:    Result{URL: "https://example.com/p"},
			same: true,
		},
		{
			name: "different paths stay distinct",
			a:    Result{URL: "https://example.com/a"},
			b:    Result{URL: "https://example.com/b"},
			same: false,
		},
		{
			name: "no url falls back to title",
			a:    Result{Title: "Same Story"},
			b:    Result{Title: "same story"},
			same: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, canonicalize(tt.a), canonicalize(tt.b))
			} else {
				assert.NotEqual(t, canonicalize(tt.a), canonicalize(tt.b))
			}
		})
	}
}
