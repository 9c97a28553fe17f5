package search

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/types"
)

// Mode selects the aggregation policy.
type Mode string

const (
	// ModePriority tries providers best first and stops at the first success.
	ModePriority Mode = "priority"
	// ModeParallel queries every enabled provider concurrently and merges.
	ModeParallel Mode = "parallel"
	// ModeAll queries every provider sequentially and concatenates successes.
	ModeAll Mode = "all"
)

// ErrNoResults is wrapped into the typed failure returned when every
// provider fails or is skipped; check with errors.Is.
var ErrNoResults = errors.New("no provider returned results")

// Options tunes the aggregator. Zero values fall back to the defaults below.
type Options struct {
	Mode            Mode
	MaxResults      int           // global cap on the merged set
	ProviderTimeout time.Duration // per-provider deadline
	CacheEnabled    bool
	CacheTTL        time.Duration
}

const (
	defaultMaxResults      = 20
	defaultProviderTimeout = 10 * time.Second
	defaultCacheTTL        = 15 * time.Minute
)

// Aggregator fans queries out to the registered providers.
type Aggregator struct {
	mu        sync.RWMutex
	providers []*registeredProvider
	opts      Options
	store     Store
	collector *metrics.Collector
	logger    *zap.Logger
}

func NewAggregator(opts Options, store Store, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = ModePriority
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.CacheEnabled && store == nil {
		store = NewMemoryStore()
	}
	return &Aggregator{
		opts:   opts,
		store:  store,
		logger: logger.With(zap.String("component", "search_aggregator")),
	}
}

// WithCollector installs the metrics collector. A nil collector disables
// cache and provider metrics.
func (a *Aggregator) WithCollector(c *metrics.Collector) *Aggregator {
	a.collector = c
	return a
}

// Register adds a provider. Registration order breaks priority ties.
func (a *Aggregator) Register(p Provider, cfg ProviderConfig) {
	entry := &registeredProvider{provider: p, cfg: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		entry.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	a.mu.Lock()
	a.providers = append(a.providers, entry)
	sort.SliceStable(a.providers, func(i, j int) bool {
		return a.providers[i].cfg.Priority > a.providers[j].cfg.Priority
	})
	a.mu.Unlock()
}

// Search runs the query under the configured mode. A cache hit bypasses
// every provider call. When no provider succeeds the error carries the
// ALL_PROVIDERS_FAILED code and wraps ErrNoResults.
func (a *Aggregator) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 || maxResults > a.opts.MaxResults {
		maxResults = a.opts.MaxResults
	}
	enabled := a.enabledProviders()
	if len(enabled) == 0 {
		return nil, types.NewError(types.ErrAllProvidersFailed, "no providers enabled").WithCause(ErrNoResults)
	}

	key := a.cacheKey(query, enabled)
	if a.opts.CacheEnabled {
		if cached, err := a.store.Get(ctx, key); err == nil {
			a.logger.Debug("cache hit", zap.String("query", query))
			if a.collector != nil {
				a.collector.CacheHit()
			}
			return capResults(cached, maxResults), nil
		}
		if a.collector != nil {
			a.collector.CacheMiss()
		}
	}

	var merged []Result
	switch a.opts.Mode {
	case ModeParallel:
		merged = a.searchParallel(ctx, enabled, query, maxResults)
	case ModeAll:
		merged = a.searchSequential(ctx, enabled, query, maxResults, false)
	default:
		merged = a.searchSequential(ctx, enabled, query, maxResults, true)
	}

	if len(merged) == 0 {
		return nil, types.NewError(types.ErrAllProvidersFailed,
			"all providers failed for query").WithRetryable(true).WithCause(ErrNoResults)
	}

	merged = capResults(dedupe(merged), maxResults)
	if a.opts.CacheEnabled {
		if err := a.store.Set(ctx, key, merged, a.opts.CacheTTL); err != nil {
			a.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return merged, nil
}

func (a *Aggregator) enabledProviders() []*registeredProvider {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*registeredProvider, 0, len(a.providers))
	for _, p := range a.providers {
		if p.cfg.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// searchSequential walks providers in priority order. With firstWins set it
// is the priority policy; otherwise every provider contributes.
func (a *Aggregator) searchSequential(ctx context.Context, providers []*registeredProvider, query string, maxResults int, firstWins bool) []Result {
	var merged []Result
	for _, p := range providers {
		results, ok := a.queryOne(ctx, p, query, maxResults)
		if !ok {
			continue
		}
		merged = append(merged, results...)
		if firstWins {
			return merged
		}
	}
	return merged
}

func (a *Aggregator) searchParallel(ctx context.Context, providers []*registeredProvider, query string, maxResults int) []Result {
	perProvider := make([][]Result, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			if results, ok := a.queryOne(gctx, p, query, maxResults); ok {
				perProvider[i] = results
			}
			return nil
		})
	}
	// Workers never return errors; failures degrade to empty slots.
	_ = g.Wait()

	var merged []Result
	for _, results := range perProvider {
		merged = append(merged, results...)
	}
	return merged
}

// queryOne runs a single provider under its timeout and quota. Any failure
// is logged and reported as a skip.
func (a *Aggregator) queryOne(ctx context.Context, p *registeredProvider, query string, maxResults int) ([]Result, bool) {
	name := p.provider.Name()
	if p.overQuota() {
		a.logger.Debug("provider over quota, skipping", zap.String("provider", name))
		if a.collector != nil {
			a.collector.ProviderFailure(name)
		}
		return nil, false
	}

	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = a.opts.ProviderTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	results, err := p.provider.Search(pctx, query, maxResults)
	if a.collector != nil {
		a.collector.ObserveProvider(name, time.Since(started))
	}
	if err != nil {
		a.logger.Warn("provider failed",
			zap.String("provider", name),
			zap.String("query", query),
			zap.Error(err),
		)
		if a.collector != nil {
			a.collector.ProviderFailure(name)
		}
		return nil, false
	}
	if len(results) == 0 {
		return nil, false
	}
	for i := range results {
		results[i].Provider = name
	}
	return results, true
}

func (a *Aggregator) cacheKey(query string, providers []*registeredProvider) string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.provider.Name())
	}
	sort.Strings(names)
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return normalized + "|" + strings.Join(names, ",") + "|" + string(a.opts.Mode)
}

func capResults(results []Result, maxResults int) []Result {
	if len(results) > maxResults {
		return results[:maxResults]
	}
	return results
}

// dedupe keeps the first occurrence of each canonical identity, which under
// the priority-ordered merges favors the higher-priority provider.
func dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		key := canonicalize(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// canonicalize normalizes a result's identity: https scheme, lowercase
// host, no fragment, tracking parameters stripped. Unparseable URLs fall
// back to the lowercased raw URL or title.
func canonicalize(r Result) string {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return "title:" + strings.ToLower(strings.TrimSpace(r.Title))
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if strings.HasPrefix(param, "utm_") || param == "fbclid" || param == "gclid" {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
