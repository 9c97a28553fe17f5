// Package search fans one query out to independent providers under a
// configurable aggregation policy, deduplicates by canonical URL, and
// caches merged result sets with a TTL.
package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Result is one entry returned by a provider. Provider is filled in by the
// aggregator so merged sets keep their attribution.
type Result struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Provider is the single contract every search backend implements.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// ProviderFunc adapts a closure to the Provider interface.
type ProviderFunc struct {
	ProviderName string
	SearchFunc   func(ctx context.Context, query string, maxResults int) ([]Result, error)
}

func (f *ProviderFunc) Name() string { return f.ProviderName }

func (f *ProviderFunc) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if f.SearchFunc == nil {
		return nil, nil
	}
	return f.SearchFunc(ctx, query, maxResults)
}

// ProviderConfig tunes one registered provider. A zero RateLimit means
// unlimited; a provider over its limit is skipped the same way a failing
// one is.
type ProviderConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Priority  int           `json:"priority" yaml:"priority"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	RateLimit rate.Limit    `json:"rate_limit" yaml:"rate_limit"`
	Burst     int           `json:"burst" yaml:"burst"`
}

type registeredProvider struct {
	provider Provider
	cfg      ProviderConfig
	limiter  *rate.Limiter
}

func (r *registeredProvider) overQuota() bool {
	return r.limiter != nil && !r.limiter.Allow()
}
