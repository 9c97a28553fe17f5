package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss marks an absent or expired cache entry.
var ErrCacheMiss = errors.New("cache miss")

// Store is the cache behind the aggregator. Implementations must be safe
// for concurrent use; TTL eviction may be lazy.
type Store interface {
	Get(ctx context.Context, key string) ([]Result, error)
	Set(ctx context.Context, key string, results []Result, ttl time.Duration) error
}

type memoryEntry struct {
	results   []Result
	expiresAt time.Time
}

// MemoryStore is the in-process cache. Expired entries are dropped on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]Result, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if m.now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}
	out := make([]Result, len(entry.results))
	copy(out, entry.results)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, results []Result, ttl time.Duration) error {
	stored := make([]Result, len(results))
	copy(stored, results)
	m.mu.Lock()
	m.entries[key] = memoryEntry{results: stored, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Len reports the number of cached entries, counting expired ones not yet
// evicted.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RedisStore keeps result sets in redis as JSON so concurrent runs share
// one cache.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "swarmflow:search:"}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]Result, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var results []Result
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("redis entry decode: %w", err)
	}
	return results, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, results []Result, ttl time.Duration) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("redis entry encode: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
