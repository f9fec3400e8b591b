// Package cache memoizes expensive discovery outputs with independent
// per-surface freshness windows. The cache is an optimization only: every
// store failure is treated as a miss and the engine recomputes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/discovery/internal/logger"
)

// Store is the backing key-value collaborator. Both operations are
// idempotent; a write replaces the entry atomically.
type Store interface {
	// Get returns the payload for key, or found=false when absent or
	// expired.
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
	// Set writes payload under key with the given time-to-live.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// RedisStore backs the cache with Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client as a cache store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get fetches a payload from Redis.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes a payload to Redis. SET with expiry replaces the value
// atomically, so readers never observe a partial entry.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore is an in-process store used when Redis is not configured and
// in tests. Reads take the read lock only; a write swaps the entry in one
// assignment.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns the payload for key when present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.payload, true, nil
}

// Set stores the payload under key with the given ttl.
func (s *MemoryStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{payload: payload, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Manager is the per-surface read-through cache. A nil store disables
// caching entirely.
type Manager struct {
	store  Store
	logger logger.Logger
}

// NewManager creates a cache manager over the given store. Pass a nil store
// to run without caching.
func NewManager(store Store, log logger.Logger) *Manager {
	return &Manager{store: store, logger: log}
}

// GetJSON reads key and unmarshals it into dest. Any store error is logged
// and reported as a miss.
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) bool {
	if m.store == nil {
		return false
	}
	payload, found, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed, treating as miss",
			logger.String("key", key),
			logger.Error(err),
		)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		m.logger.Warn("cache entry undecodable, treating as miss",
			logger.String("key", key),
			logger.Error(err),
		)
		return false
	}
	return true
}

// SetJSON marshals value and writes it under key. Write failures are logged
// and swallowed; the response was already computed.
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if m.store == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("cache payload not marshalable",
			logger.String("key", key),
			logger.Error(err),
		)
		return
	}
	if err := m.store.Set(ctx, key, payload, ttl); err != nil {
		m.logger.Warn("cache write failed",
			logger.String("key", key),
			logger.Error(err),
		)
	}
}

// Surface key builders. Each surface owns its key space; only the producing
// component writes under it.

// SearchKey keys a search response by query, user, and page window.
func SearchKey(query, userID string, page, size int) string {
	return fmt.Sprintf("discovery:search:%s:%s:%d:%d", userID, query, page, size)
}

// TrendingKey keys the trending list.
func TrendingKey() string {
	return "discovery:trending:top"
}

// RecommendKey keys a user's recommendation list.
func RecommendKey(userID string) string {
	return "discovery:recommend:" + userID
}

// ExploreKey keys one explore section for a user context.
func ExploreKey(section, userID string) string {
	return fmt.Sprintf("discovery:explore:%s:%s", section, userID)
}
