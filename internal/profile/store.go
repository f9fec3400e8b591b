// Package profile reads user profile snapshots. Profiles are written by
// the profile subsystem; the discovery engine only consumes them.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/discovery/internal/domain"
)

// Store serves user profile snapshots. A missing profile returns (nil,
// nil): anonymous and new users are normal, not errors.
type Store interface {
	Profile(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// RedisStore reads JSON profile snapshots from Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed profile store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func profileKey(userID string) string {
	return "discovery:profile:" + userID
}

// Profile fetches and decodes one snapshot.
func (s *RedisStore) Profile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	raw, err := s.client.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", userID, err)
	}
	var p domain.UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	return &p, nil
}

// MemoryStore is an in-process profile store for tests and for running
// without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*domain.UserProfile
}

// NewMemoryStore creates an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*domain.UserProfile)}
}

// Put stores a snapshot.
func (s *MemoryStore) Put(p *domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// Profile returns the stored snapshot, or nil when absent.
func (s *MemoryStore) Profile(_ context.Context, userID string) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[userID], nil
}
