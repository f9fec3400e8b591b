package trending

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/discovery/internal/domain"
)

// Interaction kinds carrying amplification weight.
const (
	KindShare        = "share"
	KindMention      = "mention"
	KindCrossSurface = "cross_surface"
)

// bucketSize is the granularity of the interaction counters. Window sums
// are assembled from hour buckets.
const bucketSize = time.Hour

// InteractionStore accumulates engagement events and serves windowed counts.
// Writes are at-least-once; counters are approximate by design.
type InteractionStore interface {
	// Record ingests one interaction event.
	Record(ctx context.Context, ev domain.Interaction) error
	// Counts returns the current-window counts and the equal-length
	// historical baseline for one item.
	Counts(ctx context.Context, contentID string, window time.Duration) (domain.InteractionCounts, error)
	// ActiveIDs lists items with any interaction inside the lookback
	// horizon.
	ActiveIDs(ctx context.Context, lookback time.Duration) ([]string, error)
	// RecordTopic ingests one interaction attributed to a tag.
	RecordTopic(ctx context.Context, tag string, at time.Time) error
	// SurgingTopics lists tags whose current-window count exceeds factor
	// times their baseline.
	SurgingTopics(ctx context.Context, window time.Duration, factor float64) ([]string, error)
}

const (
	redisActiveKey      = "discovery:ix:active"
	redisActiveTopicKey = "discovery:ix:topics"
)

// RedisInteractionStore keeps hour-bucketed counters in Redis.
type RedisInteractionStore struct {
	client *redis.Client
	// retention bounds counter lifetime; buckets expire on their own.
	retention time.Duration
}

// NewRedisInteractionStore creates a Redis-backed interaction store.
// Counters are retained for the given duration (at least two windows plus
// the lookback horizon).
func NewRedisInteractionStore(client *redis.Client, retention time.Duration) *RedisInteractionStore {
	return &RedisInteractionStore{client: client, retention: retention}
}

func bucketOf(t time.Time) int64 {
	return t.Truncate(bucketSize).Unix()
}

func counterKey(kind, id string, bucket int64) string {
	return fmt.Sprintf("discovery:ix:%s:%s:%d", kind, id, bucket)
}

func topicKey(tag string, bucket int64) string {
	return fmt.Sprintf("discovery:ix:topic:%s:%d", tag, bucket)
}

// Record increments the item's total counter and, for amplification kinds,
// the per-kind counter, and refreshes the active set.
func (s *RedisInteractionStore) Record(ctx context.Context, ev domain.Interaction) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	bucket := bucketOf(at)

	pipe := s.client.TxPipeline()
	total := counterKey("all", ev.ContentID, bucket)
	pipe.Incr(ctx, total)
	pipe.Expire(ctx, total, s.retention)
	switch ev.Kind {
	case KindShare, KindMention, KindCrossSurface:
		key := counterKey(ev.Kind, ev.ContentID, bucket)
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.retention)
	}
	pipe.ZAdd(ctx, redisActiveKey, redis.Z{Score: float64(at.Unix()), Member: ev.ContentID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record interaction %s: %w", ev.ContentID, err)
	}
	return nil
}

// Counts sums the item's buckets over the current window and the preceding
// equal-length baseline window.
func (s *RedisInteractionStore) Counts(ctx context.Context, contentID string, window time.Duration) (domain.InteractionCounts, error) {
	now := time.Now()
	counts := domain.InteractionCounts{}

	var err error
	counts.Window, err = s.sumRange(ctx, "all", contentID, now.Add(-window), now)
	if err != nil {
		return counts, err
	}
	counts.Baseline, err = s.sumRange(ctx, "all", contentID, now.Add(-2*window), now.Add(-window))
	if err != nil {
		return counts, err
	}
	counts.Shares, err = s.sumRange(ctx, KindShare, contentID, now.Add(-window), now)
	if err != nil {
		return counts, err
	}
	counts.Mentions, err = s.sumRange(ctx, KindMention, contentID, now.Add(-window), now)
	if err != nil {
		return counts, err
	}
	counts.CrossSurface, err = s.sumRange(ctx, KindCrossSurface, contentID, now.Add(-window), now)
	if err != nil {
		return counts, err
	}
	return counts, nil
}

func (s *RedisInteractionStore) sumRange(ctx context.Context, kind, id string, from, to time.Time) (int64, error) {
	keys := bucketKeys(func(bucket int64) string { return counterKey(kind, id, bucket) }, from, to)
	return s.sumKeys(ctx, keys)
}

func (s *RedisInteractionStore) sumKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("read counters: %w", err)
	}
	var sum int64
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			sum += n
		}
	}
	return sum, nil
}

func bucketKeys(keyFn func(int64) string, from, to time.Time) []string {
	var keys []string
	for t := from.Truncate(bucketSize); !t.After(to); t = t.Add(bucketSize) {
		keys = append(keys, keyFn(t.Unix()))
	}
	return keys
}

// ActiveIDs lists items with any interaction inside the lookback horizon.
func (s *RedisInteractionStore) ActiveIDs(ctx context.Context, lookback time.Duration) ([]string, error) {
	min := strconv.FormatInt(time.Now().Add(-lookback).Unix(), 10)
	ids, err := s.client.ZRangeByScore(ctx, redisActiveKey, &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read active items: %w", err)
	}
	return ids, nil
}

// RecordTopic increments a tag's bucket counter and refreshes the active
// topic set.
func (s *RedisInteractionStore) RecordTopic(ctx context.Context, tag string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	key := topicKey(tag, bucketOf(at))

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)
	pipe.ZAdd(ctx, redisActiveTopicKey, redis.Z{Score: float64(at.Unix()), Member: tag})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record topic %s: %w", tag, err)
	}
	return nil
}

// SurgingTopics lists tags whose current-window count exceeds factor times
// their baseline window count.
func (s *RedisInteractionStore) SurgingTopics(ctx context.Context, window time.Duration, factor float64) ([]string, error) {
	now := time.Now()
	tags, err := s.client.ZRangeByScore(ctx, redisActiveTopicKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(now.Add(-2*window).Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read active topics: %w", err)
	}

	var surging []string
	for _, tag := range tags {
		current, err := s.sumKeys(ctx, bucketKeys(func(b int64) string { return topicKey(tag, b) }, now.Add(-window), now))
		if err != nil {
			return nil, err
		}
		baseline, err := s.sumKeys(ctx, bucketKeys(func(b int64) string { return topicKey(tag, b) }, now.Add(-2*window), now.Add(-window)))
		if err != nil {
			return nil, err
		}
		if isSurging(current, baseline, factor) {
			surging = append(surging, tag)
		}
	}
	return surging, nil
}

// isSurging applies the growth test. A topic with no baseline surges on any
// meaningful current activity.
func isSurging(current, baseline int64, factor float64) bool {
	if baseline == 0 {
		return current > 1
	}
	return float64(current) > factor*float64(baseline)
}

// MemoryInteractionStore is an in-process interaction store for tests and
// for running without Redis.
type MemoryInteractionStore struct {
	mu         sync.RWMutex
	counters   map[string]int64 // counterKey -> count
	topics     map[string]int64 // topicKey -> count
	lastActive map[string]time.Time
	lastTopic  map[string]time.Time
	now        func() time.Time
}

// NewMemoryInteractionStore creates an empty in-memory interaction store.
func NewMemoryInteractionStore() *MemoryInteractionStore {
	return &MemoryInteractionStore{
		counters:   make(map[string]int64),
		topics:     make(map[string]int64),
		lastActive: make(map[string]time.Time),
		lastTopic:  make(map[string]time.Time),
		now:        time.Now,
	}
}

// SetClock overrides the store's clock. Test hook.
func (s *MemoryInteractionStore) SetClock(now func() time.Time) {
	s.now = now
}

// Record ingests one interaction event.
func (s *MemoryInteractionStore) Record(_ context.Context, ev domain.Interaction) error {
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	bucket := bucketOf(at)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey("all", ev.ContentID, bucket)]++
	switch ev.Kind {
	case KindShare, KindMention, KindCrossSurface:
		s.counters[counterKey(ev.Kind, ev.ContentID, bucket)]++
	}
	if at.After(s.lastActive[ev.ContentID]) {
		s.lastActive[ev.ContentID] = at
	}
	return nil
}

// Counts returns windowed counts for one item.
func (s *MemoryInteractionStore) Counts(_ context.Context, contentID string, window time.Duration) (domain.InteractionCounts, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := func(kind string, from, to time.Time) int64 {
		var total int64
		for _, key := range bucketKeys(func(b int64) string { return counterKey(kind, contentID, b) }, from, to) {
			total += s.counters[key]
		}
		return total
	}

	return domain.InteractionCounts{
		Window:       sum("all", now.Add(-window), now),
		Baseline:     sum("all", now.Add(-2*window), now.Add(-window)),
		Shares:       sum(KindShare, now.Add(-window), now),
		Mentions:     sum(KindMention, now.Add(-window), now),
		CrossSurface: sum(KindCrossSurface, now.Add(-window), now),
	}, nil
}

// ActiveIDs lists items with any interaction inside the lookback horizon.
func (s *MemoryInteractionStore) ActiveIDs(_ context.Context, lookback time.Duration) ([]string, error) {
	cutoff := s.now().Add(-lookback)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, last := range s.lastActive {
		if !last.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// RecordTopic ingests one interaction attributed to a tag.
func (s *MemoryInteractionStore) RecordTopic(_ context.Context, tag string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topicKey(tag, bucketOf(at))]++
	if at.After(s.lastTopic[tag]) {
		s.lastTopic[tag] = at
	}
	return nil
}

// SurgingTopics lists tags growing faster than factor times baseline.
func (s *MemoryInteractionStore) SurgingTopics(_ context.Context, window time.Duration, factor float64) ([]string, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := func(tag string, from, to time.Time) int64 {
		var total int64
		for _, key := range bucketKeys(func(b int64) string { return topicKey(tag, b) }, from, to) {
			total += s.topics[key]
		}
		return total
	}

	var surging []string
	for tag := range s.lastTopic {
		current := sum(tag, now.Add(-window), now)
		baseline := sum(tag, now.Add(-2*window), now.Add(-window))
		if isSurging(current, baseline, factor) {
			surging = append(surging, tag)
		}
	}
	sort.Strings(surging)
	return surging, nil
}
