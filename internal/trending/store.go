// Package trending computes decayed trending scores from interaction
// velocity, amplification, quality, diversity, and compliance signals. Two
// independent producers write the record store: the periodic batch pass and
// event-triggered targeted recomputes. The store resolves their race by
// explicit computed-at comparison, never by locking across jobs.
package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/discovery/internal/domain"
)

// RecordStore holds the current trending record per content item. Writes
// follow last-computed-wins: a write carrying an older ComputedAt than the
// stored record is discarded.
type RecordStore interface {
	// Put stores rec unless a newer record for the same item exists.
	Put(ctx context.Context, rec domain.TrendingRecord) error
	// Delete removes the record for contentID unless the stored record is
	// newer than supersededAt.
	Delete(ctx context.Context, contentID string, supersededAt domain.TrendingRecord) error
	// Top returns the n highest-scoring records, descending, ties broken by
	// content identifier.
	Top(ctx context.Context, n int) ([]domain.TrendingRecord, error)
	// Get returns the record for contentID, or nil when absent.
	Get(ctx context.Context, contentID string) (*domain.TrendingRecord, error)
}

const (
	redisRecordsKey = "discovery:trending:records"
	redisScoresKey  = "discovery:trending:scores"
)

// RedisRecordStore backs the trending records with a Redis hash plus a
// sorted set over the combined scores.
type RedisRecordStore struct {
	client *redis.Client
}

// NewRedisRecordStore creates a Redis-backed record store.
func NewRedisRecordStore(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

// Put stores rec with last-computed-wins semantics. The read-compare-write
// race window is acceptable: both writers settle on the newer record on the
// next pass, and records are recomputed continuously.
func (s *RedisRecordStore) Put(ctx context.Context, rec domain.TrendingRecord) error {
	existing, err := s.Get(ctx, rec.ContentID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ComputedAt.After(rec.ComputedAt) {
		return nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trending record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, redisRecordsKey, rec.ContentID, payload)
	pipe.ZAdd(ctx, redisScoresKey, redis.Z{Score: rec.Score, Member: rec.ContentID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write trending record %s: %w", rec.ContentID, err)
	}
	return nil
}

// Delete removes the record unless a newer one has landed since.
func (s *RedisRecordStore) Delete(ctx context.Context, contentID string, supersededAt domain.TrendingRecord) error {
	existing, err := s.Get(ctx, contentID)
	if err != nil {
		return err
	}
	if existing == nil || existing.ComputedAt.After(supersededAt.ComputedAt) {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, redisRecordsKey, contentID)
	pipe.ZRem(ctx, redisScoresKey, contentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete trending record %s: %w", contentID, err)
	}
	return nil
}

// Get returns the stored record for contentID.
func (s *RedisRecordStore) Get(ctx context.Context, contentID string) (*domain.TrendingRecord, error) {
	payload, err := s.client.HGet(ctx, redisRecordsKey, contentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trending record %s: %w", contentID, err)
	}
	var rec domain.TrendingRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode trending record %s: %w", contentID, err)
	}
	return &rec, nil
}

// Top returns the n highest-scoring records.
func (s *RedisRecordStore) Top(ctx context.Context, n int) ([]domain.TrendingRecord, error) {
	ids, err := s.client.ZRevRange(ctx, redisScoresKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read trending top: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	payloads, err := s.client.HMGet(ctx, redisRecordsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read trending records: %w", err)
	}

	records := make([]domain.TrendingRecord, 0, len(payloads))
	for _, p := range payloads {
		str, ok := p.(string)
		if !ok {
			continue
		}
		var rec domain.TrendingRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	sortRecords(records)
	return records, nil
}

// MemoryRecordStore is an in-process record store for tests and for running
// without Redis.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.TrendingRecord
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]domain.TrendingRecord)}
}

// Put stores rec with last-computed-wins semantics.
func (s *MemoryRecordStore) Put(_ context.Context, rec domain.TrendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.ContentID]; ok && existing.ComputedAt.After(rec.ComputedAt) {
		return nil
	}
	s.records[rec.ContentID] = rec
	return nil
}

// Delete removes the record unless a newer one has landed since.
func (s *MemoryRecordStore) Delete(_ context.Context, contentID string, supersededAt domain.TrendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[contentID]; ok && !existing.ComputedAt.After(supersededAt.ComputedAt) {
		delete(s.records, contentID)
	}
	return nil
}

// Get returns the stored record for contentID.
func (s *MemoryRecordStore) Get(_ context.Context, contentID string) (*domain.TrendingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[contentID]; ok {
		copied := rec
		return &copied, nil
	}
	return nil, nil
}

// Top returns the n highest-scoring records.
func (s *MemoryRecordStore) Top(_ context.Context, n int) ([]domain.TrendingRecord, error) {
	s.mu.RLock()
	records := make([]domain.TrendingRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sortRecords(records)
	if n < len(records) {
		records = records[:n]
	}
	return records, nil
}

func sortRecords(records []domain.TrendingRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].ContentID < records[j].ContentID
	})
}
