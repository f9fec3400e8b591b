package recommend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/trending"
)

// Source names. Blending weights are configured per name.
const (
	SourceContent       = "content"
	SourceCollaborative = "collaborative"
	SourceTrending      = "trending"
	SourceLocation      = "location"
	SourceSerendipity   = "serendipity"
)

// sourceFanout caps how many candidates one source may contribute before
// blending.
const sourceFanout = 50

// Source produces scored candidates for one recommendation strategy.
// Scores are in [0,1]; an empty result is normal for users the strategy
// has nothing for.
type Source interface {
	Name() string
	Candidates(ctx context.Context, user domain.UserContext) (map[string]float64, error)
}

// ContentBasedSource scores items by cosine similarity between the user's
// tag-affinity vector and each item's weighted tag vector.
type ContentBasedSource struct {
	catalog       domain.Catalog
	minSimilarity float64
	tagDepthDecay float64
	topTags       int
}

// NewContentBasedSource creates the content-similarity source.
func NewContentBasedSource(catalog domain.Catalog, cfg config.RecommendConfig) *ContentBasedSource {
	return &ContentBasedSource{
		catalog:       catalog,
		minSimilarity: cfg.MinSimilarity,
		tagDepthDecay: cfg.TagDepthDecay,
		topTags:       5,
	}
}

func (s *ContentBasedSource) Name() string { return SourceContent }

// Candidates pulls items carrying the user's strongest tags and keeps
// those whose tag vector is similar enough to the affinity vector.
func (s *ContentBasedSource) Candidates(ctx context.Context, user domain.UserContext) (map[string]float64, error) {
	if user.Profile == nil || len(user.Profile.TagAffinities) == 0 {
		return nil, nil
	}

	seen := make(map[string]*domain.ContentItem)
	for _, tag := range user.Profile.TopAffinityTags(s.topTags) {
		items, err := s.catalog.ItemsByTag(ctx, tag, sourceFanout)
		if err != nil {
			return nil, fmt.Errorf("items by tag %q: %w", tag, err)
		}
		for _, item := range items {
			seen[item.ID] = item
		}
	}

	scores := make(map[string]float64)
	for id, item := range seen {
		sim := domain.Cosine(user.Profile.TagAffinities, item.TagVector(s.tagDepthDecay))
		if sim >= s.minSimilarity {
			scores[id] = sim
		}
	}
	return scores, nil
}

// CollaborativeProvider serves precomputed co-engagement scores: items
// engaged by users with similar donation and engagement patterns. The
// scores are produced offline and read here.
type CollaborativeProvider interface {
	ItemsForUser(ctx context.Context, userID string, limit int) (map[string]float64, error)
}

// RedisCollaborativeStore reads co-engagement scores from a per-user Redis
// hash written by the offline similarity job.
type RedisCollaborativeStore struct {
	client *redis.Client
}

// NewRedisCollaborativeStore creates a Redis-backed collaborative provider.
func NewRedisCollaborativeStore(client *redis.Client) *RedisCollaborativeStore {
	return &RedisCollaborativeStore{client: client}
}

func collabKey(userID string) string {
	return "discovery:collab:" + userID
}

// ItemsForUser reads the user's co-engagement hash. A missing hash is an
// empty result, not an error.
func (s *RedisCollaborativeStore) ItemsForUser(ctx context.Context, userID string, limit int) (map[string]float64, error) {
	raw, err := s.client.HGetAll(ctx, collabKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read collaborative scores for %s: %w", userID, err)
	}
	scores := make(map[string]float64, len(raw))
	for id, v := range raw {
		if len(scores) >= limit {
			break
		}
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		scores[id] = score
	}
	return scores, nil
}

// CollaborativeSource surfaces items engaged by similar users.
type CollaborativeSource struct {
	provider CollaborativeProvider
}

// NewCollaborativeSource creates the collaborative source.
func NewCollaborativeSource(provider CollaborativeProvider) *CollaborativeSource {
	return &CollaborativeSource{provider: provider}
}

func (s *CollaborativeSource) Name() string { return SourceCollaborative }

func (s *CollaborativeSource) Candidates(ctx context.Context, user domain.UserContext) (map[string]float64, error) {
	if user.UserID == "" {
		return nil, nil
	}
	return s.provider.ItemsForUser(ctx, user.UserID, sourceFanout)
}

// TrendingSource surfaces the current trending leaderboard. Trending
// scores are already normalized to [0,1].
type TrendingSource struct {
	records trending.RecordStore
}

// NewTrendingSource creates the trending source.
func NewTrendingSource(records trending.RecordStore) *TrendingSource {
	return &TrendingSource{records: records}
}

func (s *TrendingSource) Name() string { return SourceTrending }

func (s *TrendingSource) Candidates(ctx context.Context, _ domain.UserContext) (map[string]float64, error) {
	records, err := s.records.Top(ctx, sourceFanout)
	if err != nil {
		return nil, fmt.Errorf("read trending records: %w", err)
	}
	scores := make(map[string]float64, len(records))
	for _, rec := range records {
		scores[rec.ContentID] = rec.Score
	}
	return scores, nil
}

// LocationSource surfaces content near the user, scored by rank decay:
// the catalog returns nearest first, and score falls linearly with
// position.
type LocationSource struct {
	catalog  domain.Catalog
	radiusKm float64
}

// NewLocationSource creates the proximity source.
func NewLocationSource(catalog domain.Catalog, radiusKm float64) *LocationSource {
	return &LocationSource{catalog: catalog, radiusKm: radiusKm}
}

func (s *LocationSource) Name() string { return SourceLocation }

func (s *LocationSource) Candidates(ctx context.Context, user domain.UserContext) (map[string]float64, error) {
	loc := user.Location
	if loc == nil && user.Profile != nil {
		loc = user.Profile.Location
	}
	if loc == nil {
		return nil, nil
	}
	items, err := s.catalog.NearbyItems(ctx, *loc, s.radiusKm, sourceFanout)
	if err != nil {
		return nil, fmt.Errorf("nearby items: %w", err)
	}
	return rankDecay(items), nil
}

// adjacentSeedTags bounds how many of the user's strongest tags seed the
// adjacency walk.
const adjacentSeedTags = 5

// adjacentTagLimit caps how many unexplored neighboring tags are sampled.
const adjacentTagLimit = 5

// SerendipitySource surfaces items the user's own history would not: items
// from surging topics the user has not explored, and items under tags
// adjacent to the profile (same category as a followed tag, but absent from
// it). Both halves keep recommendations from collapsing into a filter
// bubble.
type SerendipitySource struct {
	catalog      domain.Catalog
	interactions trending.InteractionStore
	window       time.Duration
	growthFactor float64
}

// NewSerendipitySource creates the exploration source.
func NewSerendipitySource(catalog domain.Catalog, interactions trending.InteractionStore, window time.Duration, growthFactor float64) *SerendipitySource {
	return &SerendipitySource{
		catalog:      catalog,
		interactions: interactions,
		window:       window,
		growthFactor: growthFactor,
	}
}

func (s *SerendipitySource) Name() string { return SourceSerendipity }

func (s *SerendipitySource) Candidates(ctx context.Context, user domain.UserContext) (map[string]float64, error) {
	var explored map[string]float64
	if user.Profile != nil {
		explored = user.Profile.TagAffinities
	}

	topics, err := s.interactions.SurgingTopics(ctx, s.window, s.growthFactor)
	if err != nil {
		return nil, fmt.Errorf("surging topics: %w", err)
	}

	tags := make([]string, 0, len(topics)+adjacentTagLimit)
	seen := make(map[string]bool, len(topics))
	for _, topic := range topics {
		if _, ok := explored[topic]; ok {
			continue
		}
		tags = append(tags, topic)
		seen[topic] = true
	}

	adjacent, err := s.adjacentTags(ctx, user.Profile, explored)
	if err != nil {
		return nil, err
	}
	for _, tag := range adjacent {
		if !seen[tag] {
			tags = append(tags, tag)
			seen[tag] = true
		}
	}

	perTag := sourceFanout / max(len(tags), 1)
	scores := make(map[string]float64)
	for _, tag := range tags {
		items, err := s.catalog.ItemsByTag(ctx, tag, perTag)
		if err != nil {
			return nil, fmt.Errorf("items by tag %q: %w", tag, err)
		}
		for id, score := range rankDecay(items) {
			if score > scores[id] {
				scores[id] = score
			}
		}
	}
	return scores, nil
}

// adjacentTags walks items under the user's strongest tags and collects
// co-occurring tags the profile lacks, kept only when they share a category
// with a followed tag. Untagged categories never qualify.
func (s *SerendipitySource) adjacentTags(ctx context.Context, p *domain.UserProfile, explored map[string]float64) ([]string, error) {
	if p == nil || len(explored) == 0 {
		return nil, nil
	}

	exploredCategories := make(map[string]bool)
	candidates := make(map[string]string)
	for _, seed := range p.TopAffinityTags(adjacentSeedTags) {
		items, err := s.catalog.ItemsByTag(ctx, seed, sourceFanout)
		if err != nil {
			return nil, fmt.Errorf("items by tag %q: %w", seed, err)
		}
		for _, item := range items {
			for _, t := range item.Tags {
				if t.Category == "" {
					continue
				}
				if _, ok := explored[t.Name]; ok {
					exploredCategories[t.Category] = true
				} else {
					candidates[t.Name] = t.Category
				}
			}
		}
	}

	names := make([]string, 0, len(candidates))
	for name, category := range candidates {
		if exploredCategories[category] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > adjacentTagLimit {
		names = names[:adjacentTagLimit]
	}
	return names, nil
}

// rankDecay assigns linearly decaying scores to an ordered result list:
// the first item scores 1.0, the last approaches zero.
func rankDecay(items []*domain.ContentItem) map[string]float64 {
	scores := make(map[string]float64, len(items))
	for i, item := range items {
		scores[item.ID] = 1 - float64(i)/float64(len(items))
	}
	return scores
}
