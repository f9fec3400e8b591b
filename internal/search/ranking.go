package search

import (
	"sort"
	"strings"
	"time"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
)

// matchScoreScale normalizes raw index match scores into (0,1); a raw score
// equal to the scale maps to 0.5.
const matchScoreScale = 10.0

// Relevance tier bases. Exact phrase always outranks a full fuzzy match,
// which always outranks a partial term match.
const (
	exactPhraseRelevance = 0.90
	fuzzyBaseRelevance   = 0.55
	fuzzyScoreRange      = 0.25
	partialMaxRelevance  = 0.40
)

// Quality component contributions.
const (
	qualityDescription = 0.4
	qualityVerified    = 0.3
	qualityTags        = 0.2
	qualityLocation    = 0.1
)

// Ranker scores merged candidates along five independent dimensions and
// combines them into one deterministic ordering.
type Ranker struct {
	cfg           config.RankingConfig
	tagDepthDecay float64
	now           func() time.Time
}

// NewRanker creates a ranking engine. tagDepthDecay discounts deep tag
// categories in the personalization vector.
func NewRanker(cfg config.RankingConfig, tagDepthDecay float64) *Ranker {
	return &Ranker{cfg: cfg, tagDepthDecay: tagDepthDecay, now: time.Now}
}

// Rank scores every candidate with item metadata from the catalog and the
// requester's profile (nil for anonymous requests). Candidates without
// catalog metadata are dropped: they cannot be compliance-checked later.
func (r *Ranker) Rank(q *domain.ProcessedQuery, candidates []domain.Candidate, items map[string]*domain.ContentItem, profile *domain.UserProfile) []domain.ScoredResult {
	now := r.now()

	var affinity map[string]float64
	if profile != nil {
		affinity = profile.TagAffinities
	}

	results := make([]domain.ScoredResult, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		item, ok := items[c.ContentID]
		if !ok {
			continue
		}

		scores := domain.ComponentScores{
			Relevance:       r.relevance(q, c, item),
			Quality:         r.Quality(item),
			Freshness:       r.freshness(item.CreatedAt, now),
			Popularity:      r.popularity(item.EngagementCount),
			Personalization: r.personalization(affinity, item),
		}

		results = append(results, domain.ScoredResult{
			ContentID: c.ContentID,
			Scores:    scores,
			Combined:  r.combine(scores),
			CreatedAt: item.CreatedAt,
			Snippet:   c.Snippet,
		})
	}

	// Descending combined score; ties broken by more recent creation, then
	// by identifier, so identical inputs always produce identical ordering.
	sort.Slice(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ContentID < b.ContentID
	})
	return results
}

// relevance rates text-match strength: exact phrase > fuzzy full match >
// partial term match, plus a flat bonus for multi-index candidates capped
// at +0.1.
func (r *Ranker) relevance(q *domain.ProcessedQuery, c *domain.Candidate, item *domain.ContentItem) float64 {
	var score float64
	switch {
	case exactPhrase(q.Cleaned, item):
		score = exactPhraseRelevance
	case allTermsPresent(q.Cleaned, item):
		norm := c.MatchScore / (c.MatchScore + matchScoreScale)
		score = fuzzyBaseRelevance + fuzzyScoreRange*norm
	default:
		score = partialMaxRelevance * termFraction(q.Cleaned, item)
	}

	if c.MultiIndex() {
		bonus := r.cfg.MultiIndexBonus
		if bonus > 0.1 {
			bonus = 0.1
		}
		score += bonus
	}
	return clamp01(score)
}

func exactPhrase(cleaned string, item *domain.ContentItem) bool {
	if cleaned == "" {
		return false
	}
	return strings.Contains(strings.ToLower(item.Title), cleaned) ||
		strings.Contains(strings.ToLower(item.Description), cleaned)
}

func allTermsPresent(cleaned string, item *domain.ContentItem) bool {
	terms := strings.Fields(cleaned)
	if len(terms) == 0 {
		return false
	}
	return termFraction(cleaned, item) == 1
}

func termFraction(cleaned string, item *domain.ContentItem) float64 {
	terms := strings.Fields(cleaned)
	if len(terms) == 0 {
		return 0
	}
	haystack := strings.ToLower(item.Title + " " + item.Description + " " + strings.Join(item.TagNames(), " "))
	matched := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// Quality is a completeness/credibility proxy over the item's metadata.
func (r *Ranker) Quality(item *domain.ContentItem) float64 {
	var score float64
	if strings.TrimSpace(item.Description) != "" {
		score += qualityDescription
	}
	if item.OwnerVerified {
		score += qualityVerified
	}
	if len(item.Tags) > 0 {
		score += qualityTags
	}
	if item.Location != nil {
		score += qualityLocation
	}
	return score
}

// freshness decreases linearly with age and reaches zero at the configured
// horizon. Never negative.
func (r *Ranker) freshness(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	horizon := r.cfg.FreshnessHorizon
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}

// popularity saturates with diminishing returns: count/(count+half). Never
// exceeds 1.
func (r *Ranker) popularity(engagement int64) float64 {
	if engagement <= 0 {
		return 0
	}
	n := float64(engagement)
	return n / (n + r.cfg.PopularityHalfSaturation)
}

// personalization is the cosine overlap between the requester's affinity
// vector and the item's tag vector; zero without user context.
func (r *Ranker) personalization(affinity map[string]float64, item *domain.ContentItem) float64 {
	if len(affinity) == 0 {
		return 0
	}
	return domain.Cosine(affinity, item.TagVector(r.tagDepthDecay))
}

func (r *Ranker) combine(s domain.ComponentScores) float64 {
	return s.Relevance*r.cfg.RelevanceWeight +
		s.Quality*r.cfg.QualityWeight +
		s.Freshness*r.cfg.FreshnessWeight +
		s.Popularity*r.cfg.PopularityWeight +
		s.Personalization*r.cfg.PersonalizationWeight
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
