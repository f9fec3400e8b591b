package search_test

import (
	"math"
	"testing"
	"time"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/search"
)

func newRanker(t *testing.T) *search.Ranker {
	t.Helper()
	cfg := config.Default()
	return search.NewRanker(cfg.Ranking, cfg.Recommend.TagDepthDecay)
}

func candidateFor(id string, score float64) domain.Candidate {
	return domain.Candidate{ContentID: id, MatchScore: score, Indices: []string{"content"}}
}

func TestRanker_Rank_DropsUnknownCandidates(t *testing.T) {
	r := newRanker(t)
	q := &domain.ProcessedQuery{Cleaned: "climate"}

	candidates := []domain.Candidate{candidateFor("known", 5), candidateFor("unknown", 9)}
	items := map[string]*domain.ContentItem{
		"known": {ID: "known", Title: "Climate fund", CreatedAt: time.Now()},
	}

	results := r.Rank(q, candidates, items, nil)
	if len(results) != 1 || results[0].ContentID != "known" {
		t.Errorf("Rank() = %v, want only the catalog-backed candidate", results)
	}
}

func TestRanker_Rank_ExactPhraseOutranksFuzzy(t *testing.T) {
	r := newRanker(t)
	q := &domain.ProcessedQuery{Cleaned: "clean energy campaign"}
	now := time.Now()

	items := map[string]*domain.ContentItem{
		"exact": {ID: "exact", Title: "Clean Energy Campaign Fund", CreatedAt: now},
		"fuzzy": {ID: "fuzzy", Title: "Campaign for energy that is clean", CreatedAt: now},
	}
	candidates := []domain.Candidate{candidateFor("exact", 2), candidateFor("fuzzy", 50)}

	results := r.Rank(q, candidates, items, nil)
	if results[0].ContentID != "exact" {
		t.Errorf("Rank() first = %s, want exact phrase match despite lower raw score", results[0].ContentID)
	}
	if results[0].Scores.Relevance <= results[1].Scores.Relevance {
		t.Errorf("exact relevance %v not above fuzzy %v",
			results[0].Scores.Relevance, results[1].Scores.Relevance)
	}
}

func TestRanker_Rank_PopularityBreaksRelevanceTie(t *testing.T) {
	r := newRanker(t)
	q := &domain.ProcessedQuery{Cleaned: "clean energy"}
	now := time.Now()

	// Identical text and age; only engagement differs.
	items := map[string]*domain.ContentItem{
		"popular": {ID: "popular", Title: "Clean energy drive", CreatedAt: now, EngagementCount: 500},
		"quiet":   {ID: "quiet", Title: "Clean energy drive", CreatedAt: now, EngagementCount: 2},
	}
	candidates := []domain.Candidate{candidateFor("quiet", 5), candidateFor("popular", 5)}

	results := r.Rank(q, candidates, items, nil)
	if results[0].ContentID != "popular" {
		t.Errorf("Rank() first = %s, want the more popular item", results[0].ContentID)
	}
}

func TestRanker_Rank_PersonalizationFavorsAffinity(t *testing.T) {
	r := newRanker(t)
	q := &domain.ProcessedQuery{Cleaned: "local causes"}
	now := time.Now()

	profile := &domain.UserProfile{
		UserID:        "u1",
		TagAffinities: map[string]float64{"healthcare": 0.9, "education": 0.1},
	}
	items := map[string]*domain.ContentItem{
		"health": {
			ID: "health", Title: "Local causes fund", CreatedAt: now,
			Tags: []domain.Tag{{Name: "healthcare", Importance: 100}},
		},
		"school": {
			ID: "school", Title: "Local causes fund", CreatedAt: now,
			Tags: []domain.Tag{{Name: "education", Importance: 100}},
		},
	}
	candidates := []domain.Candidate{candidateFor("school", 5), candidateFor("health", 5)}

	results := r.Rank(q, candidates, items, profile)
	if results[0].ContentID != "health" {
		t.Errorf("Rank() first = %s, want the higher-affinity item", results[0].ContentID)
	}
}

func TestRanker_Rank_Deterministic(t *testing.T) {
	r := newRanker(t)
	q := &domain.ProcessedQuery{Cleaned: "rally"}
	created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// Identical scores force the ContentID tiebreak.
	items := map[string]*domain.ContentItem{
		"a": {ID: "a", Title: "Rally", CreatedAt: created},
		"b": {ID: "b", Title: "Rally", CreatedAt: created},
		"c": {ID: "c", Title: "Rally", CreatedAt: created},
	}
	candidates := []domain.Candidate{candidateFor("c", 5), candidateFor("a", 5), candidateFor("b", 5)}

	for i := 0; i < 10; i++ {
		results := r.Rank(q, candidates, items, nil)
		for i, want := range []string{"a", "b", "c"} {
			if results[i].ContentID != want {
				t.Fatalf("Rank() position %d = %s, want %s", i, results[i].ContentID, want)
			}
		}
	}
}

func TestRanker_Rank_MultiIndexBonusCapped(t *testing.T) {
	cfg := config.Default()
	cfg.Ranking.MultiIndexBonus = 0.09
	r := search.NewRanker(cfg.Ranking, cfg.Recommend.TagDepthDecay)

	q := &domain.ProcessedQuery{Cleaned: "housing coalition"}
	now := time.Now()
	items := map[string]*domain.ContentItem{
		"multi":  {ID: "multi", Title: "Housing coalition", CreatedAt: now},
		"single": {ID: "single", Title: "Housing coalition", CreatedAt: now},
	}
	candidates := []domain.Candidate{
		{ContentID: "multi", MatchScore: 5, Indices: []string{"content", "organizations"}},
		{ContentID: "single", MatchScore: 5, Indices: []string{"content"}},
	}

	results := r.Rank(q, candidates, items, nil)
	byID := map[string]domain.ScoredResult{}
	for _, res := range results {
		byID[res.ContentID] = res
	}

	diff := byID["multi"].Scores.Relevance - byID["single"].Scores.Relevance
	if diff <= 0 {
		t.Fatal("multi-index candidate should outscore single-index twin")
	}
	if diff > 0.1+1e-9 {
		t.Errorf("multi-index bonus = %v, must not exceed 0.1", diff)
	}
}

func TestRanker_Quality(t *testing.T) {
	r := newRanker(t)

	tests := []struct {
		name string
		item domain.ContentItem
		want float64
	}{
		{"bare item", domain.ContentItem{ID: "x"}, 0},
		{"description only", domain.ContentItem{Description: "d"}, 0.4},
		{
			"fully furnished",
			domain.ContentItem{
				Description:   "d",
				OwnerVerified: true,
				Tags:          []domain.Tag{{Name: "t"}},
				Location:      &domain.GeoPoint{Lat: 1, Lon: 1},
			},
			1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Quality(&tt.item); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Quality() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRanker_Rank_FreshnessDecay(t *testing.T) {
	r := newRanker(t)
	q := &domain.ProcessedQuery{Cleaned: "volunteer drive"}
	now := time.Now()

	items := map[string]*domain.ContentItem{
		"new": {ID: "new", Title: "Volunteer drive", CreatedAt: now.Add(-time.Hour)},
		"old": {ID: "old", Title: "Volunteer drive", CreatedAt: now.Add(-90 * 24 * time.Hour)},
	}
	candidates := []domain.Candidate{candidateFor("old", 5), candidateFor("new", 5)}

	results := r.Rank(q, candidates, items, nil)
	if results[0].ContentID != "new" {
		t.Errorf("Rank() first = %s, want the fresher item", results[0].ContentID)
	}
	byID := map[string]domain.ScoredResult{}
	for _, res := range results {
		byID[res.ContentID] = res
	}
	// Past the 30-day horizon freshness bottoms out at zero.
	if byID["old"].Scores.Freshness != 0 {
		t.Errorf("freshness beyond horizon = %v, want 0", byID["old"].Scores.Freshness)
	}
}
