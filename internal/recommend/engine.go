// Package recommend blends multiple recommendation strategies into a
// single personalized feed. Sources run concurrently and contribute
// additively: an item scored by several strategies accumulates weight, and
// a strategy that knows nothing about an item never excludes it.
package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/trending"
)

// WeightedSource pairs a source with its blending weight.
type WeightedSource struct {
	Source Source
	Weight float64
}

// Engine fans out to the configured sources and merges their candidates.
type Engine struct {
	sources       []WeightedSource
	maxResults    int
	sourceTimeout time.Duration
	log           logger.Logger
}

// NewEngine creates a recommendation engine over the given sources.
func NewEngine(cfg config.RecommendConfig, sources []WeightedSource, log logger.Logger) *Engine {
	return &Engine{
		sources:       sources,
		maxResults:    cfg.MaxResults,
		sourceTimeout: cfg.SourceTimeout,
		log:           log,
	}
}

// DefaultSources assembles the standard five-source stack with weights
// from configuration.
func DefaultSources(
	cfg config.RecommendConfig,
	trendingCfg config.TrendingConfig,
	localRadiusKm float64,
	catalog domain.Catalog,
	collab CollaborativeProvider,
	records trending.RecordStore,
	interactions trending.InteractionStore,
) []WeightedSource {
	return []WeightedSource{
		{Source: NewContentBasedSource(catalog, cfg), Weight: cfg.ContentWeight},
		{Source: NewCollaborativeSource(collab), Weight: cfg.CollaborativeWeight},
		{Source: NewTrendingSource(records), Weight: cfg.TrendingWeight},
		{Source: NewLocationSource(catalog, localRadiusKm), Weight: cfg.LocationWeight},
		{Source: NewSerendipitySource(catalog, interactions, trendingCfg.Window, cfg.SerendipityGrowthFactor), Weight: cfg.SerendipityWeight},
	}
}

type sourceResult struct {
	name   string
	weight float64
	scores map[string]float64
}

// Recommend runs every source under its own timeout and blends the
// results. A failed or slow source is logged and contributes nothing; the
// response is built from whatever succeeded.
func (e *Engine) Recommend(ctx context.Context, user domain.UserContext) []domain.RecommendationCandidate {
	// A zero-weight source cannot move any score, so it must not widen the
	// candidate set either: the output has to match a configuration that
	// omits the source entirely.
	active := make([]WeightedSource, 0, len(e.sources))
	for _, ws := range e.sources {
		if ws.Weight > 0 {
			active = append(active, ws)
		}
	}

	results := make(chan sourceResult, len(active))
	for _, ws := range active {
		go func(ws WeightedSource) {
			srcCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
			defer cancel()

			scores, err := ws.Source.Candidates(srcCtx, user)
			if err != nil {
				e.log.Warn("recommendation source failed",
					logger.String("source", ws.Source.Name()),
					logger.Error(err))
				scores = nil
			}
			results <- sourceResult{name: ws.Source.Name(), weight: ws.Weight, scores: scores}
		}(ws)
	}

	merged := make(map[string]*domain.RecommendationCandidate)
	for range active {
		res := <-results
		for id, score := range res.scores {
			cand, ok := merged[id]
			if !ok {
				cand = &domain.RecommendationCandidate{
					ContentID:    id,
					SourceScores: make(map[string]float64),
				}
				merged[id] = cand
			}
			cand.SourceScores[res.name] = score
			cand.Combined += score * res.weight
		}
	}

	return e.rank(merged)
}

func (e *Engine) rank(merged map[string]*domain.RecommendationCandidate) []domain.RecommendationCandidate {
	out := make([]domain.RecommendationCandidate, 0, len(merged))
	for _, cand := range merged {
		out = append(out, *cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Combined != out[j].Combined {
			return out[i].Combined > out[j].Combined
		}
		return out[i].ContentID < out[j].ContentID
	})
	if len(out) > e.maxResults {
		out = out[:e.maxResults]
	}
	return out
}
