package elasticsearch

import (
	"fmt"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
)

// QueryBuilder builds per-index structured queries from a processed query.
type QueryBuilder struct {
	config *config.ElasticsearchConfig
}

// NewQueryBuilder creates a new query builder.
func NewQueryBuilder(cfg *config.ElasticsearchConfig) *QueryBuilder {
	return &QueryBuilder{config: cfg}
}

// Build constructs the query for one retrieval branch. The expanded text is
// a disjunction, so a multi-match with OR semantics searches the union of
// the original terms and every expansion.
func (qb *QueryBuilder) Build(q *domain.ProcessedQuery, size int) map[string]any {
	boolQuery := map[string]any{
		"must": []any{qb.buildMultiMatch(q.Expanded)},
	}

	// Exact phrase on the cleaned text ranks above fuzzy expansion hits.
	if q.Cleaned != "" {
		boolQuery["should"] = []any{
			map[string]any{
				"match_phrase": map[string]any{
					"title": map[string]any{
						"query": q.Cleaned,
						"boost": 2.0,
					},
				},
			},
		}
	}

	return map[string]any{
		"query":            map[string]any{"bool": boolQuery},
		"size":             size,
		"track_total_hits": true,
		"_source":          []string{"id", "title", "created_at"},
		"highlight": map[string]any{
			"fields": map[string]any{
				"title":       map[string]any{"number_of_fragments": 1},
				"description": map[string]any{"fragment_size": 150, "number_of_fragments": 1},
			},
			"pre_tags":  []string{"<em>"},
			"post_tags": []string{"</em>"},
		},
	}
}

// buildMultiMatch creates the fuzzy multi-match clause with field boosting.
func (qb *QueryBuilder) buildMultiMatch(text string) map[string]any {
	boost := qb.config.Boost
	return map[string]any{
		"multi_match": map[string]any{
			"query": text,
			"fields": []string{
				"title^" + floatToString(boost.Title),
				"tags^" + floatToString(boost.Tags),
				"description^" + floatToString(boost.Description),
			},
			"type":      "best_fields",
			"operator":  "or",
			"fuzziness": "AUTO",
		},
	}
}

// BuildSuggest constructs a title prefix query for autocomplete. Only
// approved content may surface as a suggestion.
func (qb *QueryBuilder) BuildSuggest(prefix string, size int) map[string]any {
	return map[string]any{
		"size":    size,
		"_source": []string{"id", "title"},
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"match_phrase_prefix": map[string]any{
						"title": map[string]any{
							"query": prefix,
							"slop":  0,
						},
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"moderation_status": "approved"},
				},
			},
		},
	}
}

func floatToString(f float64) string {
	return fmt.Sprintf("%.1f", f)
}
