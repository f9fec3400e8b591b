package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
)

// Branch names for the retrieval fan-out, in fan-out order.
const (
	BranchContent       = "content"
	BranchTags          = "tags"
	BranchOrganizations = "organizations"
	BranchLocations     = "locations"
	BranchPeople        = "people"
)

// Branches lists every retrieval branch.
func Branches() []string {
	return []string{BranchContent, BranchTags, BranchOrganizations, BranchLocations, BranchPeople}
}

// IndexSearcher issues one structured query against one index and parses the
// unranked hits.
type IndexSearcher struct {
	client       *Client
	queryBuilder *QueryBuilder
	config       *config.ElasticsearchConfig
}

// NewIndexSearcher creates an index searcher over the given client.
func NewIndexSearcher(client *Client, cfg *config.ElasticsearchConfig) *IndexSearcher {
	return &IndexSearcher{
		client:       client,
		queryBuilder: NewQueryBuilder(cfg),
		config:       cfg,
	}
}

// indexFor maps a branch name to its configured index.
func (s *IndexSearcher) indexFor(branch string) (string, error) {
	switch branch {
	case BranchContent:
		return s.config.Indices.Content, nil
	case BranchTags:
		return s.config.Indices.Tags, nil
	case BranchOrganizations:
		return s.config.Indices.Organizations, nil
	case BranchLocations:
		return s.config.Indices.Locations, nil
	case BranchPeople:
		return s.config.Indices.People, nil
	default:
		return "", fmt.Errorf("unknown retrieval branch %q", branch)
	}
}

// SearchIndex executes the processed query against one branch and returns
// its candidates. The caller owns the per-branch timeout on ctx.
func (s *IndexSearcher) SearchIndex(ctx context.Context, branch string, q *domain.ProcessedQuery, size int) ([]domain.Candidate, error) {
	index, err := s.indexFor(branch)
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(ctx, index, s.queryBuilder.Build(q, size))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	return parseCandidates(res.Body, branch)
}

// parseCandidates converts raw index hits into unranked candidates.
func parseCandidates(body io.Reader, branch string) ([]domain.Candidate, error) {
	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					ID string `json:"id"`
				} `json:"_source"`
				Highlight map[string][]string `json:"highlight,omitempty"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", branch, err)
	}

	candidates := make([]domain.Candidate, 0, len(esResponse.Hits.Hits))
	for i := range esResponse.Hits.Hits {
		hit := &esResponse.Hits.Hits[i]
		id := hit.Source.ID
		if id == "" {
			id = hit.ID
		}
		candidates = append(candidates, domain.Candidate{
			ContentID:  id,
			MatchScore: hit.Score,
			Snippet:    firstHighlight(hit.Highlight),
			Indices:    []string{branch},
			MatchedFields: map[string]float64{
				branch: hit.Score,
			},
		})
	}
	return candidates, nil
}

func firstHighlight(highlight map[string][]string) string {
	for _, field := range []string{"title", "description"} {
		if fragments, ok := highlight[field]; ok && len(fragments) > 0 {
			return fragments[0]
		}
	}
	return ""
}

// Suggest returns unique title suggestions for a prefix from the content
// index.
func (s *IndexSearcher) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	res, err := s.client.Search(ctx, s.config.Indices.Content, s.queryBuilder.BuildSuggest(prefix, limit))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Title string `json:"title"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode suggest response: %w", err)
	}

	seen := make(map[string]struct{}, limit)
	out := make([]string, 0, limit)
	for _, hit := range esResponse.Hits.Hits {
		t := strings.TrimSpace(hit.Source.Title)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// timeFormat is the timestamp layout used in range filters.
const timeFormat = "2006-01-02T15:04:05Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeFormat)
}
