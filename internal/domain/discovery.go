package domain

import (
	"fmt"
	"time"
)

// Candidate is a content item that matched a retrieval branch but has not
// been scored or filtered yet.
type Candidate struct {
	ContentID string `json:"content_id"`
	// MatchScore is the raw score reported by the index.
	MatchScore float64 `json:"match_score"`
	// Snippet is the highlighted fragment from the index, when available.
	Snippet string `json:"snippet,omitempty"`
	// Indices lists the retrieval branches that produced this candidate.
	Indices []string `json:"indices"`
	// MatchedFields maps field name -> best match score across branches.
	MatchedFields map[string]float64 `json:"matched_fields,omitempty"`
}

// MultiIndex reports whether the candidate was matched by more than one
// index.
func (c *Candidate) MultiIndex() bool {
	return len(c.Indices) > 1
}

// ComponentScores are the independent ranking dimensions, each in [0,1].
type ComponentScores struct {
	Relevance       float64 `json:"relevance"`
	Quality         float64 `json:"quality"`
	Freshness       float64 `json:"freshness"`
	Popularity      float64 `json:"popularity"`
	Personalization float64 `json:"personalization"`
}

// ScoredResult is a ranked candidate. Transient; recomputed per request.
type ScoredResult struct {
	ContentID string          `json:"content_id"`
	Scores    ComponentScores `json:"scores"`
	Combined  float64         `json:"combined"`
	// CreatedAt is carried for tie-breaking: score desc, created_at desc,
	// id asc.
	CreatedAt time.Time `json:"-"`
	Snippet   string    `json:"snippet,omitempty"`
}

// ComplianceVerdict is the evaluation result for one item in one user
// context. Attached to results, never stored independently.
type ComplianceVerdict struct {
	Passed   bool     `json:"passed"`
	Warnings []string `json:"warnings,omitempty"`
}

// ContentSummary is one entry in a discovery response.
type ContentSummary struct {
	ID    string      `json:"id"`
	Type  ContentType `json:"type"`
	Title string      `json:"title"`
	// Scores is included when the caller asks for a score breakdown.
	Scores   *ComponentScores `json:"scores,omitempty"`
	Combined float64          `json:"score"`
	Snippet  string           `json:"snippet,omitempty"`
	// Warnings are soft compliance warnings on a passing item.
	Warnings []string `json:"warnings,omitempty"`
}

// DiscoveryResponse is the transport-agnostic response contract: an ordered
// list of summaries plus pagination. Empty results are valid and distinct
// from errors.
type DiscoveryResponse struct {
	Items      []ContentSummary `json:"items"`
	TotalCount int64            `json:"total_count"`
	NextCursor string           `json:"next_cursor,omitempty"`
	TookMs     int64            `json:"took_ms"`
	// Degraded is set when one or more branches failed and the response was
	// assembled from the rest.
	Degraded       bool     `json:"degraded,omitempty"`
	FailedBranches []string `json:"failed_branches,omitempty"`
}

// SearchRequest is a discovery search request.
type SearchRequest struct {
	Query         string      `json:"query"`
	User          UserContext `json:"user,omitempty"`
	Page          int         `json:"page,omitempty"`
	Size          int         `json:"size,omitempty"`
	IncludeScores bool        `json:"include_scores,omitempty"`
}

// Validate normalizes pagination and bounds the query length.
func (r *SearchRequest) Validate(maxPageSize, defaultPageSize, maxQueryLength int) error {
	if len(r.Query) > maxQueryLength {
		return fmt.Errorf("query length exceeds maximum of %d characters", maxQueryLength)
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Size < 1 {
		r.Size = defaultPageSize
	}
	if r.Size > maxPageSize {
		return fmt.Errorf("page size exceeds maximum of %d", maxPageSize)
	}
	return nil
}

// HealthStatus reports service and dependency health.
type HealthStatus struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}
