// Package search fans a processed query out across the retrieval indices
// and ranks the merged candidate set.
package search

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
)

// ErrAllBranchesFailed is returned when every retrieval branch errored or
// timed out. Callers must be able to distinguish "engine unavailable" from
// "nothing relevant", so this is never collapsed into an empty success.
var ErrAllBranchesFailed = errors.New("all retrieval branches failed")

// BranchSearcher issues one structured query against one retrieval branch.
type BranchSearcher interface {
	SearchIndex(ctx context.Context, branch string, q *domain.ProcessedQuery, size int) ([]domain.Candidate, error)
}

// FanOutResult is the merged outcome of a retrieval fan-out.
type FanOutResult struct {
	Candidates []domain.Candidate
	// FailedBranches lists branches that errored or timed out. Their
	// absence degrades the result, it does not fail the request.
	FailedBranches []string
}

// Degraded reports whether any branch failed.
func (r *FanOutResult) Degraded() bool {
	return len(r.FailedBranches) > 0
}

// Orchestrator runs the per-index queries concurrently with independent
// timeouts and merges the heterogeneous hit sets.
type Orchestrator struct {
	searcher      BranchSearcher
	branches      []string
	branchTimeout time.Duration
	logger        logger.Logger
}

// NewOrchestrator creates an orchestrator over the given branches.
func NewOrchestrator(searcher BranchSearcher, branches []string, branchTimeout time.Duration, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		searcher:      searcher,
		branches:      branches,
		branchTimeout: branchTimeout,
		logger:        log,
	}
}

type branchOutcome struct {
	branch     string
	candidates []domain.Candidate
	err        error
}

// Search fans the query out across every branch and merges the results. A
// failing branch contributes zero candidates and a logged degradation; only
// all branches failing is an error.
func (o *Orchestrator) Search(ctx context.Context, q *domain.ProcessedQuery, size int) (*FanOutResult, error) {
	outcomes := make(chan branchOutcome, len(o.branches))

	for _, branch := range o.branches {
		go func(branch string) {
			branchCtx, cancel := context.WithTimeout(ctx, o.branchTimeout)
			defer cancel()

			candidates, err := o.searcher.SearchIndex(branchCtx, branch, q, size)
			outcomes <- branchOutcome{branch: branch, candidates: candidates, err: err}
		}(branch)
	}

	result := &FanOutResult{}
	merged := make(map[string]*domain.Candidate)
	for range o.branches {
		out := <-outcomes
		if out.err != nil {
			o.logger.Warn("retrieval branch degraded",
				logger.String("branch", out.branch),
				logger.Error(out.err),
			)
			result.FailedBranches = append(result.FailedBranches, out.branch)
			continue
		}
		for i := range out.candidates {
			mergeCandidate(merged, &out.candidates[i])
		}
	}

	if len(result.FailedBranches) == len(o.branches) {
		return nil, ErrAllBranchesFailed
	}

	result.Candidates = make([]domain.Candidate, 0, len(merged))
	for _, c := range merged {
		result.Candidates = append(result.Candidates, *c)
	}
	// Stable merge order; final ordering belongs to the ranking engine.
	sort.Slice(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].ContentID < result.Candidates[j].ContentID
	})
	sort.Strings(result.FailedBranches)

	return result, nil
}

// mergeCandidate unions a branch hit into the merged set: indices
// accumulate, per-field match metadata keeps the highest value, and the best
// snippet survives.
func mergeCandidate(merged map[string]*domain.Candidate, c *domain.Candidate) {
	existing, ok := merged[c.ContentID]
	if !ok {
		clone := *c
		clone.Indices = append([]string(nil), c.Indices...)
		clone.MatchedFields = make(map[string]float64, len(c.MatchedFields))
		for k, v := range c.MatchedFields {
			clone.MatchedFields[k] = v
		}
		merged[c.ContentID] = &clone
		return
	}

	existing.Indices = append(existing.Indices, c.Indices...)
	for k, v := range c.MatchedFields {
		if v > existing.MatchedFields[k] {
			existing.MatchedFields[k] = v
		}
	}
	if c.MatchScore > existing.MatchScore {
		existing.MatchScore = c.MatchScore
	}
	if existing.Snippet == "" {
		existing.Snippet = c.Snippet
	}
}
