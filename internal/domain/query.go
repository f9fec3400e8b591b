package domain

import "time"

// Intent is a coarse classification of query purpose used to bias expansion
// and ranking.
type Intent string

// Query intents, in rule evaluation order. A query matching no rule is
// GENERAL.
const (
	IntentDonate       Intent = "DONATE"
	IntentEvent        Intent = "EVENT"
	IntentCandidate    Intent = "CANDIDATE"
	IntentCause        Intent = "CAUSE"
	IntentOrganization Intent = "ORGANIZATION"
	IntentLocal        Intent = "LOCAL"
	IntentGeneral      Intent = "GENERAL"
)

// ProcessedQuery is the structured form of a raw query. Created once per
// request and immutable afterwards.
type ProcessedQuery struct {
	Original string `json:"original"`
	Cleaned  string `json:"cleaned"`
	// Expanded is the disjunctive expansion: original terms plus synonyms,
	// location qualifiers, and temporal terms. Expansion only broadens.
	Expanded string   `json:"expanded"`
	Intent   Intent   `json:"intent"`
	Entities []string `json:"entities,omitempty"`
	Synonyms []string `json:"synonyms,omitempty"`
	// StartedAt anchors latency accounting for the request.
	StartedAt time.Time `json:"started_at"`
}

// IsBrowse reports whether the query is an empty browse request, which routes
// to the explore surface instead of search.
func (q *ProcessedQuery) IsBrowse() bool {
	return q.Cleaned == ""
}
