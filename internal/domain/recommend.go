package domain

// RecommendationCandidate is one content item accumulated across
// recommendation sources. Scores from different sources add up; a source
// that did not score the item contributes zero and never excludes it.
type RecommendationCandidate struct {
	ContentID string `json:"content_id"`
	// SourceScores maps source name -> the [0,1] score that source produced.
	SourceScores map[string]float64 `json:"source_scores"`
	// Combined is the weighted sum over every contributing source.
	Combined float64 `json:"combined"`
}

// Sources returns the names of the sources that scored this candidate.
func (r *RecommendationCandidate) Sources() []string {
	names := make([]string, 0, len(r.SourceScores))
	for name := range r.SourceScores {
		names = append(names, name)
	}
	return names
}
