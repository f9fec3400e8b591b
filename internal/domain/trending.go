package domain

import "time"

// TrendingSignals are the component scores of a trending record, each in
// [0,1].
type TrendingSignals struct {
	Velocity      float64 `json:"velocity"`
	Amplification float64 `json:"amplification"`
	Quality       float64 `json:"quality"`
	Diversity     float64 `json:"diversity"`
	Compliance    float64 `json:"compliance"`
}

// TrendingRecord is one item's trending state. Superseded records are
// replaced, not versioned: when two writers race, the more recent ComputedAt
// wins.
type TrendingRecord struct {
	ContentID  string          `json:"content_id"`
	Signals    TrendingSignals `json:"signals"`
	Score      float64         `json:"score"`
	ComputedAt time.Time       `json:"computed_at"`
}

// InteractionCounts are the window counts feeding the trending signals.
type InteractionCounts struct {
	// Window is the interaction count in the current rolling window.
	Window int64 `json:"window"`
	// Baseline is the item's own historical count for an equal-length
	// window.
	Baseline int64 `json:"baseline"`

	Shares       int64 `json:"shares"`
	Mentions     int64 `json:"mentions"`
	CrossSurface int64 `json:"cross_surface"`
}
