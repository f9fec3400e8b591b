package recommend_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/recommend"
)

type fakeSource struct {
	name   string
	scores map[string]float64
	err    error
	block  bool
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Candidates(ctx context.Context, _ domain.UserContext) (map[string]float64, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func newEngine(maxResults int, sources ...recommend.WeightedSource) *recommend.Engine {
	cfg := config.Default().Recommend
	cfg.MaxResults = maxResults
	cfg.SourceTimeout = 50 * time.Millisecond
	return recommend.NewEngine(cfg, sources, logger.NewNop())
}

func TestEngine_Recommend_AdditiveMerge(t *testing.T) {
	e := newEngine(10,
		recommend.WeightedSource{
			Source: &fakeSource{name: "alpha", scores: map[string]float64{"x": 1.0, "y": 0.5}},
			Weight: 0.5,
		},
		recommend.WeightedSource{
			Source: &fakeSource{name: "beta", scores: map[string]float64{"x": 0.4}},
			Weight: 0.5,
		},
	)

	got := e.Recommend(context.Background(), domain.UserContext{})
	if len(got) != 2 {
		t.Fatalf("Recommend() returned %d candidates, want 2", len(got))
	}

	// x accumulates both sources: 1.0*0.5 + 0.4*0.5 = 0.7.
	if got[0].ContentID != "x" {
		t.Errorf("top candidate = %s, want x", got[0].ContentID)
	}
	if want := 0.7; math.Abs(got[0].Combined-want) > 1e-9 {
		t.Errorf("Combined(x) = %v, want %v", got[0].Combined, want)
	}
	if len(got[0].SourceScores) != 2 {
		t.Errorf("SourceScores(x) = %v, want contributions from both sources", got[0].SourceScores)
	}
	if want := 0.25; math.Abs(got[1].Combined-want) > 1e-9 {
		t.Errorf("Combined(y) = %v, want %v", got[1].Combined, want)
	}
}

func TestEngine_Recommend_FailedSourceContributesNothing(t *testing.T) {
	e := newEngine(10,
		recommend.WeightedSource{
			Source: &fakeSource{name: "broken", err: errors.New("backend down")},
			Weight: 0.5,
		},
		recommend.WeightedSource{
			Source: &fakeSource{name: "healthy", scores: map[string]float64{"x": 0.8}},
			Weight: 0.5,
		},
	)

	got := e.Recommend(context.Background(), domain.UserContext{})
	if len(got) != 1 || got[0].ContentID != "x" {
		t.Fatalf("Recommend() = %v, want the healthy source's candidate only", got)
	}
	if _, ok := got[0].SourceScores["broken"]; ok {
		t.Error("failed source should not appear in SourceScores")
	}
}

func TestEngine_Recommend_SlowSourceTimesOut(t *testing.T) {
	e := newEngine(10,
		recommend.WeightedSource{
			Source: &fakeSource{name: "stuck", block: true},
			Weight: 0.5,
		},
		recommend.WeightedSource{
			Source: &fakeSource{name: "fast", scores: map[string]float64{"x": 0.8}},
			Weight: 0.5,
		},
	)

	done := make(chan []domain.RecommendationCandidate, 1)
	go func() { done <- e.Recommend(context.Background(), domain.UserContext{}) }()

	select {
	case got := <-done:
		if len(got) != 1 || got[0].ContentID != "x" {
			t.Errorf("Recommend() = %v, want the fast source's candidate only", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recommend() did not return; slow source not bounded by its timeout")
	}
}

func TestEngine_Recommend_CapsAndOrders(t *testing.T) {
	e := newEngine(2,
		recommend.WeightedSource{
			Source: &fakeSource{name: "alpha", scores: map[string]float64{
				"a": 0.4, "b": 0.9, "c": 0.4, "d": 0.1,
			}},
			Weight: 1.0,
		},
	)

	got := e.Recommend(context.Background(), domain.UserContext{})
	if len(got) != 2 {
		t.Fatalf("Recommend() returned %d candidates, want the cap of 2", len(got))
	}
	// b leads; a and c tie and resolve by identifier.
	if got[0].ContentID != "b" || got[1].ContentID != "a" {
		t.Errorf("order = [%s %s], want [b a]", got[0].ContentID, got[1].ContentID)
	}
}

func TestEngine_Recommend_ZeroWeightSourceDoesNotWidenCandidates(t *testing.T) {
	weighted := recommend.WeightedSource{
		Source: &fakeSource{name: "alpha", scores: map[string]float64{"a": 0.5}},
		Weight: 1.0,
	}
	muted := recommend.WeightedSource{
		Source: &fakeSource{name: "muted", scores: map[string]float64{"only-muted": 0.9, "a": 0.9}},
		Weight: 0,
	}

	with := newEngine(10, weighted, muted).Recommend(context.Background(), domain.UserContext{})
	without := newEngine(10, weighted).Recommend(context.Background(), domain.UserContext{})

	if len(with) != len(without) {
		t.Fatalf("candidates with muted source = %d, without = %d; sets must match", len(with), len(without))
	}
	if len(with) != 1 || with[0].ContentID != "a" {
		t.Fatalf("Recommend() = %v, want only the weighted source's candidate", with)
	}
	if _, ok := with[0].SourceScores["muted"]; ok {
		t.Error("zero-weight source should not appear in SourceScores")
	}
	if math.Abs(with[0].Combined-without[0].Combined) > 1e-9 {
		t.Errorf("Combined = %v vs %v; a zero-weight source must not change scores", with[0].Combined, without[0].Combined)
	}
}

func TestEngine_Recommend_NoSourcesIsEmpty(t *testing.T) {
	e := newEngine(10)
	if got := e.Recommend(context.Background(), domain.UserContext{}); len(got) != 0 {
		t.Errorf("Recommend() = %v, want empty", got)
	}
}
