package trending_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/telemetry"
	"github.com/civicpulse/discovery/internal/trending"
)

func newTestScheduler(metrics *telemetry.Provider) *trending.Scheduler {
	cfg := trendingConfig()
	analyzer := newTestAnalyzer(cfg,
		domain.NewMemoryCatalog(),
		trending.NewMemoryInteractionStore(),
		trending.NewMemoryRecordStore())
	return trending.NewScheduler(cfg, analyzer, metrics, logger.NewNop())
}

func TestScheduler_Trigger_CountsDropsWhenQueueIsFull(t *testing.T) {
	metrics := telemetry.NewProvider()
	s := newTestScheduler(metrics)

	// The worker is not running, so the buffer fills and the overflow
	// triggers are dropped.
	const overflow = 3
	for i := 0; i < trending.TriggerBuffer+overflow; i++ {
		s.Trigger("c1")
	}

	if got := testutil.ToFloat64(metrics.Metrics.TriggersDropped); got != overflow {
		t.Errorf("dropped triggers = %v, want %v", got, overflow)
	}
}
