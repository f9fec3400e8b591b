package trending

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/telemetry"
)

// TriggerBuffer bounds pending targeted recomputes. When the buffer is
// full, triggers are dropped; the next batch run picks the item up anyway.
const TriggerBuffer = 256

// Scheduler drives trending recomputation: a cron-scheduled full batch
// plus rate-limited targeted recomputes triggered by high-impact
// interactions.
type Scheduler struct {
	cfg      config.TrendingConfig
	analyzer *Analyzer
	metrics  *telemetry.Provider
	log      logger.Logger

	cron     *cron.Cron
	limiter  *rate.Limiter
	triggers chan string
	done     chan struct{}
}

// NewScheduler creates a scheduler around the analyzer.
func NewScheduler(cfg config.TrendingConfig, analyzer *Analyzer, metrics *telemetry.Provider, log logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		analyzer: analyzer,
		metrics:  metrics,
		log:      log,
		cron:     cron.New(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RecomputePerSecond), cfg.RecomputeBurst),
		triggers: make(chan string, TriggerBuffer),
		done:     make(chan struct{}),
	}
}

// Start registers the batch job and launches the trigger worker. The
// batch also runs once immediately so a fresh deployment has records
// before the first cron tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.BatchSchedule, func() {
		s.runBatch(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule trending batch %q: %w", s.cfg.BatchSchedule, err)
	}

	go s.runBatch(ctx)
	go s.triggerWorker(ctx)
	s.cron.Start()

	s.log.Info("trending scheduler started",
		logger.String("schedule", s.cfg.BatchSchedule))
	return nil
}

// Stop halts the cron schedule and the trigger worker, waiting for any
// running batch job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	close(s.done)
	<-stopCtx.Done()
	s.log.Info("trending scheduler stopped")
}

// Trigger requests a targeted recompute for one item. Best effort: when
// the queue is full the trigger is dropped.
func (s *Scheduler) Trigger(contentID string) {
	select {
	case s.triggers <- contentID:
	default:
		s.metrics.RecordTriggerDropped()
		s.log.Debug("trending trigger dropped",
			logger.String("content_id", contentID))
	}
}

func (s *Scheduler) runBatch(ctx context.Context) {
	start := time.Now()
	written, err := s.analyzer.RecomputeAll(ctx)
	s.metrics.RecordRecompute("batch", err)
	if err != nil {
		s.log.Error("trending batch failed", logger.Error(err))
		return
	}
	s.metrics.SetTrendingRecords(written)
	s.log.Info("trending batch complete",
		logger.Int("records", written),
		logger.Duration("took", time.Since(start)))
}

func (s *Scheduler) triggerWorker(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case id := <-s.triggers:
			if !s.limiter.Allow() {
				// Over budget; the batch will catch up.
				continue
			}
			err := s.analyzer.RecomputeOne(ctx, id)
			s.metrics.RecordRecompute("targeted", err)
			if err != nil {
				s.log.Warn("targeted trending recompute failed",
					logger.String("content_id", id),
					logger.Error(err))
			}
		}
	}
}
