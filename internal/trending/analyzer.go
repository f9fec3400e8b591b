package trending

import (
	"context"
	"fmt"
	"time"

	"github.com/civicpulse/discovery/internal/compliance"
	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/logger"
)

// Amplification sub-weights. Each count is normalized against its cap
// before combining.
const (
	amplifyShare        = 0.4
	amplifyMention      = 0.3
	amplifyCrossSurface = 0.3
)

// candidateLimit bounds the recent-content portion of the recompute set.
const candidateLimit = 500

// QualityFunc scores an item's metadata completeness in [0,1]. The search
// ranker supplies the production implementation so both surfaces agree on
// what quality means.
type QualityFunc func(item *domain.ContentItem) float64

// Analyzer computes trending scores from interaction counters and writes
// them to the record store. Recomputes are idempotent: a record is fully
// replaced each time, and concurrent writers resolve by ComputedAt.
type Analyzer struct {
	cfg          config.TrendingConfig
	catalog      domain.Catalog
	interactions InteractionStore
	records      RecordStore
	filter       *compliance.Filter
	quality      QualityFunc
	log          logger.Logger
	now          func() time.Time
}

// NewAnalyzer creates a trending analyzer.
func NewAnalyzer(
	cfg config.TrendingConfig,
	catalog domain.Catalog,
	interactions InteractionStore,
	records RecordStore,
	filter *compliance.Filter,
	quality QualityFunc,
	log logger.Logger,
) *Analyzer {
	return &Analyzer{
		cfg:          cfg,
		catalog:      catalog,
		interactions: interactions,
		records:      records,
		filter:       filter,
		quality:      quality,
		log:          log,
		now:          time.Now,
	}
}

// RecomputeAll rebuilds trending records for the full candidate set: every
// item with recent interactions plus recently created content. Items
// scoring below the threshold are removed rather than stored. Per-item
// failures are logged and skipped so one bad item cannot starve the batch.
// Returns the number of records written.
func (a *Analyzer) RecomputeAll(ctx context.Context) (int, error) {
	items, err := a.candidateSet(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	freqs := tagFrequencies(items)
	computedAt := a.now()

	written := 0
	for _, item := range items {
		rec, err := a.score(ctx, item, freqs, computedAt)
		if err != nil {
			a.log.Warn("trending recompute skipped item",
				logger.String("content_id", item.ID),
				logger.Error(err))
			continue
		}
		if err := a.store(ctx, rec); err != nil {
			a.log.Warn("trending record write failed",
				logger.String("content_id", item.ID),
				logger.Error(err))
			continue
		}
		if rec.Score >= a.cfg.MinScore {
			written++
		}
	}
	return written, nil
}

// RecomputeOne refreshes a single item's trending record after a
// high-impact interaction. Diversity is measured against the current top
// records, the best available stand-in for the batch candidate set.
func (a *Analyzer) RecomputeOne(ctx context.Context, contentID string) error {
	items, err := a.catalog.ItemsByID(ctx, []string{contentID})
	if err != nil {
		return fmt.Errorf("resolve item %s: %w", contentID, err)
	}
	computedAt := a.now()
	item, ok := items[contentID]
	if !ok {
		// Item vanished from the catalog; retire any stale record.
		return a.records.Delete(ctx, contentID, domain.TrendingRecord{
			ContentID:  contentID,
			ComputedAt: computedAt,
		})
	}

	peers, err := a.topItems(ctx)
	if err != nil {
		return err
	}
	peers[contentID] = item

	rec, err := a.score(ctx, item, tagFrequencies(peers), computedAt)
	if err != nil {
		return err
	}
	return a.store(ctx, rec)
}

// Top returns the current trending leaderboard, best first.
func (a *Analyzer) Top(ctx context.Context, n int) ([]domain.TrendingRecord, error) {
	if n <= 0 || n > a.cfg.TopN {
		n = a.cfg.TopN
	}
	return a.records.Top(ctx, n)
}

func (a *Analyzer) candidateSet(ctx context.Context) (map[string]*domain.ContentItem, error) {
	active, err := a.interactions.ActiveIDs(ctx, a.cfg.LookbackHorizon)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	items, err := a.catalog.ItemsByID(ctx, active)
	if err != nil {
		return nil, fmt.Errorf("resolve active items: %w", err)
	}

	since := a.now().Add(-a.cfg.LookbackHorizon)
	recent, err := a.catalog.RecentItems(ctx, since, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent items: %w", err)
	}
	for _, item := range recent {
		if _, ok := items[item.ID]; !ok {
			items[item.ID] = item
		}
	}
	return items, nil
}

func (a *Analyzer) score(ctx context.Context, item *domain.ContentItem, freqs map[string]float64, computedAt time.Time) (domain.TrendingRecord, error) {
	counts, err := a.interactions.Counts(ctx, item.ID, a.cfg.Window)
	if err != nil {
		return domain.TrendingRecord{}, fmt.Errorf("read counts: %w", err)
	}

	verdict := a.filter.Evaluate(ctx, item, domain.UserContext{})
	signals := domain.TrendingSignals{
		Velocity:      velocity(counts),
		Amplification: a.amplification(counts),
		Quality:       a.quality(item),
		Diversity:     diversity(item, freqs),
		Compliance:    compliance.Score(verdict),
	}

	return domain.TrendingRecord{
		ContentID:  item.ID,
		Signals:    signals,
		Score:      a.combine(signals),
		ComputedAt: computedAt,
	}, nil
}

// store writes the record, or retires it when the score falls below the
// inclusion threshold.
func (a *Analyzer) store(ctx context.Context, rec domain.TrendingRecord) error {
	if rec.Score < a.cfg.MinScore {
		return a.records.Delete(ctx, rec.ContentID, rec)
	}
	return a.records.Put(ctx, rec)
}

// velocity measures interaction growth against the item's own baseline,
// saturating toward 1.0. An item with no activity at all scores zero; an
// item with activity but no history is treated as growing from a baseline
// of one.
func velocity(counts domain.InteractionCounts) float64 {
	if counts.Window == 0 && counts.Baseline == 0 {
		return 0
	}
	baseline := counts.Baseline
	if baseline < 1 {
		baseline = 1
	}
	r := float64(counts.Window) / float64(baseline)
	return r / (1 + r)
}

func (a *Analyzer) amplification(counts domain.InteractionCounts) float64 {
	return amplifyShare*capped(counts.Shares, a.cfg.ShareCap) +
		amplifyMention*capped(counts.Mentions, a.cfg.MentionCap) +
		amplifyCrossSurface*capped(counts.CrossSurface, a.cfg.CrossSurfaceCap)
}

func capped(count int64, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	v := float64(count) / limit
	if v > 1 {
		return 1
	}
	return v
}

// diversity rewards items whose tags are underrepresented in the candidate
// set. An untagged item scores neutral.
func diversity(item *domain.ContentItem, freqs map[string]float64) float64 {
	tags := item.TagNames()
	if len(tags) == 0 {
		return 0.5
	}
	var sum float64
	for _, tag := range tags {
		sum += 1 - freqs[tag]
	}
	return sum / float64(len(tags))
}

// tagFrequencies computes, per tag, the fraction of candidate items
// carrying it.
func tagFrequencies(items map[string]*domain.ContentItem) map[string]float64 {
	counts := make(map[string]int)
	for _, item := range items {
		for _, tag := range item.TagNames() {
			counts[tag]++
		}
	}
	freqs := make(map[string]float64, len(counts))
	total := float64(len(items))
	for tag, n := range counts {
		freqs[tag] = float64(n) / total
	}
	return freqs
}

func (a *Analyzer) combine(s domain.TrendingSignals) float64 {
	return s.Velocity*a.cfg.VelocityWeight +
		s.Amplification*a.cfg.AmplificationWeight +
		s.Quality*a.cfg.QualityWeight +
		s.Diversity*a.cfg.DiversityWeight +
		s.Compliance*a.cfg.ComplianceWeight
}

func (a *Analyzer) topItems(ctx context.Context) (map[string]*domain.ContentItem, error) {
	records, err := a.records.Top(ctx, a.cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("read top records: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ContentID)
	}
	items, err := a.catalog.ItemsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve top items: %w", err)
	}
	return items, nil
}
