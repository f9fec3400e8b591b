// Package service implements the discovery flows: search, trending,
// recommendations, explore, suggestions, and interaction ingestion. Every
// surface passes through the compliance filter before anything reaches a
// response.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/civicpulse/discovery/internal/cache"
	"github.com/civicpulse/discovery/internal/compliance"
	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/domain"
	"github.com/civicpulse/discovery/internal/explore"
	"github.com/civicpulse/discovery/internal/logger"
	"github.com/civicpulse/discovery/internal/profile"
	"github.com/civicpulse/discovery/internal/query"
	"github.com/civicpulse/discovery/internal/recommend"
	"github.com/civicpulse/discovery/internal/search"
	"github.com/civicpulse/discovery/internal/telemetry"
	"github.com/civicpulse/discovery/internal/trending"
)

// ErrBrowse signals that an empty query should be served by the explore
// surface instead of search.
var ErrBrowse = errors.New("empty query routed to explore")

// ErrInvalidInput marks malformed requests that should map to a client
// error.
var ErrInvalidInput = errors.New("invalid input")

// Surface names for metrics and cache keys.
const (
	surfaceSearch    = "search"
	surfaceTrending  = "trending"
	surfaceRecommend = "recommend"
	surfaceExplore   = "explore"
	surfaceSuggest   = "suggest"
)

// Suggester serves typeahead suggestions.
type Suggester interface {
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Trigger requests an asynchronous targeted trending recompute.
type Trigger interface {
	Trigger(contentID string)
}

// DependencyChecker reports the health of one backing dependency.
type DependencyChecker interface {
	HealthCheck(ctx context.Context) error
}

// DiscoveryService wires the discovery surfaces together.
type DiscoveryService struct {
	cfg       *config.Config
	processor *query.Processor
	orch      *search.Orchestrator
	ranker    *search.Ranker
	catalog   domain.Catalog
	filter    *compliance.Filter
	cache     *cache.Manager
	profiles  profile.Store
	engine    *recommend.Engine
	curator   *explore.Curator
	records   trending.RecordStore
	ingest    trending.InteractionStore
	trigger   Trigger
	suggester Suggester
	deps      map[string]DependencyChecker
	metrics   *telemetry.Provider
	log       logger.Logger
	now       func() time.Time
}

// Deps bundles the service's collaborators.
type Deps struct {
	Processor *query.Processor
	Orch      *search.Orchestrator
	Ranker    *search.Ranker
	Catalog   domain.Catalog
	Filter    *compliance.Filter
	Cache     *cache.Manager
	Profiles  profile.Store
	Engine    *recommend.Engine
	Curator   *explore.Curator
	Records   trending.RecordStore
	Ingest    trending.InteractionStore
	Trigger   Trigger
	Suggester Suggester
	// Checkers maps dependency name -> health probe for readiness.
	Checkers map[string]DependencyChecker
	Metrics  *telemetry.Provider
}

// NewDiscoveryService creates the service.
func NewDiscoveryService(cfg *config.Config, d Deps, log logger.Logger) *DiscoveryService {
	return &DiscoveryService{
		cfg:       cfg,
		processor: d.Processor,
		orch:      d.Orch,
		ranker:    d.Ranker,
		catalog:   d.Catalog,
		filter:    d.Filter,
		cache:     d.Cache,
		profiles:  d.Profiles,
		engine:    d.Engine,
		curator:   d.Curator,
		records:   d.Records,
		ingest:    d.Ingest,
		trigger:   d.Trigger,
		suggester: d.Suggester,
		deps:      d.Checkers,
		metrics:   d.Metrics,
		log:       log,
		now:       time.Now,
	}
}

// Search serves a full-text discovery request. Empty queries return
// ErrBrowse so the caller can route to the explore surface. A partially
// degraded fan-out still produces a response; only total retrieval failure
// is an error.
func (s *DiscoveryService) Search(ctx context.Context, req *domain.SearchRequest) (*domain.DiscoveryResponse, error) {
	if err := req.Validate(s.cfg.Service.MaxPageSize, s.cfg.Service.DefaultPageSize, s.cfg.Service.MaxQueryLength); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	q, err := s.processor.Process(req.Query, req.User)
	if err != nil {
		return nil, err
	}
	if q.IsBrowse() {
		return nil, ErrBrowse
	}

	user := s.resolveUser(ctx, req.User)

	key := cache.SearchKey(q.Cleaned, user.UserID, req.Page, req.Size)
	var cached domain.DiscoveryResponse
	if s.cache.GetJSON(ctx, key, &cached) {
		s.metrics.RecordCache(surfaceSearch, true)
		return &cached, nil
	}
	s.metrics.RecordCache(surfaceSearch, false)

	// Fetch one page past the requested offset so pagination stays
	// meaningful after compliance drops.
	fetchSize := req.Page*req.Size + req.Size
	fanout, err := s.orch.Search(ctx, q, fetchSize)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(fanout.Candidates))
	for i := range fanout.Candidates {
		ids = append(ids, fanout.Candidates[i].ContentID)
	}
	items, err := s.catalog.ItemsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve candidates: %w", err)
	}

	passed, verdicts := s.filterMap(ctx, items, user, surfaceSearch)
	ranked := s.ranker.Rank(q, fanout.Candidates, passed, user.Profile)

	resp := s.paginate(ranked, verdicts, passed, req)
	resp.TookMs = time.Since(q.StartedAt).Milliseconds()
	resp.Degraded = fanout.Degraded()
	resp.FailedBranches = fanout.FailedBranches
	if resp.Degraded {
		s.metrics.RecordDegraded(surfaceSearch, fanout.FailedBranches)
	} else {
		// Degraded pages are not worth pinning for the full TTL.
		s.cache.SetJSON(ctx, key, resp, s.cfg.Cache.SearchTTL)
	}
	return resp, nil
}

// Trending serves the current leaderboard, compliance-filtered for the
// requesting user. Responses for anonymous users are cached.
func (s *DiscoveryService) Trending(ctx context.Context, user domain.UserContext, limit int) (*domain.DiscoveryResponse, error) {
	start := s.now()
	if limit <= 0 || limit > s.cfg.Trending.TopN {
		limit = s.cfg.Trending.TopN
	}
	user = s.resolveUser(ctx, user)

	cacheable := anonymous(user)
	key := cache.TrendingKey()
	if cacheable {
		var cached domain.DiscoveryResponse
		if s.cache.GetJSON(ctx, key, &cached) {
			s.metrics.RecordCache(surfaceTrending, true)
			return trim(&cached, limit), nil
		}
		s.metrics.RecordCache(surfaceTrending, false)
	}

	// Build over the full leaderboard and trim per request, so one small
	// request cannot pin a short page in the shared cache entry.
	records, err := s.records.Top(ctx, s.cfg.Trending.TopN)
	if err != nil {
		return nil, fmt.Errorf("read trending records: %w", err)
	}
	ids := make([]string, 0, len(records))
	scores := make(map[string]float64, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ContentID)
		scores[rec.ContentID] = rec.Score
	}
	items, err := s.catalog.ItemsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve trending items: %w", err)
	}
	passed, verdicts := s.filterMap(ctx, items, user, surfaceTrending)

	resp := &domain.DiscoveryResponse{Items: []domain.ContentSummary{}}
	for _, id := range ids {
		item, ok := passed[id]
		if !ok {
			continue
		}
		resp.Items = append(resp.Items, domain.ContentSummary{
			ID:       item.ID,
			Type:     item.Type,
			Title:    item.Title,
			Combined: scores[id],
			Warnings: verdicts[id].Warnings,
		})
	}
	resp.TotalCount = int64(len(resp.Items))
	resp.TookMs = time.Since(start).Milliseconds()

	if cacheable {
		s.cache.SetJSON(ctx, key, resp, s.cfg.Cache.TrendingTTL)
	}
	return trim(resp, limit), nil
}

// Recommend serves a personalized feed for one user.
func (s *DiscoveryService) Recommend(ctx context.Context, userID string, user domain.UserContext, limit int) (*domain.DiscoveryResponse, error) {
	start := s.now()
	if limit <= 0 || limit > s.cfg.Recommend.MaxResults {
		limit = s.cfg.Recommend.MaxResults
	}
	user.UserID = userID
	user = s.resolveUser(ctx, user)

	// The cache holds raw engine candidates, never a finished page: region,
	// age, and location arrive per request, so compliance has to run against
	// the current context even on a hit.
	key := cache.RecommendKey(userID)
	var candidates []domain.RecommendationCandidate
	if s.cache.GetJSON(ctx, key, &candidates) {
		s.metrics.RecordCache(surfaceRecommend, true)
	} else {
		s.metrics.RecordCache(surfaceRecommend, false)
		candidates = s.engine.Recommend(ctx, user)
		s.cache.SetJSON(ctx, key, candidates, s.cfg.Cache.RecommendTTL)
	}

	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		ids = append(ids, candidates[i].ContentID)
	}
	items, err := s.catalog.ItemsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve recommendations: %w", err)
	}
	passed, verdicts := s.filterMap(ctx, items, user, surfaceRecommend)

	resp := &domain.DiscoveryResponse{Items: []domain.ContentSummary{}}
	for _, cand := range candidates {
		item, ok := passed[cand.ContentID]
		if !ok {
			continue
		}
		resp.Items = append(resp.Items, domain.ContentSummary{
			ID:       item.ID,
			Type:     item.Type,
			Title:    item.Title,
			Combined: cand.Combined,
			Warnings: verdicts[cand.ContentID].Warnings,
		})
	}
	resp.TotalCount = int64(len(resp.Items))
	resp.TookMs = time.Since(start).Milliseconds()
	return trim(resp, limit), nil
}

// Explore serves the curated browse page. The curator applies compliance
// per section; anonymous pages are cached.
func (s *DiscoveryService) Explore(ctx context.Context, user domain.UserContext) (*explore.Response, error) {
	user = s.resolveUser(ctx, user)

	cacheable := anonymous(user)
	key := cache.ExploreKey("page", user.UserID)
	if cacheable {
		var cached explore.Response
		if s.cache.GetJSON(ctx, key, &cached) {
			s.metrics.RecordCache(surfaceExplore, true)
			return &cached, nil
		}
		s.metrics.RecordCache(surfaceExplore, false)
	}

	resp := s.curator.Explore(ctx, user)
	if cacheable {
		s.cache.SetJSON(ctx, key, resp, s.cfg.Cache.ExploreTTL)
	}
	return resp, nil
}

// Suggest serves typeahead title suggestions from the approved-content
// index.
func (s *DiscoveryService) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	return s.suggester.Suggest(ctx, prefix, limit)
}

// highImpactKinds trigger an immediate targeted trending recompute rather
// than waiting for the next batch.
var highImpactKinds = map[string]bool{
	trending.KindShare:        true,
	trending.KindMention:      true,
	trending.KindCrossSurface: true,
}

// Ingest accepts one interaction event for trending analysis.
func (s *DiscoveryService) Ingest(ctx context.Context, ev domain.Interaction) error {
	if ev.ContentID == "" || ev.Kind == "" {
		return fmt.Errorf("%w: interaction requires content_id and kind", ErrInvalidInput)
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.ingest.Record(ctx, ev); err != nil {
		return err
	}
	s.metrics.RecordInteraction(ev.Kind)

	// Attribute the event to the item's tags so topic surges register.
	if items, err := s.catalog.ItemsByID(ctx, []string{ev.ContentID}); err == nil {
		if item, ok := items[ev.ContentID]; ok {
			for _, tag := range item.TagNames() {
				if err := s.ingest.RecordTopic(ctx, tag, ev.At); err != nil {
					s.log.Warn("topic attribution failed",
						logger.String("tag", tag), logger.Error(err))
				}
			}
		}
	}

	if highImpactKinds[ev.Kind] && s.trigger != nil {
		s.trigger.Trigger(ev.ContentID)
	}
	return nil
}

// HealthCheck probes every registered dependency.
func (s *DiscoveryService) HealthCheck(ctx context.Context) *domain.HealthStatus {
	status := &domain.HealthStatus{
		Status:       "healthy",
		Timestamp:    s.now(),
		Version:      s.cfg.Service.Version,
		Dependencies: make(map[string]string, len(s.deps)),
	}
	for name, checker := range s.deps {
		if err := checker.HealthCheck(ctx); err != nil {
			status.Status = "degraded"
			status.Dependencies[name] = err.Error()
			continue
		}
		status.Dependencies[name] = "ok"
	}
	return status
}

// resolveUser attaches the stored profile snapshot when the request names
// a user but carries no profile. Profile lookup failure is logged and the
// request proceeds anonymously.
func (s *DiscoveryService) resolveUser(ctx context.Context, user domain.UserContext) domain.UserContext {
	if user.UserID == "" || user.Profile != nil {
		return user
	}
	p, err := s.profiles.Profile(ctx, user.UserID)
	if err != nil {
		s.log.Warn("profile lookup failed",
			logger.String("user_id", user.UserID), logger.Error(err))
		return user
	}
	user.Profile = p
	if p != nil {
		if user.Region == "" {
			user.Region = p.Region
		}
		if user.Age == 0 {
			user.Age = p.Age
		}
		if user.Location == nil {
			user.Location = p.Location
		}
	}
	return user
}

// filterMap runs the compliance filter over an item map and returns the
// passing subset plus all verdicts.
func (s *DiscoveryService) filterMap(ctx context.Context, items map[string]*domain.ContentItem, user domain.UserContext, surface string) (map[string]*domain.ContentItem, map[string]domain.ComplianceVerdict) {
	list := make([]*domain.ContentItem, 0, len(items))
	for _, item := range items {
		list = append(list, item)
	}
	passed, verdicts := s.filter.FilterItems(ctx, list, user)

	out := make(map[string]*domain.ContentItem, len(passed))
	for _, item := range passed {
		out[item.ID] = item
	}
	s.metrics.RecordComplianceDrops(surface, len(list)-len(passed))
	return out, verdicts
}

func (s *DiscoveryService) paginate(ranked []domain.ScoredResult, verdicts map[string]domain.ComplianceVerdict, items map[string]*domain.ContentItem, req *domain.SearchRequest) *domain.DiscoveryResponse {
	resp := &domain.DiscoveryResponse{
		Items:      []domain.ContentSummary{},
		TotalCount: int64(len(ranked)),
	}

	offset := (req.Page - 1) * req.Size
	if offset >= len(ranked) {
		return resp
	}
	end := offset + req.Size
	if end > len(ranked) {
		end = len(ranked)
	}

	for _, r := range ranked[offset:end] {
		item := items[r.ContentID]
		summary := domain.ContentSummary{
			ID:       r.ContentID,
			Type:     item.Type,
			Title:    item.Title,
			Combined: r.Combined,
			Snippet:  r.Snippet,
			Warnings: verdicts[r.ContentID].Warnings,
		}
		if req.IncludeScores {
			scores := r.Scores
			summary.Scores = &scores
		}
		resp.Items = append(resp.Items, summary)
	}
	if end < len(ranked) {
		resp.NextCursor = strconv.Itoa(req.Page + 1)
	}
	return resp
}

// anonymous reports whether the context carries nothing user-specific, in
// which case responses are safe to share through the cache.
func anonymous(user domain.UserContext) bool {
	return user.UserID == "" && user.Region == "" && user.Age == 0 &&
		user.Location == nil && user.Profile == nil
}

func trim(resp *domain.DiscoveryResponse, limit int) *domain.DiscoveryResponse {
	if len(resp.Items) > limit {
		out := *resp
		out.Items = resp.Items[:limit]
		return &out
	}
	return resp
}
