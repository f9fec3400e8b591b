package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicpulse/discovery/internal/api"
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
	"github.com/civicpulse/discovery/internal/service"
	"github.com/civicpulse/discovery/internal/telemetry"
	"github.com/civicpulse/discovery/internal/trending"
)

type stubSearcher struct {
	results []domain.Candidate
}

func (s *stubSearcher) SearchIndex(_ context.Context, branch string, _ *domain.ProcessedQuery, _ int) ([]domain.Candidate, error) {
	if branch == "content" {
		return s.results, nil
	}
	return nil, nil
}

type stubSuggester struct{}

func (stubSuggester) Suggest(context.Context, string, int) ([]string, error) {
	return []string{"Clean energy fund"}, nil
}

func newTestRouter(t *testing.T, catalog domain.Catalog, searcher *stubSearcher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	log := logger.NewNop()

	filter := compliance.NewFilter(&compliance.StaticRuleProvider{}, log)
	records := trending.NewMemoryRecordStore()
	metrics := telemetry.NewProvider()

	svc := service.NewDiscoveryService(cfg, service.Deps{
		Processor: query.NewProcessor(cfg.Service.MaxQueryLength, query.NewDictionaryExtractor(nil), log),
		Orch:      search.NewOrchestrator(searcher, []string{"content"}, time.Second, log),
		Ranker:    search.NewRanker(cfg.Ranking, cfg.Recommend.TagDepthDecay),
		Catalog:   catalog,
		Filter:    filter,
		Cache:     cache.NewManager(cache.NewMemoryStore(), log),
		Profiles:  profile.NewMemoryStore(),
		Engine:    recommend.NewEngine(cfg.Recommend, nil, log),
		Curator:   explore.NewCurator(cfg.Explore, catalog, records, filter, log),
		Records:   records,
		Ingest:    trending.NewMemoryInteractionStore(),
		Suggester: stubSuggester{},
		Metrics:   metrics,
	}, log)

	handler := api.NewHandler(svc, metrics, log)
	server := api.NewServer(cfg, handler, metrics.Handler(), log)
	return server.Router()
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Search_GET(t *testing.T) {
	item := &domain.ContentItem{
		ID:               "c1",
		Type:             domain.ContentOrganization,
		Title:            "Clean energy fund",
		CreatedAt:        time.Now().Add(-time.Hour),
		ModerationStatus: "approved",
	}
	searcher := &stubSearcher{results: []domain.Candidate{
		{ContentID: "c1", MatchScore: 5, Indices: []string{"content"}},
	}}
	router := newTestRouter(t, domain.NewMemoryCatalog(item), searcher)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search?q=clean+energy", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp domain.DiscoveryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "c1" {
		t.Errorf("Items = %v, want [c1]", resp.Items)
	}
}

func TestHandler_Search_EmptyQueryServesExplore(t *testing.T) {
	router := newTestRouter(t, domain.NewMemoryCatalog(), &stubSearcher{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/search", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp explore.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// An explore page, not a search result page.
	if strings.Contains(rec.Body.String(), "total_count") {
		t.Errorf("body = %s, want an explore page", rec.Body.String())
	}
}

func TestHandler_Search_POST_InvalidBody(t *testing.T) {
	router := newTestRouter(t, domain.NewMemoryCatalog(), &stubSearcher{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/search", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != "INVALID_REQUEST" {
		t.Errorf("Code = %s, want INVALID_REQUEST", errResp.Code)
	}
}

func TestHandler_Suggest_RequiresQuery(t *testing.T) {
	router := newTestRouter(t, domain.NewMemoryCatalog(), &stubSearcher{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/suggest", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without q", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/suggest?q=cle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Clean energy fund") {
		t.Errorf("body = %s, want suggestions", rec.Body.String())
	}
}

func TestHandler_Interactions_Accepted(t *testing.T) {
	router := newTestRouter(t, domain.NewMemoryCatalog(), &stubSearcher{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/interactions",
		`{"content_id":"c1","kind":"view"}`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/interactions", `{"kind":"view"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a missing content_id", rec.Code)
	}
}

func TestHandler_HealthAndReadiness(t *testing.T) {
	router := newTestRouter(t, domain.NewMemoryCatalog(), &stubSearcher{})

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/ready status = %d, want 200", rec.Code)
	}
}

func TestHandler_RequestIDHeader(t *testing.T) {
	router := newTestRouter(t, domain.NewMemoryCatalog(), &stubSearcher{})

	rec := doRequest(t, router, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a generated X-Request-ID")
	}
}

func TestHandler_Trending_Empty(t *testing.T) {
	router := newTestRouter(t, domain.NewMemoryCatalog(), &stubSearcher{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/trending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp domain.DiscoveryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("Items = %v, want empty leaderboard", resp.Items)
	}
}
