// Package telemetry exports Prometheus metrics for the discovery engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all discovery Prometheus metrics.
type Metrics struct {
	// Request metrics, per surface (search, trending, recommend, explore).
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	DegradedTotal   *prometheus.CounterVec

	// Fan-out metrics
	BranchFailures *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Trending metrics
	TrendingRecomputes  *prometheus.CounterVec
	TrendingRecordCount prometheus.Gauge
	TriggersDropped     prometheus.Counter

	// Compliance metrics
	ComplianceDrops *prometheus.CounterVec

	// Ingestion metrics
	InteractionsIngested *prometheus.CounterVec
}

// Provider wraps the metric set and the scrape handler. Each provider
// carries its own registry, so constructing one is always safe.
type Provider struct {
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider initializes all discovery metrics on a fresh registry.
func NewProvider() *Provider {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Provider{
		Metrics:  initMetrics(promauto.With(registry)),
		registry: registry,
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func initMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "discovery_request_duration_seconds",
			Help:    "Time to serve one discovery request",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"surface"}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_requests_total",
			Help: "Total discovery requests served",
		}, []string{"surface", "status"}),

		DegradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_degraded_responses_total",
			Help: "Responses assembled with one or more branches missing",
		}, []string{"surface"}),

		BranchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_branch_failures_total",
			Help: "Search fan-out branch failures",
		}, []string{"branch"}),

		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_cache_hits_total",
			Help: "Cache hits by surface",
		}, []string{"surface"}),

		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_cache_misses_total",
			Help: "Cache misses by surface",
		}, []string{"surface"}),

		TrendingRecomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_trending_recomputes_total",
			Help: "Trending recompute runs by mode (batch, targeted)",
		}, []string{"mode", "status"}),

		TrendingRecordCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "discovery_trending_records",
			Help: "Records written by the last trending batch",
		}),

		TriggersDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "discovery_trending_triggers_dropped_total",
			Help: "Targeted recompute triggers dropped due to a full queue",
		}),

		ComplianceDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_compliance_drops_total",
			Help: "Items removed from responses by compliance checks",
		}, []string{"surface"}),

		InteractionsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_interactions_ingested_total",
			Help: "Interaction events accepted for trending analysis",
		}, []string{"kind"}),
	}
}

// RecordRequest records one served request.
func (p *Provider) RecordRequest(surface, status string, duration time.Duration) {
	p.Metrics.RequestsTotal.WithLabelValues(surface, status).Inc()
	p.Metrics.RequestDuration.WithLabelValues(surface).Observe(duration.Seconds())
}

// RecordDegraded marks a partially assembled response.
func (p *Provider) RecordDegraded(surface string, branches []string) {
	p.Metrics.DegradedTotal.WithLabelValues(surface).Inc()
	for _, b := range branches {
		p.Metrics.BranchFailures.WithLabelValues(b).Inc()
	}
}

// RecordCache records a cache lookup outcome.
func (p *Provider) RecordCache(surface string, hit bool) {
	if hit {
		p.Metrics.CacheHits.WithLabelValues(surface).Inc()
		return
	}
	p.Metrics.CacheMisses.WithLabelValues(surface).Inc()
}

// RecordRecompute records one trending recompute run.
func (p *Provider) RecordRecompute(mode string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.Metrics.TrendingRecomputes.WithLabelValues(mode, status).Inc()
}

// SetTrendingRecords records how many records the last batch wrote.
func (p *Provider) SetTrendingRecords(n int) {
	p.Metrics.TrendingRecordCount.Set(float64(n))
}

// RecordTriggerDropped counts one targeted-recompute trigger lost to a full
// queue.
func (p *Provider) RecordTriggerDropped() {
	p.Metrics.TriggersDropped.Inc()
}

// RecordComplianceDrops counts items removed from a surface.
func (p *Provider) RecordComplianceDrops(surface string, n int) {
	if n > 0 {
		p.Metrics.ComplianceDrops.WithLabelValues(surface).Add(float64(n))
	}
}

// RecordInteraction counts one ingested interaction event.
func (p *Provider) RecordInteraction(kind string) {
	p.Metrics.InteractionsIngested.WithLabelValues(kind).Inc()
}
