package config

import (
	"fmt"
	"math"
	"time"
)

// weightTolerance is the allowed drift when checking that a weight set sums to 1.0.
const weightTolerance = 1e-6

// Config holds all configuration for the discovery engine.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Ranking       RankingConfig       `yaml:"ranking"`
	Trending      TrendingConfig      `yaml:"trending"`
	Recommend     RecommendConfig     `yaml:"recommend"`
	Explore       ExploreConfig       `yaml:"explore"`
	Compliance    ComplianceConfig    `yaml:"compliance"`
	Logging       LoggingConfig       `yaml:"logging"`
	CORS          CORSConfig          `yaml:"cors"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `yaml:"port" env:"DISCOVERY_PORT"`
	Debug           bool          `yaml:"debug" env:"DISCOVERY_DEBUG"`
	MaxPageSize     int           `yaml:"max_page_size"`
	DefaultPageSize int           `yaml:"default_page_size"`
	MaxQueryLength  int           `yaml:"max_query_length"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"DISCOVERY_REQUEST_TIMEOUT"`
}

// ElasticsearchConfig holds index client configuration. Each discovery branch
// queries its own index.
type ElasticsearchConfig struct {
	URL        string        `yaml:"url" env:"ELASTICSEARCH_URL"`
	Username   string        `yaml:"username" env:"ELASTICSEARCH_USERNAME"`
	Password   string        `yaml:"password" env:"ELASTICSEARCH_PASSWORD"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout" env:"ELASTICSEARCH_TIMEOUT"`
	// BranchTimeout bounds a single index lookup; one slow index must not
	// hold up the whole fan-out.
	BranchTimeout time.Duration `yaml:"branch_timeout" env:"ELASTICSEARCH_BRANCH_TIMEOUT"`
	Indices       IndicesConfig `yaml:"indices"`
	Boost         BoostConfig   `yaml:"boost"`
}

// IndicesConfig names the index per retrieval branch.
type IndicesConfig struct {
	Content       string `yaml:"content"`
	Tags          string `yaml:"tags"`
	Organizations string `yaml:"organizations"`
	Locations     string `yaml:"locations"`
	People        string `yaml:"people"`
}

// BoostConfig holds field boosting values for full-text matching.
type BoostConfig struct {
	Title       float64 `yaml:"title"`
	Description float64 `yaml:"description"`
	Tags        float64 `yaml:"tags"`
}

// RedisConfig holds connection settings for the shared stores (cache,
// trending records, interaction counters, profile snapshots).
type RedisConfig struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	// Optional: the engine works without Redis, only slower.
	Enabled bool `yaml:"enabled" env:"REDIS_ENABLED"`
}

// CacheConfig holds per-surface freshness windows.
type CacheConfig struct {
	SearchTTL    time.Duration `yaml:"search_ttl" env:"CACHE_SEARCH_TTL"`
	TrendingTTL  time.Duration `yaml:"trending_ttl" env:"CACHE_TRENDING_TTL"`
	RecommendTTL time.Duration `yaml:"recommend_ttl" env:"CACHE_RECOMMEND_TTL"`
	ExploreTTL   time.Duration `yaml:"explore_ttl" env:"CACHE_EXPLORE_TTL"`
}

// RankingConfig holds scoring weights and normalization parameters.
// Weights must sum to 1.0.
type RankingConfig struct {
	RelevanceWeight       float64 `yaml:"relevance_weight"`
	QualityWeight         float64 `yaml:"quality_weight"`
	FreshnessWeight       float64 `yaml:"freshness_weight"`
	PopularityWeight      float64 `yaml:"popularity_weight"`
	PersonalizationWeight float64 `yaml:"personalization_weight"`
	// FreshnessHorizon is the age at which the freshness score reaches zero.
	FreshnessHorizon time.Duration `yaml:"freshness_horizon" env:"RANKING_FRESHNESS_HORIZON"`
	// PopularityHalfSaturation is the engagement count that yields a 0.5
	// popularity score.
	PopularityHalfSaturation float64 `yaml:"popularity_half_saturation"`
	// MultiIndexBonus is the flat relevance bonus for candidates matched by
	// more than one index, capped at 0.1.
	MultiIndexBonus float64 `yaml:"multi_index_bonus"`
}

// Weights returns the ranking weight set in component order.
func (c RankingConfig) Weights() []float64 {
	return []float64{
		c.RelevanceWeight, c.QualityWeight, c.FreshnessWeight,
		c.PopularityWeight, c.PersonalizationWeight,
	}
}

// TrendingConfig holds trending analysis parameters. Signal weights must sum
// to 1.0.
type TrendingConfig struct {
	Window          time.Duration `yaml:"window" env:"TRENDING_WINDOW"`
	LookbackHorizon time.Duration `yaml:"lookback_horizon" env:"TRENDING_LOOKBACK_HORIZON"`
	MinScore        float64       `yaml:"min_score"`
	TopN            int           `yaml:"top_n"`
	// BatchSchedule is a cron expression for the periodic full recompute.
	BatchSchedule string `yaml:"batch_schedule"`
	// RecomputePerSecond bounds event-triggered targeted recomputes.
	RecomputePerSecond float64 `yaml:"recompute_per_second"`
	RecomputeBurst     int     `yaml:"recompute_burst"`

	VelocityWeight      float64 `yaml:"velocity_weight"`
	AmplificationWeight float64 `yaml:"amplification_weight"`
	QualityWeight       float64 `yaml:"quality_weight"`
	DiversityWeight     float64 `yaml:"diversity_weight"`
	ComplianceWeight    float64 `yaml:"compliance_weight"`

	// Amplification signal caps; each component count is normalized against
	// its cap before the .4/.3/.3 combination.
	ShareCap        float64 `yaml:"share_cap"`
	MentionCap      float64 `yaml:"mention_cap"`
	CrossSurfaceCap float64 `yaml:"cross_surface_cap"`
}

// Weights returns the trending signal weights in signal order.
func (c TrendingConfig) Weights() []float64 {
	return []float64{
		c.VelocityWeight, c.AmplificationWeight, c.QualityWeight,
		c.DiversityWeight, c.ComplianceWeight,
	}
}

// RecommendConfig holds blending weights and source parameters. Source
// weights must sum to 1.0.
type RecommendConfig struct {
	ContentWeight       float64 `yaml:"content_weight"`
	CollaborativeWeight float64 `yaml:"collaborative_weight"`
	TrendingWeight      float64 `yaml:"trending_weight"`
	LocationWeight      float64 `yaml:"location_weight"`
	SerendipityWeight   float64 `yaml:"serendipity_weight"`

	MaxResults    int           `yaml:"max_results"`
	SourceTimeout time.Duration `yaml:"source_timeout" env:"RECOMMEND_SOURCE_TIMEOUT"`
	// MinSimilarity is the cosine similarity floor for content-based
	// candidates.
	MinSimilarity float64 `yaml:"min_similarity"`
	// SerendipityGrowthFactor qualifies a topic as surging when its current
	// interaction count exceeds this multiple of its baseline.
	SerendipityGrowthFactor float64 `yaml:"serendipity_growth_factor"`
	// TagDepthDecay discounts deep tag categories: tag weight =
	// (importance/100) * decay^depth.
	TagDepthDecay float64 `yaml:"tag_depth_decay"`
}

// Weights returns the source weights in source order.
func (c RecommendConfig) Weights() []float64 {
	return []float64{
		c.ContentWeight, c.CollaborativeWeight, c.TrendingWeight,
		c.LocationWeight, c.SerendipityWeight,
	}
}

// ExploreConfig holds browse-surface parameters.
type ExploreConfig struct {
	SectionSize  int     `yaml:"section_size"`
	ItemsPerTag  int     `yaml:"items_per_tag"`
	TopTags      int     `yaml:"top_tags"`
	LocalRadius  float64 `yaml:"local_radius_km"`
	UpcomingDays int     `yaml:"upcoming_days"`
	NewOrgDays   int     `yaml:"new_org_days"`
	// SeasonalTags maps month number (1-12) to tag names surfaced that month.
	SeasonalTags map[int][]string `yaml:"seasonal_tags"`
}

// ComplianceConfig holds rule evaluation defaults. Rule substance comes from
// the rule provider; these are fallback values.
type ComplianceConfig struct {
	DefaultMinAge  int      `yaml:"default_min_age"`
	BlockedRegions []string `yaml:"blocked_regions"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins" env:"CORS_ORIGINS"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// Load loads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	// Env always wins, including over defaults.
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default builds a Config with every default applied and no file input.
// Used by tests that need a valid configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "discovery"
	}
	if c.Service.Version == "" {
		c.Service.Version = "1.0.0"
	}
	if c.Service.Port == 0 {
		c.Service.Port = 8094
	}
	if c.Service.MaxPageSize == 0 {
		c.Service.MaxPageSize = 100
	}
	if c.Service.DefaultPageSize == 0 {
		c.Service.DefaultPageSize = 20
	}
	if c.Service.MaxQueryLength == 0 {
		c.Service.MaxQueryLength = 500
	}
	if c.Service.RequestTimeout == 0 {
		c.Service.RequestTimeout = 10 * time.Second
	}

	if c.Elasticsearch.URL == "" {
		c.Elasticsearch.URL = "http://localhost:9200"
	}
	if c.Elasticsearch.MaxRetries == 0 {
		c.Elasticsearch.MaxRetries = 3
	}
	if c.Elasticsearch.Timeout == 0 {
		c.Elasticsearch.Timeout = 30 * time.Second
	}
	if c.Elasticsearch.BranchTimeout == 0 {
		c.Elasticsearch.BranchTimeout = 2 * time.Second
	}
	if c.Elasticsearch.Indices.Content == "" {
		c.Elasticsearch.Indices.Content = "discovery_content"
	}
	if c.Elasticsearch.Indices.Tags == "" {
		c.Elasticsearch.Indices.Tags = "discovery_tags"
	}
	if c.Elasticsearch.Indices.Organizations == "" {
		c.Elasticsearch.Indices.Organizations = "discovery_organizations"
	}
	if c.Elasticsearch.Indices.Locations == "" {
		c.Elasticsearch.Indices.Locations = "discovery_locations"
	}
	if c.Elasticsearch.Indices.People == "" {
		c.Elasticsearch.Indices.People = "discovery_people"
	}
	if c.Elasticsearch.Boost.Title == 0 {
		c.Elasticsearch.Boost.Title = 3.0
	}
	if c.Elasticsearch.Boost.Description == 0 {
		c.Elasticsearch.Boost.Description = 1.0
	}
	if c.Elasticsearch.Boost.Tags == 0 {
		c.Elasticsearch.Boost.Tags = 2.0
	}

	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}

	if c.Cache.SearchTTL == 0 {
		c.Cache.SearchTTL = 5 * time.Minute
	}
	if c.Cache.TrendingTTL == 0 {
		c.Cache.TrendingTTL = 10 * time.Minute
	}
	if c.Cache.RecommendTTL == 0 {
		c.Cache.RecommendTTL = 15 * time.Minute
	}
	if c.Cache.ExploreTTL == 0 {
		c.Cache.ExploreTTL = 10 * time.Minute
	}

	if c.Ranking.RelevanceWeight == 0 {
		c.Ranking.RelevanceWeight = 0.40
	}
	if c.Ranking.QualityWeight == 0 {
		c.Ranking.QualityWeight = 0.20
	}
	if c.Ranking.FreshnessWeight == 0 {
		c.Ranking.FreshnessWeight = 0.15
	}
	if c.Ranking.PopularityWeight == 0 {
		c.Ranking.PopularityWeight = 0.15
	}
	if c.Ranking.PersonalizationWeight == 0 {
		c.Ranking.PersonalizationWeight = 0.10
	}
	if c.Ranking.FreshnessHorizon == 0 {
		c.Ranking.FreshnessHorizon = 30 * 24 * time.Hour
	}
	if c.Ranking.PopularityHalfSaturation == 0 {
		c.Ranking.PopularityHalfSaturation = 100
	}
	if c.Ranking.MultiIndexBonus == 0 {
		c.Ranking.MultiIndexBonus = 0.05
	}

	if c.Trending.Window == 0 {
		c.Trending.Window = 24 * time.Hour
	}
	if c.Trending.LookbackHorizon == 0 {
		c.Trending.LookbackHorizon = 7 * 24 * time.Hour
	}
	if c.Trending.MinScore == 0 {
		c.Trending.MinScore = 0.5
	}
	if c.Trending.TopN == 0 {
		c.Trending.TopN = 50
	}
	if c.Trending.BatchSchedule == "" {
		c.Trending.BatchSchedule = "@every 15m"
	}
	if c.Trending.RecomputePerSecond == 0 {
		c.Trending.RecomputePerSecond = 10
	}
	if c.Trending.RecomputeBurst == 0 {
		c.Trending.RecomputeBurst = 20
	}
	if c.Trending.VelocityWeight == 0 {
		c.Trending.VelocityWeight = 0.30
	}
	if c.Trending.AmplificationWeight == 0 {
		c.Trending.AmplificationWeight = 0.25
	}
	if c.Trending.QualityWeight == 0 {
		c.Trending.QualityWeight = 0.20
	}
	if c.Trending.DiversityWeight == 0 {
		c.Trending.DiversityWeight = 0.15
	}
	if c.Trending.ComplianceWeight == 0 {
		c.Trending.ComplianceWeight = 0.10
	}
	if c.Trending.ShareCap == 0 {
		c.Trending.ShareCap = 500
	}
	if c.Trending.MentionCap == 0 {
		c.Trending.MentionCap = 200
	}
	if c.Trending.CrossSurfaceCap == 0 {
		c.Trending.CrossSurfaceCap = 300
	}

	if c.Recommend.ContentWeight == 0 {
		c.Recommend.ContentWeight = 0.35
	}
	if c.Recommend.CollaborativeWeight == 0 {
		c.Recommend.CollaborativeWeight = 0.25
	}
	if c.Recommend.TrendingWeight == 0 {
		c.Recommend.TrendingWeight = 0.20
	}
	if c.Recommend.LocationWeight == 0 {
		c.Recommend.LocationWeight = 0.15
	}
	if c.Recommend.SerendipityWeight == 0 {
		c.Recommend.SerendipityWeight = 0.05
	}
	if c.Recommend.MaxResults == 0 {
		c.Recommend.MaxResults = 100
	}
	if c.Recommend.SourceTimeout == 0 {
		c.Recommend.SourceTimeout = 2 * time.Second
	}
	if c.Recommend.MinSimilarity == 0 {
		c.Recommend.MinSimilarity = 0.3
	}
	if c.Recommend.SerendipityGrowthFactor == 0 {
		c.Recommend.SerendipityGrowthFactor = 1.5
	}
	if c.Recommend.TagDepthDecay == 0 {
		c.Recommend.TagDepthDecay = 0.8
	}

	if c.Explore.SectionSize == 0 {
		c.Explore.SectionSize = 10
	}
	if c.Explore.ItemsPerTag == 0 {
		c.Explore.ItemsPerTag = 4
	}
	if c.Explore.TopTags == 0 {
		c.Explore.TopTags = 3
	}
	if c.Explore.LocalRadius == 0 {
		c.Explore.LocalRadius = 50
	}
	if c.Explore.UpcomingDays == 0 {
		c.Explore.UpcomingDays = 14
	}
	if c.Explore.NewOrgDays == 0 {
		c.Explore.NewOrgDays = 30
	}

	if c.Compliance.DefaultMinAge == 0 {
		c.Compliance.DefaultMinAge = 18
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Content-Type", "Authorization"}
	}
}

// Validate validates the configuration. Every weight set must sum to 1.0:
// the individual values are tunable, the sum is not.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return &ValidationError{Field: "service.port", Message: fmt.Sprintf("invalid port: %d", c.Service.Port)}
	}
	if c.Service.MaxPageSize < 1 {
		return &ValidationError{Field: "service.max_page_size", Message: "must be greater than 0"}
	}
	if c.Service.DefaultPageSize < 1 || c.Service.DefaultPageSize > c.Service.MaxPageSize {
		return &ValidationError{
			Field:   "service.default_page_size",
			Message: fmt.Sprintf("must be between 1 and %d", c.Service.MaxPageSize),
		}
	}
	if c.Elasticsearch.URL == "" {
		return &ValidationError{Field: "elasticsearch.url", Message: "is required"}
	}

	if err := validateWeights("ranking", c.Ranking.Weights()); err != nil {
		return err
	}
	if err := validateWeights("trending", c.Trending.Weights()); err != nil {
		return err
	}
	if err := validateWeights("recommend", c.Recommend.Weights()); err != nil {
		return err
	}

	if c.Trending.MinScore < 0 || c.Trending.MinScore > 1 {
		return &ValidationError{Field: "trending.min_score", Message: "must be in [0,1]"}
	}
	if c.Trending.TopN < 1 {
		return &ValidationError{Field: "trending.top_n", Message: "must be greater than 0"}
	}
	if c.Recommend.MinSimilarity < 0 || c.Recommend.MinSimilarity > 1 {
		return &ValidationError{Field: "recommend.min_similarity", Message: "must be in [0,1]"}
	}
	if c.Ranking.MultiIndexBonus < 0 || c.Ranking.MultiIndexBonus > 0.1 {
		return &ValidationError{Field: "ranking.multi_index_bonus", Message: "must be in [0,0.1]"}
	}
	return nil
}

func validateWeights(name string, weights []float64) error {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return &ValidationError{Field: name, Message: "weights must be non-negative"}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return &ValidationError{
			Field:   name,
			Message: fmt.Sprintf("weights must sum to 1.0, got %.6f", sum),
		}
	}
	return nil
}
