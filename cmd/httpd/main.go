package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/civicpulse/discovery/internal/api"
	"github.com/civicpulse/discovery/internal/cache"
	"github.com/civicpulse/discovery/internal/compliance"
	"github.com/civicpulse/discovery/internal/config"
	"github.com/civicpulse/discovery/internal/elasticsearch"
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

func main() {
	os.Exit(run())
}

func run() int {
	configPath := config.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	log = log.With(logger.String("service", cfg.Service.Name))

	log.Info("Starting discovery engine",
		logger.String("version", cfg.Service.Version),
		logger.Int("port", cfg.Service.Port),
		logger.Bool("debug", cfg.Service.Debug),
	)

	log.Info("Connecting to Elasticsearch", logger.String("url", cfg.Elasticsearch.URL))
	esClient, err := elasticsearch.NewClient(&cfg.Elasticsearch)
	if err != nil {
		log.Error("Failed to create Elasticsearch client", logger.Error(err))
		return 1
	}

	ctx := context.Background()
	metrics := telemetry.NewProvider()

	// Redis is optional: without it the engine runs on in-process stores.
	var redisClient *redis.Client
	checkers := map[string]service.DependencyChecker{"elasticsearch": esClient}
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to Redis", logger.Error(err))
			return 1
		}
		checkers["redis"] = redisChecker{redisClient}
		log.Info("Connected to Redis", logger.String("address", cfg.Redis.Address))
	} else {
		log.Warn("Redis disabled; using in-memory stores")
	}

	var (
		cacheStore   cache.Store
		records      trending.RecordStore
		interactions trending.InteractionStore
		profiles     profile.Store
		collab       recommend.CollaborativeProvider
	)
	if redisClient != nil {
		cacheStore = cache.NewRedisStore(redisClient)
		records = trending.NewRedisRecordStore(redisClient)
		interactions = trending.NewRedisInteractionStore(redisClient, 2*cfg.Trending.Window+cfg.Trending.LookbackHorizon)
		profiles = profile.NewRedisStore(redisClient)
		collab = recommend.NewRedisCollaborativeStore(redisClient)
	} else {
		cacheStore = cache.NewMemoryStore()
		records = trending.NewMemoryRecordStore()
		interactions = trending.NewMemoryInteractionStore()
		profiles = profile.NewMemoryStore()
		collab = emptyCollab{}
	}

	catalog := elasticsearch.NewCatalog(esClient, &cfg.Elasticsearch)
	searcher := elasticsearch.NewIndexSearcher(esClient, &cfg.Elasticsearch)
	processor := query.NewProcessor(cfg.Service.MaxQueryLength, query.NewDictionaryExtractor(nil), log)
	orch := search.NewOrchestrator(searcher, elasticsearch.Branches(), cfg.Elasticsearch.BranchTimeout, log)
	ranker := search.NewRanker(cfg.Ranking, cfg.Recommend.TagDepthDecay)
	filter := compliance.NewFilter(&compliance.StaticRuleProvider{
		Rules: compliance.Rules{
			MinAge:         cfg.Compliance.DefaultMinAge,
			BlockedRegions: cfg.Compliance.BlockedRegions,
		},
	}, log)

	analyzer := trending.NewAnalyzer(cfg.Trending, catalog, interactions, records, filter, ranker.Quality, log)
	scheduler := trending.NewScheduler(cfg.Trending, analyzer, metrics, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Error("Failed to start trending scheduler", logger.Error(err))
		return 1
	}
	defer scheduler.Stop()

	sources := recommend.DefaultSources(cfg.Recommend, cfg.Trending, cfg.Explore.LocalRadius, catalog, collab, records, interactions)
	engine := recommend.NewEngine(cfg.Recommend, sources, log)
	curator := explore.NewCurator(cfg.Explore, catalog, records, filter, log)

	svc := service.NewDiscoveryService(cfg, service.Deps{
		Processor: processor,
		Orch:      orch,
		Ranker:    ranker,
		Catalog:   catalog,
		Filter:    filter,
		Cache:     cache.NewManager(cacheStore, log),
		Profiles:  profiles,
		Engine:    engine,
		Curator:   curator,
		Records:   records,
		Ingest:    interactions,
		Trigger:   scheduler,
		Suggester: searcher,
		Checkers:  checkers,
		Metrics:   metrics,
	}, log)

	handler := api.NewHandler(svc, metrics, log)
	server := api.NewServer(cfg, handler, metrics.Handler(), log)

	if err := server.RunWithGracefulShutdown(ctx); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Discovery engine exited cleanly")
	return 0
}

// redisChecker adapts the Redis client to the health probe interface.
type redisChecker struct {
	client *redis.Client
}

func (c redisChecker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// emptyCollab serves no collaborative scores when Redis is unavailable.
type emptyCollab struct{}

func (emptyCollab) ItemsForUser(context.Context, string, int) (map[string]float64, error) {
	return nil, nil
}
