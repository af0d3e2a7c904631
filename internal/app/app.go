// Package app wires the engine's components from configuration. Hosts open one
// App at startup and close it at shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/newsroom-engine/internal/agent/discovery"
	"github.com/newsroom-engine/internal/agent/pipeline"
	"github.com/newsroom-engine/internal/ai"
	"github.com/newsroom-engine/internal/audit"
	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/dedup"
	"github.com/newsroom-engine/internal/embedding"
	"github.com/newsroom-engine/internal/fetcher"
	"github.com/newsroom-engine/internal/metrics"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/source"
	"github.com/newsroom-engine/internal/source/rss"
	"github.com/newsroom-engine/internal/source/static"
	"github.com/newsroom-engine/internal/source/youtube"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/internal/storage/gormrepo"
	"github.com/newsroom-engine/internal/vector/qdrant"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
	"github.com/newsroom-engine/pkg/retry"
)

// App holds every long-lived component
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Repo      storage.Repository
	Audit     *audit.Logger
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Sources   *source.Manager
	Index     *dedup.Index
	Discovery *discovery.Agent
	Pipeline  *pipeline.Agent

	redis *redis.Client
}

// Open builds the container. Optional collaborators that fail to start are
// logged and left out; storage failures are fatal.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	repo, err := openRepository(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Repo = repo
	if err := repo.Migrate(); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := repo.SeedTaxonomy(ctx, taxonomySeed(cfg.Taxonomy)); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to seed taxonomy: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.New(a.Registry, cfg.Metrics.Namespace)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Limits{
		AnthropicPerMinute: cfg.RateLimit.AnthropicRequestsPerMinute,
		EmbeddingPerMinute: cfg.RateLimit.EmbeddingRequestsPerMinute,
		FetcherPerMinute:   cfg.RateLimit.FetcherRequestsPerMinute,
	})
	retryCfg := retry.Config{
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		InitialBackoff: cfg.Pipeline.InitialBackoff,
		MaxBackoff:     cfg.Pipeline.MaxBackoff,
		AttemptTimeout: cfg.Pipeline.CallTimeout,
	}

	a.Audit = a.openAudit(ctx, limiter)
	a.Index = a.openIndex(ctx, limiter, retryCfg)

	a.Sources = source.NewManager()
	a.registerSources(ctx, limiter)

	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)

	a.Discovery = discovery.NewAgent(discovery.Deps{
		Sources:   a.Sources,
		Clusterer: aiClient,
		Index:     a.Index,
		Repo:      repo,
		Audit:     a.Audit,
		Metrics:   a.Metrics,
		Retry:     retryCfg,
	}, log)

	a.Pipeline = pipeline.NewAgent(pipeline.Deps{
		Repo:               repo,
		TitleMerger:        aiClient,
		Generator:          aiClient,
		Reviewer:           aiClient,
		Classifier:         aiClient,
		Fetcher:            fetcher.New(cfg.Fetcher, limiter, log),
		Index:              a.Index,
		Audit:              a.Audit,
		Metrics:            a.Metrics,
		Retry:              retryCfg,
		AutoCategorize:     cfg.Pipeline.AutoCategorize,
		DefaultContentType: models.ParseContentType(cfg.Pipeline.DefaultType),
	}, log)

	log.Info().
		Str("driver", cfg.Database.Driver).
		Strs("sources", a.Sources.Names()).
		Bool("metrics", a.Metrics != nil).
		Msg("Application initialized")
	return a, nil
}

// Close drains the audit log and releases connections
func (a *App) Close() error {
	var errs []error
	if a.Audit != nil {
		if err := a.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit log: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.Repo != nil {
		if err := a.Repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openRepository(cfg config.DatabaseConfig) (*gormrepo.Repository, error) {
	repo, err := gormrepo.New(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repo, nil
}

func (a *App) openAudit(ctx context.Context, limiter *ratelimit.MultiLimiter) *audit.Logger {
	sinks := []audit.Sink{audit.NewRepositorySink(a.Repo)}

	if a.Config.Audit.Sheets.Enabled {
		sheetsSink, err := audit.NewSheetsSink(ctx, a.Config.Audit.Sheets, limiter, a.Log)
		if err != nil {
			a.Log.Warn().Err(err).Msg("Sheets audit mirror disabled")
		} else {
			sinks = append(sinks, sheetsSink)
		}
	}

	return audit.NewLogger(a.Config.Audit.BufferSize, a.Log, sinks, audit.WithDropHook(a.Metrics.AuditDropped))
}

func (a *App) openIndex(ctx context.Context, limiter *ratelimit.MultiLimiter, retryCfg retry.Config) *dedup.Index {
	cfg := a.Config

	var cache dedup.HashCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			a.Log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, exact stage uses the database only")
			_ = client.Close()
		} else {
			a.redis = client
			cache = dedup.NewRedisCache(client, cfg.Redis.TTL, a.Log)
		}
	}

	var embedder dedup.Embedder
	var vectors dedup.VectorIndex
	if cfg.Embedding.Enabled {
		embedder = embedding.NewClient(cfg.Embedding, limiter, a.Log)

		q := qdrant.NewClient(cfg.Qdrant, limiter, a.Log)
		if err := q.EnsureCollection(ctx, cfg.Embedding.Dimensions); err != nil {
			// Search and upsert degrade per call, so keep the client
			a.Log.Warn().Err(err).Str("collection", cfg.Qdrant.Collection).Msg("Failed to ensure vector collection")
		}
		vectors = q
	}

	return dedup.NewIndex(a.Repo, cache, embedder, vectors, dedup.Options{
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		SearchLimit:         cfg.Dedup.SearchLimit,
		Retry:               retryCfg,
	}, a.Log)
}

func (a *App) registerSources(ctx context.Context, limiter *ratelimit.MultiLimiter) {
	cfg := a.Config.Sources

	if cfg.Trends.Enabled {
		for _, src := range rss.NewTrendsMultiple(cfg.Trends, limiter, a.Log) {
			a.Sources.Register(src)
		}
	}
	if cfg.RSS.Enabled {
		for _, src := range rss.NewMultiple(cfg.RSS, limiter, a.Log) {
			a.Sources.Register(src)
		}
	}
	if cfg.YouTube.Enabled {
		src, err := youtube.New(ctx, cfg.YouTube, limiter, a.Log)
		if err != nil {
			a.Log.Warn().Err(err).Msg("YouTube source disabled")
		} else {
			a.Sources.Register(src)
		}
	}
	if cfg.Static.Enabled {
		a.Sources.Register(static.New(cfg.Static, a.Log))
	}
}

func taxonomySeed(seeds []config.CategorySeed) []models.Category {
	categories := make([]models.Category, 0, len(seeds))
	for _, s := range seeds {
		c := models.Category{Name: s.Name}
		for _, name := range s.Subcategories {
			c.Subcategories = append(c.Subcategories, models.Subcategory{Name: name})
		}
		categories = append(categories, c)
	}
	return categories
}
