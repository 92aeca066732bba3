package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alanyoungcy/marketfuse/internal/arbitrage"
	s3blob "github.com/alanyoungcy/marketfuse/internal/blob/s3"
	"github.com/alanyoungcy/marketfuse/internal/cache"
	"github.com/alanyoungcy/marketfuse/internal/config"
	"github.com/alanyoungcy/marketfuse/internal/crypto"
	"github.com/alanyoungcy/marketfuse/internal/domain"
	"github.com/alanyoungcy/marketfuse/internal/health"
	"github.com/alanyoungcy/marketfuse/internal/match"
	"github.com/alanyoungcy/marketfuse/internal/metrics"
	"github.com/alanyoungcy/marketfuse/internal/normalize"
	"github.com/alanyoungcy/marketfuse/internal/pipeline"
	"github.com/alanyoungcy/marketfuse/internal/platform/kalshi"
	"github.com/alanyoungcy/marketfuse/internal/platform/manifold"
	"github.com/alanyoungcy/marketfuse/internal/platform/polymarket"
	"github.com/alanyoungcy/marketfuse/internal/server/ws"
	"github.com/alanyoungcy/marketfuse/internal/service"
	redissnap "github.com/alanyoungcy/marketfuse/internal/snapshot/redis"
	"github.com/alanyoungcy/marketfuse/internal/store/postgres"
	"github.com/alanyoungcy/marketfuse/internal/unify"
)

// Dependencies bundles everything the application needs to run. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Pollers      []pipeline.PlatformPoller
	Cache        *cache.Manager
	Health       *health.Monitor
	Metrics      *metrics.Metrics
	Orchestrator *pipeline.Orchestrator
	Service      *service.MarketService
	Hub          *ws.Hub

	Snapshots domain.SnapshotStore
	History   domain.HistoryStore
	Exporter  domain.SnapshotExporter
}

// Wire constructs all concrete implementations from the configuration and
// returns them with a cleanup function releasing resources in reverse
// order.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Platform adapters ---
	pollers, err := wireAdapters(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Pollers = pollers

	platforms := make([]domain.Platform, 0, len(pollers))
	for _, p := range pollers {
		platforms = append(platforms, p.Adapter.Platform())
	}

	// --- Observability ---
	deps.Metrics = metrics.New()

	// --- Core pipeline stages ---
	deps.Cache = cache.New(cache.Config{
		CategoryTTL:      cfg.Cache.CategoryTTL.Duration,
		TrendingTTL:      cfg.Cache.TrendingTTL.Duration,
		MarketTTL:        cfg.Cache.MarketTTL.Duration,
		HotReadThreshold: cfg.Cache.HotReadThreshold,
		TTLMultiplier:    cfg.Cache.TTLMultiplier,
	}, deps.Metrics, logger)

	deps.Health = health.New(health.Config{
		StalenessThreshold: cfg.Health.StalenessThreshold.Duration,
		OfflineFailures:    cfg.Health.OfflineFailures,
		OfflineOutage:      cfg.Health.OfflineOutage.Duration,
	}, platforms, logger)

	normalizer := normalize.New(logger)

	matcher := match.New(match.Config{
		SimilarThreshold:   cfg.Matcher.SimilarThreshold,
		IdenticalThreshold: cfg.Matcher.IdenticalThreshold,
		AmbiguousLow:       cfg.Matcher.AmbiguousLow,
		AmbiguousHigh:      cfg.Matcher.AmbiguousHigh,
		EndTimeTolerance:   time.Duration(cfg.Matcher.EndTimeToleranceH) * time.Hour,
	}, logger)

	unifier := unifierFromConfig(cfg, matcher, logger)

	detector := arbitrage.New(arbitrage.Config{
		MinProfitPct: cfg.Arbitrage.MinProfitPct,
	}, logger)

	// --- Optional sinks ---
	if cfg.Redis.Enabled {
		store, err := redissnap.New(ctx, redissnap.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: wire redis snapshot store: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		deps.Snapshots = store

		warmCache(ctx, deps.Cache, store, logger)
	}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: wire postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: run migrations: %w", err)
		}
		deps.History = postgres.NewHistoryStore(pgClient.Pool())
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: wire s3: %w", err)
		}
		prefix := cfg.S3.Prefix
		if prefix != "" && prefix[len(prefix)-1] != '/' {
			prefix += "/"
		}
		deps.Exporter = s3blob.NewExporter(s3Client, prefix, logger)
	}

	// --- Live distribution ---
	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(deps.Metrics, logger)
	}

	// --- Orchestrator ---
	var retention time.Duration
	if cfg.Postgres.RetentionDays > 0 {
		retention = time.Duration(cfg.Postgres.RetentionDays) * 24 * time.Hour
	}
	var broadcaster pipeline.Broadcaster
	if deps.Hub != nil {
		broadcaster = deps.Hub
	}
	deps.Orchestrator = pipeline.New(
		pipeline.Config{
			ExportInterval:   cfg.S3.ExportInterval.Duration,
			HistoryRetention: retention,
		},
		pollers, normalizer, matcher, unifier, detector,
		deps.Cache, deps.Health, deps.Metrics,
		pipeline.Options{
			Snapshots:   deps.Snapshots,
			History:     deps.History,
			Exporter:    deps.Exporter,
			Broadcaster: broadcaster,
		},
		logger,
	)

	// --- Read path ---
	deps.Service = service.New(service.Config{
		StaleAfter: cfg.Health.StalenessThreshold.Duration,
	}, deps.Cache, deps.Orchestrator, deps.Snapshots, deps.Health, logger)

	return deps, cleanup, nil
}

// warmCache pre-loads the in-process cache from the last-good snapshots so
// reads answer immediately after a restart, marked stale until the first
// aggregation cycle replaces them. Warming failures are logged, never fatal.
func warmCache(ctx context.Context, cacheMgr *cache.Manager, store domain.SnapshotStore, logger *slog.Logger) {
	cats, err := store.Categories(ctx)
	if err != nil {
		logger.Warn("cache warm-up skipped", slog.Any("error", err))
		return
	}
	warmed := 0
	for _, cat := range cats {
		markets, savedAt, err := store.LoadSnapshot(ctx, cat)
		if err != nil {
			continue
		}
		cacheMgr.Put(cache.CategoryPrefix+cat, domain.CategoryView{
			Category:    cat,
			Markets:     markets,
			GeneratedAt: savedAt,
			Stale:       true,
			Source:      domain.SourceSnapshot,
		})
		for _, um := range markets {
			cacheMgr.Put(cache.MarketPrefix+um.UnifiedID, um)
		}
		warmed++
	}
	if warmed > 0 {
		logger.Info("cache warmed from snapshots", slog.Int("categories", warmed))
	}
}

// unifierFromConfig builds the cluster unifier sharing the matcher's
// scoring function for re-validation.
func unifierFromConfig(cfg *config.Config, matcher *match.Matcher, logger *slog.Logger) *unify.Unifier {
	return unify.New(unify.Config{
		SimilarThreshold: cfg.Matcher.SimilarThreshold,
		Revalidate:       cfg.Matcher.Revalidate,
		RelaxedThreshold: cfg.Matcher.RelaxedThreshold,
		ClusterSizeCap:   cfg.Matcher.ClusterSizeCap,
	}, matcher, logger)
}

// wireAdapters builds one poller per enabled platform. Kalshi credentials
// may come from the plain config or from the encrypted credentials file.
func wireAdapters(cfg *config.Config) ([]pipeline.PlatformPoller, error) {
	var pollers []pipeline.PlatformPoller

	if cfg.Polymarket.Enabled {
		client := polymarket.NewClient(polymarket.Config{
			GammaHost:    cfg.Polymarket.GammaHost,
			PageLimit:    cfg.Polymarket.PageLimit,
			FetchTimeout: cfg.Polymarket.FetchTimeout.Duration,
		})
		pollers = append(pollers, pipeline.PlatformPoller{
			Adapter:  client,
			Interval: cfg.Polymarket.PollInterval.Duration,
		})
	}

	if cfg.Kalshi.Enabled {
		creds, err := crypto.LoadCredentials(cfg.Secrets.EncryptedCredsPath, cfg.Secrets.CredsPassword)
		if err != nil {
			return nil, fmt.Errorf("app: load credentials: %w", err)
		}
		apiKey := cfg.Kalshi.ApiKey
		if apiKey == "" {
			apiKey = creds["kalshi_api_key"]
		}

		client := kalshi.NewClient(kalshi.Config{
			BaseURL:      cfg.Kalshi.BaseURL,
			ApiKeyID:     apiKey,
			PageLimit:    cfg.Kalshi.PageLimit,
			FetchTimeout: cfg.Kalshi.FetchTimeout.Duration,
		})
		if cfg.Kalshi.RsaPrivateKeyPath != "" {
			pemBytes, err := os.ReadFile(cfg.Kalshi.RsaPrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("app: read kalshi private key: %w", err)
			}
			if err := client.SetRSAPrivateKey(pemBytes); err != nil {
				return nil, fmt.Errorf("app: configure kalshi signing: %w", err)
			}
		}
		pollers = append(pollers, pipeline.PlatformPoller{
			Adapter:  client,
			Interval: cfg.Kalshi.PollInterval.Duration,
		})
	}

	if cfg.Manifold.Enabled {
		client := manifold.NewClient(manifold.Config{
			BaseURL:      cfg.Manifold.BaseURL,
			PageLimit:    cfg.Manifold.PageLimit,
			FetchTimeout: cfg.Manifold.FetchTimeout.Duration,
		})
		pollers = append(pollers, pipeline.PlatformPoller{
			Adapter:  client,
			Interval: cfg.Manifold.PollInterval.Duration,
		})
	}

	return pollers, nil
}
