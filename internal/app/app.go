// Package app initializes and holds the long-lived services behind the
// acquisition pipeline, acting as a dependency injection container. It is
// built once at startup from validated configuration and passed to the CLI
// commands and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/archive"
	"github.com/mrmoe28/permitscout/internal/cache"
	"github.com/mrmoe28/permitscout/internal/config"
	"github.com/mrmoe28/permitscout/internal/crawl"
	"github.com/mrmoe28/permitscout/internal/detect"
	"github.com/mrmoe28/permitscout/internal/discover"
	"github.com/mrmoe28/permitscout/internal/extract"
	"github.com/mrmoe28/permitscout/internal/fetch"
	"github.com/mrmoe28/permitscout/internal/geo"
	"github.com/mrmoe28/permitscout/internal/notify"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/pipeline"
	"github.com/mrmoe28/permitscout/internal/store"
	"github.com/mrmoe28/permitscout/internal/telemetry"
	"github.com/mrmoe28/permitscout/internal/understand"
)

// App holds the shared, long-lived services: the polite fetch client, the
// extraction and detection engines, the cache with its sweeper, the audit
// store, the archiver, the notifier, and the orchestrator tying them
// together. It is initialized once and closed by the process entry point.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	cacheStore cache.Store
	audit      store.AcquisitionStore
	publisher  notify.Publisher
	renderer   *fetch.ChromedpRenderer

	crawler      *crawl.Crawler
	orchestrator *pipeline.Orchestrator

	sweepCancel context.CancelFunc
}

// New builds the container from validated configuration. It fails fast when
// a configured backend cannot be reached; optional collaborators (text
// understanding, geocoding, archive, notifications) degrade to disabled when
// unconfigured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	telemetry.Init()

	a := &App{cfg: cfg, logger: logger}

	client, err := fetch.NewClient(fetch.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		RequestTimeout: cfg.RequestTimeout(),
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		PerHostDelay:   cfg.CrawlDelay(),
		RespectRobots:  !cfg.HTTP.IgnoreRobots,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build fetch client: %w", err)
	}
	if cfg.Headless.Enabled {
		renderer, err := fetch.NewChromedpRenderer(fetch.RendererConfig{
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  cfg.HeadlessNavTimeout(),
			UserAgent:   cfg.HTTP.UserAgent,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build headless renderer: %w", err)
		}
		a.renderer = renderer
		client.WithRenderer(renderer, fetch.DefaultRenderDetector())
		logger.Info("headless rendering enabled",
			zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}

	prober, err := fetch.NewCollyFetcher(fetch.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		RequestTimeout: cfg.ProbeTimeout(),
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build discovery prober: %w", err)
	}

	extractor := extract.New(logger)
	engine := detect.NewEngine(client, detect.Config{}, logger)
	discoverer := discover.New(prober, client, discover.Config{
		MaxParallelProbes: cfg.Discover.MaxParallelProbes,
		ProbeTimeout:      cfg.ProbeTimeout(),
	}, logger)

	a.crawler = crawl.New(client, extractor, engine, crawl.Config{
		MaxDepth:     cfg.Crawl.MaxDepthDefault,
		MaxPages:     cfg.Crawl.MaxPagesDefault,
		Delay:        cfg.CrawlDelay(),
		LinksPerPage: cfg.Crawl.LinksPerPage,
	}, logger)

	if err := a.buildCache(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := a.buildAudit(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := a.buildPublisher(ctx, cfg, logger); err != nil {
		return nil, err
	}
	archiver, err := buildArchiver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Getter:    client,
		Extractor: extractor,
		Detector:  engine,
		Resolver:  discoverer,
		Cache:     a.cacheStore,
		Archiver:  archiver,
	}

	understander, err := understand.NewClient(understand.Config{
		APIKey:   cfg.Understand.APIKey,
		BaseURL:  cfg.Understand.BaseURL,
		Model:    cfg.Understand.Model,
		Timeout:  cfg.UnderstandTimeout(),
		MaxChars: cfg.Understand.MaxChars,
	}, logger)
	switch {
	case err == nil:
		deps.Understander = understander
	case errors.Is(err, understand.ErrNoCredential):
		logger.Info("no understanding credential; running heuristic-only")
	default:
		return nil, fmt.Errorf("build understanding client: %w", err)
	}

	geoClient, err := geo.NewClient(geo.Config{
		BaseURL: cfg.Geo.BaseURL,
		APIKey:  cfg.Geo.APIKey,
		Timeout: cfg.GeoTimeout(),
	}, logger)
	switch {
	case err == nil:
		deps.Geocoder = geoClient
		deps.Places = geoClient
	case errors.Is(err, geo.ErrNotConfigured):
		logger.Info("no geocoding endpoint configured; addresses pass through")
	default:
		return nil, fmt.Errorf("build geo client: %w", err)
	}

	a.orchestrator, err = pipeline.New(deps, pipeline.Config{
		MaxDocuments:      cfg.Pipeline.MaxDocuments,
		MaxFlows:          cfg.Pipeline.MaxFlows,
		MaxExternalProbes: cfg.Pipeline.MaxExternalProbes,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.Bool("audit_store", cfg.DB.DSN != ""),
		zap.Bool("notifications", cfg.PubSub.ProjectID != ""))
	return a, nil
}

func (a *App) buildCache(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	switch cfg.Cache.Backend {
	case "memory":
		mem := cache.NewMemoryStore(cfg.Cache.Capacity, logger)
		sweepCtx, cancel := context.WithCancel(context.Background())
		a.sweepCancel = cancel
		mem.StartSweeper(sweepCtx, cfg.SweepInterval())
		a.cacheStore = mem
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cfg.Cache.RedisURL, "permitscout")
		if err != nil {
			return fmt.Errorf("connect redis cache: %w", err)
		}
		a.cacheStore = rs
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	return nil
}

func (a *App) buildAudit(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.DB.DSN == "" {
		logger.Info("no database configured; acquisition results are not persisted")
		a.audit = store.Noop{}
		return nil
	}
	pg, err := store.NewPostgres(ctx, store.PostgresConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
		MinConns: int32(cfg.DB.MaxIdleConns),
	})
	if err != nil {
		return fmt.Errorf("connect audit store: %w", err)
	}
	a.audit = pg
	return nil
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.PubSub.ProjectID == "" {
		a.publisher = notify.Noop{}
		return nil
	}
	ps, err := notify.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger)
	if err != nil {
		return fmt.Errorf("connect pubsub publisher: %w", err)
	}
	a.publisher = ps
	return nil
}

func buildArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*archive.Archiver, error) {
	switch cfg.Archive.Backend {
	case "none":
		return nil, nil
	case "memory":
		return archive.New(archive.NewMemory(), cfg.Archive.Prefix, logger), nil
	case "local":
		bs, err := archive.NewLocal(cfg.Archive.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return archive.New(bs, cfg.Archive.Prefix, logger), nil
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs client: %w", err)
		}
		bs, err := archive.NewGCS(client, cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return archive.New(bs, cfg.Archive.Prefix, logger), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}

// Acquire runs one acquisition, persists the result to the audit store, and
// publishes a completion event. Persistence and notification failures are
// logged, never surfaced: the result is already in hand.
func (a *App) Acquire(ctx context.Context, j *permits.Jurisdiction, addr *permits.Address, opts pipeline.Options) (*permits.AcquisitionResult, error) {
	res, err := a.orchestrator.Acquire(ctx, j, addr, opts)
	if err != nil {
		return nil, err
	}
	if err := a.audit.Save(ctx, res); err != nil {
		a.logger.Warn("audit save failed",
			zap.String("acquisition_id", res.ID), zap.Error(err))
	}
	event := notify.Event{
		Type:          notify.EventCompleted,
		AcquisitionID: res.ID,
		Confidence:    res.Confidence,
		CompletedAt:   res.AcquiredAt,
	}
	if res.Jurisdiction != nil {
		event.JurisdictionID = res.Jurisdiction.ID
	}
	if _, err := a.publisher.Publish(ctx, event); err != nil {
		a.logger.Warn("completion publish failed",
			zap.String("acquisition_id", res.ID), zap.Error(err))
	}
	return res, nil
}

// Crawl explores one site breadth-first and returns the merged aggregate.
func (a *App) Crawl(ctx context.Context, startURL string) (*permits.CrawlResult, error) {
	return a.crawler.Crawl(ctx, startURL)
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the container was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store exposes the acquisition audit store for read-side handlers.
func (a *App) Store() store.AcquisitionStore {
	return a.audit
}

// Close shuts the services down in reverse dependency order. Best effort:
// close failures are logged, not returned.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.cacheStore != nil {
		if err := a.cacheStore.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if a.audit != nil {
		a.audit.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.renderer != nil {
		if err := a.renderer.Close(); err != nil {
			a.logger.Warn("renderer close failed", zap.Error(err))
		}
	}
	// Flush buffered log entries; stderr sync errors are expected on some
	// platforms and carry no signal.
	_ = a.logger.Sync()
}
