// Package app wires configuration into the concrete service graph: store,
// fetcher, discoverer, extractor, image pipeline, and crawl engine.
package app

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/AyonJD/medeasy-scraper/internal/clock/system"
	"github.com/AyonJD/medeasy-scraper/internal/config"
	"github.com/AyonJD/medeasy-scraper/internal/discover"
	"github.com/AyonJD/medeasy-scraper/internal/extract"
	collyfetcher "github.com/AyonJD/medeasy-scraper/internal/fetcher/colly"
	"github.com/AyonJD/medeasy-scraper/internal/fetcher/headless"
	"github.com/AyonJD/medeasy-scraper/internal/images"
	"github.com/AyonJD/medeasy-scraper/internal/logging"
	"github.com/AyonJD/medeasy-scraper/internal/scheduler"
	"github.com/AyonJD/medeasy-scraper/internal/scraper"
	"github.com/AyonJD/medeasy-scraper/internal/storage/assets"
	"github.com/AyonJD/medeasy-scraper/internal/storage/postgres"
)

// App holds the assembled service graph for one process.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Store  *postgres.Store
	Engine *scheduler.Engine

	headlessFetcher *headless.Fetcher
	gcsClient       *gcstorage.Client
}

// New builds the full graph from configuration. It connects to Postgres,
// applies the schema, and seeds the category table.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	clock := system.Clock{}

	store, err := postgres.New(ctx, postgres.Config{DSN: cfg.DB.DSN}, clock)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	app := &App{Config: cfg, Logger: logger, Store: store}

	categories, err := app.SeedCategories(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	fetcher, err := app.buildFetcher()
	if err != nil {
		app.Close()
		return nil, err
	}

	discoverer := discover.New(discover.Config{
		BaseURL:            cfg.Site.BaseURL,
		Mode:               cfg.Crawl.DiscoveryMode,
		MaxPages:           cfg.Crawl.MaxPagesPerCategory,
		MaxConcurrent:      cfg.Crawl.MaxConcurrent,
		ProductPathMarkers: cfg.Site.ProductPathMarkers,
		Categories:         categories,
	}, fetcher, logger)

	extractor := extract.New(extract.Config{
		SiteNameSuffixes: []string{" | MedEasy", " - MedEasy"},
		KeepHTML:         cfg.Crawl.KeepHTML,
	}, logger)

	resolver := images.NewResolver(images.ResolverConfig{
		ImageOrigins: cfg.Site.ImageOrigins,
	}, logger)

	processor := images.NewProcessor(images.ProcessorConfig{
		MaxDimension: cfg.Images.MaxDimension,
		JPEGQuality:  cfg.Images.JPEGQuality,
		MaxRetries:   cfg.Images.MaxRetries,
		Timeout:      cfg.FetchTimeout(),
		UserAgent:    firstOrEmpty(cfg.Fetch.UserAgents),
	}, logger)

	assetStore, err := app.buildAssetStore(ctx, clock)
	if err != nil {
		app.Close()
		return nil, err
	}

	engine, err := scheduler.New(
		scheduler.Config{
			TaskName:      cfg.Crawl.TaskName,
			ImagesEnabled: cfg.Images.Enabled,
			StoreAssets:   cfg.Images.StoreLocal,
			ArchiveHTML:   cfg.Crawl.ArchiveHTML,
		},
		scheduler.Deps{
			Fetcher:    fetcher,
			Discoverer: discoverer,
			Extractor:  extractor,
			Resolver:   resolver,
			Processor:  processor,
			Store:      store,
			Assets:     assetStore,
			Clock:      clock,
			Logger:     logger,
		},
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	app.Engine = engine
	return app, nil
}

// SeedCategories upserts the configured category table and returns the
// discoverer's view of it with database IDs attached.
func (a *App) SeedCategories(ctx context.Context) ([]discover.Category, error) {
	out := make([]discover.Category, 0, len(a.Config.Categories))
	for _, cc := range a.Config.Categories {
		cat := scraper.Category{
			Name:        cc.Name,
			Slug:        cc.Slug,
			Description: cc.Description,
			IsActive:    true,
		}
		if err := a.Store.UpsertCategory(ctx, &cat); err != nil {
			return nil, fmt.Errorf("seed category %s: %w", cc.Slug, err)
		}
		out = append(out, discover.Category{
			ID:    cat.ID,
			Slug:  cc.Slug,
			Path:  cc.Path,
			Pages: cc.Pages,
		})
	}
	a.Logger.Info("seeded categories", zap.Int("count", len(out)))
	return out, nil
}

func (a *App) buildFetcher() (scraper.Fetcher, error) {
	switch a.Config.Fetch.Strategy {
	case "headless":
		f, err := headless.New(headless.Config{
			UserAgents:     a.Config.Fetch.UserAgents,
			NavTimeout:     a.Config.FetchTimeout(),
			MaxRetries:     a.Config.Fetch.MaxRetries,
			RetryWait:      a.Config.RetryWait(),
			Delay:          a.Config.PolitenessDelay(),
			AntiBlocking:   a.Config.Headless.AntiBlocking,
			MinDelay:       msDuration(a.Config.Headless.MinDelayMs),
			MaxDelay:       msDuration(a.Config.Headless.MaxDelayMs),
			LongPauseEvery: a.Config.Headless.LongPauseEvery,
			LongPause:      secDuration(a.Config.Headless.LongPauseSec),
			DomainQPS:      a.Config.Headless.DomainQPS,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.headlessFetcher = f
		return f, nil
	default:
		return collyfetcher.New(collyfetcher.Config{
			UserAgents: a.Config.Fetch.UserAgents,
			Timeout:    a.Config.FetchTimeout(),
			MaxRetries: a.Config.Fetch.MaxRetries,
			RetryWait:  a.Config.RetryWait(),
			Delay:      a.Config.PolitenessDelay(),
		}, a.Logger), nil
	}
}

func (a *App) buildAssetStore(ctx context.Context, clock scraper.Clock) (scraper.AssetStore, error) {
	if !a.Config.Images.StoreLocal && !a.Config.Crawl.ArchiveHTML {
		return nil, nil
	}
	switch a.Config.Assets.Backend {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		store, err := assets.NewGCSStore(client, a.Config.Assets.GCSBucket, a.Config.Assets.GCSPrefix, clock)
		if err != nil {
			return nil, fmt.Errorf("init gcs asset store: %w", err)
		}
		return store, nil
	default:
		store, err := assets.NewFSStore(a.Config.Assets.Root, clock)
		if err != nil {
			return nil, fmt.Errorf("init fs asset store: %w", err)
		}
		return store, nil
	}
}

// Close releases all held resources.
func (a *App) Close() {
	if a.headlessFetcher != nil {
		a.headlessFetcher.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("close gcs client failed", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func secDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
