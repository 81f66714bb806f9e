// Package scheduler runs crawl tasks: it discovers the work list, walks it
// one product at a time, and checkpoints after every item so an interrupted
// run resumes exactly where it stopped.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/AyonJD/medeasy-scraper/internal/metrics"
	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// ErrAlreadyRunning is returned when a start request arrives while a crawl
// is in flight. Only one crawl per engine runs at a time.
var ErrAlreadyRunning = errors.New("crawl task already running")

// Config controls one engine's crawl behavior.
type Config struct {
	// TaskName keys the crawl_progress row and all log entries.
	TaskName string
	// ImagesEnabled turns the image resolve/download/store pipeline on.
	ImagesEnabled bool
	// StoreAssets writes processed images to the asset store and points
	// products at the stored path instead of the remote URL.
	StoreAssets bool
	// ArchiveHTML writes each fetched product page to the asset store.
	ArchiveHTML bool
}

// Engine orchestrates the fetch-extract-store pipeline for one task.
type Engine struct {
	cfg        Config
	fetcher    scraper.Fetcher
	discoverer scraper.Discoverer
	extractor  scraper.Extractor
	resolver   scraper.ImageResolver
	processor  scraper.ImageProcessor
	store      scraper.Store
	assets     scraper.AssetStore
	clock      scraper.Clock
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	stopRequested atomic.Bool
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Fetcher    scraper.Fetcher
	Discoverer scraper.Discoverer
	Extractor  scraper.Extractor
	Resolver   scraper.ImageResolver
	Processor  scraper.ImageProcessor
	Store      scraper.Store
	// Assets may be nil when local asset storage is disabled.
	Assets scraper.AssetStore
	Clock  scraper.Clock
	Logger *zap.Logger
}

// New builds an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.TaskName == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if deps.Fetcher == nil || deps.Discoverer == nil || deps.Extractor == nil || deps.Store == nil || deps.Clock == nil {
		return nil, fmt.Errorf("fetcher, discoverer, extractor, store, and clock are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		fetcher:    deps.Fetcher,
		discoverer: deps.Discoverer,
		extractor:  deps.Extractor,
		resolver:   deps.Resolver,
		processor:  deps.Processor,
		store:      deps.Store,
		assets:     deps.Assets,
		clock:      deps.Clock,
		logger:     logger.Named("scheduler"),
	}, nil
}

// Start launches a crawl in the background. It returns ErrAlreadyRunning if
// one is in flight.
func (e *Engine) Start(resume bool) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.stopRequested.Store(false)
	e.mu.Unlock()

	go func() {
		defer cancel()
		if err := e.run(ctx, resume); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("crawl run failed", zap.Error(err))
		}
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	return nil
}

// Run executes a crawl synchronously. It holds the same single-run guard as
// Start.
func (e *Engine) Run(ctx context.Context, resume bool) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopRequested.Store(false)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	return e.run(ctx, resume)
}

// Stop requests a cooperative stop. The loop notices at the top of the next
// item, persists a final checkpoint, and marks the task stopped. Stopping an
// idle engine is a no-op.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

// Running reports whether a crawl is in flight.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Progress returns the persisted progress row for this engine's task.
func (e *Engine) Progress(ctx context.Context) (scraper.Progress, error) {
	return e.store.GetProgress(ctx, e.cfg.TaskName)
}

func (e *Engine) run(ctx context.Context, resume bool) error {
	started := e.clock.Now()
	state, fresh, err := e.loadOrDiscover(ctx, resume)
	if err != nil {
		e.persistFailure(ctx, state, started, err)
		return err
	}
	if fresh {
		e.logDB(ctx, scraper.LogInfo, fmt.Sprintf("discovered %d product urls", len(state.WorkList)), "")
	} else {
		e.logDB(ctx, scraper.LogInfo, fmt.Sprintf("resuming at item %d of %d", state.Cursor, len(state.WorkList)), "")
	}

	if err := e.checkpoint(ctx, state, scraper.StatusRunning, "", started); err != nil {
		return err
	}

	for state.Cursor < len(state.WorkList) {
		if e.stopRequested.Load() {
			e.logDB(ctx, scraper.LogInfo, "stop requested, checkpointing", "")
			return e.checkpoint(ctx, state, scraper.StatusStopped, "", started)
		}
		if err := ctx.Err(); err != nil {
			e.checkpoint(context.WithoutCancel(ctx), state, scraper.StatusStopped, "", started)
			return err
		}

		item := state.WorkList[state.Cursor]
		itemStart := e.clock.Now()
		if err := e.processItem(ctx, item); err != nil {
			if errors.Is(err, scraper.ErrBlocked) {
				e.logDB(ctx, scraper.LogError, "target site blocked the session", item.URL)
				e.persistFailure(ctx, state, started, err)
				return err
			}
			if errors.Is(err, scraper.ErrNoName) {
				metrics.ProductsSkipped.Inc()
				e.logDB(ctx, scraper.LogWarning, "no product name found, skipping", item.URL)
			} else {
				e.logDB(ctx, scraper.LogError, fmt.Sprintf("item failed: %v", err), item.URL)
			}
		} else {
			state.Processed++
			metrics.ProductsUpserted.Inc()
		}
		metrics.ItemDuration.Observe(e.clock.Now().Sub(itemStart).Seconds())

		state.Cursor++
		if err := e.checkpoint(ctx, state, scraper.StatusRunning, "", started); err != nil {
			return err
		}
	}

	metrics.CrawlDuration.Observe(e.clock.Now().Sub(started).Seconds())
	e.logDB(ctx, scraper.LogInfo, fmt.Sprintf("crawl completed: %d of %d items stored", state.Processed, len(state.WorkList)), "")
	return e.checkpoint(ctx, state, scraper.StatusCompleted, "", started)
}

// loadOrDiscover returns the work state to run from: the persisted
// checkpoint when resuming, otherwise a fresh discovery. The second return
// reports whether the state is fresh.
func (e *Engine) loadOrDiscover(ctx context.Context, resume bool) (*scraper.ResumeState, bool, error) {
	if resume {
		if state := e.loadCheckpoint(ctx); state != nil {
			return state, false, nil
		}
	}

	items, err := e.discoverer.Discover(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("discover work list: %w", err)
	}
	if len(items) == 0 {
		return nil, false, fmt.Errorf("discovery produced no product urls")
	}
	metrics.URLsDiscovered.Add(float64(len(items)))
	return &scraper.ResumeState{
		TaskKind: scraper.TaskKindCatalog,
		WorkList: items,
	}, true, nil
}

// loadCheckpoint returns the persisted resume state, or nil when no usable
// checkpoint exists. A malformed blob is logged and treated as absent.
func (e *Engine) loadCheckpoint(ctx context.Context) *scraper.ResumeState {
	progress, err := e.store.GetProgress(ctx, e.cfg.TaskName)
	if err != nil {
		if !errors.Is(err, scraper.ErrNotFound) {
			e.logger.Warn("load checkpoint failed", zap.Error(err))
		}
		return nil
	}
	if len(progress.ResumeData) == 0 {
		return nil
	}
	var state scraper.ResumeState
	if err := json.Unmarshal(progress.ResumeData, &state); err != nil {
		e.logger.Warn("checkpoint blob is malformed, starting fresh", zap.Error(err))
		return nil
	}
	if err := state.Validate(); err != nil {
		e.logger.Warn("checkpoint blob is invalid, starting fresh", zap.Error(err))
		return nil
	}
	if state.Cursor >= len(state.WorkList) {
		// Previous run finished its list.
		return nil
	}
	return &state
}

// processItem runs one URL through fetch, extract, image, and store. The
// returned error is per-item unless it is ErrBlocked.
func (e *Engine) processItem(ctx context.Context, item scraper.WorkItem) error {
	page, err := e.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		metrics.PagesFetched.WithLabelValues(outcomeFor(err)).Inc()
		return fmt.Errorf("fetch: %w", err)
	}
	metrics.PagesFetched.WithLabelValues("ok").Inc()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	rec, err := e.extractor.Extract(doc, item.URL, item.CategoryID)
	if err != nil {
		return err
	}

	var img *scraper.ImageData
	if e.cfg.ImagesEnabled && e.resolver != nil {
		if imageURL, ok := e.resolver.ResolveURL(doc, item.URL); ok {
			img = e.fetchImage(ctx, imageURL, &rec.Product)
		}
	}

	if e.cfg.ArchiveHTML && e.assets != nil {
		if _, err := e.assets.Save(ctx, "html", "html", page.Body); err != nil {
			e.logger.Warn("archive html failed", zap.String("url", item.URL), zap.Error(err))
		}
	}

	if err := e.store.UpsertProduct(ctx, &rec.Product, img); err != nil {
		return fmt.Errorf("store product: %w", err)
	}
	return nil
}

// fetchImage downloads and normalizes the product image. Image failures
// never fail the item; the product is stored without one.
func (e *Engine) fetchImage(ctx context.Context, imageURL string, p *scraper.Product) *scraper.ImageData {
	if e.processor == nil {
		p.ImageURL = imageURL
		return nil
	}
	img, err := e.processor.Process(ctx, imageURL)
	if err != nil {
		metrics.ImagesProcessed.WithLabelValues("error").Inc()
		e.logger.Warn("image processing failed", zap.String("image_url", imageURL), zap.Error(err))
		return nil
	}
	metrics.ImagesProcessed.WithLabelValues("ok").Inc()

	p.ImageURL = imageURL
	if e.cfg.StoreAssets && e.assets != nil {
		path, err := e.assets.Save(ctx, "images", "jpg", img.Data)
		if err != nil {
			e.logger.Warn("store image asset failed", zap.String("image_url", imageURL), zap.Error(err))
		} else {
			p.ImageURL = path
		}
	}
	return &img
}

// checkpoint persists the full progress row, including the resume blob, so
// the counters and the checkpoint can never disagree.
func (e *Engine) checkpoint(ctx context.Context, state *scraper.ResumeState, status scraper.CrawlStatus, errMsg string, started time.Time) error {
	resume, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	progress := scraper.Progress{
		TaskName:       e.cfg.TaskName,
		ProcessedItems: state.Processed,
		CurrentPage:    state.Cursor,
		TotalPages:     len(state.WorkList),
		TotalItems:     len(state.WorkList),
		Status:         status,
		ErrorMessage:   errMsg,
		ResumeData:     resume,
		StartedAt:      started,
	}
	if err := e.store.UpsertProgress(ctx, &progress); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}

// persistFailure marks the task failed, keeping whatever checkpoint exists
// so a later resume can still pick up the work list.
func (e *Engine) persistFailure(ctx context.Context, state *scraper.ResumeState, started time.Time, cause error) {
	if state == nil {
		state = &scraper.ResumeState{TaskKind: scraper.TaskKindCatalog}
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.checkpoint(ctx, state, scraper.StatusFailed, cause.Error(), started); err != nil {
		e.logger.Error("persist failure state", zap.Error(err))
	}
	e.logDB(ctx, scraper.LogError, cause.Error(), "")
}

// logDB writes a crawl event both to the structured logger and to the
// scrape_logs table. Database log failures are non-fatal.
func (e *Engine) logDB(ctx context.Context, level, message, url string) {
	switch level {
	case scraper.LogError:
		e.logger.Error(message, zap.String("url", url))
	case scraper.LogWarning:
		e.logger.Warn(message, zap.String("url", url))
	default:
		e.logger.Info(message, zap.String("url", url))
	}
	entry := scraper.LogEntry{
		TaskName: e.cfg.TaskName,
		Level:    level,
		Message:  message,
		URL:      url,
	}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		e.logger.Warn("append database log failed", zap.Error(err))
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, scraper.ErrBlocked) {
		return "blocked"
	}
	return "error"
}
