// Package headless implements the browser-rendered fetch strategy using
// chromedp, for pages whose content requires script execution.
package headless

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgents []string
	NavTimeout time.Duration
	MaxRetries int
	RetryWait  time.Duration
	// Delay is the fixed politeness sleep when AntiBlocking is off.
	Delay time.Duration

	// AntiBlocking switches on randomized viewports, automation-fingerprint
	// masking, randomized delays with occasional long pauses, and block-
	// signature detection that short-circuits the session.
	AntiBlocking   bool
	MinDelay       time.Duration
	MaxDelay       time.Duration
	LongPauseEvery int
	LongPause      time.Duration
	DomainQPS      float64
}

// viewports sampled when anti-blocking is enabled.
var viewports = [][2]int64{
	{1920, 1080},
	{1536, 864},
	{1440, 900},
	{1366, 768},
	{1280, 800},
}

// Fetcher implements scraper.Fetcher using headless Chrome.
type Fetcher struct {
	cfg             Config
	logger          *zap.Logger
	allocator       context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	domainLimiters  sync.Map

	mu      sync.Mutex
	rng     *rand.Rand
	fetches int

	// blocked flips once a block signature is seen; every later fetch on
	// this session fails fast with scraper.ErrBlocked.
	blocked atomic.Bool

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a headless fetcher backed by chromedp. The browser process is
// shared across fetches; each fetch runs in its own tab.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.AntiBlocking {
		opts = append(opts,
			chromedp.Flag("enable-automation", false),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Fetcher{
		cfg:             cfg,
		logger:          logger,
		allocator:       allocCtx,
		allocatorCancel: allocCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:           sleepCtx,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (f *Fetcher) Close() {
	if f == nil {
		return
	}
	f.browserCancel()
	f.allocatorCancel()
}

// Fetch renders the URL in a fresh tab and returns the DOM snapshot, wrapped
// in the same fixed-cap retry policy as the HTTP strategy. A detected block
// signature marks the session blocked and fails fast on later calls.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (scraper.Page, error) {
	if f.blocked.Load() {
		return scraper.Page{}, fmt.Errorf("fetch %s: %w", rawURL, scraper.ErrBlocked)
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		page, err := f.render(ctx, rawURL)
		if err == nil {
			if Blocked(page.StatusCode, page.Body) {
				f.blocked.Store(true)
				f.logger.Warn("block signature detected, short-circuiting session",
					zap.String("url", rawURL),
					zap.Int("status", page.StatusCode),
				)
				return scraper.Page{}, fmt.Errorf("fetch %s: %w", rawURL, scraper.ErrBlocked)
			}
			// A canceled politeness sleep still returns the rendered page.
			_ = f.politeness(ctx)
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return scraper.Page{}, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
		f.logger.Warn("headless fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < f.cfg.MaxRetries {
			if serr := f.sleep(ctx, f.cfg.RetryWait); serr != nil {
				return scraper.Page{}, fmt.Errorf("fetch %s: %w", rawURL, serr)
			}
		}
	}
	return scraper.Page{}, fmt.Errorf("fetch %s: exhausted %d attempts: %w", rawURL, f.cfg.MaxRetries, lastErr)
}

func (f *Fetcher) render(ctx context.Context, rawURL string) (scraper.Page, error) {
	if err := f.waitDomainBudget(ctx, rawURL); err != nil {
		return scraper.Page{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, f.cfg.NavTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	f.recordResponse(tabCtx, meta)

	var html string
	tasks := chromedp.Tasks{network.Enable()}
	if ua := f.pickUserAgent(); ua != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(ua))
	}
	if f.cfg.AntiBlocking {
		vp := viewports[f.randIntn(len(viewports))]
		tasks = append(tasks,
			emulation.SetDeviceMetricsOverride(vp[0], vp[1], 1.0, false),
			maskAutomation(),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return scraper.Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	status := meta.status()
	if status == 0 {
		status = 200
	}
	return scraper.Page{
		URL:        rawURL,
		StatusCode: status,
		Body:       []byte(html),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// maskAutomation hides the navigator.webdriver flag before any page script
// runs.
func maskAutomation() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(
			"Object.defineProperty(navigator, 'webdriver', {get: () => undefined})",
		).Do(ctx)
		if err != nil {
			return fmt.Errorf("mask automation: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) politeness(ctx context.Context) error {
	if !f.cfg.AntiBlocking {
		return f.sleep(ctx, f.cfg.Delay)
	}
	f.mu.Lock()
	f.fetches++
	long := f.cfg.LongPauseEvery > 0 && f.fetches%f.cfg.LongPauseEvery == 0
	f.mu.Unlock()
	if long {
		f.logger.Debug("taking long pause", zap.Duration("pause", f.cfg.LongPause))
		return f.sleep(ctx, f.cfg.LongPause)
	}
	spread := f.cfg.MaxDelay - f.cfg.MinDelay
	d := f.cfg.MinDelay
	if spread > 0 {
		d += time.Duration(f.randIntn(int(spread)))
	}
	return f.sleep(ctx, d)
}

func (f *Fetcher) pickUserAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return ""
	}
	return f.cfg.UserAgents[f.randIntn(len(f.cfg.UserAgents))]
}

func (f *Fetcher) randIntn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Intn(n)
}

func (f *Fetcher) waitDomainBudget(ctx context.Context, rawURL string) error {
	if f.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := f.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(f.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) status() int {
	return m.statusCode
}

func (f *Fetcher) recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
		})
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
