// Package collyfetcher implements the plain-HTTP fetch strategy using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// Config controls collector behavior.
type Config struct {
	// UserAgents is rotated across requests; one is picked at random per
	// attempt.
	UserAgents []string
	Timeout    time.Duration
	// MaxRetries is the fixed attempt cap; any error or non-200 response
	// triggers another attempt after RetryWait.
	MaxRetries int
	RetryWait  time.Duration
	// Delay is the fixed politeness sleep applied after every successful
	// fetch. It is a courtesy to the target site, not backoff.
	Delay time.Duration
}

// Fetcher implements scraper.Fetcher using a Colly collector per request.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is swapped out in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		logger:        logger,
		baseCollector: c,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:         sleepCtx,
	}
}

// Fetch executes an HTTP GET with the configured retry policy and applies the
// politeness delay after a successful response.
func (f *Fetcher) Fetch(ctx context.Context, url string) (scraper.Page, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		page, err := f.fetchOnce(ctx, url)
		if err == nil {
			// A canceled politeness sleep still returns the fetched page.
			_ = f.sleep(ctx, f.cfg.Delay)
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return scraper.Page{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
		f.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < f.cfg.MaxRetries {
			if serr := f.sleep(ctx, f.cfg.RetryWait); serr != nil {
				return scraper.Page{}, fmt.Errorf("fetch %s: %w", url, serr)
			}
		}
	}
	return scraper.Page{}, fmt.Errorf("fetch %s: exhausted %d attempts: %w", url, f.cfg.MaxRetries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (scraper.Page, error) {
	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	if ua := f.pickUserAgent(); ua != "" {
		collector.UserAgent = ua
	}

	var (
		page     scraper.Page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		page = scraper.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			FetchedAt:  time.Now().UTC(),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			page.StatusCode = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return scraper.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return scraper.Page{}, fmt.Errorf("visit: %w", err)
		}
		if fetchErr != nil {
			return scraper.Page{}, fmt.Errorf("response (status %d): %w", page.StatusCode, fetchErr)
		}
		if page.StatusCode != http.StatusOK {
			return scraper.Page{}, fmt.Errorf("unexpected status %d", page.StatusCode)
		}
		return page, nil
	}
}

func (f *Fetcher) pickUserAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.UserAgents[f.rng.Intn(len(f.cfg.UserAgents))]
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

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Pool sizing mirrors the site-facing connection caps: at most 30
		// idle connections per host, 100 total.
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 30,
		IdleConnTimeout:     90 * time.Second,
	}
}
