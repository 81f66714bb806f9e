// Package discover walks the category listing tree and collects every
// product-detail URL, tagged with the category it was found under.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// Discovery modes.
const (
	ModeStatic = "static"
	ModeLive   = "live"
)

// Category is one entry of the curated category table, already resolved to
// its database id.
type Category struct {
	ID    int
	Slug  string
	Path  string
	Pages int
}

// Config controls discovery behavior.
type Config struct {
	BaseURL string
	// Mode selects the static page-count strategy or live pagination.
	Mode string
	// MaxPages is the hard safety cap per category in live mode, guarding
	// against infinite loops from markup misdetection.
	MaxPages int
	// MaxConcurrent bounds the listing-page fan-out in static mode.
	MaxConcurrent int
	// ProductPathMarkers are path segments identifying product-detail links.
	ProductPathMarkers []string
	Categories         []Category
}

// Discoverer implements scraper.Discoverer over a page fetcher.
type Discoverer struct {
	cfg     Config
	fetcher scraper.Fetcher
	logger  *zap.Logger
}

// New builds a Discoverer.
func New(cfg Config, fetcher scraper.Fetcher, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Discoverer{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Discover returns the full ordered work list. Order is deterministic:
// category order, then page order, then document order within a page. A URL
// seen under two categories keeps its first category tag.
func (d *Discoverer) Discover(ctx context.Context) ([]scraper.WorkItem, error) {
	var pages [][]scraper.WorkItem
	var err error
	switch d.cfg.Mode {
	case ModeLive:
		pages, err = d.discoverLive(ctx)
	default:
		pages, err = d.discoverStatic(ctx)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var items []scraper.WorkItem
	for _, pageItems := range pages {
		for _, item := range pageItems {
			if _, dup := seen[item.URL]; dup {
				continue
			}
			seen[item.URL] = struct{}{}
			items = append(items, item)
		}
	}
	d.logger.Info("discovery finished",
		zap.Int("listing_pages", len(pages)),
		zap.Int("product_urls", len(items)),
	)
	return items, nil
}

// discoverStatic generates every listing-page URL up front from the curated
// page counts and fetches them with a bounded fan-out. No live pagination
// probing happens in this mode.
func (d *Discoverer) discoverStatic(ctx context.Context) ([][]scraper.WorkItem, error) {
	type pageRef struct {
		url      string
		category Category
	}
	var refs []pageRef
	for _, cat := range d.cfg.Categories {
		for page := 1; page <= cat.Pages; page++ {
			refs = append(refs, pageRef{url: d.pageURL(cat.Path, page), category: cat})
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}

	results := make([][]scraper.WorkItem, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrent)
	for i, ref := range refs {
		g.Go(func() error {
			items, err := d.fetchListing(gctx, ref.url, ref.category)
			if err != nil {
				// A single unreachable listing page is skipped, not fatal.
				d.logger.Warn("listing page failed",
					zap.String("url", ref.url),
					zap.String("category", ref.category.Slug),
					zap.Error(err),
				)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover static: %w", err)
	}
	return results, nil
}

// discoverLive pages through each category until no next-page affordance is
// present or the safety cap is hit.
func (d *Discoverer) discoverLive(ctx context.Context) ([][]scraper.WorkItem, error) {
	var results [][]scraper.WorkItem
	for _, cat := range d.cfg.Categories {
		for page := 1; page <= d.cfg.MaxPages; page++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("discover live: %w", err)
			}
			listingURL := d.pageURL(cat.Path, page)
			fetched, err := d.fetcher.Fetch(ctx, listingURL)
			if err != nil {
				d.logger.Warn("listing page failed",
					zap.String("url", listingURL),
					zap.String("category", cat.Slug),
					zap.Error(err),
				)
				break
			}
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fetched.Body))
			if err != nil {
				d.logger.Warn("listing parse failed", zap.String("url", listingURL), zap.Error(err))
				break
			}
			results = append(results, d.extractLinks(doc, cat))
			if !hasNextPage(doc, page+1) {
				break
			}
		}
	}
	return results, nil
}

func (d *Discoverer) fetchListing(ctx context.Context, listingURL string, cat Category) ([]scraper.WorkItem, error) {
	fetched, err := d.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fetched.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return d.extractLinks(doc, cat), nil
}

// extractLinks tries each link selector in priority order and keeps the first
// non-empty match set, de-duplicating by URL within the page.
func (d *Discoverer) extractLinks(doc *goquery.Document, cat Category) []scraper.WorkItem {
	var selectors []string
	for _, marker := range d.cfg.ProductPathMarkers {
		selectors = append(selectors, fmt.Sprintf(`a[href*=%q]`, marker))
	}
	selectors = append(selectors, ".product-link", ".medicine-link", ".item-link")

	for _, selector := range selectors {
		seen := make(map[string]struct{})
		var items []scraper.WorkItem
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || href == "" {
				return
			}
			abs, ok := d.absoluteURL(href)
			if !ok {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			items = append(items, scraper.WorkItem{URL: abs, CategoryID: cat.ID})
		})
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// absoluteURL resolves href against the base URL and rejects off-site links.
func (d *Discoverer) absoluteURL(href string) (string, bool) {
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Host != base.Host {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

func (d *Discoverer) pageURL(path string, page int) string {
	base := strings.TrimRight(d.cfg.BaseURL, "/") + path
	if page <= 1 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", base, sep, page)
}

// hasNextPage looks for a pagination affordance pointing at the next page.
func hasNextPage(doc *goquery.Document, next int) bool {
	if doc.Find(`a[rel="next"]`).Length() > 0 {
		return true
	}
	marker := fmt.Sprintf("page=%d", next)
	found := false
	doc.Find("ul.pagination a, .pagination a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if ok && strings.Contains(href, marker) {
			found = true
			return false
		}
		return true
	})
	return found
}
