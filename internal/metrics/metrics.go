// Package metrics exposes Prometheus instrumentation for the scrape pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks fetched pages by outcome ("ok", "error", "blocked").
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_pages_fetched_total",
		Help: "The total number of page fetches by outcome.",
	}, []string{"outcome"})
	// ProductsUpserted tracks products written to the database.
	ProductsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_products_upserted_total",
		Help: "The total number of products inserted or updated.",
	})
	// ProductsSkipped tracks pages skipped because no product name was found.
	ProductsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_products_skipped_total",
		Help: "The total number of product pages skipped during extraction.",
	})
	// ImagesProcessed tracks image pipeline results by outcome ("ok", "error").
	ImagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_images_processed_total",
		Help: "The total number of product images processed by outcome.",
	}, []string{"outcome"})
	// URLsDiscovered tracks product URLs found during listing discovery.
	URLsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_urls_discovered_total",
		Help: "The total number of product URLs discovered on listing pages.",
	})
	// CrawlDuration observes full crawl run durations in seconds.
	CrawlDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_crawl_duration_seconds",
		Help:    "Duration of complete crawl runs.",
		Buckets: prometheus.ExponentialBuckets(30, 2, 10),
	})
	// ItemDuration observes per-product processing durations in seconds.
	ItemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_item_duration_seconds",
		Help:    "Duration of single product fetch-extract-store cycles.",
		Buckets: prometheus.DefBuckets,
	})
)
