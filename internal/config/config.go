// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig        `mapstructure:"server"`
	Site       SiteConfig          `mapstructure:"site"`
	Fetch      FetchConfig         `mapstructure:"fetch"`
	Headless   HeadlessConfig      `mapstructure:"headless"`
	Crawl      CrawlConfig         `mapstructure:"crawl"`
	Images     ImagesConfig        `mapstructure:"images"`
	DB         DBConfig            `mapstructure:"db"`
	Assets     AssetsConfig        `mapstructure:"assets"`
	Logging    LoggingConfig       `mapstructure:"logging"`
	Categories []CategoryConfig    `mapstructure:"categories"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SiteConfig identifies the single target site for this instance.
type SiteConfig struct {
	// BaseURL is the scheme+host all discovered links are resolved against.
	BaseURL string `mapstructure:"base_url"`
	// ImageOrigins lists hosts a decoded image-proxy URL may point at.
	ImageOrigins []string `mapstructure:"image_origins"`
	// ProductPathMarkers are path segments identifying product-detail links.
	ProductPathMarkers []string `mapstructure:"product_path_markers"`
}

// FetchConfig configures the plain HTTP fetch strategy.
type FetchConfig struct {
	// Strategy selects "http" or "headless".
	Strategy       string   `mapstructure:"strategy"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryWaitMs    int      `mapstructure:"retry_wait_ms"`
	DelayMs        int      `mapstructure:"delay_ms"`
	UserAgents     []string `mapstructure:"user_agents"`
}

// HeadlessConfig configures the chromedp fetch strategy.
type HeadlessConfig struct {
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	AntiBlocking  bool `mapstructure:"anti_blocking"`
	// MinDelayMs/MaxDelayMs bound randomized inter-request delays when
	// anti-blocking is on; the fixed fetch.delay_ms applies otherwise.
	MinDelayMs     int     `mapstructure:"min_delay_ms"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"`
	LongPauseEvery int     `mapstructure:"long_pause_every"`
	LongPauseSec   int     `mapstructure:"long_pause_seconds"`
	DomainQPS      float64 `mapstructure:"domain_qps"`
}

// CrawlConfig governs orchestrator behavior.
type CrawlConfig struct {
	TaskName string `mapstructure:"task_name"`
	// DiscoveryMode selects "static" (configured page counts) or "live"
	// (follow pagination affordances up to the page cap).
	DiscoveryMode       string `mapstructure:"discovery_mode"`
	MaxPagesPerCategory int    `mapstructure:"max_pages_per_category"`
	// MaxConcurrent bounds the listing-page discovery fan-out. The per-item
	// crawl loop stays sequential so checkpoints remain exact.
	MaxConcurrent int  `mapstructure:"max_concurrent"`
	KeepHTML      bool `mapstructure:"keep_html"`
	ArchiveHTML   bool `mapstructure:"archive_html"`
}

// ImagesConfig controls the image pipeline.
type ImagesConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxDimension int  `mapstructure:"max_dimension"`
	JPEGQuality  int  `mapstructure:"jpeg_quality"`
	MaxRetries   int  `mapstructure:"max_retries"`
	// StoreLocal switches product.image_url between the local asset path and
	// the original remote URL.
	StoreLocal bool `mapstructure:"store_local"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AssetsConfig sets where binary assets land.
type AssetsConfig struct {
	// Backend selects "fs" or "gcs".
	Backend   string `mapstructure:"backend"`
	Root      string `mapstructure:"root"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CategoryConfig is one entry of the curated category table: the single
// configuration artifact consumed by both the discoverer and the extractor.
type CategoryConfig struct {
	Slug        string `mapstructure:"slug"`
	Name        string `mapstructure:"name"`
	Path        string `mapstructure:"path"`
	Pages       int    `mapstructure:"pages"`
	Description string `mapstructure:"description"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDEASY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.base_url", "https://medeasy.health")
	v.SetDefault("site.image_origins", []string{"api.medeasy.health", "medeasy.health"})
	v.SetDefault("site.product_path_markers", []string{"/product/", "/medicine/"})
	v.SetDefault("fetch.strategy", "http")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.retry_wait_ms", 2000)
	v.SetDefault("fetch.delay_ms", 1000)
	v.SetDefault("fetch.user_agents", defaultUserAgents)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.anti_blocking", false)
	v.SetDefault("headless.min_delay_ms", 2000)
	v.SetDefault("headless.max_delay_ms", 5000)
	v.SetDefault("headless.long_pause_every", 25)
	v.SetDefault("headless.long_pause_seconds", 30)
	v.SetDefault("headless.domain_qps", 0.5)
	v.SetDefault("crawl.task_name", "medeasy_scraper")
	v.SetDefault("crawl.discovery_mode", "static")
	v.SetDefault("crawl.max_pages_per_category", 50)
	v.SetDefault("crawl.max_concurrent", 5)
	v.SetDefault("crawl.keep_html", false)
	v.SetDefault("crawl.archive_html", false)
	v.SetDefault("images.enabled", true)
	v.SetDefault("images.max_dimension", 1600)
	v.SetDefault("images.jpeg_quality", 90)
	v.SetDefault("images.max_retries", 3)
	v.SetDefault("images.store_local", true)
	v.SetDefault("assets.backend", "fs")
	v.SetDefault("assets.root", "data/assets")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	switch c.Fetch.Strategy {
	case "http", "headless":
	default:
		return fmt.Errorf("fetch.strategy must be http or headless, got %q", c.Fetch.Strategy)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be > 0")
	}
	switch c.Crawl.DiscoveryMode {
	case "static", "live":
	default:
		return fmt.Errorf("crawl.discovery_mode must be static or live, got %q", c.Crawl.DiscoveryMode)
	}
	if c.Crawl.MaxPagesPerCategory <= 0 {
		return fmt.Errorf("crawl.max_pages_per_category must be > 0")
	}
	if c.Crawl.MaxConcurrent <= 0 {
		return fmt.Errorf("crawl.max_concurrent must be > 0")
	}
	switch c.Assets.Backend {
	case "fs":
		if c.Assets.Root == "" {
			return fmt.Errorf("assets.root must be set for fs backend")
		}
	case "gcs":
		if c.Assets.GCSBucket == "" {
			return fmt.Errorf("assets.gcs_bucket must be set for gcs backend")
		}
	default:
		return fmt.Errorf("assets.backend must be fs or gcs, got %q", c.Assets.Backend)
	}
	for i, cat := range c.Categories {
		if cat.Slug == "" || cat.Path == "" {
			return fmt.Errorf("categories[%d]: slug and path are required", i)
		}
		if cat.Pages < 1 {
			return fmt.Errorf("categories[%d] (%s): pages must be >= 1", i, cat.Slug)
		}
	}
	return nil
}

// FetchTimeout converts the configured timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// PolitenessDelay is the fixed sleep applied after every successful fetch.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Fetch.DelayMs) * time.Millisecond
}

// RetryWait is the fixed wait between fetch attempts.
func (c Config) RetryWait() time.Duration {
	return time.Duration(c.Fetch.RetryWaitMs) * time.Millisecond
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// DefaultCategories returns the curated category table for the default site.
// Page counts reflect the last manual audit of each listing.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Slug: "womens-choice", Name: "Women's Choice", Path: "/womens-choice", Pages: 4, Description: "Women's health and hygiene products"},
		{Slug: "sexual-wellness", Name: "Sexual Wellness", Path: "/sexual-wellness", Pages: 7, Description: "Sexual wellness and contraceptive products"},
		{Slug: "skin-care", Name: "Skin Care", Path: "/skin-care", Pages: 7, Description: "Skincare and beauty products"},
		{Slug: "diabetic-care", Name: "Diabetic Care", Path: "/diabetic-care", Pages: 4, Description: "Diabetes management products"},
		{Slug: "devices", Name: "Devices", Path: "/devices", Pages: 2, Description: "Medical devices and equipment"},
		{Slug: "supplement", Name: "Supplement", Path: "/supplement", Pages: 1, Description: "Nutritional supplements"},
		{Slug: "diapers", Name: "Diapers", Path: "/diapers", Pages: 1, Description: "Baby diapers and related products"},
		{Slug: "baby-care", Name: "Baby Care", Path: "/baby-care", Pages: 1, Description: "Baby care products"},
		{Slug: "personal-care", Name: "Personal Care", Path: "/personal-care", Pages: 1, Description: "Personal care and hygiene products"},
		{Slug: "hygiene-and-freshness", Name: "Hygiene And Freshness", Path: "/Hygiene-And-Freshness", Pages: 1, Description: "Hygiene and freshness products"},
		{Slug: "dental-care", Name: "Dental Care", Path: "/dental-care", Pages: 1, Description: "Dental care products"},
		{Slug: "herbal-medicine", Name: "Herbal Medicine", Path: "/Herbal-Medicine", Pages: 1, Description: "Herbal and natural medicines"},
		{Slug: "prescription-medicine", Name: "Prescription Medicine", Path: "/prescription-medicine", Pages: 1, Description: "Prescription medicines"},
		{Slug: "otc-medicine", Name: "OTC Medicine", Path: "/otc-medicine", Pages: 1, Description: "Over-the-counter medicines"},
	}
}
