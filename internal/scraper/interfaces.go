package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrBlocked signals the target site is refusing the session (403/429 or a
// CAPTCHA/Cloudflare interstitial). Retrying the same session is pointless.
var ErrBlocked = errors.New("blocked by target site")

// ErrNoName signals a page from which no product name could be extracted.
// The caller logs a warning and skips the page.
var ErrNoName = errors.New("no product name found")

// Fetcher retrieves raw HTML for a URL. Implementations own their retry
// policy and politeness delay.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Discoverer walks the category tree and returns the full ordered work list.
type Discoverer interface {
	Discover(ctx context.Context) ([]WorkItem, error)
}

// Extractor parses a product page into a Record. A missing name returns
// ErrNoName; any other selector miss leaves that field empty.
type Extractor interface {
	Extract(doc *goquery.Document, url string, categoryID int) (Record, error)
}

// ImageResolver picks the best-candidate product image URL from a page.
// The second return is false when no acceptable candidate exists.
type ImageResolver interface {
	ResolveURL(doc *goquery.Document, pageURL string) (string, bool)
}

// ImageProcessor downloads and normalizes an image to the storage codec.
type ImageProcessor interface {
	Process(ctx context.Context, url string) (ImageData, error)
}

// Store is the relational persistence boundary for the pipeline.
type Store interface {
	// UpsertProduct writes the product and its optional image in a single
	// transaction keyed by product code. A nil image leaves any existing
	// image row untouched.
	UpsertProduct(ctx context.Context, p *Product, img *ImageData) error

	UpsertCategory(ctx context.Context, c *Category) error
	GetCategoryBySlug(ctx context.Context, slug string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	UpsertProgress(ctx context.Context, p *Progress) error
	GetProgress(ctx context.Context, taskName string) (Progress, error)

	AppendLog(ctx context.Context, entry LogEntry) error
	ListLogs(ctx context.Context, f LogFilter) ([]LogEntry, error)
	PruneLogs(ctx context.Context, before time.Time) (int64, error)

	ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int) (Product, error)
	GetProductImage(ctx context.Context, productID int) (ProductImage, error)
	GetProductImageInfo(ctx context.Context, productID int) (ProductImage, error)
}

// AssetStore writes binary payloads (images, archived HTML) and returns a
// URL-shaped path for the database row. Filenames are unique per write, so
// the tree is append-only for one run.
type AssetStore interface {
	Save(ctx context.Context, kind string, ext string, data []byte) (string, error)
}

// Clock returns the current time (swapped out in tests).
type Clock interface {
	Now() time.Time
}
