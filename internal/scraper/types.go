// Package scraper defines core types shared across the scraping pipeline:
// products, categories, crawl progress, and the interfaces that connect the
// fetcher, discoverer, extractor, image pipeline, and storage layer.
package scraper

import (
	"encoding/json"
	"fmt"
	"time"
)

// CrawlStatus represents the lifecycle state of a crawl task.
type CrawlStatus string

// Crawl statuses persisted in crawl_progress.status.
const (
	StatusIdle      CrawlStatus = "idle"
	StatusRunning   CrawlStatus = "running"
	StatusCompleted CrawlStatus = "completed"
	StatusFailed    CrawlStatus = "failed"
	StatusStopped   CrawlStatus = "stopped"
)

// Category models one row of the categories table. Parent is optional and
// forms a tree for subcategories.
type Category struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	ParentID    *int       `json:"parent_id,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Product is the normalized medicine record persisted per product code.
// ProductCode is the natural key: re-scraping the same code mutates the
// existing row instead of inserting a duplicate.
type Product struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	GenericName  string `json:"generic_name,omitempty"`
	BrandName    string `json:"brand_name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Strength     string `json:"strength,omitempty"`
	DosageForm   string `json:"dosage_form,omitempty"`
	PackSize     string `json:"pack_size,omitempty"`

	// Price is nil when the page carried no parseable price. A price of 0 is
	// stored as 0 and is not distinguished from "unknown".
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`

	Description        string `json:"description,omitempty"`
	Indications        string `json:"indications,omitempty"`
	Contraindications  string `json:"contraindications,omitempty"`
	SideEffects        string `json:"side_effects,omitempty"`
	DosageInstructions string `json:"dosage_instructions,omitempty"`
	StorageConditions  string `json:"storage_conditions,omitempty"`

	ProductCode   string `json:"product_code"`
	CategoryID    *int   `json:"category_id,omitempty"`
	SubcategoryID *int   `json:"subcategory_id,omitempty"`

	// ImageURL points at the locally stored asset path, or the original
	// remote URL when local asset storage is disabled.
	ImageURL string `json:"image_url,omitempty"`

	// RawData holds the full extracted field set, and optionally the source
	// HTML, as an opaque JSON blob for later re-processing.
	RawData json.RawMessage `json:"raw_data,omitempty"`

	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	LastScraped time.Time  `json:"last_scraped"`
}

// ProductImage is the processed binary image stored alongside its product.
// At most one row exists per product; re-scrapes overwrite in place.
type ProductImage struct {
	ID          int        `json:"id"`
	ProductID   int        `json:"product_id"`
	ImageData   []byte     `json:"-"`
	OriginalURL string     `json:"original_url,omitempty"`
	FileSize    int        `json:"file_size"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	ContentHash string     `json:"content_hash,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// ImageData is the output of the image processor before persistence.
type ImageData struct {
	Data        []byte
	OriginalURL string
	FileSize    int
	Width       int
	Height      int
	ContentHash string
}

// Progress mirrors the crawl_progress row for one named task.
type Progress struct {
	ID             int             `json:"id"`
	TaskName       string          `json:"task_name"`
	CurrentPage    int             `json:"current_page"`
	TotalPages     int             `json:"total_pages"`
	ProcessedItems int             `json:"processed_items"`
	TotalItems     int             `json:"total_items"`
	Status         CrawlStatus     `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ResumeData     json.RawMessage `json:"-"`
	StartedAt      time.Time       `json:"started_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LogEntry is one append-only crawl event record.
type LogEntry struct {
	ID        int       `json:"id"`
	TaskName  string    `json:"task_name"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Log levels written to scrape_logs.level.
const (
	LogInfo    = "INFO"
	LogWarning = "WARNING"
	LogError   = "ERROR"
)

// WorkItem is one discovered product-detail URL tagged with the category of
// the listing page it was found on. The tag flows through to the extractor so
// category assignment never depends on breadcrumb scraping.
type WorkItem struct {
	URL        string `json:"url"`
	CategoryID int    `json:"category_id"`
}

// ResumeState is the typed checkpoint blob stored in
// crawl_progress.resume_data. It carries everything the orchestrator needs to
// pick up mid-crawl: the full discovered work list plus the cursor.
type ResumeState struct {
	TaskKind  string     `json:"task_kind"`
	WorkList  []WorkItem `json:"work_list"`
	Cursor    int        `json:"cursor"`
	Processed int        `json:"processed"`
}

// TaskKindCatalog is the resume-state discriminator for category-tree crawls.
const TaskKindCatalog = "catalog"

// Validate rejects checkpoint blobs whose shape cannot be resumed from.
func (s *ResumeState) Validate() error {
	if s.TaskKind != TaskKindCatalog {
		return fmt.Errorf("unknown task kind %q", s.TaskKind)
	}
	if len(s.WorkList) == 0 {
		return fmt.Errorf("empty work list")
	}
	if s.Cursor < 0 || s.Cursor > len(s.WorkList) {
		return fmt.Errorf("cursor %d out of range [0,%d]", s.Cursor, len(s.WorkList))
	}
	for i, item := range s.WorkList {
		if item.URL == "" {
			return fmt.Errorf("work item %d has empty url", i)
		}
	}
	return nil
}

// Page is the result of fetching a single URL.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Record is the field map produced by the extractor for one product page,
// before storage-level upserting assigns identifiers.
type Record struct {
	Product Product
}

// ProductFilter narrows ListProducts queries.
type ProductFilter struct {
	Search       string
	CategoryID   *int
	Manufacturer string
	Limit        int
	Offset       int
}

// LogFilter narrows ListLogs queries.
type LogFilter struct {
	Level    string
	TaskName string
	Limit    int
	Offset   int
}
