// Package extract parses product pages into normalized records using a fixed
// trust order: embedded structured data, then page metadata, then per-field
// selector cascades, then text heuristics over already-extracted fields.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// Config controls extraction behavior.
type Config struct {
	// SiteNameSuffixes are stripped from meta-derived titles, e.g. " | MedEasy".
	SiteNameSuffixes []string
	// DefaultCurrency is assumed when a price was parsed without a currency.
	DefaultCurrency string
	// KeepHTML embeds the full source HTML in the raw-data blob for later
	// re-processing without re-fetching.
	KeepHTML bool
}

// Extractor implements scraper.Extractor.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "BDT"
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// structured detail sections keyed by element id, medex-style accordions.
var detailSections = []struct {
	id    string
	field func(p *scraper.Product) *string
}{
	{"indications", func(p *scraper.Product) *string { return &p.Indications }},
	{"contraindications", func(p *scraper.Product) *string { return &p.Contraindications }},
	{"side_effects", func(p *scraper.Product) *string { return &p.SideEffects }},
	{"dosage", func(p *scraper.Product) *string { return &p.DosageInstructions }},
	{"storage_conditions", func(p *scraper.Product) *string { return &p.StorageConditions }},
}

// Extract produces a Record from a parsed product page. A selector miss
// leaves that field empty; only a missing product name makes the page
// non-extractable (scraper.ErrNoName).
func (e *Extractor) Extract(doc *goquery.Document, pageURL string, categoryID int) (scraper.Record, error) {
	var p scraper.Product

	// 1. Structured data.
	ld, hasLD := parseJSONLD(doc)
	if hasLD {
		p.Name = ld.Name
		p.Description = ld.Description
		p.BrandName = ld.Brand
		p.Price = ld.Price
		p.Currency = ld.Currency
	}

	// 2. Page metadata fills still-missing name/description.
	if p.Name == "" {
		p.Name = e.metaTitle(doc)
	}
	if p.Description == "" {
		if desc, ok := attrProbe(`meta[name="description"]`, "content")(doc); ok {
			p.Description = desc
		}
	}

	// 3. Per-field selector cascades.
	if p.Name == "" {
		p.Name, _ = firstHit(doc, nameProbes)
	}
	p.GenericName, _ = firstHit(doc, genericProbes)
	if p.BrandName == "" {
		p.BrandName, _ = firstHit(doc, brandProbes)
	}
	if m, ok := firstHit(doc, manufacturerProbes); ok && len(m) < 100 {
		p.Manufacturer = m
	}
	if p.Price == nil {
		if text, ok := firstHit(doc, priceProbes); ok {
			p.Price = ParsePrice(text)
		}
	}
	p.Strength, _ = firstHit(doc, strengthProbes)
	p.DosageForm, _ = firstHit(doc, dosageFormProbes)
	p.PackSize, _ = firstHit(doc, packSizeProbes)
	if p.Description == "" {
		p.Description, _ = firstHit(doc, descriptionProbes)
	}
	e.extractSections(doc, &p)

	// 4. Text heuristics over the name.
	if p.Strength == "" {
		p.Strength = strengthFromName(p.Name)
	}
	if p.DosageForm == "" {
		p.DosageForm = dosageFormFromName(p.Name)
	}

	if p.Name == "" {
		return scraper.Record{}, fmt.Errorf("extract %s: %w", pageURL, scraper.ErrNoName)
	}

	// Product code: structured SKU, then scraped element, then URL hash.
	switch {
	case ld.SKU != "":
		p.ProductCode = ld.SKU
	default:
		if code, ok := firstHit(doc, codeProbes); ok {
			p.ProductCode = code
		} else {
			p.ProductCode = FallbackProductCode(pageURL)
		}
	}

	if p.Price != nil && p.Currency == "" {
		p.Currency = e.cfg.DefaultCurrency
	}
	catID := categoryID
	p.CategoryID = &catID
	p.IsActive = true

	raw, err := e.rawBlob(doc, pageURL, &p)
	if err != nil {
		return scraper.Record{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	p.RawData = raw

	return scraper.Record{Product: p}, nil
}

func (e *Extractor) metaTitle(doc *goquery.Document) string {
	title, ok := attrProbe(`meta[property="og:title"]`, "content")(doc)
	if !ok {
		title, _ = attrProbe(`meta[name="title"]`, "content")(doc)
	}
	for _, suffix := range e.cfg.SiteNameSuffixes {
		for strings.HasSuffix(title, suffix) {
			title = strings.TrimSuffix(title, suffix)
		}
	}
	return cleanText(title)
}

// extractSections reads accordion-style detail sections: a heading element
// with a known id, whose body lives in an adjacent .ac-body container.
func (e *Extractor) extractSections(doc *goquery.Document, p *scraper.Product) {
	for _, section := range detailSections {
		heading := doc.Find("#" + section.id).First()
		if heading.Length() == 0 {
			continue
		}
		body := heading.NextFiltered("div.ac-body")
		if body.Length() == 0 {
			body = heading.Parent().Find("div.ac-body").First()
		}
		if body.Length() == 0 {
			continue
		}
		content := cleanText(body.Text())
		if len(content) > 5 {
			*section.field(p) = content
		}
	}
}

func (e *Extractor) rawBlob(doc *goquery.Document, pageURL string, p *scraper.Product) (json.RawMessage, error) {
	fields := map[string]any{
		"name":                p.Name,
		"generic_name":        p.GenericName,
		"brand_name":          p.BrandName,
		"manufacturer":        p.Manufacturer,
		"strength":            p.Strength,
		"dosage_form":         p.DosageForm,
		"pack_size":           p.PackSize,
		"price":               p.Price,
		"currency":            p.Currency,
		"description":         p.Description,
		"indications":         p.Indications,
		"contraindications":   p.Contraindications,
		"side_effects":        p.SideEffects,
		"dosage_instructions": p.DosageInstructions,
		"storage_conditions":  p.StorageConditions,
		"product_code":        p.ProductCode,
	}
	if unit, ok := firstHit(doc, unitPriceProbes); ok {
		fields["unit_price_text"] = unit
	}
	if pack, ok := firstHit(doc, packInfoProbes); ok {
		fields["pack_info_text"] = pack
	}
	blob := map[string]any{
		"url":              pageURL,
		"extracted_fields": fields,
	}
	if e.cfg.KeepHTML {
		html, err := doc.Html()
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		blob["html_content"] = html
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("marshal raw data: %w", err)
	}
	return raw, nil
}

var strengthPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|iu|%)(?:\s*/\s*\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|iu))?\b`)

// strengthFromName pulls a dosage-strength token (e.g. "500 mg") out of the
// product name when no dedicated element exists.
func strengthFromName(name string) string {
	return cleanText(strengthPattern.FindString(name))
}

var dosageForms = []string{
	"Tablet", "Capsule", "Syrup", "Suspension", "Injection", "Cream",
	"Ointment", "Gel", "Drops", "Inhaler", "Spray", "Lotion", "Solution",
	"Powder", "Suppository",
}

// dosageFormFromName matches a known dosage-form token inside the name.
func dosageFormFromName(name string) string {
	lower := strings.ToLower(name)
	for _, form := range dosageForms {
		if strings.Contains(lower, strings.ToLower(form)) {
			return form
		}
	}
	return ""
}
