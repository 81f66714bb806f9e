package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// productLD is the subset of a JSON-LD Product object the extractor uses.
type productLD struct {
	Name        string
	Description string
	SKU         string
	Brand       string
	Price       *float64
	Currency    string
}

type ldDocument struct {
	Type        string          `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SKU         string          `json:"sku"`
	Brand       json.RawMessage `json:"brand"`
	Offers      json.RawMessage `json:"offers"`
}

type ldOffer struct {
	// Price is left raw: schema.org markup serializes it as either a JSON
	// number or a string.
	Price         json.RawMessage `json:"price"`
	PriceCurrency string          `json:"priceCurrency"`
}

// parseJSONLD scans the page's ld+json scripts for the first Product object.
// Embedded structured data is the most trustworthy field source, so hits
// here pre-empt selector scraping.
func parseJSONLD(doc *goquery.Document) (productLD, bool) {
	var result productLD
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var ld ldDocument
		if err := json.Unmarshal([]byte(sel.Text()), &ld); err != nil {
			return true
		}
		if !strings.EqualFold(ld.Type, "Product") {
			return true
		}
		result.Name = strings.TrimSpace(ld.Name)
		result.Description = strings.TrimSpace(ld.Description)
		result.SKU = strings.TrimSpace(ld.SKU)
		result.Brand = parseBrand(ld.Brand)
		result.Price, result.Currency = parseOffers(ld.Offers)
		found = true
		return false
	})
	return result, found
}

// parseBrand accepts both "brand": "Acme" and "brand": {"name": "Acme"}.
func parseBrand(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return strings.TrimSpace(name)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

// parseOffers accepts a single offer object or an array of them.
func parseOffers(raw json.RawMessage) (*float64, string) {
	if len(raw) == 0 {
		return nil, ""
	}
	var offer ldOffer
	if err := json.Unmarshal(raw, &offer); err != nil {
		var offers []ldOffer
		if err := json.Unmarshal(raw, &offers); err != nil || len(offers) == 0 {
			return nil, ""
		}
		offer = offers[0]
	}
	return parsePriceValue(offer.Price), offer.PriceCurrency
}

// parsePriceValue accepts "price": 32.5 and "price": "32.50".
func parsePriceValue(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParsePrice(s)
	}
	return nil
}
