package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// probe is one pure field-extraction attempt against the document. Probes
// are run in priority order; the first hit wins, which keeps each field's
// selector cascade declarative and testable in isolation.
type probe func(*goquery.Document) (string, bool)

// textProbe returns the cleaned text of the first element matching selector.
func textProbe(selector string) probe {
	return func(doc *goquery.Document) (string, bool) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", false
		}
		text := cleanText(sel.Text())
		return text, text != ""
	}
}

// attrProbe returns the named attribute of the first element matching
// selector.
func attrProbe(selector, attr string) probe {
	return func(doc *goquery.Document) (string, bool) {
		val, ok := doc.Find(selector).First().Attr(attr)
		val = cleanText(val)
		return val, ok && val != ""
	}
}

// firstHit runs probes in order and returns the first non-empty result.
func firstHit(doc *goquery.Document, probes []probe) (string, bool) {
	for _, p := range probes {
		if val, ok := p(doc); ok {
			return val, true
		}
	}
	return "", false
}

func textProbes(selectors ...string) []probe {
	probes := make([]probe, 0, len(selectors))
	for _, s := range selectors {
		probes = append(probes, textProbe(s))
	}
	return probes
}

// cleanText collapses runs of whitespace and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Per-field selector cascades, most specific first.
var (
	nameProbes = textProbes(
		"h1.product-title",
		"h1.medicine-title",
		".product-name",
		".medicine-name",
		"h1",
		".title",
	)
	genericProbes = textProbes(
		".generic-name",
		".generic",
		`[data-field="generic"]`,
		".product-generic",
	)
	brandProbes = textProbes(
		".brand-name",
		".brand",
		`[data-field="brand"]`,
		".product-brand",
	)
	manufacturerProbes = textProbes(
		".manufacturer",
		".company",
		`[data-field="manufacturer"]`,
		".product-manufacturer",
		".vendor",
	)
	priceProbes = textProbes(
		".price",
		".product-price",
		".medicine-price",
		`[data-field="price"]`,
		".cost",
		".amount",
	)
	strengthProbes = textProbes(
		".strength",
		".dosage-strength",
		`[data-field="strength"]`,
	)
	dosageFormProbes = textProbes(
		".dosage-form",
		".form",
		`[data-field="form"]`,
	)
	packSizeProbes = textProbes(
		".pack-size",
		".pack-size-info",
		".size",
		`[data-field="pack"]`,
	)
	descriptionProbes = textProbes(
		".description",
		".product-description",
		".medicine-description",
		".details",
		".info",
	)
	codeProbes = textProbes(
		".product-code",
		".sku",
		".code",
		`[data-field="code"]`,
	)
	// Pack-container details kept verbatim in the raw blob only; the unit
	// price text often carries both strip and per-piece figures.
	unitPriceProbes = textProbes(
		".package-container .pkg-qty",
		".unit-price",
		`span:contains("Unit Price")`,
	)
	packInfoProbes = textProbes(
		".package-container .pack-size-info",
		".pack-info",
	)
)
