// Package images resolves the best product image URL on a page and turns it
// into a normalized, storable JPEG.
package images

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ResolverConfig controls candidate selection.
type ResolverConfig struct {
	// ImageOrigins are the hosts a Next.js-proxied image URL may point at.
	// A decoded origin outside this set is discarded.
	ImageOrigins []string
}

// Resolver implements scraper.ImageResolver by scoring every <img> on the
// page and returning the highest-ranked candidate.
type Resolver struct {
	cfg    ResolverConfig
	logger *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// URL substrings that mark non-product imagery.
var skipMarkers = []string{"facebook", "twitter", "instagram", "linkedin", "icon", "logo", "sprite", "avatar", "placeholder"}

// Size-hint tokens in the URL that strongly suggest the full-resolution asset.
var sizeHints = []string{"large", "original", "full", "high", "big"}

// Class substrings that mark the main product shot.
var classHints = []string{"product", "medicine", "main", "primary", "detail"}

// ResolveURL returns the best product image URL on the page, absolute, or
// false when no plausible candidate exists. A Next.js image proxy reference
// is authoritative: the page renders it as the product shot, so its decoded
// URL wins outright and the scoring pass never runs.
func (r *Resolver) ResolveURL(doc *goquery.Document, pageURL string) (string, bool) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}

	if proxied, ok := r.firstProxied(doc, base); ok {
		return proxied, true
	}

	best := ""
	bestScore := 0
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := imgSrc(sel)
		if src == "" {
			return
		}
		resolved, ok := r.resolve(base, src)
		if !ok {
			return
		}
		score, ok := r.score(resolved, sel)
		if !ok {
			return
		}
		if score > bestScore || best == "" {
			best, bestScore = resolved, score
		}
	})
	if best == "" {
		return "", false
	}
	return best, true
}

// firstProxied returns the decoded target of the first /_next/image
// reference whose origin validates.
func (r *Resolver) firstProxied(doc *goquery.Document, base *url.URL) (string, bool) {
	found := ""
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := imgSrc(sel)
		if src == "" {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if !strings.HasPrefix(abs.Path, "/_next/image") {
			return true
		}
		decoded, ok := r.decodeProxy(base, abs)
		if !ok {
			return true
		}
		found = decoded
		return false
	})
	return found, found != ""
}

func imgSrc(sel *goquery.Selection) string {
	src, ok := sel.Attr("src")
	if !ok || src == "" {
		src, _ = sel.Attr("data-src")
	}
	return src
}

// resolve absolutizes src against the page URL, unwrapping Next.js image
// proxy paths (/_next/image?url=...) to the underlying asset first.
func (r *Resolver) resolve(base *url.URL, src string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)

	if strings.HasPrefix(abs.Path, "/_next/image") {
		return r.decodeProxy(base, abs)
	}
	return abs.String(), true
}

// decodeProxy extracts and validates the url parameter of a proxy reference.
func (r *Resolver) decodeProxy(base, abs *url.URL) (string, bool) {
	inner := abs.Query().Get("url")
	if inner == "" {
		return "", false
	}
	decoded, err := url.Parse(inner)
	if err != nil {
		return "", false
	}
	if decoded.Host == "" {
		// Relative proxied path, stays on the page origin.
		return base.ResolveReference(decoded).String(), true
	}
	if !r.allowedOrigin(decoded.Host) {
		r.logger.Debug("rejected proxied image origin", zap.String("host", decoded.Host))
		return "", false
	}
	return decoded.String(), true
}

func (r *Resolver) allowedOrigin(host string) bool {
	if len(r.cfg.ImageOrigins) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, origin := range r.cfg.ImageOrigins {
		if host == strings.ToLower(origin) {
			return true
		}
	}
	return false
}

// score ranks a candidate. The second return is false when the image should
// be skipped outright.
func (r *Resolver) score(resolved string, sel *goquery.Selection) (int, bool) {
	lower := strings.ToLower(resolved)
	for _, marker := range skipMarkers {
		if strings.Contains(lower, marker) {
			return 0, false
		}
	}

	w := dimension(sel, "width")
	h := dimension(sel, "height")
	if (w > 0 && w < 50) || (h > 0 && h < 50) {
		return 0, false
	}

	score := 1
	for _, hint := range sizeHints {
		if strings.Contains(lower, hint) {
			score += 1000
			break
		}
	}
	if class, ok := sel.Attr("class"); ok {
		lc := strings.ToLower(class)
		for _, hint := range classHints {
			if strings.Contains(lc, hint) {
				score += 500
				break
			}
		}
	}
	score += w * h
	return score, true
}

func dimension(sel *goquery.Selection, attr string) int {
	raw, ok := sel.Attr(attr)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(raw), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
