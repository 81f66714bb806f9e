package extract

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
)

// codePrefix marks product codes synthesized from a URL rather than scraped
// from the page.
const codePrefix = "ME-"

// FallbackProductCode derives a deterministic product code from the page URL
// when the site provides no SKU. The code is an FNV-1a digest of the
// normalized URL reduced mod 1,000,000, so collisions are possible across a
// large catalog; a scraped SKU always takes precedence.
func FallbackProductCode(rawURL string) string {
	normalized := normalizeURL(rawURL)
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalized))
	return fmt.Sprintf("%s%06d", codePrefix, h.Sum64()%1_000_000)
}

// normalizeURL lowercases scheme and host, strips fragments and default
// ports, and drops a trailing slash so equivalent spellings hash alike.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
