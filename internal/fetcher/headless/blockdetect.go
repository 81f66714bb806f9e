package headless

import (
	"bytes"
	"net/http"
)

// blockMarkers are body signatures of anti-bot interstitials. Matching is
// case-insensitive over a bounded prefix of the document.
var blockMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("cf-browser-verification"),
	[]byte("cf-challenge"),
	[]byte("cloudflare"),
	[]byte("checking your browser"),
	[]byte("access denied"),
	[]byte("unusual traffic"),
}

const blockScanLimit = 64 * 1024

// Blocked reports whether the response looks like the site refusing the
// session rather than serving content.
func Blocked(statusCode int, body []byte) bool {
	if statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests {
		return true
	}
	scan := body
	if len(scan) > blockScanLimit {
		scan = scan[:blockScanLimit]
	}
	lower := bytes.ToLower(scan)
	for _, marker := range blockMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
