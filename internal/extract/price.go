package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var priceToken = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePrice pulls the first numeric token out of a price string, after
// stripping thousands separators. It returns nil for absent or unparseable
// text. A literal 0 parses as 0; the caller cannot distinguish a free item
// from an unknown price, which mirrors the source data.
func ParsePrice(text string) *float64 {
	cleaned := strings.ReplaceAll(text, ",", "")
	token := priceToken.FindString(cleaned)
	if token == "" {
		return nil
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return nil
	}
	return &value
}
