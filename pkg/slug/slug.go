// Package slug turns titles into ASCII URL slugs.
package slug

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	multiHyphen     = regexp.MustCompile(`-{2,}`)
)

// maxLength keeps slugs within index-friendly bounds
const maxLength = 120

// From converts an arbitrary Unicode string into a URL-safe ASCII slug.
// Accents are folded (é -> e) and every other non-alphanumeric run becomes one hyphen.
func From(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}

	result = strings.ToLower(result)
	result = nonAlphanumeric.ReplaceAllString(result, "-")
	result = multiHyphen.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	if len(result) > maxLength {
		result = strings.TrimRight(result[:maxLength], "-")
	}

	return result
}

// WithTimestamp slugs title and appends the unix-millis of at, which keeps
// manually created topics and articles unique even when titles repeat.
func WithTimestamp(title string, at time.Time) string {
	base := From(title)
	if base == "" {
		base = "untitled"
	}
	return fmt.Sprintf("%s-%d", base, at.UnixMilli())
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
