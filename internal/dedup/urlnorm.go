// Package dedup decides whether incoming trend items and cluster titles are
// already known: exactly by normalized-URL hash, approximately by title embedding.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

var encodedSlash = regexp.MustCompile(`%2[fF]`)

// trackingParams are stripped during normalization; they never change page content
var trackingParams = map[string]struct{}{
	"gclid":   {},
	"gclsrc":  {},
	"dclid":   {},
	"fbclid":  {},
	"msclkid": {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeURL canonicalizes a URL so that variants differing only in tracking
// parameters, parameter order, fragment, host case, default port or trailing
// slash compare equal. Input that does not parse as an absolute URL is returned
// trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && defaultPorts[u.Scheme] != port {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	u.RawQuery = cleanQuery(u.Query())

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	u.Path, u.RawPath = canonicalPath(path)
	u.ForceQuery = false

	return u.String()
}

// canonicalPath decodes an escaped path. An encoded slash is a different path
// from a literal one, so it stays escaped in rawPath; every other escape is
// rewritten in its canonical form.
func canonicalPath(escaped string) (path, rawPath string) {
	parts := encodedSlash.Split(escaped, -1)
	decoded := make([]string, len(parts))
	for i, part := range parts {
		p, err := url.PathUnescape(part)
		if err != nil {
			return escaped, ""
		}
		decoded[i] = p
	}
	path = strings.Join(decoded, "/")
	if len(parts) == 1 {
		return path, ""
	}
	for i, p := range decoded {
		decoded[i] = (&url.URL{Path: p}).EscapedPath()
	}
	return path, strings.Join(decoded, "%2F")
}

// HashURL returns the sha1 hex digest of the normalized URL
func HashURL(raw string) string {
	sum := sha1.Sum([]byte(NormalizeURL(raw)))
	return hex.EncodeToString(sum[:])
}

// cleanQuery drops tracking parameters; Encode sorts by key
func cleanQuery(q url.Values) string {
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingParams[lower]; ok {
			q.Del(key)
		}
	}
	return q.Encode()
}
