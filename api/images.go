package api

import (
	"net/url"
	"strings"
)

// ResolveImageURL turns a raw image reference into an absolute URL. A
// reference that already has a scheme is returned unchanged; anything else
// is appended to base with exactly one separating slash. An empty reference
// resolves to "".
func ResolveImageURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return raw
	}
	base = strings.TrimRight(base, "/")
	if strings.HasPrefix(raw, "/") {
		return base + raw
	}
	return base + "/" + raw
}
