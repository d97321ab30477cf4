package bundle

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var validExtension = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// skippedSchemes lists reference schemes that cannot be fetched over
// HTTP and are silently dropped during discovery.
var skippedSchemes = []string{"data:", "javascript:", "mailto:", "tel:", "blob:", "about:"}

// ResolveReference normalizes a (possibly relative) reference against
// the page's base URL. It returns ok=false for references that should
// be skipped: empty strings, fragment-only links, non-fetchable
// schemes, and malformed URLs. Already-absolute URLs pass through
// unchanged.
func ResolveReference(ref string, base *url.URL) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lowered := strings.ToLower(ref)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lowered, scheme) {
			return "", false
		}
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

// LocalName derives the deterministic archive filename for a resource:
// {kind}-{ordinal}.{ext}, where ordinal is the reference's position in
// the discovery-order sequence and ext is parsed from the URL path,
// falling back to the kind name when the path carries no usable
// extension.
func LocalName(kind ResourceKind, ordinal int, rawURL string) string {
	ext := string(kind)
	if u, err := url.Parse(rawURL); err == nil {
		if got := strings.TrimPrefix(path.Ext(u.Path), "."); validExtension.MatchString(got) {
			ext = got
		}
	}
	return fmt.Sprintf("%s-%d.%s", kind, ordinal, ext)
}
