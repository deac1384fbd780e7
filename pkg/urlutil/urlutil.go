package urlutil

import (
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrUnsupportedScheme is returned by Normalize when the candidate resolves
// to a scheme other than http or https (javascript:, mailto:, tel:, data:, ...).
var ErrUnsupportedScheme = errors.New("urlutil: unsupported URL scheme")

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Path is cleaned (trailing slashes removed, except for root "/")
//   - Fragments are removed
//   - Query components are sorted lexicographically and rejoined (not dropped)
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Empty path canonicalizes to root
	if canonical.Path == "" {
		canonical.Path = "/"
	}

	// Clean the path: remove trailing slashes (except root)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	// Sort query components lexicographically instead of dropping them:
	// "?b=2&a=1" and "?a=1&b=2" name the same resource.
	if canonical.RawQuery != "" {
		canonical.RawQuery = sortQuery(canonical.RawQuery)
	} else {
		// An empty query ("guide?") names the same resource as no query
		canonical.ForceQuery = false
	}

	return canonical
}

// sortQuery splits a raw query string on "&" and rejoins its components in
// lexicographic order, preserving each component's own "k=v" text untouched.
func sortQuery(rawQuery string) string {
	parts := strings.Split(rawQuery, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// Normalize is the full candidate-to-canonical-URL pipeline: resolve ref
// against base when ref is relative, reject anything that doesn't resolve to
// http or https, then Canonicalize the result. base may be nil when ref is
// already expected to be absolute.
func Normalize(ref string, base *url.URL) (url.URL, error) {
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return url.URL{}, err
	}

	var resolved *url.URL
	if base != nil {
		resolved = base.ResolveReference(parsedRef)
	} else {
		resolved = parsedRef
	}

	scheme := lowerASCII(resolved.Scheme)
	if scheme != "http" && scheme != "https" {
		return url.URL{}, ErrUnsupportedScheme
	}

	return Canonicalize(*resolved), nil
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
