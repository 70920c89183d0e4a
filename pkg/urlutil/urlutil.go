package urlutil

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - An empty path normalizes to "/"
//   - A trailing slash is dropped from non-root paths
//   - Fragments are removed
//   - Query parameters are kept but sorted lexicographically by full key=value pair
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

	// Normalize empty path to root
	if canonical.Path == "" {
		canonical.Path = "/"
	} else if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor) and a bare trailing "?"
	canonical.Fragment = ""
	canonical.RawFragment = ""
	canonical.ForceQuery = false

	// Sort query parameters by full key=value pair; do not drop them, since
	// distinct parameter orderings for the same pairs must collapse to one
	// canonical form while semantically distinct query strings must not.
	if canonical.RawQuery != "" {
		canonical.RawQuery = sortQuery(canonical.RawQuery)
	}

	return canonical
}

// sortQuery sorts a raw query string's key=value pairs lexicographically by
// the full pair, preserving duplicate pairs and un-decoded encoding.
func sortQuery(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// CanonicalString returns the canonical string form of a URL, the identity
// key used for frontier deduplication.
func CanonicalString(sourceUrl url.URL) string {
	c := Canonicalize(sourceUrl)
	return c.String()
}

// Resolve resolves a possibly-relative reference against a base URL and
// returns the canonicalized absolute result.
func Resolve(base url.URL, ref string) (url.URL, error) {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return url.URL{}, err
	}
	resolved := base.ResolveReference(refURL)
	return Canonicalize(*resolved), nil
}

// SameSite reports whether u belongs to the same logical site as seed:
// registered-domain equality, and subdomain equality too when
// stayOnSubdomain is set. Hosts that fail public-suffix decomposition (IP
// literals, single-label hosts) are never considered same-site with
// anything, since the source does not define the comparison for that case.
func SameSite(u url.URL, seed url.URL, stayOnSubdomain bool) bool {
	uDomain, uOK := registeredDomain(u.Hostname())
	seedDomain, seedOK := registeredDomain(seed.Hostname())
	if !uOK || !seedOK {
		return false
	}
	if uDomain != seedDomain {
		return false
	}
	if !stayOnSubdomain {
		return true
	}
	return lowerASCII(u.Hostname()) == lowerASCII(seed.Hostname())
}

// registeredDomain returns the eTLD+1 for host, and false if host has no
// registrable domain (bare eTLD, IP literal, single-label host).
func registeredDomain(host string) (string, bool) {
	host = lowerASCII(host)
	if host == "" {
		return "", false
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", false
	}
	return etld1, true
}

// Admit reports whether u may enter the frontier: scheme is http(s), u is
// same-site with seed, and no exclude pattern (case-insensitive, anchored at
// end of string) matches the canonical form.
func Admit(u url.URL, seed url.URL, stayOnSubdomain bool, excludePatterns []string) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !SameSite(u, seed, stayOnSubdomain) {
		return false
	}
	canonical := CanonicalString(u)
	for _, pattern := range excludePatterns {
		matched, err := regexp.MatchString(pattern, canonical)
		if err == nil && matched {
			return false
		}
	}
	return true
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
