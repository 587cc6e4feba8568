// Package crawler implements the URL Normalizer, Policy Filter, Link
// Extractor, Fetcher, and Crawl Engine.
package crawler

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Normalizer canonicalizes URLs for visited/queued-set comparison: it strips
// fragments, lower-cases scheme and host, and sorts query parameters so that
// two URLs differing only in fragment or query-param order are treated as
// the same link.
type Normalizer struct {
	mu    sync.RWMutex
	cache map[string]string
}

// NewNormalizer creates a Normalizer with an unbounded memoization cache to
// avoid re-normalizing repeated links.
func NewNormalizer() *Normalizer {
	return &Normalizer{cache: make(map[string]string)}
}

// Normalize returns the canonical form of rawURL used for deduplication.
// Malformed URLs are returned lower-cased and trimmed, unchanged otherwise.
func (n *Normalizer) Normalize(rawURL string) string {
	n.mu.RLock()
	if v, ok := n.cache[rawURL]; ok {
		n.mu.RUnlock()
		return v
	}
	n.mu.RUnlock()

	normalized := normalize(rawURL)

	n.mu.Lock()
	n.cache[rawURL] = normalized
	n.mu.Unlock()

	return normalized
}

func normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := url.Values{}
		for _, k := range keys {
			values[k] = query[k]
		}
		u.RawQuery = values.Encode()
	}

	// Treat a bare "/" path the same as an empty path.
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// ResolveURL resolves href against baseURL, returning an absolute URL string
// or an empty string if it cannot be resolved or resolves to anything other
// than an http(s) scheme.
func ResolveURL(href string, base *url.URL) string {
	if base == nil {
		parsed, err := url.Parse(href)
		if err != nil || !parsed.IsAbs() || !isHTTPScheme(parsed.Scheme) {
			return ""
		}
		return parsed.String()
	}

	resolved, err := base.Parse(href)
	if err != nil || !isHTTPScheme(resolved.Scheme) {
		return ""
	}
	return resolved.String()
}

func isHTTPScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

// SameSite reports whether candidate and seed share a registered domain.
func SameSite(seed, candidate *url.URL) bool {
	if seed == nil || candidate == nil {
		return false
	}
	return RegisteredDomain(candidate.Hostname()) == RegisteredDomain(seed.Hostname())
}

// IsProperSubdomain reports whether candidate's host is a proper subdomain
// of seed's registered domain.
func IsProperSubdomain(seed, candidate *url.URL) bool {
	if seed == nil || candidate == nil {
		return false
	}
	registered := RegisteredDomain(seed.Hostname())
	host := strings.ToLower(candidate.Hostname())
	return host != registered && strings.HasSuffix(host, "."+registered)
}

// RegisteredDomain returns the last two labels of host, a simplified
// stand-in for a public-suffix-list lookup.
func RegisteredDomain(host string) string {
	host = strings.ToLower(host)
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
