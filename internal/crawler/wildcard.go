package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// matchWildcard reports whether candidate matches pattern under this
// package's wildcard-exclusion semantics.
//
// A pattern with a scheme or a leading "*" is compiled straight to a regex
// and matched against the full URL. A schemeless pattern gets convenience
// semantics: if it contains "/", the segment before the first "/" is a host
// spec (matched against candidate's host, or a subdomain of it, ignoring a
// "www." prefix on either side) and the remainder is matched as a path
// pattern; if it contains no "/", it is a host-suffix test.
func matchWildcard(pattern string, candidate *url.URL) (bool, error) {
	if pattern == "" {
		return false, nil
	}

	if strings.Contains(pattern, "://") || strings.HasPrefix(pattern, "*") {
		re, err := wildcardToRegexp(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(candidate.String()), nil
	}

	host := trimWWW(candidate.Hostname())

	if idx := strings.Index(pattern, "/"); idx >= 0 {
		hostSpec := trimWWW(pattern[:idx])
		pathPattern := pattern[idx:]

		if host != hostSpec && !strings.HasSuffix(host, "."+hostSpec) {
			return false, nil
		}

		re, err := wildcardToRegexp(pathPattern)
		if err != nil {
			return false, err
		}
		path := candidate.Path
		if path == "" {
			path = "/"
		}
		return re.MatchString(path), nil
	}

	hostSuffix := trimWWW(pattern)
	return host == hostSuffix || strings.HasSuffix(host, "."+hostSuffix), nil
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// wildcardToRegexp translates a shell-style wildcard pattern ("*" and "?")
// into an anchored, compiled regular expression.
func wildcardToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString("$")
	return regexp.Compile(b.String())
}
