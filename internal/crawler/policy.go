package crawler

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// Verdict is the Policy Filter's decision for a single discovered URL: one
// of process, external, or skip.
type Verdict int

const (
	// VerdictProcess means the URL should be fetched.
	VerdictProcess Verdict = iota
	// VerdictExternal means the URL is off-site; record it, do not fetch.
	VerdictExternal
	// VerdictSkip means the URL is in-scope but excluded by a rule;
	// record it with a reason, do not fetch.
	VerdictSkip
)

// PolicyDecision is the outcome of a single Filter call.
type PolicyDecision struct {
	Verdict Verdict
	Reason  string
}

// Filter decides whether a discovered URL is processed, external, or
// skipped, applying an ordered set of checks.
type Filter struct {
	config ScanPolicy
	logger arbor.ILogger

	regexes   []*regexp.Regexp
	wildcards []string
	seed      *url.URL
}

// ScanPolicy is the subset of models.ScanConfig the Policy Filter consults.
type ScanPolicy struct {
	Depth               int
	ScanSameLinkOnce     bool
	SkipExternalDomains  bool
	ExcludeSubdomains    bool
	RegexExclusions      []string
	WildcardExclusions   []string
}

// PolicyFromConfig builds a ScanPolicy from a job's ScanConfig.
func PolicyFromConfig(c models.ScanConfig) ScanPolicy {
	return ScanPolicy{
		Depth:               c.Depth,
		ScanSameLinkOnce:    c.ScanSameLinkOnce,
		SkipExternalDomains: c.SkipExternalDomains,
		ExcludeSubdomains:   c.ExcludeSubdomains,
		RegexExclusions:     c.RegexExclusions,
		WildcardExclusions:  c.WildcardExclusions,
	}
}

// NewFilter compiles the config's regex exclusions once, logging and
// skipping any pattern that fails to compile rather than treating it as a
// fatal error.
func NewFilter(seed *url.URL, policy ScanPolicy, logger arbor.ILogger) *Filter {
	f := &Filter{
		config:    policy,
		logger:    logger,
		seed:      seed,
		wildcards: policy.WildcardExclusions,
	}

	for _, pattern := range policy.RegexExclusions {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.Warn().Err(err).Str("pattern", pattern).Msg("Failed to compile regex exclusion")
			continue
		}
		f.regexes = append(f.regexes, re)
	}

	return f
}

// Decide applies the filter's checks in order; the first match wins.
// alreadyVisited and priorStatus reflect the current result-catalog entry
// for the URL, if any.
func (f *Filter) Decide(candidate *url.URL, depth int, alreadyVisited bool, priorStatus models.ResultStatus) PolicyDecision {
	if f.config.ScanSameLinkOnce && alreadyVisited {
		return PolicyDecision{Verdict: VerdictSkip, Reason: "already scanned"}
	}

	if f.config.Depth > 0 && depth > f.config.Depth {
		return PolicyDecision{Verdict: VerdictSkip, Reason: "exceeded max depth"}
	}

	if !SameSite(f.seed, candidate) {
		if f.config.SkipExternalDomains {
			return PolicyDecision{Verdict: VerdictExternal}
		}
		return PolicyDecision{Verdict: VerdictProcess}
	}

	if f.config.ExcludeSubdomains && IsProperSubdomain(f.seed, candidate) {
		return PolicyDecision{
			Verdict: VerdictSkip,
			Reason:  fmt.Sprintf("excluded subdomain %s", candidate.Hostname()),
		}
	}

	for _, pattern := range f.wildcards {
		matched, err := matchWildcard(pattern, candidate)
		if err != nil {
			f.logger.Warn().Err(err).Str("pattern", pattern).Msg("Failed to compile wildcard exclusion")
			continue
		}
		if matched {
			return PolicyDecision{Verdict: VerdictSkip, Reason: fmt.Sprintf("matches wildcard exclusion %q", pattern)}
		}
	}

	full := candidate.String()
	for _, re := range f.regexes {
		if re.MatchString(full) {
			return PolicyDecision{Verdict: VerdictSkip, Reason: fmt.Sprintf("matches regex exclusion %q", re.String())}
		}
	}

	return PolicyDecision{Verdict: VerdictProcess}
}
