package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Default tuning values. WithDefaults applies DefaultConcurrency and
// DefaultRequestTimeout; DefaultExternalTimeout caps off-site fetches. The
// three boolean defaults are not applied by WithDefaults or elsewhere: a
// ScanConfig that leaves ScanSameLinkOnce, SkipExternalDomains or
// ExcludeSubdomains unset keeps false for them.
const (
	DefaultConcurrency      = 10
	DefaultRequestTimeout   = 30 * time.Second
	DefaultExternalTimeout  = 15 * time.Second
	DefaultScanSameLinkOnce = true
	DefaultSkipExternal     = true
	DefaultExcludeSubs      = true
)

// BasicAuth holds credentials sent as an HTTP Basic Authorization header.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ScanConfig is the immutable configuration for a single scan job.
type ScanConfig struct {
	Depth                    int        `json:"depth"`
	ScanSameLinkOnce         bool       `json:"scan_same_link_once"`
	Concurrency              int        `json:"concurrency"`
	RequestTimeout           int        `json:"request_timeout_ms"`
	SkipExternalDomains      bool       `json:"skip_external_domains"`
	ExcludeSubdomains        bool       `json:"exclude_subdomains"`
	RegexExclusions          []string   `json:"regex_exclusions,omitempty"`
	WildcardExclusions       []string   `json:"wildcard_exclusions,omitempty"`
	CSSSelectors             []string   `json:"css_selectors,omitempty"`
	CSSSelectorsForceExclude bool       `json:"css_selectors_force_exclude"`
	Auth                     *BasicAuth `json:"auth,omitempty"`
	UseAuthForAllDomains     bool       `json:"use_auth_for_all_domains"`
	MaxScansPerMinute        int        `json:"max_scans_per_minute,omitempty"`
}

// WithDefaults returns a copy of the config with a non-positive Concurrency
// or RequestTimeout replaced by its default. Boolean fields are left as they
// are. Depth of 0 keeps its "unlimited" meaning and is left untouched.
func (c ScanConfig) WithDefaults() ScanConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = int(DefaultRequestTimeout / time.Millisecond)
	}
	return c
}

// RequestTimeoutDuration returns the configured timeout as a time.Duration.
func (c ScanConfig) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// ExternalTimeout returns the effective timeout for off-site fetches: the
// lesser of the configured timeout and a 15s off-site cap.
func (c ScanConfig) ExternalTimeout() time.Duration {
	if t := c.RequestTimeoutDuration(); t < DefaultExternalTimeout {
		return t
	}
	return DefaultExternalTimeout
}

// Validate checks regexes and CSS selectors for syntax errors, and
// Concurrency and MaxScansPerMinute for negative values, and returns
// human-readable warnings. Wildcard patterns are not checked. It never returns an error:
// bad patterns are a config-intake warning, not a fatal condition, and the
// engine independently tolerates them at match time.
func (c ScanConfig) Validate() []string {
	var warnings []string

	for _, pattern := range c.RegexExclusions {
		if _, err := regexp.Compile(pattern); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid regex exclusion %q: %v", pattern, err))
		}
	}
	for _, selector := range c.CSSSelectors {
		if err := validateCSSSelector(selector); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid css selector %q: %v", selector, err))
		}
	}
	if c.Concurrency < 0 {
		warnings = append(warnings, "concurrency must not be negative, defaulting")
	}
	if c.MaxScansPerMinute < 0 {
		warnings = append(warnings, "max_scans_per_minute must not be negative, ignoring")
	}
	return warnings
}

// ToJSON serializes the config for storage as a JSON-as-text column.
func (c ScanConfig) ToJSON() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal scan config: %w", err)
	}
	return string(b), nil
}

// ScanConfigFromJSON deserializes a config previously written by ToJSON.
func ScanConfigFromJSON(data string) (ScanConfig, error) {
	var c ScanConfig
	if data == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return c, fmt.Errorf("unmarshal scan config: %w", err)
	}
	return c, nil
}
