package models

import "testing"

func TestScanConfigWithDefaults(t *testing.T) {
	c := ScanConfig{}.WithDefaults()

	if c.Concurrency != DefaultConcurrency {
		t.Errorf("Expected Concurrency=%d, got %d", DefaultConcurrency, c.Concurrency)
	}
	if c.RequestTimeoutDuration() != DefaultRequestTimeout {
		t.Errorf("Expected RequestTimeout=%v, got %v", DefaultRequestTimeout, c.RequestTimeoutDuration())
	}
}

func TestScanConfigDepthZeroMeansUnlimited(t *testing.T) {
	c := ScanConfig{Depth: 0}.WithDefaults()
	if c.Depth != 0 {
		t.Errorf("Expected Depth to stay 0 (unlimited), got %d", c.Depth)
	}
}

func TestScanConfigExternalTimeoutCapped(t *testing.T) {
	c := ScanConfig{RequestTimeout: 60000}.WithDefaults()
	if c.ExternalTimeout() != DefaultExternalTimeout {
		t.Errorf("Expected ExternalTimeout capped at %v, got %v", DefaultExternalTimeout, c.ExternalTimeout())
	}

	c2 := ScanConfig{RequestTimeout: 5000}.WithDefaults()
	if c2.ExternalTimeout() != c2.RequestTimeoutDuration() {
		t.Errorf("Expected ExternalTimeout to use the shorter configured timeout, got %v", c2.ExternalTimeout())
	}
}

func TestScanConfigValidateCatchesBadPatterns(t *testing.T) {
	c := ScanConfig{
		RegexExclusions: []string{"(unclosed"},
		CSSSelectors:    []string{":::bad"},
	}

	warnings := c.Validate()
	if len(warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d: %v", len(warnings), warnings)
	}
}

func TestScanConfigValidateAcceptsGoodPatterns(t *testing.T) {
	c := ScanConfig{
		RegexExclusions: []string{`.*\.pdf$`},
		CSSSelectors:    []string{"nav.sidebar a"},
	}

	if warnings := c.Validate(); len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
}

func TestScanConfigJSONRoundTrip(t *testing.T) {
	c := ScanConfig{
		Depth:               2,
		Concurrency:         5,
		SkipExternalDomains: true,
		Auth:                &BasicAuth{Username: "u", Password: "p"},
	}

	raw, err := c.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	parsed, err := ScanConfigFromJSON(raw)
	if err != nil {
		t.Fatalf("ScanConfigFromJSON failed: %v", err)
	}

	if parsed.Depth != c.Depth || parsed.Concurrency != c.Concurrency {
		t.Errorf("Expected round-tripped config to match, got %+v", parsed)
	}
	if parsed.Auth == nil || parsed.Auth.Username != "u" {
		t.Errorf("Expected Auth to round-trip, got %+v", parsed.Auth)
	}
}
