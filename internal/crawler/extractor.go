package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/ternarybob/arbor"
)

// maxContextLength bounds the surrounding-HTML snippet captured per link
// to a small, fixed size.
const maxContextLength = 300

// ExtractedLink is one anchor discovered during parsing.
type ExtractedLink struct {
	URL     string
	Context string
}

// Extractor parses HTML and discovers anchors, honoring CSS-selector
// exclusion.
type Extractor struct {
	logger arbor.ILogger
}

// NewExtractor creates a Link Extractor.
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

// ExtractResult is the Link Extractor's output: the links worth scheduling,
// plus the links that were excluded by a CSS selector (so the engine can
// record them with a skip reason and, if cssSelectorsForceExclude, mark
// them visited).
type ExtractResult struct {
	Links          []ExtractedLink
	SelectorSkipped []string
}

// Extract parses body (fetched from pageURL) and returns discovered links,
// excluding any inside an element matched by selectors. Invalid selectors
// are logged and ignored.
func (e *Extractor) Extract(pageURL string, body []byte, selectors []string) (*ExtractResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html for link extraction: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		e.logger.Warn().Err(err).Str("page_url", pageURL).Msg("Failed to parse page URL for link resolution")
		base = nil
	}

	excluded := make(map[string]bool)
	result := &ExtractResult{}

	for _, selector := range selectors {
		sel, err := cascadia.Compile(selector)
		if err != nil {
			e.logger.Warn().Err(err).Str("selector", selector).Msg("Failed to compile CSS selector")
			continue
		}

		doc.FindMatcher(sel).Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || href == "" {
				return
			}
			resolved := ResolveURL(href, base)
			if resolved != "" {
				excluded[resolved] = true
			}
		})
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || shouldSkipHref(href) {
			return
		}

		resolved := ResolveURL(href, base)
		if resolved == "" {
			e.logger.Debug().Str("href", href).Msg("Failed to resolve link")
			return
		}

		if excluded[resolved] {
			return
		}
		if seen[resolved] {
			return
		}
		seen[resolved] = true

		result.Links = append(result.Links, ExtractedLink{
			URL:     resolved,
			Context: truncate(contextOf(s), maxContextLength),
		})
	})

	for u := range excluded {
		result.SelectorSkipped = append(result.SelectorSkipped, u)
	}

	return result, nil
}

func contextOf(s *goquery.Selection) string {
	if parent := s.Parent(); parent.Length() > 0 {
		if html, err := goquery.OuterHtml(parent); err == nil {
			return html
		}
	}
	if html, err := goquery.OuterHtml(s); err == nil {
		return html
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// shouldSkipHref reports hrefs that must never be scheduled: anything blank,
// and anything carrying an explicit non-HTTP scheme (javascript:, mailto:,
// tel:, data:, ftp:, ...). A fragment-only href ("#section") or any other
// schemeless href is left for ResolveURL, which resolves it against the
// page URL like any relative link.
func shouldSkipHref(href string) bool {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" {
		return true
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return true
	}
	return parsed.Scheme != "" && !isHTTPScheme(parsed.Scheme)
}
