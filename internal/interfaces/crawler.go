package interfaces

import (
	"context"
	"time"

	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// Fetcher performs a single HTTP GET against a URL, honoring the supplied
// timeout and optional Basic-auth headers. The returned body is already
// drained and closed; Fetch never exposes a live response body to callers.
// usedAuth reports whether Basic-auth credentials were actually sent,
// regardless of outcome.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration, auth *models.BasicAuth) (result *FetchResult, usedAuth bool, err error)
}

// FetchResult is the outcome of a single Fetcher.Fetch call.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// EngineCallbacks are the hooks a Crawl Engine run fires, consumed by the
// Worker Loop.
type EngineCallbacks struct {
	// OnStart fires once, before the first fetch, with a crude advisory
	// estimate of how many URLs the scan will touch. Advisory only — never
	// assert on it.
	OnStart func(estimatedURLs int)

	// OnProgress fires after each fetch returns.
	OnProgress func(processed int, currentURL string, brokenCount int, totalEntries int)

	// OnError fires only on an unexpected engine-level failure; per-URL
	// failures are reported via result entries, never here.
	OnError func(err error)

	// OnComplete fires only when a scan finishes without a pause or stop.
	OnComplete func(results map[string]*models.ScanResult)
}
