package crawler

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

const userAgent = "LinkCheckerProBot/1.0"

// maxBodyBytes bounds how much of a response body is read into memory
// before it is handed to the Link Extractor.
const maxBodyBytes = 5 << 20 // 5 MiB

// HTTPFetcher performs HTTP GETs against discovered URLs. It owns a single
// shared http.Client whose redirect policy always follows,
// and whose actual deadline is applied per-call via context.WithTimeout so
// concurrent fetches never share a timer.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a Fetcher with keep-alive connection reuse across
// calls.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return nil // always follow redirects
			},
		},
	}
}

// TimeoutError distinguishes an aborted-by-timeout fetch from any other
// network error, so callers can tell a timeout apart from an application
// error.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %ds", int(e.Timeout.Seconds()))
}

// Fetch retrieves url with the given timeout, sending a Basic-auth header
// when auth is non-nil. ctx carries the engine's pause/stop cancel signals;
// Fetch aborts on the earlier of ctx cancellation or timeout elapsing.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, timeout time.Duration, auth *models.BasicAuth) (*interfaces.FetchResult, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Connection", "keep-alive")

	usedAuth := false
	if auth != nil {
		req.SetBasicAuth(auth.Username, auth.Password)
		usedAuth = true
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, usedAuth, &TimeoutError{Timeout: timeout}
		}
		return nil, usedAuth, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, usedAuth, &TimeoutError{Timeout: timeout}
		}
		return nil, usedAuth, fmt.Errorf("read response body: %w", err)
	}

	return &interfaces.FetchResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, usedAuth, nil
}

// basicAuthHeader is exposed for components (e.g. tests) that need the raw
// header value without issuing a request.
func basicAuthHeader(auth models.BasicAuth) string {
	creds := auth.Username + ":" + auth.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}
