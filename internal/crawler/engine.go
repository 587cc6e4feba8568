package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// StopReason tells the Worker Loop why Scan returned, distinguishing a
// normal finish from a pause or a stop.
type StopReason int

const (
	ReasonCompleted StopReason = iota
	ReasonPaused
	ReasonStopped
)

// Engine is the Crawl Engine: a bounded-concurrency, resumable, cancelable
// URL processor. One Engine instance serves exactly one scan attempt; a
// fresh Engine is constructed on resume, seeded from the prior run's
// EngineSnapshot.
type Engine struct {
	seed       *url.URL
	config     models.ScanConfig
	filter     *Filter
	extractor  *Extractor
	normalizer *Normalizer
	fetcher    interfaces.Fetcher
	limiter    *rate.Limiter
	callbacks  interfaces.EngineCallbacks
	logger     arbor.ILogger

	mu          sync.Mutex
	results     map[string]*models.ScanResult
	visited     map[string]bool
	queued      map[string]bool
	pending     map[string]int
	aborted     map[string]int
	brokenCount int
	processed   int

	queue      *engineQueue
	pendingOps int64

	pauseCtx    context.Context
	pauseCancel context.CancelFunc
	stopCtx     context.Context
	stopCancel  context.CancelFunc
	mergedCtx   context.Context
}

// NewEngine constructs a fresh Engine for a new scan of seedURL.
func NewEngine(seedURL string, config models.ScanConfig, fetcher interfaces.Fetcher, callbacks interfaces.EngineCallbacks, logger arbor.ILogger) (*Engine, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}

	config = config.WithDefaults()

	e := &Engine{
		seed:       seed,
		config:     config,
		filter:     NewFilter(seed, PolicyFromConfig(config), logger),
		extractor:  NewExtractor(logger),
		normalizer: NewNormalizer(),
		fetcher:    fetcher,
		limiter:    newGlobalLimiter(config.MaxScansPerMinute),
		callbacks:  callbacks,
		logger:     logger,
		results:    make(map[string]*models.ScanResult),
		visited:    make(map[string]bool),
		queued:     make(map[string]bool),
		pending:    make(map[string]int),
		aborted:    make(map[string]int),
		queue:      newEngineQueue(),
	}

	return e, nil
}

// ResumeFrom seeds the engine's catalog and work queue from a prior run's
// snapshot, restoring visited URLs, the result catalog, and scheduling
// aborted URLs strictly before queued ones.
func (e *Engine) ResumeFrom(snapshot *models.EngineSnapshot) {
	if snapshot == nil {
		return
	}

	e.mu.Lock()
	for _, url := range snapshot.VisitedLinks {
		e.visited[url] = true
	}
	for _, result := range snapshot.Results {
		e.results[result.URL] = result
		if result.IsBrokenLike() {
			e.brokenCount++
		}
	}
	e.mu.Unlock()

	for _, entry := range snapshot.Aborted {
		e.scheduleIfNeeded(entry.URL, entry.Depth)
	}
	for _, entry := range snapshot.Queue {
		e.scheduleIfNeeded(entry.URL, entry.Depth)
	}
}

// Pause requests a soft-cancel: in-flight fetches abort and are re-queued
// for resume, but Scan does not return until they unwind. Safe to call from
// any goroutine, including from within an OnProgress callback.
func (e *Engine) Pause() {
	if e.pauseCancel != nil {
		e.pauseCancel()
	}
}

// Stop requests a hard-cancel: in-flight fetches abort and are dropped, not
// re-queued. Safe to call from any goroutine.
func (e *Engine) Stop() {
	if e.stopCancel != nil {
		e.stopCancel()
	}
}

// Scan runs the engine to completion, to a pause, or to a stop, whichever
// comes first, and returns the resulting EngineSnapshot along with the
// reason it returned.
func (e *Engine) Scan(ctx context.Context) (*models.EngineSnapshot, StopReason, error) {
	e.pauseCtx, e.pauseCancel = context.WithCancel(context.Background())
	e.stopCtx, e.stopCancel = context.WithCancel(context.Background())
	defer e.pauseCancel()
	defer e.stopCancel()

	merged, mergedCancel := context.WithCancel(ctx)
	defer mergedCancel()
	e.mergedCtx = merged
	go func() {
		select {
		case <-e.pauseCtx.Done():
		case <-e.stopCtx.Done():
		case <-ctx.Done():
		}
		mergedCancel()
	}()

	e.mu.Lock()
	alreadySeeded := len(e.pending) > 0 || len(e.aborted) > 0 || len(e.visited) > 0
	e.mu.Unlock()

	if !alreadySeeded {
		e.scheduleIfNeeded(e.normalizer.Normalize(e.seed.String()), 0)
	}

	if e.callbacks.OnStart != nil {
		e.callbacks.OnStart(e.estimateURLCount())
	}

	concurrency := e.config.Concurrency
	if concurrency < 1 {
		concurrency = models.DefaultConcurrency
	}

	var workers sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				item, ok := e.queue.pop(merged)
				if !ok {
					return
				}
				e.handleItem(merged, item)
			}
		}()
	}
	workers.Wait()

	reason := ReasonCompleted
	switch {
	case e.stopCtx.Err() != nil:
		reason = ReasonStopped
	case e.pauseCtx.Err() != nil:
		reason = ReasonPaused
	}

	snapshot := e.buildSnapshot()

	if reason == ReasonCompleted && e.callbacks.OnComplete != nil {
		e.callbacks.OnComplete(e.resultsCopy())
	}

	return snapshot, reason, nil
}

func (e *Engine) estimateURLCount() int {
	// Crude advisory estimate only; tests must not assert on it.
	depth := e.config.Depth
	if depth <= 0 {
		depth = 3
	}
	estimate := 10
	for i := 0; i < depth && estimate < 10000; i++ {
		estimate *= 5
	}
	return estimate
}

// scheduleIfNeeded queues a discovered URL for processing. A URL already
// visited is still queued rather than dropped here: handleItem re-runs it
// through Filter.Decide with alreadyVisited set, which is what lets a prior
// external classification downgrade to skipped once the link turns out to
// also be reachable in-scope. Only a URL already in flight (queued or
// pending) is deduplicated.
func (e *Engine) scheduleIfNeeded(rawURL string, depth int) {
	normalized := e.normalizer.Normalize(rawURL)

	e.mu.Lock()
	if e.queued[normalized] {
		e.mu.Unlock()
		return
	}
	e.queued[normalized] = true
	e.pending[normalized] = depth
	e.mu.Unlock()

	atomic.AddInt64(&e.pendingOps, 1)
	e.queue.push(workItem{URL: normalized, Depth: depth})
}

func (e *Engine) completeItem() {
	if atomic.AddInt64(&e.pendingOps, -1) == 0 {
		e.queue.close()
	}
}

func (e *Engine) handleItem(ctx context.Context, item workItem) {
	defer e.completeItem()

	e.mu.Lock()
	delete(e.pending, item.URL)
	alreadyVisited := e.visited[item.URL]
	var priorStatus models.ResultStatus
	if r, ok := e.results[item.URL]; ok {
		priorStatus = r.Status
	}
	e.mu.Unlock()

	candidate, err := url.Parse(item.URL)
	if err != nil {
		e.logger.Warn().Err(err).Str("url", item.URL).Msg("Failed to parse queued URL")
		return
	}

	decision := e.filter.Decide(candidate, item.Depth, alreadyVisited, priorStatus)

	switch decision.Verdict {
	case VerdictSkip:
		e.markVisited(item.URL)
		e.mutateResult(item.URL, func(r *models.ScanResult) {
			r.Status = models.StatusSkipped
			r.ErrorMessage = decision.Reason
		})
		e.fireProgress(item.URL)
		return
	case VerdictExternal:
		e.markVisited(item.URL)
		e.mutateResult(item.URL, func(r *models.ScanResult) {
			r.Status = models.StatusExternal
		})
		e.fireProgress(item.URL)
		return
	}

	e.markVisited(item.URL)

	if err := waitForToken(ctx, e.limiter); err != nil {
		e.handleAbort(item)
		return
	}

	isExternal := !SameSite(e.seed, candidate)
	timeout := e.config.RequestTimeoutDuration()
	if isExternal {
		timeout = e.config.ExternalTimeout()
	}

	var auth *models.BasicAuth
	sendAuth := e.config.Auth != nil && (e.config.UseAuthForAllDomains || !isExternal)
	if sendAuth {
		auth = e.config.Auth
	}

	result, usedAuth, fetchErr := e.fetcher.Fetch(ctx, item.URL, timeout, auth)
	if fetchErr != nil {
		if e.stopCtx.Err() != nil {
			return
		}
		if e.pauseCtx.Err() != nil {
			e.handleAbort(item)
			return
		}

		var timeoutErr *TimeoutError
		if errors.As(fetchErr, &timeoutErr) {
			e.mutateResult(item.URL, func(r *models.ScanResult) {
				r.Status = models.StatusBroken
				r.ErrorMessage = timeoutErr.Error()
				r.UsedAuth = usedAuth
			})
		} else {
			e.mutateResult(item.URL, func(r *models.ScanResult) {
				r.Status = models.StatusError
				r.ErrorMessage = fetchErr.Error()
				r.UsedAuth = usedAuth
			})
		}
		e.fireProgress(item.URL)
		return
	}

	status := models.StatusOK
	if result.StatusCode >= 400 {
		status = models.StatusBroken
	}
	e.mutateResult(item.URL, func(r *models.ScanResult) {
		r.Status = status
		r.StatusCode = result.StatusCode
		r.ContentType = result.ContentType
		r.UsedAuth = usedAuth
	})

	if status == models.StatusOK &&
		strings.Contains(strings.ToLower(result.ContentType), "text/html") &&
		(e.config.Depth == 0 || item.Depth < e.config.Depth) {
		e.processLinks(item, result.Body)
	}

	e.fireProgress(item.URL)
}

func (e *Engine) processLinks(item workItem, body []byte) {
	extracted, err := e.extractor.Extract(item.URL, body, e.config.CSSSelectors)
	if err != nil {
		e.logger.Warn().Err(err).Str("url", item.URL).Msg("Failed to extract links")
		return
	}

	for _, skipped := range extracted.SelectorSkipped {
		normalized := e.normalizer.Normalize(skipped)
		e.mutateResult(normalized, func(r *models.ScanResult) {
			if !r.Status.IsDefinitive() {
				r.Status = models.StatusSkipped
				r.ErrorMessage = "Excluded by CSS selector"
			}
		})
		if e.config.CSSSelectorsForceExclude {
			e.markVisited(normalized)
		}
	}

	for _, link := range extracted.Links {
		normalized := e.normalizer.Normalize(link.URL)
		e.mutateResult(normalized, func(r *models.ScanResult) {
			r.AddFoundOn(item.URL)
		})
		e.scheduleIfNeeded(normalized, item.Depth+1)
	}
}

func (e *Engine) handleAbort(item workItem) {
	e.mu.Lock()
	delete(e.visited, item.URL)
	e.aborted[item.URL] = item.Depth
	e.mu.Unlock()
}

func (e *Engine) markVisited(url string) {
	e.mu.Lock()
	e.visited[url] = true
	delete(e.queued, url)
	e.mu.Unlock()
}

func (e *Engine) getOrCreateResultLocked(url string) *models.ScanResult {
	r, ok := e.results[url]
	if !ok {
		r = models.NewScanResult(url)
		e.results[url] = r
	}
	return r
}

// mutateResult applies mutate to the catalog entry for url (creating it if
// absent) and maintains brokenCount incrementally, and never lets a
// definitive status regress to skipped/external.
func (e *Engine) mutateResult(url string, mutate func(r *models.ScanResult)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.getOrCreateResultLocked(url)
	wasBroken := r.IsBrokenLike()
	wasDefinitive := r.Status.IsDefinitive()

	before := *r
	mutate(r)

	if wasDefinitive && !r.Status.IsDefinitive() {
		// Invariant #2: never regress a definitive classification.
		*r = before
		return
	}

	isBroken := r.IsBrokenLike()
	if isBroken && !wasBroken {
		e.brokenCount++
	} else if !isBroken && wasBroken {
		e.brokenCount--
	}
}

func (e *Engine) fireProgress(currentURL string) {
	e.mu.Lock()
	e.processed++
	processed := e.processed
	broken := e.brokenCount
	total := len(e.results)
	e.mu.Unlock()

	if e.callbacks.OnProgress != nil {
		e.callbacks.OnProgress(processed, currentURL, broken, total)
	}
}

func (e *Engine) resultsCopy() map[string]*models.ScanResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*models.ScanResult, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

func (e *Engine) buildSnapshot() *models.EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := models.NewEngineSnapshot()
	for url := range e.visited {
		snapshot.MarkVisited(url)
	}
	for _, r := range e.results {
		snapshot.PutResult(r)
	}
	for url, depth := range e.aborted {
		snapshot.Aborted = append(snapshot.Aborted, models.QueueEntry{URL: url, Depth: depth})
	}
	for _, item := range e.queue.drain() {
		snapshot.Queue = append(snapshot.Queue, models.QueueEntry{URL: item.URL, Depth: item.Depth})
	}
	for url, depth := range e.pending {
		found := false
		for _, q := range snapshot.Queue {
			if q.URL == url {
				found = true
				break
			}
		}
		if !found {
			snapshot.Queue = append(snapshot.Queue, models.QueueEntry{URL: url, Depth: depth})
		}
	}

	return snapshot
}

// BrokenCount returns the engine's incrementally maintained broken-result
// count.
func (e *Engine) BrokenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.brokenCount
}
