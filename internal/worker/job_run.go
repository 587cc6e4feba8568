package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// jobRun tracks the mutable, per-scan state the Engine's callbacks close
// over: the last time progress was written and the external status was
// polled, the running result catalog, and an engine handle so the status
// poll can request a pause or stop.
type jobRun struct {
	loop  *Loop
	jobID string
	ctx   context.Context

	mu             sync.Mutex
	lastProgressAt time.Time
	lastPollAt     time.Time
	stopRequested  bool
	catalog        map[string]*models.ScanResult

	engineMu sync.Mutex
	engine   interface {
		Pause()
		Stop()
	}
}

func newJobRun(loop *Loop, jobID string, ctx context.Context) *jobRun {
	return &jobRun{loop: loop, jobID: jobID, ctx: ctx, catalog: make(map[string]*models.ScanResult)}
}

// bindEngine lets the status poll reach the Engine once it exists. Engine
// construction happens after jobRun so this is set right after NewEngine
// returns.
func (r *jobRun) bindEngine(engine interface {
	Pause()
	Stop()
}) {
	r.engineMu.Lock()
	r.engine = engine
	r.engineMu.Unlock()
}

func (r *jobRun) resultsSnapshot() map[string]*models.ScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*models.ScanResult, len(r.catalog))
	for k, v := range r.catalog {
		out[k] = v
	}
	return out
}

// callbacks builds the EngineCallbacks this run hands to the Engine. It is
// returned ahead of engine construction, so bindEngine must be called
// immediately after crawler.NewEngine succeeds.
func (r *jobRun) callbacks() interfaces.EngineCallbacks {
	return interfaces.EngineCallbacks{
		OnStart: func(estimatedURLs int) {
			r.loop.logger.Info().Str("job_id", r.jobID).Int("estimated_urls", estimatedURLs).Msg("Scan started")
		},
		OnProgress: r.onProgress,
		OnError: func(err error) {
			r.loop.logger.Error().Err(err).Str("job_id", r.jobID).Msg("Engine reported an error")
		},
		OnComplete: func(results map[string]*models.ScanResult) {
			r.mu.Lock()
			r.catalog = results
			r.mu.Unlock()
		},
	}
}

// onProgress implements two throttled concerns on the same cadence: writing
// persisted progress roughly once a second, and separately polling
// getJobStatus to detect an external pause/stop request. A stopRequested
// latch keeps either from firing twice.
func (r *jobRun) onProgress(processed int, currentURL string, brokenCount int, totalEntries int) {
	now := time.Now()

	r.mu.Lock()
	writeProgress := now.Sub(r.lastProgressAt) >= progressWriteInterval
	if writeProgress {
		r.lastProgressAt = now
	}
	pollStatus := now.Sub(r.lastPollAt) >= statusPollInterval
	if pollStatus {
		r.lastPollAt = now
	}
	alreadyRequested := r.stopRequested
	r.mu.Unlock()

	if writeProgress {
		progress := models.Progress{
			PagesScanned:   processed,
			LinksChecked:   processed,
			BrokenCount:    brokenCount,
			EstimatedTotal: totalEntries,
		}
		if err := r.loop.jobsSvc.UpdateJobProgress(r.ctx, r.jobID, progress); err != nil {
			r.loop.logger.Warn().Err(err).Str("job_id", r.jobID).Msg("Failed to write progress")
		}
	}

	if !pollStatus || alreadyRequested {
		return
	}

	status, err := r.loop.jobsSvc.GetJobStatus(r.ctx, r.jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			// The job row disappeared out from under a running scan (deleted
			// mid-crawl). There is nothing left to pause or resume into, so
			// stop the engine the same way an explicit stop request would.
			r.stopEngine()
			return
		}
		r.loop.logger.Warn().Err(err).Str("job_id", r.jobID).Msg("Failed to poll job status")
		return
	}

	switch status {
	case models.JobPausing:
		r.latchStop()
		r.engineMu.Lock()
		if r.engine != nil {
			r.engine.Pause()
		}
		r.engineMu.Unlock()
	case models.JobStopping:
		r.stopEngine()
	}
}

func (r *jobRun) stopEngine() {
	r.latchStop()
	r.engineMu.Lock()
	if r.engine != nil {
		r.engine.Stop()
	}
	r.engineMu.Unlock()
}

func (r *jobRun) latchStop() {
	r.mu.Lock()
	r.stopRequested = true
	r.mu.Unlock()
}
