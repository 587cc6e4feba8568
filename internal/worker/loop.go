// Package worker implements the Worker Loop: the background process that
// dequeues a job at a time, drives a Crawl Engine through it, and reports
// progress and lifecycle transitions back to the Job Service.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/common"
	"github.com/linkcheckerpro/linkchecker/internal/crawler"
	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/jobs"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// statusPollInterval bounds how often the running scan checks back with the
// Job Service for an external pause/stop request, roughly once per second.
const statusPollInterval = time.Second

// progressWriteInterval throttles persisted progress writes to roughly once
// per second.
const progressWriteInterval = time.Second

// Loop is the Worker Loop: a single goroutine that repeatedly claims the
// oldest queued job and runs it to completion, pause, or stop.
type Loop struct {
	jobsSvc    *jobs.Service
	workerCfg  common.WorkerConfig
	crawlerCfg common.CrawlerConfig
	fetcher    interfaces.Fetcher
	logger     arbor.ILogger

	pollInterval time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Worker Loop. fetcher is injected so tests can substitute
// a stub that never hits the network.
func New(jobsSvc *jobs.Service, workerCfg common.WorkerConfig, crawlerCfg common.CrawlerConfig, fetcher interfaces.Fetcher, logger arbor.ILogger) *Loop {
	pollInterval, err := time.ParseDuration(workerCfg.PollInterval)
	if err != nil || pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Loop{
		jobsSvc:      jobsSvc,
		workerCfg:    workerCfg,
		crawlerCfg:   crawlerCfg,
		fetcher:      fetcher,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

// Start runs the startup orphan cleanup and then launches the poll loop in
// a background goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	if l.workerCfg.OrphanCleanupOnStart {
		if count, err := l.jobsSvc.RecoverOrphans(ctx); err != nil {
			l.logger.Error().Err(err).Msg("Orphan cleanup failed")
		} else if count > 0 {
			l.logger.Info().Int("count", count).Msg("Orphan cleanup recovered stale jobs")
		}
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true
	l.wg.Add(1)
	common.SafeGo(l.logger, "worker.Loop.run", l.run)
}

// Stop cancels the poll loop and waits for any in-flight job to return
// control. It does not itself pause or stop the job's Engine — an in-flight
// scan runs on its own background context and only unwinds through a
// natural completion or an explicit pause/stop observed via its own status
// poll, so Stop can block until that happens; callers that want a bounded
// shutdown should stop all jobs via the Job Service first.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.processNextJob()
		}
	}
}

// processNextJob claims and fully drives at most one job. It returns as
// soon as the claimed job reaches a pause, a stop, or a terminal status.
func (l *Loop) processNextJob() {
	job, err := l.jobsSvc.GetNextPendingJob(l.ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to poll for next pending job")
		return
	}
	if job == nil {
		return
	}

	l.logger.Info().Str("job_id", job.ID).Str("url", job.ScanURL).Msg("Claiming job")

	// The claimed job runs on its own background context, decoupled from the
	// poll loop's lifecycle context: once claimed, a job only ever stops via
	// a natural completion or an explicit pause/stop observed by its own
	// status poll (run.onProgress), never because the Worker Loop itself was
	// asked to shut down.
	runCtx := context.Background()

	config := l.applyCrawlerDefaults(job.Config)

	if err := l.jobsSvc.UpdateJobStatus(runCtx, job.ID, models.JobRunning, nil); err != nil {
		l.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to transition job to running")
		return
	}

	snapshot, err := l.jobsSvc.GetJobState(runCtx, job.ID)
	if err != nil {
		l.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to load job state")
		return
	}
	resuming := len(snapshot.VisitedLinks) > 0 || len(snapshot.Queue) > 0 || len(snapshot.Aborted) > 0

	run := newJobRun(l, job.ID, runCtx)

	engine, err := crawler.NewEngine(job.ScanURL, config, l.fetcher, run.callbacks(), l.logger)
	if err != nil {
		l.fail(runCtx, job.ID, err)
		return
	}
	run.bindEngine(engine)
	if resuming {
		engine.ResumeFrom(snapshot)
		l.logger.Info().Str("job_id", job.ID).Msg("Resuming job from persisted state")
	}

	result, reason, err := engine.Scan(runCtx)
	if err != nil {
		l.fail(runCtx, job.ID, err)
		return
	}

	l.finish(runCtx, job.ID, result, reason, run.resultsSnapshot())
}

// applyCrawlerDefaults fills a job's config with the worker's configured
// defaults wherever the job submitted a zero value.
func (l *Loop) applyCrawlerDefaults(config models.ScanConfig) models.ScanConfig {
	if config.Concurrency <= 0 && l.crawlerCfg.Concurrency > 0 {
		config.Concurrency = l.crawlerCfg.Concurrency
	}
	if config.RequestTimeout <= 0 && l.crawlerCfg.RequestTimeoutMS > 0 {
		config.RequestTimeout = l.crawlerCfg.RequestTimeoutMS
	}
	if config.MaxScansPerMinute <= 0 && l.crawlerCfg.MaxScansPerMinute > 0 {
		config.MaxScansPerMinute = l.crawlerCfg.MaxScansPerMinute
	}
	return config.WithDefaults()
}

func (l *Loop) fail(ctx context.Context, jobID string, err error) {
	if setErr := l.jobsSvc.SetJobError(ctx, jobID, err.Error()); setErr != nil {
		l.logger.Error().Err(setErr).Str("job_id", jobID).Msg("Failed to record job failure")
	}
}

// finish applies the Worker Loop's completion decision: persist state and
// stop short on a pause/stop, or write the terminal completed transition.
func (l *Loop) finish(ctx context.Context, jobID string, snapshot *models.EngineSnapshot, reason crawler.StopReason, catalog map[string]*models.ScanResult) {
	if reason != crawler.ReasonCompleted {
		if err := l.jobsSvc.UpdateJobState(ctx, jobID, snapshot); err != nil {
			l.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to persist engine snapshot")
		}
	}

	switch reason {
	case crawler.ReasonPaused:
		if err := l.jobsSvc.UpdateJobStatus(ctx, jobID, models.JobPaused, nil); err != nil {
			l.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to transition job to paused")
		}
	case crawler.ReasonStopped:
		if err := l.jobsSvc.UpdateJobStatus(ctx, jobID, models.JobStopped, nil); err != nil {
			l.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to transition job to stopped")
		}
	default:
		if err := l.jobsSvc.UpdateJobProgress(ctx, jobID, progressFromResults(catalog)); err != nil {
			l.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to write final progress")
		}
		if err := l.jobsSvc.UpdateJobStatus(ctx, jobID, models.JobComplete, catalog); err != nil {
			l.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to transition job to completed")
		}
	}
}

func progressFromResults(catalog map[string]*models.ScanResult) models.Progress {
	broken := 0
	for _, r := range catalog {
		if r.IsBrokenLike() {
			broken++
		}
	}
	return models.Progress{
		PagesScanned:   len(catalog),
		LinksChecked:   len(catalog),
		BrokenCount:    broken,
		EstimatedTotal: len(catalog),
	}
}
