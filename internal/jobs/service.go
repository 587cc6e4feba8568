// Package jobs implements the Job Service: the persistence-backed lifecycle
// API the HTTP layer and Worker Loop share to create, inspect, and drive
// scan jobs through their state machine.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// ErrInvalidTransition is returned when a caller requests a status change
// the job's current status does not permit (models.JobStatus.CanTransition).
type ErrInvalidTransition struct {
	From, To models.JobStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition job from %q to %q", e.From, e.To)
}

// Service implements the Job Service operations against a JobStore and
// HistoryStore. It never runs an Engine itself; that is the Worker Loop's
// job.
type Service struct {
	jobs    interfaces.JobStore
	history interfaces.HistoryStore
	logger  arbor.ILogger
}

// New constructs a Job Service.
func New(jobs interfaces.JobStore, history interfaces.HistoryStore, logger arbor.ILogger) *Service {
	return &Service{jobs: jobs, history: history, logger: logger}
}

// CreateJob allocates a new job id and persists a job in the queued state
// for scanURL. Config validation warnings are logged, never fatal.
func (s *Service) CreateJob(ctx context.Context, scanURL string, config models.ScanConfig) (*models.ScanJob, error) {
	for _, warning := range config.Validate() {
		s.logger.Warn().Str("url", scanURL).Str("warning", warning).Msg("Scan config warning")
	}

	id := uuid.New().String()
	job := models.NewScanJob(id, scanURL, config)
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.Info().Str("job_id", id).Str("url", scanURL).Msg("Job created")
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*models.ScanJob, error) {
	return s.jobs.GetJob(ctx, id)
}

// GetJobStatus is a thin convenience wrapper used by the Worker Loop's
// external-cancellation poll.
func (s *Service) GetJobStatus(ctx context.Context, id string) (models.JobStatus, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// maxJobsListed bounds getJobs to the 50 most recent jobs.
const maxJobsListed = 50

// GetJobs returns the 50 most recently created jobs, newest first.
func (s *Service) GetJobs(ctx context.Context) ([]*models.ScanJob, error) {
	all, err := s.jobs.GetJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > maxJobsListed {
		all = all[:maxJobsListed]
	}
	return all, nil
}

// GetNextPendingJob returns the oldest queued job, or nil if none is
// waiting. It does not itself transition the job's status; the caller
// (Worker Loop) does that once it has committed to running it.
func (s *Service) GetNextPendingJob(ctx context.Context) (*models.ScanJob, error) {
	return s.jobs.GetNextPendingJob(ctx)
}

// UpdateJobStatus transitions job id to status, validating the edge against
// models.JobStatus.CanTransition, stamping timestamps, and — on a
// transition into completed — recomputing broken/total counts from the
// supplied catalog and persisting a History record.
func (s *Service) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, catalog map[string]*models.ScanResult) error {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if !job.Status.CanTransition(status) {
		return &ErrInvalidTransition{From: job.Status, To: status}
	}

	if status == models.JobComplete && catalog != nil {
		progress := progressFromCatalog(catalog)
		if err := s.jobs.UpdateJobProgress(ctx, id, progress); err != nil {
			return fmt.Errorf("update job progress before completion: %w", err)
		}
		job.ApplyProgress(progress)
	}

	if err := s.jobs.UpdateJobStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	job.Status = status

	// History is persisted only on a clean completion, not on stop/failure.
	if status == models.JobComplete {
		if job.FinishedAt == nil {
			now := time.Now()
			job.FinishedAt = &now
		}
		entry := models.NewHistoryEntry(historyID(job), job, catalog)
		if err := s.history.SaveEntry(ctx, entry); err != nil {
			s.logger.Error().Err(err).Str("job_id", id).Msg("Failed to save history entry")
		}
	}

	s.logger.Info().Str("job_id", id).Str("status", string(status)).Msg("Job status updated")
	return nil
}

// UpdateJobProgress merges progress counters into job id without touching
// its status.
func (s *Service) UpdateJobProgress(ctx context.Context, id string, progress models.Progress) error {
	return s.jobs.UpdateJobProgress(ctx, id, progress)
}

// UpdateJobState persists job id's serialized Engine Snapshot.
func (s *Service) UpdateJobState(ctx context.Context, id string, snapshot *models.EngineSnapshot) error {
	data, err := snapshot.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal engine snapshot: %w", err)
	}
	return s.jobs.UpdateJobState(ctx, id, data)
}

// GetJobState retrieves and hydrates job id's persisted Engine Snapshot, or
// a fresh empty snapshot if none has been saved yet.
func (s *Service) GetJobState(ctx context.Context, id string) (*models.EngineSnapshot, error) {
	data, err := s.jobs.GetJobState(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.EngineSnapshotFromJSON(data)
}

// PauseJob requests that a running job pause, setting status to pausing; the
// Worker Loop observes this on its next status poll and actually pauses the
// Engine.
func (s *Service) PauseJob(ctx context.Context, id string) error {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobRunning {
		return &ErrInvalidTransition{From: job.Status, To: models.JobPausing}
	}
	return s.jobs.UpdateJobStatus(ctx, id, models.JobPausing)
}

// ResumeJob requeues a paused job so the Worker Loop's poll cycle picks it
// back up, resuming from its persisted Engine Snapshot.
func (s *Service) ResumeJob(ctx context.Context, id string) error {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobPaused {
		return &ErrInvalidTransition{From: job.Status, To: models.JobQueued}
	}
	return s.jobs.UpdateJobStatus(ctx, id, models.JobQueued)
}

// StopJob requests that job id stop. A paused or queued job is stopped
// immediately since no worker currently owns it; a running or pausing job is
// set to stopping and the Worker Loop completes the transition once its
// in-flight fetches unwind.
func (s *Service) StopJob(ctx context.Context, id string) error {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.JobPaused, models.JobQueued:
		return s.jobs.UpdateJobStatus(ctx, id, models.JobStopped)
	case models.JobRunning, models.JobPausing:
		return s.jobs.UpdateJobStatus(ctx, id, models.JobStopping)
	case models.JobStopping, models.JobStopped:
		return nil // already stopping or stopped
	default:
		return nil // already terminal (completed/failed); nothing to stop
	}
}

// StopAllJobs requests a stop for every job not already in a terminal
// status.
func (s *Service) StopAllJobs(ctx context.Context) error {
	all, err := s.jobs.GetJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range all {
		if job.Status.Terminal() {
			continue
		}
		if err := s.StopJob(ctx, job.ID); err != nil {
			return fmt.Errorf("stop job %s: %w", job.ID, err)
		}
	}
	return nil
}

// SetJobError records a terminal failure message and marks job id failed
// directly, bypassing the usual transition validation since an engine-level
// error can strike from any in-flight status.
func (s *Service) SetJobError(ctx context.Context, id string, errMsg string) error {
	if err := s.jobs.SetJobError(ctx, id, errMsg); err != nil {
		return fmt.Errorf("set job error: %w", err)
	}
	s.logger.Error().Str("job_id", id).Str("error", errMsg).Msg("Job failed")
	return nil
}

// DeleteJob removes job id's record entirely.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	return s.jobs.DeleteJob(ctx, id)
}

// RecoverOrphans transitions every job left running, pausing, or stopping by
// an uncleanly terminated worker process back to queued, so the Worker
// Loop's next poll cycle resumes it from its last saved state.
func (s *Service) RecoverOrphans(ctx context.Context) (int, error) {
	count, err := s.jobs.MarkOrphanedJobsQueued(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Warn().Int("count", count).Msg("Recovered orphaned jobs back to queued")
	}
	return count, nil
}

func progressFromCatalog(catalog map[string]*models.ScanResult) models.Progress {
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
