package interfaces

import (
	"context"
	"errors"

	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// Sentinel errors returned by JobStore/HistoryStore implementations. Storage
// backends must translate their own not-found conditions (e.g. sql.ErrNoRows)
// into these before returning to callers, so engine and service code never
// depends on a particular backend's error types.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrHistoryNotFound = errors.New("history entry not found")
)

// JobStore is the persistence-capability seam for ScanJob lifecycle state.
// Exactly one concrete implementation (internal/storage/sqlite) exists today;
// the interface exists so a second backend could be dropped in without
// touching internal/jobs or internal/crawler.
type JobStore interface {
	// CreateJob persists a newly queued job.
	CreateJob(ctx context.Context, job *models.ScanJob) error

	// GetJob retrieves a job by ID. Returns ErrJobNotFound if no such job
	// exists.
	GetJob(ctx context.Context, id string) (*models.ScanJob, error)

	// GetJobs lists all known jobs, most recently created first.
	GetJobs(ctx context.Context) ([]*models.ScanJob, error)

	// GetNextPendingJob returns the oldest job still in the queued state, or
	// nil if none are pending. Used by the Worker Loop's poll cycle.
	GetNextPendingJob(ctx context.Context) (*models.ScanJob, error)

	// UpdateJobStatus transitions a job's status field. Callers are expected
	// to have already validated the transition via JobStatus.CanTransition.
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error

	// UpdateJobProgress merges progress counters into a job without
	// affecting its status.
	UpdateJobProgress(ctx context.Context, id string, progress models.Progress) error

	// UpdateJobState persists the job's serialized Engine Snapshot, enabling
	// pause/resume.
	UpdateJobState(ctx context.Context, id string, stateJSON string) error

	// GetJobState retrieves a job's serialized Engine Snapshot, or an empty
	// string if none has been saved yet.
	GetJobState(ctx context.Context, id string) (string, error)

	// SetJobError records a terminal failure message and marks the job
	// failed.
	SetJobError(ctx context.Context, id string, errMsg string) error

	// DeleteJob removes a job record entirely.
	DeleteJob(ctx context.Context, id string) error

	// MarkOrphanedJobsQueued transitions any job left running, pausing, or
	// stopping from a previous, uncleanly terminated worker process back into
	// queued, so it is picked up again.
	MarkOrphanedJobsQueued(ctx context.Context) (int, error)
}

// HistoryStore is the persistence-capability seam for completed-scan
// archival records.
type HistoryStore interface {
	// SaveEntry persists a finished scan's history record.
	SaveEntry(ctx context.Context, entry *models.HistoryEntry) error

	// GetEntry retrieves a history record by ID. Returns ErrHistoryNotFound
	// if no such record exists.
	GetEntry(ctx context.Context, id string) (*models.HistoryEntry, error)

	// ListEntries lists history records, most recent first.
	ListEntries(ctx context.Context) ([]*models.HistoryEntry, error)

	// ListEntriesForURL lists history records for a specific scan URL, most
	// recent first.
	ListEntriesForURL(ctx context.Context, scanURL string) ([]*models.HistoryEntry, error)
}

// PresetStore persists named scan-config presets in the scan_configs
// table. Presets are written and listed only; the UI is the sole consumer
// of their contents.
type PresetStore interface {
	// SavePreset stores or overwrites a named config preset.
	SavePreset(ctx context.Context, name string, config models.ScanConfig) error

	// ListPresets lists all saved preset names and their configs.
	ListPresets(ctx context.Context) (map[string]models.ScanConfig, error)

	// DeletePreset removes a named preset.
	DeletePreset(ctx context.Context, name string) error
}
