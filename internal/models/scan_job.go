package models

import (
	"time"
)

// JobStatus is the lifecycle state of a ScanJob.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobPausing  JobStatus = "pausing"
	JobPaused   JobStatus = "paused"
	JobStopping JobStatus = "stopping"
	JobStopped  JobStatus = "stopped"
	JobComplete JobStatus = "completed"
	JobFailed   JobStatus = "failed"
)

// validTransitions enumerates the lifecycle edges a job may take; anything
// not listed here is rejected by the Job Service.
var validTransitions = map[JobStatus][]JobStatus{
	JobQueued:   {JobRunning, JobStopped},
	JobRunning:  {JobPausing, JobStopping, JobComplete, JobFailed},
	JobPausing:  {JobPaused, JobStopping, JobComplete, JobFailed},
	JobPaused:   {JobQueued, JobStopped},
	JobStopping: {JobStopped},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// edge.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is a final resting state the worker
// loop and Job Service will never transition out of.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed || s == JobStopped
}

// ScanJob is the durable record of a single scan's lifecycle and progress.
type ScanJob struct {
	ID         string     `json:"id"`
	ScanURL    string     `json:"scan_url"`
	Status     JobStatus  `json:"status"`
	Config     ScanConfig `json:"config"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	PagesScanned   int `json:"pages_scanned"`
	LinksChecked   int `json:"links_checked"`
	BrokenCount    int `json:"broken_count"`
	EstimatedTotal int `json:"estimated_total,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	// WorkerID and RetryCount are operability-only fields: never read by
	// engine logic, reserved for future worker-restart policy.
	WorkerID   string `json:"worker_id,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// NewScanJob constructs a fresh job in the queued state.
func NewScanJob(id, scanURL string, config ScanConfig) *ScanJob {
	return &ScanJob{
		ID:        id,
		ScanURL:   scanURL,
		Status:    JobQueued,
		Config:    config.WithDefaults(),
		CreatedAt: time.Now(),
	}
}

// Progress is the subset of fields the Crawl Engine reports on each callback
// tick; the Job Service merges it into the persisted row without touching
// Status.
type Progress struct {
	PagesScanned   int
	LinksChecked   int
	BrokenCount    int
	EstimatedTotal int
}

func (j *ScanJob) ApplyProgress(p Progress) {
	j.PagesScanned = p.PagesScanned
	j.LinksChecked = p.LinksChecked
	j.BrokenCount = p.BrokenCount
	if p.EstimatedTotal > 0 {
		j.EstimatedTotal = p.EstimatedTotal
	}
}
