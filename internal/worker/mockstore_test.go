package worker

import (
	"context"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// memJobStore is a minimal in-memory interfaces.JobStore used only to drive
// Worker Loop tests without a real database.
type memJobStore struct {
	jobs  map[string]*models.ScanJob
	state map[string]string
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.ScanJob), state: make(map[string]string)}
}

func (m *memJobStore) CreateJob(ctx context.Context, job *models.ScanJob) error {
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobStore) GetJob(ctx context.Context, id string) (*models.ScanJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, interfaces.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobStore) GetJobs(ctx context.Context) ([]*models.ScanJob, error) {
	out := make([]*models.ScanJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memJobStore) GetNextPendingJob(ctx context.Context) (*models.ScanJob, error) {
	var oldest *models.ScanJob
	for _, job := range m.jobs {
		if job.Status != models.JobQueued {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (m *memJobStore) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	job, ok := m.jobs[id]
	if !ok {
		return interfaces.ErrJobNotFound
	}
	job.Status = status
	return nil
}

func (m *memJobStore) UpdateJobProgress(ctx context.Context, id string, progress models.Progress) error {
	job, ok := m.jobs[id]
	if !ok {
		return interfaces.ErrJobNotFound
	}
	job.ApplyProgress(progress)
	return nil
}

func (m *memJobStore) UpdateJobState(ctx context.Context, id string, stateJSON string) error {
	if _, ok := m.jobs[id]; !ok {
		return interfaces.ErrJobNotFound
	}
	m.state[id] = stateJSON
	return nil
}

func (m *memJobStore) GetJobState(ctx context.Context, id string) (string, error) {
	if _, ok := m.jobs[id]; !ok {
		return "", interfaces.ErrJobNotFound
	}
	return m.state[id], nil
}

func (m *memJobStore) SetJobError(ctx context.Context, id string, errMsg string) error {
	job, ok := m.jobs[id]
	if !ok {
		return interfaces.ErrJobNotFound
	}
	job.Status = models.JobFailed
	job.ErrorMessage = errMsg
	return nil
}

func (m *memJobStore) DeleteJob(ctx context.Context, id string) error {
	delete(m.jobs, id)
	delete(m.state, id)
	return nil
}

func (m *memJobStore) MarkOrphanedJobsQueued(ctx context.Context) (int, error) {
	count := 0
	for _, job := range m.jobs {
		switch job.Status {
		case models.JobRunning, models.JobPausing, models.JobStopping:
			job.Status = models.JobQueued
			count++
		}
	}
	return count, nil
}

var _ interfaces.JobStore = (*memJobStore)(nil)

// memHistoryStore is a minimal in-memory interfaces.HistoryStore.
type memHistoryStore struct {
	entries map[string]*models.HistoryEntry
}

func newMemHistoryStore() *memHistoryStore {
	return &memHistoryStore{entries: make(map[string]*models.HistoryEntry)}
}

func (m *memHistoryStore) SaveEntry(ctx context.Context, entry *models.HistoryEntry) error {
	m.entries[entry.ID] = entry
	return nil
}

func (m *memHistoryStore) GetEntry(ctx context.Context, id string) (*models.HistoryEntry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, interfaces.ErrHistoryNotFound
	}
	return entry, nil
}

func (m *memHistoryStore) ListEntries(ctx context.Context) ([]*models.HistoryEntry, error) {
	out := make([]*models.HistoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *memHistoryStore) ListEntriesForURL(ctx context.Context, scanURL string) ([]*models.HistoryEntry, error) {
	var out []*models.HistoryEntry
	for _, e := range m.entries {
		if e.ScanURL == scanURL {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ interfaces.HistoryStore = (*memHistoryStore)(nil)
