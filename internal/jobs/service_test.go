package jobs

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// memJobStore is an in-memory interfaces.JobStore stand-in, mirroring the
// teacher's preference for hand-rolled mocks over a mocking framework.
type memJobStore struct {
	jobs map[string]*models.ScanJob
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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
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

// memHistoryStore is an in-memory interfaces.HistoryStore stand-in.
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

func newTestService() (*Service, *memJobStore, *memHistoryStore) {
	jobStore := newMemJobStore()
	historyStore := newMemHistoryStore()
	svc := New(jobStore, historyStore, arbor.NewLogger())
	return svc, jobStore, historyStore
}

func TestCreateJobAllocatesID(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	a, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)
	b, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID, "expected distinct ids for distinct jobs")
	assert.Equal(t, models.JobQueued, a.Status)
}

func TestUpdateJobStatusRejectsInvalidTransition(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)

	// queued -> paused is not a legal edge.
	err = svc.UpdateJobStatus(ctx, job.ID, models.JobPaused, nil)
	var invalidTransition *ErrInvalidTransition
	assert.ErrorAs(t, err, &invalidTransition)
}

func TestUpdateJobStatusCompletedSavesHistory(t *testing.T) {
	svc, _, history := newTestService()
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateJobStatus(ctx, job.ID, models.JobRunning, nil))

	catalog := map[string]*models.ScanResult{
		"https://example.com/": {URL: "https://example.com/", StatusCode: 200},
	}
	require.NoError(t, svc.UpdateJobStatus(ctx, job.ID, models.JobComplete, catalog))

	assert.Len(t, history.entries, 1, "expected exactly one history entry on completion")
}

func TestUpdateJobStatusStoppedDoesNotSaveHistory(t *testing.T) {
	svc, _, history := newTestService()
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)

	// queued -> stopped is a direct edge (stopJob on a queued job).
	require.NoError(t, svc.UpdateJobStatus(ctx, job.ID, models.JobStopped, nil))

	assert.Empty(t, history.entries, "expected no history entry on a stopped job")
}

func TestPauseResumeRoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateJobStatus(ctx, job.ID, models.JobRunning, nil))

	require.NoError(t, svc.PauseJob(ctx, job.ID))
	got, err := svc.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPausing, got)

	// PauseJob only applies to running jobs; a second call must be rejected.
	assert.Error(t, svc.PauseJob(ctx, job.ID))

	// A worker observing "pausing" persists state and transitions to paused.
	require.NoError(t, svc.UpdateJobStatus(ctx, job.ID, models.JobPaused, nil))

	require.NoError(t, svc.ResumeJob(ctx, job.ID))
	got, err = svc.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got)
}

func TestStopJobIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)

	require.NoError(t, svc.StopJob(ctx, job.ID))
	got, err := svc.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStopped, got)

	// Stopping an already-stopped job must be a harmless no-op, not an error.
	assert.NoError(t, svc.StopJob(ctx, job.ID))
}

func TestRecoverOrphansRequeuesNonTerminalJobs(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	running, err := svc.CreateJob(ctx, "https://example.com/a", models.ScanConfig{})
	require.NoError(t, err)
	store.jobs[running.ID].Status = models.JobRunning

	queued, err := svc.CreateJob(ctx, "https://example.com/b", models.ScanConfig{})
	require.NoError(t, err)

	count, err := svc.RecoverOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "expected exactly 1 orphan recovered")

	got, err := svc.GetJobStatus(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got, "expected orphaned running job to become queued")

	got, err = svc.GetJobStatus(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, got, "expected already-queued job to remain queued")
}

func TestSetJobErrorMarksFailedFromAnyStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateJobStatus(ctx, job.ID, models.JobRunning, nil))

	require.NoError(t, svc.SetJobError(ctx, job.ID, "boom"))

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}
