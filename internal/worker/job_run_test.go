package worker

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/common"
	"github.com/linkcheckerpro/linkchecker/internal/jobs"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// stubEngine satisfies the Pause()/Stop() seam jobRun needs from
// crawler.Engine without pulling in a real scan.
type stubEngine struct {
	paused, stopped int
}

func (e *stubEngine) Pause() { e.paused++ }
func (e *stubEngine) Stop()  { e.stopped++ }

func newTestLoop(t *testing.T) (*Loop, *jobs.Service) {
	t.Helper()
	jobStore := newMemJobStore()
	historyStore := newMemHistoryStore()
	logger := arbor.NewLogger()
	svc := jobs.New(jobStore, historyStore, logger)
	workerCfg := common.WorkerConfig{PollInterval: "1s", OrphanCleanupOnStart: true}
	crawlerCfg := common.CrawlerConfig{Concurrency: 10, RequestTimeoutMS: 30000}
	loop := New(svc, workerCfg, crawlerCfg, nil, logger)
	return loop, svc
}

func TestOnProgressWritesProgressWhenDue(t *testing.T) {
	loop, svc := newTestLoop(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := svc.UpdateJobStatus(ctx, job.ID, models.JobRunning, nil); err != nil {
		t.Fatalf("transition to running: %v", err)
	}

	run := newJobRun(loop, job.ID, ctx)
	run.bindEngine(&stubEngine{})

	// lastProgressAt/lastPollAt are zero-valued, so the first call is always due.
	run.onProgress(3, "https://example.com/page", 1, 10)

	got, err := svc.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.PagesScanned != 3 {
		t.Errorf("expected pages_scanned 3, got %d", got.PagesScanned)
	}
	if got.BrokenCount != 1 {
		t.Errorf("expected broken_count 1, got %d", got.BrokenCount)
	}
}

func TestOnProgressObservesPauseRequest(t *testing.T) {
	loop, svc := newTestLoop(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := svc.UpdateJobStatus(ctx, job.ID, models.JobRunning, nil); err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if err := svc.PauseJob(ctx, job.ID); err != nil {
		t.Fatalf("PauseJob: %v", err)
	}

	run := newJobRun(loop, job.ID, ctx)
	engine := &stubEngine{}
	run.bindEngine(engine)

	run.onProgress(1, "https://example.com/", 0, 1)

	if engine.paused != 1 {
		t.Fatalf("expected engine.Pause() called once, got %d", engine.paused)
	}

	// A second call must not re-request the pause (stopRequested latch).
	run.onProgress(2, "https://example.com/", 0, 1)
	if engine.paused != 1 {
		t.Fatalf("expected latch to suppress a second Pause() call, got %d total", engine.paused)
	}
}

func TestOnProgressObservesStopRequest(t *testing.T) {
	loop, svc := newTestLoop(t)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, "https://example.com", models.ScanConfig{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := svc.UpdateJobStatus(ctx, job.ID, models.JobRunning, nil); err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if err := svc.StopJob(ctx, job.ID); err != nil {
		t.Fatalf("StopJob: %v", err)
	}

	run := newJobRun(loop, job.ID, ctx)
	engine := &stubEngine{}
	run.bindEngine(engine)

	run.onProgress(1, "https://example.com/", 0, 1)

	if engine.stopped != 1 {
		t.Fatalf("expected engine.Stop() called once, got %d", engine.stopped)
	}
}
