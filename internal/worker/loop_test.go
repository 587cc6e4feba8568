package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/common"
	"github.com/linkcheckerpro/linkchecker/internal/crawler"
	"github.com/linkcheckerpro/linkchecker/internal/jobs"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

func newTestSite() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>no links here</body></html>`))
	})
	return httptest.NewServer(mux)
}

func newTestLoopWithFetcher(jobStore *memJobStore, historyStore *memHistoryStore) (*Loop, *jobs.Service) {
	logger := arbor.NewLogger()
	svc := jobs.New(jobStore, historyStore, logger)
	workerCfg := common.WorkerConfig{PollInterval: "1s", OrphanCleanupOnStart: true}
	crawlerCfg := common.CrawlerConfig{Concurrency: 2, RequestTimeoutMS: 5000}
	loop := New(svc, workerCfg, crawlerCfg, crawler.NewHTTPFetcher(), logger)
	return loop, svc
}

func TestProcessNextJobCompletesAndSavesHistory(t *testing.T) {
	server := newTestSite()
	defer server.Close()

	jobStore := newMemJobStore()
	historyStore := newMemHistoryStore()
	loop, svc := newTestLoopWithFetcher(jobStore, historyStore)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, server.URL+"/", models.ScanConfig{Depth: 1})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	loop.ctx = ctx
	loop.processNextJob()

	got, err := svc.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != models.JobComplete {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if got.PagesScanned != 1 {
		t.Fatalf("expected 1 page scanned, got %d", got.PagesScanned)
	}

	if len(historyStore.entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(historyStore.entries))
	}
}

func TestProcessNextJobNoopWhenQueueEmpty(t *testing.T) {
	jobStore := newMemJobStore()
	historyStore := newMemHistoryStore()
	loop, _ := newTestLoopWithFetcher(jobStore, historyStore)
	loop.ctx = context.Background()

	// Should not panic or block when there is nothing queued.
	loop.processNextJob()

	if len(jobStore.jobs) != 0 {
		t.Fatalf("expected no jobs, got %d", len(jobStore.jobs))
	}
}

func TestApplyCrawlerDefaultsFillsZeroFields(t *testing.T) {
	jobStore := newMemJobStore()
	historyStore := newMemHistoryStore()
	loop, _ := newTestLoopWithFetcher(jobStore, historyStore)

	got := loop.applyCrawlerDefaults(models.ScanConfig{})
	if got.Concurrency != 2 {
		t.Errorf("expected concurrency filled from worker config (2), got %d", got.Concurrency)
	}
	if got.RequestTimeout != 5000 {
		t.Errorf("expected request timeout filled from worker config (5000), got %d", got.RequestTimeout)
	}

	explicit := loop.applyCrawlerDefaults(models.ScanConfig{Concurrency: 7})
	if explicit.Concurrency != 7 {
		t.Errorf("expected explicit concurrency 7 to survive, got %d", explicit.Concurrency)
	}
}
