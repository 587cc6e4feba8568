package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// retryAttempts/retryInitialDelay bound the exponential backoff applied to
// writes that collide with SQLite's single-writer lock (grounded on the
// teacher's retryWithExponentialBackoff).
const (
	retryAttempts     = 5
	retryInitialDelay = 20 * time.Millisecond
)

// retryWithExponentialBackoff retries operation while it fails with a
// SQLITE_BUSY-shaped error, doubling the delay each attempt.
func retryWithExponentialBackoff(ctx context.Context, logger arbor.ILogger, operation func() error) error {
	delay := retryInitialDelay
	var lastErr error

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		msg := lastErr.Error()
		isBusy := strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
		if !isBusy || attempt == retryAttempts {
			return lastErr
		}

		logger.Warn().Int("attempt", attempt).Str("delay", delay.String()).Msg("Database locked, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

// JobStorage implements interfaces.JobStore on top of the scan_jobs table.
type JobStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewJobStorage constructs a JobStorage.
func NewJobStorage(db *DB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{db: db, logger: logger}
}

var _ interfaces.JobStore = (*JobStorage)(nil)

func (s *JobStorage) CreateJob(ctx context.Context, job *models.ScanJob) error {
	configJSON, err := job.Config.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal job config: %w", err)
	}

	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `
			INSERT INTO scan_jobs (id, scan_url, status, config, state, created_at, pages_scanned, links_checked, broken_count, estimated_total, error_message, worker_id, retry_count)
			VALUES (?, ?, ?, ?, '', ?, 0, 0, 0, 0, '', '', 0)
		`, job.ID, job.ScanURL, string(job.Status), configJSON, job.CreatedAt.Unix())
		return err
	})
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.ScanJob, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, scan_url, status, config, created_at, started_at, finished_at,
		       pages_scanned, links_checked, broken_count, estimated_total, error_message, worker_id, retry_count
		FROM scan_jobs WHERE id = ?
	`, id)
	job, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrJobNotFound
	}
	return job, err
}

func (s *JobStorage) GetJobs(ctx context.Context) ([]*models.ScanJob, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, scan_url, status, config, created_at, started_at, finished_at,
		       pages_scanned, links_checked, broken_count, estimated_total, error_message, worker_id, retry_count
		FROM scan_jobs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	return scanJobRows(rows)
}

func (s *JobStorage) GetNextPendingJob(ctx context.Context) (*models.ScanJob, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, scan_url, status, config, created_at, started_at, finished_at,
		       pages_scanned, links_checked, broken_count, estimated_total, error_message, worker_id, retry_count
		FROM scan_jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1
	`, string(models.JobQueued))
	job, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *JobStorage) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	now := time.Now().Unix()
	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		var err error
		switch status {
		case models.JobRunning:
			_, err = s.db.Conn().ExecContext(ctx, `UPDATE scan_jobs SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`, string(status), now, id)
		case models.JobComplete, models.JobFailed, models.JobStopped:
			_, err = s.db.Conn().ExecContext(ctx, `UPDATE scan_jobs SET status = ?, finished_at = ? WHERE id = ?`, string(status), now, id)
		default:
			_, err = s.db.Conn().ExecContext(ctx, `UPDATE scan_jobs SET status = ? WHERE id = ?`, string(status), id)
		}
		return err
	})
}

func (s *JobStorage) UpdateJobProgress(ctx context.Context, id string, progress models.Progress) error {
	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `
			UPDATE scan_jobs
			SET pages_scanned = ?, links_checked = ?, broken_count = ?,
			    estimated_total = CASE WHEN ? > 0 THEN ? ELSE estimated_total END
			WHERE id = ?
		`, progress.PagesScanned, progress.LinksChecked, progress.BrokenCount, progress.EstimatedTotal, progress.EstimatedTotal, id)
		return err
	})
}

func (s *JobStorage) UpdateJobState(ctx context.Context, id string, stateJSON string) error {
	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `UPDATE scan_jobs SET state = ? WHERE id = ?`, stateJSON, id)
		return err
	})
}

func (s *JobStorage) GetJobState(ctx context.Context, id string) (string, error) {
	var state string
	err := s.db.Conn().QueryRowContext(ctx, `SELECT state FROM scan_jobs WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", interfaces.ErrJobNotFound
	}
	return state, err
}

func (s *JobStorage) SetJobError(ctx context.Context, id string, errMsg string) error {
	now := time.Now().Unix()
	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `
			UPDATE scan_jobs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?
		`, string(models.JobFailed), errMsg, now, id)
		return err
	})
}

func (s *JobStorage) DeleteJob(ctx context.Context, id string) error {
	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM scan_jobs WHERE id = ?`, id)
		return err
	})
}

// MarkOrphanedJobsQueued transitions every job left running/pausing/stopping
// from a previous worker process back into queued, since there is no other
// worker that could own it. Called once at startup.
func (s *JobStorage) MarkOrphanedJobsQueued(ctx context.Context) (int, error) {
	var count int
	err := retryWithExponentialBackoff(ctx, s.logger, func() error {
		res, err := s.db.Conn().ExecContext(ctx, `
			UPDATE scan_jobs SET status = ?
			WHERE status IN (?, ?, ?)
		`, string(models.JobQueued), string(models.JobRunning), string(models.JobPausing), string(models.JobStopping))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		count = int(affected)
		return nil
	})
	return count, err
}

type scannableRow interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(row scannableRow) (*models.ScanJob, error) {
	var (
		job        models.ScanJob
		status     string
		configJSON string
		createdAt  int64
		startedAt  sql.NullInt64
		finishedAt sql.NullInt64
	)

	err := row.Scan(&job.ID, &job.ScanURL, &status, &configJSON, &createdAt, &startedAt, &finishedAt,
		&job.PagesScanned, &job.LinksChecked, &job.BrokenCount, &job.EstimatedTotal, &job.ErrorMessage, &job.WorkerID, &job.RetryCount)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		job.FinishedAt = &t
	}

	config, err := models.ScanConfigFromJSON(configJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal job config: %w", err)
	}
	job.Config = config

	return &job, nil
}

func scanJobRows(rows *sql.Rows) ([]*models.ScanJob, error) {
	var jobs []*models.ScanJob
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
