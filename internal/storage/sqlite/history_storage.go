package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// HistoryStorage implements interfaces.HistoryStore on top of the
// scan_history table.
type HistoryStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewHistoryStorage constructs a HistoryStorage.
func NewHistoryStorage(db *DB, logger arbor.ILogger) *HistoryStorage {
	return &HistoryStorage{db: db, logger: logger}
}

var _ interfaces.HistoryStore = (*HistoryStorage)(nil)

func (s *HistoryStorage) SaveEntry(ctx context.Context, entry *models.HistoryEntry) error {
	data, err := entry.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `
			INSERT INTO scan_history (id, job_id, scan_url, scan_date, duration_seconds, final_status, broken_count, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, entry.ID, entry.JobID, entry.ScanURL, entry.ScanDate.Unix(), entry.DurationSeconds, string(entry.FinalStatus), entry.BrokenCount, data)
		return err
	})
}

func (s *HistoryStorage) GetEntry(ctx context.Context, id string) (*models.HistoryEntry, error) {
	var data string
	err := s.db.Conn().QueryRowContext(ctx, `SELECT data FROM scan_history WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrHistoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query history entry: %w", err)
	}
	return models.HistoryEntryFromJSON(data)
}

func (s *HistoryStorage) ListEntries(ctx context.Context) ([]*models.HistoryEntry, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT data FROM scan_history ORDER BY scan_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("query history entries: %w", err)
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func (s *HistoryStorage) ListEntriesForURL(ctx context.Context, scanURL string) ([]*models.HistoryEntry, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT data FROM scan_history WHERE scan_url = ? ORDER BY scan_date DESC
	`, scanURL)
	if err != nil {
		return nil, fmt.Errorf("query history entries for url: %w", err)
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func scanHistoryRows(rows *sql.Rows) ([]*models.HistoryEntry, error) {
	var entries []*models.HistoryEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry, err := models.HistoryEntryFromJSON(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
