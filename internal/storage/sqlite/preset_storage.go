package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/interfaces"
	"github.com/linkcheckerpro/linkchecker/internal/models"
)

// PresetStorage implements interfaces.PresetStore on top of the
// scan_configs table.
type PresetStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewPresetStorage constructs a PresetStorage.
func NewPresetStorage(db *DB, logger arbor.ILogger) *PresetStorage {
	return &PresetStorage{db: db, logger: logger}
}

var _ interfaces.PresetStore = (*PresetStorage)(nil)

func (s *PresetStorage) SavePreset(ctx context.Context, name string, config models.ScanConfig) error {
	data, err := config.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal preset config: %w", err)
	}
	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `
			INSERT INTO scan_configs (name, config, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at
		`, name, data, time.Now().Unix())
		return err
	})
}

func (s *PresetStorage) ListPresets(ctx context.Context) (map[string]models.ScanConfig, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT name, config FROM scan_configs`)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer rows.Close()

	presets := make(map[string]models.ScanConfig)
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scan preset row: %w", err)
		}
		config, err := models.ScanConfigFromJSON(data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal preset %q: %w", name, err)
		}
		presets[name] = config
	}
	return presets, rows.Err()
}

func (s *PresetStorage) DeletePreset(ctx context.Context, name string) error {
	return retryWithExponentialBackoff(ctx, s.logger, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM scan_configs WHERE name = ?`, name)
		return err
	})
}
