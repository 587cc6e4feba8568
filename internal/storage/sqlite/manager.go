package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/linkcheckerpro/linkchecker/internal/common"
)

// Manager bundles the concrete storage types behind a single construction
// call, built directly on this package's three stores rather than a
// swappable interface, since SQLite is this module's only supported
// backend.
type Manager struct {
	DB      *DB
	Jobs    *JobStorage
	History *HistoryStorage
	Presets *PresetStorage
}

// NewManager opens the database and constructs all storage types.
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (*Manager, error) {
	db, err := NewDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		DB:      db,
		Jobs:    NewJobStorage(db, logger),
		History: NewHistoryStorage(db, logger),
		Presets: NewPresetStorage(db, logger),
	}, nil
}

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	return m.DB.Close()
}
