// Package sqlite implements the Storage Layer on top of a single SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/linkcheckerpro/linkchecker/internal/common"
)

// DB wraps the shared SQLite connection used by JobStorage and
// HistoryStorage.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *common.SQLiteConfig
}

// NewDB opens (and, on first run, schema-initializes) the database file
// named in config.
func NewDB(logger arbor.ILogger, config *common.SQLiteConfig) (*DB, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if config.ResetOnStartup {
		if err := resetDatabase(logger, config.Path); err != nil {
			return nil, fmt.Errorf("reset database: %w", err)
		}
	}

	// modernc.org/sqlite registers itself under the driver name "sqlite".
	sqlDB, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// contention between concurrent worker goroutines (grounded on the
	// teacher's SQLiteDB.NewSQLiteDB).
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{db: sqlDB, logger: logger, config: config}

	if err := d.configure(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := d.initSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("SQLite database initialized")
	return d, nil
}

func (d *DB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", d.config.CacheSizeMB*1024),
		fmt.Sprintf("PRAGMA busy_timeout = %d", d.config.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if d.config.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := d.db.Exec(pragma); err != nil {
			return fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return nil
}

// Conn returns the underlying *sql.DB for use by the storage types in this
// package.
func (d *DB) Conn() *sql.DB {
	return d.db
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func resetDatabase(logger arbor.ILogger, path string) error {
	logger.Warn().Str("path", path).Msg("Resetting database (deleting all data)")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s%s: %w", path, suffix, err)
		}
	}
	return nil
}
