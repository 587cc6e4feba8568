package sqlite

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scan_jobs (
	id              TEXT PRIMARY KEY,
	scan_url        TEXT NOT NULL,
	status          TEXT NOT NULL,
	config          TEXT NOT NULL,
	state           TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	started_at      INTEGER,
	finished_at     INTEGER,
	pages_scanned   INTEGER NOT NULL DEFAULT 0,
	links_checked   INTEGER NOT NULL DEFAULT 0,
	broken_count    INTEGER NOT NULL DEFAULT 0,
	estimated_total INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT NOT NULL DEFAULT '',
	worker_id       TEXT NOT NULL DEFAULT '',
	retry_count     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scan_jobs_status ON scan_jobs(status);
CREATE INDEX IF NOT EXISTS idx_scan_jobs_created_at ON scan_jobs(created_at);

CREATE TABLE IF NOT EXISTS scan_history (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL,
	scan_url         TEXT NOT NULL,
	scan_date        INTEGER NOT NULL,
	duration_seconds REAL NOT NULL DEFAULT 0,
	final_status     TEXT NOT NULL,
	broken_count     INTEGER NOT NULL DEFAULT 0,
	data             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_history_scan_url ON scan_history(scan_url);
CREATE INDEX IF NOT EXISTS idx_scan_history_scan_date ON scan_history(scan_date);

CREATE TABLE IF NOT EXISTS scan_configs (
	name       TEXT PRIMARY KEY,
	config     TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

func (d *DB) initSchema() error {
	if _, err := d.db.Exec(schemaSQL); err != nil {
		return err
	}
	d.logger.Info().Msg("Database schema initialized")
	return nil
}
