package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Worker      WorkerConfig  `toml:"worker"`
	Crawler     CrawlerConfig `toml:"crawler"`
}

// ServerConfig holds a host and port that are shown in the startup banner.
// This binary does not start an HTTP server.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig configures the SQLite-backed Storage Layer.
type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig holds connection-tuning knobs for the SQLite backend.
type SQLiteConfig struct {
	Path           string `toml:"path"`             // database file path
	ResetOnStartup bool   `toml:"reset_on_startup"` // development only
	WALMode        bool   `toml:"wal_mode"`
	BusyTimeoutMS  int    `toml:"busy_timeout_ms"`
	CacheSizeMB    int    `toml:"cache_size_mb"`
}

// LoggingConfig configures the arbor logger.
type LoggingConfig struct {
	Level      string   `toml:"level"`       // debug|info|warn|error
	Format     string   `toml:"format"`      // text|json
	Output     []string `toml:"output"`      // stdout, file
	TimeFormat string   `toml:"time_format"` // e.g. "15:04:05.000"
}

// WorkerConfig configures the Worker Loop that dispatches queued jobs to the
// Crawl Engine.
type WorkerConfig struct {
	PollInterval         string `toml:"poll_interval"` // e.g. "1s"
	OrphanCleanupOnStart bool   `toml:"orphan_cleanup_on_start"`
}

// CrawlerConfig holds the default ScanConfig values applied when a job's
// submitted config omits a field.
type CrawlerConfig struct {
	Concurrency       int `toml:"concurrency"`
	RequestTimeoutMS  int `toml:"request_timeout_ms"`
	MaxScansPerMinute int `toml:"max_scans_per_minute"`
}

// NewDefaultConfig returns the built-in defaults, overridden by any config
// file and then by environment variables in LoadFromFile.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/linkchecker.db",
				WALMode:       true,
				BusyTimeoutMS: 5000,
				CacheSizeMB:   16,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
		},
		Worker: WorkerConfig{
			PollInterval:         "1s",
			OrphanCleanupOnStart: true,
		},
		Crawler: CrawlerConfig{
			Concurrency:       10,
			RequestTimeoutMS:  30000,
			MaxScansPerMinute: 0,
		},
	}
}

// LoadFromFile loads configuration starting from defaults, merging in path
// (if non-empty), then environment variable overrides.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies LINKCHECKER_*-prefixed environment variables,
// the highest-priority override tier.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LINKCHECKER_ENV"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("LINKCHECKER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LINKCHECKER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("LINKCHECKER_DB_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if level := os.Getenv("LINKCHECKER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
