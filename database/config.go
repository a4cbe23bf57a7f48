package database

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the settings for an ephemeral SQLite store.
type Config struct {
	// TempDir is the parent directory for store directories. Empty means os.TempDir().
	TempDir string `mapstructure:"temp_dir"`

	// DirPattern is the os.MkdirTemp pattern for the per-store directory.
	DirPattern string `mapstructure:"dir_pattern"`

	// FileName is the database file created inside the store directory.
	FileName string `mapstructure:"file_name"`

	// DisableForeignKeys turns off foreign key enforcement. Enforcement is on by default.
	DisableForeignKeys bool `mapstructure:"disable_foreign_keys"`

	// BusyTimeout is how long SQLite waits on a locked database (e.g. "5s").
	BusyTimeout string `mapstructure:"busy_timeout"`

	// JournalMode is the SQLite journal mode (DELETE, TRUNCATE, MEMORY, WAL, OFF).
	JournalMode string `mapstructure:"journal_mode"`

	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel string `mapstructure:"log_level"`

	// SlowQueryThreshold is the duration above which queries are logged as slow (e.g. "200ms").
	SlowQueryThreshold string `mapstructure:"slow_query_threshold"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.DirPattern == "" {
		c.DirPattern = "gormock-*"
	}
	if c.FileName == "" {
		c.FileName = "store.db"
	}
	if c.BusyTimeout == "" {
		c.BusyTimeout = "5s"
	}
	if c.JournalMode == "" {
		c.JournalMode = "MEMORY"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.SlowQueryThreshold == "" {
		c.SlowQueryThreshold = "200ms"
	}
}

// Validate checks that fields are present and parseable.
func (c *Config) Validate() error {
	if c.TempDir != "" {
		info, err := os.Stat(c.TempDir)
		if err != nil {
			return fmt.Errorf("temp_dir %q: %w", c.TempDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("temp_dir %q is not a directory", c.TempDir)
		}
	}
	if strings.ContainsAny(c.FileName, `/\`) {
		return fmt.Errorf("file_name %q must not contain a path separator", c.FileName)
	}
	if _, err := time.ParseDuration(c.BusyTimeout); err != nil {
		return fmt.Errorf("invalid busy_timeout %q: %w", c.BusyTimeout, err)
	}
	switch strings.ToUpper(c.JournalMode) {
	case "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("invalid journal_mode %q", c.JournalMode)
	}
	switch strings.ToLower(c.LogLevel) {
	case "silent", "error", "warn", "info":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if _, err := time.ParseDuration(c.SlowQueryThreshold); err != nil {
		return fmt.Errorf("invalid slow_query_threshold %q: %w", c.SlowQueryThreshold, err)
	}
	return nil
}

// DSN builds the go-sqlite3 connection string for the database file at path.
func (c *Config) DSN(path string) string {
	busy, _ := time.ParseDuration(c.BusyTimeout)
	fk := 1
	if c.DisableForeignKeys {
		fk = 0
	}
	return fmt.Sprintf("file:%s?_foreign_keys=%d&_busy_timeout=%d&_journal_mode=%s",
		path, fk, busy.Milliseconds(), strings.ToUpper(c.JournalMode))
}
