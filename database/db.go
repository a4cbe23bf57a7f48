package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

// NamingStrategy is shared by the store and by model schema parsing so
// that table names agree: Pet maps to "pet", OrderItem to "order_item".
var NamingStrategy = schema.NamingStrategy{SingularTable: true}

// DB wraps a GORM handle on a SQLite file that lives in its own temporary
// directory. Close disposes of both.
type DB struct {
	GormDB *gorm.DB
	log    *logger.Logger
	cfg    Config
	dir    string
	path   string
	closed bool
	mu     sync.Mutex
}

// Open creates a fresh temporary directory, opens a SQLite database file in
// it and verifies the connection. The pool is limited to one connection:
// SQLite pragmas and transactions are per connection, and every session of
// a mock scope has to observe the same open transaction.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Provisioning("configure", err)
	}

	dir, err := os.MkdirTemp(cfg.TempDir, cfg.DirPattern)
	if err != nil {
		return nil, apperrors.Provisioning("create", err)
	}
	path := filepath.Join(dir, cfg.FileName)

	slowThreshold, _ := time.ParseDuration(cfg.SlowQueryThreshold)
	gormCfg := &gorm.Config{
		Logger:         newGormLogger(log, slowThreshold, parseLogLevel(cfg.LogLevel)),
		NamingStrategy: NamingStrategy,
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN(path)), gormCfg)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperrors.Provisioning("open", err).WithDetail("path", path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperrors.Provisioning("open", err).WithDetail("path", path)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		_ = os.RemoveAll(dir)
		return nil, apperrors.Provisioning("ping", err).WithDetail("path", path)
	}

	log.Debug("Ephemeral store opened", map[string]interface{}{
		logger.FieldPath: path,
	})
	return &DB{GormDB: db, log: log, cfg: cfg, dir: dir, path: path}, nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Dir returns the temporary directory that holds the database file.
func (d *DB) Dir() string {
	return d.dir
}

// SQLDB returns the underlying connection pool.
func (d *DB) SQLDB() (*sql.DB, error) {
	return d.GormDB.DB()
}

// Closed reports whether Close has been called.
func (d *DB) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close closes the connection pool and removes the temporary directory.
// Safe to call multiple times.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var closeErr error
	if sqlDB, err := d.GormDB.DB(); err != nil {
		closeErr = err
	} else if err := sqlDB.Close(); err != nil {
		closeErr = err
	}
	if err := os.RemoveAll(d.dir); err != nil && closeErr == nil {
		closeErr = err
	}
	if closeErr != nil {
		return fmt.Errorf("dispose store %s: %w", d.path, closeErr)
	}

	d.log.Debug("Ephemeral store disposed", map[string]interface{}{
		logger.FieldPath: d.path,
	})
	return nil
}

// Ping verifies the database connection is alive.
func (d *DB) Ping() error {
	return d.PingContext(context.Background())
}

// PingContext verifies the database connection is alive, respecting the context.
func (d *DB) PingContext(ctx context.Context) error {
	sqlDB, err := d.GormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithContext returns a GORM session scoped to the given context.
func (d *DB) WithContext(ctx context.Context) *gorm.DB {
	return d.GormDB.WithContext(ctx)
}

// Inspector returns a schema inspector bound to the engine.
func (d *DB) Inspector() *Inspector {
	return NewInspector(d.GormDB)
}
