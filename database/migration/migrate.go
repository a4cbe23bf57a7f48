// Package migration applies SQL and programmatic schema migrations to an
// ephemeral SQLite store before mock data is loaded.
//
// File migrations use golang-migrate with the sqlite3 database driver and
// an io/fs source, so they can come from an embed.FS or os.DirFS:
//
//	//go:embed migrations/*.sql
//	var migrationsFS embed.FS
//
//	err := migration.Up(db.GormDB, migration.Source{FS: migrationsFS, Dir: "migrations"})
//
// Files follow golang-migrate's VERSION_name.up.sql / VERSION_name.down.sql
// pattern.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// Source locates a directory of migration files inside a file system.
type Source struct {
	FS  fs.FS
	Dir string
}

// DriverFunc creates a migrate database driver from sql.DB.
type DriverFunc func(*sql.DB) (database.Driver, error)

// SQLiteDriver is the default DriverFunc.
func SQLiteDriver(db *sql.DB) (database.Driver, error) {
	return migratesqlite.WithInstance(db, &migratesqlite.Config{})
}

// Up runs all pending migrations. No pending migrations is not an error.
func Up(gormDB *gorm.DB, src Source) error {
	m, err := newMigrator(gormDB, src, SQLiteDriver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back all applied migrations.
func Down(gormDB *gorm.DB, src Source) error {
	m, err := newMigrator(gormDB, src, SQLiteDriver)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version returns the current migration version and dirty flag. A store
// with no applied migrations reports version 0.
func Version(gormDB *gorm.DB, src Source) (version uint, dirty bool, err error) {
	m, err := newMigrator(gormDB, src, SQLiteDriver)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrator creates a golang-migrate instance over src.
// Callers must NOT call m.Close(): it would close the store's sql.DB.
func newMigrator(gormDB *gorm.DB, src Source, driverFunc DriverFunc) (*migrate.Migrate, error) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	driver, err := driverFunc(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	source, err := iofs.New(src.FS, src.Dir)
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
