package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

type parent struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"not null;uniqueIndex:uq_parent_name"`
}

type child struct {
	ID       int64 `gorm:"primaryKey"`
	ParentID int64 `gorm:"not null"`
	Parent   *parent
	Active   bool `gorm:"index:idx_child_active,where:active = true"`
	Score    int  `gorm:"check:chk_child_score,score >= 0"`
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{TempDir: t.TempDir()}, logger.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesFileInOwnDir(t *testing.T) {
	db := openTestDB(t)

	if filepath.Dir(db.Path()) != db.Dir() {
		t.Errorf("Path() %q not inside Dir() %q", db.Path(), db.Dir())
	}
	if filepath.Base(db.Path()) != "store.db" {
		t.Errorf("file name = %q, want store.db", filepath.Base(db.Path()))
	}
	if _, err := os.Stat(db.Path()); err != nil {
		t.Errorf("database file missing: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}

	sqlDB, err := db.SQLDB()
	if err != nil {
		t.Fatalf("SQLDB() failed: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestCloseRemovesDirAndIsIdempotent(t *testing.T) {
	db, err := Open(context.Background(), Config{TempDir: t.TempDir()}, logger.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := os.Stat(db.Dir()); !os.IsNotExist(err) {
		t.Errorf("store dir should be removed, stat err = %v", err)
	}
	if !db.Closed() {
		t.Error("Closed() = false after Close()")
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestOpenProvisioningFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")

	_, err := Open(context.Background(), Config{TempDir: missing}, logger.Nop())
	if err == nil {
		t.Fatal("expected provisioning error")
	}
	if !errors.Is(err, apperrors.Sentinel(apperrors.ErrCodeProvisioning, "")) {
		t.Errorf("expected PROVISIONING_FAILED, got %v", err)
	}
}

func TestIntegrityClassification(t *testing.T) {
	db := openTestDB(t)
	if err := db.GormDB.Migrator().CreateTable(&parent{}, &child{}); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}
	if err := db.GormDB.Create(&parent{ID: 1, Name: "p"}).Error; err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	tests := []struct {
		name string
		run  func() error
		want ConstraintKind
	}{
		{"unique", func() error { return db.GormDB.Create(&parent{Name: "p"}).Error }, ConstraintUnique},
		{"primary key", func() error { return db.GormDB.Create(&parent{ID: 1, Name: "q"}).Error }, ConstraintPrimaryKey},
		{"foreign key", func() error { return db.GormDB.Create(&child{ParentID: 99}).Error }, ConstraintForeignKey},
		{"check", func() error { return db.GormDB.Create(&child{ParentID: 1, Score: -1}).Error }, ConstraintCheck},
		{"not null", func() error { return db.GormDB.Exec("INSERT INTO parent (id, name) VALUES (5, NULL)").Error }, ConstraintNotNull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil {
				t.Fatal("expected constraint violation")
			}
			if got := Constraint(err); got != tt.want {
				t.Errorf("Constraint() = %q, want %q (err: %v)", got, tt.want, err)
			}
			if !IsIntegrityError(err) {
				t.Error("IsIntegrityError() = false")
			}
		})
	}

	if IsIntegrityError(errors.New("plain")) {
		t.Error("plain error classified as integrity error")
	}
	if IsIntegrityError(nil) {
		t.Error("nil classified as integrity error")
	}
}

func TestFromDatabase(t *testing.T) {
	db := openTestDB(t)
	if err := db.GormDB.Migrator().CreateTable(&parent{}); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}

	var p parent
	notFound := FromDatabase(db.GormDB.First(&p, 42).Error, "parent")
	if notFound.Code != apperrors.ErrCodeNotFound {
		t.Errorf("Code = %s, want NOT_FOUND", notFound.Code)
	}

	if err := db.GormDB.Create(&parent{Name: "dup"}).Error; err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	dupErr := db.GormDB.Create(&parent{Name: "dup"}).Error
	conflict := FromDatabase(dupErr, "parent")
	if conflict.Code != apperrors.ErrCodeConflict {
		t.Errorf("Code = %s, want CONFLICT", conflict.Code)
	}
	if !errors.Is(conflict, dupErr) {
		t.Error("original error should stay reachable")
	}

	if FromDatabase(nil, "parent") != nil {
		t.Error("FromDatabase(nil) should be nil")
	}
}

func TestInspectorIndexes(t *testing.T) {
	db := openTestDB(t)
	if err := db.GormDB.Migrator().CreateTable(&parent{}, &child{}); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}
	insp := db.Inspector()

	tables, err := insp.Tables()
	if err != nil {
		t.Fatalf("Tables() failed: %v", err)
	}
	if strings.Join(tables, ",") != "child,parent" {
		t.Errorf("Tables() = %v", tables)
	}

	uq, found, err := insp.Index("parent", "uq_parent_name")
	if err != nil || !found {
		t.Fatalf("Index(uq_parent_name) = %v, %v", found, err)
	}
	if !uq.Unique || uq.Partial() || len(uq.Columns) != 1 || uq.Columns[0] != "name" {
		t.Errorf("uq_parent_name = %+v", uq)
	}

	partial, found, err := insp.Index("child", "idx_child_active")
	if err != nil || !found {
		t.Fatalf("Index(idx_child_active) = %v, %v", found, err)
	}
	if !partial.Partial() || partial.Unique {
		t.Errorf("idx_child_active = %+v", partial)
	}
	if !strings.Contains(partial.Predicate, "active = true") {
		t.Errorf("Predicate = %q", partial.Predicate)
	}

	if _, found, _ := insp.Index("child", "nope"); found {
		t.Error("unexpected index found")
	}

	count, err := insp.CountRows("parent")
	if err != nil || count != 0 {
		t.Errorf("CountRows() = %d, %v", count, err)
	}
}

func TestWherePredicate(t *testing.T) {
	tests := []struct {
		ddl  string
		want string
	}{
		{"CREATE INDEX `idx` ON `t`(`a`) WHERE archived = false", "archived = false"},
		{"create index idx on t(a) where a > 1", "a > 1"},
		{"CREATE INDEX idx ON t(a)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := wherePredicate(tt.ddl); got != tt.want {
			t.Errorf("wherePredicate(%q) = %q, want %q", tt.ddl, got, tt.want)
		}
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed after defaults: %v", err)
	}

	dsn := cfg.DSN("/tmp/x/store.db")
	for _, want := range []string{"file:/tmp/x/store.db?", "_foreign_keys=1", "_busy_timeout=5000", "_journal_mode=MEMORY"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN() = %q, missing %q", dsn, want)
		}
	}

	cfg.DisableForeignKeys = true
	if !strings.Contains(cfg.DSN("x"), "_foreign_keys=0") {
		t.Error("DisableForeignKeys not reflected in DSN")
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad busy timeout", func(c *Config) { c.BusyTimeout = "soon" }},
		{"bad journal mode", func(c *Config) { c.JournalMode = "FAST" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"file name with separator", func(c *Config) { c.FileName = "a/b.db" }},
		{"missing temp dir", func(c *Config) { c.TempDir = filepath.Join(t.TempDir(), "missing") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{}
			c.ApplyDefaults()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent": gormlogger.Silent,
		"error":  gormlogger.Error,
		"warn":   gormlogger.Warn,
		"info":   gormlogger.Info,
		"":       gormlogger.Warn,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
