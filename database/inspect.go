package database

import (
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Index describes an index as SQLite reports it.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	// Origin is "c" for CREATE INDEX, "u" for a UNIQUE constraint and "pk"
	// for a primary key.
	Origin string
	// Predicate is the WHERE clause of a partial index, empty otherwise.
	Predicate string
}

// Partial reports whether the index has a WHERE predicate.
func (i Index) Partial() bool {
	return i.Predicate != ""
}

// Inspector reads schema information from a SQLite database.
type Inspector struct {
	db *gorm.DB
}

// NewInspector creates an inspector that queries through db. Pass a
// transaction-bound session to see uncommitted schema changes.
func NewInspector(db *gorm.DB) *Inspector {
	return &Inspector{db: db}
}

// Tables returns the user tables in name order.
func (i *Inspector) Tables() ([]string, error) {
	var tables []string
	err := i.db.Raw("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name").
		Scan(&tables).Error
	return tables, err
}

// HasTable reports whether a table exists.
func (i *Inspector) HasTable(table string) (bool, error) {
	var count int64
	err := i.db.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).
		Scan(&count).Error
	return count > 0, err
}

// CountRows returns the number of rows in a table.
func (i *Inspector) CountRows(table string) (int64, error) {
	var count int64
	err := i.db.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&count).Error
	return count, err
}

type indexListRow struct {
	Seq     int
	Name    string
	Unique  int
	Origin  string
	Partial int
}

type indexInfoRow struct {
	Seqno int
	Cid   int
	Name  sql.NullString
}

// Indexes returns every index on table, including the automatic ones SQLite
// creates for UNIQUE and PRIMARY KEY constraints.
func (i *Inspector) Indexes(table string) ([]Index, error) {
	var list []indexListRow
	if err := i.db.Raw(fmt.Sprintf("PRAGMA index_list(%s)", quoteIdent(table))).Scan(&list).Error; err != nil {
		return nil, fmt.Errorf("index_list %s: %w", table, err)
	}

	indexes := make([]Index, 0, len(list))
	for _, row := range list {
		idx := Index{
			Name:   row.Name,
			Table:  table,
			Unique: row.Unique == 1,
			Origin: row.Origin,
		}

		var info []indexInfoRow
		if err := i.db.Raw(fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent(row.Name))).Scan(&info).Error; err != nil {
			return nil, fmt.Errorf("index_info %s: %w", row.Name, err)
		}
		for _, col := range info {
			idx.Columns = append(idx.Columns, col.Name.String)
		}

		if row.Partial == 1 {
			predicate, err := i.predicate(row.Name)
			if err != nil {
				return nil, err
			}
			idx.Predicate = predicate
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

// Index looks up a single index on table by name.
func (i *Inspector) Index(table, name string) (Index, bool, error) {
	indexes, err := i.Indexes(table)
	if err != nil {
		return Index{}, false, err
	}
	for _, idx := range indexes {
		if idx.Name == name {
			return idx, true, nil
		}
	}
	return Index{}, false, nil
}

func (i *Inspector) predicate(index string) (string, error) {
	var ddl sql.NullString
	if err := i.db.Raw("SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?", index).
		Scan(&ddl).Error; err != nil {
		return "", fmt.Errorf("index ddl %s: %w", index, err)
	}
	return wherePredicate(ddl.String), nil
}

// wherePredicate extracts the text after the last top-level WHERE keyword
// of a CREATE INDEX statement.
func wherePredicate(ddl string) string {
	upper := strings.ToUpper(ddl)
	pos := strings.LastIndex(upper, " WHERE ")
	if pos < 0 {
		return ""
	}
	return strings.TrimSpace(ddl[pos+len(" WHERE "):])
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
