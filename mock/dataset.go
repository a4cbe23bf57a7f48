package mock

import (
	"sort"
)

// Dataset maps table names to rows, each row mapping column names to values.
type Dataset map[string][]map[string]any

// Column is one named value of a canonical row.
type Column struct {
	Name  string
	Value any
}

// Row is a canonical row: the table it belongs to and its columns in a
// fixed order.
type Row struct {
	Table   string
	Columns []Column
}

// Value returns the value of a column.
func (r Row) Value(name string) (any, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// Rows flattens the dataset into canonical rows. Tables named in order come
// first, in that order; the rest follow sorted by name. Columns are sorted
// by name, rows keep their order within a table.
func (ds Dataset) Rows(order []string) []Row {
	seen := make(map[string]bool, len(ds))
	tables := make([]string, 0, len(ds))
	for _, t := range order {
		if _, ok := ds[t]; ok && !seen[t] {
			tables = append(tables, t)
			seen[t] = true
		}
	}
	var rest []string
	for t := range ds {
		if !seen[t] {
			rest = append(rest, t)
		}
	}
	sort.Strings(rest)
	tables = append(tables, rest...)

	var rows []Row
	for _, t := range tables {
		for _, values := range ds[t] {
			rows = append(rows, newRow(t, values))
		}
	}
	return rows
}

func newRow(table string, values map[string]any) Row {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	row := Row{Table: table, Columns: make([]Column, 0, len(names))}
	for _, name := range names {
		row.Columns = append(row.Columns, Column{Name: name, Value: values[name]})
	}
	return row
}
