package mock

import (
	"reflect"
)

// Result holds the rows a scope inserted, keyed by table name and by model
// type. Both views share the same pointers, so keys generated on insert
// are visible through either.
type Result struct {
	tables map[string][]any
	models map[reflect.Type][]any
	order  []string
}

func newResult() *Result {
	return &Result{
		tables: make(map[string][]any),
		models: make(map[reflect.Type][]any),
	}
}

func (r *Result) add(m *model, row any) {
	if _, ok := r.tables[m.schema.Table]; !ok {
		r.order = append(r.order, m.schema.Table)
	}
	r.tables[m.schema.Table] = append(r.tables[m.schema.Table], row)
	r.models[m.typ] = append(r.models[m.typ], row)
}

// Table returns the inserted rows of a table as model pointers.
func (r *Result) Table(name string) []any {
	return r.tables[name]
}

// Model returns the inserted rows of the prototype's model type. Both
// Human{} and &Human{} select the same rows.
func (r *Result) Model(prototype any) []any {
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return r.models[t]
}

// Tables returns the tables that received rows, in insert order.
func (r *Result) Tables() []string {
	return append([]string(nil), r.order...)
}

// Len returns the total number of inserted rows.
func (r *Result) Len() int {
	n := 0
	for _, rows := range r.tables {
		n += len(rows)
	}
	return n
}

// Rows returns the inserted rows of model type T.
//
//	pets := mock.Rows[petapp.Pet](r)
func Rows[T any](r *Result) []*T {
	if r == nil {
		return nil
	}
	rows := r.models[reflect.TypeOf((*T)(nil)).Elem()]
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.(*T); ok {
			out = append(out, v)
		}
	}
	return out
}

// First returns the first inserted row of model type T, or nil.
func First[T any](r *Result) *T {
	rows := Rows[T](r)
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}
