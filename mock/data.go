package mock

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"reflect"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/kbukum/gormock/database"
	"github.com/kbukum/gormock/database/migration"
	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

type model struct {
	schema *schema.Schema
	typ    reflect.Type
	order  int
}

// DataInterface knows the application's models. It turns mock data into
// insert plans, makes sure the schema exists and loads plans into a store.
type DataInterface struct {
	models     []*model
	byTable    map[string]*model
	byType     map[reflect.Type]*model
	migrations []migration.Source
	steps      []migration.Step
	log        *logger.Logger
}

// DataOption configures a DataInterface.
type DataOption func(*DataInterface)

// WithMigrations applies the SQL migrations in dir of fsys before the model
// tables are created.
func WithMigrations(fsys fs.FS, dir string) DataOption {
	return func(d *DataInterface) {
		d.migrations = append(d.migrations, migration.Source{FS: fsys, Dir: dir})
	}
}

// WithSteps applies programmatic migration steps before the model tables
// are created.
func WithSteps(steps ...migration.Step) DataOption {
	return func(d *DataInterface) {
		d.steps = append(d.steps, steps...)
	}
}

// WithDataLogger sets the logger.
func WithDataLogger(log *logger.Logger) DataOption {
	return func(d *DataInterface) {
		d.log = log
	}
}

// NewDataInterface registers models, each given as a struct value or a
// pointer to one. Their order is the default table order for dataset input.
func NewDataInterface(models []any, opts ...DataOption) (*DataInterface, error) {
	d := &DataInterface{
		byTable: make(map[string]*model, len(models)),
		byType:  make(map[reflect.Type]*model, len(models)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.NewDefault("gormock")
	}
	d.log = d.log.WithComponent("mock.data")

	cache := &sync.Map{}
	for i, m := range models {
		sch, err := schema.Parse(m, cache, database.NamingStrategy)
		if err != nil {
			return nil, apperrors.InvalidInput("models", fmt.Sprintf("cannot parse %T: %v", m, err)).WithCause(err)
		}
		if _, ok := d.byTable[sch.Table]; ok {
			return nil, apperrors.Conflict(fmt.Sprintf("table %q registered twice", sch.Table))
		}
		md := &model{schema: sch, typ: sch.ModelType, order: i}
		d.models = append(d.models, md)
		d.byTable[sch.Table] = md
		d.byType[md.typ] = md
	}
	return d, nil
}

// Tables returns the registered table names in registration order.
func (d *DataInterface) Tables() []string {
	tables := make([]string, len(d.models))
	for i, m := range d.models {
		tables[i] = m.schema.Table
	}
	return tables
}

// Schema returns the parsed schema of a registered table.
func (d *DataInterface) Schema(table string) (*schema.Schema, bool) {
	m, ok := d.byTable[table]
	if !ok {
		return nil, false
	}
	return m.schema, true
}

// FromDataset builds a plan from a dataset. Tables without a registered
// model, unknown columns and values that do not fit their column are
// validation errors.
func (d *DataInterface) FromDataset(ds Dataset) (*Plan, error) {
	return d.FromRows(ds.Rows(d.Tables()))
}

// FromFile builds a plan from a JSON or YAML data file.
func (d *DataInterface) FromFile(path string) (*Plan, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}
	return d.FromRows(rows)
}

// FromRows builds a plan from canonical rows.
func (d *DataInterface) FromRows(rows []Row) (*Plan, error) {
	ctx := context.Background()
	instances := make([]*instance, 0, len(rows))
	for i, r := range rows {
		m, ok := d.byTable[r.Table]
		if !ok {
			return nil, apperrors.InvalidInput("table", fmt.Sprintf("unknown table %q", r.Table))
		}
		rv := reflect.New(m.typ)
		cols := make([]string, 0, len(r.Columns))
		for _, col := range r.Columns {
			f := m.schema.LookUpField(col.Name)
			if f == nil || f.DBName == "" {
				return nil, apperrors.InvalidInput(r.Table+"."+col.Name, fmt.Sprintf("unknown column %q of table %q", col.Name, r.Table))
			}
			if err := assign(ctx, f, rv, col.Value); err != nil {
				return nil, apperrors.InvalidInput(r.Table+"."+col.Name, err.Error()).WithCause(err).WithDetail("row", i)
			}
			// A null on a field that cannot hold nil is left to the column.
			if col.Value == nil && !nilable(f.FieldType) {
				continue
			}
			cols = append(cols, f.DBName)
		}
		instances = append(instances, &instance{model: m, value: rv, seq: i, columns: cols})
	}
	return d.plan(instances)
}

// FromObjects builds a plan from model pointers. Associations that are set
// (belongs-to, has-one and has-many) are followed and their rows planned
// too, each object once however often it is reachable.
func (d *DataInterface) FromObjects(objs []any) (*Plan, error) {
	ctx := context.Background()
	type key struct {
		typ reflect.Type
		ptr uintptr
	}
	seen := make(map[key]*instance)
	var instances []*instance

	var visit func(v reflect.Value, m *model) *instance
	visit = func(v reflect.Value, m *model) *instance {
		k := key{typ: m.typ, ptr: v.Pointer()}
		if inst, ok := seen[k]; ok {
			return inst
		}
		inst := &instance{model: m, value: v, seq: len(instances)}
		seen[k] = inst
		instances = append(instances, inst)
		return inst
	}

	var walk func(inst *instance) error
	walk = func(inst *instance) error {
		rels := inst.model.schema.Relationships
		for _, group := range [][]*schema.Relationship{rels.BelongsTo, rels.HasOne, rels.HasMany} {
			for _, rel := range group {
				targets := associated(rel.Field.ReflectValueOf(ctx, inst.value))
				if len(targets) == 0 {
					continue
				}
				tm, ok := d.byType[rel.FieldSchema.ModelType]
				if !ok {
					return apperrors.InvalidInput(inst.model.schema.Table+"."+rel.Name,
						fmt.Sprintf("association model %s is not registered", rel.FieldSchema.ModelType))
				}
				for _, t := range targets {
					k := key{typ: tm.typ, ptr: t.Pointer()}
					_, known := seen[k]
					other := visit(t, tm)
					if rel.Type == schema.BelongsTo {
						inst.links = append(inst.links, link{parent: other, rel: rel})
					} else {
						other.links = append(other.links, link{parent: inst, rel: rel})
					}
					if !known {
						if err := walk(other); err != nil {
							return err
						}
					}
				}
			}
		}
		if len(rels.Many2Many) > 0 {
			d.log.Debug("Many-to-many associations are not followed", logger.Fields(logger.FieldTable, inst.model.schema.Table))
		}
		return nil
	}

	for _, obj := range objs {
		v := reflect.ValueOf(obj)
		if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return nil, apperrors.InvalidInput("objects", fmt.Sprintf("%T is not a pointer to a model", obj))
		}
		m, ok := d.byType[v.Elem().Type()]
		if !ok {
			return nil, apperrors.InvalidInput("objects", fmt.Sprintf("model %T is not registered", obj))
		}
		k := key{typ: m.typ, ptr: v.Pointer()}
		if _, known := seen[k]; known {
			continue
		}
		if err := walk(visit(v, m)); err != nil {
			return nil, err
		}
	}
	return d.plan(instances)
}

// EnsureSchema applies the configured migrations, then creates every model
// table and index that does not exist yet. Existing tables are left as
// they are, so nested scopes only add what is missing.
func (d *DataInterface) EnsureSchema(ctx context.Context, st Store) error {
	if len(d.migrations) > 0 || len(d.steps) > 0 {
		err := st.Migrate(ctx, func(db *database.DB) error {
			for _, src := range d.migrations {
				if err := migration.Up(db.GormDB, src); err != nil {
					return err
				}
			}
			if len(d.steps) > 0 {
				r := migration.NewRunner(db.GormDB, d.log)
				r.Add(d.steps...)
				return r.Run()
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return st.Exec(ctx, func(db *gorm.DB) error {
		mig := db.Migrator()
		for _, m := range d.models {
			proto := reflect.New(m.typ).Interface()
			if !mig.HasTable(proto) {
				if err := mig.CreateTable(proto); err != nil {
					return fmt.Errorf("create table %s: %w", m.schema.Table, err)
				}
				d.log.Debug("Table created", logger.Fields(logger.FieldTable, m.schema.Table))
				continue
			}
			for _, idx := range m.schema.ParseIndexes() {
				if mig.HasIndex(proto, idx.Name) {
					continue
				}
				if err := mig.CreateIndex(proto, idx.Name); err != nil {
					return fmt.Errorf("create index %s: %w", idx.Name, err)
				}
			}
		}
		return nil
	})
}

// Load inserts the plan's rows in order and returns them. Integrity
// violations are returned as the driver reports them.
func (d *DataInterface) Load(ctx context.Context, st Store, p *Plan) (*Result, error) {
	res := newResult()
	if p == nil || p.Len() == 0 {
		return res, nil
	}
	if p.cyclic {
		err := st.Exec(ctx, func(db *gorm.DB) error {
			return db.Exec("PRAGMA defer_foreign_keys = ON").Error
		})
		if err != nil {
			return nil, err
		}
	}

	for _, tp := range p.tables {
		for _, inst := range tp.rows {
			if _, err := inst.syncKeys(ctx); err != nil {
				return nil, err
			}
			if err := insert(ctx, st, inst); err != nil {
				return nil, err
			}
			res.add(tp.model, inst.value.Interface())
		}
		d.log.Debug("Rows inserted", logger.Fields(logger.FieldTable, tp.model.schema.Table, logger.FieldRows, len(tp.rows)))
	}

	// Rows inserted ahead of their parents get their keys now.
	if p.cyclic {
		for _, tp := range p.tables {
			for _, inst := range tp.rows {
				cols, err := inst.syncKeys(ctx)
				if err != nil {
					return nil, err
				}
				if len(cols) == 0 {
					continue
				}
				row := inst.value.Interface()
				err = st.Exec(ctx, func(db *gorm.DB) error {
					return db.Model(row).Select(cols).Omit(clause.Associations).Updates(row).Error
				})
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return res, nil
}

// insert creates one row. Rows built from data write only the columns
// they set, so the others take their SQL default or NULL.
func insert(ctx context.Context, st Store, inst *instance) error {
	row := inst.value.Interface()
	cols := inst.insertColumns()
	zeros := inst.explicitZeros(ctx)
	return st.Exec(ctx, func(db *gorm.DB) error {
		q := db.Omit(clause.Associations)
		if cols != nil {
			q = q.Select(cols)
		}
		if err := q.Create(row).Error; err != nil {
			return err
		}
		if len(zeros) == 0 {
			return nil
		}
		names := make([]string, len(zeros))
		for i, f := range zeros {
			fv := f.ReflectValueOf(ctx, inst.value)
			fv.Set(reflect.Zero(fv.Type()))
			names[i] = f.DBName
		}
		return db.Model(row).Select(names).Omit(clause.Associations).Updates(row).Error
	})
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// assign sets a column value on the struct rv points to. Values of the
// field's own type are set directly, sql.Scanner fields scan the value and
// everything else goes through the schema's converting setter.
func assign(ctx context.Context, f *schema.Field, rv reflect.Value, value any) error {
	fv := f.ReflectValueOf(ctx, rv)
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(fv.Type()) {
		fv.Set(vv)
		return nil
	}
	if fv.CanAddr() {
		if sc, ok := fv.Addr().Interface().(sql.Scanner); ok {
			return sc.Scan(value)
		}
	}
	if fv.Kind() == reflect.Ptr {
		elem := reflect.New(fv.Type().Elem())
		if sc, ok := elem.Interface().(sql.Scanner); ok {
			if err := sc.Scan(value); err != nil {
				return err
			}
			fv.Set(elem)
			return nil
		}
	}
	return f.Set(ctx, rv, value)
}

// associated returns pointers to the structs an association field holds.
func associated(fv reflect.Value) []reflect.Value {
	switch fv.Kind() {
	case reflect.Ptr:
		if !fv.IsNil() && fv.Elem().Kind() == reflect.Struct {
			return []reflect.Value{fv}
		}
	case reflect.Struct:
		if fv.CanAddr() && !fv.IsZero() {
			return []reflect.Value{fv.Addr()}
		}
	case reflect.Slice:
		out := make([]reflect.Value, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			e := fv.Index(i)
			switch {
			case e.Kind() == reflect.Ptr && !e.IsNil():
				out = append(out, e)
			case e.Kind() == reflect.Struct:
				out = append(out, e.Addr())
			}
		}
		return out
	}
	return nil
}
