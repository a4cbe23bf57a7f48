package mock

import (
	"context"
	"errors"
	"reflect"
	"sort"

	"gorm.io/gorm/schema"

	"github.com/kbukum/gormock/dag"
	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

// instance is one planned row: a pointer to a model struct and the rows
// whose keys it takes. Rows built from data carry the columns they set;
// rows built from objects insert every column.
type instance struct {
	model   *model
	value   reflect.Value
	links   []link
	seq     int
	columns []string
}

// insertColumns returns the columns a restricted insert writes, or nil
// for an insert of the whole struct. A row that sets no column still
// selects its primary key so the insert stays restricted.
func (i *instance) insertColumns() []string {
	if i.columns == nil {
		return nil
	}
	if len(i.columns) == 0 {
		return i.model.schema.PrimaryFieldDBNames
	}
	return i.columns
}

// explicitZeros returns the set columns holding a zero value on a field
// with a default. GORM writes the default for those, so they are written
// again after the insert.
func (i *instance) explicitZeros(ctx context.Context) []*schema.Field {
	var out []*schema.Field
	for _, name := range i.columns {
		f := i.model.schema.FieldsByDBName[name]
		if f == nil || f.PrimaryKey || !f.HasDefaultValue {
			continue
		}
		if f.DefaultValueInterface != nil && reflect.ValueOf(f.DefaultValueInterface).IsZero() {
			continue
		}
		if _, zero := f.ValueOf(ctx, i.value); zero {
			out = append(out, f)
		}
	}
	return out
}

// link ties a child row to the parent row its foreign key refers to.
type link struct {
	parent *instance
	rel    *schema.Relationship
}

// syncKeys copies the keys of linked parents into the row's foreign key
// columns and returns the columns it changed. Parents without a key yet
// are skipped. A key that does not convert to the foreign key column is a
// validation error.
func (i *instance) syncKeys(ctx context.Context) ([]string, error) {
	var changed []string
	for _, l := range i.links {
		for _, ref := range l.rel.References {
			if ref.ForeignKey == nil {
				continue
			}
			if ref.PrimaryKey == nil {
				if ref.PrimaryValue == "" {
					continue
				}
				if err := ref.ForeignKey.Set(ctx, i.value, ref.PrimaryValue); err != nil {
					return nil, i.keyError(ref.ForeignKey, err)
				}
				continue
			}
			pv, zero := ref.PrimaryKey.ValueOf(ctx, l.parent.value)
			if zero {
				continue
			}
			if cv, _ := ref.ForeignKey.ValueOf(ctx, i.value); sameValue(cv, pv) {
				continue
			}
			if err := ref.ForeignKey.Set(ctx, i.value, pv); err != nil {
				return nil, i.keyError(ref.ForeignKey, err)
			}
			changed = append(changed, ref.ForeignKey.DBName)
		}
	}
	return changed, nil
}

func (i *instance) keyError(f *schema.Field, err error) error {
	return apperrors.InvalidInput(i.model.schema.Table+"."+f.DBName, err.Error()).
		WithCause(err).
		WithDetail("row", i.seq)
}

// sameValue compares two key values, looking through pointers.
func sameValue(a, b any) bool {
	av, bv := reflect.Indirect(reflect.ValueOf(a)), reflect.Indirect(reflect.ValueOf(b))
	if !av.IsValid() || !bv.IsValid() {
		return av.IsValid() == bv.IsValid()
	}
	return reflect.DeepEqual(av.Interface(), bv.Interface())
}

// linkedColumns returns the foreign key columns filled from parents.
func (i *instance) linkedColumns() map[string]bool {
	cols := make(map[string]bool)
	for _, l := range i.links {
		for _, ref := range l.rel.References {
			if ref.ForeignKey != nil {
				cols[ref.ForeignKey.DBName] = true
			}
		}
	}
	return cols
}

type tablePlan struct {
	model *model
	rows  []*instance
}

// Plan is an ordered set of rows ready to insert: parent tables before
// the tables that reference them.
type Plan struct {
	tables []*tablePlan
	cyclic bool
}

// Tables returns the planned tables in insert order.
func (p *Plan) Tables() []string {
	out := make([]string, len(p.tables))
	for i, tp := range p.tables {
		out[i] = tp.model.schema.Table
	}
	return out
}

// Len returns the number of planned rows.
func (p *Plan) Len() int {
	n := 0
	for _, tp := range p.tables {
		n += len(tp.rows)
	}
	return n
}

// Cyclic reports whether the planned tables reference each other in a
// cycle. Cyclic plans load with foreign key checks deferred.
func (p *Plan) Cyclic() bool {
	return p.cyclic
}

func (d *DataInterface) plan(instances []*instance) (*Plan, error) {
	ctx := context.Background()
	byModel := make(map[*model]*tablePlan)
	var tables []*tablePlan
	for _, inst := range instances {
		if err := checkCompositeKey(ctx, inst); err != nil {
			return nil, err
		}
		tp, ok := byModel[inst.model]
		if !ok {
			tp = &tablePlan{model: inst.model}
			byModel[inst.model] = tp
			tables = append(tables, tp)
		}
		tp.rows = append(tp.rows, inst)
	}
	sort.SliceStable(tables, func(a, b int) bool {
		return tables[a].model.order < tables[b].model.order
	})

	ordered, cyclic, err := d.orderTables(tables, byModel)
	if err != nil {
		return nil, err
	}
	for _, tp := range ordered {
		tp.rows = orderRows(tp)
	}
	return &Plan{tables: ordered, cyclic: cyclic}, nil
}

// orderTables sorts tables so that referenced tables come first, keeping
// registration order among tables of the same level. Tables in a
// reference cycle, and the tables depending on them, are appended in
// registration order and the plan is marked cyclic.
func (d *DataInterface) orderTables(tables []*tablePlan, byModel map[*model]*tablePlan) ([]*tablePlan, bool, error) {
	g := &dag.Graph{Nodes: make([]string, len(tables))}
	byName := make(map[string]*tablePlan, len(tables))
	for i, tp := range tables {
		g.Nodes[i] = tp.model.schema.Table
		byName[tp.model.schema.Table] = tp
	}
	addEdge := func(from, to *tablePlan) {
		if from == nil || to == nil || from == to {
			return
		}
		g.Edges = append(g.Edges, dag.Edge{From: from.model.schema.Table, To: to.model.schema.Table})
	}
	for _, tp := range tables {
		rels := tp.model.schema.Relationships
		for _, rel := range rels.BelongsTo {
			addEdge(byModel[d.byType[rel.FieldSchema.ModelType]], tp)
		}
		for _, group := range [][]*schema.Relationship{rels.HasOne, rels.HasMany} {
			for _, rel := range group {
				addEdge(tp, byModel[d.byType[rel.FieldSchema.ModelType]])
			}
		}
	}

	levels, err := dag.BuildLevels(g)
	var cycle *dag.CycleError
	if err != nil && !errors.As(err, &cycle) {
		return nil, false, apperrors.Internal(err)
	}
	ordered := make([]*tablePlan, 0, len(tables))
	for _, level := range levels {
		for _, name := range level {
			ordered = append(ordered, byName[name])
		}
	}
	if cycle == nil {
		return ordered, false, nil
	}
	d.log.Debug("Tables reference each other, foreign key checks deferred",
		logger.Fields(logger.FieldTables, cycle.Remaining))
	for _, name := range cycle.Remaining {
		ordered = append(ordered, byName[name])
	}
	return ordered, true, nil
}

// orderRows puts rows that reference rows of their own table after those
// rows. Rows keep their input order otherwise.
func orderRows(tp *tablePlan) []*instance {
	rows := tp.rows
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].seq < rows[b].seq })

	inTable := make(map[*instance]bool, len(rows))
	for _, r := range rows {
		inTable[r] = true
	}
	out := make([]*instance, 0, len(rows))
	state := make(map[*instance]int, len(rows))
	var visit func(r *instance)
	visit = func(r *instance) {
		if state[r] != 0 {
			return
		}
		state[r] = 1
		for _, l := range r.links {
			if inTable[l.parent] {
				visit(l.parent)
			}
		}
		state[r] = 2
		out = append(out, r)
	}
	for _, r := range rows {
		visit(r)
	}
	return out
}

// checkCompositeKey rejects rows of composite-key tables that leave a key
// column unset and do not take it from a parent.
func checkCompositeKey(ctx context.Context, inst *instance) error {
	pks := inst.model.schema.PrimaryFields
	if len(pks) < 2 {
		return nil
	}
	linked := inst.linkedColumns()
	for _, f := range pks {
		if linked[f.DBName] {
			continue
		}
		if _, zero := f.ValueOf(ctx, inst.value); zero {
			return apperrors.MissingField(inst.model.schema.Table + "." + f.DBName).
				WithDetail("reason", "composite primary key columns must be set")
		}
	}
	return nil
}
