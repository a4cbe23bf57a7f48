package mock_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
	"github.com/kbukum/gormock/mock"
	"github.com/kbukum/gormock/sample/petapp"
)

type employee struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	ManagerID *uint
	Manager   *employee
}

type author struct {
	ID             uint `gorm:"primaryKey"`
	Name           string
	FavoriteBookID *uint
	FavoriteBook   *book
}

type book struct {
	ID       uint `gorm:"primaryKey"`
	Title    string
	AuthorID uint `gorm:"not null"`
	Author   *author
}

type holder struct {
	ID uint `gorm:"primaryKey"`
}

type badge struct {
	ID       uint `gorm:"primaryKey"`
	HolderID sql.NullInt32
	Holder   *holder
}

func TestParentKeyThatDoesNotFitIsValidationError(t *testing.T) {
	ctx := context.Background()
	m := mock.New(newProvider(t), newData(t, []any{&holder{}, &badge{}}), mock.WithLogger(logger.Nop()))
	t.Cleanup(func() { _ = m.Close() })

	small := &badge{Holder: &holder{ID: 12}}
	err := m.FromORM(ctx, []any{small}, func(context.Context, *mock.Result) error {
		if !small.HolderID.Valid || small.HolderID.Int32 != 12 {
			t.Errorf("HolderID = %+v, want 12", small.HolderID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FromORM() failed: %v", err)
	}

	large := &badge{Holder: &holder{ID: 1 << 40}}
	err = m.FromORM(ctx, []any{large}, func(context.Context, *mock.Result) error {
		t.Error("body ran although the holder key does not fit")
		return nil
	})
	if !errors.Is(err, mock.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if appErr, ok := apperrors.AsAppError(err); !ok || appErr.Details["field"] != "badge.holder_id" {
		t.Errorf("error should name badge.holder_id, got %v", err)
	}
	if m.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", m.Depth())
	}
}

func TestDatasetRowsOrder(t *testing.T) {
	ds := mock.Dataset{
		"zebra": {{"b": 2, "a": 1}},
		"pet":   {{"name": "Milo"}, {"name": "Luna"}},
		"apple": {{"x": 1}},
		"human": {{"name": "John"}},
	}
	rows := ds.Rows([]string{"human", "pet", "missing"})

	var tables []string
	for _, r := range rows {
		tables = append(tables, r.Table)
	}
	want := []string{"human", "pet", "pet", "apple", "zebra"}
	if !equalLog(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}
	if v, _ := rows[2].Value("name"); v != "Luna" {
		t.Errorf("row order within table not kept, got %v", v)
	}
	last := rows[len(rows)-1]
	if last.Columns[0].Name != "a" || last.Columns[1].Name != "b" {
		t.Errorf("columns = %+v, want sorted", last.Columns)
	}
}

func TestParseRows(t *testing.T) {
	rows, err := mock.ParseRows([]byte("pet:\n  - species: DOG\n    name: Milo\nhuman:\n  - name: John\n    nickname: null\nempty: null\n"))
	if err != nil {
		t.Fatalf("ParseRows() failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Table != "pet" || rows[1].Table != "human" {
		t.Fatalf("rows = %+v, want pet then human", rows)
	}
	if rows[0].Columns[0].Name != "species" {
		t.Errorf("columns should keep document order, got %+v", rows[0].Columns)
	}
	if v, ok := rows[1].Value("nickname"); !ok || v != nil {
		t.Errorf("nickname = %v (%v), want explicit null", v, ok)
	}

	for _, doc := range []string{"", "   \n", "null"} {
		rows, err := mock.ParseRows([]byte(doc))
		if err != nil || len(rows) != 0 {
			t.Errorf("ParseRows(%q) = %v, %v, want no rows", doc, rows, err)
		}
	}

	for _, doc := range []string{
		"[1, 2]",
		"pet: {name: Milo}",
		"pet: [Milo]",
		"pet:\n  - name: [a, b]",
		"pet: [",
	} {
		_, err := mock.ParseRows([]byte(doc))
		if !errors.Is(err, mock.ErrValidation) {
			t.Errorf("ParseRows(%q) = %v, want ErrValidation", doc, err)
		}
	}
}

func TestPlanOrdersParentsFirst(t *testing.T) {
	data := newData(t, []any{&petapp.Soulmates{}, &petapp.Pet{}, &petapp.Human{}})

	plan, err := data.FromDataset(mock.Dataset{
		"soulmates": {{"human_id": 1, "pet_id": 1}},
		"pet":       {{"id": 1, "name": "Milo", "species": "DOG"}},
		"human":     {{"id": 1, "name": "John"}},
	})
	if err != nil {
		t.Fatalf("FromDataset() failed: %v", err)
	}
	got := plan.Tables()
	if len(got) != 3 || got[2] != "soulmates" {
		t.Errorf("Tables() = %v, want soulmates last", got)
	}
	if got[0] != "pet" || got[1] != "human" {
		t.Errorf("Tables() = %v, want registration order among parents", got)
	}
	if plan.Cyclic() || plan.Len() != 3 {
		t.Errorf("Cyclic() = %v, Len() = %d", plan.Cyclic(), plan.Len())
	}
}

func TestNewDataInterfaceRejectsDuplicates(t *testing.T) {
	_, err := mock.NewDataInterface([]any{&petapp.Human{}, petapp.Human{}}, mock.WithDataLogger(logger.Nop()))
	if !apperrors.HasCode(err, apperrors.ErrCodeConflict) {
		t.Errorf("got %v, want CONFLICT", err)
	}
	data := newData(t, petapp.Models())
	if got := data.Tables(); !equalLog(got, []string{"human", "pet", "soulmates"}) {
		t.Errorf("Tables() = %v", got)
	}
	if sch, ok := data.Schema("pet"); !ok || sch.LookUpField("species") == nil {
		t.Error("Schema(pet) should expose the species field")
	}
}

func TestSelfReferenceLoadsParentRowFirst(t *testing.T) {
	ctx := context.Background()
	m := mock.New(newProvider(t), newData(t, []any{&employee{}}), mock.WithLogger(logger.Nop()))
	t.Cleanup(func() { _ = m.Close() })

	boss := &employee{Name: "Boss"}
	worker := &employee{Name: "Worker", Manager: boss}
	err := m.FromORM(ctx, []any{worker}, func(ctx context.Context, r *mock.Result) error {
		rows := mock.Rows[employee](r)
		if len(rows) != 2 || rows[0] != boss {
			t.Errorf("rows = %+v, want boss inserted first", rows)
		}
		if worker.ManagerID == nil || *worker.ManagerID != boss.ID {
			t.Errorf("ManagerID = %v, want %d", worker.ManagerID, boss.ID)
		}

		db, err := m.Session(ctx)
		if err != nil {
			return err
		}
		var stored employee
		if err := db.Preload("Manager").First(&stored, worker.ID).Error; err != nil {
			return err
		}
		if stored.Manager == nil || stored.Manager.Name != "Boss" {
			t.Errorf("stored manager = %+v, want Boss", stored.Manager)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FromORM() failed: %v", err)
	}
}

func TestCyclicTablesLoadWithDeferredKeys(t *testing.T) {
	ctx := context.Background()
	data := newData(t, []any{&author{}, &book{}})
	m := mock.New(newProvider(t), data, mock.WithLogger(logger.Nop()))
	t.Cleanup(func() { _ = m.Close() })

	a := &author{Name: "Ann"}
	b := &book{Title: "Notes", Author: a}
	a.FavoriteBook = b

	plan, err := data.FromObjects([]any{a})
	if err != nil {
		t.Fatalf("FromObjects() failed: %v", err)
	}
	if !plan.Cyclic() {
		t.Error("author and book reference each other, plan should be cyclic")
	}

	err = m.FromORM(ctx, []any{a}, func(ctx context.Context, r *mock.Result) error {
		if b.AuthorID == 0 || b.AuthorID != a.ID {
			t.Errorf("AuthorID = %d, want %d", b.AuthorID, a.ID)
		}
		if a.FavoriteBookID == nil || *a.FavoriteBookID != b.ID {
			t.Errorf("FavoriteBookID = %v, want %d", a.FavoriteBookID, b.ID)
		}

		db, err := m.Session(ctx)
		if err != nil {
			return err
		}
		var stored author
		if err := db.First(&stored, a.ID).Error; err != nil {
			return err
		}
		if stored.FavoriteBookID == nil || *stored.FavoriteBookID != b.ID {
			t.Errorf("stored FavoriteBookID = %v, want %d", stored.FavoriteBookID, b.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FromORM() failed: %v", err)
	}
}

func TestEnum(t *testing.T) {
	for _, in := range []any{"DOG", "dog", []byte("dog"), petapp.Dog} {
		got, err := petapp.ParseSpecies(in)
		if err != nil || got != petapp.Dog {
			t.Errorf("ParseSpecies(%v) = %q, %v, want dog", in, got, err)
		}
	}

	_, err := petapp.ParseSpecies("doggy")
	if !errors.Is(err, mock.ErrValidation) {
		t.Errorf("ParseSpecies(doggy) = %v, want ErrValidation", err)
	}
	if appErr, ok := apperrors.AsAppError(err); !ok || appErr.Details["allowed"] == nil {
		t.Errorf("error should list allowed values, got %v", err)
	}
	if _, err := petapp.ParseSpecies(3); !errors.Is(err, mock.ErrValidation) {
		t.Errorf("ParseSpecies(3) = %v, want ErrValidation", err)
	}

	e := mock.NewEnum("species", map[string]petapp.Species{"DOG": petapp.Dog, "CAT": petapp.Cat})
	if got := e.Check("species"); got != "species IN ('cat','dog')" {
		t.Errorf("Check() = %q", got)
	}
}
