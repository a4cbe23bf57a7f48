package mock_test

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/kbukum/gormock/database"
	"github.com/kbukum/gormock/database/migration"
	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
	"github.com/kbukum/gormock/mock"
	"github.com/kbukum/gormock/sample/petapp"
	"github.com/kbukum/gormock/sample/shop"
)

func newShopMock(t *testing.T, opts ...mock.DataOption) *mock.DBMock {
	t.Helper()
	m := mock.New(newProvider(t), newData(t, shop.Models(), opts...), mock.WithLogger(logger.Nop()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func inspector(t *testing.T, m mock.Mock, ctx context.Context) *database.Inspector {
	t.Helper()
	db, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	return database.NewInspector(db)
}

func TestIndexesCreated(t *testing.T) {
	ctx := context.Background()
	m := newShopMock(t)

	err := m.FromDict(ctx, mock.Dataset{}, func(ctx context.Context, _ *mock.Result) error {
		insp := inspector(t, m, ctx)

		tests := []struct {
			table, name string
			columns     []string
			unique      bool
			predicate   string
		}{
			{"user", "idx_username", []string{"username"}, false, ""},
			{"user", "uq_username_email", []string{"username", "email"}, true, ""},
			{"user", "idx_active_users", []string{"active"}, false, "active = true"},
			{"product", "idx_product_name", []string{"name"}, false, ""},
			{"product", "idx_active_products", []string{"name", "price"}, false, "archived = false"},
		}
		for _, tt := range tests {
			idx, found, err := insp.Index(tt.table, tt.name)
			if err != nil {
				return err
			}
			if !found {
				t.Errorf("index %s on %s missing", tt.name, tt.table)
				continue
			}
			if !equalLog(idx.Columns, tt.columns) {
				t.Errorf("%s columns = %v, want %v", tt.name, idx.Columns, tt.columns)
			}
			if idx.Unique != tt.unique {
				t.Errorf("%s unique = %v, want %v", tt.name, idx.Unique, tt.unique)
			}
			if idx.Partial() != (tt.predicate != "") || !strings.Contains(idx.Predicate, tt.predicate) {
				t.Errorf("%s predicate = %q, want %q", tt.name, idx.Predicate, tt.predicate)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FromDict() failed: %v", err)
	}
}

func TestEnsureSchemaAddsMissingIndex(t *testing.T) {
	ctx := context.Background()
	m := newShopMock(t)

	db, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("Session() failed: %v", err)
	}
	if err := db.Migrator().CreateTable(&shop.User{}); err != nil {
		t.Fatalf("CreateTable() failed: %v", err)
	}
	if err := db.Migrator().DropIndex(&shop.User{}, "idx_username"); err != nil {
		t.Fatalf("DropIndex() failed: %v", err)
	}

	err = m.FromDict(ctx, mock.Dataset{}, func(ctx context.Context, _ *mock.Result) error {
		_, found, err := inspector(t, m, ctx).Index("user", "idx_username")
		if err != nil {
			return err
		}
		if !found {
			t.Error("idx_username should be recreated")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FromDict() failed: %v", err)
	}
}

func countIndex(indexes []database.Index, name string) int {
	n := 0
	for _, idx := range indexes {
		if idx.Name == name {
			n++
		}
	}
	return n
}

func TestIndexesStableAcrossNestedLoads(t *testing.T) {
	ctx := context.Background()
	m := newShopMock(t)

	outer := mock.Dataset{"user": {
		{"id": 1, "email": "a@example.com", "username": "a", "active": true},
		{"id": 2, "email": "b@example.com", "username": "b", "active": false},
	}}
	inner := mock.Dataset{"user": {
		{"id": 3, "email": "c@example.com", "username": "c", "active": true},
	}}

	err := m.FromDict(ctx, outer, func(ctx context.Context, _ *mock.Result) error {
		before, err := inspector(t, m, ctx).Indexes("user")
		if err != nil {
			return err
		}
		if n := countIndex(before, "idx_active_users"); n != 1 {
			t.Fatalf("idx_active_users count = %d, want 1", n)
		}

		err = m.FromDict(ctx, inner, func(ctx context.Context, _ *mock.Result) error {
			insp := inspector(t, m, ctx)
			after, err := insp.Indexes("user")
			if err != nil {
				return err
			}
			if !reflect.DeepEqual(after, before) {
				t.Errorf("nested Indexes() = %+v, want %+v", after, before)
			}
			if n := countIndex(after, "idx_active_users"); n != 1 {
				t.Errorf("nested idx_active_users count = %d, want 1", n)
			}
			idx, found, err := insp.Index("user", "idx_active_users")
			if err != nil {
				return err
			}
			if !found || !idx.Partial() || !strings.Contains(idx.Predicate, "active = true") {
				t.Errorf("idx_active_users = %+v, want partial on active = true", idx)
			}
			rows, err := insp.CountRows("user")
			if err != nil {
				return err
			}
			if rows != 3 {
				t.Errorf("nested user rows = %d, want 3", rows)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("FromDict() failed: %v", err)
		}

		after, err := inspector(t, m, ctx).Indexes("user")
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(after, before) {
			t.Errorf("Indexes() after nested scope = %+v, want %+v", after, before)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FromDict() failed: %v", err)
	}
}

// handleStore drives a provider handle directly, without a scope.
type handleStore struct {
	p *mock.Provider
}

func (s handleStore) Acquire(ctx context.Context) error {
	_, err := s.p.Handle(ctx)
	return err
}

func (s handleStore) Exec(ctx context.Context, fn func(db *gorm.DB) error) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return fn(h.Session(ctx))
}

func (s handleStore) Migrate(ctx context.Context, fn func(db *database.DB) error) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return fn(h.DB())
}

func (s handleStore) Begin(ctx context.Context) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return h.Begin(ctx)
}

func (s handleStore) Savepoint(ctx context.Context, name string) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return h.Savepoint(ctx, name)
}

func (s handleStore) RollbackTo(ctx context.Context, name string) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return h.RollbackTo(ctx, name)
}

func (s handleStore) Rollback(ctx context.Context) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return h.Rollback(ctx)
}

func (s handleStore) Reset(ctx context.Context) error {
	return s.p.Reset(ctx)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	t.Cleanup(func() { _ = p.Reset(ctx) })
	data := newData(t, shop.Models())
	st := handleStore{p: p}

	indexes := func() map[string][]database.Index {
		t.Helper()
		db, err := p.Session(ctx)
		if err != nil {
			t.Fatalf("Session() failed: %v", err)
		}
		insp := database.NewInspector(db)
		out := make(map[string][]database.Index)
		for _, table := range []string{"user", "product", "orders", "order_item"} {
			list, err := insp.Indexes(table)
			if err != nil {
				t.Fatalf("Indexes(%q) failed: %v", table, err)
			}
			out[table] = list
		}
		return out
	}

	if err := data.EnsureSchema(ctx, st); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	first := indexes()
	if n := countIndex(first["user"], "idx_active_users"); n != 1 {
		t.Fatalf("idx_active_users count = %d, want 1", n)
	}

	if err := data.EnsureSchema(ctx, st); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	second := indexes()
	if !reflect.DeepEqual(second, first) {
		t.Fatalf("second EnsureSchema() indexes = %+v, want %+v", second, first)
	}
}

func TestCompositePrimaryKey(t *testing.T) {
	ctx := context.Background()
	m := newShopMock(t)

	parents := mock.Dataset{
		"user":   {{"id": 1, "email": "a@example.com", "username": "a"}},
		"orders": {{"id": 1, "user_id": 1}},
	}

	t.Run("duplicate key", func(t *testing.T) {
		ds := mock.Dataset{
			"user":       parents["user"],
			"orders":     parents["orders"],
			"order_item": {{"order_id": 1, "item_id": 1, "quantity": 1, "price": 2.5}, {"order_id": 1, "item_id": 1, "quantity": 2, "price": 2.5}},
		}
		err := m.FromDict(ctx, ds, nil)
		if !database.IsUniqueViolation(err) {
			t.Errorf("got %v, want unique violation", err)
		}
	})

	t.Run("missing key column", func(t *testing.T) {
		ds := mock.Dataset{"order_item": {{"order_id": 1, "quantity": 1, "price": 2.5}}}
		err := m.FromDict(ctx, ds, nil)
		if !errors.Is(err, mock.ErrValidation) || !apperrors.HasCode(err, apperrors.ErrCodeMissingField) {
			t.Errorf("got %v, want MISSING_FIELD", err)
		}
	})

	t.Run("key from parent", func(t *testing.T) {
		order := &shop.Order{
			User:  &shop.User{Email: "b@example.com", Username: "b"},
			Items: []shop.OrderItem{{ItemID: 1, Quantity: 1, Price: 1}, {ItemID: 2, Quantity: 3, Price: 2}},
		}
		err := m.FromORM(ctx, []any{order}, func(ctx context.Context, r *mock.Result) error {
			items := mock.Rows[shop.OrderItem](r)
			if len(items) != 2 {
				t.Fatalf("items = %d, want 2", len(items))
			}
			for _, it := range items {
				if it.OrderID != order.ID || it.OrderID == 0 {
					t.Errorf("OrderID = %d, want %d", it.OrderID, order.ID)
				}
			}
			if order.UserID == 0 || order.UserID != order.User.ID {
				t.Errorf("UserID = %d, want %d", order.UserID, order.User.ID)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("FromORM() failed: %v", err)
		}
	})

	t.Run("missing key in objects", func(t *testing.T) {
		err := m.FromORM(ctx, []any{&shop.OrderItem{OrderID: 1, Quantity: 1}}, nil)
		if !apperrors.HasCode(err, apperrors.ErrCodeMissingField) {
			t.Errorf("got %v, want MISSING_FIELD", err)
		}
	})
}

func TestCompositeUniqueIndex(t *testing.T) {
	ctx := context.Background()
	m := newShopMock(t)

	ds := mock.Dataset{"user": {
		{"email": "a@example.com", "username": "a"},
		{"email": "a@example.com", "username": "a"},
	}}
	err := m.FromDict(ctx, ds, nil)
	if !database.IsUniqueViolation(err) {
		t.Fatalf("got %v, want unique violation", err)
	}

	ds = mock.Dataset{"user": {
		{"email": "a@example.com", "username": "a"},
		{"email": "b@example.com", "username": "a"},
	}}
	if err := m.FromDict(ctx, ds, nil); err != nil {
		t.Errorf("distinct (username, email) pairs should load: %v", err)
	}
}

func TestMigrationSourcedSchema(t *testing.T) {
	ctx := context.Background()
	step := migration.Step{
		ID:          "0001_species_lookup",
		Description: "species lookup table",
		Up: func(db *gorm.DB) error {
			if err := db.Exec("CREATE TABLE species_lookup (value TEXT PRIMARY KEY)").Error; err != nil {
				return err
			}
			return db.Exec("INSERT INTO species_lookup (value) VALUES ('dog'), ('cat')").Error
		},
	}
	data := newData(t, petapp.Models(),
		mock.WithMigrations(os.DirFS("testdata/migrations"), "."),
		mock.WithSteps(step),
	)
	m := mock.New(newProvider(t), data, mock.WithLogger(logger.Nop()))
	t.Cleanup(func() { _ = m.Close() })

	err := m.FromDict(ctx, mock.Dataset{"pet": {{"name": "Milo", "species": "DOG"}}}, func(ctx context.Context, _ *mock.Result) error {
		insp := inspector(t, m, ctx)
		for _, table := range []string{"adoption_log", "species_lookup", "pet"} {
			ok, err := insp.HasTable(table)
			if err != nil {
				return err
			}
			if !ok {
				t.Errorf("table %s missing", table)
			}
		}
		n, err := insp.CountRows("species_lookup")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("species_lookup rows = %d, want 2", n)
		}

		return m.FromDict(ctx, mock.Dataset{"pet": {{"name": "Luna", "species": "CAT"}}}, func(ctx context.Context, _ *mock.Result) error {
			n, err := inspector(t, m, ctx).CountRows("pet")
			if err != nil {
				return err
			}
			if n != 2 {
				t.Errorf("pets in nested scope = %d, want 2", n)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("FromDict() failed: %v", err)
	}
}
