package mock

import (
	"context"

	"gorm.io/gorm"
)

// DBMock opens mock scopes on a Provider. Each scope inserts mock rows
// inside a savepoint and discards them when it closes; scopes nest.
//
//	err := m.FromDict(ctx, mock.Dataset{"pet": {{"name": "Milo", "species": "DOG"}}},
//		func(ctx context.Context, r *mock.Result) error {
//			pets, err := petapp.QueryPets(ctx)
//			...
//		})
type DBMock struct {
	conn *Provider
	c    *core
}

// New creates a DBMock that loads data described by data into conn's store.
func New(conn *Provider, data *DataInterface, opts ...Option) *DBMock {
	return &DBMock{conn: conn, c: newCore(&gormStore{p: conn}, data, opts)}
}

// FromDict runs fn inside a scope holding the dataset's rows.
func (m *DBMock) FromDict(ctx context.Context, ds Dataset, fn ScopeFunc) error {
	return m.c.run(ctx, SourceDict, func() (*Plan, error) { return m.c.data.FromDataset(ds) }, fn)
}

// FromORM runs fn inside a scope holding objs and the objects reachable
// through their associations. Generated keys are written back into objs.
func (m *DBMock) FromORM(ctx context.Context, objs []any, fn ScopeFunc) error {
	return m.c.run(ctx, SourceORM, func() (*Plan, error) { return m.c.data.FromObjects(objs) }, fn)
}

// FromFile runs fn inside a scope holding the rows of a JSON or YAML file.
func (m *DBMock) FromFile(ctx context.Context, path string, fn ScopeFunc) error {
	return m.c.run(ctx, SourceFile, func() (*Plan, error) { return m.c.data.FromFile(path) }, fn)
}

// EnterDict opens a scope holding the dataset's rows. The caller closes it.
func (m *DBMock) EnterDict(ctx context.Context, ds Dataset) (*Scope, error) {
	return m.c.enter(ctx, SourceDict, func() (*Plan, error) { return m.c.data.FromDataset(ds) })
}

// EnterORM opens a scope holding objs. The caller closes it.
func (m *DBMock) EnterORM(ctx context.Context, objs []any) (*Scope, error) {
	return m.c.enter(ctx, SourceORM, func() (*Plan, error) { return m.c.data.FromObjects(objs) })
}

// EnterFile opens a scope holding the rows of a data file. The caller
// closes it.
func (m *DBMock) EnterFile(ctx context.Context, path string) (*Scope, error) {
	return m.c.enter(ctx, SourceFile, func() (*Plan, error) { return m.c.data.FromFile(path) })
}

// Provider returns the connection provider.
func (m *DBMock) Provider() *Provider { return m.conn }

// Data returns the data interface.
func (m *DBMock) Data() *DataInterface { return m.c.data }

// Patches returns the patches applied by outermost scopes.
func (m *DBMock) Patches() *Patches { return m.c.patches }

// Events returns the event manager.
func (m *DBMock) Events() *EventManager { return m.c.events }

// Depth returns the number of open scopes.
func (m *DBMock) Depth() int { return m.c.depth() }

// Session returns a session on the store the scopes load into.
func (m *DBMock) Session(ctx context.Context) (*gorm.DB, error) {
	return m.conn.Session(ctx)
}

// Close disposes of the store.
func (m *DBMock) Close() error {
	return m.conn.Reset(context.Background())
}

// AsyncDBMock is DBMock over an AsyncProvider: every store operation of the
// scope algorithm runs on the provider's owner goroutine, and callers stop
// waiting when their context ends. Scope teardown always runs to
// completion.
type AsyncDBMock struct {
	conn *AsyncProvider
	c    *core
}

// NewAsync creates an AsyncDBMock.
func NewAsync(conn *AsyncProvider, data *DataInterface, opts ...Option) *AsyncDBMock {
	return &AsyncDBMock{conn: conn, c: newCore(newAsyncStore(conn), data, opts)}
}

// FromDict runs fn inside a scope holding the dataset's rows.
func (m *AsyncDBMock) FromDict(ctx context.Context, ds Dataset, fn ScopeFunc) error {
	return m.c.run(ctx, SourceDict, func() (*Plan, error) { return m.c.data.FromDataset(ds) }, fn)
}

// FromORM runs fn inside a scope holding objs and the objects reachable
// through their associations.
func (m *AsyncDBMock) FromORM(ctx context.Context, objs []any, fn ScopeFunc) error {
	return m.c.run(ctx, SourceORM, func() (*Plan, error) { return m.c.data.FromObjects(objs) }, fn)
}

// FromFile runs fn inside a scope holding the rows of a data file.
func (m *AsyncDBMock) FromFile(ctx context.Context, path string, fn ScopeFunc) error {
	return m.c.run(ctx, SourceFile, func() (*Plan, error) { return m.c.data.FromFile(path) }, fn)
}

// EnterDict opens a scope holding the dataset's rows.
func (m *AsyncDBMock) EnterDict(ctx context.Context, ds Dataset) (*Scope, error) {
	return m.c.enter(ctx, SourceDict, func() (*Plan, error) { return m.c.data.FromDataset(ds) })
}

// EnterORM opens a scope holding objs.
func (m *AsyncDBMock) EnterORM(ctx context.Context, objs []any) (*Scope, error) {
	return m.c.enter(ctx, SourceORM, func() (*Plan, error) { return m.c.data.FromObjects(objs) })
}

// EnterFile opens a scope holding the rows of a data file.
func (m *AsyncDBMock) EnterFile(ctx context.Context, path string) (*Scope, error) {
	return m.c.enter(ctx, SourceFile, func() (*Plan, error) { return m.c.data.FromFile(path) })
}

// Provider returns the connection provider.
func (m *AsyncDBMock) Provider() *AsyncProvider { return m.conn }

// Data returns the data interface.
func (m *AsyncDBMock) Data() *DataInterface { return m.c.data }

// Patches returns the patches applied by outermost scopes.
func (m *AsyncDBMock) Patches() *Patches { return m.c.patches }

// Events returns the event manager.
func (m *AsyncDBMock) Events() *EventManager { return m.c.events }

// Depth returns the number of open scopes.
func (m *AsyncDBMock) Depth() int { return m.c.depth() }

// Session returns a session on the store the scopes load into.
func (m *AsyncDBMock) Session(ctx context.Context) (*gorm.DB, error) {
	return m.conn.Session(ctx)
}

// Close disposes of the store and stops the provider's owner goroutine.
func (m *AsyncDBMock) Close() error {
	return m.conn.Close()
}

// Scoper opens caller-managed scopes. DBMock and AsyncDBMock implement it.
type Scoper interface {
	EnterDict(ctx context.Context, ds Dataset) (*Scope, error)
	EnterORM(ctx context.Context, objs []any) (*Scope, error)
	EnterFile(ctx context.Context, path string) (*Scope, error)
}

// Mock is the API DBMock and AsyncDBMock share.
type Mock interface {
	Scoper
	FromDict(ctx context.Context, ds Dataset, fn ScopeFunc) error
	FromORM(ctx context.Context, objs []any, fn ScopeFunc) error
	FromFile(ctx context.Context, path string, fn ScopeFunc) error
	Session(ctx context.Context) (*gorm.DB, error)
	Data() *DataInterface
	Patches() *Patches
	Events() *EventManager
	Depth() int
	Close() error
}

var (
	_ Mock = (*DBMock)(nil)
	_ Mock = (*AsyncDBMock)(nil)
)
