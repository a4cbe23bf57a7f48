package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kbukum/gormock/component"
	"github.com/kbukum/gormock/database"
	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
	"github.com/kbukum/gormock/testutil"
)

var (
	_ component.Component    = (*Provider)(nil)
	_ component.Describable  = (*Provider)(nil)
	_ testutil.TestComponent = (*Provider)(nil)
)

// Handle is a live ephemeral store: the engine, its backing file and the
// outer transaction a mock scope holds open.
type Handle struct {
	db *database.DB

	mu         sync.Mutex
	tx         *gorm.DB
	savepoints []string
}

// DB returns the engine.
func (h *Handle) DB() *database.DB {
	return h.db
}

// Path returns the backing database file.
func (h *Handle) Path() string {
	return h.db.Path()
}

// InTransaction reports whether an outer transaction is open.
func (h *Handle) InTransaction() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tx != nil
}

// Session returns a new GORM session bound to ctx. While an outer
// transaction is open the session runs inside it, so it sees mock rows.
func (h *Handle) Session(ctx context.Context) *gorm.DB {
	h.mu.Lock()
	base := h.db.GormDB
	if h.tx != nil {
		base = h.tx
	}
	h.mu.Unlock()
	return base.Session(&gorm.Session{NewDB: true, Context: ctx})
}

// Begin opens the outer transaction. The transaction is detached from ctx
// cancellation: database/sql would otherwise roll it back underneath the
// scope as soon as a test's context ends.
func (h *Handle) Begin(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx != nil {
		return apperrors.IllegalState("outer transaction already open")
	}
	tx := h.db.GormDB.WithContext(context.WithoutCancel(ctx)).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin outer transaction: %w", tx.Error)
	}
	h.tx = tx
	return nil
}

// Savepoint places a named savepoint inside the outer transaction.
func (h *Handle) Savepoint(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx == nil {
		return apperrors.IllegalState("savepoint requires an open transaction")
	}
	if err := h.tx.WithContext(ctx).SavePoint(name).Error; err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	h.savepoints = append(h.savepoints, name)
	return nil
}

// RollbackTo rolls back to the named savepoint and releases it, discarding
// every savepoint placed after it.
func (h *Handle) RollbackTo(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx == nil {
		return apperrors.IllegalState("rollback requires an open transaction")
	}
	pos := -1
	for i := len(h.savepoints) - 1; i >= 0; i-- {
		if h.savepoints[i] == name {
			pos = i
			break
		}
	}
	if pos < 0 {
		return apperrors.NotFound("savepoint", name)
	}
	if err := h.tx.WithContext(ctx).RollbackTo(name).Error; err != nil {
		return fmt.Errorf("rollback to %s: %w", name, err)
	}
	if err := h.tx.WithContext(ctx).Exec("RELEASE SAVEPOINT " + name).Error; err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	h.savepoints = h.savepoints[:pos]
	return nil
}

// Rollback rolls back the outer transaction. Without one it is a no-op.
func (h *Handle) Rollback(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx == nil {
		return nil
	}
	err := h.tx.Rollback().Error
	h.tx = nil
	h.savepoints = nil
	if err != nil {
		return fmt.Errorf("rollback outer transaction: %w", err)
	}
	return nil
}

// Provider lazily creates one ephemeral store and hands out sessions on it
// until Reset disposes of it.
type Provider struct {
	cfg  database.Config
	log  *logger.Logger
	name string

	mu         sync.Mutex
	handle     *Handle
	generation int
}

// NewProvider creates a provider. No store exists until the first Handle call.
func NewProvider(cfg database.Config, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.NewDefault("gormock")
	}
	return &Provider{
		cfg:  cfg,
		log:  log.WithComponent("mock.provider"),
		name: "gormock-provider",
	}
}

// Handle returns the live store, creating it on first use.
func (p *Provider) Handle(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handleLocked(ctx)
}

func (p *Provider) handleLocked(ctx context.Context) (*Handle, error) {
	if p.handle != nil {
		return p.handle, nil
	}
	db, err := database.Open(ctx, p.cfg, p.log)
	if err != nil {
		p.log.Error("Ephemeral store provisioning failed", logger.ErrorFields("open", err))
		return nil, err
	}
	p.handle = &Handle{db: db}
	p.generation++
	p.log.Debug("Ephemeral store created", map[string]interface{}{
		logger.FieldPath: db.Path(),
		"generation":     p.generation,
	})
	return p.handle, nil
}

func (p *Provider) current() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// Session returns a fresh session on the live store.
func (p *Provider) Session(ctx context.Context) (*gorm.DB, error) {
	h, err := p.Handle(ctx)
	if err != nil {
		return nil, err
	}
	return h.Session(ctx), nil
}

// Generation counts the stores this provider has created.
func (p *Provider) Generation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Reset disposes of the live store: an open transaction is rolled back,
// the pool closed and the backing directory removed. The next Handle call
// creates a new store. Reset without a store is a no-op.
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.handle
	if h == nil {
		return nil
	}
	p.handle = nil

	rbErr := h.Rollback(ctx)
	if err := h.db.Close(); err != nil {
		return apperrors.Provisioning("dispose", err).WithDetail("path", h.db.Path())
	}
	if rbErr != nil {
		p.log.Debug("Rollback during reset failed", logger.ErrorFields("reset", rbErr))
	}
	p.log.Debug("Ephemeral store reset", map[string]interface{}{logger.FieldPath: h.db.Path()})
	return nil
}

// Name returns the component name.
func (p *Provider) Name() string {
	return p.name
}

// Start creates the store eagerly.
func (p *Provider) Start(ctx context.Context) error {
	_, err := p.Handle(ctx)
	return err
}

// Stop disposes of the store.
func (p *Provider) Stop(ctx context.Context) error {
	return p.Reset(ctx)
}

// Health pings the live store. A provider without a store is healthy: one
// is created on demand.
func (p *Provider) Health(ctx context.Context) component.Health {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()

	if h == nil {
		return component.Health{Name: p.name, Status: component.StatusHealthy, Message: "idle"}
	}
	if err := h.db.PingContext(ctx); err != nil {
		return component.Health{Name: p.name, Status: component.StatusUnhealthy, Message: err.Error()}
	}
	return component.Health{Name: p.name, Status: component.StatusHealthy}
}

// Describe reports the backing file of the live store.
func (p *Provider) Describe() component.Description {
	p.mu.Lock()
	defer p.mu.Unlock()
	details := "no store"
	if p.handle != nil {
		details = p.handle.Path()
	}
	return component.Description{Type: "sqlite", Details: details}
}

// Snapshot opens the outer transaction if needed and places a savepoint.
// The returned marker is accepted by Restore.
func (p *Provider) Snapshot(ctx context.Context) (interface{}, error) {
	h, err := p.Handle(ctx)
	if err != nil {
		return nil, err
	}
	if !h.InTransaction() {
		if err := h.Begin(ctx); err != nil {
			return nil, err
		}
	}
	name := savepointName("snapshot")
	if err := h.Savepoint(ctx, name); err != nil {
		return nil, err
	}
	return name, nil
}

// Restore rolls back to a marker returned by Snapshot.
func (p *Provider) Restore(ctx context.Context, snapshot interface{}) error {
	name, ok := snapshot.(string)
	if !ok {
		return apperrors.InvalidInput("snapshot", fmt.Sprintf("unexpected snapshot type %T", snapshot))
	}
	h, err := p.Handle(ctx)
	if err != nil {
		return err
	}
	return h.RollbackTo(ctx, name)
}

func savepointName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
