package mock

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

// Listener is a registered hook that can be unbound.
type Listener interface {
	Remove() error
}

// ExecuteHook runs before GORM executes a statement.
type ExecuteHook func(*ExecuteState)

type operation string

const (
	opQuery  operation = "query"
	opRow    operation = "row"
	opCreate operation = "create"
	opUpdate operation = "update"
	opDelete operation = "delete"
	opRaw    operation = "raw"
)

// ExecuteState describes a statement about to run. Hooks read its flags and
// may add filtering through Where.
type ExecuteState struct {
	db *gorm.DB
	op operation
}

// IsSelect reports a read through the query or row pipeline.
func (s *ExecuteState) IsSelect() bool { return s.op == opQuery || s.op == opRow }

// IsInsert reports a create.
func (s *ExecuteState) IsInsert() bool { return s.op == opCreate }

// IsUpdate reports an update.
func (s *ExecuteState) IsUpdate() bool { return s.op == opUpdate }

// IsDelete reports a delete.
func (s *ExecuteState) IsDelete() bool { return s.op == opDelete }

// IsRaw reports a raw SQL Exec.
func (s *ExecuteState) IsRaw() bool { return s.op == opRaw }

// Table returns the target table, when GORM knows it.
func (s *ExecuteState) Table() string {
	if s.db.Statement.Table != "" {
		return s.db.Statement.Table
	}
	if s.db.Statement.Schema != nil {
		return s.db.Statement.Schema.Table
	}
	return ""
}

// Option returns an execution option set on the session with db.Set.
func (s *ExecuteState) Option(key string) (interface{}, bool) {
	return s.db.Get(key)
}

// Statement exposes the statement for hooks that need more than Where.
func (s *ExecuteState) Statement() *gorm.Statement {
	return s.db.Statement
}

// Where adds a condition to the statement, as db.Where would.
func (s *ExecuteState) Where(query interface{}, args ...interface{}) {
	if conds := s.db.Statement.BuildCondition(query, args...); len(conds) > 0 {
		s.db.Statement.AddClause(clause.Where{Exprs: conds})
	}
}

const hookPluginName = "gormock:execute-hooks"

// hookPlugin owns one callback per GORM processor on an engine and fans
// each statement out to the hooks registered at that moment. Hooks are
// added and removed without touching GORM's callback chains again.
type hookPlugin struct {
	mu    sync.RWMutex
	hooks []*hookListener
}

func (p *hookPlugin) Name() string { return hookPluginName }

func (p *hookPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	regs := []struct {
		op  operation
		err error
	}{
		{opQuery, cb.Query().Before("gorm:query").Register(hookPluginName+":query", p.fire(opQuery))},
		{opRow, cb.Row().Before("gorm:row").Register(hookPluginName+":row", p.fire(opRow))},
		{opCreate, cb.Create().Before("gorm:create").Register(hookPluginName+":create", p.fire(opCreate))},
		{opUpdate, cb.Update().Before("gorm:update").Register(hookPluginName+":update", p.fire(opUpdate))},
		{opDelete, cb.Delete().Before("gorm:delete").Register(hookPluginName+":delete", p.fire(opDelete))},
		{opRaw, cb.Raw().Before("gorm:raw").Register(hookPluginName+":raw", p.fire(opRaw))},
	}
	for _, r := range regs {
		if r.err != nil {
			return fmt.Errorf("register %s hook: %w", r.op, r.err)
		}
	}
	return nil
}

func (p *hookPlugin) fire(op operation) func(*gorm.DB) {
	return func(db *gorm.DB) {
		p.mu.RLock()
		hooks := make([]*hookListener, len(p.hooks))
		copy(hooks, p.hooks)
		p.mu.RUnlock()

		if len(hooks) == 0 || db.Error != nil {
			return
		}
		state := &ExecuteState{db: db, op: op}
		for _, h := range hooks {
			h.hook(state)
		}
	}
}

func (p *hookPlugin) add(l *hookListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, l)
}

func (p *hookPlugin) remove(l *hookListener) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.hooks {
		if h == l {
			p.hooks = append(p.hooks[:i:i], p.hooks[i+1:]...)
			return true
		}
	}
	return false
}

func (p *hookPlugin) len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.hooks)
}

var pluginMu sync.Mutex

// hooksFor returns the hook plugin of the engine behind db, installing it
// on first use.
func hooksFor(db *gorm.DB) (*hookPlugin, error) {
	pluginMu.Lock()
	defer pluginMu.Unlock()

	if pl, ok := db.Config.Plugins[hookPluginName]; ok {
		if hp, ok := pl.(*hookPlugin); ok {
			return hp, nil
		}
		return nil, apperrors.Conflict(fmt.Sprintf("plugin %s has unexpected type %T", hookPluginName, pl))
	}
	hp := &hookPlugin{}
	if err := db.Use(hp); err != nil {
		return nil, err
	}
	return hp, nil
}

// hookListener is the token for one registered ExecuteHook.
type hookListener struct {
	plugin *hookPlugin
	hook   ExecuteHook
}

func (l *hookListener) Remove() error {
	if !l.plugin.remove(l) {
		return ErrListenerRemoved
	}
	return nil
}

// EventManager tracks the listeners registered during a mock scope and
// unbinds them when the scope ends.
type EventManager struct {
	mu        sync.Mutex
	listeners []Listener
	log       *logger.Logger
}

// NewEventManager creates an empty manager.
func NewEventManager(log *logger.Logger) *EventManager {
	if log == nil {
		log = logger.NewDefault("gormock")
	}
	return &EventManager{log: log.WithComponent("mock.events")}
}

// RegisterListener tracks l. Registering the same listener twice tracks it once.
func (m *EventManager) RegisterListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.listeners {
		if existing == l {
			return
		}
	}
	m.listeners = append(m.listeners, l)
}

// RegisterORMExecuteListener binds hook to run before every statement
// executed through the engine behind db (any session of it) and tracks the
// binding.
func (m *EventManager) RegisterORMExecuteListener(db *gorm.DB, hook ExecuteHook) (Listener, error) {
	if db == nil || hook == nil {
		return nil, apperrors.InvalidInput("hook", "db and hook are required")
	}
	plugin, err := hooksFor(db)
	if err != nil {
		return nil, err
	}
	l := &hookListener{plugin: plugin, hook: hook}
	plugin.add(l)
	m.RegisterListener(l)
	return l, nil
}

// RemoveListeners unbinds every tracked listener, most recent first, and
// clears the set. Unbind failures are logged and otherwise ignored.
func (m *EventManager) RemoveListeners() {
	m.mu.Lock()
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()

	for i := len(listeners) - 1; i >= 0; i-- {
		if err := listeners[i].Remove(); err != nil {
			m.log.Debug("Listener removal failed", logger.ErrorFields("remove_listener", err))
		}
	}
	if len(listeners) > 0 {
		m.log.Debug("Listeners removed", map[string]interface{}{"count": len(listeners)})
	}
}

// ClearListeners forgets every tracked listener without unbinding it.
func (m *EventManager) ClearListeners() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = nil
}

// Len returns the number of tracked listeners.
func (m *EventManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Do runs fn and removes every tracked listener afterwards, also when fn
// returns an error or panics.
func (m *EventManager) Do(fn func(*EventManager) error) error {
	defer m.RemoveListeners()
	return fn(m)
}
