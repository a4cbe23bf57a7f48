package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

const tracerName = "github.com/kbukum/gormock/mock"

// Source names the kind of mock data a scope was opened with.
const (
	SourceDict = "dict"
	SourceORM  = "orm"
	SourceFile = "file"
)

// ScopeFunc is the body of a mock scope. It receives the rows the scope
// inserted.
type ScopeFunc func(ctx context.Context, r *Result) error

// Scope is an open mock scope. Close it to discard its rows; scopes must
// be closed innermost first.
type Scope struct {
	ID     uuid.UUID
	Depth  int
	Source string
	Result *Result

	savepoint string
	core      *core
	release   []func(context.Context) error
	span      trace.Span
	closed    bool
}

// Savepoint returns the name of the savepoint the scope rolls back to.
func (s *Scope) Savepoint() string {
	return s.savepoint
}

// Close discards the scope's rows. The outermost scope also rolls back the
// outer transaction, reverts patches, removes listeners and disposes of the
// store. Closing a scope that has inner scopes still open returns
// ErrScopeOrder; closing twice is a no-op.
func (s *Scope) Close(ctx context.Context) error {
	return s.core.exit(ctx, s, false)
}

func (s *Scope) push(fn func(context.Context) error) {
	s.release = append(s.release, fn)
}

// unwind runs the release steps in reverse order. Every step runs even if
// an earlier one fails.
func (s *Scope) unwind(ctx context.Context) error {
	var errs []error
	for i := len(s.release) - 1; i >= 0; i-- {
		if err := s.release[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.release = nil
	return errors.Join(errs...)
}

func (s *Scope) end(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// Option configures a DBMock or AsyncDBMock.
type Option func(*options)

type options struct {
	patches *Patches
	events  *EventManager
	log     *logger.Logger
	tp      trace.TracerProvider
	prefix  string
}

// WithPatches applies p for the lifetime of every outermost scope.
func WithPatches(p *Patches) Option {
	return func(o *options) { o.patches = p }
}

// WithEvents uses m as the event manager; its listeners are removed when
// the outermost scope closes.
func WithEvents(m *EventManager) Option {
	return func(o *options) { o.events = m }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTracerProvider records a span per scope on tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithSavepointPrefix sets the prefix of scope savepoint names.
func WithSavepointPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// core runs the scope algorithm against a Store. DBMock and AsyncDBMock
// differ only in the Store they give it.
type core struct {
	store   Store
	data    *DataInterface
	patches *Patches
	events  *EventManager
	log     *logger.Logger
	tracer  trace.Tracer
	prefix  string

	mu    sync.Mutex
	stack []*Scope
}

func newCore(st Store, data *DataInterface, opts []Option) *core {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.NewDefault("gormock")
	}
	if o.patches == nil {
		o.patches = NewPatches(o.log)
	}
	if o.events == nil {
		o.events = NewEventManager(o.log)
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}
	if o.prefix == "" {
		o.prefix = "gormock"
	}
	return &core{
		store:   st,
		data:    data,
		patches: o.patches,
		events:  o.events,
		log:     o.log.WithComponent("mock"),
		tracer:  o.tp.Tracer(tracerName),
		prefix:  o.prefix,
	}
}

func (c *core) depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

// enter opens a scope. The outermost scope acquires the store, applies
// patches, opens the event scope, ensures the schema and begins the outer
// transaction; every scope then places its savepoint and loads its rows.
// If any step fails, the steps already taken are undone in reverse.
func (c *core) enter(ctx context.Context, source string, build func() (*Plan, error)) (*Scope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	depth := len(c.stack) + 1
	s := &Scope{
		ID:        uuid.New(),
		Depth:     depth,
		Source:    source,
		savepoint: savepointName(c.prefix),
		core:      c,
	}
	ctx, s.span = c.tracer.Start(ctx, "gormock.scope", trace.WithAttributes(
		attribute.String("gormock.scope_id", s.ID.String()),
		attribute.String("gormock.source", source),
		attribute.Int("gormock.depth", depth),
	))
	log := c.log.WithFields(logger.Fields(
		logger.FieldScope, s.ID.String(),
		logger.FieldDepth, depth,
		logger.FieldSource, source,
	))

	ok := false
	defer func() {
		if ok {
			return
		}
		r := recover()
		if err := s.unwind(context.WithoutCancel(ctx)); err != nil {
			log.Debug("Teardown after failed enter failed", logger.ErrorFields("enter", err))
		}
		s.end(errors.New("scope enter aborted"))
		if r != nil {
			panic(r)
		}
	}()

	res, err := c.open(ctx, s, build)
	if err != nil {
		// unwind here so its errors can be joined to the enter error
		if uerr := s.unwind(context.WithoutCancel(ctx)); uerr != nil {
			err = errors.Join(err, uerr)
		}
		ok = true
		log.Debug("Scope enter failed", logger.ErrorFields("enter", err))
		s.end(err)
		return nil, err
	}

	s.Result = res
	c.stack = append(c.stack, s)
	ok = true
	s.span.SetAttributes(
		attribute.StringSlice("gormock.tables", res.Tables()),
		attribute.Int("gormock.rows", res.Len()),
	)
	log.Debug("Scope entered", logger.Fields(logger.FieldSavepoint, s.savepoint, logger.FieldRows, res.Len()))
	return s, nil
}

func (c *core) open(ctx context.Context, s *Scope, build func() (*Plan, error)) (*Result, error) {
	plan, err := build()
	if err != nil {
		return nil, err
	}

	if s.Depth == 1 {
		if err := c.store.Acquire(ctx); err != nil {
			return nil, err
		}
		if err := c.patches.Start(); err != nil {
			if rerr := c.store.Reset(context.WithoutCancel(ctx)); rerr != nil {
				return nil, errors.Join(err, rerr)
			}
			return nil, err
		}

		// Unwound in reverse: store reset, then listeners, then patches.
		s.push(func(context.Context) error { return c.patches.Stop() })
		s.push(func(context.Context) error {
			c.events.RemoveListeners()
			return nil
		})
		s.push(c.store.Reset)
	}

	if err := c.data.EnsureSchema(ctx, c.store); err != nil {
		return nil, err
	}

	if s.Depth == 1 {
		if err := c.store.Begin(ctx); err != nil {
			return nil, err
		}
		s.push(c.store.Rollback)
	}

	if err := c.store.Savepoint(ctx, s.savepoint); err != nil {
		return nil, err
	}
	s.push(func(ctx context.Context) error {
		return c.store.RollbackTo(ctx, s.savepoint)
	})

	return c.data.Load(ctx, c.store, plan)
}

// exit closes s. With force set, inner scopes still open are closed first;
// otherwise they make the close fail with ErrScopeOrder.
func (c *core) exit(ctx context.Context, s *Scope, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed {
		return nil
	}
	pos := -1
	for i, open := range c.stack {
		if open == s {
			pos = i
			break
		}
	}
	if pos < 0 {
		return apperrors.IllegalState("scope is not open").WithDetail(logger.FieldScope, s.ID.String())
	}

	var errs []error
	if pos < len(c.stack)-1 {
		if !force {
			return ErrScopeOrder.Derive(fmt.Sprintf("scope %s closed while %d inner scopes are open", s.ID, len(c.stack)-1-pos)).
				WithDetail(logger.FieldScope, s.ID.String())
		}
		for i := len(c.stack) - 1; i > pos; i-- {
			inner := c.stack[i]
			c.log.Debug("Closing inner scope left open", logger.Fields(logger.FieldScope, inner.ID.String()))
			if err := c.close(ctx, inner); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := c.close(ctx, s); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *core) close(ctx context.Context, s *Scope) error {
	c.stack = c.stack[:len(c.stack)-1]
	s.closed = true
	err := s.unwind(context.WithoutCancel(ctx))
	s.end(err)
	if err != nil {
		c.log.Debug("Scope exit failed", logger.ErrorFields("exit", err))
	} else {
		c.log.Debug("Scope exited", logger.Fields(logger.FieldScope, s.ID.String(), logger.FieldDepth, s.Depth))
	}
	return err
}

// run opens a scope, runs fn inside it and closes the scope on every exit
// path, a panic in fn included. Inner scopes fn left open are closed too.
func (c *core) run(ctx context.Context, source string, build func() (*Plan, error), fn ScopeFunc) (err error) {
	s, err := c.enter(ctx, source, build)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if cerr := c.exit(ctx, s, true); cerr != nil {
				c.log.Debug("Scope exit after panic failed", logger.ErrorFields("exit", cerr))
			}
			panic(r)
		}
		if cerr := c.exit(ctx, s, true); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(ctx, s.Result)
}
