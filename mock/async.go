package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/kbukum/gormock/component"
	"github.com/kbukum/gormock/database"
	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
	"github.com/kbukum/gormock/testutil"
)

var (
	_ component.Component    = (*AsyncProvider)(nil)
	_ testutil.TestComponent = (*AsyncProvider)(nil)
)

// worker runs submitted jobs one at a time on a single goroutine.
type worker struct {
	jobs chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newWorker(queue int) *worker {
	w := &worker{
		jobs: make(chan func(), queue),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case job := <-w.jobs:
			job()
		case <-w.quit:
			return
		}
	}
}

// stop waits for the running job, if any, then stops the loop. Queued
// jobs that never started are dropped; their callers observe ErrClosed or
// their own context.
func (w *worker) stop() {
	w.once.Do(func() { close(w.quit) })
	<-w.done
}

// submit runs fn on the worker and waits for its result or for ctx. A job
// whose caller has already given up is skipped when it reaches the front
// of the queue.
func submit[T any](ctx context.Context, w *worker, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	ch := make(chan result, 1)

	job := func() {
		if err := ctx.Err(); err != nil {
			ch <- result{err: err}
			return
		}
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: apperrors.Internal(fmt.Errorf("store job panicked: %v", r))}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}

	select {
	case <-w.quit:
		return zero, ErrClosed
	default:
	}

	select {
	case w.jobs <- job:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-w.quit:
		return zero, ErrClosed
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-w.done:
		select {
		case r := <-ch:
			return r.v, r.err
		default:
			return zero, ErrClosed
		}
	}
}

func run(ctx context.Context, w *worker, fn func(context.Context) error) error {
	_, err := submit(ctx, w, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// AsyncProvider has the Provider contract, but creates, disposes and
// operates on the store from one owner goroutine. Callers wait on their
// context, so a cancelled test stops waiting without leaving the store in
// an unknown state.
type AsyncProvider struct {
	inner *Provider
	w     *worker
}

// NewAsyncProvider creates a provider and starts its owner goroutine.
// queue is the number of operations buffered ahead of the running one.
func NewAsyncProvider(cfg database.Config, log *logger.Logger, queue int) *AsyncProvider {
	p := NewProvider(cfg, log)
	p.name = "gormock-async-provider"
	return &AsyncProvider{inner: p, w: newWorker(queue)}
}

// Handle returns the live store, creating it on first use.
func (p *AsyncProvider) Handle(ctx context.Context) (*Handle, error) {
	return submit(ctx, p.w, p.inner.Handle)
}

// Session returns a fresh session on the live store. Queries made through
// the session run on the caller's goroutine.
func (p *AsyncProvider) Session(ctx context.Context) (*gorm.DB, error) {
	h, err := p.Handle(ctx)
	if err != nil {
		return nil, err
	}
	return h.Session(ctx), nil
}

// Reset disposes of the live store.
func (p *AsyncProvider) Reset(ctx context.Context) error {
	return run(ctx, p.w, p.inner.Reset)
}

// Generation counts the stores this provider has created.
func (p *AsyncProvider) Generation() int {
	return p.inner.Generation()
}

// Close disposes of the store and stops the owner goroutine. Further calls
// return ErrClosed.
func (p *AsyncProvider) Close() error {
	err := p.Reset(context.Background())
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	p.w.stop()
	return err
}

// Name returns the component name.
func (p *AsyncProvider) Name() string {
	return p.inner.Name()
}

// Start creates the store eagerly.
func (p *AsyncProvider) Start(ctx context.Context) error {
	_, err := p.Handle(ctx)
	return err
}

// Stop disposes of the store and stops the owner goroutine.
func (p *AsyncProvider) Stop(_ context.Context) error {
	return p.Close()
}

// Health pings the live store from the owner goroutine.
func (p *AsyncProvider) Health(ctx context.Context) component.Health {
	h, err := submit(ctx, p.w, func(ctx context.Context) (component.Health, error) {
		return p.inner.Health(ctx), nil
	})
	if err != nil {
		return component.Health{Name: p.Name(), Status: component.StatusUnhealthy, Message: err.Error()}
	}
	return h
}

// Snapshot places a savepoint; see Provider.Snapshot.
func (p *AsyncProvider) Snapshot(ctx context.Context) (interface{}, error) {
	return submit(ctx, p.w, p.inner.Snapshot)
}

// Restore rolls back to a snapshot marker.
func (p *AsyncProvider) Restore(ctx context.Context, snapshot interface{}) error {
	return run(ctx, p.w, func(ctx context.Context) error {
		return p.inner.Restore(ctx, snapshot)
	})
}

// asyncStore dispatches every Store operation to the owner goroutine.
type asyncStore struct {
	p     *AsyncProvider
	inner *gormStore
}

var _ Store = (*asyncStore)(nil)

func newAsyncStore(p *AsyncProvider) *asyncStore {
	return &asyncStore{p: p, inner: &gormStore{p: p.inner}}
}

func (s *asyncStore) Acquire(ctx context.Context) error {
	return run(ctx, s.p.w, s.inner.Acquire)
}

func (s *asyncStore) Exec(ctx context.Context, fn func(db *gorm.DB) error) error {
	return run(ctx, s.p.w, func(ctx context.Context) error {
		return s.inner.Exec(ctx, fn)
	})
}

func (s *asyncStore) Migrate(ctx context.Context, fn func(db *database.DB) error) error {
	return run(ctx, s.p.w, func(ctx context.Context) error {
		return s.inner.Migrate(ctx, fn)
	})
}

func (s *asyncStore) Begin(ctx context.Context) error {
	return run(ctx, s.p.w, s.inner.Begin)
}

func (s *asyncStore) Savepoint(ctx context.Context, name string) error {
	return run(ctx, s.p.w, func(ctx context.Context) error {
		return s.inner.Savepoint(ctx, name)
	})
}

func (s *asyncStore) RollbackTo(ctx context.Context, name string) error {
	return run(ctx, s.p.w, func(ctx context.Context) error {
		return s.inner.RollbackTo(ctx, name)
	})
}

func (s *asyncStore) Rollback(ctx context.Context) error {
	return run(ctx, s.p.w, s.inner.Rollback)
}

func (s *asyncStore) Reset(ctx context.Context) error {
	return run(ctx, s.p.w, s.inner.Reset)
}
