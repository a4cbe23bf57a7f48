package mock

import (
	"context"

	"gorm.io/gorm"

	"github.com/kbukum/gormock/database"
	apperrors "github.com/kbukum/gormock/errors"
)

// Store is the set of store operations the scope algorithm needs. The
// synchronous implementation calls the provider directly; the asynchronous
// one runs each operation on the provider's owner goroutine.
type Store interface {
	// Acquire makes sure a live store exists.
	Acquire(ctx context.Context) error
	// Exec runs fn with a session on the live store.
	Exec(ctx context.Context, fn func(db *gorm.DB) error) error
	// Migrate runs fn against the engine outside any transaction. It is
	// skipped while an outer transaction is open.
	Migrate(ctx context.Context, fn func(db *database.DB) error) error
	Begin(ctx context.Context) error
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Rollback(ctx context.Context) error
	// Reset disposes of the live store.
	Reset(ctx context.Context) error
}

type gormStore struct {
	p *Provider
}

var _ Store = (*gormStore)(nil)

func (s *gormStore) Acquire(ctx context.Context) error {
	_, err := s.p.Handle(ctx)
	return err
}

func (s *gormStore) Exec(ctx context.Context, fn func(db *gorm.DB) error) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return fn(h.Session(ctx))
}

func (s *gormStore) Migrate(ctx context.Context, fn func(db *database.DB) error) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	if h.InTransaction() {
		s.p.log.Debug("Schema migrations skipped inside open transaction")
		return nil
	}
	return fn(h.DB())
}

func (s *gormStore) Begin(ctx context.Context) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return h.Begin(ctx)
}

func (s *gormStore) Savepoint(ctx context.Context, name string) error {
	h, err := s.p.Handle(ctx)
	if err != nil {
		return err
	}
	return h.Savepoint(ctx, name)
}

func (s *gormStore) RollbackTo(ctx context.Context, name string) error {
	h := s.p.current()
	if h == nil {
		return apperrors.IllegalState("store was reset while a scope was open")
	}
	return h.RollbackTo(ctx, name)
}

func (s *gormStore) Rollback(ctx context.Context) error {
	h := s.p.current()
	if h == nil {
		return nil
	}
	return h.Rollback(ctx)
}

func (s *gormStore) Reset(ctx context.Context) error {
	return s.p.Reset(ctx)
}
