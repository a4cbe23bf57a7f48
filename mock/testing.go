package mock

import (
	"context"
	"testing"
)

// Tester opens scopes that close when the test ends, failing the test when
// a scope cannot be opened or closed.
type Tester struct {
	t   testing.TB
	m   Scoper
	ctx context.Context
}

// T binds m to a test.
//
//	func TestPets(t *testing.T) {
//	    r := mock.T(t, m).Dict(mock.Dataset{"pet": {{"name": "Milo", "species": "DOG"}}})
//	    pet := mock.First[petapp.Pet](r)
//	    ...
//	}
func T(t testing.TB, m Scoper) *Tester {
	return &Tester{t: t, m: m, ctx: context.Background()}
}

// WithContext sets the context scopes are opened with.
func (h *Tester) WithContext(ctx context.Context) *Tester {
	h.ctx = ctx
	return h
}

// Dict opens a scope holding the dataset's rows.
func (h *Tester) Dict(ds Dataset) *Result {
	h.t.Helper()
	s, err := h.m.EnterDict(h.ctx, ds)
	return h.bind(s, err)
}

// ORM opens a scope holding objs.
func (h *Tester) ORM(objs ...any) *Result {
	h.t.Helper()
	s, err := h.m.EnterORM(h.ctx, objs)
	return h.bind(s, err)
}

// File opens a scope holding the rows of a data file.
func (h *Tester) File(path string) *Result {
	h.t.Helper()
	s, err := h.m.EnterFile(h.ctx, path)
	return h.bind(s, err)
}

func (h *Tester) bind(s *Scope, err error) *Result {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("failed to open mock scope: %v", err)
	}
	h.t.Cleanup(func() {
		if err := s.Close(context.WithoutCancel(h.ctx)); err != nil {
			h.t.Errorf("failed to close mock scope %s: %v", s.ID, err)
		}
	})
	return s.Result
}
