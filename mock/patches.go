package mock

import (
	"errors"
	"fmt"
	"os"
	"sync"

	apperrors "github.com/kbukum/gormock/errors"
	"github.com/kbukum/gormock/logger"
)

// Patch replaces something for the duration of a mock scope.
type Patch interface {
	// Key identifies the patched target. Two patches with equal keys conflict.
	Key() any
	Start() error
	Stop() error
}

type valuePatch[T any] struct {
	target      *T
	replacement T
	original    T
	active      bool
}

// Value patches the variable target points to, typically a package-level
// function variable an application uses to open its database session:
//
//	patches.AddPatch(mock.Value(&app.OpenSession, provider.Session))
func Value[T any](target *T, replacement T) Patch {
	return &valuePatch[T]{target: target, replacement: replacement}
}

func (p *valuePatch[T]) Key() any { return p.target }

func (p *valuePatch[T]) Start() error {
	if p.target == nil {
		return apperrors.InvalidInput("target", "nil patch target")
	}
	if p.active {
		return nil
	}
	p.original = *p.target
	*p.target = p.replacement
	p.active = true
	return nil
}

func (p *valuePatch[T]) Stop() error {
	if !p.active {
		return nil
	}
	*p.target = p.original
	var zero T
	p.original = zero
	p.active = false
	return nil
}

type envKey string

type envPatch struct {
	key      string
	value    string
	original string
	existed  bool
	active   bool
}

// Env sets an environment variable for the duration of a scope and restores
// the previous value, or unsets it, afterwards.
func Env(key, value string) Patch {
	return &envPatch{key: key, value: value}
}

func (p *envPatch) Key() any { return envKey(p.key) }

func (p *envPatch) Start() error {
	if p.active {
		return nil
	}
	p.original, p.existed = os.LookupEnv(p.key)
	if err := os.Setenv(p.key, p.value); err != nil {
		return fmt.Errorf("set %s: %w", p.key, err)
	}
	p.active = true
	return nil
}

func (p *envPatch) Stop() error {
	if !p.active {
		return nil
	}
	p.active = false
	if p.existed {
		return os.Setenv(p.key, p.original)
	}
	return os.Unsetenv(p.key)
}

// Patches is an ordered set of patches applied and reverted together.
type Patches struct {
	mu      sync.Mutex
	patches []Patch
	keys    map[any]struct{}
	started []Patch
	active  bool
	log     *logger.Logger
}

// NewPatches creates an empty registry.
func NewPatches(log *logger.Logger) *Patches {
	if log == nil {
		log = logger.NewDefault("gormock")
	}
	return &Patches{keys: make(map[any]struct{}), log: log.WithComponent("mock.patches")}
}

// AddPatch registers p. A second patch for the same target returns
// ErrPatchConflict; adding while the patches are applied returns
// ErrPatchesActive.
func (ps *Patches) AddPatch(p Patch) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.active {
		return ErrPatchesActive.Derive("cannot add a patch while patches are active")
	}
	key := p.Key()
	if _, ok := ps.keys[key]; ok {
		return ErrPatchConflict.Derive(fmt.Sprintf("target %v already patched", key))
	}
	ps.keys[key] = struct{}{}
	ps.patches = append(ps.patches, p)
	return nil
}

// Len returns the number of registered patches.
func (ps *Patches) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.patches)
}

// Active reports whether the patches are applied.
func (ps *Patches) Active() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.active
}

// Start applies the patches in registration order. If one fails, those
// already applied are reverted in reverse order and the start error is
// returned.
func (ps *Patches) Start() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.active {
		return ErrPatchesActive
	}
	for _, p := range ps.patches {
		if err := p.Start(); err != nil {
			if stopErr := ps.stopLocked(); stopErr != nil {
				ps.log.Debug("Revert after failed start failed", logger.ErrorFields("stop", stopErr))
			}
			return err
		}
		ps.started = append(ps.started, p)
	}
	ps.active = true
	if len(ps.started) > 0 {
		ps.log.Debug("Patches applied", map[string]interface{}{"count": len(ps.started)})
	}
	return nil
}

// Stop reverts the applied patches in reverse order, each exactly once.
// Every patch is stopped even if an earlier one fails; the failures are
// joined.
func (ps *Patches) Stop() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.active = false
	return ps.stopLocked()
}

func (ps *Patches) stopLocked() error {
	var errs []error
	for i := len(ps.started) - 1; i >= 0; i-- {
		if err := ps.started[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	ps.started = nil
	return errors.Join(errs...)
}

// Do applies the patches, runs fn and reverts them on every exit path.
func (ps *Patches) Do(fn func() error) (err error) {
	if err := ps.Start(); err != nil {
		return err
	}
	defer func() {
		if stopErr := ps.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()
	return fn()
}
