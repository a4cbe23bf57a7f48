package testutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kbukum/gormock/component"
	"github.com/kbukum/gormock/testutil"
)

type counterComponent struct {
	started, stopped bool
	value            int
	calls            []string
	startErr         error
}

func (c *counterComponent) Name() string { return "counter" }

func (c *counterComponent) Start(_ context.Context) error {
	c.calls = append(c.calls, "start")
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *counterComponent) Stop(_ context.Context) error {
	c.calls = append(c.calls, "stop")
	c.stopped = true
	return nil
}

func (c *counterComponent) Health(_ context.Context) component.Health {
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

func (c *counterComponent) Reset(_ context.Context) error {
	c.calls = append(c.calls, "reset")
	c.value = 0
	return nil
}

func (c *counterComponent) Snapshot(_ context.Context) (interface{}, error) {
	c.calls = append(c.calls, "snapshot")
	return c.value, nil
}

func (c *counterComponent) Restore(_ context.Context, snapshot interface{}) error {
	c.calls = append(c.calls, "restore")
	v, ok := snapshot.(int)
	if !ok {
		return errors.New("bad snapshot")
	}
	c.value = v
	return nil
}

var _ testutil.TestComponent = (*counterComponent)(nil)

func TestSetup(t *testing.T) {
	comp := &counterComponent{}

	cleanup, err := testutil.Setup(context.Background(), comp)
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	if !comp.started {
		t.Error("component should be started after Setup()")
	}
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup() failed: %v", err)
	}
	if !comp.stopped {
		t.Error("component should be stopped after cleanup()")
	}
}

func TestSetupStartError(t *testing.T) {
	comp := &counterComponent{startErr: errors.New("no disk")}
	if _, err := testutil.Setup(context.Background(), comp); err == nil {
		t.Fatal("expected start error")
	}
}

func TestTHelperSnapshotRestore(t *testing.T) {
	comp := &counterComponent{}
	h := testutil.T(t)

	comp.value = 3
	snap := h.Snapshot(comp)
	comp.value = 10
	h.Restore(comp, snap)
	if comp.value != 3 {
		t.Errorf("value = %d, want 3", comp.value)
	}

	h.Reset(comp)
	if comp.value != 0 {
		t.Errorf("value = %d after Reset, want 0", comp.value)
	}
}

func TestTHelperCleanupOrder(t *testing.T) {
	comp := &counterComponent{}

	t.Run("inner", func(t *testing.T) {
		h := testutil.T(t)
		h.Setup(comp)
		h.Isolate(comp)
		comp.value = 42
	})

	want := []string{"start", "snapshot", "restore", "stop"}
	if len(comp.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", comp.calls, want)
	}
	for i := range want {
		if comp.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", comp.calls, want)
		}
	}
	if comp.value != 0 {
		t.Errorf("value = %d, want restored 0", comp.value)
	}
}
