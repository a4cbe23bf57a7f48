package mock_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/kbukum/gormock/logger"
	"github.com/kbukum/gormock/mock"
)

type recordingPatch struct {
	name     string
	log      *[]string
	startErr error
}

func (p *recordingPatch) Key() any { return p.name }

func (p *recordingPatch) Start() error {
	if p.startErr != nil {
		return p.startErr
	}
	*p.log = append(*p.log, "start "+p.name)
	return nil
}

func (p *recordingPatch) Stop() error {
	*p.log = append(*p.log, "stop "+p.name)
	return nil
}

func equalLog(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestPatchesStartStopOrder(t *testing.T) {
	var log []string
	ps := mock.NewPatches(logger.Nop())
	for _, name := range []string{"a", "b", "c"} {
		if err := ps.AddPatch(&recordingPatch{name: name, log: &log}); err != nil {
			t.Fatalf("AddPatch(%s) failed: %v", name, err)
		}
	}

	if err := ps.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !ps.Active() {
		t.Error("Active() = false after Start()")
	}
	if err := ps.Start(); !errors.Is(err, mock.ErrPatchesActive) {
		t.Errorf("second Start() = %v, want ErrPatchesActive", err)
	}
	if err := ps.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := ps.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}

	want := []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}
	if !equalLog(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestPatchesStartFailureRevertsStarted(t *testing.T) {
	var log []string
	errStart := errors.New("cannot patch")
	ps := mock.NewPatches(logger.Nop())
	_ = ps.AddPatch(&recordingPatch{name: "a", log: &log})
	_ = ps.AddPatch(&recordingPatch{name: "b", log: &log})
	_ = ps.AddPatch(&recordingPatch{name: "c", log: &log, startErr: errStart})
	_ = ps.AddPatch(&recordingPatch{name: "d", log: &log})

	if err := ps.Start(); !errors.Is(err, errStart) {
		t.Fatalf("Start() = %v, want start error", err)
	}
	if ps.Active() {
		t.Error("Active() = true after failed Start()")
	}
	want := []string{"start a", "start b", "stop b", "stop a"}
	if !equalLog(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

var greeting = "hello"

func TestValuePatch(t *testing.T) {
	ps := mock.NewPatches(logger.Nop())
	if err := ps.AddPatch(mock.Value(&greeting, "patched")); err != nil {
		t.Fatalf("AddPatch() failed: %v", err)
	}
	if err := ps.AddPatch(mock.Value(&greeting, "again")); !errors.Is(err, mock.ErrPatchConflict) {
		t.Errorf("duplicate AddPatch() = %v, want ErrPatchConflict", err)
	}

	err := ps.Do(func() error {
		if greeting != "patched" {
			t.Errorf("greeting = %q inside Do(), want patched", greeting)
		}
		if err := ps.AddPatch(mock.Env("GORMOCK_TEST", "x")); !errors.Is(err, mock.ErrPatchesActive) {
			t.Errorf("AddPatch() while active = %v, want ErrPatchesActive", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if greeting != "hello" {
		t.Errorf("greeting = %q after Do(), want hello", greeting)
	}
}

func TestEnvPatch(t *testing.T) {
	t.Setenv("GORMOCK_SET", "original")
	ps := mock.NewPatches(logger.Nop())
	_ = ps.AddPatch(mock.Env("GORMOCK_SET", "patched"))
	_ = ps.AddPatch(mock.Env("GORMOCK_UNSET_FOR_TEST", "patched"))

	if err := ps.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if got := os.Getenv("GORMOCK_SET"); got != "patched" {
		t.Errorf("GORMOCK_SET = %q, want patched", got)
	}
	if err := ps.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if got := os.Getenv("GORMOCK_SET"); got != "original" {
		t.Errorf("GORMOCK_SET = %q after Stop(), want original", got)
	}
	if _, ok := os.LookupEnv("GORMOCK_UNSET_FOR_TEST"); ok {
		t.Error("GORMOCK_UNSET_FOR_TEST should be unset after Stop()")
	}
}

func TestNestedScopesDoNotReapplyPatches(t *testing.T) {
	ctx := context.Background()
	var log []string
	ps := mock.NewPatches(logger.Nop())
	_ = ps.AddPatch(&recordingPatch{name: "a", log: &log})
	m := newPetMock(t, mock.WithPatches(ps))

	err := m.FromDict(ctx, mock.Dataset{}, func(ctx context.Context, _ *mock.Result) error {
		return m.FromDict(ctx, mock.Dataset{}, nil)
	})
	if err != nil {
		t.Fatalf("scope failed: %v", err)
	}
	want := []string{"start a", "stop a"}
	if !equalLog(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
}

func TestScopeFailsWhenPatchFails(t *testing.T) {
	ctx := context.Background()
	errStart := errors.New("cannot patch")
	ps := mock.NewPatches(logger.Nop())
	var log []string
	_ = ps.AddPatch(&recordingPatch{name: "bad", log: &log, startErr: errStart})
	m := mock.New(newProvider(t), newData(t, nil), mock.WithPatches(ps), mock.WithLogger(logger.Nop()))

	err := m.FromDict(ctx, mock.Dataset{}, func(context.Context, *mock.Result) error {
		t.Error("body ran although patches failed")
		return nil
	})
	if !errors.Is(err, errStart) {
		t.Fatalf("got %v, want patch start error", err)
	}
	if m.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", m.Depth())
	}
}
