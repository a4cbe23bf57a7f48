package testutil

import (
	"context"

	"github.com/kbukum/gormock/component"
)

// TestComponent extends component.Component with the state controls a test
// needs for isolation.
type TestComponent interface {
	component.Component

	// Reset discards all state, returning the component to the state it had
	// before its first use.
	Reset(ctx context.Context) error

	// Snapshot captures the current state. The returned value is opaque and
	// only meaningful to Restore on the same component.
	Snapshot(ctx context.Context) (interface{}, error)

	// Restore returns the component to a state captured by Snapshot.
	// Snapshots taken after the restored one become invalid.
	Restore(ctx context.Context, snapshot interface{}) error
}
