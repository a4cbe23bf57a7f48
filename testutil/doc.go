// Package testutil ties gormock components to the testing package.
//
// TestComponent extends component.Component with Reset, Snapshot and
// Restore. The connection providers implement it: Snapshot places a
// savepoint in the ephemeral store and Restore rolls back to it.
//
//	func TestSomething(t *testing.T) {
//	    h := testutil.T(t)
//	    h.Setup(provider) // stopped at test end
//	    h.Isolate(provider) // writes rolled back at test end
//	}
package testutil
