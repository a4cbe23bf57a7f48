// Package component defines the lifecycle interfaces shared by gormock's
// infrastructure pieces.
//
// The connection providers implement Component so tests can start, stop
// and health-check them uniformly, and Describable so helpers can report
// which backing file a failing test used.
package component
