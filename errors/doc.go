// Package errors provides the structured error type used across gormock.
//
// Every failure the library raises itself (validation of mock data,
// provisioning of the ephemeral store, misuse of scopes and patches) is an
// *AppError carrying a machine-readable code. Errors produced by the
// database engine are not wrapped here; callers see them verbatim.
package errors
