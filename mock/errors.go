package mock

import (
	apperrors "github.com/kbukum/gormock/errors"
)

// Comparison targets for errors.Is. Each sentinel matches only the errors
// derived from it; ErrValidation and ErrProvisioning match by code.
var (
	// ErrValidation matches every mock data validation failure: unknown
	// tables or columns, values that do not fit their column, missing
	// composite key columns and malformed data files.
	ErrValidation = apperrors.ValidationCategory("mock data validation failed")

	// ErrPatchConflict is returned when a target is patched twice.
	ErrPatchConflict = apperrors.Sentinel(apperrors.ErrCodeConflict, "target already patched")

	// ErrPatchesActive is returned when patches are started or changed while applied.
	ErrPatchesActive = apperrors.Sentinel(apperrors.ErrCodeIllegalState, "patches already active")

	// ErrScopeOrder is returned when a scope is closed out of LIFO order.
	ErrScopeOrder = apperrors.Sentinel(apperrors.ErrCodeIllegalState, "scope is not the innermost open scope")

	// ErrListenerRemoved is returned when a listener is removed twice.
	ErrListenerRemoved = apperrors.Sentinel(apperrors.ErrCodeNotFound, "listener already removed")

	// ErrProvisioning matches failures to create or dispose the ephemeral store.
	ErrProvisioning = apperrors.New(apperrors.ErrCodeProvisioning, "ephemeral store unavailable")

	// ErrClosed is returned by an AsyncProvider after Close.
	ErrClosed = apperrors.Sentinel(apperrors.ErrCodeIllegalState, "provider closed")
)
