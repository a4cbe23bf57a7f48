package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Validation errors
const (
	// ErrCodeInvalidInput indicates the mock data is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required key column is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidFormat indicates a data file has an invalid shape.
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
)

// State errors
const (
	// ErrCodeConflict indicates a conflicting registration.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeIllegalState indicates an operation invalid in the current state.
	ErrCodeIllegalState ErrorCode = "ILLEGAL_STATE"
	// ErrCodeNotFound indicates the requested item was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Infrastructure errors
const (
	// ErrCodeProvisioning indicates the ephemeral store could not be created or disposed.
	ErrCodeProvisioning ErrorCode = "PROVISIONING_FAILED"
	// ErrCodeDatabaseError indicates a database error.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	// ErrCodeTimeout indicates the operation gave up waiting.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeDatabaseError: true,
	ErrCodeTimeout:       true,
	ErrCodeProvisioning:  false,
	ErrCodeInternal:      false,
}

var validationCodes = map[ErrorCode]bool{
	ErrCodeInvalidInput:  true,
	ErrCodeMissingField:  true,
	ErrCodeInvalidFormat: true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// IsValidationCode returns true for the codes raised while validating input data.
func IsValidationCode(code ErrorCode) bool {
	return validationCodes[code]
}
