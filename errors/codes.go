package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Lookup errors
const (
	// ErrCodeUnknownChain indicates the chain name is not in the loaded catalog.
	ErrCodeUnknownChain ErrorCode = "UNKNOWN_CHAIN"
	// ErrCodeTaskNotFound indicates no task is registered under the requested name.
	ErrCodeTaskNotFound ErrorCode = "TASK_NOT_FOUND"
)

// Execution errors
const (
	// ErrCodeTaskFailed indicates a task returned an error or panicked.
	ErrCodeTaskFailed ErrorCode = "TASK_FAILED"
	// ErrCodeCancelled indicates the run was cancelled before it finished.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeTimeout indicates a deadline expired.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Setup errors
const (
	// ErrCodeInvalidConfig indicates invalid engine or service configuration.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInvalidDefinition indicates a malformed chain catalog.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// Persistence and internal errors
const (
	// ErrCodePersistenceFailed indicates a metrics record or report could not be written.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTaskFailed:        true,
	ErrCodeTimeout:           true,
	ErrCodePersistenceFailed: true,
	ErrCodeInternal:          false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

var exitCodes = map[ErrorCode]int{
	ErrCodeTaskFailed:        1,
	ErrCodeCancelled:         1,
	ErrCodeTimeout:           1,
	ErrCodeUnknownChain:      2,
	ErrCodeTaskNotFound:      2,
	ErrCodeInvalidConfig:     3,
	ErrCodeInvalidDefinition: 3,
	ErrCodePersistenceFailed: 4,
}

// ExitCodeFor returns the process exit code the CLI uses for a code.
// Unmapped codes exit with 1.
func ExitCodeFor(code ErrorCode) int {
	if c, ok := exitCodes[code]; ok {
		return c
	}
	return 1
}
