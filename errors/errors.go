package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ExitCode returns the CLI exit code for this error.
func (e *AppError) ExitCode() int { return ExitCodeFor(e.Code) }

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// UnknownChain reports a chain name missing from the catalog.
func UnknownChain(name string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownChain, Message: fmt.Sprintf("chain %q is not defined", name),
		Details: map[string]any{"chain": name},
	}
}

// TaskNotFound reports a task name with no registered implementation.
func TaskNotFound(name string) *AppError {
	return &AppError{
		Code: ErrCodeTaskNotFound, Message: fmt.Sprintf("task %q is not registered", name),
		Details: map[string]any{"task": name},
	}
}

// TaskExecution wraps a failure raised by a task.
func TaskExecution(task string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTaskFailed, Message: fmt.Sprintf("task %q failed", task),
		Retryable: true, Details: map[string]any{"task": task}, Cause: cause,
	}
}

// Configuration reports an invalid configuration value. It is never retryable.
func Configuration(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid configuration: %s", reason),
		Details: details,
	}
}

// Validation creates an INVALID_CONFIG error carrying a pre-formatted message.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidConfig, Message: message}
}

// InvalidDefinition reports a malformed chain catalog entry.
func InvalidDefinition(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidDefinition, Message: fmt.Sprintf("invalid chain definition: %s", reason),
	}
}

// Persistence reports a metrics record that could not be written.
func Persistence(iteration string, cause error) *AppError {
	return &AppError{
		Code: ErrCodePersistenceFailed, Message: fmt.Sprintf("metrics for iteration %q were not recorded", iteration),
		Retryable: true, Details: map[string]any{"iteration": iteration}, Cause: cause,
	}
}

// Cancelled reports an operation stopped by context cancellation.
func Cancelled(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeCancelled, Message: fmt.Sprintf("%s was cancelled", operation),
		Details: map[string]any{"operation": operation}, Cause: cause,
	}
}

// Timeout reports an operation that exceeded its deadline.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s exceeded its deadline", operation),
		Retryable: true, Details: map[string]any{"operation": operation},
	}
}

// Internal creates a new AppError for an unexpected error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		Cause: cause,
	}
}

// IsCode reports whether err (or anything it wraps) is an AppError with code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
