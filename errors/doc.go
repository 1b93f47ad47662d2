// Package errors provides the structured error type used across chainkit.
//
// Every failure the engine reports carries a machine-readable ErrorCode, a
// retryable flag and optional details, so callers can tell a missing chain
// from a failed task or an unwritable metrics record without string matching.
package errors
