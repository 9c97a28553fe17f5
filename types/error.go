package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Coordination error codes
const (
	ErrCollectionTimeout      ErrorCode = "COLLECTION_TIMEOUT"
	ErrCollectionFailure      ErrorCode = "COLLECTION_FAILURE"
	ErrHandoffDepthExceeded   ErrorCode = "HANDOFF_DEPTH_EXCEEDED"
	ErrHandoffRateExceeded    ErrorCode = "HANDOFF_RATE_EXCEEDED"
	ErrHandoffUnroutable      ErrorCode = "HANDOFF_UNROUTABLE"
	ErrHandoffTimedOut        ErrorCode = "HANDOFF_TIMED_OUT"
	ErrAllProvidersFailed     ErrorCode = "ALL_PROVIDERS_FAILED"
	ErrBoardInvariantViolated ErrorCode = "BOARD_INVARIANT_VIOLATION"
	ErrAdjudicationFailure    ErrorCode = "ADJUDICATION_FAILURE"
	ErrInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrRunTimeout             ErrorCode = "RUN_TIMEOUT"
	ErrInternalError          ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Dimension Dimension `json:"dimension,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDimension tags the error with the analysis dimension it degraded.
func (e *Error) WithDimension(d Dimension) *Error {
	e.Dimension = d
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsFatal reports whether the error must abort the whole run rather than
// degrade a single task.
func IsFatal(err error) bool {
	return GetErrorCode(err) == ErrBoardInvariantViolated
}
