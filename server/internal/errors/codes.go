package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a machine readable failure class.
type ErrorCode string

const (
	// ErrCodeValidationFailed indicates a bad slug, value, scope or confidence.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeNotFound indicates a preference, suggestion or location that does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodePermissionDenied indicates a row owned by another user.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	// ErrCodeAIResponseInvalid indicates a model answer that failed parsing or schema checks.
	ErrCodeAIResponseInvalid ErrorCode = "AI_RESPONSE_INVALID"
	// ErrCodeFailedPrecondition indicates an operation on a row in the wrong state.
	ErrCodeFailedPrecondition ErrorCode = "FAILED_PRECONDITION"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeLLMUnavailable indicates the LLM service is not available.
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeInternal indicates a storage or programming failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is a structured error returned by the services.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

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

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func ValidationFailed(msg string, cause error) *Error {
	return &Error{Code: ErrCodeValidationFailed, Message: msg, Cause: cause}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func PermissionDenied(format string, args ...any) *Error {
	return &Error{Code: ErrCodePermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// AIResponseInvalid records the failing field path under Context["path"].
func AIResponseInvalid(path string, cause error) *Error {
	e := &Error{Code: ErrCodeAIResponseInvalid, Message: "AI response failed validation", Cause: cause}
	if path != "" {
		e.WithContext("path", path)
	}
	return e
}

func FailedPrecondition(format string, args ...any) *Error {
	return &Error{Code: ErrCodeFailedPrecondition, Message: fmt.Sprintf(format, args...)}
}

func RateLimitExceeded(msg string) *Error {
	return &Error{Code: ErrCodeRateLimitExceeded, Message: msg}
}

func LLMUnavailable(msg string, cause error) *Error {
	return &Error{Code: ErrCodeLLMUnavailable, Message: msg, Cause: cause}
}

func Timeout(msg string) *Error {
	return &Error{Code: ErrCodeTimeout, Message: msg}
}

func ContextCanceled(cause error) *Error {
	return &Error{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with a code.
func Wrap(cause error, code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// FromContext maps context cancellation and deadline errors to their codes.
// Any other error becomes code fallback.
func FromContext(err error, fallback ErrorCode, msg string) *Error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &Error{Code: ErrCodeTimeout, Message: msg, Cause: err}
	case stderrors.Is(err, context.Canceled):
		return ContextCanceled(err)
	default:
		return Wrap(err, fallback, msg)
	}
}

// IsCode reports whether any error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err, "") == code
}

// GetCode extracts the code of the first *Error in err's chain, or defaultCode.
func GetCode(err error, defaultCode ErrorCode) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return defaultCode
}
