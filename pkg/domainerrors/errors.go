// Package domainerrors defines the coded error taxonomy exposed by the core
// services. Codes are stable API surface: transports map them to status codes
// and clients branch on them, so never rename an existing code.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class with a stable, user-visible name.
type Code string

const (
	// CodeValidation covers malformed or out-of-range input, detected before
	// any mutation.
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeNotFound covers missing users, conversations, and events.
	CodeNotFound Code = "NOT_FOUND"

	// Conflict-class codes. Each names the specific conflict so callers can
	// surface precise feedback instead of a generic failure.
	CodeAlreadyMatched Code = "ALREADY_MATCHED"
	CodeNotPaired      Code = "NOT_PAIRED"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeConflict       Code = "CONFLICT"

	// CodePermissionDenied covers non-participants, disabled chat access, and
	// consent-gate failures.
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// CodeUnauthorized covers missing or unverifiable credentials.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeDependency covers store, queue, and email collaborator failures.
	// Callers should treat the outcome as unknown.
	CodeDependency Code = "DEPENDENCY_ERROR"

	// CodeTimeout covers aborted transactions and expired contexts.
	CodeTimeout Code = "TIMEOUT"

	// CodeInternal is the fallback for everything else.
	CodeInternal Code = "INTERNAL"
)

// Error is a coded error with optional structured fields (e.g. the conflicting
// partner id on ALREADY_MATCHED).
type Error struct {
	Code    Code
	Message string
	Err     error
	fields  map[string]string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is / errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// With attaches a structured field to the error and returns it for chaining.
func (e *Error) With(key, value string) *Error {
	if e.fields == nil {
		e.fields = make(map[string]string, 1)
	}
	e.fields[key] = value
	return e
}

// Field returns a structured field from the nearest coded error in the chain.
func Field(err error, key string) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.fields[key]
	}
	return ""
}

// CodeOf extracts the code from the nearest coded error in the chain, or
// CodeInternal when none is present.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// ToHTTPStatus maps a code to its HTTP status. Transport-level convenience;
// services never import net/http for this.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyMatched, CodeNotPaired, CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeDependency:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
