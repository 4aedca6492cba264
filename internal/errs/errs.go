// Package errs provides structured error handling with machine-readable codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeValidation Code = "VALIDATION"

	// Lookup errors
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeRecordingNotFound Code = "RECORDING_NOT_FOUND"

	// Storage errors, tagged by operation
	CodeStoreRead   Code = "STORE_READ"
	CodeStoreWrite  Code = "STORE_WRITE"
	CodeStoreDelete Code = "STORE_DELETE"

	// Provider errors
	CodeProvider         Code = "PROVIDER"
	CodeRecordingMissing Code = "RECORDING_MISSING"

	// Policy errors
	CodePolicyBlocked Code = "POLICY_BLOCKED"

	// Server-side faults
	CodeInternal Code = "INTERNAL"
)

// Error is a domain error carrying a code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new coded error.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new coded error wrapping a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// GetCode extracts the error code from any error, unwrapping nested causes.
// Returns CodeUnknown for errors without a code.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeSessionNotFound, CodeRecordingNotFound:
		return http.StatusNotFound
	case CodePolicyBlocked:
		return http.StatusForbidden
	case CodeProvider, CodeRecordingMissing:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the message safe to expose to clients. Unknown errors
// collapse to a generic message so internals never leak through the API.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}
