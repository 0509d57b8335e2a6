// Package apperr defines the structured failure taxonomy shared by the fetch
// client, the scraper, and the job orchestrator. Every failure that reaches a
// job's terminal state carries one of these codes.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers and persisted job rows.
type Code string

// Taxonomy codes. Blocked failures are never retried; parse is also the
// downgrade target for uncatalogued internal failures at the job boundary.
const (
	CodeValidation Code = "validation_error"
	CodeNetwork    Code = "network_error"
	CodeBlocked    Code = "blocked_error"
	CodeTimeout    Code = "timeout_error"
	CodeParse      Code = "parse_error"
	CodeNotFound   Code = "not_found_error"
)

// Error is a taxonomy-coded failure with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a coded error around a cause. The cause stays reachable via
// errors.Is/errors.As.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the taxonomy code from err. Errors that carry no code are
// reported as parse failures so the worker loop never surfaces a raw error.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeParse
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
