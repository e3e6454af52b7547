package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable failure code surfaced to API clients.
type Code string

const (
	Unauthenticated   Code = "Unauthenticated"
	Forbidden         Code = "Forbidden"
	NotFound          Code = "NotFound"
	InvalidTransition Code = "InvalidTransition"
	DuplicateOpenPair Code = "DuplicateOpenPair"
	DuplicateVote     Code = "DuplicateVote"
	BadSplit          Code = "BadSplit"
	BadDuration       Code = "BadDuration"
	BadInput          Code = "BadInput"
	StaleStatus       Code = "StaleStatus"
	Conflict          Code = "Conflict"
	Internal          Code = "Internal"
)

// Error carries a code plus a human cause. The cause is returned to the
// client verbatim for 4xx failures.
type Error struct {
	Code  Code
	Cause string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Cause)
}

func New(code Code, cause string) *Error {
	return &Error{Code: code, Cause: cause}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Cause: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an error chain, defaulting to Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// CauseOf extracts the human cause, hiding internals behind a generic one.
func CauseOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return "Server Error"
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps a failure code onto the response status: 4xx for
// client-attributable failures, 5xx otherwise.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case BadSplit, BadDuration, BadInput:
		return http.StatusBadRequest
	case InvalidTransition, DuplicateOpenPair, DuplicateVote, StaleStatus, Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
