// Package apperr defines the error taxonomy shared by services and the HTTP
// layer. Services return *Error values; the echo error handler maps the Kind
// to a status code and decides how much detail reaches the client.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindConflict    Kind = "CONFLICT"
	KindNotFound    Kind = "NOT_FOUND"
	KindUnavailable Kind = "UNAVAILABLE"
	KindTimeout     Kind = "TIMEOUT"
	KindInternal    Kind = "INTERNAL"
)

// Error is an application error. Message is always safe to show to clients;
// Err carries the underlying cause and is only exposed in debug mode.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error kind. Conflicts map to
// 400 because booking clients treat a taken slot as a bad request.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// MissingFields builds a validation error naming every missing field.
func MissingFields(fields ...string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "missing required fields: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// Internal wraps a store or transport failure. message is what the client
// sees when error details are hidden.
func Internal(message string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}
