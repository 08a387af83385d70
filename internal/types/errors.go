package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for the API layer. The HTTP façade is
// the only place that maps kinds to status codes; everything below it
// returns kinds.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindVersionConflict ErrorKind = "version_conflict"
	KindConflict        ErrorKind = "conflict"
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	KindInternal        ErrorKind = "internal_error"
	KindBadGateway      ErrorKind = "bad_gateway"
	KindGatewayTimeout  ErrorKind = "gateway_timeout"
)

// Error is a classified error. Detail carries machine-readable context
// (e.g. the current version on a version conflict).
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// NewError builds a classified error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// WithDetail attaches one detail key to the error and returns it.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any, 1)
	}
	e.Detail[key] = value
	return e
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report KindInternal so nothing leaks through the API untyped.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
