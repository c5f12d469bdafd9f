// Package apperror defines the error taxonomy shared by the place and user
// services and its mapping to HTTP status codes.
package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers and for the transport layer.
type Kind string

const (
	KindNotFound       Kind = "NOT_FOUND"
	KindAuthentication Kind = "AUTHENTICATION_FAILED"
	KindAuthorization  Kind = "NOT_AUTHORIZED"
	KindValidation     Kind = "VALIDATION_ERROR"
	KindConflict       Kind = "CONFLICT"
	KindTransient      Kind = "TRANSIENT"
	KindService        Kind = "SERVICE_ERROR"
	KindInternal       Kind = "INTERNAL_ERROR"
)

// HTTPStatus returns the status code the routing layer uses for the kind.
// Authentication failures are 403 and ownership failures 401; clients of the
// API depend on that pairing.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusForbidden
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindValidation, KindConflict:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, for logs
	Message string // safe to show to clients
	Err     error  // wrapped cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrTransient      = &Error{Kind: KindTransient}
	ErrService        = &Error{Kind: KindService}
)

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind that wraps cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func NotFound(op, message string) *Error {
	return New(KindNotFound, op, message)
}

func Authentication(op string, cause error) *Error {
	return Wrap(KindAuthentication, op, "Authentication failed!", cause)
}

func Authorization(op, message string) *Error {
	return New(KindAuthorization, op, message)
}

func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

func Transient(op string, cause error) *Error {
	return Wrap(KindTransient, op, "Temporary failure, please try again.", cause)
}

func Service(op, message string, cause error) *Error {
	return Wrap(KindService, op, message, cause)
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of err, falling back to fallback
// when err carries none.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// IsRetryable reports whether the operation that produced err may be retried.
// Only transient failures are.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
