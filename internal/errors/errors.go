// Package errors defines the domain error kinds services return and maps
// them to HTTP responses at the transport edge. Services never import gin;
// handlers never inspect raw gorm errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// Kind classifies a domain error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindUnauthenticated
	KindPermissionDenied
	KindNotFound
	KindAlreadyExists
	KindResourceExhausted
	KindUnavailable
)

// Error carries a kind plus a client-safe message. Wrapped causes stay
// server-side.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Message is the text safe to show a client.
func (e *Error) Message() string { return e.msg }

func (e *Error) Kind() Kind { return e.kind }

func newError(kind Kind, msg string) *Error { return &Error{kind: kind, msg: msg} }

func InvalidArgument(format string, args ...any) *Error {
	return newError(KindInvalidArgument, fmt.Sprintf(format, args...))
}

func Unauthenticated(format string, args ...any) *Error {
	return newError(KindUnauthenticated, fmt.Sprintf(format, args...))
}

func PermissionDenied(format string, args ...any) *Error {
	return newError(KindPermissionDenied, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, fmt.Sprintf(format, args...))
}

func AlreadyExists(format string, args ...any) *Error {
	return newError(KindAlreadyExists, fmt.Sprintf(format, args...))
}

func ResourceExhausted(format string, args ...any) *Error {
	return newError(KindResourceExhausted, fmt.Sprintf(format, args...))
}

func Unavailable(format string, args ...any) *Error {
	return newError(KindUnavailable, fmt.Sprintf(format, args...))
}

// Wrap attaches a cause to a domain error without changing what the client
// sees.
func (e *Error) Wrap(cause error) *Error {
	return &Error{kind: e.kind, msg: e.msg, cause: cause}
}

// HTTPStatus maps any error to a status code and client message. Unknown
// errors become 500 with a generic message so internals never leak.
func HTTPStatus(err error) (int, string) {
	var de *Error
	if errors.As(err, &de) {
		return statusForKind(de.kind), de.Message()
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict, "resource already exists"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}

func statusForKind(k Kind) int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindResourceExhausted:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is supports errors.Is comparisons between two domain errors of the same
// kind and message.
func (e *Error) Is(target error) bool {
	var de *Error
	if !errors.As(target, &de) {
		return false
	}
	return e.kind == de.kind && e.msg == de.msg
}
