// Package apierrors defines the unified error taxonomy shared by the
// storage substrate, domain model, ingestion pipeline, runner channel, and
// OCI registry. Errors are tagged by Kind, not by Go type, so that every
// layer can make the same NotFound/Conflict/etc. decision without a type
// switch per package.
package apierrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is the error taxonomy from spec.md §4.7 / §7.
type Kind int

const (
	// KindInternal covers programmer errors, parentage violations, and
	// storage integrity failures. Never expected in normal operation.
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindBadRequest
	KindRangeNotSatisfiable
	KindUnsupportedMedia
	KindRateLimited
	// KindStorageBusy is surfaced by the storage substrate; callers that
	// see it inline may retry once within the busy-timeout budget (§4.1).
	KindStorageBusy
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindRangeNotSatisfiable:
		return "range_not_satisfiable"
	case KindUnsupportedMedia:
		return "unsupported_media"
	case KindRateLimited:
		return "rate_limited"
	case KindStorageBusy:
		return "storage_busy"
	default:
		return "internal"
	}
}

// HTTPStatus is the 1:1 status mapping required by spec.md §7.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	case KindRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindStorageBusy:
		// StorageBusy is re-interpreted as Conflict with retry advice at
		// the HTTP boundary (§7); it is not its own status code.
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a tagged, one-line human-readable error carrying an optional
// wrapped cause. Internal errors retain their stack via pkg/errors.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a tagged error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with Printf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying error, preserving it
// as the cause. Internal-kind wraps get a stack trace via pkg/errors so
// that a 500 can still be diagnosed from logs.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	if kind == KindInternal {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// NotFound is a convenience constructor. Per §4.7, private-resource lookups
// that would otherwise be Forbidden use this instead, to avoid leaking
// existence.
func NotFound(format string, args ...interface{}) *Error {
	return Newf(KindNotFound, format, args...)
}

// Internal wraps a cause as a programmer/integrity error.
func Internal(cause error, message string) *Error {
	return Wrap(KindInternal, cause, message)
}

// Conflict is a convenience constructor for constraint/state conflicts.
func Conflict(format string, args ...interface{}) *Error {
	return Newf(KindConflict, format, args...)
}

// BadRequest is a convenience constructor, used heavily by adapter parsing
// and OCI manifest validation.
func BadRequest(format string, args ...interface{}) *Error {
	return Newf(KindBadRequest, format, args...)
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and KindInternal otherwise — an un-tagged error reaching the
// HTTP boundary is itself a programmer error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
