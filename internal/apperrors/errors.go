// Package apperrors defines the error taxonomy shared by services and
// handlers. Every error carries a kind so the HTTP layer can map it to a
// status code and clients can tell a transient conflict from a request
// that will never succeed.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation             Kind = "validation_error"
	KindNotFound               Kind = "not_found"
	KindPermission             Kind = "permission_denied"
	KindDuplicateRequest       Kind = "duplicate_request"
	KindSeatUnavailable        Kind = "seat_unavailable"
	KindTripAlreadyStarted     Kind = "trip_already_started"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindConflict               Kind = "conflict"
	KindInternal               Kind = "internal"
)

// Error is an application error with a kind and a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same call can succeed once
// capacity or contention changes. Validation, permission, not-found and
// state-machine errors never become valid by retrying.
func (e *Error) Retryable() bool {
	return e.Kind == KindSeatUnavailable || e.Kind == KindConflict
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindDuplicateRequest, KindSeatUnavailable, KindInvalidStateTransition, KindConflict, KindTripAlreadyStarted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a ValidationError.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError for the named entity.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// Permission builds a PermissionError.
func Permission(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermission, Message: fmt.Sprintf(format, args...)}
}

// DuplicateRequest builds a DuplicateRequestError.
func DuplicateRequest(message string) *Error {
	return &Error{Kind: KindDuplicateRequest, Message: message}
}

// SeatUnavailable builds a SeatUnavailableError.
func SeatUnavailable(format string, args ...interface{}) *Error {
	return &Error{Kind: KindSeatUnavailable, Message: fmt.Sprintf(format, args...)}
}

// TripAlreadyStarted builds a TripAlreadyStartedError.
func TripAlreadyStarted() *Error {
	return &Error{Kind: KindTripAlreadyStarted, Message: "trip has already started"}
}

// InvalidStateTransition builds an InvalidStateTransitionError.
func InvalidStateTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Message: fmt.Sprintf("invalid state transition from %s to %s", from, to),
	}
}

// Conflict builds a transient conflict error, surfaced after bounded
// retries against lock contention are exhausted.
func Conflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// Internal wraps an unexpected error.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an application error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
