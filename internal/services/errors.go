package services

import (
	"errors"
	"fmt"

	"bookstore/internal/repositories"
)

// ErrorKind classifies a domain error for the transport layer.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindConflict
	KindPaymentFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindPaymentFailure:
		return "payment_failure"
	}
	return "unknown"
}

// Error is a failure the caller is allowed to see. Message is safe to return
// to clients; Err carries the underlying cause, if any.
type Error struct {
	Kind    ErrorKind
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

// ErrInsufficientStock is wrapped by reservation failures.
var ErrInsufficientStock = errors.New("insufficient stock")

// NotFound reports a missing entity, e.g. NotFound("Book").
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// PaymentFailed reports a provider-side failure.
func PaymentFailed(message string, cause error) *Error {
	return &Error{Kind: KindPaymentFailure, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// notFoundOr converts a repository miss into NotFound(entity) and passes any
// other error through.
func notFoundOr(err error, entity string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return NotFound(entity)
	}
	return err
}
