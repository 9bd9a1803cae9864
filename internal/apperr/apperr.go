// Package apperr defines the error kinds surfaced by the cart, checkout and
// settlement services and their mapping to HTTP status classes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidRequest    Kind = "invalid_request"
	KindOutOfStock        Kind = "out_of_stock"
	KindEmptyCart         Kind = "empty_cart"
	KindInvalidTransition Kind = "invalid_state_transition"
	KindGatewayFailure    Kind = "gateway_failure"
	KindInvalidSignature  Kind = "invalid_signature"
	KindForbidden         Kind = "forbidden"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal_error"
)

// Error carries a kind, a human readable message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest, Msg: "invalid request"}
	ErrOutOfStock        = &Error{Kind: KindOutOfStock, Msg: "out of stock"}
	ErrEmptyCart         = &Error{Kind: KindEmptyCart, Msg: "cannot checkout with an empty cart"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Msg: "invalid state transition"}
	ErrGatewayFailure    = &Error{Kind: KindGatewayFailure, Msg: "payment gateway failure"}
	ErrInvalidSignature  = &Error{Kind: KindInvalidSignature, Msg: "invalid signature"}
	ErrForbidden         = &Error{Kind: KindForbidden, Msg: "permission denied"}
	ErrConflict          = &Error{Kind: KindConflict, Msg: "concurrent modification"}
)

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func InvalidRequest(format string, args ...interface{}) *Error {
	return New(KindInvalidRequest, format, args...)
}

func OutOfStock(available int) *Error {
	return New(KindOutOfStock, "only %d items available", available)
}

func InvalidTransition(from, to string) *Error {
	return New(KindInvalidTransition, "cannot move from %s to %s", from, to)
}

func GatewayFailure(msg string) *Error {
	return New(KindGatewayFailure, "%s", msg)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing message. Internal errors are not echoed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidRequest, KindOutOfStock, KindEmptyCart, KindInvalidTransition, KindInvalidSignature:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindGatewayFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
