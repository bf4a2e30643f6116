// Package apperr carries the coded errors shared by the store, services and HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeMissingField    Code = "MISSING_FIELD"
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeConflict        Code = "CONFLICT"
	CodeExpired         Code = "EXPIRED"
	CodeDeliveryFailure Code = "DELIVERY_FAILURE"
	CodeInvalid         Code = "INVALID"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeRateLimited     Code = "RATE_LIMITED"
)

// HTTPStatus maps a code to the status written by the HTTP boundary.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeMissingField, CodeInvalid:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeDeliveryFailure:
		return http.StatusBadGateway
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func MissingField(field string) *Error {
	return &Error{
		Code:     CodeMissingField,
		Message:  field + " is required",
		Metadata: map[string]string{"field": field},
	}
}

func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

func Invalid(message string) *Error {
	return New(CodeInvalid, message)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// PublicMessage returns the message safe to show to a caller.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}
