// Package domainerrors provides coded errors for the domain layer.
//
// Services attach a Code to every error that crosses a module boundary so the
// transport layer can translate it into a structured rejection without string
// matching. Codes are stable API surface; messages are not.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Delegation rejection codes. Each maps one-to-one onto a terminal
	// failure of the delegated authorization state machine.
	CodeInvalidEmailFormat Code = "invalid_email_format"
	CodeDomainNotAllowed   Code = "domain_not_allowed"
	CodeUserNotFound       Code = "user_not_found"
	CodeUserInactive       Code = "user_inactive"
	CodeResolutionError    Code = "resolution_error"
)

// Error is a domain error with a machine-readable code and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is a domain error with the same code, so coded
// errors compose with the errors.Is machinery.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the cause
// chain. Returns nil if err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var d *Error
	if !errors.As(err, &d) {
		return false
	}
	return d.Code == code
}

// CodeOf returns the code of the outermost domain error in err's chain, or
// CodeInternal when err carries no code.
func CodeOf(err error) Code {
	var d *Error
	if errors.As(err, &d) {
		return d.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost domain error, or an empty
// string when err carries no code.
func MessageOf(err error) string {
	var d *Error
	if errors.As(err, &d) {
		return d.Message
	}
	return ""
}
