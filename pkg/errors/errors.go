// Package errors defines the typed failures services return and the API renders.
// Every failure carries one Code; the code alone decides the HTTP status, whether
// clients may retry, and how much of the message reaches them.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

type exposure uint8

const (
	// generic hides the caller's message behind the code's fallback text.
	generic exposure = iota
	message
	messageAndDetails
)

type codeInfo struct {
	status    int
	retryable bool
	fallback  string
	expose    exposure
}

var codes = map[Code]codeInfo{
	CodeValidation:          {http.StatusBadRequest, false, "validation failed", messageAndDetails},
	CodeUnauthorized:        {http.StatusUnauthorized, false, "identity required", message},
	CodeNotFound:            {http.StatusNotFound, false, "resource not found", message},
	CodeConflict:            {http.StatusConflict, false, "conflict detected", message},
	CodeInvalidTransition:   {http.StatusUnprocessableEntity, false, "status transition not allowed", messageAndDetails},
	CodeInsufficientBalance: {http.StatusUnprocessableEntity, false, "insufficient available balance", messageAndDetails},
	CodeInternal:            {http.StatusInternalServerError, true, "internal server error", generic},
	CodeDependency:          {http.StatusServiceUnavailable, true, "upstream unavailable", generic},
}

func (c Code) info() codeInfo {
	if info, ok := codes[c]; ok {
		return info
	}
	return codes[CodeInternal]
}

// Status is the HTTP status for c. Unknown codes map to 500.
func (c Code) Status() int { return c.info().status }

func (c Code) Retryable() bool { return c.info().retryable }

// Error is the typed failure carried through services and rendered by the API layer.
type Error struct {
	code       Code
	message    string
	details    any
	retryAfter time.Duration
	cause      error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// WithRetryAfter tells clients how long to back off before retrying.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if e != nil {
		e.retryAfter = d
	}
	return e
}

func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

// Public returns the message and details that may be shown to API clients.
func (e *Error) Public() (string, any) {
	info := e.Code().info()
	msg := e.Message()
	if info.expose == generic || msg == "" {
		msg = info.fallback
	}
	if info.expose != messageAndDetails {
		return msg, nil
	}
	return msg, e.Details()
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error with the same code, so errors.Is(err, New(CodeNotFound, ""))
// works as a code check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost typed error, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
