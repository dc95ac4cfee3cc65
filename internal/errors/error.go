package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Category represents the type of error.
type Category string

const (
	CategorySession  Category = "session"
	CategoryProtocol Category = "protocol"
	CategoryUpload   Category = "upload"
	CategoryConfig   Category = "config"
	CategoryServer   Category = "server"
	CategoryCLI      Category = "cli"
)

// Error is a structured error with a code, an explanation and a hint.
type Error struct {
	// Code is a unique error identifier (e.g., "E100").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Status is the HTTP status code the API responds with.
	Status int

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
			Status:  http.StatusInternalServerError,
		}
	}
	return &Error{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
		Status:     template.Status,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Status:   http.StatusInternalServerError,
	}
}

// FromError wraps a standard error in an Error. Errors that already are an
// *Error are returned unchanged.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// StatusOf returns the HTTP status for err: the registered status for an
// *Error, 500 otherwise.
func StatusOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
