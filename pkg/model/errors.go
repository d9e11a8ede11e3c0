// Package model holds the structured errors shared by plan validation, the
// control API and its client.
package model

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/me/gocoro/pkg/coro"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

// Status is the HTTP status the control API answers c with.
func (c ErrorCode) Status() int {
	switch c {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// APIError is a structured error returned by the API and by plan
// validation.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Report renders the message followed by one indented line per field error.
func (e *APIError) Report() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, d := range e.Details {
		fmt.Fprintf(&b, "\n  %s: %s", d.Field, d.Message)
	}
	return b.String()
}

// FieldError locates a validation problem. Field is a path such as
// tasks[0].steps[2].after.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *APIError {
	return &APIError{Code: ErrInternal, Message: err.Error()}
}

// TransitionError reports a control request the task's state rules out,
// such as pausing a task that has already been killed.
type TransitionError struct {
	Task coro.Handle
	From coro.TaskState
	To   coro.TaskState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s is %s and cannot become %s", e.Task, e.From, e.To)
}

// APIError converts e into a CONFLICT response.
func (e *TransitionError) APIError() *APIError {
	return &APIError{Code: ErrConflict, Message: e.Error()}
}
