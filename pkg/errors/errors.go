// Package errors defines the error envelope returned by disposition APIs.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInvalidState       = "INVALID_STATE"
	CodeAlreadyAssigned    = "ALREADY_ASSIGNED"
	CodeDirectionMismatch  = "DIRECTION_MISMATCH"
	CodeEmptyPosition      = "EMPTY_POSITION"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

var statusByCode = map[string]int{
	CodeValidationError:    http.StatusBadRequest,
	CodeBadRequest:         http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeInvalidState:       http.StatusConflict,
	CodeAlreadyAssigned:    http.StatusConflict,
	CodeDirectionMismatch:  http.StatusUnprocessableEntity,
	CodeEmptyPosition:      http.StatusUnprocessableEntity,
	CodeInternalError:      http.StatusInternalServerError,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for code, 500 when the code is unknown
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError is a caller-facing failure. Message is safe to return to clients;
// Err carries the underlying cause for logs only.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail sets one detail entry
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string, 1)
	}
	e.Details[key] = value
	return e
}

// Wrap attaches cause
func (e *AppError) Wrap(cause error) *AppError {
	e.Err = cause
	return e
}

// NewAppError builds an error with an explicit status
func NewAppError(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// New builds an error whose status follows from code
func New(code, message string) *AppError {
	return NewAppError(code, message, StatusFor(code))
}

func ErrValidation(message string) *AppError { return New(CodeValidationError, message) }

// ErrValidationWithFields carries per-field messages keyed by JSON field name
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	err := ErrValidation(message)
	err.Details = fields
	return err
}

func ErrBadRequest(message string) *AppError { return New(CodeBadRequest, message) }

func ErrNotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found")
}

func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

func ErrConflict(message string) *AppError          { return New(CodeConflict, message) }
func ErrInvalidState(message string) *AppError      { return New(CodeInvalidState, message) }
func ErrAlreadyAssigned(message string) *AppError   { return New(CodeAlreadyAssigned, message) }
func ErrDirectionMismatch(message string) *AppError { return New(CodeDirectionMismatch, message) }
func ErrEmptyPosition(message string) *AppError     { return New(CodeEmptyPosition, message) }

// ErrInternal hides the cause behind a generic message when message is empty
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return New(CodeInternalError, message)
}

func ErrServiceUnavailable(service string) *AppError {
	return New(CodeServiceUnavailable, service+" is temporarily unavailable")
}

// IsAppError reports whether err wraps an AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError finds the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError maps any error onto an AppError; unknown errors become INTERNAL_ERROR
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return ErrInternal("").Wrap(err)
}
