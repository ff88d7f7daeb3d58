// Package errors provides the error taxonomy shared by services and handlers
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned (optionally wrapped) by stores and services.
var (
	ErrNotFound     = stderrors.New("not found")
	ErrConflict     = stderrors.New("conflict")
	ErrInvalidState = stderrors.New("invalid state")
)

// AppError is the base interface for all errors that know their HTTP shape
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// BaseError is the base implementation of AppError
type BaseError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"code"`
}

func (e *BaseError) Error() string {
	return e.Message
}

func (e *BaseError) HTTPStatus() int {
	return e.StatusCode
}

func (e *BaseError) Code() string {
	return e.ErrorCode
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	BaseError
	Resource string
}

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{
		BaseError: BaseError{
			Message:    fmt.Sprintf("%s not found", resource),
			StatusCode: http.StatusNotFound,
			ErrorCode:  "NOT_FOUND",
		},
		Resource: resource,
	}
}

// Unwrap lets errors.Is match ErrNotFound
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError carries one message per offending field
type ValidationError struct {
	BaseError
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{
		BaseError: BaseError{
			Message:    "validation failed",
			StatusCode: http.StatusUnprocessableEntity,
			ErrorCode:  "VALIDATION_ERROR",
		},
		Fields: fields,
	}
}

// NewFieldError is a ValidationError for a single field
func NewFieldError(field, message string) *ValidationError {
	return NewValidationError(map[string]string{field: message})
}

func (e *ValidationError) Error() string {
	for field, msg := range e.Fields {
		if len(e.Fields) == 1 {
			return fmt.Sprintf("%s: %s", field, msg)
		}
		break
	}
	return fmt.Sprintf("validation failed on %d fields", len(e.Fields))
}

// PermissionDeniedError represents a permission denied error
type PermissionDeniedError struct {
	BaseError
	Action   string
	Resource string
}

func NewPermissionDeniedError(action, resource string) *PermissionDeniedError {
	return &PermissionDeniedError{
		BaseError: BaseError{
			Message:    "permission denied",
			StatusCode: http.StatusForbidden,
			ErrorCode:  "PERMISSION_DENIED",
		},
		Action:   action,
		Resource: resource,
	}
}

// UnauthorizedError represents an authentication error
type UnauthorizedError struct {
	BaseError
}

func NewUnauthorizedError(message string) *UnauthorizedError {
	if message == "" {
		message = "authentication required"
	}
	return &UnauthorizedError{
		BaseError: BaseError{
			Message:    message,
			StatusCode: http.StatusUnauthorized,
			ErrorCode:  "UNAUTHORIZED",
		},
	}
}

// InternalError hides the original error from the client
type InternalError struct {
	BaseError
	OriginalError error
}

func NewInternalError(original error) *InternalError {
	return &InternalError{
		BaseError: BaseError{
			Message:    "internal server error",
			StatusCode: http.StatusInternalServerError,
			ErrorCode:  "INTERNAL_ERROR",
		},
		OriginalError: original,
	}
}

func (e *InternalError) Unwrap() error { return e.OriginalError }

// ConflictError represents a conflict error (duplicate, stale transition)
type ConflictError struct {
	BaseError
	Resource string
	state    bool
}

func NewConflictError(resource, message string) *ConflictError {
	if message == "" {
		message = fmt.Sprintf("%s already exists", resource)
	}
	return &ConflictError{
		BaseError: BaseError{
			Message:    message,
			StatusCode: http.StatusConflict,
			ErrorCode:  "CONFLICT",
		},
		Resource: resource,
	}
}

// NewInvalidStateError is a conflict caused by the record being in the wrong
// state for the operation. It matches both ErrConflict and ErrInvalidState.
func NewInvalidStateError(resource, message string) *ConflictError {
	e := NewConflictError(resource, message)
	e.state = true
	return e
}

func (e *ConflictError) Unwrap() []error {
	if e.state {
		return []error{ErrConflict, ErrInvalidState}
	}
	return []error{ErrConflict}
}

// BadRequestError represents a generic bad request error
type BadRequestError struct {
	BaseError
}

func NewBadRequestError(message string) *BadRequestError {
	return &BadRequestError{
		BaseError: BaseError{
			Message:    message,
			StatusCode: http.StatusBadRequest,
			ErrorCode:  "BAD_REQUEST",
		},
	}
}

// ToHTTPError converts any error to an HTTP status and response body.
// Errors that are not AppErrors never leak their text.
func ToHTTPError(err error) (int, map[string]interface{}) {
	if err == nil {
		return http.StatusOK, nil
	}

	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve.HTTPStatus(), map[string]interface{}{
			"error":   ve.Code(),
			"message": ve.Message,
			"fields":  ve.Fields,
		}
	}

	var ie *InternalError
	if stderrors.As(err, &ie) {
		return ie.HTTPStatus(), map[string]interface{}{
			"error":   ie.Code(),
			"message": ie.Message,
		}
	}

	var ae AppError
	if stderrors.As(err, &ae) {
		return ae.HTTPStatus(), map[string]interface{}{
			"error":   ae.Code(),
			"message": ae.Error(),
		}
	}

	switch {
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound, map[string]interface{}{"error": "NOT_FOUND", "message": "not found"}
	case stderrors.Is(err, ErrConflict), stderrors.Is(err, ErrInvalidState):
		return http.StatusConflict, map[string]interface{}{"error": "CONFLICT", "message": "the record was changed by someone else"}
	}

	return http.StatusInternalServerError, map[string]interface{}{
		"error":   "INTERNAL_ERROR",
		"message": "internal server error",
	}
}

// IsInternal reports whether err would be rendered as an opaque 500
func IsInternal(err error) bool {
	status, _ := ToHTTPError(err)
	return status >= http.StatusInternalServerError
}
