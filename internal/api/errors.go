// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/datalog-plotter/backend/internal/parser"
	"github.com/datalog-plotter/backend/internal/pulls"
	"github.com/datalog-plotter/backend/internal/session"
	"github.com/datalog-plotter/backend/internal/storage"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewInvalidBodyError creates a 400 validation error for a request body
// that cannot be decoded
func NewInvalidBodyError(cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: "invalid request body",
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// FromDomainError maps loader, segmenter and session errors onto API
// errors. It returns nil for errors it does not recognize.
func FromDomainError(err error) *APIError {
	var (
		formatErr     *parser.FormatError
		ioErr         *parser.IOError
		validationErr *pulls.ValidationError
	)

	switch {
	case errors.As(err, &formatErr):
		return &APIError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "MALFORMED_DATALOG",
			Message: "datalog could not be read",
			Details: formatErr.Error(),
		}
	case errors.As(err, &validationErr):
		return &APIError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "VALIDATION_ERROR",
			Message: "datalog cannot be segmented into pulls",
			Details: validationErr.Error(),
		}
	case errors.As(err, &ioErr):
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "IO_ERROR",
			Message: "datalog file could not be opened",
			Details: ioErr.Error(),
		}
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrPullNotFound),
		errors.Is(err, storage.ErrFileNotFound):
		return &APIError{
			Status:  http.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: err.Error(),
		}
	case errors.Is(err, session.ErrSessionNotReady):
		return &APIError{
			Status:  http.StatusConflict,
			Code:    "SESSION_NOT_READY",
			Message: "session is still loading",
			Details: err.Error(),
		}
	case errors.Is(err, session.ErrNotSegmented):
		return &APIError{
			Status:  http.StatusConflict,
			Code:    "NOT_SEGMENTED",
			Message: "no pulls have been computed for this session yet",
		}
	}
	return nil
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		apiErr  *APIError
		httpErr *echo.HTTPError
	)

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = FromDomainError(err)
		if apiErr == nil {
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
