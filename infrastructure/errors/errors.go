// Package errors provides the unified error shape the admin HTTP surface
// maps onto its wire envelope: {"error": "<code>"}.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is one of the flat, lowercase wire codes the admin surface is
// allowed to emit. Unlike the teacher's numeric-prefixed scheme, the code
// itself IS the wire value, so these constants are the literal JSON strings.
type ErrorCode string

const (
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	ErrCodeRateLimited  ErrorCode = "rate_limited"

	ErrCodeInvalidJSON    ErrorCode = "invalid_json"
	ErrCodeInvalidPayload ErrorCode = "invalid_payload"
	ErrCodeInvalidPath    ErrorCode = "invalid_path"

	ErrCodeFileTooLarge    ErrorCode = "file_too_large"
	ErrCodeNonASCII        ErrorCode = "non_ascii"
	ErrCodeInvalidStructure ErrorCode = "invalid_structure"
	ErrCodeBadChecksum     ErrorCode = "bad_checksum"

	ErrCodeInternal ErrorCode = "internal"
)

// ServiceError is a structured error carrying the exact wire code and HTTP
// status the admin surface should respond with.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// NotInitialized builds the component-not-ready error for component, e.g.
// "rollout_not_initialized".
func NotInitialized(component string) *ServiceError {
	return New(ErrorCode(component+"_not_initialized"), component+" not initialized", http.StatusBadRequest)
}

func Unauthorized() *ServiceError {
	return New(ErrCodeUnauthorized, "missing or invalid admin token", http.StatusUnauthorized)
}

func RateLimited() *ServiceError {
	return New(ErrCodeRateLimited, "admission window exhausted", http.StatusTooManyRequests)
}

func InvalidJSON(err error) *ServiceError {
	return Wrap(ErrCodeInvalidJSON, "request body is not valid JSON", http.StatusBadRequest, err)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// IsServiceError reports whether err is, or wraps, a *ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a *ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status for err, defaulting to 500.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
