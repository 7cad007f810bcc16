package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across stageflow.
type ErrorCode string

// Workflow error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrInvalidWorkflow    ErrorCode = "INVALID_WORKFLOW"
	ErrAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentFailed        ErrorCode = "AGENT_FAILED"
	ErrApprovalRejected   ErrorCode = "APPROVAL_REJECTED"
	ErrApprovalNotFound   ErrorCode = "APPROVAL_NOT_FOUND"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrConfigInvalid      ErrorCode = "CONFIG_INVALID"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrCancelled          ErrorCode = "CANCELLED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrPersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: defaultStatus(code)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func defaultStatus(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest, ErrInvalidWorkflow, ErrConfigInvalid:
		return http.StatusBadRequest
	case ErrAgentNotFound, ErrApprovalNotFound, ErrSessionNotFound:
		return http.StatusNotFound
	case ErrApprovalRejected:
		return http.StatusConflict
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
