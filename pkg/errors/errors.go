package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error codes shared by the session core and the chat backend
const (
	CodeNetworkFailure       = "NETWORK_FAILURE"
	CodeEmptyInput           = "EMPTY_INPUT"
	CodeChannelError         = "CHANNEL_ERROR"
	CodeNoActiveConversation = "NO_ACTIVE_CONVERSATION"
	CodeCircuitOpen          = "CIRCUIT_OPEN"
	CodeSessionClosed        = "SESSION_CLOSED"
	CodeSuperseded           = "SUPERSEDED"
	CodeFailedSendNotFound   = "FAILED_SEND_NOT_FOUND"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeNotFound             = "CONVERSATION_NOT_FOUND"
	CodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Stack      string `json:"-"`
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Wrap records err as the cause of e
func (e *AppError) Wrap(err error) *AppError {
	e.cause = err
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Stack:      string(debug.Stack()),
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewTooManyRequestsError creates a 429 Too Many Requests error
func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(code string, message string) *AppError {
	return NewError(http.StatusServiceUnavailable, code, message)
}

// NewNetworkFailure wraps a collaborator failure seen by the client side
func NewNetworkFailure(op string, err error) *AppError {
	return NewError(http.StatusBadGateway, CodeNetworkFailure, op+" failed").Wrap(err)
}

// NewChannelError wraps a push channel transport failure
func NewChannelError(err error) *AppError {
	return NewError(http.StatusBadGateway, CodeChannelError, "push channel failed").Wrap(err)
}

// Is checks if err is an AppError carrying the target's code
func Is(err error, target *AppError) bool {
	if target == nil {
		return false
	}
	return HasCode(err, target.Code)
}

// HasCode reports whether any AppError in err's chain carries code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}
