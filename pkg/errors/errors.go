package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes returned by the API.
const (
	CodeCharacterNotFound = "CHARACTER_NOT_FOUND"
	CodeGroupNotFound     = "GROUP_NOT_FOUND"
	CodeChatNotFound      = "CHAT_NOT_FOUND"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidSettings   = "INVALID_SETTINGS"
	CodeUnknownMember     = "UNKNOWN_MEMBER"
	CodeInferenceDown     = "INFERENCE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
)

// AppError is an API failure: the status, a stable machine-readable code
// and a message safe to show the user. Cause is logged, never rendered.
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Cause      error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{StatusCode: statusCode, Code: code, Message: message}
}

// Wrap builds an AppError that keeps cause for the logs.
func Wrap(cause error, statusCode int, code, message string) *AppError {
	return &AppError{StatusCode: statusCode, Code: code, Message: message, Cause: cause}
}

func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// Is reports whether err carries an AppError with the code of target.
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == target.Code
}
