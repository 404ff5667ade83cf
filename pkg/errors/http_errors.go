package errors

import (
	stderrors "errors"
	"net/http"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// FromError returns the AppError in err's chain. Anything else becomes an
// INTERNAL_ERROR whose message does not expose err; err stays the cause.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
}
