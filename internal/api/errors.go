package api

import (
	"errors"
	"net/http"

	"chatmallu/client/internal/service"
	"chatmallu/client/internal/state"
	apperrors "chatmallu/client/pkg/errors"

	"github.com/gin-gonic/gin"
)

// fail records err for the ErrorHandler middleware, translated into an
// AppError.
func fail(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
	c.Abort()
}

// failInference is fail for calls that went to the inference server.
func failInference(c *gin.Context, err error) {
	if appErr := domainError(err); appErr != nil {
		fail(c, appErr)
		return
	}
	fail(c, apperrors.Wrap(err, http.StatusBadGateway, apperrors.CodeInferenceDown, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	fail(c, apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, err.Error()))
}

func toAppError(err error) *apperrors.AppError {
	if appErr := domainError(err); appErr != nil {
		return appErr
	}
	return apperrors.FromError(err)
}

func domainError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, state.ErrCharacterNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeCharacterNotFound, err.Error())
	case errors.Is(err, state.ErrGroupNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeGroupNotFound, err.Error())
	case errors.Is(err, service.ErrUnknownChat):
		return apperrors.NewNotFoundError(apperrors.CodeChatNotFound, err.Error())
	case errors.Is(err, state.ErrUnknownMember):
		return apperrors.NewBadRequestError(apperrors.CodeUnknownMember, err.Error())
	case errors.Is(err, state.ErrInvalidSettings):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidSettings, err.Error())
	case errors.Is(err, state.ErrInvalidName),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrEmptyChat):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, err.Error())
	}
	return nil
}
