package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/spigell/ats-screener/internal/batch"
	"github.com/spigell/ats-screener/internal/listings"
	"github.com/spigell/ats-screener/internal/screening"
)

// AppError carries the HTTP status and client-facing message of a failure.
type AppError struct {
	StatusCode int
	Message    string
	Data       any
	Cause      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewAppError(statusCode int, message string, data any, cause error) *AppError {
	return &AppError{StatusCode: statusCode, Message: message, Data: data, Cause: cause}
}

// fromDomain maps the screening error taxonomy onto HTTP statuses.
func fromDomain(err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, screening.ErrNotFound):
		return NewAppError(fiber.StatusNotFound, err.Error(), nil, err)
	case errors.Is(err, screening.ErrStaleOverride):
		return NewAppError(fiber.StatusConflict, err.Error(), nil, err)
	case errors.Is(err, batch.ErrNotScored):
		return NewAppError(fiber.StatusConflict, err.Error(), nil, err)
	case errors.Is(err, screening.ErrInvalidThresholds),
		errors.Is(err, screening.ErrInvalidScore),
		errors.Is(err, screening.ErrInvalidStatus),
		errors.Is(err, listings.ErrInvalidListing):
		return NewAppError(fiber.StatusUnprocessableEntity, err.Error(), nil, err)
	case errors.Is(err, screening.ErrUpstreamUnavailable):
		return NewAppError(fiber.StatusServiceUnavailable, MessageServiceUnavailable, nil, err)
	default:
		return NewAppError(fiber.StatusInternalServerError, "", nil, err)
	}
}

func normalizeError(err error) (int, string, any) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.StatusCode
		if status <= 0 {
			status = fiber.StatusInternalServerError
		}
		// Internal causes never reach the client.
		if status == fiber.StatusInternalServerError {
			return status, MessageInternalServerError, nil
		}
		return status, appErr.Message, appErr.Data
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status := fiberErr.Code
		if status <= 0 || status >= 500 {
			return fiber.StatusInternalServerError, MessageInternalServerError, nil
		}
		return status, fiberErr.Message, nil
	}

	return normalizeError(fromDomain(err))
}
