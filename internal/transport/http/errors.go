package http

import (
	"errors"
	"net/http"

	apierrors "ethvaluation/internal/errors"
	"ethvaluation/internal/services"
)

// serviceError maps service sentinel errors to API errors. Other errors,
// including AppErrors, pass through unchanged.
func serviceError(err error) error {
	switch {
	case errors.Is(err, services.ErrRunNotFinished):
		return apierrors.ErrRunNotFinished
	case errors.Is(err, services.ErrTooManyRuns):
		return apierrors.ErrRunLimitReached
	case errors.Is(err, services.ErrShuttingDown):
		return apierrors.New(http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
	}
	return err
}
