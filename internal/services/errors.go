package services

import "errors"

// Analysis service errors
var (
	ErrRunNotFinished = errors.New("analysis run has not finished")
	ErrTooManyRuns    = errors.New("too many analysis runs in progress")
	ErrShuttingDown   = errors.New("service is shutting down")
)
