package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeDataInsufficient ErrorType = "DATA_INSUFFICIENT"
	ErrTypeNumerical        ErrorType = "NUMERICAL"
	ErrTypeExtraction       ErrorType = "EXTRACTION"
	ErrTypeIteration        ErrorType = "ITERATION"
	ErrTypeValidation       ErrorType = "VALIDATION"
	ErrTypeNotFound         ErrorType = "NOT_FOUND"
	ErrTypeConfig           ErrorType = "CONFIG"
	ErrTypeStorage          ErrorType = "STORAGE"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// NewDataInsufficientError reports too few usable observations for a model.
func NewDataInsufficientError(message string) *AppError {
	return NewAppError(ErrTypeDataInsufficient, message, nil)
}

// NewNumericalError wraps a linear algebra or estimation failure.
func NewNumericalError(message string, cause error) *AppError {
	return NewAppError(ErrTypeNumerical, message, cause)
}

// NewExtractionError reports a fitted model whose quantities could not be read out.
func NewExtractionError(message string, cause error) *AppError {
	return NewAppError(ErrTypeExtraction, message, cause)
}

// NewIterationError reports a failed walk-forward window.
func NewIterationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeIteration, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
