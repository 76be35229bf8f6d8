package errors

import (
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError carrying the same code.
// This lets callers match error kinds with the standard errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// Bootstrap engine
	CodeInitialFitFailure    = "INITIAL_FIT_FAILURE"
	CodeRefitFailure         = "REFIT_FAILURE"
	CodeQualityGateRejection = "QUALITY_GATE_REJECTION"
	CodeSchemaMismatch       = "SCHEMA_MISMATCH"
	CodeSerializationFailure = "SERIALIZATION_FAILURE"
	CodeBootstrapExhausted   = "BOOTSTRAP_EXHAUSTED"
	CodeInvalidBaseFit       = "INVALID_BASE_FIT"
	CodeSimulationFailure    = "SIMULATION_FAILURE"
)

// Sentinels for errors.Is matching. Compared by code only.
var (
	ErrNotFound             = New(CodeNotFound, "not found")
	ErrInvalidInput         = New(CodeInvalidInput, "invalid input")
	ErrConfigInvalid        = New(CodeConfigInvalid, "invalid configuration")
	ErrInitialFitFailure    = New(CodeInitialFitFailure, "initial fit failed")
	ErrRefitFailure         = New(CodeRefitFailure, "refit failed")
	ErrQualityGateRejection = New(CodeQualityGateRejection, "quality gate rejection")
	ErrSchemaMismatch       = New(CodeSchemaMismatch, "schema mismatch")
	ErrSerializationFailure = New(CodeSerializationFailure, "serialization failed")
	ErrBootstrapExhausted   = New(CodeBootstrapExhausted, "bootstrap exhausted")
	ErrInvalidBaseFit       = New(CodeInvalidBaseFit, "invalid base fit")
	ErrSimulationFailure    = New(CodeSimulationFailure, "simulation failed")
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func SchemaMismatch(format string, args ...interface{}) *AppError {
	return Newf(CodeSchemaMismatch, format, args...)
}

func QualityGateRejection(reason string) *AppError {
	return New(CodeQualityGateRejection, reason)
}

func InvalidBaseFit(message string) *AppError {
	return New(CodeInvalidBaseFit, message)
}

func SerializationFailure(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeSerializationFailure,
		Message: message,
		Cause:   cause,
	}
}

func InitialFitFailure(attempts int, cause error) *AppError {
	return &AppError{
		Code:    CodeInitialFitFailure,
		Message: fmt.Sprintf("initial fit failed after %d attempts", attempts),
		Cause:   cause,
	}
}

func RefitFailure(cause error) *AppError {
	return &AppError{
		Code:    CodeRefitFailure,
		Message: "refit failed",
		Cause:   cause,
	}
}

func SimulationFailure(message string) *AppError {
	return New(CodeSimulationFailure, message)
}

func BootstrapExhausted(workers int, cause error) *AppError {
	return &AppError{
		Code:    CodeBootstrapExhausted,
		Message: fmt.Sprintf("all %d workers failed their initial fit", workers),
		Cause:   cause,
	}
}
