package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")

	// ErrInvalidPurpose means a prompt was requested for a purpose that has
	// no registered template. Reaching it is a programming error.
	ErrInvalidPurpose = errors.New("invalid generation purpose")

	// ErrUpstreamUnavailable covers network, auth, rate-limit and status
	// faults reported by the hosted model.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout means the hosted model did not answer before the deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrPersistence means the feedback file could not be written.
	// The in-memory collection still holds the entry.
	ErrPersistence = errors.New("persistence failure")

	// ErrSandboxUnavailable means no code execution backend is configured.
	ErrSandboxUnavailable = errors.New("sandbox unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func InvalidPurpose(purpose string) *AppError {
	return &AppError{
		Err:     ErrInvalidPurpose,
		Message: fmt.Sprintf("no prompt template registered for purpose %q", purpose),
	}
}

// UpstreamUnavailable wraps a fault from the model provider. The cause is
// kept in the chain for logging; Message is safe to show to users.
func UpstreamUnavailable(provider string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrUpstreamUnavailable, cause),
		Message: fmt.Sprintf("%s is unavailable, please try again later", provider),
	}
}

func UpstreamTimeout(provider string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrUpstreamTimeout, cause),
		Message: fmt.Sprintf("%s did not respond in time", provider),
	}
}

func PersistenceFailed(path string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrPersistence, cause),
		Message: fmt.Sprintf("feedback was recorded but could not be saved to %s", path),
	}
}

func SandboxUnavailable() *AppError {
	return &AppError{
		Err:     ErrSandboxUnavailable,
		Message: "code execution is not enabled on this server",
	}
}
