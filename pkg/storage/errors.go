package storage

import (
	"errors"
	"fmt"
)

// Common storage errors. ErrConnection and ErrTimeout are the transient
// kinds; everything else is permanent and never retried.
var (
	// ErrInvalidLocation indicates an unparseable or unsupported storage URL.
	ErrInvalidLocation = errors.New("storage: invalid location")

	// ErrAuthentication indicates missing or rejected credentials.
	ErrAuthentication = errors.New("storage: authentication failed")

	// ErrConnection indicates a transient network or setup failure.
	ErrConnection = errors.New("storage: connection failed")

	// ErrTimeout indicates the operation timed out.
	ErrTimeout = errors.New("storage: operation timed out")

	// ErrNotFound indicates the requested object or container was not found.
	ErrNotFound = errors.New("storage: not found")

	// ErrPermissionDenied indicates an authorization failure.
	ErrPermissionDenied = errors.New("storage: permission denied")

	// ErrCircuitOpen indicates the circuit breaker rejected the call.
	ErrCircuitOpen = errors.New("storage: circuit breaker is open")
)

// Error represents a storage error with operation context.
type Error struct {
	Op       string // Operation that failed
	Path     string // Path involved in the operation
	Provider Provider
	Err      error // Underlying error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s: %s failed for %s: %v", e.Provider, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new storage error.
func NewError(op, path string, provider Provider, err error) error {
	return &Error{
		Op:       op,
		Path:     path,
		Provider: provider,
		Err:      err,
	}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthentication checks if an error is an authentication error.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsPermissionDenied checks if an error is a permission denied error.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsInvalidLocation checks if an error is an invalid location error.
func IsInvalidLocation(err error) bool {
	return errors.Is(err, ErrInvalidLocation)
}

// IsCircuitOpen checks if an error came from an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsRetryable reports whether an error is one of the transient kinds worth
// retrying. Authentication, not-found and permission errors are permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}
