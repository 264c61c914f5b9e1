package emporia

import "errors"

// Domain-specific errors for Emporia API operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotAuthenticated is returned when a request is attempted before Login.
	ErrNotAuthenticated = errors.New("emporia: not authenticated")

	// ErrAuthFailed is returned when login is rejected by the service.
	ErrAuthFailed = errors.New("emporia: authentication failed")

	// ErrTimeout is returned when a request exceeds its deadline.
	// The scheduler treats this distinctly from other recoverable failures.
	ErrTimeout = errors.New("emporia: request timed out")

	// ErrStatus is returned for unexpected HTTP status codes.
	ErrStatus = errors.New("emporia: unexpected response status")
)
