package errors

import "errors"

// Failure categories with actionable guidance.
var (
	// ErrNotAuthenticated indicates GitHub rejected the token.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrPermissionDenied indicates the token lacks access to the repository.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRateLimited indicates GitHub throttled the token.
	ErrRateLimited = errors.New("rate limited")

	// ErrConnectionFailed indicates the API is unreachable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrMisconfigured indicates the settings could not be loaded.
	ErrMisconfigured = errors.New("invalid configuration")
)
