package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spdk/artifact-manager/config"
	amhttp "github.com/spdk/artifact-manager/http"
)

// CLIError wraps an error with operator-facing context and suggestions.
type CLIError struct {
	// Err is the failure category, one of the package sentinels.
	Err error

	// Cause is the error that was explained.
	Cause error

	// Message is a short description of what went wrong
	Message string

	// Suggestion is an actionable hint
	Suggestion string

	// Details provides additional context (optional)
	Details string
}

func (e *CLIError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Details)
	}

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString(e.Suggestion)
	}

	return sb.String()
}

// Unwrap exposes both the category and the cause to errors.Is and errors.As.
func (e *CLIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Explain classifies err and returns a *CLIError describing it. apiURL is
// the GitHub API root used in connection hints; empty means github.com.
// Errors that match no category are returned unchanged.
func Explain(err error, apiURL string) error {
	if err == nil {
		return nil
	}
	var already *CLIError
	if errors.As(err, &already) {
		return err
	}
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}

	var missing *config.MissingEnvError
	if errors.As(err, &missing) {
		return &CLIError{
			Err:        ErrMisconfigured,
			Cause:      err,
			Message:    "Please set GITHUB_TOKEN, REPO_OWNER and REPO_NAME environment variables.",
			Details:    "Missing: " + strings.Join(missing.Names, ", "),
			Suggestion: "Export the variables before starting the agent.",
		}
	}

	var invalid *config.InvalidValueError
	if errors.As(err, &invalid) {
		where := "the configuration"
		if invalid.Source != "" {
			where = fmt.Sprintf("the %s configuration", invalid.Source)
		}
		return &CLIError{
			Err:        ErrMisconfigured,
			Cause:      err,
			Message:    fmt.Sprintf("Invalid value for %s.", invalid.Key),
			Details:    err.Error(),
			Suggestion: fmt.Sprintf("Correct %s in %s.", invalid.Key, where),
		}
	}

	switch {
	case IsAuthError(err):
		return &CLIError{
			Err:        ErrNotAuthenticated,
			Cause:      err,
			Message:    "GitHub rejected the token.",
			Details:    err.Error(),
			Suggestion: "Check that GITHUB_TOKEN is valid and has not expired.",
		}
	case IsPermissionError(err):
		return &CLIError{
			Err:        ErrPermissionDenied,
			Cause:      err,
			Message:    "The token cannot read this repository's workflow runs.",
			Details:    err.Error(),
			Suggestion: "Grant the token read access to Actions on REPO_OWNER/REPO_NAME.",
		}
	case amhttp.IsRateLimited(err):
		return &CLIError{
			Err:        ErrRateLimited,
			Cause:      err,
			Message:    "GitHub rate limit exceeded.",
			Details:    err.Error(),
			Suggestion: "Raise poll_interval or use a token with a higher rate limit.",
		}
	case IsConnectionError(err):
		return &CLIError{
			Err:        ErrConnectionFailed,
			Cause:      err,
			Message:    fmt.Sprintf("Cannot connect to GitHub at %s", apiURL),
			Details:    err.Error(),
			Suggestion: "Check the network connection and the api_url setting.",
		}
	}

	return err
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotAuthenticated) || amhttp.IsUnauthorized(err)
}

// IsPermissionError reports whether err is an authorization failure.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, amhttp.ErrForbidden)
}

// IsConnectionError reports whether err is a network-level failure,
// including TLS errors and timeouts.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionFailed) {
		return true
	}

	var apiErr *amhttp.APIError
	if errors.As(err, &apiErr) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"dial tcp",
		"certificate",
		"x509",
		"tls",
		"timeout",
		"deadline exceeded",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
