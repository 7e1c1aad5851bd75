// Package errors turns startup and API failures into messages an operator
// can act on.
//
// Explain classifies an error and wraps it in a *CLIError carrying a short
// message, optional details and a suggestion:
//
//	settings, err := config.Load(opts)
//	if err != nil {
//	    fmt.Fprintln(os.Stderr, errors.Explain(err, apiURL))
//	    os.Exit(1)
//	}
//
// The category sentinels (ErrNotAuthenticated, ErrPermissionDenied,
// ErrConnectionFailed, ErrMisconfigured) stay reachable with errors.Is.
package errors
