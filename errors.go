package artifactmgr

import "errors"

// Provider errors
var (
	// ErrMissingCredentials indicates a provider was created without a
	// token or repository coordinates.
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrNoDownloadURL indicates the provider returned an artifact without
	// a download URL.
	ErrNoDownloadURL = errors.New("artifact has no download URL")
)
