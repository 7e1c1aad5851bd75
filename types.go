package artifactmgr

import (
	"context"
	"io"
	"time"
)

// WorkflowRun is one execution of a CI pipeline, as listed by the provider.
type WorkflowRun struct {
	ID         int64
	Name       string
	RunNumber  int
	Status     string
	Conclusion string
	HTMLURL    string
	CreatedAt  time.Time
}

// Artifact is a named zip payload attached to a workflow run.
type Artifact struct {
	ID          int64
	Name        string
	RunID       int64
	DownloadURL string
	SizeInBytes int64
	Expired     bool
}

// ArtifactFetcher streams an artifact's zip payload.
type ArtifactFetcher interface {
	// DownloadArtifact writes the zip payload of a into w and returns the
	// number of bytes written.
	DownloadArtifact(ctx context.Context, a *Artifact, w io.Writer) (int64, error)
}

// Provider is the CI provider API used by the poller.
type Provider interface {
	ArtifactFetcher

	// ListRuns returns runs named exactly workflowName created within the
	// last maxAgeDays days, in no particular order.
	ListRuns(ctx context.Context, workflowName string, maxAgeDays int) ([]*WorkflowRun, error)

	// ListArtifacts returns every artifact attached to a run.
	ListArtifacts(ctx context.Context, runID int64) ([]*Artifact, error)
}

// findArtifact returns the artifact with the given name, or nil.
func findArtifact(artifacts []*Artifact, name string) *Artifact {
	for _, a := range artifacts {
		if a.Name == name {
			return a
		}
	}
	return nil
}
