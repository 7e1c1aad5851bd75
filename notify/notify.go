package notify

import (
	"context"
	"time"
)

// EventType identifies what the agent did.
type EventType string

const (
	EventArtifactStored EventType = "artifact_stored"
	EventArtifactFailed EventType = "artifact_failed"
	EventCycleFailed    EventType = "cycle_failed"
	EventBuildsSwept    EventType = "builds_swept"
)

// Title returns a short label for chat messages.
func (t EventType) Title() string {
	switch t {
	case EventArtifactStored:
		return "Artifact stored"
	case EventArtifactFailed:
		return "Artifact download failed"
	case EventCycleFailed:
		return "Poll cycle failed"
	case EventBuildsSwept:
		return "Old builds swept"
	default:
		return string(t)
	}
}

// Severities, lowest first.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

func severityRank(s string) int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Event describes something the agent did or failed to do.
type Event struct {
	Type      EventType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Workflow  string         `json:"workflow,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	URL       string         `json:"url,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Notifier delivers events. Callers log failures and carry on.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
