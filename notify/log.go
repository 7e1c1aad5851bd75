package notify

import (
	"context"
	"log/slog"
	"sort"
)

// LogNotifier writes events to a slog.Logger. Error events log at
// ERROR, warnings at WARN, everything else at INFO.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier; a nil logger means slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	var level slog.Level
	switch severityRank(event.Severity) {
	case 2:
		level = slog.LevelError
	case 1:
		level = slog.LevelWarn
	default:
		level = slog.LevelInfo
	}

	attrs := []slog.Attr{slog.String("event", string(event.Type))}
	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	if event.URL != "" {
		attrs = append(attrs, slog.String("url", event.URL))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Attr{Key: "meta", Value: slog.GroupValue(metadataAttrs(event.Metadata)...)})
	}

	n.Logger.LogAttrs(ctx, level, event.Message, attrs...)
	return nil
}

func metadataAttrs(metadata map[string]any) []slog.Attr {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, metadata[k]))
	}
	return attrs
}
