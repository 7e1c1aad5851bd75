package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// SlackNotifier posts events to a Slack incoming webhook as one colored
// attachment per event.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
	Username   string
	Client     *http.Client
}

// SlackOption configures SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithSlackChannel overrides the webhook's default channel.
func WithSlackChannel(channel string) SlackOption {
	return func(n *SlackNotifier) { n.Channel = channel }
}

// WithSlackUsername sets the name the message is posted under.
func WithSlackUsername(username string) SlackOption {
	return func(n *SlackNotifier) { n.Username = username }
}

// NewSlackNotifier creates a notifier posting to webhookURL.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{
		WebhookURL: webhookURL,
		Username:   WebhookSource,
		Client:     newHTTPClient(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	title := slackEmoji(event.Type) + " " + event.Type.Title()

	att := slackAttachment{
		Fallback:  title + ": " + event.Message,
		Color:     slackColor(event.Severity),
		Title:     title,
		TitleLink: event.URL,
		Text:      event.Message,
		Fields:    slackFields(event.Metadata),
		Footer:    slackFooter(event),
	}
	if !event.Timestamp.IsZero() {
		att.Timestamp = event.Timestamp.Unix()
	}

	payload := slackPayload{
		Channel:     n.Channel,
		Username:    n.Username,
		Attachments: []slackAttachment{att},
	}
	return postJSON(ctx, n.Client, "slack", n.WebhookURL, payload, nil)
}

func slackEmoji(t EventType) string {
	switch t {
	case EventArtifactStored:
		return ":package:"
	case EventArtifactFailed:
		return ":warning:"
	case EventCycleFailed:
		return ":x:"
	case EventBuildsSwept:
		return ":broom:"
	default:
		return ":information_source:"
	}
}

func slackColor(severity string) string {
	switch severityRank(severity) {
	case 2:
		return "danger"
	case 1:
		return "warning"
	default:
		return "good"
	}
}

// slackFooter names the workflow and run, omitting whichever is unknown.
func slackFooter(event Event) string {
	var parts []string
	if event.Workflow != "" {
		parts = append(parts, event.Workflow)
	}
	if event.RunID != "" {
		parts = append(parts, "run "+event.RunID)
	}
	return strings.Join(parts, " | ")
}

// slackFields renders metadata as short fields in key order. Slices are
// joined with commas.
func slackFields(metadata map[string]any) []slackField {
	if len(metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slackField, 0, len(keys))
	for _, k := range keys {
		var value string
		switch v := metadata[k].(type) {
		case []string:
			value = strings.Join(v, ", ")
		default:
			value = fmt.Sprint(v)
		}
		fields = append(fields, slackField{Title: k, Value: value, Short: true})
	}
	return fields
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Fallback  string       `json:"fallback"`
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
