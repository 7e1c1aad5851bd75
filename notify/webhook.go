package notify

import (
	"context"
	"net/http"
)

// WebhookSource identifies this agent in webhook payloads.
const WebhookSource = "artifact-manager"

// WebhookPayload is the JSON body POSTed for every event.
type WebhookPayload struct {
	Source string `json:"source"`
	Event  Event  `json:"event"`
}

// WebhookNotifier POSTs events as JSON to an HTTP endpoint. The event type
// is repeated in the X-Artifact-Manager-Event header so receivers can
// route without parsing the body.
type WebhookNotifier struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

// NewWebhookNotifier creates a webhook notifier. headers are added to every
// request, e.g. an Authorization header expected by the receiver.
func NewWebhookNotifier(url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:     url,
		Headers: headers,
		Client:  newHTTPClient(),
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	headers := map[string]string{
		"User-Agent":               WebhookSource,
		"X-Artifact-Manager-Event": string(event.Type),
	}
	for k, v := range n.Headers {
		headers[k] = v
	}
	return postJSON(ctx, n.Client, "webhook", n.URL, WebhookPayload{Source: WebhookSource, Event: event}, headers)
}
