// Package notify reports agent events: stored artifacts, failed downloads,
// failed poll cycles and swept builds.
//
// Targets implement Notifier. LogNotifier writes to slog, SlackNotifier
// posts to an incoming webhook and WebhookNotifier POSTs a JSON envelope
// to any URL. MultiNotifier fans out to several targets at once and
// MinSeverity drops events below a threshold:
//
//	notifier := notify.NewMultiNotifier(
//	    notify.NewLogNotifier(logger),
//	    notify.MinSeverity(notify.NewSlackNotifier(webhookURL), notify.SeverityError),
//	)
package notify
