package notify

import (
	"context"
	"errors"
	"sync"
)

// MultiNotifier delivers each event to every target concurrently.
type MultiNotifier struct {
	Notifiers []Notifier
}

// NewMultiNotifier fans events out to notifiers. A failing target does not
// keep the others from receiving the event.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{Notifiers: notifiers}
}

// Notify implements Notifier. It waits for every target and returns their
// errors joined; logging them is left to the caller.
func (n *MultiNotifier) Notify(ctx context.Context, event Event) error {
	errs := make([]error, len(n.Notifiers))

	var wg sync.WaitGroup
	for i, target := range n.Notifiers {
		wg.Add(1)
		go func(i int, target Notifier) {
			defer wg.Done()
			errs[i] = target.Notify(ctx, event)
		}(i, target)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// MinSeverity forwards only events at or above min to next.
func MinSeverity(next Notifier, min string) Notifier {
	threshold := severityRank(min)
	return NotifierFunc(func(ctx context.Context, event Event) error {
		if severityRank(event.Severity) < threshold {
			return nil
		}
		return next.Notify(ctx, event)
	})
}
