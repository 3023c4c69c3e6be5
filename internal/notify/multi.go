package notify

import (
	"context"

	"github.com/nholik/stack-warden/internal/monitor"
)

// MultiNotifier fans out alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that dispatches to all provided notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier == nil {
			continue
		}
		filtered = append(filtered, notifier)
	}
	return &MultiNotifier{notifiers: filtered}
}

// Notify implements Notifier. Every notifier gets the report; the first
// delivery error is returned after the fan-out completes.
func (m *MultiNotifier) Notify(ctx context.Context, report monitor.Report) error {
	var firstErr error
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, report); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
