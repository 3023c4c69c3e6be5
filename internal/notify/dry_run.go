package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nholik/stack-warden/internal/monitor"
)

// DryRunNotifier logs alerts without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, report monitor.Report) error {
	for _, alert := range report.Alerts {
		n.logger.Info().
			Str("component", string(alert.Component)).
			Str("check", string(alert.Check)).
			Str("severity", string(alert.Severity)).
			Str("message", alert.Message).
			Msg("[DRY-RUN] Would notify")
	}
	return nil
}
