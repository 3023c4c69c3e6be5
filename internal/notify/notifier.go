package notify

import (
	"context"

	"github.com/nholik/stack-warden/internal/monitor"
)

// Notifier delivers backup health alerts to external systems. Transport lives
// here; the monitor only produces the events.
type Notifier interface {
	Notify(ctx context.Context, report monitor.Report) error
}
