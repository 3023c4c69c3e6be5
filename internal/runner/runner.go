package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stack-warden/internal/healthcheck"
	"github.com/nholik/stack-warden/internal/metrics"
	"github.com/nholik/stack-warden/internal/monitor"
	"github.com/nholik/stack-warden/internal/notify"
)

// Ticker is the minimal interface needed for driving the watch loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Monitor is the backup health check surface the runner drives.
type Monitor interface {
	Run(ctx context.Context) (monitor.Report, error)
}

// Runner executes backup health runs on an interval.
type Runner struct {
	logger        zerolog.Logger
	watchInterval time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error

	monitor  Monitor
	notifier notify.Notifier
	metrics  *metrics.Metrics
	tracker  *healthcheck.Tracker
	now      func() time.Time
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-run execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(r *Runner) {
		r.runOnce = runOnce
	}
}

// WithNotifier sets the alert notifier used by the default RunOnce.
func WithNotifier(notifier notify.Notifier) Option {
	return func(r *Runner) {
		r.notifier = notifier
	}
}

// WithMetrics enables Prometheus metric updates.
func WithMetrics(collector *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = collector
	}
}

// WithTracker enables health endpoint run tracking.
func WithTracker(tracker *healthcheck.Tracker) Option {
	return func(r *Runner) {
		r.tracker = tracker
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New constructs a Runner around the given monitor.
func New(logger zerolog.Logger, watchInterval time.Duration, mon Monitor, opts ...Option) *Runner {
	r := &Runner{
		logger:        logger,
		watchInterval: watchInterval,
		monitor:       mon,
		now:           time.Now,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}
	r.runOnce = r.defaultRunOnce

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts the watch loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.watchInterval <= 0 {
		return errors.New("watch interval must be greater than zero")
	}

	// Run immediately on startup
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error().Err(err).Msg("initial health run failed")
	}

	ticker := r.tickerFactory(r.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner stopped")
			return nil
		case <-ticker.C():
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("health run failed")
			}
		}
	}
}

// RunOnce executes a single backup health run.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.runOnce(ctx)
}

func (r *Runner) defaultRunOnce(ctx context.Context) error {
	start := r.now()

	report, err := r.monitor.Run(ctx)
	if err != nil {
		return wrapRuntime("monitor run", err)
	}

	duration := r.now().Sub(start)
	r.metrics.ObserveRunDuration(duration)
	r.metrics.RecordReport(report)
	r.metrics.SetLastSuccessfulRunTimestamp(r.now().UTC())
	r.tracker.RecordRun(duration, len(report.Alerts))

	if r.notifier != nil && len(report.Alerts) > 0 {
		if err := r.notifier.Notify(ctx, report); err != nil {
			return wrapRuntime("notify", err)
		}
	}

	return nil
}
