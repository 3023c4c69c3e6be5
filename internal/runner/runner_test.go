package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stack-warden/internal/component"
	"github.com/nholik/stack-warden/internal/healthcheck"
	"github.com/nholik/stack-warden/internal/metrics"
	"github.com/nholik/stack-warden/internal/monitor"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
	mu      sync.Mutex
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeMonitor struct {
	report monitor.Report
	err    error
	calls  int
}

func (f *fakeMonitor) Run(_ context.Context) (monitor.Report, error) {
	f.calls++
	return f.report, f.err
}

type captureNotifier struct {
	reports []monitor.Report
	err     error
}

func (c *captureNotifier) Notify(_ context.Context, report monitor.Report) error {
	c.reports = append(c.reports, report)
	return c.err
}

func TestRunner_Run_TriggersRunOnceOnTicks(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time, 2)}
	runCalls := make(chan struct{}, 2)

	r := New(zerolog.Nop(), time.Second, &fakeMonitor{},
		WithTickerFactory(func(time.Duration) Ticker {
			return ticker
		}),
		WithRunOnce(func(context.Context) error {
			runCalls <- struct{}{}
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	ticker.ch <- time.Now()
	ticker.ch <- time.Now()

	if !waitForCalls(runCalls, 2, time.Second) {
		t.Fatalf("expected two run calls")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancel")
	}

	if !ticker.Stopped() {
		t.Fatalf("expected ticker to be stopped")
	}
}

func TestRunner_Run_StopsOnContextCancel(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}

	r := New(zerolog.Nop(), time.Second, &fakeMonitor{},
		WithTickerFactory(func(time.Duration) Ticker {
			return ticker
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancel")
	}

	if !ticker.Stopped() {
		t.Fatalf("expected ticker to be stopped")
	}
}

func TestRunner_Run_RejectsZeroWatchInterval(t *testing.T) {
	r := New(zerolog.Nop(), 0, &fakeMonitor{})

	err := r.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error for zero watch interval")
	}
}

func TestRunner_Run_ImmediateFirstRun(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time, 1)}
	runCalls := make(chan struct{}, 2)

	r := New(zerolog.Nop(), time.Second, &fakeMonitor{},
		WithTickerFactory(func(time.Duration) Ticker {
			return ticker
		}),
		WithRunOnce(func(context.Context) error {
			runCalls <- struct{}{}
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	// Should receive immediate first run without any tick
	if !waitForCalls(runCalls, 1, time.Second) {
		t.Fatalf("expected immediate first run")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}

func TestRunner_RunOnce_NotifiesOnAlerts(t *testing.T) {
	mon := &fakeMonitor{
		report: monitor.Report{
			Alerts: []monitor.AlertEvent{
				{Component: component.GraphStore, Check: monitor.CheckAge, Severity: monitor.SeverityWarning},
			},
		},
	}
	notifier := &captureNotifier{}
	tracker := healthcheck.NewTracker()

	r := New(zerolog.Nop(), time.Second, mon,
		WithNotifier(notifier),
		WithMetrics(metrics.New()),
		WithTracker(tracker),
	)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.reports) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.reports))
	}
	if !tracker.Ready() {
		t.Fatalf("expected tracker to record the run")
	}
	if got := tracker.Snapshot().AlertsRaised; got != 1 {
		t.Fatalf("expected 1 alert recorded, got %d", got)
	}
}

func TestRunner_RunOnce_SkipsNotifyWhenClean(t *testing.T) {
	notifier := &captureNotifier{}

	r := New(zerolog.Nop(), time.Second, &fakeMonitor{},
		WithNotifier(notifier),
	)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.reports) != 0 {
		t.Fatalf("no notification expected for a clean report, got %d", len(notifier.reports))
	}
}

func TestRunner_RunOnce_WrapsMonitorError(t *testing.T) {
	monErr := errors.New("disk probe failed")
	r := New(zerolog.Nop(), time.Second, &fakeMonitor{err: monErr})

	err := r.RunOnce(context.Background())
	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if !errors.Is(err, monErr) {
		t.Fatalf("expected wrapped monitor error, got %v", err)
	}
}

func waitForCalls(ch <-chan struct{}, count int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < count; i++ {
		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
	return true
}
