package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest run timing details.
type Snapshot struct {
	LastRunTime   *time.Time `json:"last_run_time"`
	RunDurationMS int64      `json:"run_duration_ms"`
	AlertsRaised  int        `json:"alerts_raised"`
}

// Tracker records run timing for health endpoints.
type Tracker struct {
	mu           sync.RWMutex
	lastRun      time.Time
	runDuration  time.Duration
	alertsRaised int
	ready        bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordRun updates run timing and readiness.
func (t *Tracker) RecordRun(duration time.Duration, alertsRaised int) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastRun = now
	t.runDuration = duration
	t.alertsRaised = alertsRaised
	t.ready = true
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastRun.IsZero() {
		value := t.lastRun
		last = &value
	}
	return Snapshot{
		LastRunTime:   last,
		RunDurationMS: int64(t.runDuration / time.Millisecond),
		AlertsRaised:  t.alertsRaised,
	}
}

// Ready reports whether at least one successful run has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last run completed within 2x the watch interval.
func (t *Tracker) Healthy(now time.Time, watchInterval time.Duration) bool {
	if t == nil {
		return false
	}
	if watchInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastRun.IsZero() {
		return false
	}
	return now.Sub(t.lastRun) <= 2*watchInterval
}
