package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/nholik/stack-warden/internal/component"
	"github.com/nholik/stack-warden/internal/snapshot"
)

// Severity grades an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Check names the condition an alert came from.
type Check string

const (
	CheckExistence Check = "existence"
	CheckAge       Check = "age"
	CheckSize      Check = "size"
	CheckIntegrity Check = "integrity"
	CheckDiskSpace Check = "disk-space"
)

// AlertEvent is one finding from a monitor run.
type AlertEvent struct {
	Component component.Component `json:"component"`
	Check     Check               `json:"check"`
	Severity  Severity            `json:"severity"`
	Message   string              `json:"message"`
}

// Usage summarizes backup storage for one component.
type Usage struct {
	Component  component.Component `json:"component"`
	Snapshots  int                 `json:"snapshots"`
	TotalBytes int64               `json:"total_bytes"`
	NewestAge  time.Duration       `json:"newest_age"`
}

// Report is the complete output of one monitor run. It is re-derived from the
// snapshot listing every time; the monitor keeps no state between runs.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Alerts      []AlertEvent `json:"alerts"`
	Usage       []Usage      `json:"usage"`
	TotalBytes  int64        `json:"total_bytes"`
	FreeBytes   uint64       `json:"free_bytes"`
}

// Critical reports whether any alert in the report is critical.
func (r Report) Critical() bool {
	for _, alert := range r.Alerts {
		if alert.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// SnapshotSource is the read-only slice of the backup manager the monitor
// needs. The monitor never writes to the backup directory.
type SnapshotSource interface {
	Dir() string
	List(comp component.Component) ([]snapshot.Snapshot, error)
	Validate(snap snapshot.Snapshot) snapshot.ValidationResult
}

// Thresholds configures the monitor's checks.
type Thresholds struct {
	// MaxAge is the acceptable age of the newest snapshot. The comparison
	// adds AgeGrace and compares whole elapsed hours to avoid flapping at
	// the boundary.
	MaxAge   time.Duration
	AgeGrace time.Duration
	// MinBytes guards against silently empty dumps that still compress to
	// valid archives.
	MinBytes int64
	// MinFreeBytes is the required headroom on the backup medium.
	MinFreeBytes uint64
}

// DefaultThresholds mirror the shipped configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxAge:       24 * time.Hour,
		AgeGrace:     time.Hour,
		MinBytes:     1 << 20,
		MinFreeBytes: 1 << 30,
	}
}

// DiskUsageFunc reports filesystem usage for a path.
type DiskUsageFunc func(path string) (*disk.UsageStat, error)

// Monitor evaluates backup health for every component.
type Monitor struct {
	logger     zerolog.Logger
	source     SnapshotSource
	thresholds Thresholds
	now        func() time.Time
	diskUsage  DiskUsageFunc
}

// Option customizes monitor behavior.
type Option func(*Monitor)

// WithClock overrides the time source (primarily for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithDiskUsage overrides how free space is measured (primarily for testing).
func WithDiskUsage(fn DiskUsageFunc) Option {
	return func(m *Monitor) {
		m.diskUsage = fn
	}
}

// New constructs a Monitor over the given snapshot source.
func New(logger zerolog.Logger, source SnapshotSource, thresholds Thresholds, opts ...Option) *Monitor {
	m := &Monitor{
		logger:     logger,
		source:     source,
		thresholds: thresholds,
		now:        time.Now,
		diskUsage:  disk.Usage,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run evaluates every check for every component and returns the full report.
// It never stops at the first finding: partial visibility into a degraded
// system is worse than one more alert in the list.
func (m *Monitor) Run(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{GeneratedAt: m.now().UTC()}

	for _, comp := range component.All() {
		snaps, err := m.source.List(comp)
		if err != nil {
			report.Alerts = append(report.Alerts, AlertEvent{
				Component: comp,
				Check:     CheckExistence,
				Severity:  SeverityCritical,
				Message:   fmt.Sprintf("cannot list backups: %v", err),
			})
			continue
		}

		usage := Usage{Component: comp, Snapshots: len(snaps)}
		for _, snap := range snaps {
			usage.TotalBytes += snap.SizeBytes
		}

		if len(snaps) == 0 {
			report.Alerts = append(report.Alerts, AlertEvent{
				Component: comp,
				Check:     CheckExistence,
				Severity:  SeverityCritical,
				Message:   "no backups found",
			})
			report.Usage = append(report.Usage, usage)
			report.TotalBytes += usage.TotalBytes
			continue
		}

		newest := snaps[0]
		usage.NewestAge = report.GeneratedAt.Sub(newest.CreatedAt)

		if alert, stale := m.checkAge(comp, newest, report.GeneratedAt); stale {
			report.Alerts = append(report.Alerts, alert)
		}
		if newest.SizeBytes < m.thresholds.MinBytes {
			report.Alerts = append(report.Alerts, AlertEvent{
				Component: comp,
				Check:     CheckSize,
				Severity:  SeverityWarning,
				Message: fmt.Sprintf("newest backup is %d bytes, below the %d byte minimum",
					newest.SizeBytes, m.thresholds.MinBytes),
			})
		}
		if vr := m.source.Validate(newest); !vr.OK {
			report.Alerts = append(report.Alerts, AlertEvent{
				Component: comp,
				Check:     CheckIntegrity,
				Severity:  SeverityCritical,
				Message:   fmt.Sprintf("newest backup failed integrity check: %s", vr.Detail),
			})
		}

		report.Usage = append(report.Usage, usage)
		report.TotalBytes += usage.TotalBytes
	}

	if stat, err := m.diskUsage(m.source.Dir()); err != nil {
		report.Alerts = append(report.Alerts, AlertEvent{
			Check:    CheckDiskSpace,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("cannot measure free space on backup medium: %v", err),
		})
	} else {
		report.FreeBytes = stat.Free
		if stat.Free < m.thresholds.MinFreeBytes {
			report.Alerts = append(report.Alerts, AlertEvent{
				Check:    CheckDiskSpace,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("free space on backup medium is %d bytes, below the %d byte minimum",
					stat.Free, m.thresholds.MinFreeBytes),
			})
		}
	}

	m.logReport(report)
	return report, nil
}

// checkAge compares whole elapsed hours against the threshold plus grace so
// the alert does not flap right at the boundary.
func (m *Monitor) checkAge(comp component.Component, newest snapshot.Snapshot, now time.Time) (AlertEvent, bool) {
	elapsedHours := int(now.Sub(newest.CreatedAt).Hours())
	limitHours := int((m.thresholds.MaxAge + m.thresholds.AgeGrace).Hours())
	if elapsedHours <= limitHours {
		return AlertEvent{}, false
	}
	return AlertEvent{
		Component: comp,
		Check:     CheckAge,
		Severity:  SeverityWarning,
		Message:   fmt.Sprintf("newest backup is %d hours old, limit is %d hours", elapsedHours, limitHours),
	}, true
}

func (m *Monitor) logReport(report Report) {
	event := m.logger.Info()
	if report.Critical() {
		event = m.logger.Error()
	} else if len(report.Alerts) > 0 {
		event = m.logger.Warn()
	}
	event.
		Int("alerts", len(report.Alerts)).
		Int64("total_bytes", report.TotalBytes).
		Uint64("free_bytes", report.FreeBytes).
		Msg("backup health evaluated")

	for _, alert := range report.Alerts {
		m.logger.Warn().
			Str("component", string(alert.Component)).
			Str("check", string(alert.Check)).
			Str("severity", string(alert.Severity)).
			Msg(alert.Message)
	}
}
