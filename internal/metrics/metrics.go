package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nholik/stack-warden/internal/monitor"
)

// Metrics wraps Prometheus collectors for stack-warden.
type Metrics struct {
	registry               *prometheus.Registry
	runDurationSeconds     prometheus.Histogram
	alertsTotal            *prometheus.CounterVec
	backupSizeBytes        *prometheus.GaugeVec
	backupAgeSeconds       *prometheus.GaugeVec
	backupCount            *prometheus.GaugeVec
	storageUsedBytes       prometheus.Gauge
	storageFreeBytes       prometheus.Gauge
	lastSuccessfulRunGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stack_warden_run_duration_seconds",
			Help:    "Duration of backup health runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stack_warden_alerts_total",
			Help: "Total alerts emitted by component and severity.",
		}, []string{"component", "severity"}),
		backupSizeBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stack_warden_backup_size_bytes",
			Help: "Total bytes of retained backups per component.",
		}, []string{"component"}),
		backupAgeSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stack_warden_backup_age_seconds",
			Help: "Age of the newest backup per component in seconds.",
		}, []string{"component"}),
		backupCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stack_warden_backup_count",
			Help: "Number of retained backups per component.",
		}, []string{"component"}),
		storageUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stack_warden_storage_used_bytes",
			Help: "Total bytes used by all retained backups.",
		}),
		storageFreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stack_warden_storage_free_bytes",
			Help: "Free bytes on the backup filesystem.",
		}),
		lastSuccessfulRunGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stack_warden_last_successful_run_timestamp",
			Help: "Unix timestamp of the last successful run.",
		}),
	}

	registry.MustRegister(
		m.runDurationSeconds,
		m.alertsTotal,
		m.backupSizeBytes,
		m.backupAgeSeconds,
		m.backupCount,
		m.storageUsedBytes,
		m.storageFreeBytes,
		m.lastSuccessfulRunGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRunDuration records the duration of a completed run.
func (m *Metrics) ObserveRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.Observe(duration.Seconds())
}

// RecordReport updates the per-component and storage gauges from a run report
// and counts its alerts.
func (m *Metrics) RecordReport(report monitor.Report) {
	if m == nil {
		return
	}
	for _, alert := range report.Alerts {
		m.alertsTotal.WithLabelValues(string(alert.Component), string(alert.Severity)).Inc()
	}
	for _, usage := range report.Usage {
		label := string(usage.Component)
		m.backupSizeBytes.WithLabelValues(label).Set(float64(usage.TotalBytes))
		m.backupCount.WithLabelValues(label).Set(float64(usage.Snapshots))
		m.backupAgeSeconds.WithLabelValues(label).Set(usage.NewestAge.Seconds())
	}
	m.storageUsedBytes.Set(float64(report.TotalBytes))
	m.storageFreeBytes.Set(float64(report.FreeBytes))
}

// SetLastSuccessfulRunTimestamp sets the last successful run time.
func (m *Metrics) SetLastSuccessfulRunTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulRunGauge.Set(float64(t.Unix()))
}
