package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nholik/stack-warden/internal/healthcheck"
	"github.com/nholik/stack-warden/internal/metrics"
	"github.com/nholik/stack-warden/internal/monitor"
	"github.com/nholik/stack-warden/internal/runner"
	"github.com/nholik/stack-warden/internal/server"
)

func newBackupMonitorCmd(a *app) *cobra.Command {
	var watch bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "backup-monitor [--watch]",
		Short: "Check backup health and alert on problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := a.newManager()
			if err != nil {
				return err
			}
			notifier, err := a.newNotifier(dryRun)
			if err != nil {
				return err
			}
			mon := monitor.New(a.logger, manager, a.thresholds())

			if watch {
				tracker := healthcheck.NewTracker()
				collector := metrics.New()
				server.Start(cmd.Context(), a.logger, a.cfg.MonitorInterval, tracker, collector, a.cfg.HealthPort, a.cfg.MetricsPort)

				loop := runner.New(a.logger, a.cfg.MonitorInterval, mon,
					runner.WithNotifier(notifier),
					runner.WithMetrics(collector),
					runner.WithTracker(tracker),
				)
				return loop.Run(cmd.Context())
			}

			report, err := mon.Run(cmd.Context())
			if err != nil {
				return err
			}

			for _, alert := range report.Alerts {
				cmd.Printf("[%s] %s %s: %s\n", alert.Severity, alert.Component, alert.Check, alert.Message)
			}
			for _, usage := range report.Usage {
				cmd.Printf("%-18s %d snapshot(s), %s, newest %s old\n",
					usage.Component, usage.Snapshots, formatSize(usage.TotalBytes), usage.NewestAge.Round(time.Second))
			}

			if len(report.Alerts) > 0 {
				if err := notifier.Notify(cmd.Context(), report); err != nil {
					a.logger.Error().Err(err).Msg("alert delivery failed")
				}
			}
			if report.Critical() {
				return fmt.Errorf("%d alert(s), backup health critical", len(report.Alerts))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running on an interval and serve health/metrics endpoints")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log alerts instead of delivering them")
	return cmd
}
