package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nholik/stack-warden/internal/config"
	"github.com/nholik/stack-warden/internal/deploy"
	"github.com/nholik/stack-warden/internal/logging"
	"github.com/nholik/stack-warden/internal/monitor"
	"github.com/nholik/stack-warden/internal/notify"
	"github.com/nholik/stack-warden/internal/snapshot"
)

// Exit codes for scripted callers.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitPrecheck    = 2
	ExitHealth      = 3
	ExitConcurrency = 4
)

type app struct {
	cfg    config.Config
	logger zerolog.Logger
}

// NewRootCmd builds the stack-warden command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "stack-warden",
		Short:         "Backup and deployment warden for the memory API stack",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = logging.NewWithLevel(cfg.LogLevel)
			return nil
		},
	}

	root.AddCommand(
		newBackupCmd(a),
		newBackupValidateCmd(a),
		newBackupListCmd(a),
		newBackupCleanupCmd(a),
		newBackupMonitorCmd(a),
		newRestoreCmd(a),
		newDeployCmd(a),
	)

	return root
}

// Execute runs the CLI and returns its process exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return ExitOK
}

func exitCode(err error) int {
	var precheckErr *deploy.PrecheckError
	if errors.As(err, &precheckErr) {
		return ExitPrecheck
	}
	var timeoutErr *deploy.HealthTimeoutError
	if errors.As(err, &timeoutErr) {
		return ExitHealth
	}
	var concErr *deploy.ConcurrencyError
	if errors.As(err, &concErr) {
		return ExitConcurrency
	}
	return ExitFailure
}

func (a *app) newManager() (*snapshot.Manager, error) {
	specs, err := a.cfg.ComponentSpecs()
	if err != nil {
		return nil, err
	}
	return snapshot.NewManager(a.logger, a.cfg.BackupDir, specs), nil
}

func (a *app) thresholds() monitor.Thresholds {
	return monitor.Thresholds{
		MaxAge:       a.cfg.MaxSnapshotAge,
		AgeGrace:     monitor.DefaultThresholds().AgeGrace,
		MinBytes:     a.cfg.MinSnapshotBytes,
		MinFreeBytes: a.cfg.MinFreeDiskBytes,
	}
}

func (a *app) newNotifier(dryRun bool) (notify.Notifier, error) {
	var notifiers []notify.Notifier

	slackNotifier := notify.NewSlackNotifier(a.logger, a.cfg.SlackWebhookURL)
	notifiers = append(notifiers, slackNotifier)

	webhookNotifier, err := notify.NewWebhookNotifier(a.logger, a.cfg.AlertWebhookURL, "")
	if err != nil {
		return nil, err
	}
	if webhookNotifier != nil {
		notifiers = append(notifiers, webhookNotifier)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if dryRun {
		notifier = notify.NewDryRunNotifier(a.logger, notifier)
	}
	return notifier, nil
}
