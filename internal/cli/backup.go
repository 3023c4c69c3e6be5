package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nholik/stack-warden/internal/component"
)

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [component]",
		Short: "Create snapshots (all components when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.newManager()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				comp, err := component.Parse(args[0])
				if err != nil {
					return err
				}
				snap, err := manager.Create(cmd.Context(), comp)
				if err != nil {
					return err
				}
				cmd.Printf("created %s (%s)\n", snap.Path, formatSize(snap.SizeBytes))
				return nil
			}

			snaps, failures := manager.CreateAll(cmd.Context())
			for _, snap := range snaps {
				cmd.Printf("created %s (%s)\n", snap.Path, formatSize(snap.SizeBytes))
			}
			if len(failures) > 0 {
				for comp, failErr := range failures {
					cmd.PrintErrf("failed %s: %v\n", comp, failErr)
				}
				return fmt.Errorf("%d of %d components failed", len(failures), len(component.All()))
			}
			return nil
		},
	}
}

func newBackupValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-validate [component]",
		Short: "Validate the newest snapshot of each component",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.newManager()
			if err != nil {
				return err
			}

			components := component.All()
			if len(args) == 1 {
				comp, err := component.Parse(args[0])
				if err != nil {
					return err
				}
				components = []component.Component{comp}
			}

			invalid := 0
			for _, comp := range components {
				snap, found, err := manager.Latest(comp)
				if err != nil {
					return err
				}
				if !found {
					cmd.Printf("%-18s no snapshots\n", comp)
					invalid++
					continue
				}
				result := manager.Validate(snap)
				if result.OK {
					cmd.Printf("%-18s ok      %s\n", comp, snap.Path)
					continue
				}
				cmd.Printf("%-18s INVALID %s: %s\n", comp, snap.Path, result.Detail)
				invalid++
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d components failed validation", invalid, len(components))
			}
			return nil
		},
	}
}

func newBackupListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-list [component]",
		Short: "List snapshots, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.newManager()
			if err != nil {
				return err
			}

			components := component.All()
			if len(args) == 1 {
				comp, err := component.Parse(args[0])
				if err != nil {
					return err
				}
				components = []component.Component{comp}
			}

			now := time.Now().UTC()
			total := 0
			for _, comp := range components {
				snaps, err := manager.List(comp)
				if err != nil {
					return err
				}
				for _, snap := range snaps {
					age := now.Sub(snap.CreatedAt).Round(time.Minute)
					cmd.Printf("%-18s %s  %8s  %s old\n", snap.Component, snap.CreatedAt.Format(time.RFC3339), formatSize(snap.SizeBytes), age)
					total++
				}
			}
			if total == 0 {
				cmd.Println("no snapshots found")
			}
			return nil
		},
	}
}

func newBackupCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-cleanup [days]",
		Short: "Remove snapshots older than the retention window",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.newManager()
			if err != nil {
				return err
			}

			days := a.cfg.RetentionDays
			if len(args) == 1 {
				days, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("retention days %q: %w", args[0], err)
				}
			}

			removed, err := manager.PruneAll(days)
			if err != nil {
				return err
			}

			count := 0
			for comp, snaps := range removed {
				for _, snap := range snaps {
					cmd.Printf("removed %s %s\n", comp, snap.Path)
					count++
				}
			}
			cmd.Printf("removed %d snapshot(s) older than %d day(s)\n", count, days)
			return nil
		},
	}
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
