package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nholik/stack-warden/internal/component"
	"github.com/nholik/stack-warden/internal/snapshot"
)

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <component> <file>",
		Short: "Restore a component from a snapshot (destructive)",
		Long: `Restore replaces the component's live data with the snapshot contents.
The target is reset before the snapshot is applied; an interrupted restore
leaves a RESTORE_INCOMPLETE marker behind.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := component.Parse(args[0])
			if err != nil {
				return err
			}

			path := args[1]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("snapshot file: %w", err)
			}

			named, createdAt, err := component.ParseArtifactName(filepath.Base(path))
			if err != nil {
				return err
			}
			if named != comp {
				return fmt.Errorf("artifact %s belongs to %s, not %s", filepath.Base(path), named, comp)
			}

			manager, err := a.newManager()
			if err != nil {
				return err
			}

			snap := snapshot.Snapshot{
				Component: comp,
				CreatedAt: createdAt,
				Path:      path,
				SizeBytes: info.Size(),
				Format:    component.FormatOf(comp),
			}

			if err := manager.Restore(cmd.Context(), comp, snap); err != nil {
				return err
			}
			cmd.Printf("restored %s from %s\n", comp, path)
			return nil
		},
	}
}
