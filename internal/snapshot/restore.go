package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/nholik/stack-warden/internal/component"
)

// Restore repopulates a component's live storage from the artifact. The live
// storage is reset first (drop-and-recreate, or wipe-and-extract), so this is
// the one destructive operation the manager exposes. An incomplete-restore
// marker is written before the reset and removed only after full success; if
// it is still present, the target's contents cannot be trusted. The marker
// lives in the backup directory so it survives a wipe of the target itself.
func (m *Manager) Restore(ctx context.Context, comp component.Component, snap Snapshot) error {
	spec, ok := m.specs[comp]
	if !ok {
		return &RestoreError{Component: comp, Err: fmt.Errorf("no spec configured")}
	}
	if snap.Component != comp {
		return &RestoreError{Component: comp, Err: fmt.Errorf("artifact belongs to %s", snap.Component)}
	}

	// Refuse a truncated source before touching the live store.
	if vr := m.Validate(snap); !vr.OK {
		return &RestoreError{Component: comp, Err: fmt.Errorf("artifact failed validation: %s", vr.Detail)}
	}

	switch component.FormatOf(comp) {
	case component.FormatSQL:
		return m.restoreSQL(ctx, comp, spec, snap)
	default:
		return m.restoreArchive(comp, spec, snap)
	}
}

// IncompleteMarker returns the path of the component's incomplete-restore
// marker and whether it currently exists.
func (m *Manager) IncompleteMarker(comp component.Component) (string, bool) {
	path := m.markerPath(comp)
	_, err := os.Stat(path)
	return path, err == nil
}

func (m *Manager) markerPath(comp component.Component) string {
	return filepath.Join(m.dir, string(comp)+"."+markerName)
}

func (m *Manager) restoreSQL(ctx context.Context, comp component.Component, spec component.Spec, snap Snapshot) error {
	marker := m.markerPath(comp)
	if err := writeMarker(marker, snap.Path); err != nil {
		return &RestoreError{Component: comp, Err: err}
	}

	if len(spec.ResetCommand) > 0 {
		if err := runCommand(ctx, spec.ResetCommand, nil); err != nil {
			return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("reset schema: %w", err)}
		}
	}

	f, err := os.Open(snap.Path)
	if err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("open artifact: %w", err)}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("decompress artifact: %w", err)}
	}
	defer gz.Close()

	if err := runCommand(ctx, spec.RestoreCommand, gz); err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("load dump: %w", err)}
	}

	if err := os.Remove(marker); err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("clear restore marker: %w", err)}
	}

	m.logger.Info().
		Str("component", string(comp)).
		Str("artifact", snap.Path).
		Msg("snapshot restored")
	return nil
}

func (m *Manager) restoreArchive(comp component.Component, spec component.Spec, snap Snapshot) error {
	marker := m.markerPath(comp)
	if err := writeMarker(marker, snap.Path); err != nil {
		return &RestoreError{Component: comp, Err: err}
	}

	// Wipe the live directory so extraction starts from a known-empty state.
	// A partial wipe leaves the marker in place.
	if err := os.RemoveAll(spec.DataDir); err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("wipe data dir: %w", err)}
	}
	if err := os.MkdirAll(spec.DataDir, 0o755); err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("recreate data dir: %w", err)}
	}

	f, err := os.Open(snap.Path)
	if err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("open artifact: %w", err)}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("decompress artifact: %w", err)}
	}
	defer gz.Close()

	if err := extractTar(gz, spec.DataDir); err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: err}
	}

	if err := os.Remove(marker); err != nil {
		return &RestoreError{Component: comp, Marker: marker, Err: fmt.Errorf("clear restore marker: %w", err)}
	}

	m.logger.Info().
		Str("component", string(comp)).
		Str("artifact", snap.Path).
		Str("data_dir", spec.DataDir).
		Msg("snapshot restored")
	return nil
}

func writeMarker(path, artifact string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare restore marker: %w", err)
	}
	content := fmt.Sprintf("restore in progress from %s\n", artifact)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write restore marker: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, argv []string, stdin io.Reader) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w%s", err, stderrSuffix(stderr))
	}
	return nil
}
