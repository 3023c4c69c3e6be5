package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/nholik/stack-warden/internal/component"
)

const markerName = "RESTORE_INCOMPLETE"

// Manager creates and consumes snapshots under a single backup directory.
// It is the sole writer of that directory; the monitor only reads it.
type Manager struct {
	logger zerolog.Logger
	dir    string
	specs  map[component.Component]component.Spec
	now    func() time.Time
}

// Option customizes manager behavior.
type Option func(*Manager)

// WithClock overrides the time source (primarily for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager constructs a Manager over the given backup directory.
func NewManager(logger zerolog.Logger, dir string, specs map[component.Component]component.Spec, opts ...Option) *Manager {
	m := &Manager{
		logger: logger,
		dir:    dir,
		specs:  specs,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create produces one snapshot for the component. The artifact is written to
// a temporary name and renamed into place on success; a failed creation never
// leaves a partial file at the canonical path.
func (m *Manager) Create(ctx context.Context, comp component.Component) (Snapshot, error) {
	return m.createAt(ctx, comp, m.now().UTC().Truncate(time.Second))
}

// CreateAll snapshots every component concurrently, sharing one timestamp
// token so the artifacts form a single logical backup set. One component's
// failure does not abort the others; failures are reported per component.
func (m *Manager) CreateAll(ctx context.Context) ([]Snapshot, map[component.Component]error) {
	createdAt := m.now().UTC().Truncate(time.Second)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		made     []Snapshot
		failures = make(map[component.Component]error)
	)

	for _, comp := range component.All() {
		wg.Add(1)
		go func(comp component.Component) {
			defer wg.Done()
			snap, err := m.createAt(ctx, comp, createdAt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[comp] = err
				return
			}
			made = append(made, snap)
		}(comp)
	}
	wg.Wait()

	sort.Slice(made, func(i, j int) bool { return made[i].Component < made[j].Component })
	return made, failures
}

func (m *Manager) createAt(ctx context.Context, comp component.Component, createdAt time.Time) (Snapshot, error) {
	spec, ok := m.specs[comp]
	if !ok {
		return Snapshot{}, &CreationError{Component: comp, Op: "resolve spec", Err: fmt.Errorf("no spec configured")}
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Snapshot{}, &CreationError{Component: comp, Op: "prepare backup dir", Err: err}
	}

	dest := filepath.Join(m.dir, component.ArtifactName(comp, createdAt))
	if _, err := os.Stat(dest); err == nil {
		return Snapshot{}, &CreationError{Component: comp, Op: "place artifact", Err: fmt.Errorf("artifact already exists: %s", dest)}
	}

	tmp, err := os.CreateTemp(m.dir, "."+string(comp)+"-*.partial")
	if err != nil {
		return Snapshot{}, &CreationError{Component: comp, Op: "create temp file", Err: err}
	}
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	var written int64
	switch component.FormatOf(comp) {
	case component.FormatSQL:
		written, err = m.writeDump(ctx, spec, tmp)
	case component.FormatArchive:
		written, err = m.writeArchive(spec, tmp)
	}
	if err != nil {
		discard()
		return Snapshot{}, &CreationError{Component: comp, Op: "write artifact", Err: err}
	}
	if written == 0 {
		discard()
		return Snapshot{}, &CreationError{Component: comp, Op: "write artifact", Err: errors.New("dump produced no data")}
	}

	if err := tmp.Sync(); err != nil {
		discard()
		return Snapshot{}, &CreationError{Component: comp, Op: "sync artifact", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return Snapshot{}, &CreationError{Component: comp, Op: "close artifact", Err: err}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return Snapshot{}, &CreationError{Component: comp, Op: "place artifact", Err: err}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Snapshot{}, &CreationError{Component: comp, Op: "stat artifact", Err: err}
	}

	snap := Snapshot{
		Component: comp,
		CreatedAt: createdAt,
		Path:      dest,
		SizeBytes: info.Size(),
		Format:    component.FormatOf(comp),
	}

	m.logger.Info().
		Str("component", string(comp)).
		Str("path", dest).
		Int64("size_bytes", snap.SizeBytes).
		Msg("snapshot created")

	return snap, nil
}

// writeDump streams the dump command's stdout through gzip into w and returns
// the number of uncompressed bytes produced by the dump.
func (m *Manager) writeDump(ctx context.Context, spec component.Spec, w io.Writer) (int64, error) {
	cmd := exec.CommandContext(ctx, spec.DumpCommand[0], spec.DumpCommand[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("open dump pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start dump command: %w", err)
	}

	gz := gzip.NewWriter(w)
	written, copyErr := io.Copy(gz, stdout)
	gzErr := gz.Close()
	waitErr := cmd.Wait()

	if waitErr != nil {
		return written, fmt.Errorf("dump command failed: %w%s", waitErr, stderrSuffix(stderr))
	}
	if copyErr != nil {
		return written, fmt.Errorf("stream dump output: %w", copyErr)
	}
	if gzErr != nil {
		return written, fmt.Errorf("finish compression: %w", gzErr)
	}
	return written, nil
}

// writeArchive writes a tar.gz of the component's data directory into w and
// returns the number of regular files archived.
func (m *Manager) writeArchive(spec component.Spec, w io.Writer) (int64, error) {
	gz := gzip.NewWriter(w)
	entries, err := writeTar(gz, spec.DataDir)
	if err != nil {
		_ = gz.Close()
		return entries, err
	}
	if err := gz.Close(); err != nil {
		return entries, fmt.Errorf("finish compression: %w", err)
	}
	return entries, nil
}

// List returns the component's snapshots newest first. A missing or empty
// backup directory yields an empty list, not an error.
func (m *Manager) List(comp component.Component) ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	snaps := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parsed, createdAt, err := component.ParseArtifactName(entry.Name())
		if err != nil || parsed != comp {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			Component: comp,
			CreatedAt: createdAt,
			Path:      filepath.Join(m.dir, entry.Name()),
			SizeBytes: info.Size(),
			Format:    component.FormatOf(comp),
		})
	}

	// Artifact names sort lexicographically in time order.
	sort.Slice(snaps, func(i, j int) bool {
		return filepath.Base(snaps[i].Path) > filepath.Base(snaps[j].Path)
	})
	return snaps, nil
}

// Latest returns the newest snapshot for the component, or ok=false when the
// component has no snapshots.
func (m *Manager) Latest(comp component.Component) (Snapshot, bool, error) {
	snaps, err := m.List(comp)
	if err != nil {
		return Snapshot{}, false, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, false, nil
	}
	return snaps[0], true, nil
}

// Prune deletes the component's snapshots older than retentionDays. Deleting
// an already-absent file is not an error. Returns the snapshots removed.
func (m *Manager) Prune(comp component.Component, retentionDays int) ([]Snapshot, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	snaps, err := m.List(comp)
	if err != nil {
		return nil, err
	}
	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays)

	var removed []Snapshot
	for _, snap := range snaps {
		if !snap.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(snap.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", snap.Path, err)
		}
		m.logger.Info().
			Str("component", string(comp)).
			Str("path", snap.Path).
			Time("created_at", snap.CreatedAt).
			Msg("snapshot pruned")
		removed = append(removed, snap)
	}
	return removed, nil
}

// PruneAll applies retention to every component, one component at a time.
func (m *Manager) PruneAll(retentionDays int) (map[component.Component][]Snapshot, error) {
	removed := make(map[component.Component][]Snapshot)
	var firstErr error
	for _, comp := range component.All() {
		pruned, err := m.Prune(comp, retentionDays)
		if len(pruned) > 0 {
			removed[comp] = pruned
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return removed, firstErr
}

func stderrSuffix(buf bytes.Buffer) string {
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return ""
	}
	const limit = 512
	if len(text) > limit {
		text = text[:limit]
	}
	return ": " + text
}
