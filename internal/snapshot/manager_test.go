package snapshot

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/nholik/stack-warden/internal/component"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sqlSpecs(dump, restore, reset string) map[component.Component]component.Spec {
	specs := map[component.Component]component.Spec{
		component.PrimaryDatastore: {
			DumpCommand:    []string{"sh", "-c", dump},
			RestoreCommand: []string{"sh", "-c", restore},
		},
	}
	if reset != "" {
		spec := specs[component.PrimaryDatastore]
		spec.ResetCommand = []string{"sh", "-c", reset}
		specs[component.PrimaryDatastore] = spec
	}
	return specs
}

func gunzip(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	return data
}

func TestCreate_SQLSnapshot(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewManager(zerolog.Nop(), dir, sqlSpecs("printf 'CREATE TABLE memories (id int);\n'", "cat", ""), WithClock(fixedClock(now)))

	snap, err := mgr.Create(context.Background(), component.PrimaryDatastore)
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	wantName := "primary-datastore_20250601_120000.sql.gz"
	if filepath.Base(snap.Path) != wantName {
		t.Fatalf("artifact name %q, want %q", filepath.Base(snap.Path), wantName)
	}
	if snap.SizeBytes <= 0 {
		t.Fatalf("expected positive artifact size, got %d", snap.SizeBytes)
	}
	if !snap.CreatedAt.Equal(now) {
		t.Fatalf("created at %v, want %v", snap.CreatedAt, now)
	}

	if got := string(gunzip(t, snap.Path)); got != "CREATE TABLE memories (id int);\n" {
		t.Fatalf("unexpected dump content: %q", got)
	}

	if vr := mgr.Validate(snap); !vr.OK {
		t.Fatalf("fresh snapshot failed validation: %s", vr.Detail)
	}
}

func TestCreate_FailedDumpLeavesNoPartial(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(zerolog.Nop(), dir, sqlSpecs("echo some data; exit 3", "cat", ""))

	_, err := mgr.Create(context.Background(), component.PrimaryDatastore)
	var creation *CreationError
	if !errors.As(err, &creation) {
		t.Fatalf("expected CreationError, got %v", err)
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatalf("read dir: %v", readErr)
	}
	for _, entry := range entries {
		t.Fatalf("unexpected leftover file: %s", entry.Name())
	}
}

func TestCreate_EmptyDumpFails(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(zerolog.Nop(), dir, sqlSpecs("true", "cat", ""))

	_, err := mgr.Create(context.Background(), component.PrimaryDatastore)
	if err == nil {
		t.Fatal("expected error for empty dump")
	}
	if !strings.Contains(err.Error(), "no data") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_ArchiveSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "databases", "graph"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "databases", "graph", "nodes.db"), []byte("node data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dir := t.TempDir()
	specs := map[component.Component]component.Spec{
		component.GraphStore: {DataDir: dataDir},
	}
	mgr := NewManager(zerolog.Nop(), dir, specs)

	snap, err := mgr.Create(context.Background(), component.GraphStore)
	if err != nil {
		t.Fatalf("create archive snapshot: %v", err)
	}
	if snap.Format != component.FormatArchive {
		t.Fatalf("unexpected format %q", snap.Format)
	}
	if vr := mgr.Validate(snap); !vr.OK {
		t.Fatalf("archive failed validation: %s", vr.Detail)
	}
}

func TestCreate_ArchiveMissingDataDirFails(t *testing.T) {
	dir := t.TempDir()
	specs := map[component.Component]component.Spec{
		component.GraphStore: {DataDir: filepath.Join(dir, "does-not-exist")},
	}
	mgr := NewManager(zerolog.Nop(), dir, specs)

	if _, err := mgr.Create(context.Background(), component.GraphStore); err == nil {
		t.Fatal("expected error for missing data dir")
	}
}

func TestCreateAll_SharesTimestampAndReportsPerComponent(t *testing.T) {
	graphData := t.TempDir()
	auxData := t.TempDir()
	for _, dir := range []string{graphData, auxData} {
		if err := os.WriteFile(filepath.Join(dir, "data.bin"), []byte("payload"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	dir := t.TempDir()
	specs := map[component.Component]component.Spec{
		component.PrimaryDatastore: {
			DumpCommand:    []string{"sh", "-c", "exit 7"}, // dump unavailable
			RestoreCommand: []string{"cat"},
		},
		component.GraphStore:     {DataDir: graphData},
		component.AuxiliaryStore: {DataDir: auxData},
	}
	now := time.Date(2025, 6, 2, 3, 4, 5, 0, time.UTC)
	mgr := NewManager(zerolog.Nop(), dir, specs, WithClock(fixedClock(now)))

	made, failures := mgr.CreateAll(context.Background())
	if len(made) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(made))
	}
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if _, ok := failures[component.PrimaryDatastore]; !ok {
		t.Fatalf("expected primary-datastore failure, got %v", failures)
	}
	for _, snap := range made {
		if !snap.CreatedAt.Equal(now) {
			t.Fatalf("snapshot %s has timestamp %v, want shared %v", snap.Component, snap.CreatedAt, now)
		}
	}
}

func writeArtifact(t *testing.T, dir string, comp component.Component, at time.Time, content []byte) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(content); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	path := filepath.Join(dir, component.ArtifactName(comp, at))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestList_SortedNewestFirst(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(zerolog.Nop(), dir, nil)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	oldest := writeArtifact(t, dir, component.PrimaryDatastore, base, []byte("a"))
	middle := writeArtifact(t, dir, component.PrimaryDatastore, base.AddDate(0, 0, 3), []byte("b"))
	newest := writeArtifact(t, dir, component.PrimaryDatastore, base.AddDate(0, 0, 9), []byte("c"))
	// Other components must not leak into the listing.
	writeArtifact(t, dir, component.GraphStore, base.AddDate(0, 0, 20), []byte("d"))

	snaps, err := mgr.List(component.PrimaryDatastore)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	if snaps[0].Path != newest || snaps[1].Path != middle || snaps[2].Path != oldest {
		t.Fatalf("unexpected order: %s, %s, %s", snaps[0].Path, snaps[1].Path, snaps[2].Path)
	}
	for i := 1; i < len(snaps); i++ {
		if !snaps[i].CreatedAt.Before(snaps[i-1].CreatedAt) {
			t.Fatalf("not strictly descending at %d", i)
		}
	}
}

func TestList_MissingDirIsEmpty(t *testing.T) {
	mgr := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "nope"), nil)
	snaps, err := mgr.List(component.GraphStore)
	if err != nil {
		t.Fatalf("list on missing dir: %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("expected empty list, got %d entries", len(snaps))
	}
}

func TestPrune_RemovesOnlyExpired(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	mgr := NewManager(zerolog.Nop(), dir, nil, WithClock(fixedClock(now)))

	day0 := writeArtifact(t, dir, component.PrimaryDatastore, now, []byte("day zero content"))
	day10 := writeArtifact(t, dir, component.PrimaryDatastore, now.AddDate(0, 0, -10), []byte("day ten content"))
	day40 := writeArtifact(t, dir, component.PrimaryDatastore, now.AddDate(0, 0, -40), []byte("day forty content"))

	keepBytes := map[string][]byte{}
	for _, path := range []string{day0, day10} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		keepBytes[path] = data
	}

	removed, err := mgr.Prune(component.PrimaryDatastore, 30)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 1 || removed[0].Path != day40 {
		t.Fatalf("unexpected removals: %+v", removed)
	}
	if _, err := os.Stat(day40); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected day40 artifact gone, stat err=%v", err)
	}
	for path, want := range keepBytes {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("surviving artifact %s changed", path)
		}
	}
}

func TestPrune_RejectsNonPositiveRetention(t *testing.T) {
	mgr := NewManager(zerolog.Nop(), t.TempDir(), nil)
	if _, err := mgr.Prune(component.PrimaryDatastore, 0); err == nil {
		t.Fatal("expected error for zero retention")
	}
}

func TestValidate_TruncatedArtifact(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(zerolog.Nop(), dir, sqlSpecs("seq 1 500", "cat", ""))

	snap, err := mgr.Create(context.Background(), component.PrimaryDatastore)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	data, err := os.ReadFile(snap.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if err := os.WriteFile(snap.Path, data[:len(data)/2], 0o644); err != nil {
		t.Fatalf("truncate artifact: %v", err)
	}

	if vr := mgr.Validate(snap); vr.OK {
		t.Fatal("expected truncated artifact to fail validation")
	}
}

func TestRestore_SQLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	restored := filepath.Join(dir, "restored.sql")
	dump := "printf 'CREATE TABLE memories (id int);\nINSERT INTO memories VALUES (1);\n'"
	specs := sqlSpecs(dump, "cat > "+restored, "rm -f "+restored)
	mgr := NewManager(zerolog.Nop(), dir, specs)

	snap, err := mgr.Create(context.Background(), component.PrimaryDatastore)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := mgr.Restore(context.Background(), component.PrimaryDatastore, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatalf("read restored dump: %v", err)
	}
	want := "CREATE TABLE memories (id int);\nINSERT INTO memories VALUES (1);\n"
	if string(got) != want {
		t.Fatalf("restored content %q, want %q", got, want)
	}

	if _, exists := mgr.IncompleteMarker(component.PrimaryDatastore); exists {
		t.Fatal("marker should be cleared after successful restore")
	}
}

func TestRestore_FailureLeavesMarker(t *testing.T) {
	dir := t.TempDir()
	specs := sqlSpecs("printf 'SELECT 1;\n'", "exit 1", "")
	mgr := NewManager(zerolog.Nop(), dir, specs)

	snap, err := mgr.Create(context.Background(), component.PrimaryDatastore)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = mgr.Restore(context.Background(), component.PrimaryDatastore, snap)
	var restoreErr *RestoreError
	if !errors.As(err, &restoreErr) {
		t.Fatalf("expected RestoreError, got %v", err)
	}
	if restoreErr.Marker == "" {
		t.Fatal("expected marker path in error")
	}
	if _, exists := mgr.IncompleteMarker(component.PrimaryDatastore); !exists {
		t.Fatal("expected marker to remain after failed restore")
	}
}

func TestRestore_RejectsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	specs := sqlSpecs("printf 'SELECT 1;\n'", "cat", "")
	mgr := NewManager(zerolog.Nop(), dir, specs)

	snap, err := mgr.Create(context.Background(), component.PrimaryDatastore)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := os.WriteFile(snap.Path, []byte("not gzip"), 0o644); err != nil {
		t.Fatalf("corrupt artifact: %v", err)
	}

	if err := mgr.Restore(context.Background(), component.PrimaryDatastore, snap); err == nil {
		t.Fatal("expected restore of corrupt artifact to fail")
	}
	// Validation happens before the reset, so no marker should exist.
	if _, exists := mgr.IncompleteMarker(component.PrimaryDatastore); exists {
		t.Fatal("marker must not be written when the source is rejected upfront")
	}
}

func TestRestore_ArchiveFailureAfterWipeKeepsMarker(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "neo4j")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "kernel.version"), []byte("5.26"), 0o644); err != nil {
		t.Fatalf("write live store: %v", err)
	}

	dir := t.TempDir()
	specs := map[component.Component]component.Spec{
		component.GraphStore: {DataDir: dataDir},
	}
	mgr := NewManager(zerolog.Nop(), dir, specs)

	// A traversal entry walks cleanly in validation but is rejected during
	// extraction, failing the restore after the live directory is gone.
	artifact := filepath.Join(dir, "graph-store_20250601_120000.tar.gz")
	f, err := os.Create(artifact)
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	payload := []byte("junk")
	if err := tw.WriteHeader(&tar.Header{Name: "../escape", Mode: 0o644, Size: int64(len(payload))}); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := tw.Write(payload); err != nil {
		t.Fatalf("tar body: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close artifact: %v", err)
	}

	snap := Snapshot{
		Component: component.GraphStore,
		Path:      artifact,
		Format:    component.FormatArchive,
	}
	err = mgr.Restore(context.Background(), component.GraphStore, snap)
	var restoreErr *RestoreError
	if !errors.As(err, &restoreErr) {
		t.Fatalf("expected RestoreError, got %v", err)
	}
	if restoreErr.Marker == "" {
		t.Fatal("expected marker path in error")
	}
	if strings.HasPrefix(restoreErr.Marker, dataDir) {
		t.Fatalf("marker %s must not live inside the wiped directory", restoreErr.Marker)
	}
	if _, exists := mgr.IncompleteMarker(component.GraphStore); !exists {
		t.Fatal("expected marker to survive the failed restore")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "kernel.version")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("live store should have been wiped before the failure")
	}
}

func TestRestore_ArchiveRoundTrip(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "neo4j")
	if err := os.MkdirAll(filepath.Join(dataDir, "databases"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	original := map[string]string{
		filepath.Join("databases", "graph.db"): "graph payload",
		"kernel.version":                       "5.26",
	}
	for rel, content := range original {
		path := filepath.Join(dataDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	dir := t.TempDir()
	specs := map[component.Component]component.Spec{
		component.GraphStore: {DataDir: dataDir},
	}
	mgr := NewManager(zerolog.Nop(), dir, specs)

	snap, err := mgr.Create(context.Background(), component.GraphStore)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Corrupt the live store, then restore from the snapshot.
	if err := os.WriteFile(filepath.Join(dataDir, "kernel.version"), []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("modify live store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "stray.tmp"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("add stray file: %v", err)
	}

	if err := mgr.Restore(context.Background(), component.GraphStore, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	for rel, want := range original {
		got, err := os.ReadFile(filepath.Join(dataDir, rel))
		if err != nil {
			t.Fatalf("read restored %s: %v", rel, err)
		}
		if string(got) != want {
			t.Fatalf("restored %s = %q, want %q", rel, got, want)
		}
	}
	if _, err := os.Stat(filepath.Join(dataDir, "stray.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected stray file wiped by restore")
	}
	if _, exists := mgr.IncompleteMarker(component.GraphStore); exists {
		t.Fatal("marker should be cleared after successful restore")
	}
}
