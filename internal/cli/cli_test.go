package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/nholik/stack-warden/internal/deploy"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "generic", err: errors.New("boom"), want: ExitFailure},
		{name: "precheck", err: &deploy.PrecheckError{Item: "docker daemon", Err: errors.New("down")}, want: ExitPrecheck},
		{name: "wrapped precheck", err: fmt.Errorf("deploy: %w", &deploy.PrecheckError{Item: "api key", Err: errors.New("missing")}), want: ExitPrecheck},
		{name: "health timeout", err: &deploy.HealthTimeoutError{}, want: ExitHealth},
		{name: "concurrency", err: &deploy.ConcurrencyError{LockPath: "/tmp/lock"}, want: ExitConcurrency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd("test")

	want := []string{
		"backup", "backup-validate", "backup-list", "backup-cleanup",
		"backup-monitor", "restore", "deploy",
	}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestBackupListEmpty(t *testing.T) {
	t.Setenv("SW_BACKUP_DIR", t.TempDir())

	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"backup-list"})

	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("no snapshots found")) {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestRestoreRejectsMismatchedArtifact(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SW_BACKUP_DIR", dir)

	root := NewRootCmd("test")
	root.SetArgs([]string{"restore", "graph-store", "missing.sql.gz"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for missing artifact")
	}
}
