package scratch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bimcvprep/internal/logging"
)

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("set old time: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	root := filepath.Join(t.TempDir(), "scratch")
	run, err := NewRun(root, "abc")
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if run.Dir != filepath.Join(root, "run-abc") {
		t.Fatalf("unexpected run dir %s", run.Dir)
	}
	if err := os.WriteFile(filepath.Join(run.Dir, "payload"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if !inUse(run.Dir) {
		t.Fatal("expected locked run dir to be in use")
	}
	if _, err := NewRun(root, "abc"); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}

	if err := run.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(run.Dir); !os.IsNotExist(err) {
		t.Fatalf("run dir should be removed, stat err = %v", err)
	}
	if err := run.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldUnlockedDirectories(t *testing.T) {
	root := t.TempDir()

	oldDir := filepath.Join(root, "run-crashed")
	if err := os.MkdirAll(filepath.Join(oldDir, "session-1"), 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	age(t, oldDir, 2*time.Hour)

	recentDir := filepath.Join(root, "run-recent")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	active, err := NewRun(root, "active")
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	t.Cleanup(func() { _ = active.Close() })
	age(t, active.Dir, 2*time.Hour)

	oldFile := filepath.Join(root, "stray.txt")
	if err := os.WriteFile(oldFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	age(t, oldFile, 2*time.Hour)

	result := CleanStale(context.Background(), root, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected only %s removed, got %v", oldDir, result.Removed)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != active.Dir {
		t.Fatalf("expected active run skipped, got %v", result.Skipped)
	}
	for _, keep := range []string{recentDir, active.Dir, oldFile} {
		if _, err := os.Stat(keep); err != nil {
			t.Errorf("%s should still exist: %v", keep, err)
		}
	}
}

func TestListDirectories(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "run-x")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "a.bin"), make([]byte, 100), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.bin"), make([]byte, 28), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dirs, err := ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 1 {
		t.Fatalf("expected 1 dir, got %d", len(dirs))
	}
	if dirs[0].Name != "run-x" || dirs[0].Size != 128 || dirs[0].InUse {
		t.Fatalf("unexpected dir info: %+v", dirs[0])
	}

	missing, err := ListDirectories(filepath.Join(root, "missing"))
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing root, got %v, %v", missing, err)
	}
}
