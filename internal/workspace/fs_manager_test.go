package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRootManagerCreateAndOpen(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "sessions")
	mgr, err := NewRootManager(baseDir)
	if err != nil {
		t.Fatalf("NewRootManager() error = %v", err)
	}

	root, err := mgr.Create(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	wantPath := filepath.Join(baseDir, "sess-a")
	if root != wantPath {
		t.Fatalf("Create() dir = %q, want %q", root, wantPath)
	}

	opened, err := mgr.Open(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if opened != root {
		t.Fatalf("Open() = %q, want %q", opened, root)
	}

	if _, err := mgr.Create(context.Background(), "sess-a"); err == nil {
		t.Fatal("Create() on existing session root should fail")
	}
}

func TestRootManagerRejectsUnsafeIDs(t *testing.T) {
	mgr, err := NewRootManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewRootManager() error = %v", err)
	}

	for _, id := range []string{"", " ", ".", "..", "a/b", `a\b`, " padded"} {
		if _, err := mgr.Create(context.Background(), id); err == nil {
			t.Fatalf("Create(%q) expected error", id)
		}
	}
}

func TestRootManagerCleanupRemovesStaleRoots(t *testing.T) {
	baseDir := t.TempDir()
	mgr, err := NewRootManager(baseDir)
	if err != nil {
		t.Fatalf("NewRootManager() error = %v", err)
	}

	oldRoot, err := mgr.Create(context.Background(), "old")
	if err != nil {
		t.Fatalf("Create(old) error = %v", err)
	}
	newRoot, err := mgr.Create(context.Background(), "new")
	if err != nil {
		t.Fatalf("Create(new) error = %v", err)
	}

	now := time.Now()
	if err := os.Chtimes(oldRoot, now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
	mgr.now = func() time.Time { return now }

	deleted, err := mgr.Cleanup(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Cleanup() deleted = %d, want 1", deleted)
	}
	if _, err := os.Stat(oldRoot); !os.IsNotExist(err) {
		t.Fatalf("old root still present: %v", err)
	}
	if _, err := os.Stat(newRoot); err != nil {
		t.Fatalf("new root removed: %v", err)
	}
}

func TestRootManagerCleanupMissingBase(t *testing.T) {
	mgr, err := NewRootManager(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("NewRootManager() error = %v", err)
	}
	deleted, err := mgr.Cleanup(context.Background(), time.Minute)
	if err != nil || deleted != 0 {
		t.Fatalf("Cleanup() = %d, %v; want 0, nil", deleted, err)
	}
}
