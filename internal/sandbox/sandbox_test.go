package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSetupAndTeardown(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	sb, err := manager.Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if info, err := os.Stat(sb.RootPath); err != nil || !info.IsDir() {
		t.Fatalf("sandbox root missing: %v", err)
	}
	if manager.Active() != 1 {
		t.Errorf("Active() = %d, want 1", manager.Active())
	}

	if err := os.WriteFile(filepath.Join(sb.RootPath, "scratch.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := manager.Teardown(sb); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
	if _, err := os.Stat(sb.RootPath); !os.IsNotExist(err) {
		t.Errorf("sandbox root should be gone, stat err = %v", err)
	}
	if manager.Active() != 0 {
		t.Errorf("Active() = %d after teardown, want 0", manager.Active())
	}
}

func TestSandboxesAreDistinct(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := manager.Setup()
	if err != nil {
		t.Fatal(err)
	}
	b, err := manager.Setup()
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID || a.RootPath == b.RootPath {
		t.Errorf("sandboxes share an identity: %s, %s", a.RootPath, b.RootPath)
	}
}

func TestSweepRemovesOnlyOrphans(t *testing.T) {
	base := t.TempDir()
	manager, err := NewManager(base)
	if err != nil {
		t.Fatal(err)
	}

	live, err := manager.Setup()
	if err != nil {
		t.Fatal(err)
	}
	orphan := filepath.Join(base, "01ORPHAN")
	if err := os.Mkdir(orphan, 0700); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	for _, dir := range []string{orphan, live.RootPath} {
		if err := os.Chtimes(dir, old, old); err != nil {
			t.Fatal(err)
		}
	}

	if removed := manager.Sweep(time.Hour); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan should be removed")
	}
	if _, err := os.Stat(live.RootPath); err != nil {
		t.Error("live sandbox must survive a sweep")
	}
}
