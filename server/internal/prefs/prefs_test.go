package prefs

import (
	"os"
	"path/filepath"
	"testing"
)

// TestStore_FirstVisitLifecycle 场景：第一次打开没有文件，标记后重新打开不再是首次访问
func TestStore_FirstVisitLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !s.FirstVisit() {
		t.Fatalf("expected first visit without prefs file")
	}

	if err := s.MarkVisited(); err != nil {
		t.Fatalf("mark visited: %v", err)
	}
	if s.FirstVisit() {
		t.Fatalf("expected visited after MarkVisited")
	}
	if err := s.MarkVisited(); err != nil {
		t.Fatalf("second mark visited: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.FirstVisit() {
		t.Fatalf("expected persisted visited flag")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away, stat err=%v", err)
	}
}

func TestOpen_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("visited: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
