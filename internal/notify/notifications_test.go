package notify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerSignals(t *testing.T) {
	root := t.TempDir()

	m, err := NewManager(root)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	if m.ShouldStop() {
		t.Error("fresh manager should not report stop")
	}
	if m.ShouldPause() {
		t.Error("fresh manager should not report pause")
	}

	if err := m.SendStop(); err != nil {
		t.Fatalf("SendStop failed: %v", err)
	}
	if !m.ShouldStop() {
		t.Error("expected stop after SendStop")
	}

	if err := m.SendPause(); err != nil {
		t.Fatalf("SendPause failed: %v", err)
	}
	if !m.ShouldPause() {
		t.Error("expected pause after SendPause")
	}

	m.ClearSignals()
	if m.ShouldStop() || m.ShouldPause() {
		t.Error("signals should be cleared")
	}
	if _, err := os.Stat(filepath.Join(root, ".quorum", "signals", "stop")); !os.IsNotExist(err) {
		t.Error("stop file should be removed after ClearSignals")
	}
}

func TestManagerCreatesSignalsDir(t *testing.T) {
	root := t.TempDir()

	m, err := NewManager(root)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	info, err := os.Stat(filepath.Join(root, ".quorum", "signals"))
	if err != nil {
		t.Fatalf("signals dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("signals path is not a directory")
	}
}
