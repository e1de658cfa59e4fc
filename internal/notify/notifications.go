// Package notify handles cooperative run control via the .quorum directory.
// A host (or an operator) drops signal files to stop or pause a long run; the
// engine checks them between sibling subtasks, never mid-vote.
package notify

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager watches for stop/pause signal files under <root>/.quorum/signals.
type Manager struct {
	quorumDir string

	mu          sync.RWMutex
	stopSignal  bool
	pauseSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates a manager rooted at the given directory.
// If the file watcher cannot be started, the manager falls back to polling
// the signal files on every check.
func NewManager(root string) (*Manager, error) {
	quorumDir := filepath.Join(root, ".quorum")
	signalsDir := filepath.Join(quorumDir, "signals")

	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	m := &Manager{
		quorumDir: quorumDir,
		done:      make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Polling fallback only.
		return m, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return m, nil
	}
	m.watcher = watcher

	go m.watchSignals()

	return m, nil
}

// watchSignals monitors the signals directory for stop/pause files.
func (m *Manager) watchSignals() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			m.mu.Lock()
			switch filepath.Base(event.Name) {
			case "stop":
				m.stopSignal = true
			case "pause":
				m.pauseSignal = true
			}
			m.mu.Unlock()
		case <-m.watcher.Errors:
			// Ignore errors, keep watching.
		}
	}
}

// ShouldStop returns true if a stop signal has been received.
func (m *Manager) ShouldStop() bool {
	// Also check the file directly in case the watcher missed it.
	if _, err := os.Stat(m.signalPath("stop")); err == nil {
		m.mu.Lock()
		m.stopSignal = true
		m.mu.Unlock()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopSignal
}

// ShouldPause returns true if a pause signal has been received.
func (m *Manager) ShouldPause() bool {
	if _, err := os.Stat(m.signalPath("pause")); err == nil {
		m.mu.Lock()
		m.pauseSignal = true
		m.mu.Unlock()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pauseSignal
}

// WaitWhilePaused blocks while a pause signal is present, polling at the
// given interval. Returns immediately if a stop signal arrives.
func (m *Manager) WaitWhilePaused(interval time.Duration) {
	for m.ShouldPause() && !m.ShouldStop() {
		select {
		case <-m.done:
			return
		case <-time.After(interval):
		}
	}
}

// SendStop creates a stop signal file.
func (m *Manager) SendStop() error {
	return os.WriteFile(m.signalPath("stop"), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// SendPause creates a pause signal file.
func (m *Manager) SendPause() error {
	return os.WriteFile(m.signalPath("pause"), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files and resets signal state.
func (m *Manager) ClearSignals() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopSignal = false
	m.pauseSignal = false

	os.Remove(m.signalPath("stop"))
	os.Remove(m.signalPath("pause"))
}

// Dir returns the path to the .quorum directory.
func (m *Manager) Dir() string {
	return m.quorumDir
}

func (m *Manager) signalPath(name string) string {
	return filepath.Join(m.quorumDir, "signals", name)
}

// Close shuts down the manager.
func (m *Manager) Close() {
	close(m.done)
	if m.watcher != nil {
		m.watcher.Close()
	}
}
