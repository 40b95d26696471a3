// Package sandbox hands out throwaway working directories for generated
// scripts, so a script never runs in the router's own working directory.
package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Sandbox struct {
	ID        string
	RootPath  string
	CreatedAt time.Time
}

type Manager struct {
	mu      sync.Mutex
	active  map[string]*Sandbox
	baseDir string
}

// NewManager roots sandboxes under baseDir, or under the system temp dir
// when baseDir is empty.
func NewManager(baseDir string) (*Manager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "warden-sandboxes")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sandbox base directory: %w", err)
	}
	return &Manager{active: make(map[string]*Sandbox), baseDir: baseDir}, nil
}

func (m *Manager) BaseDir() string {
	return m.baseDir
}

func (m *Manager) Setup() (*Sandbox, error) {
	id := ulid.Make().String()
	root := filepath.Join(m.baseDir, id)
	if err := os.Mkdir(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}

	sb := &Sandbox{ID: id, RootPath: root, CreatedAt: time.Now()}
	m.mu.Lock()
	m.active[id] = sb
	m.mu.Unlock()

	slog.Debug("Sandbox created", "sandbox_id", id, "path", root)
	return sb, nil
}

// Teardown removes the sandbox and everything the script left in it.
func (m *Manager) Teardown(sb *Sandbox) error {
	if sb == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.active, sb.ID)
	m.mu.Unlock()

	if err := os.RemoveAll(sb.RootPath); err != nil {
		slog.Error("Failed to remove sandbox directory", "error", err, "path", sb.RootPath)
		return err
	}
	slog.Debug("Sandbox removed", "sandbox_id", sb.ID)
	return nil
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep removes directories under the base dir that no live sandbox owns
// and that are older than maxAge, left behind by a crash.
func (m *Manager) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		slog.Warn("Failed to read sandbox directory", "error", err, "path", m.baseDir)
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, live := m.active[entry.Name()]; live {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.baseDir, entry.Name())); err != nil {
			slog.Warn("Failed to remove orphaned sandbox", "error", err, "name", entry.Name())
			continue
		}
		removed++
	}
	return removed
}
