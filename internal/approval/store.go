package approval

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

const (
	activeFile  = "active.json"
	archiveFile = "archive.jsonl"
)

// Store persists pending items as one JSON document, replaced atomically
// on every change, and resolved items as an append-only JSONL archive.
type Store struct {
	activePath  string
	archivePath string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create approvals dir: %w", err)
	}
	return &Store{
		activePath:  filepath.Join(dir, activeFile),
		archivePath: filepath.Join(dir, archiveFile),
	}, nil
}

func (s *Store) LoadActive() (map[string]Item, error) {
	items := make(map[string]Item)
	data, err := os.ReadFile(s.activePath)
	if os.IsNotExist(err) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read active approvals: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse active approvals: %w", err)
	}
	return items, nil
}

func (s *Store) SaveActive(items map[string]Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.activePath, bytes.NewReader(data))
}

// Append adds a resolved or expired item to the archive and syncs it.
func (s *Store) Append(item Item) error {
	line, err := json.Marshal(item)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.archivePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open approval archive: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write approval archive: %w", err)
	}
	return f.Sync()
}

// LoadArchive reads every archived item, keyed by id. Unreadable lines
// are skipped.
func (s *Store) LoadArchive() (map[string]Item, error) {
	items := make(map[string]Item)
	f, err := os.Open(s.archivePath)
	if os.IsNotExist(err) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open approval archive: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			slog.Warn("Skipping unreadable archived approval", "error", err)
			continue
		}
		items[item.ID] = item
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read approval archive: %w", err)
	}
	return items, nil
}
