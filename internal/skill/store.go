package skill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

const manifestFile = "manifest.json"

type ManifestEntry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Trusted   bool      `json:"trusted"`
	CreatedAt time.Time `json:"created_at"`
}

type manifest struct {
	Skills []ManifestEntry `json:"skills"`
}

// Store persists generated skills as <dir>/<name>/SKILL.md plus a manifest
// that records registration order and trust.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create skill store %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes the definition and appends it to the manifest. Both writes
// go through a temp file and rename.
func (s *Store) Save(sk *Skill) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := Render(sk)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", sk.Name, err)
	}

	skillDir := filepath.Join(s.dir, sk.Name)
	if err := os.MkdirAll(skillDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(skillDir, FileName)
	if err := atomic.WriteFile(path, bytes.NewReader(doc)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	m, err := s.readManifest()
	if err != nil {
		return "", err
	}
	m.Skills = append(m.Skills, ManifestEntry{
		Name:      sk.Name,
		Path:      path,
		Trusted:   sk.Trusted,
		CreatedAt: s.now().UTC(),
	})
	if err := s.writeManifest(m); err != nil {
		return "", err
	}
	return path, nil
}

// SetTrusted flips the trust flag of an existing manifest entry.
func (s *Store) SetTrusted(name string, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifest()
	if err != nil {
		return err
	}
	for i := range m.Skills {
		if m.Skills[i].Name == name {
			m.Skills[i].Trusted = trusted
			return s.writeManifest(m)
		}
	}
	return fmt.Errorf("skill %s not in manifest", name)
}

// Delete drops a generated skill from the manifest and removes its
// directory. The manifest is rewritten first so a crash leaves an orphaned
// directory, never a manifest entry without a definition.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readManifest()
	if err != nil {
		return err
	}
	idx := -1
	for i := range m.Skills {
		if m.Skills[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("skill %s not in manifest", name)
	}
	path := m.Skills[idx].Path
	m.Skills = append(m.Skills[:idx], m.Skills[idx+1:]...)
	if err := s.writeManifest(m); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Dir(path))
}

// LoadAll returns every generated skill in manifest order.
func (s *Store) LoadAll() ([]*Skill, error) {
	s.mu.Lock()
	m, err := s.readManifest()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	skills := make([]*Skill, 0, len(m.Skills))
	for _, entry := range m.Skills {
		sk, err := ParseFile(entry.Path)
		if err != nil {
			return nil, err
		}
		sk.Source = SourceGenerated
		sk.Trusted = entry.Trusted
		skills = append(skills, sk)
	}
	return skills, nil
}

func (s *Store) readManifest() (manifest, error) {
	var m manifest
	data, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("corrupt skill manifest: %w", err)
	}
	return m, nil
}

func (s *Store) writeManifest(m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(s.dir, manifestFile), bytes.NewReader(data))
}
