package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

// snapshot is never modified after publication.
type snapshot struct {
	skills   []*Skill
	triggers [][]string
	byName   map[string]int
}

func newSnapshot(skills []*Skill) *snapshot {
	snap := &snapshot{
		skills:   skills,
		triggers: make([][]string, len(skills)),
		byName:   make(map[string]int, len(skills)),
	}
	for i, s := range skills {
		lowered := make([]string, len(s.Triggers))
		for j, t := range s.Triggers {
			lowered[j] = strings.ToLower(strings.TrimSpace(t))
		}
		snap.triggers[i] = lowered
		snap.byName[s.Name] = i
	}
	return snap
}

// Registry holds the set of matchable skills. Reads work on an immutable
// snapshot; writers serialize on mu and publish a new snapshot only after
// the change is durable.
type Registry struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
	store   *Store
}

type Options struct {
	BundledDir string
	Store      *Store
	Disabled   []string

	// ReadOnly loads generated skills from Store but keeps later
	// registrations in memory.
	ReadOnly bool
}

// Load builds an in-memory registry from definitions. Any invalid
// definition or repeated name fails the whole load.
func Load(defs []*Skill) (*Registry, error) {
	return build(defs, nil)
}

// LoadDir loads bundled skills (<dir>/<name>/SKILL.md, always trusted) and
// then generated skills from the store in manifest order.
func LoadDir(opts Options) (*Registry, error) {
	var defs []*Skill

	if opts.BundledDir != "" {
		bundled, err := readBundled(opts.BundledDir)
		if err != nil {
			return nil, err
		}
		defs = append(defs, bundled...)
	}

	if opts.Store != nil {
		generated, err := opts.Store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load generated skills: %w", err)
		}
		defs = append(defs, generated...)
	}

	if len(opts.Disabled) > 0 {
		defs = slices.DeleteFunc(defs, func(s *Skill) bool {
			return slices.Contains(opts.Disabled, s.Name)
		})
	}

	persist := opts.Store
	if opts.ReadOnly {
		persist = nil
	}
	r, err := build(defs, persist)
	if err != nil {
		return nil, err
	}
	slog.Info("Skills loaded", "count", r.Len(), "bundled_dir", opts.BundledDir)
	return r, nil
}

func readBundled(dir string) ([]*Skill, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		slog.Debug("Skills directory does not exist", "path", dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read skills directory %s: %w", dir, err)
	}

	var skills []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), FileName)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		s, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		s.Source = SourceBundled
		s.Trusted = true
		skills = append(skills, s)
	}
	return skills, nil
}

func build(defs []*Skill, store *Store) (*Registry, error) {
	skills := make([]*Skill, 0, len(defs))
	names := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if err := Validate(d); err != nil {
			if d != nil && d.Path != "" {
				return nil, &LoadError{Path: d.Path, Cause: err}
			}
			return nil, err
		}
		if _, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("skill %s: %w", d.Name, wardenErrors.ErrDuplicateName)
		}
		names[d.Name] = struct{}{}
		skills = append(skills, d.clone())
	}

	r := &Registry{store: store}
	r.current.Store(newSnapshot(skills))
	return r, nil
}

// Match returns the first registered skill with a trigger contained in the
// query, compared case-insensitively.
func (r *Registry) Match(query string) (*Skill, bool) {
	q := strings.ToLower(query)
	if strings.TrimSpace(q) == "" {
		return nil, false
	}
	snap := r.current.Load()
	for i, triggers := range snap.triggers {
		for _, t := range triggers {
			if strings.Contains(q, t) {
				return snap.skills[i].clone(), true
			}
		}
	}
	return nil, false
}

func (r *Registry) Get(name string) (*Skill, bool) {
	snap := r.current.Load()
	i, ok := snap.byName[name]
	if !ok {
		return nil, false
	}
	return snap.skills[i].clone(), true
}

// List returns every skill in registration order.
func (r *Registry) List() []*Skill {
	snap := r.current.Load()
	out := make([]*Skill, len(snap.skills))
	for i, s := range snap.skills {
		out[i] = s.clone()
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.current.Load().skills)
}

// Register adds a generated skill. A clash leaves the existing skill in
// place and returns ErrDuplicateName.
func (r *Registry) Register(ctx context.Context, s *Skill) error {
	if s == nil {
		return invalid("skill", "cannot be nil")
	}
	added := s.clone()
	if added.Source == "" {
		added.Source = SourceGenerated
	}
	if err := Validate(added); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	if _, exists := snap.byName[s.Name]; exists {
		return fmt.Errorf("skill %s: %w", s.Name, wardenErrors.ErrDuplicateName)
	}

	if r.store != nil {
		path, err := r.store.Save(added)
		if err != nil {
			return fmt.Errorf("persist skill %s: %w", s.Name, err)
		}
		added.Path = path
	}

	skills := make([]*Skill, len(snap.skills), len(snap.skills)+1)
	copy(skills, snap.skills)
	r.current.Store(newSnapshot(append(skills, added)))

	slog.Info("Registered skill", "name", added.Name, "mode", added.Mode, "trusted", added.Trusted)
	return nil
}

// MarkTrusted allows unattended execution of a skill, typically after its
// approval item was approved.
func (r *Registry) MarkTrusted(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	i, ok := snap.byName[name]
	if !ok {
		return fmt.Errorf("skill %s: %w", name, wardenErrors.ErrInvalidInput)
	}
	if snap.skills[i].Trusted {
		return nil
	}

	if r.store != nil && snap.skills[i].Source == SourceGenerated {
		if err := r.store.SetTrusted(name, true); err != nil {
			return fmt.Errorf("persist trust for %s: %w", name, err)
		}
	}

	skills := make([]*Skill, len(snap.skills))
	copy(skills, snap.skills)
	trusted := snap.skills[i].clone()
	trusted.Trusted = true
	skills[i] = trusted
	r.current.Store(newSnapshot(skills))

	slog.Info("Skill trusted", "name", name)
	return nil
}

// Remove withdraws a generated skill, typically after its approval was
// rejected or expired. Bundled skills cannot be removed.
func (r *Registry) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	i, ok := snap.byName[name]
	if !ok {
		return fmt.Errorf("skill %s: %w", name, wardenErrors.ErrInvalidInput)
	}
	if snap.skills[i].Source != SourceGenerated {
		return fmt.Errorf("skill %s is %s: %w", name, snap.skills[i].Source, wardenErrors.ErrInvalidInput)
	}

	if r.store != nil {
		if err := r.store.Delete(name); err != nil {
			return fmt.Errorf("delete skill %s: %w", name, err)
		}
	}

	skills := make([]*Skill, 0, len(snap.skills)-1)
	skills = append(skills, snap.skills[:i]...)
	skills = append(skills, snap.skills[i+1:]...)
	r.current.Store(newSnapshot(skills))

	slog.Info("Skill removed", "name", name)
	return nil
}
