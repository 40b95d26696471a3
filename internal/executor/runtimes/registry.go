package runtimes

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/harunnryd/warden/internal/skill"
)

type RuntimeRegistry struct {
	runtimes map[skill.Language]LanguageRuntime
}

// NewRuntimeRegistry registers every interpreter found on PATH. A missing
// interpreter only disables skills written for it.
func NewRuntimeRegistry() *RuntimeRegistry {
	registry := &RuntimeRegistry{
		runtimes: make(map[skill.Language]LanguageRuntime),
	}

	if shellRuntime, err := NewShellRuntime(); err == nil {
		registry.Register(shellRuntime)
	} else {
		slog.Warn("Shell runtime unavailable", "error", err)
	}

	if pythonRuntime, err := NewPythonRuntime(); err == nil {
		registry.Register(pythonRuntime)
	} else {
		slog.Warn("Python runtime unavailable", "error", err)
	}

	return registry
}

func (rr *RuntimeRegistry) Register(rt LanguageRuntime) {
	rr.runtimes[rt.Language()] = rt
}

func (rr *RuntimeRegistry) Get(lang skill.Language) (LanguageRuntime, error) {
	runtime, ok := rr.runtimes[lang]
	if !ok {
		return nil, fmt.Errorf("runtime not found for language: %s", lang)
	}
	return runtime, nil
}

func (rr *RuntimeRegistry) IsAvailable(lang skill.Language) bool {
	_, ok := rr.runtimes[lang]
	return ok
}

func (rr *RuntimeRegistry) Languages() []skill.Language {
	out := make([]skill.Language, 0, len(rr.runtimes))
	for lang := range rr.runtimes {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
