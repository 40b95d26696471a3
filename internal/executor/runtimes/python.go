package runtimes

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/harunnryd/warden/internal/skill"
)

type PythonRuntime struct {
	pythonPath string
}

func NewPythonRuntime() (*PythonRuntime, error) {
	path, err := exec.LookPath("python3")
	if err != nil {
		path, err = exec.LookPath("python")
		if err != nil {
			return nil, fmt.Errorf("python not found: %w", err)
		}
	}

	return &PythonRuntime{
		pythonPath: path,
	}, nil
}

// Run reads the program from stdin; sys.argv[1] is the request.
func (pr *PythonRuntime) Run(ctx context.Context, inv Invocation) (string, error) {
	cmd := exec.CommandContext(ctx, pr.pythonPath, "-", inv.Arguments)
	return run(ctx, cmd, inv)
}

func (pr *PythonRuntime) Version() (string, error) {
	return version(pr.pythonPath)
}

func (pr *PythonRuntime) Language() skill.Language {
	return skill.LanguagePython
}
