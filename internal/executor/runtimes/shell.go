package runtimes

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/harunnryd/warden/internal/skill"
)

type ShellRuntime struct {
	shellPath string
}

func NewShellRuntime() (*ShellRuntime, error) {
	path, err := exec.LookPath("bash")
	if err != nil {
		path, err = exec.LookPath("sh")
		if err != nil {
			return nil, fmt.Errorf("shell not found: %w", err)
		}
	}

	return &ShellRuntime{
		shellPath: path,
	}, nil
}

// Run feeds the script to "bash -s", so $1 is the request.
func (sr *ShellRuntime) Run(ctx context.Context, inv Invocation) (string, error) {
	cmd := exec.CommandContext(ctx, sr.shellPath, "-s", "--", inv.Arguments)
	return run(ctx, cmd, inv)
}

func (sr *ShellRuntime) Version() (string, error) {
	return version(sr.shellPath)
}

func (sr *ShellRuntime) Language() skill.Language {
	return skill.LanguageBash
}
