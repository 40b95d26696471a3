package runtimes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/skill"
)

// MaxOutputBytes caps what a script may return to the caller.
const MaxOutputBytes = 64 << 10

// WaitDelay bounds how long a killed script's children may hold its pipes.
const WaitDelay = time.Second

// ArgumentsEnv carries the user's request to every script.
const ArgumentsEnv = "WARDEN_ARGUMENTS"

// Invocation is one script run. Dir is the working directory; empty means
// the router's own.
type Invocation struct {
	Script    string
	Arguments string
	Dir       string
}

// LanguageRuntime runs an inline script with the request as its first
// argument.
type LanguageRuntime interface {
	Run(ctx context.Context, inv Invocation) (string, error)
	Version() (string, error)
	Language() skill.Language
}

// limitedBuffer keeps the first max bytes and drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	out := strings.TrimSpace(b.buf.String())
	if b.truncated {
		out += "\n[output truncated]"
	}
	return out
}

// run executes cmd with the script on stdin. Timeouts and non-zero exits
// come back as errors carrying stderr.
func run(ctx context.Context, cmd *exec.Cmd, inv Invocation) (string, error) {
	cmd.Stdin = strings.NewReader(inv.Script)
	cmd.Dir = inv.Dir
	cmd.WaitDelay = WaitDelay
	cmd.Env = append(os.Environ(), ArgumentsEnv+"="+inv.Arguments)

	stdout := &limitedBuffer{max: MaxOutputBytes}
	stderr := &limitedBuffer{max: 4 << 10}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", wardenErrors.Internal("script timed out")
		}
		return "", ctxErr
	}
	if err != nil {
		return "", wardenErrors.Internal(fmt.Sprintf("script failed: %v, stderr: %s", err, stderr.String()))
	}
	return stdout.String(), nil
}

func version(path string) (string, error) {
	out, err := exec.Command(path, "--version").CombinedOutput()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}
