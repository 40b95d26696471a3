package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/executor/runtimes"
	"github.com/harunnryd/warden/internal/logger"
	"github.com/harunnryd/warden/internal/model"
	"github.com/harunnryd/warden/internal/sandbox"
	"github.com/harunnryd/warden/internal/skill"
)

const (
	EngineScript = "local-script"

	// promptSystem frames a prompt-template skill for the local model.
	promptSystem = "You are a local assistant running a predefined skill. Follow the skill instructions exactly and answer concisely."
)

// Result is what a skill run produced and where it ran.
type Result struct {
	Output string
	Engine string
}

// PromptAnswerer is the slice of model.Answerer used for prompt skills.
type PromptAnswerer interface {
	LocalWithModel(ctx context.Context, model, system, prompt string) (model.Answer, error)
}

// SkillExecutor runs matched skills on the local host only.
type SkillExecutor struct {
	runtimes  *runtimes.RuntimeRegistry
	answerer  PromptAnswerer
	sandboxes *sandbox.Manager
}

type Option func(*SkillExecutor)

// WithSandbox runs every structured script in its own scratch directory.
func WithSandbox(m *sandbox.Manager) Option {
	return func(e *SkillExecutor) { e.sandboxes = m }
}

func NewSkillExecutor(rt *runtimes.RuntimeRegistry, answerer PromptAnswerer, opts ...Option) *SkillExecutor {
	e := &SkillExecutor{runtimes: rt, answerer: answerer}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes s with query as its arguments, bounded by the skill's
// timeout.
func (e *SkillExecutor) Run(ctx context.Context, s *skill.Skill, query string) (Result, error) {
	if s == nil {
		return Result{}, wardenErrors.InvalidInput("no skill to run")
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	log := logger.FromContext(ctx).With("skill", s.Name, "mode", s.Mode)
	log.Debug("Running skill")

	var (
		res Result
		err error
	)
	switch spec := s.Spec.(type) {
	case skill.NativeScript:
		res, err = e.runNative(ctx, spec, query)
	case skill.StructuredScript:
		res, err = e.runStructured(ctx, spec, query)
	case skill.PromptTemplate:
		res, err = e.runPrompt(ctx, spec, query)
	default:
		return Result{}, wardenErrors.InvalidInput(fmt.Sprintf("skill %s has no runnable definition", s.Name))
	}
	if err != nil {
		log.Warn("Skill failed", "error", err)
		return Result{}, fmt.Errorf("skill %s: %w", s.Name, err)
	}
	return res, nil
}

// runNative splits the command into argv without a shell. A literal
// $ARGUMENTS token is replaced by the query.
func (e *SkillExecutor) runNative(ctx context.Context, spec skill.NativeScript, query string) (Result, error) {
	argv, err := shlex.Split(spec.Command)
	if err != nil {
		return Result{}, wardenErrors.InvalidInput(fmt.Sprintf("parse command: %v", err))
	}
	if len(argv) == 0 {
		return Result{}, wardenErrors.InvalidInput("empty command")
	}
	for i, arg := range argv {
		argv[i] = strings.ReplaceAll(arg, skill.ArgumentsPlaceholder, query)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), runtimes.ArgumentsEnv+"="+query)
	cmd.WaitDelay = runtimes.WaitDelay
	out, err := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return Result{}, wardenErrors.Internal("command timed out")
		}
		return Result{}, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, wardenErrors.Internal(fmt.Sprintf("command failed: %v, stderr: %s", err, strings.TrimSpace(string(exitErr.Stderr))))
		}
		return Result{}, wardenErrors.Internal(fmt.Sprintf("command failed: %v", err))
	}
	if len(out) > runtimes.MaxOutputBytes {
		out = append(out[:runtimes.MaxOutputBytes], []byte("\n[output truncated]")...)
	}
	return Result{Output: strings.TrimSpace(string(out)), Engine: EngineScript}, nil
}

func (e *SkillExecutor) runStructured(ctx context.Context, spec skill.StructuredScript, query string) (Result, error) {
	rt, err := e.runtimes.Get(spec.Language)
	if err != nil {
		return Result{}, wardenErrors.Internal(err.Error())
	}
	inv := runtimes.Invocation{Script: spec.Script, Arguments: query}
	if e.sandboxes != nil {
		sb, err := e.sandboxes.Setup()
		if err != nil {
			return Result{}, wardenErrors.Internal(err.Error())
		}
		defer e.sandboxes.Teardown(sb)
		inv.Dir = sb.RootPath
	}
	out, err := rt.Run(ctx, inv)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: out, Engine: EngineScript}, nil
}

func (e *SkillExecutor) runPrompt(ctx context.Context, spec skill.PromptTemplate, query string) (Result, error) {
	if e.answerer == nil {
		return Result{}, wardenErrors.Unavailable("no local model for prompt skills")
	}
	answer, err := e.answerer.LocalWithModel(ctx, spec.Model, promptSystem, spec.Render(query))
	if err != nil {
		return Result{}, err
	}
	return Result{Output: answer.Text, Engine: answer.Model}, nil
}
