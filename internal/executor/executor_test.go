package executor

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/executor/runtimes"
	"github.com/harunnryd/warden/internal/model"
	"github.com/harunnryd/warden/internal/sandbox"
	"github.com/harunnryd/warden/internal/skill"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell on PATH")
	}
}

type fakeLocal struct {
	model  string
	prompt string
}

func (f *fakeLocal) LocalWithModel(_ context.Context, m, _ string, prompt string) (model.Answer, error) {
	f.model = m
	f.prompt = prompt
	return model.Answer{Text: "summary", Model: "phi4-mini"}, nil
}

func native(cmd string) *skill.Skill {
	return &skill.Skill{
		Name:    "native",
		Mode:    skill.ModeNativeScript,
		Timeout: 5 * time.Second,
		Spec:    skill.NativeScript{Command: cmd},
	}
}

func structured(lang skill.Language, script string, timeout time.Duration) *skill.Skill {
	return &skill.Skill{
		Name:    "structured",
		Mode:    skill.ModeStructuredScript,
		Timeout: timeout,
		Spec:    skill.StructuredScript{Language: lang, Script: script},
	}
}

func TestRunNativeScript(t *testing.T) {
	requireShell(t)
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil)

	res, err := e.Run(context.Background(), native(`echo "checking" $ARGUMENTS`), "disk usage")
	require.NoError(t, err)
	assert.Equal(t, "checking disk usage", res.Output)
	assert.Equal(t, EngineScript, res.Engine)
}

func TestRunNativeScriptDoesNotUseAShell(t *testing.T) {
	requireShell(t)
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil)

	res, err := e.Run(context.Background(), native("echo $ARGUMENTS"), "a; echo injected")
	require.NoError(t, err)
	assert.Equal(t, "a; echo injected", res.Output)
}

func TestRunNativeScriptFailure(t *testing.T) {
	requireShell(t)
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil)

	_, err := e.Run(context.Background(), native(`sh -c "echo broken >&2; exit 3"`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = e.Run(context.Background(), native(`echo "unterminated`), "")
	assert.ErrorIs(t, err, wardenErrors.ErrInvalidInput)
}

func TestRunStructuredBash(t *testing.T) {
	requireShell(t)
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil)

	script := "echo \"arg=$1\"\necho \"env=$WARDEN_ARGUMENTS\""
	res, err := e.Run(context.Background(), structured(skill.LanguageBash, script, 5*time.Second), "port 443")
	require.NoError(t, err)
	assert.Equal(t, "arg=port 443\nenv=port 443", res.Output)
}

func TestRunStructuredPython(t *testing.T) {
	registry := runtimes.NewRuntimeRegistry()
	if !registry.IsAvailable(skill.LanguagePython) {
		t.Skip("no python on PATH")
	}
	e := NewSkillExecutor(registry, nil)

	script := "import sys\nprint(sys.argv[1].upper())"
	res, err := e.Run(context.Background(), structured(skill.LanguagePython, script, 10*time.Second), "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", res.Output)
}

func TestRunStructuredTimeout(t *testing.T) {
	requireShell(t)
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil)

	start := time.Now()
	_, err := e.Run(context.Background(), structured(skill.LanguageBash, "sleep 5", 100*time.Millisecond), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

type nullRuntime struct{}

func (nullRuntime) Run(context.Context, runtimes.Invocation) (string, error) { return "ran", nil }
func (nullRuntime) Version() (string, error)                                { return "0", nil }
func (nullRuntime) Language() skill.Language                                { return skill.LanguagePython }

func TestRunStructuredUsesRegisteredRuntime(t *testing.T) {
	registry := runtimes.NewRuntimeRegistry()
	registry.Register(nullRuntime{})
	e := NewSkillExecutor(registry, nil)

	res, err := e.Run(context.Background(), structured(skill.LanguagePython, "pass", time.Second), "")
	require.NoError(t, err)
	assert.Equal(t, "ran", res.Output)
}

func TestRunStructuredInSandbox(t *testing.T) {
	requireShell(t)
	manager, err := sandbox.NewManager(t.TempDir())
	require.NoError(t, err)
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil, WithSandbox(manager))

	res, err := e.Run(context.Background(), structured(skill.LanguageBash, "touch scratch && pwd", 5*time.Second), "")
	require.NoError(t, err)

	dir, err := filepath.EvalSymlinks(filepath.Dir(res.Output))
	require.NoError(t, err)
	base, err := filepath.EvalSymlinks(manager.BaseDir())
	require.NoError(t, err)
	assert.Equal(t, base, dir)
	assert.NoDirExists(t, res.Output)
	assert.Zero(t, manager.Active())
}

func TestRunPromptTemplate(t *testing.T) {
	local := &fakeLocal{}
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), local)

	s := &skill.Skill{
		Name:    "summarize",
		Mode:    skill.ModePromptTemplate,
		Timeout: time.Second,
		Spec:    skill.PromptTemplate{Template: "Summarize: $ARGUMENTS", Model: "llama3"},
	}
	res, err := e.Run(context.Background(), s, "the quarterly report")
	require.NoError(t, err)
	assert.Equal(t, "summary", res.Output)
	assert.Equal(t, "phi4-mini", res.Engine)
	assert.Equal(t, "llama3", local.model)
	assert.Equal(t, "Summarize: the quarterly report", local.prompt)
}

func TestRunPromptTemplateWithoutModel(t *testing.T) {
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil)
	s := &skill.Skill{Name: "p", Mode: skill.ModePromptTemplate, Timeout: time.Second, Spec: skill.PromptTemplate{Template: "x"}}

	_, err := e.Run(context.Background(), s, "")
	assert.ErrorIs(t, err, wardenErrors.ErrCollaboratorUnavailable)
}

func TestRunRejectsMissingSpec(t *testing.T) {
	e := NewSkillExecutor(runtimes.NewRuntimeRegistry(), nil)
	_, err := e.Run(context.Background(), &skill.Skill{Name: "x"}, "")
	assert.ErrorIs(t, err, wardenErrors.ErrInvalidInput)

	_, err = e.Run(context.Background(), nil, "")
	assert.ErrorIs(t, err, wardenErrors.ErrInvalidInput)
}
