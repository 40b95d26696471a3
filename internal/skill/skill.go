package skill

import (
	"strings"
	"time"
)

type ExecutionMode string

const (
	ModeNativeScript     ExecutionMode = "native-script"
	ModePromptTemplate   ExecutionMode = "prompt-template"
	ModeStructuredScript ExecutionMode = "structured-script"
)

func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeNativeScript, ModePromptTemplate, ModeStructuredScript:
		return true
	}
	return false
}

type Source string

const (
	SourceBundled   Source = "bundled"
	SourceGenerated Source = "generated"
)

type Language string

const (
	LanguageBash   Language = "bash"
	LanguagePython Language = "python"
)

// ArgumentsPlaceholder is replaced with the user's query in prompt templates.
const ArgumentsPlaceholder = "$ARGUMENTS"

// Spec is the mode-specific half of a skill. Exactly one implementation
// matches each ExecutionMode.
type Spec interface {
	Mode() ExecutionMode
	isSpec()
}

// NativeScript runs Command directly, split into argv without a shell.
type NativeScript struct {
	Command string `json:"command" yaml:"command"`
}

func (NativeScript) Mode() ExecutionMode { return ModeNativeScript }
func (NativeScript) isSpec()             {}

// PromptTemplate is answered by a model after $ARGUMENTS substitution.
type PromptTemplate struct {
	Template string `json:"template" yaml:"template"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
}

func (PromptTemplate) Mode() ExecutionMode { return ModePromptTemplate }
func (PromptTemplate) isSpec()             {}

// Render substitutes args into the template. A template without the
// placeholder gets the arguments appended.
func (p PromptTemplate) Render(args string) string {
	if strings.Contains(p.Template, ArgumentsPlaceholder) {
		return strings.ReplaceAll(p.Template, ArgumentsPlaceholder, args)
	}
	if args == "" {
		return p.Template
	}
	return p.Template + "\n\n" + args
}

// StructuredScript is an interpreter script fed through stdin.
type StructuredScript struct {
	Language Language `json:"language" yaml:"language"`
	Script   string   `json:"script" yaml:"script"`
}

func (StructuredScript) Mode() ExecutionMode { return ModeStructuredScript }
func (StructuredScript) isSpec()             {}

type Skill struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description" yaml:"description"`
	Triggers    []string      `json:"triggers" yaml:"triggers"`
	Mode        ExecutionMode `json:"execution_mode" yaml:"execution_mode"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	Trusted     bool          `json:"trusted" yaml:"trusted"`
	Source      Source        `json:"source" yaml:"source"`
	Path        string        `json:"path,omitempty" yaml:"path,omitempty"`
	Spec        Spec          `json:"spec" yaml:"spec"`
}

func (s *Skill) clone() *Skill {
	c := *s
	c.Triggers = append([]string(nil), s.Triggers...)
	return &c
}
