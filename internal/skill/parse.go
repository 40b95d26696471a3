package skill

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "SKILL.md"

var scriptBlockPattern = regexp.MustCompile("(?s)```(bash|sh|python|python3)[ \\t]*\\n(.*?)```")

type frontmatter struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Triggers      []string `yaml:"triggers"`
	ExecutionMode string   `yaml:"execution_mode"`
	Timeout       int      `yaml:"timeout"`
	Command       string   `yaml:"command,omitempty"`
	Model         string   `yaml:"model,omitempty"`
	Language      string   `yaml:"language,omitempty"`
}

// FrontmatterParser splits a SKILL.md document into its YAML header and
// markdown body.
type FrontmatterParser struct{}

func (fp *FrontmatterParser) Parse(content []byte) (string, string, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	text = strings.TrimLeft(text, "\n")

	if !strings.HasPrefix(text, "---\n") {
		return "", "", fmt.Errorf("invalid frontmatter: must start with ---")
	}
	rest := text[4:]

	end := strings.Index(rest, "\n---")
	if end == -1 {
		return "", "", fmt.Errorf("invalid frontmatter: missing closing ---")
	}

	header := strings.TrimSpace(rest[:end])
	if header == "" {
		return "", "", fmt.Errorf("invalid frontmatter: frontmatter is empty")
	}

	body := rest[end+4:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return header, strings.TrimSpace(body), nil
}

// ParseFile reads and parses a SKILL.md file.
func ParseFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	s.Path = path
	return s, nil
}

// Parse builds a skill from a SKILL.md document. The result is not
// validated.
func Parse(content []byte) (*Skill, error) {
	parser := &FrontmatterParser{}
	header, body, err := parser.Parse(content)
	if err != nil {
		return nil, invalid("frontmatter", err.Error())
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, invalid("frontmatter", fmt.Sprintf("yaml: %v", err))
	}

	s := &Skill{
		Name:        strings.TrimSpace(fm.Name),
		Description: strings.TrimSpace(fm.Description),
		Triggers:    fm.Triggers,
		Timeout:     time.Duration(fm.Timeout) * time.Second,
	}

	mode := strings.ToLower(strings.TrimSpace(fm.ExecutionMode))
	switch mode {
	case string(ModeNativeScript):
		s.Mode = ModeNativeScript
		s.Spec = NativeScript{Command: strings.TrimSpace(fm.Command)}
	case string(ModePromptTemplate):
		s.Mode = ModePromptTemplate
		s.Spec = PromptTemplate{Template: body, Model: strings.TrimSpace(fm.Model)}
	case string(ModeStructuredScript), "bash", "python":
		lang := strings.ToLower(strings.TrimSpace(fm.Language))
		if mode != string(ModeStructuredScript) {
			lang = mode
		}
		blockLang, script := extractScript(body)
		if lang == "" {
			lang = blockLang
		}
		s.Mode = ModeStructuredScript
		s.Spec = StructuredScript{Language: Language(lang), Script: script}
	default:
		s.Mode = ExecutionMode(mode)
	}

	return s, nil
}

func extractScript(body string) (Language, string) {
	m := scriptBlockPattern.FindStringSubmatch(body)
	if m == nil {
		return "", ""
	}
	lang := LanguageBash
	if strings.HasPrefix(m[1], "python") {
		lang = LanguagePython
	}
	return lang, strings.TrimSpace(m[2])
}

// Render produces the SKILL.md document for s. Parse(Render(s)) yields the
// same definition apart from trust, source and path, which live in the
// manifest.
func Render(s *Skill) ([]byte, error) {
	fm := frontmatter{
		Name:          s.Name,
		Description:   s.Description,
		Triggers:      s.Triggers,
		ExecutionMode: string(s.Mode),
		Timeout:       int(s.Timeout / time.Second),
	}

	var body string
	switch spec := s.Spec.(type) {
	case NativeScript:
		fm.Command = spec.Command
	case PromptTemplate:
		fm.Model = spec.Model
		body = spec.Template
	case StructuredScript:
		fm.Language = string(spec.Language)
		body = fmt.Sprintf("## Script\n\n```%s\n%s\n```", spec.Language, spec.Script)
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	if body != "" {
		buf.WriteString(body)
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}
