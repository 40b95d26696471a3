package formatter

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harunnryd/warden/internal/skill"
)

// JSONFormatter emits indented JSON, one array for lists.
type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) FormatSkills(skills []*skill.Skill) (string, error) {
	if skills == nil {
		skills = []*skill.Skill{}
	}
	return marshalJSON(skills)
}

func (f *JSONFormatter) FormatSkill(s *skill.Skill) (string, error) {
	if s == nil {
		return "null", nil
	}
	return marshalJSON(s)
}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) FormatSkills(skills []*skill.Skill) (string, error) {
	return marshalYAML(skills)
}

func (f *YAMLFormatter) FormatSkill(s *skill.Skill) (string, error) {
	if s == nil {
		return "null", nil
	}
	return marshalYAML(s)
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
