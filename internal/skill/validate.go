package skill

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{1,48}[a-zA-Z0-9]$`)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return wardenErrors.ErrInvalidInput
}

type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load skill from %s: %v", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Validate checks a definition in full. Nothing that fails here is ever
// matchable.
func Validate(s *Skill) error {
	if s == nil {
		return invalid("skill", "cannot be nil")
	}
	if !namePattern.MatchString(s.Name) {
		return invalid("name", fmt.Sprintf("%q must match %s", s.Name, namePattern.String()))
	}
	if strings.TrimSpace(s.Description) == "" {
		return invalid("description", "cannot be empty")
	}
	if err := validateTriggers(s.Triggers); err != nil {
		return err
	}
	if !s.Mode.Valid() {
		return invalid("execution_mode", fmt.Sprintf("unknown mode %q", s.Mode))
	}
	if s.Timeout <= 0 || s.Timeout%time.Second != 0 {
		return invalid("timeout", "must be a positive number of seconds")
	}
	if err := validateSpec(s.Mode, s.Spec); err != nil {
		return err
	}
	if pt, ok := s.Spec.(PromptTemplate); ok && s.Source == SourceGenerated && pt.Model != "" {
		return invalid("model", "generated skills run on the default local model and cannot pin one")
	}
	return nil
}

func validateTriggers(triggers []string) error {
	if len(triggers) == 0 {
		return invalid("triggers", "must have at least one trigger")
	}
	seen := make(map[string]struct{}, len(triggers))
	for i, t := range triggers {
		key := strings.ToLower(strings.TrimSpace(t))
		if key == "" {
			return invalid("triggers", fmt.Sprintf("trigger[%d] cannot be blank", i))
		}
		if _, dup := seen[key]; dup {
			return invalid("triggers", fmt.Sprintf("trigger %q is repeated", t))
		}
		seen[key] = struct{}{}
	}
	return nil
}

func validateSpec(mode ExecutionMode, spec Spec) error {
	if spec == nil || spec.Mode() != mode {
		return invalid("execution_mode", fmt.Sprintf("definition does not match mode %s", mode))
	}
	switch sp := spec.(type) {
	case NativeScript:
		if strings.TrimSpace(sp.Command) == "" {
			return invalid("command", "native-script requires a command")
		}
	case PromptTemplate:
		if strings.TrimSpace(sp.Template) == "" {
			return invalid("template", "prompt-template requires a body")
		}
	case StructuredScript:
		if sp.Language != LanguageBash && sp.Language != LanguagePython {
			return invalid("language", fmt.Sprintf("must be bash or python, got %q", sp.Language))
		}
		if strings.TrimSpace(sp.Script) == "" {
			return invalid("script", "structured-script requires a fenced script block")
		}
	}
	return nil
}
