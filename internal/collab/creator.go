package collab

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/harunnryd/warden/internal/auth"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/model"
	"github.com/harunnryd/warden/internal/sanitize"
	"github.com/harunnryd/warden/internal/skill"
)

// CreateRequest asks for a new skill. Intent is already scrubbed; it may
// leave the host.
type CreateRequest struct {
	Intent       sanitize.Clean
	UserID       string
	LanguageHint skill.Language
}

// Creator drafts a skill definition for an unmatched action. The draft is
// always untrusted and generated; callers register it and gate it behind
// an approval.
type Creator interface {
	Create(ctx context.Context, req CreateRequest) (*skill.Skill, error)
}

type generateRequest struct {
	Intent       string `json:"intent"`
	UserID       string `json:"user_id"`
	LanguageHint string `json:"language_hint"`
}

type generateResponse struct {
	Success       bool    `json:"success"`
	SkillName     string  `json:"skill_name"`
	SkillPath     string  `json:"skill_path"`
	ExecutionMode string  `json:"execution_mode"`
	SkillMD       string  `json:"skill_md"`
	Error         string  `json:"error"`
	Cost          float64 `json:"cost"`
}

// HTTPCreator delegates drafting to the creation collaborator.
type HTTPCreator struct {
	client *auth.Client
}

func NewHTTPCreator(client *auth.Client) *HTTPCreator {
	return &HTTPCreator{client: client}
}

func (c *HTTPCreator) Create(ctx context.Context, req CreateRequest) (*skill.Skill, error) {
	if !req.Intent.Valid() {
		return nil, wardenErrors.Internal("creation request without sanitized intent")
	}
	body := generateRequest{
		Intent:       req.Intent.String(),
		UserID:       req.UserID,
		LanguageHint: string(req.LanguageHint),
	}
	var out generateResponse
	if err := c.client.Do(ctx, http.MethodPost, "/generate-skill", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "creator reported failure"
		}
		return nil, wardenErrors.Unavailable(reason)
	}

	var (
		s   *skill.Skill
		err error
	)
	switch {
	case strings.TrimSpace(out.SkillMD) != "":
		s, err = skill.Parse([]byte(out.SkillMD))
	case out.SkillPath != "":
		s, err = skill.ParseFile(out.SkillPath)
	default:
		return nil, wardenErrors.Unavailable(fmt.Sprintf("creator returned no definition for %s", out.SkillName))
	}
	if err != nil {
		return nil, wardenErrors.Unavailable(fmt.Sprintf("creator returned unusable skill: %v", err))
	}
	return draft(s)
}

// CloudAnswerer is the slice of model.Answerer the model-backed creator uses.
type CloudAnswerer interface {
	Cloud(ctx context.Context, system string, query sanitize.Clean) (model.Answer, error)
}

const creatorSystemPrompt = `You write skills for a local automation assistant.
Reply with one SKILL.md document and nothing else: YAML frontmatter between --- lines, then a markdown body.
Frontmatter fields: name (lowercase, letters, digits and dashes, 3-50 chars), description, triggers (a list of short lowercase phrases a user would type), execution_mode, timeout (seconds).
Use execution_mode: prompt-template unless the task needs a command. The body is then the prompt, with $ARGUMENTS where the user's request goes.
For a command use execution_mode: %s and put the script in a single fenced %s code block.`

var fencedDocument = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n```\\s*$")

// ModelCreator drafts skills with the cloud model when no creation
// collaborator is configured.
type ModelCreator struct {
	answerer CloudAnswerer
}

func NewModelCreator(answerer CloudAnswerer) *ModelCreator {
	return &ModelCreator{answerer: answerer}
}

func (c *ModelCreator) Create(ctx context.Context, req CreateRequest) (*skill.Skill, error) {
	lang := req.LanguageHint
	if lang == "" {
		lang = skill.LanguageBash
	}
	system := fmt.Sprintf(creatorSystemPrompt, lang, lang)

	answer, err := c.answerer.Cloud(ctx, system, req.Intent)
	if err != nil {
		return nil, err
	}

	doc := strings.TrimSpace(answer.Text)
	if m := fencedDocument.FindStringSubmatch(doc); m != nil {
		doc = m[1]
	}
	s, err := skill.Parse([]byte(doc))
	if err != nil {
		return nil, wardenErrors.Unavailable(fmt.Sprintf("model returned unusable skill: %v", err))
	}
	return draft(s)
}

// draftTimeout applies when a drafted definition omits its timeout.
const draftTimeout = 60 * time.Second

func draft(s *skill.Skill) (*skill.Skill, error) {
	s.Source = skill.SourceGenerated
	s.Trusted = false
	s.Path = ""
	if s.Timeout <= 0 {
		s.Timeout = draftTimeout
	}
	if pt, ok := s.Spec.(skill.PromptTemplate); ok && pt.Model != "" {
		pt.Model = ""
		s.Spec = pt
	}
	if err := skill.Validate(s); err != nil {
		return nil, wardenErrors.Unavailable(fmt.Sprintf("drafted skill rejected: %v", err))
	}
	return s, nil
}
