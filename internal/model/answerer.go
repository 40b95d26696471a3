package model

import (
	"context"
	"fmt"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/model/contract"
	"github.com/harunnryd/warden/internal/sanitize"
)

// Answer is a model reply plus the model that produced it.
type Answer struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Answerer routes prompts to the local model or, for sanitized text only,
// to the cloud model.
type Answerer struct {
	router ModelRouter
	local  string
	cloud  string
}

func NewAnswerer(router ModelRouter, local, cloud string) *Answerer {
	return &Answerer{router: router, local: local, cloud: cloud}
}

func (a *Answerer) LocalModel() string { return a.local }
func (a *Answerer) CloudModel() string { return a.cloud }

// Local answers on the local model. The prompt never leaves the host.
func (a *Answerer) Local(ctx context.Context, system, prompt string) (Answer, error) {
	return a.ask(ctx, a.local, contract.UserPrompt(system, prompt))
}

// LocalWithModel is Local with a per-call model override, used by prompt
// templates that pin a model. The override must be a local model; the
// prompt is unsanitized.
func (a *Answerer) LocalWithModel(ctx context.Context, model, system, prompt string) (Answer, error) {
	switch {
	case model == "" || model == a.local:
		model = a.local
	case model == a.cloud || !a.router.IsLocal(model):
		return Answer{}, wardenErrors.InvalidInput(fmt.Sprintf("model %s is not a local model", model))
	}
	return a.ask(ctx, model, contract.UserPrompt(system, prompt))
}

// Cloud answers on the cloud model. Only text that went through the
// sanitizer is accepted.
func (a *Answerer) Cloud(ctx context.Context, system string, query sanitize.Clean) (Answer, error) {
	if !query.Valid() {
		return Answer{}, wardenErrors.Internal("cloud request without sanitized input")
	}
	return a.ask(ctx, a.cloud, contract.UserPrompt(system, query.String()))
}

func (a *Answerer) ask(ctx context.Context, model string, req contract.CompletionRequest) (Answer, error) {
	if model == "" {
		return Answer{}, wardenErrors.Unavailable("no model configured")
	}
	resp, err := a.router.Route(ctx, model, req)
	if err != nil {
		return Answer{}, err
	}
	if resp == nil {
		return Answer{}, wardenErrors.Unavailable(fmt.Sprintf("model %s returned nothing", model))
	}
	return Answer{
		Text:         resp.Content,
		Model:        model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
