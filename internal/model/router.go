package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/warden/internal/config"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/logger"
	"github.com/harunnryd/warden/internal/model/contract"
	anthropicProvider "github.com/harunnryd/warden/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/warden/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/warden/internal/model/providers/openai"
)

type registeredModel struct {
	provider  Provider
	kind      string
	maxTokens int
	timeout   time.Duration
}

// DefaultModelRouter dispatches requests to the provider registered under
// the model name.
type DefaultModelRouter struct {
	cfg    config.ModelsConfig
	models map[string]registeredModel
	mapper wardenErrors.ErrorMapper
	mu     sync.RWMutex
}

func NewModelRouter(ctx context.Context, cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	r := &DefaultModelRouter{
		cfg:    cfg,
		models: make(map[string]registeredModel),
		mapper: wardenErrors.NewDefaultErrorMapper(),
	}

	for _, entry := range cfg.Registry {
		if err := r.register(ctx, entry); err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
		}
	}

	if len(r.models) == 0 && len(cfg.Registry) > 0 {
		return nil, wardenErrors.Internal("no model providers initialized")
	}
	return r, nil
}

// Register adds a provider under name, replacing any previous one. The
// provider's own name is recorded as its kind.
func (r *DefaultModelRouter) Register(name string, p Provider, maxTokens int, timeout time.Duration) {
	r.add(name, p.Name(), p, maxTokens, timeout)
}

func (r *DefaultModelRouter) add(name, kind string, p Provider, maxTokens int, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = registeredModel{provider: p, kind: kind, maxTokens: maxTokens, timeout: timeout}
}

// IsLocal reports whether model runs on this host: the configured local
// model or any model served by an ollama provider.
func (r *DefaultModelRouter) IsLocal(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[model]
	if !ok {
		return false
	}
	return model == r.cfg.Local || m.kind == "ollama"
}

func (r *DefaultModelRouter) register(ctx context.Context, entry config.ModelRegistry) error {
	p, err := createProvider(ctx, entry)
	if err != nil {
		return err
	}
	timeout, err := config.DurationOrDefault(entry.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return wardenErrors.InvalidInput(fmt.Sprintf("model %s request_timeout: %v", entry.Name, err))
	}
	maxTokens := entry.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultModelMaxTokens
	}

	r.add(entry.Name, entry.Provider, p, maxTokens, timeout)
	slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider)
	return nil
}

func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	r.mu.RLock()
	m, ok := r.models[model]
	r.mu.RUnlock()
	if !ok {
		return nil, wardenErrors.Unavailable(fmt.Sprintf("model %s not configured", model))
	}

	if req.Model == "" {
		req.Model = model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = m.maxTokens
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	resp, err := m.provider.Generate(callCtx, req)
	if err != nil {
		logger.FromContext(ctx).Warn("Provider request failed", "model", model, "error", err)
		return nil, r.unavailable(model, err)
	}

	logger.FromContext(ctx).Debug("Completion finished", "model", model,
		"duration", time.Since(start), "output_tokens", resp.OutputTokens)
	return resp, nil
}

func (r *DefaultModelRouter) unavailable(model string, err error) error {
	mapped := r.mapper.MapError(err)
	if wardenErrors.Code(mapped) == "internal" {
		return fmt.Errorf("model %s: %v: %w", model, err, wardenErrors.ErrCollaboratorUnavailable)
	}
	return fmt.Errorf("model %s: %w", model, mapped)
}

// RouteEmbedding embeds text on exactly the requested model. There is no
// fallback: another provider would see the raw query and would produce
// vectors of a different dimension than the stored documents.
func (r *DefaultModelRouter) RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	m, ok := r.models[model]
	r.mu.RUnlock()
	if !ok {
		return nil, wardenErrors.Unavailable(fmt.Sprintf("embedding model %s not configured", model))
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	vec, err := m.provider.Embed(callCtx, text)
	if err != nil {
		if isEmbeddingUnsupported(err) {
			return nil, wardenErrors.Unavailable(fmt.Sprintf("model %s does not support embeddings", model))
		}
		logger.FromContext(ctx).Warn("Embedding failed", "model", model, "error", err)
		return nil, r.unavailable(model, err)
	}
	return vec, nil
}

func isEmbeddingUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "embedding not supported") ||
		strings.Contains(msg, "not support embeddings")
}

func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health reports whether the configured local and cloud models are
// registered. Providers are not called.
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range []string{r.cfg.Local, r.cfg.Cloud} {
		if name == "" {
			continue
		}
		if _, ok := r.models[name]; !ok {
			return wardenErrors.Unavailable(fmt.Sprintf("model %s not registered", name))
		}
	}
	return nil
}

func createProvider(ctx context.Context, entry config.ModelRegistry) (Provider, error) {
	switch entry.Provider {
	case "openai":
		if entry.APIKey == "" {
			return nil, wardenErrors.InvalidInput("API key required for OpenAI provider")
		}
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}
		return openaiProvider.New(entry.APIKey, baseURL, entry.Name), nil

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}
		return openaiProvider.New(apiKey, baseURL, entry.Name), nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, wardenErrors.InvalidInput("API key required for Anthropic provider")
		}
		return anthropicProvider.New(entry.APIKey, entry.BaseURL), nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, wardenErrors.InvalidInput("API key required for Gemini provider")
		}
		p, err := geminiProvider.New(ctx, entry.APIKey)
		if err != nil {
			return nil, wardenErrors.Wrap(err, "failed to create Gemini provider")
		}
		return p, nil

	default:
		return nil, wardenErrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}
