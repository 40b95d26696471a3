// Package orchestrator classifies each query and routes it down exactly one
// execution path: local pipelines, local skills, or sanitized escalation to
// the cloud.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/collab"
	"github.com/harunnryd/warden/internal/config"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/executor"
	"github.com/harunnryd/warden/internal/intent"
	"github.com/harunnryd/warden/internal/ledger"
	"github.com/harunnryd/warden/internal/logger"
	"github.com/harunnryd/warden/internal/model"
	"github.com/harunnryd/warden/internal/retrieval"
	"github.com/harunnryd/warden/internal/sanitize"
	"github.com/harunnryd/warden/internal/skill"
)

const tracerName = "github.com/harunnryd/warden/internal/orchestrator"

// Classifier labels a query. It never fails; uncertainty maps to knowledge.
type Classifier interface {
	Classify(ctx context.Context, text string) intent.Result
}

// Skills is the registry surface the router needs.
type Skills interface {
	Match(query string) (*skill.Skill, bool)
	Get(name string) (*skill.Skill, bool)
	Register(ctx context.Context, s *skill.Skill) error
	Remove(ctx context.Context, name string) error
}

type Executor interface {
	Run(ctx context.Context, s *skill.Skill, query string) (executor.Result, error)
}

// Answerer runs prompts on the local model and sanitized prompts on the
// cloud model.
type Answerer interface {
	Local(ctx context.Context, system, prompt string) (model.Answer, error)
	Cloud(ctx context.Context, system string, query sanitize.Clean) (model.Answer, error)
}

// ApprovalFiler files and lists approval items.
type ApprovalFiler interface {
	File(ctx context.Context, req approval.FileRequest) (string, error)
	Pending(ctx context.Context) []approval.Item
}

type Ledger interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Request is one inbound query.
type Request struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
	UserID  string `json:"user_id,omitempty"`

	// Intent skips classification when set.
	Intent intent.Intent `json:"intent,omitempty"`
}

// Deps are the collaborators a Router calls. Searcher, Memory, Retriever,
// Creator, Approvals and Ledger may be nil; the affected paths then degrade.
type Deps struct {
	Classifier Classifier
	Skills     Skills
	Executor   Executor
	Answerer   Answerer
	Sanitizer  *sanitize.Sanitizer
	Searcher   collab.Searcher
	Memory     collab.MemoryReader
	Retriever  retrieval.Retriever
	Creator    collab.Creator
	Approvals  ApprovalFiler
	Ledger     Ledger
}

type Options struct {
	RetrievalTimeout    time.Duration
	CreationTimeout     time.Duration
	CollaboratorTimeout time.Duration
	RetrievalMaxTokens  int
	Costs               config.CostsConfig
	Now                 func() time.Time
}

type Router struct {
	deps   Deps
	opts   Options
	tracer trace.Tracer
}

func NewRouter(deps Deps, opts Options) (*Router, error) {
	switch {
	case deps.Classifier == nil:
		return nil, wardenErrors.InvalidInput("router needs a classifier")
	case deps.Skills == nil:
		return nil, wardenErrors.InvalidInput("router needs a skill registry")
	case deps.Executor == nil:
		return nil, wardenErrors.InvalidInput("router needs an executor")
	case deps.Answerer == nil:
		return nil, wardenErrors.InvalidInput("router needs an answerer")
	case deps.Sanitizer == nil:
		return nil, wardenErrors.InvalidInput("router needs a sanitizer")
	}
	if opts.RetrievalTimeout <= 0 {
		opts.RetrievalTimeout = 5 * time.Second
	}
	if opts.CreationTimeout <= 0 {
		opts.CreationTimeout = 120 * time.Second
	}
	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = 30 * time.Second
	}
	if opts.RetrievalMaxTokens <= 0 {
		opts.RetrievalMaxTokens = config.DefaultRouterRetrievalMaxTokens
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{deps: deps, opts: opts, tracer: otel.Tracer(tracerName)}, nil
}

// OptionsFromConfig builds Options from the router section of cfg.
func OptionsFromConfig(cfg config.RouterConfig) (Options, error) {
	retrievalTimeout, err := config.DurationOrDefault(cfg.RetrievalTimeout, config.DefaultRouterRetrievalTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("parse router retrieval timeout: %w", err)
	}
	creationTimeout, err := config.DurationOrDefault(cfg.CreationTimeout, config.DefaultRouterCreationTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("parse router creation timeout: %w", err)
	}
	collaboratorTimeout, err := config.DurationOrDefault(cfg.CollaboratorTimeout, config.DefaultRouterCollaboratorTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("parse router collaborator timeout: %w", err)
	}
	return Options{
		RetrievalTimeout:    retrievalTimeout,
		CreationTimeout:     creationTimeout,
		CollaboratorTimeout: collaboratorTimeout,
		RetrievalMaxTokens:  cfg.RetrievalMaxTokens,
		Costs:               cfg.Costs,
	}, nil
}

// Dispatch classifies req, runs exactly one path and records the finished
// route. The route is always returned; the error is non-nil when the route
// ended in an error.
func (r *Router) Dispatch(ctx context.Context, req Request) (Route, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Route{}, wardenErrors.InvalidInput("text is required")
	}

	ctx, span := r.tracer.Start(ctx, "router.dispatch", trace.WithAttributes(
		attribute.String("channel", req.Channel),
	))
	defer span.End()

	classified := intent.Result{Intent: req.Intent, Confidence: 1}
	if req.Intent == "" {
		classified = r.deps.Classifier.Classify(ctx, text)
	}

	b := newRouteBuilder(classified.Intent, r.opts.Costs, r.opts.Now)
	log := logger.FromContext(ctx).With("route_id", b.route.ID, "intent", classified.Intent)
	log.Info("Query classified", "confidence", classified.Confidence, "source", classified.Source)

	var (
		route Route
		err   error
	)
	switch classified.Intent {
	case intent.Search:
		route, err = r.searchPath(ctx, b, text)
	case intent.Task:
		route, err = r.taskPath(ctx, b, text)
	case intent.Action:
		route, err = r.actionPath(ctx, b, req, text)
	default:
		route, err = r.retrievalPath(ctx, b, classified.Intent, text)
	}

	span.SetAttributes(
		attribute.String("route.id", route.ID),
		attribute.String("route.intent", string(route.Intent)),
		attribute.String("route.path", string(route.Path)),
		attribute.Float64("route.cost", route.Cost),
		attribute.Bool("route.degraded", route.Degraded),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, route.ErrorCode)
	}

	if r.deps.Ledger != nil {
		if lerr := r.deps.Ledger.Record(ctx, route.Entry()); lerr != nil {
			log.Warn("Failed to record route", "error", lerr)
		}
	}

	log.Info("Route finished", "path", route.Path, "cost", route.Cost, "engine", route.Engine,
		"degraded", route.Degraded, "error", route.ErrorCode,
		"duration", route.FinishedAt.Sub(route.StartedAt))

	return route, err
}

// startPath opens a child span for one pipeline.
func (r *Router) startPath(ctx context.Context, p Path) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "router."+string(p))
}

// collaborator bounds one outbound call.
func (r *Router) collaborator(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opts.CollaboratorTimeout)
}

// degradable reports whether err may be absorbed by answering with less
// context. Authentication failures fail closed.
func degradable(err error) bool {
	return err != nil && !wardenErrors.IsAuthFailure(err) && !errors.Is(err, context.Canceled)
}
