// Package routing assembles the router and its collaborators from
// configuration. Remote collaborators are used when their URL is set;
// otherwise a local equivalent stands in.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/collab"
	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/executor"
	"github.com/harunnryd/warden/internal/executor/runtimes"
	"github.com/harunnryd/warden/internal/intent"
	"github.com/harunnryd/warden/internal/model"
	"github.com/harunnryd/warden/internal/orchestrator"
	"github.com/harunnryd/warden/internal/retrieval"
	"github.com/harunnryd/warden/internal/sandbox"
	"github.com/harunnryd/warden/internal/sanitize"
	"github.com/harunnryd/warden/internal/skill"
)

// Shared are the stateful pieces owned by the caller. Approvals and Ledger
// may be nil, as for a dry run. Without Sandboxes, scripts get scratch
// directories under the system temp dir.
type Shared struct {
	Skills    *skill.Registry
	Approvals orchestrator.ApprovalFiler
	Ledger    orchestrator.Ledger
	Sandboxes *sandbox.Manager
}

type Components struct {
	Router    *orchestrator.Router
	Answerer  *model.Answerer
	Sanitizer *sanitize.Sanitizer
	Sandboxes *sandbox.Manager

	// Index is set when retrieval is served in-process.
	Index *retrieval.LocalIndex
}

func Build(ctx context.Context, cfg *config.Config, shared Shared) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if shared.Skills == nil {
		return nil, fmt.Errorf("skill registry cannot be nil")
	}

	opts, err := orchestrator.OptionsFromConfig(cfg.Router)
	if err != nil {
		return nil, err
	}

	models, err := model.NewModelRouter(ctx, cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("create model router: %w", err)
	}
	answerer := model.NewAnswerer(models, cfg.Models.Local, cfg.Models.Cloud)
	sanitizer := sanitize.New(cfg.Sanitizer.Keywords)

	signer := auth.NewSigner(cfg.Auth.ServiceID, cfg.Auth.Secret)
	client := func(url string, timeout time.Duration) *auth.Client {
		return auth.NewClient(url, signer, timeout)
	}
	c := cfg.Collaborators

	var labeler intent.Labeler = intent.KeywordLabeler{}
	if c.ClassifierURL != "" {
		labeler = intent.NewRemoteLabeler(client(c.ClassifierURL, opts.CollaboratorTimeout))
	}

	var searcher collab.Searcher
	if c.SearchURL != "" {
		searcher = collab.NewSearchClient(client(c.SearchURL, opts.CollaboratorTimeout), cfg.Router.SearchMaxResults)
	}

	var memory collab.MemoryReader = collab.NewFileMemory(c.MemoryDir)
	if c.MemoryURL != "" {
		memory = collab.NewMemoryClient(client(c.MemoryURL, opts.CollaboratorTimeout))
	}

	var (
		retriever retrieval.Retriever
		index     *retrieval.LocalIndex
	)
	if c.RetrievalURL != "" {
		retriever = retrieval.NewHTTPRetriever(client(c.RetrievalURL, opts.RetrievalTimeout))
	} else {
		index, err = retrieval.NewLocalIndex(cfg.Retrieval.IndexDir, cfg.Retrieval.Collection,
			retrieval.EmbeddingFunc(models, cfg.Models.Embedding))
		if err != nil {
			return nil, err
		}
		if cfg.Retrieval.DocsDir != "" {
			if _, err := index.Ingest(ctx, cfg.Retrieval.DocsDir); err != nil {
				slog.Warn("Knowledge ingest failed, serving existing index", "dir", cfg.Retrieval.DocsDir, "error", err)
			}
		}
		retriever = index
	}

	var creator collab.Creator = collab.NewModelCreator(answerer)
	if c.CreatorURL != "" {
		creator = collab.NewHTTPCreator(client(c.CreatorURL, opts.CreationTimeout))
	}

	sandboxes := shared.Sandboxes
	if sandboxes == nil {
		if sandboxes, err = sandbox.NewManager(""); err != nil {
			return nil, err
		}
	}

	router, err := orchestrator.NewRouter(orchestrator.Deps{
		Classifier: intent.NewClassifier(labeler, intent.DefaultThreshold),
		Skills:     shared.Skills,
		Executor:   executor.NewSkillExecutor(runtimes.NewRuntimeRegistry(), answerer, executor.WithSandbox(sandboxes)),
		Answerer:   answerer,
		Sanitizer:  sanitizer,
		Searcher:   searcher,
		Memory:     memory,
		Retriever:  retriever,
		Creator:    creator,
		Approvals:  shared.Approvals,
		Ledger:     shared.Ledger,
	}, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("Router assembled",
		"classifier", remoteOr(c.ClassifierURL, "keywords"),
		"search", remoteOr(c.SearchURL, "disabled"),
		"memory", remoteOr(c.MemoryURL, "files"),
		"retrieval", remoteOr(c.RetrievalURL, "local-index"),
		"creator", remoteOr(c.CreatorURL, "cloud-model"),
		"skills", shared.Skills.Len())

	return &Components{Router: router, Answerer: answerer, Sanitizer: sanitizer, Sandboxes: sandboxes, Index: index}, nil
}

// LoadSkills opens the generated skill store and loads the registry.
func LoadSkills(cfg config.SkillsConfig) (*skill.Registry, error) {
	store, err := skill.NewStore(cfg.GeneratedDir)
	if err != nil {
		return nil, err
	}
	registry, err := skill.LoadDir(skill.Options{
		BundledDir: cfg.BundledDir,
		Store:      store,
		Disabled:   cfg.Disabled,
	})
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	return registry, nil
}

func remoteOr(url, local string) string {
	if url != "" {
		return url
	}
	return local
}
