package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/collab"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/intent"
	"github.com/harunnryd/warden/internal/logger"
	"github.com/harunnryd/warden/internal/model"
	"github.com/harunnryd/warden/internal/retrieval"
	"github.com/harunnryd/warden/internal/sanitize"
	"github.com/harunnryd/warden/internal/skill"
)

const (
	searchSystemPrompt = "You answer questions from web search results. Be brief and cite result numbers like [1] where they support a claim. " +
		"If the results do not answer the question, say so."
	taskSystemPrompt = "You are a personal assistant with access to the user's task list and notes. " +
		"Answer from them and keep it short."
	knowledgeSystemPrompt = "You are a precise assistant. Prefer the supplied context over your own knowledge. " +
		"If the context does not cover the question, answer from general knowledge and say so."
	chatSystemPrompt = "You are a friendly assistant having a conversation. Use any supplied context when it is relevant."
	fallbackSystemPrompt = "You are a helpful assistant. Some details in the request were replaced with placeholders in square brackets; " +
		"keep them as they are."

	// defaultRequester files skill approvals when the caller is not a
	// verified service, as with the CLI.
	defaultRequester = "router"
)

// skillApproval is the payload filed for a generated skill. Definition is
// the full SKILL.md, so the operator sees the command, script or template
// that would run.
type skillApproval struct {
	approval.Payload
	Skill       string   `json:"skill"`
	Mode        string   `json:"execution_mode"`
	Description string   `json:"description,omitempty"`
	Triggers    []string `json:"triggers"`
	Definition  string   `json:"definition"`
	Query       string   `json:"query,omitempty"`
}

// searchPath answers from web search results. A failed or empty search
// degrades to answering the bare question locally.
func (r *Router) searchPath(ctx context.Context, b *routeBuilder, text string) (Route, error) {
	ctx, span := r.startPath(ctx, PathSearch)
	defer span.End()
	b.path(PathSearch)
	log := logger.FromContext(ctx)

	var results []collab.SearchResult
	if r.deps.Searcher == nil {
		b.degraded()
	} else {
		cctx, cancel := r.collaborator(ctx)
		found, err := r.deps.Searcher.Search(cctx, text)
		cancel()
		switch {
		case err == nil:
			results = found
		case degradable(err):
			log.Warn("Search unavailable, answering without results", "error", err)
		default:
			return b.finish("", err), err
		}
		if len(results) == 0 {
			b.degraded()
		}
	}

	for _, res := range results {
		if res.URL != "" {
			b.sources(append(b.route.Sources, res.URL))
		}
	}

	return r.answerLocally(ctx, b, searchSystemPrompt, collab.SearchPrompt(text, results))
}

// taskPath answers from the user's task list and notes.
func (r *Router) taskPath(ctx context.Context, b *routeBuilder, text string) (Route, error) {
	ctx, span := r.startPath(ctx, PathTask)
	defer span.End()
	b.path(PathTask)
	log := logger.FromContext(ctx)

	if r.deps.Memory == nil {
		b.degraded()
		return r.answerLocally(ctx, b, taskSystemPrompt, text)
	}

	cctx, cancel := r.collaborator(ctx)
	defer cancel()

	var parts []string
	tasks, err := r.deps.Memory.Tasks(cctx)
	switch {
	case err == nil:
		parts = append(parts, "Tasks:\n"+tasks.Summary())
	case degradable(err):
		log.Warn("Task list unavailable", "error", err)
		b.degraded()
	default:
		return b.finish("", err), err
	}

	notes, err := r.deps.Memory.Context(cctx)
	switch {
	case err == nil:
		if strings.TrimSpace(notes) != "" {
			parts = append(parts, "Notes:\n"+notes)
		}
	case degradable(err):
		log.Warn("Memory context unavailable", "error", err)
		b.degraded()
	default:
		return b.finish("", err), err
	}

	return r.answerLocally(ctx, b, taskSystemPrompt, withContext(strings.Join(parts, "\n\n"), text))
}

// retrievalPath serves knowledge and chat. Retrieval is always attempted;
// retrieval and memory are fetched concurrently and either may fail without
// failing the request.
func (r *Router) retrievalPath(ctx context.Context, b *routeBuilder, in intent.Intent, text string) (Route, error) {
	ctx, span := r.startPath(ctx, PathRetrieval)
	defer span.End()
	b.path(PathRetrieval)
	log := logger.FromContext(ctx)

	var (
		found     retrieval.Context
		notes     string
		retrieved bool
	)
	g, gctx := errgroup.WithContext(ctx)

	if r.deps.Retriever != nil {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, r.opts.RetrievalTimeout)
			defer cancel()
			c, err := r.deps.Retriever.Retrieve(rctx, text, r.opts.RetrievalMaxTokens)
			if err != nil {
				if degradable(err) {
					log.Warn("Retrieval unavailable, answering without context", "error", err)
					return nil
				}
				return err
			}
			found, retrieved = c, true
			return nil
		})
	}

	if r.deps.Memory != nil {
		g.Go(func() error {
			mctx, cancel := r.collaborator(gctx)
			defer cancel()
			n, err := r.deps.Memory.Context(mctx)
			if err != nil {
				if degradable(err) {
					log.Debug("Memory context unavailable", "error", err)
					return nil
				}
				return err
			}
			notes = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return b.finish("", err), err
	}
	if !retrieved {
		b.degraded()
	}
	b.sources(found.Sources)

	var parts []string
	if !found.Empty() {
		parts = append(parts, "Context:\n"+found.Text)
	}
	if strings.TrimSpace(notes) != "" {
		parts = append(parts, "About the user:\n"+notes)
	}

	system := knowledgeSystemPrompt
	if in == intent.Chat {
		system = chatSystemPrompt
	}
	return r.answerLocally(ctx, b, system, withContext(strings.Join(parts, "\n\n"), text))
}

// actionPath executes a matched trusted skill locally. A miss goes through
// the sanitizer to skill creation and falls back to a direct cloud answer.
func (r *Router) actionPath(ctx context.Context, b *routeBuilder, req Request, text string) (Route, error) {
	log := logger.FromContext(ctx)

	if s, ok := r.deps.Skills.Match(text); ok {
		b.skill(s.Name)
		if s.Trusted {
			return r.runSkill(ctx, b, s, text)
		}
		// Generated skills wait for an operator before running unattended.
		log.Info("Matched skill is awaiting approval, escalating", "skill", s.Name)
		clean := r.deps.Sanitizer.Scrub(text)
		if id := r.awaitingApproval(ctx, s, clean); id != "" {
			b.approval(id)
		}
		return r.fallback(ctx, b, clean)
	}

	clean := r.deps.Sanitizer.Scrub(text)
	if clean.Total() > 0 {
		log.Info("Query sanitized", "redactions", clean.Redactions())
	}
	switch {
	case r.deps.Creator == nil:
		log.Info("No skill creator configured, escalating")
		return r.fallback(ctx, b, clean)
	case r.deps.Approvals == nil:
		log.Warn("No approval queue to gate generated skills, escalating")
		return r.fallback(ctx, b, clean)
	}
	return r.createSkill(ctx, b, req, text, clean)
}

// awaitingApproval returns the open approval for an untrusted skill. A
// skill left without one, because filing failed or the item is gone,
// gets a fresh item so it can still be approved.
func (r *Router) awaitingApproval(ctx context.Context, s *skill.Skill, clean sanitize.Clean) string {
	if r.deps.Approvals == nil {
		return ""
	}
	if id := r.pendingApproval(ctx, s.Name); id != "" {
		return id
	}
	// Listing pending items sweeps expired ones, which may have withdrawn
	// the skill.
	if _, ok := r.deps.Skills.Get(s.Name); !ok {
		return ""
	}
	id, err := r.fileSkillApproval(ctx, s, clean,
		fmt.Sprintf("Generated %s skill matched again with no open approval.", s.Mode))
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to re-file skill approval", "skill", s.Name, "error", err)
		return ""
	}
	return id
}

func (r *Router) runSkill(ctx context.Context, b *routeBuilder, s *skill.Skill, text string) (Route, error) {
	ctx, span := r.startPath(ctx, PathSkillExecution)
	defer span.End()
	b.path(PathSkillExecution)

	res, err := r.deps.Executor.Run(ctx, s, text)
	if err != nil {
		return b.finish("", err), err
	}
	b.engine(res.Engine)
	return b.finish(res.Output, nil), nil
}

// createSkill asks the creator for a new skill, registers it untrusted and
// files exactly one approval for it.
func (r *Router) createSkill(ctx context.Context, b *routeBuilder, req Request, text string, clean sanitize.Clean) (Route, error) {
	log := logger.FromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx, r.opts.CreationTimeout)
	created, err := r.deps.Creator.Create(cctx, collab.CreateRequest{
		Intent:       clean,
		UserID:       req.UserID,
		LanguageHint: intent.LanguageHint(text),
	})
	cancel()
	if err != nil {
		if !degradable(err) {
			return b.finish("", err), err
		}
		log.Warn("Skill creation unavailable, escalating", "error", err)
		return r.fallback(ctx, b, clean)
	}

	created.Trusted = false
	created.Source = skill.SourceGenerated
	if err := r.deps.Skills.Register(ctx, created); err != nil {
		log.Warn("Generated skill rejected, escalating", "skill", created.Name, "error", err)
		return r.fallback(ctx, b, clean)
	}

	id, err := r.fileSkillApproval(ctx, created, clean,
		fmt.Sprintf("No skill matched; a %s skill was generated for this request.", created.Mode))
	if err != nil {
		// An untrusted skill without an approval item could never run.
		log.Error("Failed to file skill approval, withdrawing skill", "skill", created.Name, "error", err)
		if rerr := r.deps.Skills.Remove(ctx, created.Name); rerr != nil {
			log.Error("Failed to withdraw unapproved skill", "skill", created.Name, "error", rerr)
		}
		return r.fallback(ctx, b, clean)
	}

	_, span := r.startPath(ctx, PathSkillCreation)
	defer span.End()
	b.path(PathSkillCreation).skill(created.Name).approval(id)

	log.Info("Generated skill awaiting approval", "skill", created.Name, "approval_id", id)
	return b.finish(fmt.Sprintf("Created skill %q. It will run once an operator approves request %s.", created.Name, id), nil), nil
}

// fileSkillApproval files the single approval item gating s.
func (r *Router) fileSkillApproval(ctx context.Context, s *skill.Skill, clean sanitize.Clean, rationale string) (string, error) {
	definition, err := skill.Render(s)
	if err != nil {
		return "", wardenErrors.Internal(fmt.Sprintf("render skill %s: %v", s.Name, err))
	}
	requestedBy, ok := auth.ServiceIDFrom(ctx)
	if !ok {
		requestedBy = defaultRequester
	}
	return r.deps.Approvals.File(ctx, approval.FileRequest{
		RequestedBy: requestedBy,
		Kind:        approval.KindSkill,
		Subject:     s.Name,
		Payload: skillApproval{
			Payload: approval.Payload{
				Rationale:   rationale,
				Needs:       "Approve unattended execution of skill " + s.Name,
				RequestType: string(approval.KindSkill),
			},
			Skill:       s.Name,
			Mode:        string(s.Mode),
			Description: s.Description,
			Triggers:    s.Triggers,
			Definition:  string(definition),
			Query:       clean.String(),
		},
	})
}

// pendingApproval returns the id of the open approval for a generated skill.
func (r *Router) pendingApproval(ctx context.Context, name string) string {
	if r.deps.Approvals == nil {
		return ""
	}
	for _, it := range r.deps.Approvals.Pending(ctx) {
		if it.Kind == approval.KindSkill && it.Subject == name {
			return it.ID
		}
	}
	return ""
}

// fallback answers directly with the cloud model. It is degraded: no skill
// is created.
func (r *Router) fallback(ctx context.Context, b *routeBuilder, clean sanitize.Clean) (Route, error) {
	ctx, span := r.startPath(ctx, PathCloudFallback)
	defer span.End()
	b.path(PathCloudFallback).degraded()

	answer, err := r.escalate(ctx, clean)
	if err != nil {
		return b.finish("", err), err
	}
	b.engine(answer.Model)
	return b.finish(answer.Text, nil), nil
}

// escalate is the only call into the cloud model. It takes a Clean so the
// query has passed the sanitizer.
func (r *Router) escalate(ctx context.Context, clean sanitize.Clean) (model.Answer, error) {
	if !clean.Valid() {
		return model.Answer{}, wardenErrors.Internal("escalation without sanitized input")
	}
	cctx, cancel := r.collaborator(ctx)
	defer cancel()
	answer, err := r.deps.Answerer.Cloud(cctx, fallbackSystemPrompt, clean)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.Answer{}, wardenErrors.Unavailable("cloud model timed out")
		}
		return model.Answer{}, err
	}
	return answer, nil
}

// answerLocally finishes a local pipeline with the local model. A local
// model failure is terminal.
func (r *Router) answerLocally(ctx context.Context, b *routeBuilder, system, prompt string) (Route, error) {
	answer, err := r.deps.Answerer.Local(ctx, system, prompt)
	if err != nil {
		if !wardenErrors.IsAuthFailure(err) && !errors.Is(err, wardenErrors.ErrCollaboratorUnavailable) {
			err = wardenErrors.Unavailable(fmt.Sprintf("local model: %v", err))
		}
		return b.finish("", err), err
	}
	b.engine(answer.Model)
	return b.finish(answer.Text, nil), nil
}

func withContext(background, question string) string {
	if strings.TrimSpace(background) == "" {
		return question
	}
	return background + "\n\nQuestion: " + question
}
