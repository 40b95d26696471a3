package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/warden/internal/adapter"
	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/logger"
)

// SkillGate is the registry surface driven by skill approval decisions.
type SkillGate interface {
	MarkTrusted(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}

// ApplySkillDecisions returns a hook that settles a generated skill once
// its approval item is resolved: approved skills become trusted, rejected
// or expired ones are withdrawn so their triggers reach skill creation
// again. Other kinds are ignored.
func ApplySkillDecisions(skills SkillGate) approval.ResolvedHook {
	return func(ctx context.Context, item approval.Item) {
		if item.Kind != approval.KindSkill {
			return
		}
		log := logger.FromContext(ctx).With("approval_id", item.ID, "skill", item.Subject)
		switch item.State {
		case approval.StateApproved:
			if err := skills.MarkTrusted(ctx, item.Subject); err != nil {
				log.Warn("Approved skill could not be trusted", "error", err)
				return
			}
			log.Info("Skill trusted after approval", "operator", item.ResolvedBy)
		case approval.StateRejected, approval.StateExpired:
			if err := skills.Remove(ctx, item.Subject); err != nil {
				log.Warn("Unapproved skill could not be removed", "state", item.State, "error", err)
				return
			}
			log.Info("Skill withdrawn", "state", item.State, "by", item.ResolvedBy)
		}
	}
}

type ApprovalsComponent struct {
	cfg        *config.Config
	skillsComp *SkillsComponent
	queue      *approval.Queue
	mu         sync.RWMutex
}

func NewApprovalsComponent(cfg *config.Config, skillsComp *SkillsComponent) *ApprovalsComponent {
	return &ApprovalsComponent{cfg: cfg, skillsComp: skillsComp}
}

func (c *ApprovalsComponent) Name() string {
	return "Approvals"
}

func (c *ApprovalsComponent) Dependencies() []string {
	return []string{"DataLock", "Skills"}
}

func (c *ApprovalsComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.skillsComp == nil {
		return fmt.Errorf("skillsComp not provided")
	}
	registry := c.skillsComp.Registry()
	if registry == nil {
		return fmt.Errorf("skills not initialized")
	}

	ttl, err := config.DurationOrDefault(c.cfg.Approvals.TTL, config.DefaultApprovalsTTL)
	if err != nil {
		return fmt.Errorf("parse approvals ttl: %w", err)
	}
	st, err := approval.NewStore(c.cfg.Approvals.StoreDir)
	if err != nil {
		return fmt.Errorf("open approval store: %w", err)
	}
	notifiers, err := adapter.NewNotifiers(c.cfg.Notify)
	if err != nil {
		return fmt.Errorf("configure approval notifiers: %w", err)
	}

	opts := []approval.Option{approval.WithTTL(ttl)}
	for _, n := range notifiers {
		opts = append(opts, approval.WithNotifier(n))
	}
	q, err := approval.NewQueue(st, opts...)
	if err != nil {
		return fmt.Errorf("load approval queue: %w", err)
	}
	q.OnResolved(ApplySkillDecisions(registry))

	c.queue = q
	slog.Info("Approvals initialized", "component", c.Name(), "store", c.cfg.Approvals.StoreDir,
		"ttl", ttl, "notifiers", len(notifiers))
	return nil
}

func (c *ApprovalsComponent) Start(ctx context.Context) error {
	return nil
}

// Stop waits for in-flight notifications.
func (c *ApprovalsComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue == nil {
		return nil
	}
	c.queue.Close()
	return nil
}

func (c *ApprovalsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if c.Queue() == nil {
		return daemon.Unhealthy(c.Name(), fmt.Errorf("not initialized")), nil
	}
	return daemon.Healthy(c.Name()), nil
}

func (c *ApprovalsComponent) Queue() *approval.Queue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queue
}
