package components

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/orchestrator"
	"github.com/harunnryd/warden/internal/routing"
	"github.com/harunnryd/warden/internal/sandbox"
)

// RouterComponent assembles the routing stack once skills, approvals and
// the ledger are open.
type RouterComponent struct {
	cfg           *config.Config
	skillsComp    *SkillsComponent
	approvalsComp *ApprovalsComponent
	ledgerComp    *LedgerComponent
	built         *routing.Components
	mu            sync.RWMutex
}

func NewRouterComponent(cfg *config.Config, skillsComp *SkillsComponent, approvalsComp *ApprovalsComponent, ledgerComp *LedgerComponent) *RouterComponent {
	return &RouterComponent{
		cfg:           cfg,
		skillsComp:    skillsComp,
		approvalsComp: approvalsComp,
		ledgerComp:    ledgerComp,
	}
}

func (c *RouterComponent) Name() string {
	return "Router"
}

func (c *RouterComponent) Dependencies() []string {
	return []string{"Skills", "Approvals", "Ledger"}
}

func (c *RouterComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.skillsComp == nil || c.approvalsComp == nil || c.ledgerComp == nil {
		return fmt.Errorf("router dependencies not provided")
	}
	registry := c.skillsComp.Registry()
	queue := c.approvalsComp.Queue()
	l := c.ledgerComp.Ledger()
	if registry == nil || queue == nil || l == nil {
		return fmt.Errorf("router dependencies not initialized")
	}

	sandboxes, err := sandbox.NewManager(filepath.Join(c.cfg.Daemon.DataDir, "sandboxes"))
	if err != nil {
		return err
	}

	built, err := routing.Build(ctx, c.cfg, routing.Shared{
		Skills:    registry,
		Approvals: queue,
		Ledger:    l,
		Sandboxes: sandboxes,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	c.built = built
	return nil
}

func (c *RouterComponent) Start(ctx context.Context) error {
	return nil
}

func (c *RouterComponent) Stop(ctx context.Context) error {
	return nil
}

func (c *RouterComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if c.Router() == nil {
		return daemon.Unhealthy(c.Name(), fmt.Errorf("not initialized")), nil
	}
	return daemon.Healthy(c.Name()), nil
}

func (c *RouterComponent) Router() *orchestrator.Router {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.built == nil {
		return nil
	}
	return c.built.Router
}

func (c *RouterComponent) Sandboxes() *sandbox.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.built == nil {
		return nil
	}
	return c.built.Sandboxes
}
