package components

import (
	"context"
	"fmt"
	"sync"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/routing"
	"github.com/harunnryd/warden/internal/skill"
)

// SkillsComponent loads bundled and generated skills once at startup.
// Generated skills registered later are persisted by the registry itself.
type SkillsComponent struct {
	cfg      *config.SkillsConfig
	registry *skill.Registry
	mu       sync.RWMutex
}

func NewSkillsComponent(cfg *config.SkillsConfig) *SkillsComponent {
	return &SkillsComponent{cfg: cfg}
}

func (c *SkillsComponent) Name() string {
	return "Skills"
}

func (c *SkillsComponent) Dependencies() []string {
	return []string{"DataLock"}
}

func (c *SkillsComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	registry, err := routing.LoadSkills(*c.cfg)
	if err != nil {
		return err
	}
	c.registry = registry
	return nil
}

func (c *SkillsComponent) Start(ctx context.Context) error {
	return nil
}

func (c *SkillsComponent) Stop(ctx context.Context) error {
	return nil
}

func (c *SkillsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if c.Registry() == nil {
		return daemon.Unhealthy(c.Name(), fmt.Errorf("not initialized")), nil
	}
	return daemon.Healthy(c.Name()), nil
}

func (c *SkillsComponent) Registry() *skill.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}
