package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/ledger"
)

type LedgerComponent struct {
	cfg    *config.LedgerConfig
	ledger *ledger.Ledger
	mu     sync.RWMutex
}

func NewLedgerComponent(cfg *config.LedgerConfig) *LedgerComponent {
	return &LedgerComponent{cfg: cfg}
}

func (c *LedgerComponent) Name() string {
	return "Ledger"
}

func (c *LedgerComponent) Dependencies() []string {
	return []string{"DataLock"}
}

func (c *LedgerComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := ledger.Open(ctx, c.cfg.Path)
	if err != nil {
		return fmt.Errorf("open cost ledger: %w", err)
	}
	c.ledger = l
	slog.Info("Ledger initialized", "component", c.Name(), "path", c.cfg.Path)
	return nil
}

func (c *LedgerComponent) Start(ctx context.Context) error {
	return nil
}

func (c *LedgerComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ledger == nil {
		return nil
	}
	err := c.ledger.Close()
	c.ledger = nil
	return err
}

func (c *LedgerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ledger == nil {
		return daemon.Unhealthy(c.Name(), fmt.Errorf("not initialized")), nil
	}
	if err := c.ledger.Health(ctx); err != nil {
		return daemon.Unhealthy(c.Name(), err), nil
	}
	return daemon.Healthy(c.Name()), nil
}

func (c *LedgerComponent) Ledger() *ledger.Ledger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger
}
