package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/store"
)

// DataLockComponent holds the data directory lock for the life of the
// process. Every component that writes under the data dir depends on it.
type DataLockComponent struct {
	cfg  *config.DaemonConfig
	lock *store.FileLock
	mu   sync.RWMutex
}

func NewDataLockComponent(cfg *config.DaemonConfig) *DataLockComponent {
	return &DataLockComponent{cfg: cfg}
}

func (c *DataLockComponent) Name() string {
	return "DataLock"
}

func (c *DataLockComponent) Dependencies() []string {
	return []string{}
}

func (c *DataLockComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, err := store.Acquire(ctx, c.cfg.DataDir, store.DefaultLockConfig())
	if err != nil {
		return fmt.Errorf("acquire data dir lock: %w", err)
	}
	c.lock = lock
	slog.Info("DataLock initialized", "component", c.Name(), "path", lock.Path())
	return nil
}

func (c *DataLockComponent) Start(ctx context.Context) error {
	return nil
}

func (c *DataLockComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lock == nil {
		return nil
	}
	c.lock.Unlock()
	c.lock = nil
	return nil
}

func (c *DataLockComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lock == nil || !c.lock.IsLocked() {
		return daemon.Unhealthy(c.Name(), fmt.Errorf("lock not held")), nil
	}
	return daemon.Healthy(c.Name()), nil
}
