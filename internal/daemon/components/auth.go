package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
)

// AuthComponent owns the replay set, the signature verifier and the
// per-agent request limiter.
type AuthComponent struct {
	cfg      *config.Config
	verifier *auth.Verifier
	memory   *auth.MemoryNonceStore
	redis    *auth.RedisNonceStore
	limiter  *approval.AgentLimiter
	mu       sync.RWMutex
}

func NewAuthComponent(cfg *config.Config) *AuthComponent {
	return &AuthComponent{cfg: cfg}
}

func (c *AuthComponent) Name() string {
	return "Auth"
}

func (c *AuthComponent) Dependencies() []string {
	return []string{}
}

func (c *AuthComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	window, err := config.DurationOrDefault(c.cfg.Auth.Window, config.DefaultAuthWindow)
	if err != nil {
		return fmt.Errorf("parse auth window: %w", err)
	}

	var nonces auth.NonceStore
	switch c.cfg.Auth.NonceBackend {
	case "redis":
		r := c.cfg.Redis
		c.redis = auth.NewRedisNonceStore(r.Addr, r.Password, r.DB, r.KeyPrefix)
		if err := c.redis.Ping(ctx); err != nil {
			_ = c.redis.Close()
			c.redis = nil
			return fmt.Errorf("connect nonce store at %s: %w", r.Addr, err)
		}
		nonces = c.redis
	default:
		c.memory = auth.NewMemoryNonceStore()
		nonces = c.memory
	}

	c.verifier = auth.NewVerifier(c.cfg.Auth.Secret, window, nonces)
	c.limiter = approval.NewAgentLimiter(c.cfg.Approvals.RatePerMinute, c.cfg.Approvals.Burst)

	slog.Info("Auth initialized", "component", c.Name(), "nonce_backend", c.cfg.Auth.NonceBackend, "window", window)
	return nil
}

func (c *AuthComponent) Start(ctx context.Context) error {
	return nil
}

func (c *AuthComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.redis == nil {
		return nil
	}
	err := c.redis.Close()
	c.redis = nil
	return err
}

func (c *AuthComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.verifier == nil {
		return daemon.Unhealthy(c.Name(), fmt.Errorf("not initialized")), nil
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx); err != nil {
			return daemon.Unhealthy(c.Name(), fmt.Errorf("nonce store: %w", err)), nil
		}
	}
	return daemon.Healthy(c.Name()), nil
}

func (c *AuthComponent) Verifier() *auth.Verifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verifier
}

func (c *AuthComponent) Limiter() *approval.AgentLimiter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limiter
}

// MemoryNonces is nil when nonces live in Redis, which expires them itself.
func (c *AuthComponent) MemoryNonces() *auth.MemoryNonceStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memory
}
