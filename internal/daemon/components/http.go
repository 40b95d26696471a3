package components

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/idempotency"
	"github.com/harunnryd/warden/internal/server"
)

const idempotencyFile = "idempotency.json"

// HTTPServerComponent serves the gateway, skills and approval APIs. It
// binds in Start so a taken port fails startup instead of logging later.
type HTTPServerComponent struct {
	daemon        *daemon.Daemon
	cfg           *config.Config
	authComp      *AuthComponent
	routerComp    *RouterComponent
	skillsComp    *SkillsComponent
	approvalsComp *ApprovalsComponent
	ledgerComp    *LedgerComponent

	server      *server.Server
	addr        string
	shutdownTTL time.Duration
	initialized bool
	started     bool
	serveErr    chan error
	mu          sync.RWMutex
	startTime   time.Time
}

// HTTPDeps are the components the HTTP server reads from.
type HTTPDeps struct {
	Auth      *AuthComponent
	Router    *RouterComponent
	Skills    *SkillsComponent
	Approvals *ApprovalsComponent
	Ledger    *LedgerComponent
}

func NewHTTPServerComponent(d *daemon.Daemon, cfg *config.Config, deps HTTPDeps) *HTTPServerComponent {
	return &HTTPServerComponent{
		daemon:        d,
		cfg:           cfg,
		authComp:      deps.Auth,
		routerComp:    deps.Router,
		skillsComp:    deps.Skills,
		approvalsComp: deps.Approvals,
		ledgerComp:    deps.Ledger,
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	return []string{"Auth", "Router", "Skills", "Approvals", "Ledger", "Scheduler"}
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.authComp == nil || h.routerComp == nil || h.skillsComp == nil || h.approvalsComp == nil || h.ledgerComp == nil {
		return fmt.Errorf("http server dependencies not provided")
	}

	opts, err := server.OptionsFromConfig(h.cfg.Server)
	if err != nil {
		return err
	}
	shutdownTimeout, err := config.DurationOrDefault(h.cfg.Server.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}

	opts.Verifier = h.authComp.Verifier()
	opts.Limiter = h.authComp.Limiter()
	opts.Allowed = h.cfg.Auth.Allowed
	opts.OperatorKey = h.cfg.Auth.OperatorAPIKey
	if r := h.routerComp.Router(); r != nil {
		opts.Router = r
	}
	if q := h.approvalsComp.Queue(); q != nil {
		opts.Approvals = q
	}
	if reg := h.skillsComp.Registry(); reg != nil {
		opts.Skills = reg
	}
	if l := h.ledgerComp.Ledger(); l != nil {
		opts.Stats = l
	}
	if h.daemon != nil {
		opts.Health = h.daemon.HealthMap
	}
	replays, err := idempotency.NewStore(filepath.Join(h.cfg.Daemon.DataDir, idempotencyFile))
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	opts.Replays = replays

	srv, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}
	h.server = srv
	h.addr = opts.Addr
	h.shutdownTTL = shutdownTimeout
	h.initialized = true
	slog.Info("HTTPServer initialized", "component", h.Name(), "addr", opts.Addr)
	return nil
}

func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}

	ln, err := h.server.Listen()
	if err != nil {
		return err
	}
	h.addr = ln.Addr().String()

	h.serveErr = make(chan error, 1)
	go func() {
		err := h.server.Serve(ln)
		if err != nil {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
		h.serveErr <- err
	}()

	h.started = true
	h.startTime = time.Now()
	slog.Info("HTTPServer started", "component", h.Name(), "addr", h.addr)
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		slog.Info("HTTPServer not started, skipping stop", "component", h.Name())
		return nil
	}

	slog.Info("Stopping HTTPServer...", "component", h.Name())
	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name(), "uptime", time.Since(h.startTime).Round(time.Second))
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return daemon.Unhealthy(h.Name(), fmt.Errorf("not initialized")), nil
	}
	if !h.started {
		return daemon.Unhealthy(h.Name(), fmt.Errorf("not started")), nil
	}
	select {
	case err := <-h.serveErr:
		h.serveErr <- err
		return daemon.Unhealthy(h.Name(), fmt.Errorf("serve loop exited: %v", err)), nil
	default:
	}
	return daemon.Healthy(h.Name()), nil
}

// Addr is the bound address once started, e.g. "[::]:8080".
func (h *HTTPServerComponent) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.addr
}
