package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/scheduler"
)

const (
	noncePruneSchedule   = "@every 1m"
	limiterPruneSchedule = "@every 10m"
	limiterIdle          = 30 * time.Minute
	sandboxSweepSchedule = "@every 10m"
	sandboxMaxAge        = time.Hour
)

// SchedulerComponent runs housekeeping: expiring overdue approvals,
// forgetting old nonces and idle agents, and clearing orphaned sandboxes.
type SchedulerComponent struct {
	sched         *scheduler.Scheduler
	cfg           *config.Config
	approvalsComp *ApprovalsComponent
	authComp      *AuthComponent
	routerComp    *RouterComponent
}

func NewSchedulerComponent(cfg *config.Config, approvalsComp *ApprovalsComponent, authComp *AuthComponent, routerComp *RouterComponent) *SchedulerComponent {
	return &SchedulerComponent{
		cfg:           cfg,
		approvalsComp: approvalsComp,
		authComp:      authComp,
		routerComp:    routerComp,
	}
}

func (s *SchedulerComponent) Name() string {
	return "Scheduler"
}

func (s *SchedulerComponent) Dependencies() []string {
	return []string{"Approvals", "Auth", "Router"}
}

func (s *SchedulerComponent) Init(ctx context.Context) error {
	if s.approvalsComp == nil || s.authComp == nil || s.routerComp == nil {
		return fmt.Errorf("scheduler dependencies not provided")
	}
	queue := s.approvalsComp.Queue()
	if queue == nil {
		return fmt.Errorf("approval queue not initialized")
	}

	shutdownTimeout, err := config.DurationOrDefault(s.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}
	sched := scheduler.NewScheduler(shutdownTimeout)

	sweep := s.cfg.Approvals.SweepSchedule
	if sweep == "" {
		sweep = config.DefaultApprovalsSweepSchedule
	}
	if err := sched.Add("approvals-sweep", sweep, func(ctx context.Context) {
		if n := queue.Sweep(ctx); n > 0 {
			slog.Info("Expired overdue approvals", "count", n)
		}
	}); err != nil {
		return err
	}

	if nonces := s.authComp.MemoryNonces(); nonces != nil {
		if err := sched.Add("nonce-prune", noncePruneSchedule, func(context.Context) {
			if n := nonces.Prune(); n > 0 {
				slog.Debug("Pruned expired nonces", "count", n, "remaining", nonces.Len())
			}
		}); err != nil {
			return err
		}
	}

	if limiter := s.authComp.Limiter(); limiter != nil {
		if err := sched.Add("limiter-prune", limiterPruneSchedule, func(context.Context) {
			limiter.Prune(limiterIdle)
		}); err != nil {
			return err
		}
	}

	if sandboxes := s.routerComp.Sandboxes(); sandboxes != nil {
		if err := sched.Add("sandbox-sweep", sandboxSweepSchedule, func(context.Context) {
			if n := sandboxes.Sweep(sandboxMaxAge); n > 0 {
				slog.Info("Removed orphaned sandboxes", "count", n)
			}
		}); err != nil {
			return err
		}
	}

	s.sched = sched
	slog.Info("Scheduler initialized", "component", s.Name(), "jobs", len(sched.Jobs()))
	return nil
}

func (s *SchedulerComponent) Start(ctx context.Context) error {
	if s.sched == nil {
		return fmt.Errorf("scheduler not initialized")
	}

	if err := s.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info("Scheduler started", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Stop(ctx context.Context) error {
	if s.sched == nil {
		slog.Info("Scheduler not initialized, skipping stop", "component", s.Name())
		return nil
	}

	if err := s.sched.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	slog.Info("Scheduler stopped", "component", s.Name())
	return nil
}

func (s *SchedulerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if s.sched == nil {
		return daemon.Unhealthy(s.Name(), fmt.Errorf("not initialized")), nil
	}
	if err := s.sched.Health(ctx); err != nil {
		return daemon.Unhealthy(s.Name(), err), nil
	}
	return daemon.Healthy(s.Name()), nil
}

func (s *SchedulerComponent) GetScheduler() *scheduler.Scheduler {
	return s.sched
}
