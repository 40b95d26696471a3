// Package scheduler runs the daemon's housekeeping jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

// JobFunc is one unit of housekeeping. It receives the scheduler's
// context, which is cancelled on Stop.
type JobFunc func(ctx context.Context)

type job struct {
	name     string
	schedule string
	id       cron.EntryID
}

type Scheduler struct {
	mu      sync.RWMutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	jobs    []job
	runs    map[string]int
	lastRun map[string]time.Time

	shutdownTimeout time.Duration
}

func NewScheduler(shutdownTimeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:            cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		ctx:             ctx,
		cancel:          cancel,
		runs:            make(map[string]int),
		lastRun:         make(map[string]time.Time),
		shutdownTimeout: shutdownTimeout,
	}
}

// Add registers fn under name. The schedule uses standard five-field cron
// syntax or a descriptor such as "@every 15s".
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return wardenErrors.InvalidInput(fmt.Sprintf("job %s: invalid schedule %q: %v", name, schedule, err))
	}

	id, err := s.cron.AddFunc(schedule, func() {
		if s.ctx.Err() != nil {
			return
		}
		fn(s.ctx)
		s.mu.Lock()
		s.runs[name]++
		s.lastRun[name] = time.Now()
		s.mu.Unlock()
	})
	if err != nil {
		return wardenErrors.InvalidInput(fmt.Sprintf("job %s: %v", name, err))
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job{name: name, schedule: schedule, id: id})
	s.mu.Unlock()

	slog.Debug("Scheduled job", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.cron.Start()

	slog.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop halts the schedule and waits for running jobs, bounded by the
// shutdown timeout and ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	done := s.cron.Stop()

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done.Done():
		slog.Info("Scheduler stopped gracefully")
		return nil
	case <-timer.C:
		slog.Warn("Scheduler shutdown timeout, jobs still running")
		return wardenErrors.Internal("scheduler shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Health(ctx context.Context) error {
	if !s.IsRunning() {
		return wardenErrors.Internal("scheduler not running")
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Runs reports how many times the named job has completed.
func (s *Scheduler) Runs(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[name]
}

// Jobs lists registered job names with their schedules.
func (s *Scheduler) Jobs() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.jobs))
	for _, j := range s.jobs {
		out[j.name] = j.schedule
	}
	return out
}
