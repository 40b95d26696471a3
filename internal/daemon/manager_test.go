package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/store"
)

// eventLog records lifecycle calls across components in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type mockComponent struct {
	name         string
	dependencies []string
	log          *eventLog
	initCalled   bool
	startCalled  bool
	stopCalled   bool
	initError    error
	startError   error
	stopError    error
	healthError  error
	healthResult *ComponentHealth
}

func newMockComponent(name string, dependencies []string, log *eventLog) *mockComponent {
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		log:          log,
		healthResult: Healthy(name),
	}
}

func (m *mockComponent) record(event string) {
	if m.log != nil {
		m.log.add(event + ":" + m.name)
	}
}

func (m *mockComponent) Name() string {
	return m.name
}

func (m *mockComponent) Dependencies() []string {
	return m.dependencies
}

func (m *mockComponent) Init(ctx context.Context) error {
	m.initCalled = true
	m.record("init")
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.startCalled = true
	m.record("start")
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopCalled = true
	m.record("stop")
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return m.healthResult, m.healthError
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Auth: config.AuthConfig{
			ServiceID:      "gateway",
			Secret:         "test-secret",
			OperatorAPIKey: "operator-key",
			NonceBackend:   "memory",
		},
		Daemon: config.DaemonConfig{
			DataDir:             filepath.Join(t.TempDir(), "data"),
			HealthCheckInterval: "10ms",
			ShutdownTimeout:     "2s",
		},
	}
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestNewDaemon(t *testing.T) {
	if _, err := NewDaemon(nil); err == nil {
		t.Fatal("NewDaemon(nil) should fail")
	}

	d, err := NewDaemon(&config.Config{})
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}
	if len(d.components) != 0 {
		t.Errorf("components = %v, want 0", len(d.components))
	}
	if d.Health() != StatusStarting {
		t.Errorf("Health = %v, want %v", d.Health(), StatusStarting)
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := validConfig(t)
	d, _ := NewDaemon(cfg)
	if err := d.validateConfig(); err != nil {
		t.Fatalf("validateConfig() error = %v", err)
	}

	cfg = validConfig(t)
	cfg.Auth.Secret = ""
	d, _ = NewDaemon(cfg)
	if err := d.validateConfig(); err == nil {
		t.Error("validateConfig() should reject a missing secret")
	}

	cfg = validConfig(t)
	cfg.Daemon.DataDir = ""
	d, _ = NewDaemon(cfg)
	if err := d.validateConfig(); err == nil {
		t.Error("validateConfig() should reject a missing data dir")
	}
}

func TestInitializeComponents_DependencyOrder(t *testing.T) {
	log := &eventLog{}
	d, _ := NewDaemon(validConfig(t))

	d.AddComponent(newMockComponent("HTTPServer", []string{"Router", "Auth"}, log))
	d.AddComponent(newMockComponent("Router", []string{"Skills"}, log))
	d.AddComponent(newMockComponent("Auth", nil, log))
	d.AddComponent(newMockComponent("Skills", nil, log))

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}
	equalEvents(t, log.list(), []string{"init:Skills", "init:Router", "init:Auth", "init:HTTPServer"})
}

func TestInitializeComponentsCircularDependency(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))

	d.AddComponent(newMockComponent("Comp1", []string{"Comp2"}, nil))
	d.AddComponent(newMockComponent("Comp2", []string{"Comp1"}, nil))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("Expected error for circular dependency, got nil")
	}
}

func TestInitializeComponentsMissingDependency(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))
	d.AddComponent(newMockComponent("Comp", []string{"NonExistent"}, nil))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("Expected error for missing dependency, got nil")
	}
}

func TestStartAndShutdownFollowInitOrder(t *testing.T) {
	log := &eventLog{}
	d, _ := NewDaemon(validConfig(t))

	d.AddComponent(newMockComponent("HTTPServer", []string{"Ledger"}, log))
	d.AddComponent(newMockComponent("Ledger", []string{"DataLock"}, log))
	d.AddComponent(newMockComponent("DataLock", nil, log))

	ctx := context.Background()
	if err := d.initializeComponents(ctx); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}
	if err := d.startComponents(ctx); err != nil {
		t.Fatalf("startComponents() error = %v", err)
	}
	if err := d.shutdownComponents(ctx); err != nil {
		t.Fatalf("shutdownComponents() error = %v", err)
	}

	equalEvents(t, log.list(), []string{
		"init:DataLock", "init:Ledger", "init:HTTPServer",
		"start:DataLock", "start:Ledger", "start:HTTPServer",
		"stop:HTTPServer", "stop:Ledger", "stop:DataLock",
	})
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestShutdownComponents_ContinuesPastErrors(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))

	comp1 := newMockComponent("Comp1", nil, nil)
	comp2 := newMockComponent("Comp2", nil, nil)
	comp2.stopError = fmt.Errorf("boom")

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	if err := d.shutdownComponents(context.Background()); err == nil {
		t.Error("shutdownComponents() should report the failed stop")
	}
	if !comp1.stopCalled {
		t.Error("Comp1.Stop() was not called")
	}
}

func TestComponentHealth(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))

	comp1 := newMockComponent("Comp1", nil, nil)

	comp2 := newMockComponent("Comp2", nil, nil)
	comp2.healthResult = Unhealthy("Comp2", fmt.Errorf("mock error"))

	comp3 := newMockComponent("Comp3", nil, nil)
	comp3.healthResult = nil
	comp3.healthError = fmt.Errorf("probe failed")

	d.AddComponent(comp1)
	d.AddComponent(comp2)
	d.AddComponent(comp3)

	healths := d.ComponentHealth(context.Background())
	if len(healths) != 3 {
		t.Fatalf("ComponentHealth() returned %v healths, want 3", len(healths))
	}
	if !healths["Comp1"].Healthy {
		t.Error("Comp1 should be healthy")
	}
	if healths["Comp2"].Healthy || healths["Comp2"].Error == nil {
		t.Error("Comp2 should be unhealthy with an error")
	}
	if healths["Comp3"].Healthy || healths["Comp3"].Error == nil {
		t.Error("Comp3 should be unhealthy when its probe fails")
	}

	flat := d.HealthMap(context.Background())
	if !flat["Comp1"] || flat["Comp2"] || flat["Comp3"] {
		t.Errorf("HealthMap() = %v", flat)
	}
}

func TestRollback(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))

	comp1 := newMockComponent("Comp1", nil, nil)
	comp2 := newMockComponent("Comp2", nil, nil)

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	d.rollback(context.Background())

	if !comp1.stopCalled || !comp2.stopCalled {
		t.Error("rollback should stop every component")
	}
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestComponentLookup(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))
	d.AddComponent(newMockComponent("Comp1", nil, nil))

	if d.Component("Comp1") == nil {
		t.Error("Component(Comp1) should be found")
	}
	if d.Component("NonExistent") != nil {
		t.Error("Component(NonExistent) should be nil")
	}
}

func TestStart_RunsUntilCancelled(t *testing.T) {
	log := &eventLog{}
	d, _ := NewDaemon(validConfig(t))
	d.AddComponent(newMockComponent("Comp1", nil, log))
	d.AddComponent(newMockComponent("Comp2", []string{"Comp1"}, log))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.Health() != StatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("daemon never reached running")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	equalEvents(t, log.list(), []string{
		"init:Comp1", "init:Comp2", "start:Comp1", "start:Comp2", "stop:Comp2", "stop:Comp1",
	})
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestStart_InitFailureRollsBack(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))
	ok := newMockComponent("Comp1", nil, nil)
	bad := newMockComponent("Comp2", []string{"Comp1"}, nil)
	bad.initError = fmt.Errorf("cannot open")
	d.AddComponent(ok)
	d.AddComponent(bad)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when a component cannot init")
	}
	if !ok.stopCalled {
		t.Error("initialised components should be stopped on rollback")
	}
	if bad.startCalled {
		t.Error("no component should start after an init failure")
	}
}

func TestStart_StartFailureShutsDown(t *testing.T) {
	d, _ := NewDaemon(validConfig(t))
	ok := newMockComponent("Comp1", nil, nil)
	bad := newMockComponent("Comp2", []string{"Comp1"}, nil)
	bad.startError = fmt.Errorf("port in use")
	d.AddComponent(ok)
	d.AddComponent(bad)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when a component cannot start")
	}
	if !ok.stopCalled {
		t.Error("started components should be stopped")
	}
}

func TestPreInitChecks_RemovesStaleLockWhenForced(t *testing.T) {
	cfg := validConfig(t)
	cfg.Daemon.StaleLockTTL = "1ms"
	d, _ := NewDaemon(cfg)
	if err := d.validateConfig(); err != nil {
		t.Fatalf("validateConfig() error = %v", err)
	}

	lock, err := store.Acquire(context.Background(), cfg.Daemon.DataDir, store.DefaultLockConfig())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	lock.Unlock()
	time.Sleep(5 * time.Millisecond)

	d.SetForceCleanup(true)
	if err := d.preInitChecks(true); err != nil {
		t.Fatalf("preInitChecks() error = %v", err)
	}
	again, err := store.Acquire(context.Background(), cfg.Daemon.DataDir, store.DefaultLockConfig())
	if err != nil {
		t.Fatalf("lock should be free after cleanup: %v", err)
	}
	again.Unlock()
}
