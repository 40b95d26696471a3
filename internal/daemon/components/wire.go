package components

import (
	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/daemon"
)

// Set is every component of a warden process, kept so callers and tests
// can reach the live pieces after Start.
type Set struct {
	DataLock  *DataLockComponent
	Ledger    *LedgerComponent
	Skills    *SkillsComponent
	Approvals *ApprovalsComponent
	Auth      *AuthComponent
	Router    *RouterComponent
	Scheduler *SchedulerComponent
	HTTP      *HTTPServerComponent
}

// Register builds the standard component set from cfg and adds it to d.
func Register(d *daemon.Daemon, cfg *config.Config) *Set {
	s := &Set{
		DataLock: NewDataLockComponent(&cfg.Daemon),
		Ledger:   NewLedgerComponent(&cfg.Ledger),
		Skills:   NewSkillsComponent(&cfg.Skills),
		Auth:     NewAuthComponent(cfg),
	}
	s.Approvals = NewApprovalsComponent(cfg, s.Skills)
	s.Router = NewRouterComponent(cfg, s.Skills, s.Approvals, s.Ledger)
	s.Scheduler = NewSchedulerComponent(cfg, s.Approvals, s.Auth, s.Router)
	s.HTTP = NewHTTPServerComponent(d, cfg, HTTPDeps{
		Auth:      s.Auth,
		Router:    s.Router,
		Skills:    s.Skills,
		Approvals: s.Approvals,
		Ledger:    s.Ledger,
	})

	for _, c := range []daemon.Component{s.DataLock, s.Ledger, s.Skills, s.Approvals, s.Auth, s.Router, s.Scheduler, s.HTTP} {
		d.AddComponent(c)
	}
	return s
}
