package orchestrator

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/warden/internal/config"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/intent"
	"github.com/harunnryd/warden/internal/ledger"
)

// Path is the single execution path a request was attributed to.
type Path string

const (
	PathSearch         Path = "search-pipeline"
	PathTask           Path = "task-pipeline"
	PathRetrieval      Path = "retrieval-pipeline"
	PathSkillExecution Path = "skill-execution"
	PathSkillCreation  Path = "skill-creation"
	PathCloudFallback  Path = "cloud-fallback"
)

// Route is the decision record for one request. It is built once, returned
// by value and never modified afterwards.
type Route struct {
	ID         string        `json:"id"`
	Intent     intent.Intent `json:"intent"`
	Path       Path          `json:"path"`
	Skill      string        `json:"skill,omitempty"`
	ApprovalID string        `json:"approval_id,omitempty"`
	Result     string        `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	Cost       float64       `json:"cost"`
	Engine     string        `json:"engine,omitempty"`
	Degraded   bool          `json:"degraded"`
	Sources    []string      `json:"sources,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Failed reports whether the route ended in an error.
func (r Route) Failed() bool {
	return r.Error != ""
}

// Entry is the ledger row for r.
func (r Route) Entry() ledger.Entry {
	return ledger.Entry{
		ID:         r.ID,
		Intent:     string(r.Intent),
		Path:       string(r.Path),
		Skill:      r.Skill,
		ApprovalID: r.ApprovalID,
		Engine:     r.Engine,
		Cost:       r.Cost,
		Degraded:   r.Degraded,
		Error:      r.ErrorCode,
		StartedAt:  r.StartedAt,
		Duration:   r.FinishedAt.Sub(r.StartedAt),
	}
}

type routeBuilder struct {
	route Route
	costs config.CostsConfig
	now   func() time.Time
	done  bool
}

func newRouteBuilder(in intent.Intent, costs config.CostsConfig, now func() time.Time) *routeBuilder {
	return &routeBuilder{
		route: Route{ID: ulid.Make().String(), Intent: in, StartedAt: now().UTC()},
		costs: costs,
		now:   now,
	}
}

// path attributes the route to p and sets the matching cost.
func (b *routeBuilder) path(p Path) *routeBuilder {
	b.route.Path = p
	switch p {
	case PathSkillExecution:
		b.route.Cost = b.costs.SkillExecution
	case PathSkillCreation:
		b.route.Cost = b.costs.SkillCreation
	case PathCloudFallback:
		b.route.Cost = b.costs.CloudFallback
	default:
		b.route.Cost = b.costs.Local
	}
	return b
}

func (b *routeBuilder) skill(name string) *routeBuilder {
	b.route.Skill = name
	return b
}

func (b *routeBuilder) approval(id string) *routeBuilder {
	b.route.ApprovalID = id
	return b
}

func (b *routeBuilder) engine(name string) *routeBuilder {
	b.route.Engine = name
	return b
}

func (b *routeBuilder) degraded() *routeBuilder {
	b.route.Degraded = true
	return b
}

func (b *routeBuilder) sources(s []string) *routeBuilder {
	if len(s) > 0 {
		b.route.Sources = append([]string(nil), s...)
	}
	return b
}

// finish seals the route with its result or error. Later calls return the
// same sealed route.
func (b *routeBuilder) finish(result string, err error) Route {
	if b.done {
		return b.route
	}
	b.done = true
	if err != nil {
		b.route.Error = err.Error()
		b.route.ErrorCode = wardenErrors.Code(err)
	} else {
		b.route.Result = result
	}
	b.route.FinishedAt = b.now().UTC()
	return b.route
}
