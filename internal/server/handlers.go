package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/auth"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/intent"
	"github.com/harunnryd/warden/internal/ledger"
	"github.com/harunnryd/warden/internal/logger"
	"github.com/harunnryd/warden/internal/orchestrator"
	"github.com/harunnryd/warden/internal/skill"
)

type errorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message,omitempty"`
	Route   *orchestrator.Route `json:"route,omitempty"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

type skillView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Triggers    []string `json:"triggers"`
	Mode        string   `json:"execution_mode"`
	Trusted     bool     `json:"trusted"`
	Source      string   `json:"source"`
}

type statsResponse struct {
	ledger.Summary
	Skills int `json:"skills"`
}

// writeError maps err onto its status. Server-side failures carry only the
// code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := wardenErrors.HTTPStatus(err)
	resp := errorResponse{Error: wardenErrors.Code(err)}
	if status < http.StatusInternalServerError {
		resp.Message = err.Error()
	} else {
		logger.FromContext(r.Context()).Error("Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.opts.Health != nil {
		resp.Components = make(map[string]string)
		for name, healthy := range s.opts.Health(r.Context()) {
			if healthy {
				resp.Components[name] = "healthy"
			} else {
				resp.Components[name] = "unhealthy"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	replayKey := s.replayKey(r)
	if replayKey != "" {
		raw, ok, err := s.opts.Replays.Reserve(r.Context(), replayKey)
		if err != nil {
			writeError(w, r, wardenErrors.Unavailable(fmt.Sprintf("await idempotency key: %v", err)))
			return
		}
		if ok {
			w.Header().Set(HeaderReplayed, "true")
			writeJSON(w, http.StatusOK, raw)
			return
		}
	}
	route, err := s.dispatchMessage(r, replayKey)
	if err != nil {
		status := wardenErrors.HTTPStatus(err)
		resp := errorResponse{Error: wardenErrors.Code(err)}
		if route.ID != "" {
			resp.Route = &route
		}
		if status < http.StatusInternalServerError {
			resp.Message = err.Error()
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// dispatchMessage decodes and routes the message. A held replay key is
// remembered on success and released on any failure.
func (s *Server) dispatchMessage(r *http.Request, replayKey string) (route orchestrator.Route, err error) {
	if replayKey != "" {
		defer func() {
			if err != nil {
				s.opts.Replays.Release(replayKey)
				return
			}
			s.remember(r, replayKey, route)
		}()
	}

	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return orchestrator.Route{}, wardenErrors.InvalidInput(fmt.Sprintf("decode message: %v", err))
	}
	if req.Intent != "" {
		parsed, ok := intent.Parse(string(req.Intent))
		if !ok {
			return orchestrator.Route{}, wardenErrors.InvalidInput(fmt.Sprintf("unknown intent %q", req.Intent))
		}
		req.Intent = parsed
	}
	return s.opts.Router.Dispatch(r.Context(), req)
}

// replayKey scopes the caller's Idempotency-Key to its service id, or
// returns "" when replays are off or no key was sent.
func (s *Server) replayKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if s.opts.Replays == nil || key == "" {
		return ""
	}
	caller, _ := auth.ServiceIDFrom(r.Context())
	return caller + ":" + key
}

func (s *Server) remember(r *http.Request, key string, route orchestrator.Route) {
	raw, err := json.Marshal(route)
	if err != nil {
		s.opts.Replays.Release(key)
	} else {
		err = s.opts.Replays.Remember(key, raw, s.opts.ReplayTTL)
	}
	if err != nil {
		logger.FromContext(r.Context()).Warn("Failed to remember route for replay", "route_id", route.ID, "error", err)
	}
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	views := []skillView{}
	if s.opts.Skills != nil {
		for _, sk := range s.opts.Skills.List() {
			views = append(views, viewOf(sk))
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func viewOf(s *skill.Skill) skillView {
	return skillView{
		Name:        s.Name,
		Description: s.Description,
		Triggers:    s.Triggers,
		Mode:        string(s.Mode),
		Trusted:     s.Trusted,
		Source:      string(s.Source),
	}
}

func (s *Server) handleApprovalRequest(w http.ResponseWriter, r *http.Request) {
	agent, ok := auth.ServiceIDFrom(r.Context())
	if !ok {
		writeError(w, r, wardenErrors.ErrUnauthenticated)
		return
	}
	if s.opts.Limiter != nil && !s.opts.Limiter.Allow(agent) {
		writeError(w, r, fmt.Errorf("agent %s: %w", agent, wardenErrors.ErrRateLimited))
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, wardenErrors.InvalidInput(fmt.Sprintf("read body: %v", err)))
		return
	}
	id, err := s.opts.Approvals.Request(r.Context(), agent, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval.RequestResponse{ID: id, Status: approval.StatePending})
}

func (s *Server) handleApprovalStatus(w http.ResponseWriter, r *http.Request) {
	item, err := s.opts.Approvals.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleApprovalsPending(w http.ResponseWriter, r *http.Request) {
	items := s.opts.Approvals.Pending(r.Context())
	if items == nil {
		items = []approval.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleApprovalResolve(w http.ResponseWriter, r *http.Request) {
	var body approval.ResolveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.opts.MaxBodyBytes)).Decode(&body); err != nil {
		writeError(w, r, wardenErrors.InvalidInput(fmt.Sprintf("decode decision: %v", err)))
		return
	}
	decision, err := approval.ParseDecision(string(body.Decision))
	if err != nil {
		writeError(w, r, err)
		return
	}

	operator := logger.GetServiceID(r.Context())
	item, err := s.opts.Approvals.Resolve(r.Context(), chi.URLParam(r, "id"), decision, operator)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleStats summarises the ledger. ?since= takes a duration ("24h") or
// an RFC3339 time; empty means everything.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"), time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := statsResponse{Summary: ledger.Summary{Since: since, Paths: []ledger.PathStats{}}}
	if s.opts.Stats != nil {
		summary, err := s.opts.Stats.Summary(r.Context(), since)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Summary = summary
	}
	if s.opts.Skills != nil {
		resp.Skills = len(s.opts.Skills.List())
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSince(v string, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return time.Time{}, wardenErrors.InvalidInput("since must not be negative")
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, wardenErrors.InvalidInput(fmt.Sprintf("since %q is neither a duration nor RFC3339", v))
	}
	return t, nil
}
