// Package server exposes the routing gateway and the approval API over
// HTTP. Every route except /health is authenticated: agent routes by
// request signature, operator routes by API key.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/harunnryd/warden/internal/approval"
	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/ledger"
	"github.com/harunnryd/warden/internal/logger"
	"github.com/harunnryd/warden/internal/orchestrator"
	"github.com/harunnryd/warden/internal/skill"
)

// HeaderRequestID carries the trace id end to end.
const HeaderRequestID = "X-Request-ID"

const (
	// HeaderIdempotencyKey lets a gateway retry POST /message safely.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the idempotency store.
	HeaderReplayed = "Idempotent-Replayed"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req orchestrator.Request) (orchestrator.Route, error)
}

type SkillLister interface {
	List() []*skill.Skill
}

// Approvals is the queue surface behind the approval routes.
type Approvals interface {
	Request(ctx context.Context, agent string, raw []byte) (string, error)
	Status(ctx context.Context, id string) (approval.Item, error)
	Pending(ctx context.Context) []approval.Item
	Resolve(ctx context.Context, id string, decision approval.Decision, operator string) (approval.Item, error)
}

// Replays remembers successful routes by caller-scoped idempotency key. A
// key is reserved before dispatch so concurrent retries route once.
type Replays interface {
	Reserve(ctx context.Context, key string) (json.RawMessage, bool, error)
	Remember(key string, response json.RawMessage, ttl time.Duration) error
	Release(key string)
}

type Stats interface {
	Summary(ctx context.Context, since time.Time) (ledger.Summary, error)
}

// HealthFunc reports per-component liveness for /health.
type HealthFunc func(ctx context.Context) map[string]bool

type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64

	Verifier    *auth.Verifier
	Allowed     config.AllowedCallers
	OperatorKey string

	Router    Dispatcher
	Skills    SkillLister
	Approvals Approvals
	Limiter   *approval.AgentLimiter
	Stats     Stats
	Health    HealthFunc

	Replays   Replays
	ReplayTTL time.Duration
}

type Server struct {
	opts    Options
	handler http.Handler
	srv     *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Verifier == nil {
		return nil, errors.New("server requires a signature verifier")
	}
	if opts.Router == nil || opts.Approvals == nil {
		return nil, errors.New("server requires a router and an approval queue")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = config.DefaultServerMaxBodyBytes
	}
	if opts.ReplayTTL <= 0 {
		opts.ReplayTTL = 24 * time.Hour
	}

	s := &Server{opts: opts}
	s.handler = s.routes()
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s, nil
}

// OptionsFromConfig fills the transport settings of Options from cfg.
func OptionsFromConfig(cfg config.ServerConfig) (Options, error) {
	read, err := config.DurationOrDefault(cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("parse read timeout: %w", err)
	}
	write, err := config.DurationOrDefault(cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("parse write timeout: %w", err)
	}
	idle, err := config.DurationOrDefault(cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("parse idle timeout: %w", err)
	}
	replayTTL, err := config.DurationOrDefault(cfg.IdempotencyTTL, config.DefaultServerIdempotencyTTL)
	if err != nil {
		return Options{}, fmt.Errorf("parse idempotency ttl: %w", err)
	}
	return Options{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		MaxBodyBytes: cfg.MaxBodyBytes,
		ReplayTTL:    replayTTL,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(traceMiddleware)

	// Public routes are listed here and nowhere else.
	r.Get("/health", s.handleHealth)

	sign := func(allowed []string) func(http.Handler) http.Handler {
		return auth.RequireSignature(s.opts.Verifier, allowed, s.opts.MaxBodyBytes)
	}

	r.Group(func(r chi.Router) {
		r.Use(sign(s.opts.Allowed.Gateway))
		r.Post("/message", s.handleMessage)
	})
	r.Group(func(r chi.Router) {
		r.Use(sign(s.opts.Allowed.Skills))
		r.Get("/skills", s.handleSkills)
	})
	r.Group(func(r chi.Router) {
		r.Use(sign(s.opts.Allowed.Approvals))
		r.Post("/approvals/request", s.handleApprovalRequest)
		r.Get("/approvals/status/{id}", s.handleApprovalStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireOperatorKey(s.opts.OperatorKey))
		r.Get("/approvals/pending", s.handleApprovalsPending)
		r.Post("/approvals/resolve/{id}", s.handleApprovalResolve)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return ln, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// traceMiddleware propagates or assigns a request id and tags the request
// logger with it.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := logger.WithTraceID(r.Context(), id)

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.FromContext(ctx).Debug("HTTP request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
