// Package server provides the forage-pool HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/registry"
)

// Pool is the sandbox pool surface the API exposes.
// *pool.Manager implements it.
type Pool interface {
	Start(ctx context.Context, key pool.Key) pool.Result
	Stop(ctx context.Context, key pool.Key) error
	Touch(key pool.Key) bool
	Query(key pool.Key) (registry.Server, bool)
	List() []registry.Server
}

// Server is the forage-pool HTTP API server.
type Server struct {
	pool    Pool
	metrics *metrics.Metrics
	preview http.Handler
	router  chi.Router
	http    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics instruments requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPreview mounts h under /preview.
func WithPreview(h http.Handler) Option {
	return func(s *Server) { s.preview = h }
}

// New creates a Server listening on addr.
func New(addr string, p Pool, opts ...Option) *Server {
	s := &Server{pool: p}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens and serves until Shutdown is called. A clean shutdown
// returns nil.
func (s *Server) Serve(ctx context.Context) error {
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }
	logging.Info("forage-pool API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/sandboxes", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{owner}/{branch}", func(r chi.Router) {
			r.Post("/", s.handleStart)
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleStop)
			r.Post("/touch", s.handleTouch)
		})
	})

	if s.preview != nil {
		r.Handle("/preview/*", s.preview)
	}
	return r
}

// requestLogger logs each request at debug level through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// --- Request/Response types ---

type sandboxResponse struct {
	Owner        string         `json:"owner"`
	Branch       string         `json:"branch"`
	Port         int            `json:"port"`
	PID          int            `json:"pid"`
	State        registry.Phase `json:"state,omitempty"`
	Command      string         `json:"command"`
	StartedAt    time.Time      `json:"startedAt"`
	LastAccessed time.Time      `json:"lastAccessed"`
	Uptime       string         `json:"uptime"`
	URL          string         `json:"url"`
}

type startResponse struct {
	Port   int         `json:"port"`
	Status pool.Status `json:"status"`
	Error  string      `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type stopResponse struct {
	Warning string `json:"warning"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Sandboxes int    `json:"sandboxes"`
}

func toResponse(srv registry.Server) sandboxResponse {
	return sandboxResponse{
		Owner:        srv.OwnerID,
		Branch:       srv.BranchID,
		Port:         srv.Port,
		PID:          srv.PID,
		State:        srv.State,
		Command:      srv.Command,
		StartedAt:    srv.StartedAt,
		LastAccessed: srv.LastAccessed,
		Uptime:       health.GetUptime(srv.StartedAt),
		URL:          health.URL(srv.Port),
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sandboxes: len(s.pool.List())})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	servers := s.pool.List()
	out := make([]sandboxResponse, 0, len(servers))
	for _, srv := range servers {
		out = append(out, toResponse(srv))
	}
	writeJSON(w, http.StatusOK, out)
}

func keyFrom(w http.ResponseWriter, r *http.Request) (pool.Key, bool) {
	key := pool.Key{OwnerID: chi.URLParam(r, "owner"), BranchID: chi.URLParam(r, "branch")}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return pool.Key{}, false
	}
	return key, true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFrom(w, r)
	if !ok {
		return
	}
	res := s.pool.Start(r.Context(), key)
	resp := startResponse{Port: res.Port, Status: res.Status}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		status = statusFor(res.Err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFrom(w, r)
	if !ok {
		return
	}
	srv, ok := s.pool.Query(key)
	if !ok {
		writeError(w, http.StatusNotFound, errors.SandboxNotFound(key.String()).Error())
		return
	}
	writeJSON(w, http.StatusOK, toResponse(srv))
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFrom(w, r)
	if !ok {
		return
	}
	if !s.pool.Touch(key) {
		writeError(w, http.StatusNotFound, errors.SandboxNotFound(key.String()).Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFrom(w, r)
	if !ok {
		return
	}
	// The entry is gone even when termination fails, so the stop itself
	// succeeded; the failure is reported as a warning.
	if err := s.pool.Stop(r.Context(), key); err != nil {
		logging.Warn("sandbox stop incomplete", "sandbox", key.String(), "error", err)
		writeJSON(w, http.StatusOK, stopResponse{Warning: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps a start failure to an HTTP status.
func statusFor(err error) int {
	var poolErr *errors.PoolError
	if !errors.As(err, &poolErr) {
		return http.StatusInternalServerError
	}
	switch poolErr.Code {
	case errors.ExitGeneralError:
		return http.StatusBadRequest
	case errors.ExitPortExhausted:
		return http.StatusServiceUnavailable
	case errors.ExitReadinessTimeout:
		return http.StatusGatewayTimeout
	case errors.ExitSpawnFailed, errors.ExitProcessCrashed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
