package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/pool"
)

// DefaultPrefix is the path the preview proxy is mounted at.
const DefaultPrefix = "/preview/"

// Sandboxes is the part of the pool the proxy drives.
// *pool.Manager implements it.
type Sandboxes interface {
	Start(ctx context.Context, key pool.Key) pool.Result
	Touch(key pool.Key) bool
}

// Config holds proxy configuration
type Config struct {
	// Pool starts and touches sandboxes.
	Pool Sandboxes

	// Prefix is the mount path, "/preview/" by default. Requests look like
	// {Prefix}{owner}/{branch}/{rest}.
	Prefix string

	// Host is where dev servers listen, 127.0.0.1 by default.
	Host string

	// RateLimitRequests is the max requests per window per sandbox
	// (0 = unlimited)
	RateLimitRequests int

	// RateLimitWindow is the rate limit window duration
	RateLimitWindow time.Duration

	// Logger for proxy operations
	Logger *slog.Logger

	// Transport is an optional HTTP transport for the reverse proxy.
	Transport http.RoundTripper
}

type portKey struct{}

// Proxy forwards preview requests to the sandbox for the branch in the
// path, starting it on demand.
type Proxy struct {
	config       *Config
	reverseProxy *httputil.ReverseProxy
	rateLimiter  *rateLimiter
}

// New creates a new proxy instance
func New(cfg *Config) (*Proxy, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("proxy requires a sandbox pool")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Proxy{config: cfg}
	p.reverseProxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			port := pr.In.Context().Value(portKey{}).(int)
			pr.SetURL(&url.URL{
				Scheme: "http",
				Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
			})
			pr.SetXForwarded()
			pr.Out.Header.Set("X-Forwarded-Prefix", strings.TrimSuffix(pr.In.Header.Get("X-Forage-Prefix"), "/"))
			pr.Out.Header.Del("X-Forage-Prefix")
		},
		ErrorHandler: p.errorHandler,
	}
	if cfg.Transport != nil {
		p.reverseProxy.Transport = cfg.Transport
	}

	if cfg.RateLimitRequests > 0 {
		p.rateLimiter = newRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	return p, nil
}

// splitPath extracts the sandbox key and the upstream path from a request
// path under prefix.
func splitPath(prefix, p string) (pool.Key, string, bool) {
	rest, ok := strings.CutPrefix(p, prefix)
	if !ok {
		return pool.Key{}, "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return pool.Key{}, "", false
	}
	upstream := "/"
	if len(parts) == 3 {
		upstream += parts[2]
	}
	return pool.Key{OwnerID: parts[0], BranchID: parts[1]}, upstream, true
}

// ServeHTTP implements http.Handler
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, upstream, ok := splitPath(p.config.Prefix, r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "expected "+p.config.Prefix+"{owner}/{branch}/")
		return
	}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if p.rateLimiter != nil && !p.rateLimiter.allow(key.String()) {
		p.config.Logger.Warn("rate limit exceeded", "sandbox", key.String())
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	// Start returns the existing sandbox when one is live and marks it used.
	res := p.config.Pool.Start(r.Context(), key)
	if res.Status != pool.StatusRunning {
		p.config.Logger.Warn("preview sandbox unavailable", "sandbox", key.String(), "error", res.Err)
		writeError(w, statusFor(res.Err), fmt.Sprint(res.Err))
		return
	}

	p.config.Logger.Debug("proxy request",
		"method", r.Method,
		"path", upstream,
		"sandbox", key.String(),
		"port", res.Port,
		"remote", r.RemoteAddr)

	out := r.Clone(context.WithValue(r.Context(), portKey{}, res.Port))
	out.URL.Path = upstream
	out.URL.RawPath = ""
	out.Header.Set("X-Forage-Prefix", p.config.Prefix+key.String())

	lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	p.reverseProxy.ServeHTTP(lw, out)

	// Long requests count as use when they finish too.
	p.config.Pool.Touch(key)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrPortExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, errors.ErrReadinessTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errors.ErrSandboxNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	p.config.Logger.Error("proxy error", "error", err, "path", r.URL.Path)
	writeError(w, http.StatusBadGateway, "sandbox did not answer")
}

// Close releases resources held by the proxy.
func (p *Proxy) Close() error {
	if p.rateLimiter != nil {
		p.rateLimiter.stop()
	}
	return nil
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// Flush lets streamed responses through.
func (lw *loggingResponseWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (lw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}

// rateLimiter implements per-sandbox rate limiting
type rateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	mu          sync.Mutex
	stopClean   chan struct{}
	stopOnce    sync.Once
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	rl := &rateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		stopClean:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := rl.within(rl.requests[key], now.Add(-rl.window))
	if len(valid) >= rl.maxRequests {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) within(reqs []time.Time, windowStart time.Time) []time.Time {
	var valid []time.Time
	for _, t := range reqs {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	return valid
}

// cleanupLoop periodically drops sandboxes with no recent requests.
func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopClean:
			return
		}
	}
}

func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)
	for key, reqs := range rl.requests {
		if valid := rl.within(reqs, windowStart); len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.stopClean) })
}
