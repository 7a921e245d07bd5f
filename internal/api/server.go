// Package api serves a capacity backend over HTTP using the same wire the
// backend client speaks, so the CLI and a browser front end can share one
// server. Successful writes are announced to websocket subscribers.
package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/signsinfo/capacity/internal/access"
	"github.com/signsinfo/capacity/internal/backend"
	"github.com/signsinfo/capacity/internal/notify"
)

// Logger is the interface for API server logging
type Logger interface {
	Printf(format string, v ...any)
	Debugf(format string, v ...any)
}

type defaultLogger struct {
	logger *log.Logger
	debug  bool
}

func newDefaultLogger(debug bool) *defaultLogger {
	return &defaultLogger{
		logger: log.New(os.Stderr, "[api] ", log.LstdFlags),
		debug:  debug,
	}
}

func (l *defaultLogger) Printf(format string, v ...any) {
	l.logger.Printf(format, v...)
}

func (l *defaultLogger) Debugf(format string, v ...any) {
	if l.debug {
		l.logger.Printf("[DEBUG] "+format, v...)
	}
}

// Deps are the collaborators of a Server.
type Deps struct {
	// Backend stores machines, usages and jobs
	Backend backend.Backend

	// Hub streams events to websocket clients (optional)
	Hub *notify.Hub

	// Notifier receives every event besides the hub, e.g. Redis (optional)
	Notifier notify.Notifier

	// Logger for server messages (default: stderr)
	Logger Logger

	// AccessLog receives one line per request (default: stdout)
	AccessLog io.Writer
}

// Server is the capacity HTTP API.
type Server struct {
	config   *Config
	backend  backend.Backend
	guard    *access.Guard
	hub      *notify.Hub
	notifier notify.Notifier
	limiter  *writeLimiter
	metrics  *Metrics
	logger   Logger
	access   io.Writer
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// NewServer creates a new API server.
func NewServer(config *Config, deps Deps) *Server {
	table := config.Table
	if table == nil {
		table = access.DefaultTable()
	}
	hub := deps.Hub
	if hub == nil {
		hub = notify.NewHub(0)
	}
	sinks := notify.Multi{hub}
	if deps.Notifier != nil {
		sinks = append(sinks, deps.Notifier)
	}
	logger := deps.Logger
	if logger == nil {
		logger = newDefaultLogger(config.Debug)
	}
	accessLog := deps.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	s := &Server{
		config:   config,
		backend:  deps.Backend,
		guard:    &access.Guard{Table: table, Provider: requestLevel{}},
		hub:      hub,
		notifier: sinks,
		limiter:  newWriteLimiter(config.WriteRPS, config.WriteBurst),
		metrics:  NewMetrics(),
		logger:   logger,
		access:   accessLog,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed, access-logged HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/health", s.metrics.WrapHandler("health", http.HandlerFunc(s.handleHealth))).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/login", s.metrics.WrapHandler("login", s.authenticate(s.handleLogin))).Methods(http.MethodGet)
	r.Handle("/events", s.authenticate(s.handleEvents)).Methods(http.MethodGet)

	r.Handle(backend.Path, s.metrics.WrapHandler("capacity_get", s.authenticate(s.handleGet))).
		Methods(http.MethodGet).Queries("type", "{type}")
	r.Handle(backend.Path, s.metrics.WrapHandler("capacity_write", s.limit(s.authenticate(s.handleWrite)))).
		Methods(http.MethodPost, http.MethodPatch)
	r.Handle(backend.Path, s.metrics.WrapHandler("capacity_delete", s.limit(s.authenticate(s.handleDelete)))).
		Methods(http.MethodDelete).Queries("type", "{type}", "id", "{id:[0-9]+}")

	return handlers.LoggingHandler(s.access, r)
}

// Start listens and serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Printf("listening on %s", listener.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.limiter.run(sweepCtx, time.Minute)

	select {
	case <-ctx.Done():
		timeout := s.config.ShutdownTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Printf("shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Addr returns the address the server listens on once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// checkOrigin validates the websocket origin header
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.Contains(origin, allowed) {
			return true
		}
	}
	s.logger.Printf("rejecting origin: %s (not in allowlist)", origin)
	return false
}

// limit rejects write requests over the per-IP rate.
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if ok, wait := s.limiter.take(ip); !ok {
			s.logger.Printf("rate limit exceeded for %s", ip)
			s.metrics.limited()
			if wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			writeError(w, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
