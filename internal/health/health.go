// Package health provides the HTTP health and readiness endpoints.
//
// Liveness (/live) always succeeds while the process runs. Health
// (/health) aggregates dependency checks. Readiness (/ready) has its own
// check set so the service can be alive and healthy yet not ready, e.g.
// before the first scan cycle has produced a snapshot.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"arbscan/internal/logger"
)

const checkTimeout = 5 * time.Second

// Status is the /health response body.
type Status struct {
	Status    string           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime"`
	Timestamp string           `json:"timestamp"`
}

// Check is the result of one dependency check.
type Check struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// CheckFunc reports whether a dependency is usable, with an optional
// human-readable detail.
type CheckFunc func(ctx context.Context) (bool, string)

// Server serves the health endpoints on its own port.
type Server struct {
	port    int
	version string
	started time.Time
	logger  logger.LoggerInterface

	mu        sync.RWMutex
	checks    map[string]CheckFunc
	readiness map[string]CheckFunc

	server *http.Server
}

// NewServer creates a health server. Start must be called to serve.
func NewServer(port int, version string, log logger.LoggerInterface) *Server {
	return &Server{
		port:      port,
		version:   version,
		started:   time.Now(),
		logger:    log,
		checks:    make(map[string]CheckFunc),
		readiness: make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a dependency check to /health.
func (s *Server) RegisterCheck(name string, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// RegisterReadiness adds a gate to /ready.
func (s *Server) RegisterReadiness(name string, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness[name] = check
}

// Start serves the endpoints in a background goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info(context.Background(), "health server listening", "port", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(context.Background(), "health server stopped", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) snapshotChecks(src map[string]CheckFunc) map[string]CheckFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CheckFunc, len(src))
	for name, fn := range src {
		out[name] = fn
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := Status{
		Status:    "ok",
		Checks:    make(map[string]Check),
		Version:   s.version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	healthy := true
	for name, check := range s.snapshotChecks(s.checks) {
		ok, msg := check(ctx)
		status.Checks[name] = Check{Healthy: ok, Message: msg}
		if !ok {
			healthy = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		status.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	for name, check := range s.snapshotChecks(s.readiness) {
		if ok, _ := check(ctx); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready: %s", name)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
