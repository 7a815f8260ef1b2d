package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/handoff"
	"github.com/jonathan/job-agent/internal/server/middleware"
)

const (
	// DefaultPingInterval spaces keep-alive comments on idle event feeds
	DefaultPingInterval = 15 * time.Second
	// DefaultSessionIdleTTL is how long a session without requests or an
	// open event feed is kept before its run is abandoned
	DefaultSessionIdleTTL = 30 * time.Minute
)

// Backend is everything a session needs from the automation backend
type Backend interface {
	backend.Applications
	backend.Resumes
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	backend      Backend
	handoff      handoff.Store
	tokens       middleware.TokenValidator
	validator    *validator.Validate
	history      *singleflight.Group
	logger       *slog.Logger
	pingInterval time.Duration
	idleTTL      time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	closeOnce sync.Once
	done      chan struct{}
}

// Config holds server configuration
type Config struct {
	Port           int
	PingInterval   time.Duration
	SessionIdleTTL time.Duration
}

// Dependencies are the collaborators the server is built from.
// Handoff may be nil, which disables PUT /handoff and deferred starts.
type Dependencies struct {
	Backend Backend
	Handoff handoff.Store
	Tokens  middleware.TokenValidator
	Logger  *slog.Logger
}

// New creates a new server instance
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token validator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = DefaultPingInterval
	}
	ttl := cfg.SessionIdleTTL
	if ttl <= 0 {
		ttl = DefaultSessionIdleTTL
	}

	s := &Server{
		backend:      deps.Backend,
		handoff:      deps.Handoff,
		tokens:       deps.Tokens,
		validator:    validator.New(),
		history:      &singleflight.Group{},
		logger:       logger,
		pingInterval: ping,
		idleTTL:      ttl,
		now:          time.Now,
		sessions:     make(map[string]*sessionEntry),
		done:         make(chan struct{}),
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: event feeds stay open for the whole run
		IdleTimeout: 60 * time.Second,
	}

	go s.reapLoop()

	return s, nil
}

// Handler returns the routed handler with logging and CORS applied
func (s *Server) Handler() http.Handler {
	auth := middleware.AuthMiddleware(s.tokens)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Sessions
	mux.Handle("POST /sessions", protect(s.handleCreateSession))
	mux.Handle("GET /sessions/{id}", protect(s.handleGetSession))
	mux.Handle("DELETE /sessions/{id}", protect(s.handleDeleteSession))
	mux.Handle("POST /sessions/{id}/runs", protect(s.handleStartRun))
	mux.Handle("GET /sessions/{id}/events", protect(s.handleEvents))
	mux.Handle("POST /sessions/{id}/entries/{entry_id}/toggle", protect(s.handleToggle))

	// Hand-off from other screens
	mux.Handle("GET /handoff", protect(s.handleGetHandoff))
	mux.Handle("PUT /handoff", protect(s.handlePutHandoff))

	return s.withLogging(s.withCORS(mux))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Close ends open event feeds and abandons every session's run
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for _, e := range sessions {
		e.ctrl.Abandon()
	}
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the access log.
// It keeps Flush reachable for event feeds.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding JSON response failed", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to a status and writes it
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	s.errorResponse(w, status, err.Error())
}
